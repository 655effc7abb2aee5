// Command orchestrator wires the orchestration core's components
// together (spec §14) behind a small HTTP submission surface: a
// MainAgent fronted by a TaskExecutor/WaveExecutor pipeline, a
// TeamLifecycleManager, an archive for terminal results, and a
// cron-driven scheduler for recurring submissions. Grounded on the
// teacher's cmd/orchestrator/main.go wiring shape (logging init, OTel
// tracer/meter init, signal-context shutdown, HTTP mux), adapted from
// workflow-DAG semantics to task-submission semantics.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/swarmguard/agentcore/internal/archive"
	"github.com/swarmguard/agentcore/internal/executor"
	"github.com/swarmguard/agentcore/internal/logging"
	"github.com/swarmguard/agentcore/internal/mainagent"
	"github.com/swarmguard/agentcore/internal/otelinit"
	"github.com/swarmguard/agentcore/internal/qualitygate"
	"github.com/swarmguard/agentcore/internal/scheduler"
	"github.com/swarmguard/agentcore/internal/team"
)

const serviceName = "agentcore-orchestrator"

func main() {
	logging.Init(serviceName)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTrace := otelinit.InitTracer(ctx, serviceName)
	shutdownMetrics, _ := otelinit.InitMetrics(ctx, serviceName)

	archivePath := os.Getenv("ORCHESTRATOR_ARCHIVE_PATH")
	if archivePath == "" {
		archivePath = "orchestrator.db"
	}
	arc, err := archive.Open(archivePath)
	if err != nil {
		slog.Error("failed to open result archive", "error", err)
		os.Exit(1)
	}
	defer arc.Close()

	teams := team.NewManager()
	gate := qualitygate.New(alwaysContinueEvaluator{}, nil)

	exec := executor.New(
		executor.DefaultConfig(),
		teams,
		echoRunner{},
		gate,
		func(taskID string, elapsed, remaining time.Duration) {
			slog.Warn("task approaching timeout", "task_id", taskID, "elapsed", elapsed, "remaining", remaining)
		},
	)

	agent := mainagent.New(mainagent.DefaultConfig(), heuristicEstimator{}, exec, singleStepPlanner{})

	sched := scheduler.New(agent)
	sched.Start()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = sched.Stop(stopCtx)
	}()

	if cronExpr := os.Getenv("ORCHESTRATOR_HEARTBEAT_CRON"); cronExpr != "" {
		if err := sched.AddSchedule(ctx, scheduler.ScheduleConfig{
			Name:     "heartbeat",
			CronExpr: cronExpr,
			Content:  "heartbeat: confirm the orchestration core is alive and accepting work",
			Enabled:  true,
		}); err != nil {
			slog.Warn("failed to register heartbeat schedule", "error", err)
		}
	}

	mux := newMux(agent, arc)

	srv := &http.Server{
		Addr:         listenAddr(),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		slog.Info("orchestrator listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	summary := agent.GracefulShutdown(shutdownCtx)
	slog.Info("graceful shutdown complete", "cancelled_tasks", len(summary.CancelledTasks), "errors", len(summary.Errors))

	otelinit.Flush(context.Background(), shutdownTrace)
	otelinit.Flush(context.Background(), shutdownMetrics)
}

func listenAddr() string {
	if addr := os.Getenv("ORCHESTRATOR_LISTEN_ADDR"); addr != "" {
		return addr
	}
	return ":8080"
}

type submitRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func newMux(agent *mainagent.Agent, arc *archive.Archive) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		task, err := agent.SubmitTask(r.Context(), req.Content, req.Metadata)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		go func() {
			bg := context.Background()
			result := agent.ExecuteWithTimeout(bg, task)
			if err := arc.Put(bg, task.ID, result); err != nil {
				slog.Error("failed to archive task result", "task_id", task.ID, "error", err)
			}
		}()

		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(task)
	})

	mux.HandleFunc("/v1/tasks/status", func(w http.ResponseWriter, r *http.Request) {
		taskID := r.URL.Query().Get("id")
		if taskID == "" {
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}
		status, err := agent.GetTaskStatus(taskID)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		progress, _ := agent.GetProgress(taskID)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"task_id":  taskID,
			"status":   status,
			"progress": progress,
		})
	})

	mux.HandleFunc("/v1/tasks/result", func(w http.ResponseWriter, r *http.Request) {
		taskID := r.URL.Query().Get("id")
		if taskID == "" {
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}
		if result, ok := agent.GetTaskResult(taskID); ok {
			_ = json.NewEncoder(w).Encode(result)
			return
		}
		result, found, err := arc.Get(r.Context(), taskID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !found {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(result)
	})

	mux.HandleFunc("/v1/tasks/cancel", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		taskID := r.URL.Query().Get("id")
		if taskID == "" {
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}
		cancelled := agent.CancelTask(r.Context(), taskID)
		_ = json.NewEncoder(w).Encode(map[string]bool{"cancelled": cancelled})
	})

	mux.HandleFunc("/v1/tasks/summary", func(w http.ResponseWriter, r *http.Request) {
		taskID := r.URL.Query().Get("id")
		if taskID == "" {
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}
		summary, err := agent.GenerateSummary(taskID)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(summary)
	})

	return mux
}
