// Package wave implements the event-driven dynamic wave scheduler (spec
// §4.2), ported from the original's src/wave_executor.py: no wave
// barrier — successors spawn the instant their dependency unlocks, not
// after a full wave completes. Failure propagates via BFS over the
// TaskBoard's reverse-dependency index.
package wave

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/swarmguard/agentcore/internal/models"
	"github.com/swarmguard/agentcore/internal/otelinit"
	"github.com/swarmguard/agentcore/internal/resilience"
)

// Board is the subset of TaskBoard's API the executor depends on. Defined
// here (consumer side) so wave never imports taskboard's concrete type,
// keeping the dependency direction the same as the teacher's
// DAGEngine/TaskExecutor split.
type Board interface {
	Claim(ctx context.Context, agentID, taskID string) models.ClaimResult
	GetAvailable(ctx context.Context, agentID string, roleFilter string) []models.TaskBoardEntry
	UpdateStatus(ctx context.Context, taskID string, status models.TaskBoardStatus, result any)
	GetStatus(ctx context.Context, taskID string) (models.TaskBoardEntry, error)
	OnCompleted(ctx context.Context, taskID string) []string
	ReclaimExpired(ctx context.Context, timeout time.Duration) []string
	Dependents(taskID string) map[string]struct{}
	Len() int
	CountByStatus(status models.TaskBoardStatus) int
}

// Runner executes one sub-task and returns its textual output or an error.
// This is the AgentRoleRunner contract collapsed to the single call the
// wave executor needs (spec §6).
type Runner func(ctx context.Context, subtask models.SubTask) (string, error)

// Config bounds wave execution. Closed struct, no map passthrough.
type Config struct {
	ReclaimInterval   time.Duration
	ClaimTimeout      time.Duration
	MaxConcurrent     int64 // 0 disables the admission cap
}

// DefaultConfig mirrors the original's 10s reclaim cadence / 60s claim timeout.
func DefaultConfig() Config {
	return Config{
		ReclaimInterval: 10 * time.Second,
		ClaimTimeout:    60 * time.Second,
	}
}

// Executor drives a TaskBoard to completion with maximum safe parallelism.
type Executor struct {
	cfg     Config
	limiter *resilience.RateLimiter

	mu         sync.Mutex
	waveStats  []models.WaveStats
	waveNumber int
}

// New constructs an Executor. A nil-capacity config means unbounded
// concurrency (the original has no such cap; spec §5 adds it as the
// maxConcurrentAgents backpressure knob).
func New(cfg Config) *Executor {
	e := &Executor{cfg: cfg}
	if cfg.MaxConcurrent > 0 {
		e.limiter = resilience.NewRateLimiter(cfg.MaxConcurrent, float64(cfg.MaxConcurrent), time.Second, 0)
	}
	return e
}

// Execute runs every reachable entry on board to a terminal state:
// completed, failed, or (transitively) blocked.
func (e *Executor) Execute(ctx context.Context, board Board, agentID string, runner Runner) models.WaveExecutionResult {
	ctx, end := otelinit.WithSpan(ctx, "wave.execute")
	defer end()

	e.mu.Lock()
	e.waveStats = nil
	e.waveNumber = 0
	e.mu.Unlock()

	start := time.Now()

	var (
		mu            sync.Mutex
		totalCompleted, totalFailed int
		active        = make(map[string]struct{})
		taskWave      = make(map[string]int)
		waveStart     = make(map[int]time.Time)
		waveTaskCount = make(map[int]int)
		waveCompleted = make(map[int]int)
		waveFailed    = make(map[int]int)
	)

	var wg sync.WaitGroup

	startWave := func(ids []string) int {
		mu.Lock()
		defer mu.Unlock()
		num := e.waveNumber
		e.waveNumber++
		now := time.Now()
		waveStart[num] = now
		waveTaskCount[num] = len(ids)
		for _, id := range ids {
			taskWave[id] = num
		}
		return num
	}

	var slots chan struct{}
	if e.cfg.MaxConcurrent > 0 {
		slots = make(chan struct{}, e.cfg.MaxConcurrent)
	}

	var spawn func(ids []string)
	executeOne := func(taskID string) {
		defer func() {
			mu.Lock()
			delete(active, taskID)
			mu.Unlock()
			wg.Done()
		}()

		if e.limiter != nil {
			for !e.limiter.Allow() {
				select {
				case <-ctx.Done():
					return
				case <-time.After(20 * time.Millisecond):
				}
			}
		}

		if slots != nil {
			select {
			case slots <- struct{}{}:
				defer func() { <-slots }()
			case <-ctx.Done():
				return
			}
		}

		claim := board.Claim(ctx, agentID, taskID)
		if !claim.Success {
			slog.Warn("wave: failed to claim task", "task_id", taskID, "error", claim.Error)
			return
		}

		board.UpdateStatus(ctx, taskID, models.BoardInProgress, nil)

		entry, err := board.GetStatus(ctx, taskID)
		if err != nil {
			slog.Error("wave: claimed task vanished from board", "task_id", taskID, "error", err)
			return
		}

		output, runErr := runner(ctx, entry.SubTask)
		if runErr != nil {
			slog.Error("wave: task failed", "task_id", taskID, "error", runErr)
			board.UpdateStatus(ctx, taskID, models.BoardFailed, runErr.Error())

			mu.Lock()
			totalFailed++
			wn := taskWave[taskID]
			waveFailed[wn]++
			mu.Unlock()

			e.propagateFailure(ctx, board, taskID)
			return
		}

		board.UpdateStatus(ctx, taskID, models.BoardCompleted, output)

		mu.Lock()
		totalCompleted++
		wn := taskWave[taskID]
		waveCompleted[wn]++
		mu.Unlock()

		unlocked := board.OnCompleted(ctx, taskID)
		if len(unlocked) > 0 {
			spawn(unlocked)
		}
	}

	spawn = func(ids []string) {
		if len(ids) == 0 {
			return
		}
		mu.Lock()
		fresh := make([]string, 0, len(ids))
		for _, id := range ids {
			if _, already := active[id]; !already {
				fresh = append(fresh, id)
				active[id] = struct{}{}
			}
		}
		mu.Unlock()
		if len(fresh) == 0 {
			return
		}
		startWave(fresh)
		for _, id := range fresh {
			wg.Add(1)
			go executeOne(id)
		}
	}

	initial := board.GetAvailable(ctx, agentID, "")
	if len(initial) == 0 {
		return e.emptyResult(ctx, board, start)
	}
	initialIDs := make([]string, len(initial))
	for i, entry := range initial {
		initialIDs[i] = entry.TaskID
	}
	spawn(initialIDs)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	reclaimTicker := time.NewTicker(e.cfg.reclaimIntervalOrDefault())
	defer reclaimTicker.Stop()

loop:
	for {
		select {
		case <-done:
			break loop
		case <-reclaimTicker.C:
			reclaimed := board.ReclaimExpired(ctx, e.cfg.claimTimeoutOrDefault())
			if len(reclaimed) > 0 {
				slog.Info("wave: reclaimed expired claims", "count", len(reclaimed))
				spawn(reclaimed)
			}
		case <-ctx.Done():
			break loop
		}
	}

	totalTasks := board.Len()
	totalBlocked := board.CountByStatus(models.BoardBlocked)

	end2 := time.Now()
	stats := e.buildWaveStats(waveStart, waveTaskCount, waveCompleted, waveFailed, end2)

	e.mu.Lock()
	e.waveStats = stats
	e.mu.Unlock()

	return models.WaveExecutionResult{
		TotalWaves:         len(stats),
		TotalTasks:         totalTasks,
		CompletedTasks:     totalCompleted,
		FailedTasks:        totalFailed,
		BlockedTasks:       totalBlocked,
		WaveStats:          stats,
		TotalExecutionTime: end2.Sub(start),
	}
}

func (e *Executor) emptyResult(ctx context.Context, board Board, start time.Time) models.WaveExecutionResult {
	_ = ctx
	blocked := board.CountByStatus(models.BoardBlocked)
	total := board.Len()
	return models.WaveExecutionResult{
		TotalWaves:         0,
		TotalTasks:         total,
		CompletedTasks:     0,
		FailedTasks:        0,
		BlockedTasks:       blocked,
		WaveStats:          []models.WaveStats{},
		TotalExecutionTime: time.Since(start),
	}
}

// propagateFailure runs BFS over the reverse-dependency index, forcing
// every not-yet-terminal dependent to Blocked (spec §4.2). This overloads
// Blocked for both "waiting" and "unreachable due to upstream failure" —
// per spec §9, consumers distinguish by inspecting the upstream's status,
// not a new enum variant.
func (e *Executor) propagateFailure(ctx context.Context, board Board, failedTaskID string) int {
	blockedCount := 0
	visited := map[string]struct{}{}
	queue := make([]string, 0)

	for id := range board.Dependents(failedTaskID) {
		if _, seen := visited[id]; !seen {
			queue = append(queue, id)
			visited[id] = struct{}{}
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		entry, err := board.GetStatus(ctx, current)
		if err != nil {
			continue
		}

		if entry.Status != models.BoardCompleted && entry.Status != models.BoardFailed {
			board.UpdateStatus(ctx, current, models.BoardBlocked, nil)
			blockedCount++
		}

		for id := range board.Dependents(current) {
			if _, seen := visited[id]; !seen {
				queue = append(queue, id)
				visited[id] = struct{}{}
			}
		}
	}
	return blockedCount
}

func (e *Executor) buildWaveStats(waveStart map[int]time.Time, waveTaskCount, waveCompleted, waveFailed map[int]int, end time.Time) []models.WaveStats {
	nums := make([]int, 0, len(waveStart))
	for n := range waveStart {
		nums = append(nums, n)
	}
	for i := 0; i < len(nums); i++ {
		for j := i + 1; j < len(nums); j++ {
			if nums[j] < nums[i] {
				nums[i], nums[j] = nums[j], nums[i]
			}
		}
	}

	stats := make([]models.WaveStats, 0, len(nums))
	for i, n := range nums {
		endTime := end
		if i+1 < len(nums) {
			endTime = waveStart[nums[i+1]]
		}
		stats = append(stats, models.WaveStats{
			WaveNumber:     n,
			TaskCount:      waveTaskCount[n],
			Parallelism:    waveTaskCount[n],
			StartTime:      waveStart[n],
			EndTime:        endTime,
			CompletedTasks: waveCompleted[n],
			FailedTasks:    waveFailed[n],
		})
	}
	return stats
}

// GetWaveStatistics returns the wave statistics of the most recent Execute call.
func (e *Executor) GetWaveStatistics() []models.WaveStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.WaveStats, len(e.waveStats))
	copy(out, e.waveStats)
	return out
}

func (c Config) reclaimIntervalOrDefault() time.Duration {
	if c.ReclaimInterval > 0 {
		return c.ReclaimInterval
	}
	return 10 * time.Second
}

func (c Config) claimTimeoutOrDefault() time.Duration {
	if c.ClaimTimeout > 0 {
		return c.ClaimTimeout
	}
	return 60 * time.Second
}
