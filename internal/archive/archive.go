// Package archive implements the terminal-result archive (spec §12.3):
// one record per Task id of its final TaskResult (a later Put for the
// same id replaces the earlier record), kept for
// downstream consumers that need a durable artifact after the core has
// already disbanded a team. Grounded on the teacher's persistence.go
// (WorkflowStore), scoped down to one bucket — this is deliberately NOT
// a TaskBoard/Team persistence layer; the orchestration core itself
// stays in-memory per spec §6's persisted-state boundary.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/swarmguard/agentcore/internal/models"
	"github.com/swarmguard/agentcore/internal/otelinit"
)

var bucketResults = []byte("task_results")

// Archive persists terminal TaskResults to a local BoltDB file.
type Archive struct {
	db           *bbolt.DB
	readLatency  metric.Float64Histogram
	writeLatency metric.Float64Histogram
}

// Open creates or opens the archive database at path.
func Open(path string) (*Archive, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("archive: open boltdb: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketResults)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: create bucket: %w", err)
	}

	meter := otel.GetMeterProvider().Meter(otelinit.Tracer)
	readLatency, _ := meter.Float64Histogram("agentcore_archive_read_ms")
	writeLatency, _ := meter.Float64Histogram("agentcore_archive_write_ms")

	return &Archive{db: db, readLatency: readLatency, writeLatency: writeLatency}, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Put stores the terminal result for taskID, overwriting any prior entry.
func (a *Archive) Put(ctx context.Context, taskID string, result models.TaskResult) error {
	_, end := otelinit.WithSpan(ctx, "archive.put")
	defer end()

	start := time.Now()
	defer func() {
		a.writeLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("operation", "put")))
	}()

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("archive: marshal result: %w", err)
	}

	return a.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketResults).Put([]byte(taskID), data)
	})
}

// Get retrieves the archived result for taskID.
func (a *Archive) Get(ctx context.Context, taskID string) (models.TaskResult, bool, error) {
	_, end := otelinit.WithSpan(ctx, "archive.get")
	defer end()

	start := time.Now()
	defer func() {
		a.readLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("operation", "get")))
	}()

	var result models.TaskResult
	var found bool
	err := a.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketResults).Get([]byte(taskID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &result)
	})
	if err != nil {
		return models.TaskResult{}, false, fmt.Errorf("archive: read result: %w", err)
	}
	return result, found, nil
}

// Count returns the number of archived results.
func (a *Archive) Count() int {
	count := 0
	_ = a.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(bucketResults).Stats().KeyN
		return nil
	})
	return count
}
