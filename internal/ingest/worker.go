// Package ingest digests batches of files into a profile on a background
// goroutine and reports progress through a non-blocking hand-off.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eargollo/archiver/internal/digest"
	"github.com/eargollo/archiver/internal/metrics"
	"github.com/eargollo/archiver/internal/store"
)

// ErrBatchAborted is returned in Result.Err when the store stopped accepting
// writes mid-batch and the remaining paths were not attempted.
var ErrBatchAborted = errors.New("ingestion batch aborted")

// Failure stages.
const (
	StageDigest = "digest"
	StageInsert = "insert"
)

// Inserter is the slice of the record store a Worker writes to.
type Inserter interface {
	InsertFile(ctx context.Context, profileID int64, fileName, digest string) (store.FileRecord, error)
}

// DigestFunc returns the hex digest of the file at path and the number of
// bytes read.
type DigestFunc func(path string) (string, int64, error)

// Failure describes a path that produced no record.
type Failure struct {
	Path  string `json:"path"`
	Stage string `json:"stage"`
	Err   string `json:"error"`
}

// Result summarises a finished batch.
type Result struct {
	ProfileID  int64     `json:"profile_id"`
	Total      int       `json:"total"`
	Inserted   int       `json:"inserted"`
	Failures   []Failure `json:"failures"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Err is set when the batch stopped before the last path, either under
	// PolicyFailFast or because the store became unusable.
	Err error `json:"-"`
}

// Status is the final outcome label used in logs and metrics.
func (r Result) Status() string {
	switch {
	case errors.Is(r.Err, ErrBatchAborted):
		return "aborted"
	case r.Err != nil:
		return "failed"
	}
	return "completed"
}

var defaultDigest DigestFunc = digest.File

// Worker ingests the paths of one batch strictly in order.
type Worker struct {
	store  Inserter
	digest DigestFunc
	policy FailurePolicy
}

// NewWorker creates a Worker that hashes with SHA3-256.
func NewWorker(s Inserter, policy FailurePolicy) *Worker {
	return &Worker{store: s, digest: defaultDigest, policy: policy}
}

// Start runs the batch on a new goroutine and returns a session for polling
// it. Cancelling ctx does not stop the batch.
func (w *Worker) Start(ctx context.Context, profileID int64, paths []string) *Session {
	sess := NewSession()
	w.startInto(ctx, sess, profileID, paths, nil)
	return sess
}

// startInto resets sess for a new batch and launches the goroutine. after,
// if non-nil, runs once the batch is done and before its terminal signal is
// published, so a poller that sees StateCompleted can start the next batch.
func (w *Worker) startInto(ctx context.Context, sess *Session, profileID int64, paths []string, after func(Result)) {
	ch := NewChannel()
	sess.begin(len(paths), ch)
	ctx = context.WithoutCancel(ctx)
	go func() {
		w.run(ctx, profileID, paths, ch, func(res Result) {
			sess.finish(res)
			if after != nil {
				after(res)
			}
		})
	}()
}

// Run digests and stores each path in order, sending (i+1, n) into ch after
// every path whether or not it produced a record. Intermediate signals are
// dropped when the slot is occupied; the terminal (n, n) signal always
// replaces whatever is pending.
func (w *Worker) Run(ctx context.Context, profileID int64, paths []string, ch *Channel) Result {
	return w.run(ctx, profileID, paths, ch, nil)
}

// run is Run with a hook that sees the final Result before (n, n) is sent.
func (w *Worker) run(ctx context.Context, profileID int64, paths []string, ch *Channel, done func(Result)) Result {
	total := len(paths)
	res := Result{ProfileID: profileID, Total: total, Failures: []Failure{}, StartedAt: time.Now()}
	slog.Info("ingest: batch started", "profile_id", profileID, "files", total, "policy", w.policy)

	for i, path := range paths {
		stage, err := w.ingestOne(ctx, profileID, path)
		if err == nil {
			res.Inserted++
			metrics.IngestFilesTotal.WithLabelValues("inserted").Inc()
		} else {
			metrics.IngestFilesTotal.WithLabelValues("skipped").Inc()
			res.Failures = append(res.Failures, Failure{Path: path, Stage: stage, Err: err.Error()})
			slog.Warn("ingest: skipped file", "path", path, "stage", stage, "error", err)

			if stage == StageInsert && storeUnusable(err) {
				res.Err = fmt.Errorf("%w after %d of %d files: %w", ErrBatchAborted, i+1, total, err)
				break
			}
			if w.policy == PolicyFailFast {
				res.Err = fmt.Errorf("ingest %q: %w", path, err)
				break
			}
		}

		if i+1 < total {
			if !ch.TrySend(Signal{Completed: i + 1, Total: total}) {
				metrics.IngestSignalsDropped.Inc()
				slog.Debug("ingest: progress signal dropped", "completed", i+1, "total", total)
			}
		}
	}

	res.FinishedAt = time.Now()
	metrics.IngestBatchesTotal.WithLabelValues(res.Status()).Inc()
	slog.Info("ingest: batch finished",
		"profile_id", profileID,
		"status", res.Status(),
		"inserted", res.Inserted,
		"skipped", len(res.Failures),
		"duration", res.FinishedAt.Sub(res.StartedAt))
	if done != nil {
		done(res)
	}

	// A stopped batch still reports (n, n) so pollers reach Completed; the
	// reason is in the Result.
	if !ch.Replace(Signal{Completed: total, Total: total}) {
		metrics.IngestSignalsDropped.Inc()
		slog.Warn("ingest: terminal progress signal dropped", "total", total)
	}
	return res
}

// ingestOne returns the failing stage alongside any error.
func (w *Worker) ingestOne(ctx context.Context, profileID int64, path string) (string, error) {
	sum, n, err := w.digest(path)
	metrics.DigestBytesTotal.Add(float64(n))
	if err != nil {
		return StageDigest, err
	}
	if _, err := w.store.InsertFile(ctx, profileID, path, sum); err != nil {
		return StageInsert, err
	}
	return "", nil
}

// storeUnusable reports whether an insert error says nothing about the file
// itself, so every following insert would fail the same way.
func storeUnusable(err error) bool {
	return !errors.Is(err, store.ErrForeignKey) && !errors.Is(err, store.ErrConstraint)
}
