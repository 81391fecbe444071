package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/grixate/zipex/internal/archive"
)

var (
	ErrDestination       = errors.New("destination unavailable")
	ErrInsufficientSpace = errors.New("insufficient disk space")
	ErrNoResolver        = errors.New("ask policy requires a conflict resolver")
	ErrPolicy            = errors.New("unknown conflict policy")
	ErrBombSuspected     = errors.New("archive flagged as decompression bomb")
)

// spaceBufferPercent is the safety margin demanded on top of the
// archive's uncompressed size before any write happens.
const spaceBufferPercent = 10

// pausePoll is how often a paused engine re-checks its flags.
const pausePoll = 100 * time.Millisecond

// ProgressFunc is invoked synchronously on the extracting goroutine after
// each member. Callers must not block it for long.
type ProgressFunc func(*Task)

// Engine drives one task through validation, per-member extraction and
// completion or rollback. Pause and cancel requests take effect at member
// boundaries, never mid-write.
type Engine struct {
	paused    atomic.Bool
	cancelled atomic.Bool
	logger    *log.Logger
}

func NewEngine(logger *log.Logger) *Engine {
	return &Engine{logger: logger}
}

// RequestPause suspends member processing at the next boundary.
func (e *Engine) RequestPause() { e.paused.Store(true) }

// RequestResume lifts a pause.
func (e *Engine) RequestResume() { e.paused.Store(false) }

// RequestCancel stops the task at the next boundary and triggers rollback.
func (e *Engine) RequestCancel() { e.cancelled.Store(true) }

// Extract runs the task to a terminal state. The returned error is
// non-nil only for the fatal pre-extraction failures; once the member
// loop starts the task always ends Completed or Cancelled, with partial
// failure expressed through the failed-member list.
func (e *Engine) Extract(ctx context.Context, task *Task, onProgress ProgressFunc) error {
	// A bogus policy must fail loudly here; overwriting is never the
	// implicit fallback for a value nobody chose.
	policy, err := ParsePolicy(string(task.Policy))
	if err != nil {
		return e.fail(task, fmt.Errorf("%w %q", ErrPolicy, task.Policy))
	}
	task.Policy = policy

	if task.Policy == PolicyAsk && task.Resolver == nil {
		return e.fail(task, ErrNoResolver)
	}

	if err := os.MkdirAll(task.Destination, 0o755); err != nil {
		return e.fail(task, fmt.Errorf("%w: %v", ErrDestination, err))
	}
	if err := checkWritable(task.Destination); err != nil {
		return e.fail(task, fmt.Errorf("%w: %v", ErrDestination, err))
	}

	report, err := archive.InspectWithLimits(task.ArchivePath, task.BombLimits)
	if err != nil {
		return e.fail(task, err)
	}

	// Totals are fixed here and never change afterwards.
	task.TotalFiles = report.FileCount
	task.TotalBytes = report.UncompressedSize

	if report.Bomb.Suspect {
		return e.fail(task, fmt.Errorf("%w: %s", ErrBombSuspected, strings.Join(report.Bomb.Reasons, "; ")))
	}

	if free := diskFree(task.Destination); free >= 0 {
		required := task.TotalBytes + task.TotalBytes*spaceBufferPercent/100
		if free < required {
			return e.fail(task, fmt.Errorf("%w: need %d bytes, %d available", ErrInsufficientSpace, required, free))
		}
	}

	base := task.Destination
	if task.CreateRootFolder {
		base = filepath.Join(task.Destination, archiveStem(task.ArchivePath))
		if err := os.MkdirAll(base, 0o755); err != nil {
			return e.fail(task, fmt.Errorf("%w: %v", ErrDestination, err))
		}
	}

	r, err := archive.Open(task.ArchivePath)
	if err != nil {
		return e.fail(task, err)
	}
	defer r.Close()

	task.Status = StatusRunning
	task.StartedAt = time.Now()
	e.logf("task %s: extracting %s (%d files, %d bytes)", task.ID, task.ArchivePath, task.TotalFiles, task.TotalBytes)

	for _, entry := range r.Entries() {
		if e.interrupted(ctx) {
			e.rollback(task, base)
			return nil
		}
		if !e.waitWhilePaused(ctx, task) {
			e.rollback(task, base)
			return nil
		}

		target, err := SafeJoin(base, entry.Path)
		if err != nil {
			if !entry.IsDir {
				task.recordFailure(entry.Path, err.Error())
			}
			continue
		}

		if entry.IsDir {
			// Directory members may be empty; create them eagerly.
			_ = os.MkdirAll(target, 0o755)
			continue
		}

		task.CurrentFile = entry.Path

		if _, err := os.Lstat(target); err == nil {
			resolved, skip := resolveConflict(target, task.Policy, task.Resolver)
			if skip {
				// Skipped bytes still count toward progress so the
				// task can reach 100%.
				task.ExtractedBytes += entry.UncompressedSize
				e.emit(task, onProgress)
				continue
			}
			target = resolved
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			task.recordFailure(entry.Path, err.Error())
			continue
		}

		if err := writeEntry(entry, target, task); err != nil {
			task.recordFailure(entry.Path, err.Error())
			e.emit(task, onProgress)
			continue
		}

		task.ExtractedFiles++
		task.ExtractedBytes += entry.UncompressedSize
		e.emit(task, onProgress)
	}

	task.Status = StatusCompleted
	task.CompletedAt = time.Now()
	task.CurrentFile = ""
	if n := len(task.FailedMembers); n > 0 {
		e.logf("task %s: completed with %d failed members", task.ID, n)
	} else {
		e.logf("task %s: completed", task.ID)
	}
	return nil
}

// interrupted reports whether a cancel arrived via flag or context.
func (e *Engine) interrupted(ctx context.Context) bool {
	if e.cancelled.Load() {
		return true
	}
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// waitWhilePaused blocks at a member boundary until resumed. It returns
// false when the wait ended in cancellation.
func (e *Engine) waitWhilePaused(ctx context.Context, task *Task) bool {
	for e.paused.Load() {
		task.Status = StatusPaused
		if e.interrupted(ctx) {
			return false
		}
		time.Sleep(pausePoll)
	}
	if task.Status == StatusPaused {
		task.Status = StatusRunning
	}
	return true
}

// rollback handles cancellation. Only the synthesized per-archive root is
// removed; without it there is no record of which files pre-existed, so
// nothing is touched.
func (e *Engine) rollback(task *Task, base string) {
	task.Status = StatusCancelled
	task.CompletedAt = time.Now()
	task.CurrentFile = ""
	if task.CreateRootFolder {
		if err := os.RemoveAll(base); err != nil {
			e.logf("task %s: rollback of %s: %v", task.ID, base, err)
		}
	}
	e.logf("task %s: cancelled", task.ID)
}

func (e *Engine) fail(task *Task, err error) error {
	task.Status = StatusFailed
	task.Err = err
	task.CompletedAt = time.Now()
	e.logf("task %s: %v", task.ID, err)
	return err
}

func (e *Engine) emit(task *Task, onProgress ProgressFunc) {
	if onProgress != nil {
		onProgress(task)
	}
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// writeEntry streams one member to disk. io.Copy keeps memory flat
// regardless of member size, and the codec verifies the stored checksum
// as the stream drains.
func writeEntry(entry archive.Entry, target string, task *Task) error {
	src, err := entry.Open()
	if err != nil {
		return err
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		src.Close()
		return err
	}
	_, copyErr := io.Copy(dst, src)
	src.Close()
	closeErr := dst.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return closeErr
	}

	if task.PreservePermissions {
		if perm := entry.Mode.Perm(); perm != 0 {
			_ = os.Chmod(target, perm)
		}
	}
	if task.PreserveTimestamps && !entry.Modified.IsZero() {
		_ = os.Chtimes(target, time.Now(), entry.Modified)
	}
	return nil
}

// checkWritable probes the destination with a throwaway file.
func checkWritable(dir string) error {
	probe, err := os.CreateTemp(dir, ".zipex-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}

// archiveStem is the archive file name without its extension, used to
// name the per-archive root folder.
func archiveStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
