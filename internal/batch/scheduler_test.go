package batch

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grixate/zipex/internal/extract"
)

func makeZip(t *testing.T, name string, entries map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for entryName, content := range entries {
		w, err := zw.Create(entryName)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newBatchTask(t *testing.T, zipPath string) *extract.Task {
	t.Helper()
	task := extract.NewTask(zipPath, t.TempDir())
	task.Policy = extract.PolicyOverwrite
	task.CreateRootFolder = false
	return task
}

func TestRunAllTasksGetOutcomes(t *testing.T) {
	tasks := []*extract.Task{
		newBatchTask(t, makeZip(t, "one.zip", map[string]string{"a.txt": "aa"})),
		newBatchTask(t, makeZip(t, "two.zip", map[string]string{"b.txt": "bb"})),
		newBatchTask(t, makeZip(t, "three.zip", map[string]string{"c.txt": "cc"})),
	}

	runner := NewRunner(Options{MaxConcurrent: 2})
	results := runner.Run(context.Background(), tasks)

	if len(results) != 3 {
		t.Fatalf("results = %d entries, want 3", len(results))
	}
	for _, task := range tasks {
		outcome, ok := results[task.ID]
		if !ok {
			t.Fatalf("missing outcome for task %s", task.ID)
		}
		if !outcome.Success || outcome.Status != extract.StatusCompleted {
			t.Fatalf("task %s: %+v", task.ID, outcome)
		}
	}
}

func TestRunFailureIsolated(t *testing.T) {
	good := newBatchTask(t, makeZip(t, "good.zip", map[string]string{"a.txt": "aa"}))
	bad := newBatchTask(t, filepath.Join(t.TempDir(), "missing.zip"))

	runner := NewRunner(Options{MaxConcurrent: 2})
	results := runner.Run(context.Background(), []*extract.Task{good, bad})

	if outcome := results[good.ID]; !outcome.Success {
		t.Fatalf("good task dragged down by sibling: %+v", outcome)
	}
	outcome := results[bad.ID]
	if outcome.Success || outcome.Status != extract.StatusFailed || outcome.Err == nil {
		t.Fatalf("bad task outcome: %+v", outcome)
	}
}

func TestRunManyTasksUnderSmallLimit(t *testing.T) {
	var callbacks atomic.Int32
	tasks := make([]*extract.Task, 0, 6)
	for i := 0; i < 6; i++ {
		tasks = append(tasks, newBatchTask(t, makeZip(t, "n.zip", map[string]string{"a.txt": "payload"})))
	}

	runner := NewRunner(Options{MaxConcurrent: 2, OnProgress: func(*extract.Task) {
		callbacks.Add(1)
	}})
	results := runner.Run(context.Background(), tasks)

	if len(results) != 6 {
		t.Fatalf("results = %d, want 6", len(results))
	}
	for id, outcome := range results {
		if !outcome.Success {
			t.Fatalf("task %s: %+v", id, outcome)
		}
	}
	if callbacks.Load() != 6 {
		t.Fatalf("progress callbacks = %d, want one per member", callbacks.Load())
	}
}

func TestRunDefaultConcurrency(t *testing.T) {
	runner := NewRunner(Options{})
	if runner.opts.MaxConcurrent != defaultMaxConcurrent {
		t.Fatalf("default concurrency = %d, want %d", runner.opts.MaxConcurrent, defaultMaxConcurrent)
	}
}

func TestPauseAllResumeAll(t *testing.T) {
	task := newBatchTask(t, makeZip(t, "p.zip", map[string]string{
		"one.txt": "1",
		"two.txt": "2",
	}))

	var runner *Runner
	paused := false
	runner = NewRunner(Options{MaxConcurrent: 1, OnProgress: func(*extract.Task) {
		if !paused {
			paused = true
			runner.PauseAll()
			time.AfterFunc(300*time.Millisecond, runner.ResumeAll)
		}
	}})

	start := time.Now()
	results := runner.Run(context.Background(), []*extract.Task{task})
	outcome := results[task.ID]
	if !outcome.Success || outcome.Status != extract.StatusCompleted {
		t.Fatalf("paused batch did not finish: %+v", outcome)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Fatalf("batch never paused: took %v", elapsed)
	}
}

func TestCancelAllStopsTasks(t *testing.T) {
	entries := map[string]string{}
	for i := 0; i < 40; i++ {
		entries[fmt.Sprintf("d/f%02d.txt", i)] = "data"
	}
	task := newBatchTask(t, makeZip(t, "big.zip", entries))
	task.CreateRootFolder = true

	runner := NewRunner(Options{MaxConcurrent: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := runner.Run(ctx, []*extract.Task{task})
	outcome := results[task.ID]
	if outcome.Status != extract.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", outcome.Status)
	}
	if outcome.Success {
		t.Fatal("cancelled task reported as success")
	}
}
