// Package history persists records of finished extractions. It is the
// settings-side collaborator of the engine: engines never touch it, the
// CLI writes a record once a task reaches a terminal state.
package history

import (
	"context"
	"encoding/json"
	"errors"
	mrand "math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.etcd.io/bbolt"
)

var bucketRecords = []byte("records")

var ErrClosed = errors.New("history store closed")

const defaultMaxRecords = 50

// Record is one finished extraction, newest records sorting last by key.
type Record struct {
	ID             string    `json:"id"`
	ArchiveName    string    `json:"archive_name"`
	ArchivePath    string    `json:"archive_path"`
	Destination    string    `json:"destination"`
	ExtractedFiles int       `json:"extracted_files"`
	ExtractedBytes int64     `json:"extracted_bytes"`
	FailedMembers  int       `json:"failed_members,omitempty"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type writeTask struct {
	ctx  context.Context
	fn   func(tx *bbolt.Tx) error
	done chan error
}

// Store is a bbolt-backed history log with a single writer goroutine.
// ULID keys keep records ordered by creation time.
type Store struct {
	db         *bbolt.DB
	writes     chan writeTask
	stop       chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	entropy    *ulid.MonotonicEntropy
	maxRecords int
}

func Open(path string, maxRecords int) (*Store, error) {
	if path == "" {
		return nil, errors.New("history path required")
	}
	if maxRecords <= 0 {
		maxRecords = defaultMaxRecords
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	store := &Store{
		db:         db,
		writes:     make(chan writeTask, 16),
		stop:       make(chan struct{}),
		entropy:    ulid.Monotonic(mrand.New(mrand.NewSource(time.Now().UnixNano())), 0),
		maxRecords: maxRecords,
	}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	store.wg.Add(1)
	go store.writer()
	return store, nil
}

func (s *Store) Close() error {
	close(s.stop)
	s.wg.Wait()
	return s.db.Close()
}

func (s *Store) initSchema() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
}

func (s *Store) writer() {
	defer s.wg.Done()
	for {
		select {
		case task := <-s.writes:
			task.done <- s.db.Update(task.fn)
		case <-s.stop:
			for {
				select {
				case task := <-s.writes:
					task.done <- s.db.Update(task.fn)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) runWrite(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	select {
	case <-s.stop:
		return ErrClosed
	default:
	}
	task := writeTask{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case s.writes <- task:
	case <-s.stop:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-task.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stop:
		// The writer drains queued tasks on shutdown; once it has
		// finished, either our result is buffered or it never ran.
		s.wg.Wait()
		select {
		case err := <-task.done:
			return err
		default:
			return ErrClosed
		}
	}
}

func (s *Store) nextULID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// Add appends a record, assigning an id and timestamp when absent, and
// prunes the oldest entries beyond the configured maximum.
func (s *Store) Add(ctx context.Context, record Record) error {
	if record.ID == "" {
		record.ID = s.nextULID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.runWrite(ctx, func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRecords)
		if err := bucket.Put([]byte(record.ID), raw); err != nil {
			return err
		}
		return pruneTx(bucket, s.maxRecords)
	})
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = s.maxRecords
	}
	var out []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(bucketRecords).Cursor()
		for k, v := cursor.Last(); k != nil && len(out) < limit; k, v = cursor.Prev() {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				continue
			}
			out = append(out, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Clear drops every record.
func (s *Store) Clear(ctx context.Context) error {
	return s.runWrite(ctx, func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketRecords); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketRecords)
		return err
	})
}

// pruneTx deletes the oldest records until at most max remain. Keys are
// collected first; Stats is not reliable inside an uncommitted tx.
func pruneTx(bucket *bbolt.Bucket, max int) error {
	var keys [][]byte
	cursor := bucket.Cursor()
	for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for i := 0; len(keys)-i > max; i++ {
		if err := bucket.Delete(keys[i]); err != nil {
			return err
		}
	}
	return nil
}
