package extract

import (
	"time"

	"github.com/google/uuid"

	"github.com/grixate/zipex/internal/archive"
)

// Status is the lifecycle state of a task. Transitions are driven only by
// the engine: Queued -> Running <-> Paused -> Completed|Failed|Cancelled.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// FailedMember records one member that could not be written.
type FailedMember struct {
	Path   string
	Reason string
}

// Task is one requested extraction of one archive into one destination.
// A task is owned by the engine invocation processing it; nothing else
// mutates it while the engine runs.
type Task struct {
	ID          string
	ArchivePath string
	Destination string

	Policy              Policy
	Resolver            ConflictResolver
	PreservePermissions bool
	PreserveTimestamps  bool
	CreateRootFolder    bool
	BombLimits          archive.Limits

	Status         Status
	TotalFiles     int
	ExtractedFiles int
	TotalBytes     int64
	ExtractedBytes int64
	CurrentFile    string
	FailedMembers  []FailedMember
	Err            error

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// NewTask builds a queued task with the defaults the original tool ships
// with: ask on conflict, preserve permissions and timestamps, nest under
// a per-archive root folder.
func NewTask(archivePath, destination string) *Task {
	return &Task{
		ID:                  uuid.NewString(),
		ArchivePath:         archivePath,
		Destination:         destination,
		Policy:              PolicyAsk,
		PreservePermissions: true,
		PreserveTimestamps:  true,
		CreateRootFolder:    true,
		BombLimits:          archive.DefaultLimits(),
		Status:              StatusQueued,
		CreatedAt:           time.Now(),
	}
}

// Progress reports extraction completion in percent.
func (t *Task) Progress() float64 {
	if t.TotalBytes == 0 {
		return 0
	}
	return float64(t.ExtractedBytes) / float64(t.TotalBytes) * 100
}

// Terminal reports whether the task has reached a final state.
func (t *Task) Terminal() bool {
	switch t.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func (t *Task) recordFailure(path, reason string) {
	t.FailedMembers = append(t.FailedMembers, FailedMember{Path: path, Reason: reason})
}
