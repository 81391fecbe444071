package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Policy decides what happens when a destination path already exists.
type Policy string

const (
	PolicyAsk       Policy = "ask"
	PolicyOverwrite Policy = "overwrite"
	PolicySkip      Policy = "skip"
	PolicyRename    Policy = "rename"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyAsk:
		return PolicyAsk, nil
	case PolicyOverwrite:
		return PolicyOverwrite, nil
	case PolicySkip:
		return PolicySkip, nil
	case PolicyRename:
		return PolicyRename, nil
	default:
		return "", fmt.Errorf("unknown conflict policy %q", s)
	}
}

// Decision is one resolved conflict.
type Decision int

const (
	DecisionOverwrite Decision = iota
	DecisionSkip
	DecisionRename
)

// ConflictResolver supplies decisions for PolicyAsk. The engine never
// talks to a user directly; callers that want interactive resolution
// implement this and hand it to the task.
type ConflictResolver interface {
	Resolve(existingPath string) Decision
}

// ResolverFunc adapts a function to the ConflictResolver interface.
type ResolverFunc func(existingPath string) Decision

func (f ResolverFunc) Resolve(existingPath string) Decision { return f(existingPath) }

// resolveConflict maps an existing target path to the path that should
// actually be written, or skip. Deterministic for every policy except
// Ask, which defers to the task's resolver.
func resolveConflict(target string, policy Policy, resolver ConflictResolver) (string, bool) {
	decision := DecisionOverwrite
	switch policy {
	case PolicyOverwrite:
		decision = DecisionOverwrite
	case PolicySkip:
		decision = DecisionSkip
	case PolicyRename:
		decision = DecisionRename
	case PolicyAsk:
		decision = resolver.Resolve(target)
	}
	switch decision {
	case DecisionSkip:
		return "", true
	case DecisionRename:
		return uniquePath(target), false
	default:
		return target, false
	}
}

// uniquePath probes "name (1).ext", "name (2).ext", ... and returns the
// first candidate that does not exist. Falls back to a timestamp suffix
// after an unreasonable number of collisions.
func uniquePath(path string) string {
	if _, err := os.Lstat(path); err != nil {
		return path
	}
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	for counter := 1; counter <= 10000; counter++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, counter, ext))
		if _, err := os.Lstat(candidate); err != nil {
			return candidate
		}
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, time.Now().UnixMilli(), ext))
}
