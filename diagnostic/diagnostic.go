// Package diagnostic implements the per-inode retry checkpoint
// algorithm (C2) and its deferred, post-commit recording discipline
// (spec.md §4.2).
package diagnostic

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/vm-wylbur/ntt-sub000"
)

const (
	// Checkpoint is the retry count at which diagnose_at_checkpoint runs.
	Checkpoint = 10
	// MaxRetry forces a permanent skip once reached without an earlier
	// terminal decision.
	MaxRetry = 50
)

// Tracker holds the in-memory (medium_hash, inode_number) -> retry_count
// map a single worker process maintains; this state is never
// persisted — a worker restart starts every inode's count back at
// zero, which is safe because the checkpoint/max-retry thresholds are
// soft guidance, not correctness-critical (spec.md §4.2).
type Tracker struct {
	mu      sync.Mutex
	retries map[key]int
}

type key struct {
	mediumHash  string
	inodeNumber uint64
}

func NewTracker() *Tracker {
	return &Tracker{retries: make(map[key]int)}
}

// Decision is the per-failure outcome of the checkpoint algorithm.
type Decision struct {
	RetryCount int
	// Event is non-nil only when a checkpoint or forced-skip fired;
	// the caller queues it rather than writing it immediately.
	Event *ntt.DiagnosticEvent
	// ForceSkip is true when MaxRetry was reached without an earlier
	// permanent decision, overriding whatever error_type Classify
	// originally produced.
	ForceSkip bool
}

// KernelLogReader scans a bounded tail of the kernel log for known
// failure signatures. Grounded on the imager's own dmesg-scanning
// approach (spec.md §9), generalized into a package the diagnostic
// service can call without shelling out.
type KernelLogReader interface {
	// Scan returns the tags of every known signature found in the
	// trailing portion of the kernel log.
	Scan(ctx context.Context) ([]string, error)
}

// DmesgReader reads /var/log/kern.log-style text, looking for the
// signatures spec.md §4.2 names: beyond_eof, fat_error, io_error.
type DmesgReader struct {
	Path    string
	TailMax int
}

var knownSignatures = map[string]string{
	"beyond end of device": "beyond_eof",
	"beyond EOF":           "beyond_eof",
	"FAT-fs":               "fat_error",
	"I/O error":            "io_error",
}

func (d DmesgReader) Scan(ctx context.Context) ([]string, error) {
	f, err := os.Open(d.Path)
	if err != nil {
		return nil, fmt.Errorf("open kernel log %s: %w", d.Path, err)
	}
	defer f.Close()

	tailMax := d.TailMax
	if tailMax <= 0 {
		tailMax = 10000
	}

	var tail []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tail = append(tail, scanner.Text())
		if len(tail) > tailMax {
			tail = tail[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan kernel log: %w", err)
	}

	seen := map[string]bool{}
	var tags []string
	for _, line := range tail {
		for signature, tag := range knownSignatures {
			if strings.Contains(line, signature) && !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	return tags, nil
}

// MountChecker stats the medium's expected mount point, one of the
// checks diagnose_at_checkpoint assembles into checks[].
type MountChecker interface {
	MountPointExists(ctx context.Context, mediumHash string) bool
}

// OSMountChecker is the default MountChecker, using os.Stat against a
// well-known mount root.
type OSMountChecker struct {
	MountRoot string
}

func (c OSMountChecker) MountPointExists(ctx context.Context, mediumHash string) bool {
	_, err := os.Stat(c.MountRoot + string(os.PathSeparator) + mediumHash)
	return err == nil
}

// OnFailure runs the checkpoint algorithm for one failed attempt at
// inodeNumber on mediumHash, given the error just classified. It is
// the only entry point diagnostic-aware callers (the worker loop in
// cmd/ntt-copier) need.
func (t *Tracker) OnFailure(ctx context.Context, mediumHash string, inodeNumber uint64, errType ntt.ErrorType, log KernelLogReader, mount MountChecker) Decision {
	k := key{mediumHash, inodeNumber}

	t.mu.Lock()
	t.retries[k]++
	count := t.retries[k]
	t.mu.Unlock()

	d := Decision{RetryCount: count}

	checkpointHit := count == Checkpoint
	maxHit := count >= MaxRetry

	if !checkpointHit && !maxHit {
		return d
	}

	var checks []string
	if log != nil {
		if tags, err := log.Scan(ctx); err == nil {
			checks = append(checks, tags...)
		}
	}
	beyondEOF := containsTag(checks, "beyond_eof")

	if mount != nil && !mount.MountPointExists(ctx, mediumHash) {
		checks = append(checks, "mount_missing")
	}

	permanent := errType.IsPermanent()
	action := "continuing"
	if beyondEOF || permanent {
		action = "diagnostic_skip"
	}
	if maxHit && action != "diagnostic_skip" {
		action = "diagnostic_skip"
		d.ForceSkip = true
		errType = ntt.ErrorTypeUnknown
	}

	d.Event = &ntt.DiagnosticEvent{
		InodeNumber: inodeNumber,
		RetryCount:  count,
		ErrorType:   errType,
		Checks:      checks,
		Action:      action,
		At:          time.Now(),
	}
	return d
}

func containsTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

// Reset clears the retry count for one inode. The worker loop calls it
// when an attempt ends in neither a failed_* status nor a released
// claim (i.e. on success); failed attempts keep their count.
func (t *Tracker) Reset(mediumHash string, inodeNumber uint64) {
	t.mu.Lock()
	delete(t.retries, key{mediumHash, inodeNumber})
	t.mu.Unlock()
}
