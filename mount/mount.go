// Package mount implements per-medium mount acquisition (part of C4):
// a cross-process advisory lock serializes the privileged mount helper
// invocation so that N racing workers never stack mounts or exhaust
// the kernel's loop-device budget (spec.md §4.4).
package mount

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/vm-wylbur/ntt-sub000"
)

// Helper runs the privileged mount helper as a subprocess. The actual
// imaging/mount helper is an external collaborator (spec.md §1,
// "mount management"); this package only defines the argv contract
// and invokes it.
type Helper interface {
	// Mount invokes the helper to mount imagePath read-only at the
	// medium's well-known mount point.
	Mount(ctx context.Context, mediumHash, imagePath string) error
	// Unmount invokes the helper to unwind an existing mount, used
	// when Coordinator detects and unwinds an overmount.
	Unmount(ctx context.Context, mediumHash string) error
	// Status reports whether the medium is currently mounted.
	Status(ctx context.Context, mediumHash string) (mounted bool, overmounted bool, err error)
}

// ExecHelper shells out to an external "mount-helper" binary with
// argv0 subcommands "mount"/"unmount"/"status", matching the contract
// spec.md §6 describes for the privileged helper: "status" exits 0
// when the medium is mounted (printing "overmounted" when filesystems
// are stacked on the mount point) and 1 when it is not.
type ExecHelper struct {
	// BinPath is the path to the mount-helper binary.
	BinPath string
}

func (h ExecHelper) Mount(ctx context.Context, mediumHash, imagePath string) error {
	return run(ctx, h.BinPath, "mount", mediumHash, imagePath)
}

func (h ExecHelper) Unmount(ctx context.Context, mediumHash string) error {
	return run(ctx, h.BinPath, "unmount", mediumHash)
}

func (h ExecHelper) Status(ctx context.Context, mediumHash string) (bool, bool, error) {
	out, err := exec.CommandContext(ctx, h.BinPath, "status", mediumHash).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return false, false, nil
		}
		return false, false, fmt.Errorf("mount-helper status: %w", err)
	}
	switch string(out) {
	case "overmounted\n", "overmounted":
		return true, true, nil
	default:
		return true, false, nil
	}
}

func run(ctx context.Context, bin string, args ...string) error {
	if out, err := exec.CommandContext(ctx, bin, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("mount-helper %v: %w: %s", args, err, out)
	}
	return nil
}

// HealthChecker looks up a medium's health classification, backed by
// package db in production.
type HealthChecker interface {
	Health(ctx context.Context, mediumHash string) (ntt.Health, error)
}

// RefusedError is returned when a medium's health forbids mounting.
type RefusedError struct {
	MediumHash string
	Health     ntt.Health
}

func (e *RefusedError) Error() string {
	return fmt.Sprintf("medium %s has health %q, refusing to mount", e.MediumHash, e.Health)
}

// Coordinator ensures a medium is mounted before a worker reads its
// files, serializing the privileged helper invocation across
// processes via a lock file and across goroutines in this process via
// an in-memory cache, per the 7-step discipline in spec.md §4.4.
//
// Grounded on untoldecay/BeadsLog's cmd/bd/sync.go lock-file pattern
// (flock.New + TryLock/Unlock around a critical section), generalized
// from a single global sync lock to one lock file per medium_hash.
type Coordinator struct {
	LockDir string
	Helper  Helper
	Health  HealthChecker

	mu      sync.Mutex
	mounted map[string]bool
}

// NewCoordinator constructs a Coordinator. lockDir is typically
// /var/lock/ntt.
func NewCoordinator(lockDir string, helper Helper, health HealthChecker) *Coordinator {
	return &Coordinator{
		LockDir: lockDir,
		Helper:  helper,
		Health:  health,
		mounted: make(map[string]bool),
	}
}

// Ensure mounts mediumHash if not already mounted, following spec.md
// §4.4's fast-path/lock/recheck/health-check/overmount-unwind/mount
// sequence.
func (c *Coordinator) Ensure(ctx context.Context, mediumHash, imagePath string) error {
	// Step 1: fast path.
	c.mu.Lock()
	if c.mounted[mediumHash] {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// Step 2: acquire the per-medium exclusive lock (blocking).
	lock := flock.New(filepath.Join(c.LockDir, fmt.Sprintf("mount-%s.lock", mediumHash)))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire mount lock for %s: %w", mediumHash, err)
	}
	defer func() { _ = lock.Unlock() }()

	// Step 3: re-check mount state now that we hold the lock.
	mounted, overmounted, err := c.Helper.Status(ctx, mediumHash)
	if err != nil {
		return fmt.Errorf("check mount status for %s: %w", mediumHash, err)
	}
	if mounted && !overmounted {
		c.markMounted(mediumHash)
		return nil
	}

	// Step 4: consult health before ever invoking the helper.
	health, err := c.Health.Health(ctx, mediumHash)
	if err != nil {
		return fmt.Errorf("lookup health for %s: %w", mediumHash, err)
	}
	if health == ntt.HealthFailed {
		return &RefusedError{MediumHash: mediumHash, Health: health}
	}

	// Step 5: detect and unwind overmounts before mounting.
	if overmounted {
		if err := c.Helper.Unmount(ctx, mediumHash); err != nil {
			return fmt.Errorf("unwind overmount for %s: %w", mediumHash, err)
		}
	}

	// Step 6: invoke the privileged mount helper.
	if err := c.Helper.Mount(ctx, mediumHash, imagePath); err != nil {
		return fmt.Errorf("mount %s: %w", mediumHash, err)
	}

	c.markMounted(mediumHash)
	return nil
	// Step 7 (release the lock) happens via the deferred Unlock above.
}

func (c *Coordinator) markMounted(mediumHash string) {
	c.mu.Lock()
	c.mounted[mediumHash] = true
	c.mu.Unlock()
}
