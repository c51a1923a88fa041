package mount

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/vm-wylbur/ntt-sub000"
)

type fakeHelper struct {
	mountCalls   int32
	unmountCalls int32
	mounted      bool
	overmounted  bool
}

func (h *fakeHelper) Mount(ctx context.Context, mediumHash, imagePath string) error {
	atomic.AddInt32(&h.mountCalls, 1)
	h.mounted = true
	return nil
}

func (h *fakeHelper) Unmount(ctx context.Context, mediumHash string) error {
	atomic.AddInt32(&h.unmountCalls, 1)
	h.overmounted = false
	return nil
}

func (h *fakeHelper) Status(ctx context.Context, mediumHash string) (bool, bool, error) {
	return h.mounted, h.overmounted, nil
}

type fakeHealth struct {
	health ntt.Health
}

func (h fakeHealth) Health(ctx context.Context, mediumHash string) (ntt.Health, error) {
	return h.health, nil
}

func TestCoordinatorMountsOnce(t *testing.T) {
	helper := &fakeHelper{}
	c := NewCoordinator(t.TempDir(), helper, fakeHealth{health: ntt.HealthOK})

	if err := c.Ensure(context.Background(), "abc123", "/mnt/images/abc123.img"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := c.Ensure(context.Background(), "abc123", "/mnt/images/abc123.img"); err != nil {
		t.Fatalf("Ensure (second call): %v", err)
	}
	if helper.mountCalls != 1 {
		t.Errorf("mountCalls = %d, want 1 (fast-path cache should skip the second call)", helper.mountCalls)
	}
}

func TestCoordinatorRefusesFailedMedium(t *testing.T) {
	helper := &fakeHelper{}
	c := NewCoordinator(t.TempDir(), helper, fakeHealth{health: ntt.HealthFailed})

	err := c.Ensure(context.Background(), "deadbeef", "/mnt/images/deadbeef.img")
	if err == nil {
		t.Fatal("Ensure on a failed medium: want error, got nil")
	}
	var refused *RefusedError
	if !errors.As(err, &refused) {
		t.Fatalf("Ensure error = %v, want *RefusedError", err)
	}
	if helper.mountCalls != 0 {
		t.Errorf("mountCalls = %d, want 0 (must refuse before invoking the helper)", helper.mountCalls)
	}
}

func TestCoordinatorUnwindsOvermount(t *testing.T) {
	helper := &fakeHelper{mounted: true, overmounted: true}
	c := NewCoordinator(t.TempDir(), helper, fakeHealth{health: ntt.HealthOK})

	if err := c.Ensure(context.Background(), "ghi789", "/mnt/images/ghi789.img"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if helper.unmountCalls != 1 {
		t.Errorf("unmountCalls = %d, want 1", helper.unmountCalls)
	}
	if helper.mountCalls != 1 {
		t.Errorf("mountCalls = %d, want 1", helper.mountCalls)
	}
}
