package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/vm-wylbur/ntt-sub000"
	"github.com/vm-wylbur/ntt-sub000/db"
)

func claimedInode(inodeNumber uint64) db.ClaimedInode {
	return db.ClaimedInode{Inode: ntt.Inode{MediumHash: "med1", Device: 1, InodeNumber: inodeNumber}}
}

func TestRunBatchReleasesOnExecuteError(t *testing.T) {
	var released []uint64
	releaseFn := func(ctx context.Context, mediumHash string, device, inodeNumber uint64) error {
		released = append(released, inodeNumber)
		return nil
	}

	results, err := RunBatch(context.Background(), []db.ClaimedInode{claimedInode(1)}, func() bool { return false }, releaseFn,
		func(ctx context.Context, ci db.ClaimedInode) (Outcome, error) {
			return Outcome{}, errors.New("analyze failed")
		})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %v, want none", results)
	}
	if len(released) != 1 || released[0] != 1 {
		t.Errorf("released = %v, want [1]", released)
	}
}

func TestRunBatchReleasesReleasedOutcomeInsteadOfCommitting(t *testing.T) {
	var released []uint64
	releaseFn := func(ctx context.Context, mediumHash string, device, inodeNumber uint64) error {
		released = append(released, inodeNumber)
		return nil
	}

	results, err := RunBatch(context.Background(), []db.ClaimedInode{claimedInode(2)}, func() bool { return false }, releaseFn,
		func(ctx context.Context, ci db.ClaimedInode) (Outcome, error) {
			return Outcome{MediumHash: "med1", Device: 1, InodeNumber: 2, Released: true}, nil
		})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %v, want none — a Released outcome must not reach CommitBatch", results)
	}
	if len(released) != 1 || released[0] != 2 {
		t.Errorf("released = %v, want [2]", released)
	}
}

func TestRunBatchCommitsSuccessfulOutcomes(t *testing.T) {
	releaseFn := func(ctx context.Context, mediumHash string, device, inodeNumber uint64) error {
		t.Fatalf("releaseFn called for a successful outcome")
		return nil
	}

	results, err := RunBatch(context.Background(), []db.ClaimedInode{claimedInode(3)}, func() bool { return false }, releaseFn,
		func(ctx context.Context, ci db.ClaimedInode) (Outcome, error) {
			return Outcome{MediumHash: "med1", Device: 1, InodeNumber: 3, Status: ntt.StatusSuccess}, nil
		})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if len(results) != 1 || results[0].InodeNumber != 3 {
		t.Errorf("results = %v, want one result for inode 3", results)
	}
}

func TestRunBatchStopsAndReleasesOnCancellation(t *testing.T) {
	var released []uint64
	releaseFn := func(ctx context.Context, mediumHash string, device, inodeNumber uint64) error {
		released = append(released, inodeNumber)
		return nil
	}

	called := false
	results, err := RunBatch(context.Background(), []db.ClaimedInode{claimedInode(4)}, func() bool { return true }, releaseFn,
		func(ctx context.Context, ci db.ClaimedInode) (Outcome, error) {
			called = true
			return Outcome{}, nil
		})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if called {
		t.Error("executeFn called after cancellation reported true")
	}
	if len(results) != 0 {
		t.Errorf("results = %v, want none", results)
	}
	if len(released) != 1 || released[0] != 4 {
		t.Errorf("released = %v, want [4]", released)
	}
}
