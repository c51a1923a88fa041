package diagnostic

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vm-wylbur/ntt-sub000"
)

type fakeLog struct {
	tags []string
}

func (f fakeLog) Scan(ctx context.Context) ([]string, error) { return f.tags, nil }

type fakeMount struct{ exists bool }

func (f fakeMount) MountPointExists(ctx context.Context, mediumHash string) bool { return f.exists }

func TestOnFailureBelowCheckpointQueuesNoEvent(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < Checkpoint-1; i++ {
		d := tr.OnFailure(context.Background(), "med1", 42, ntt.ErrorTypePath, fakeLog{}, fakeMount{exists: true})
		if d.Event != nil {
			t.Fatalf("attempt %d: unexpected event before checkpoint", i+1)
		}
	}
}

func TestOnFailureAtCheckpointContinuing(t *testing.T) {
	tr := NewTracker()
	var last Decision
	for i := 0; i < Checkpoint; i++ {
		last = tr.OnFailure(context.Background(), "med1", 42, ntt.ErrorTypePath, fakeLog{}, fakeMount{exists: true})
	}
	if last.Event == nil {
		t.Fatal("expected a diagnostic event at the checkpoint")
	}
	if last.Event.Action != "continuing" {
		t.Errorf("Action = %s, want continuing (path_error is retryable, no beyond_eof signal)", last.Event.Action)
	}
}

func TestOnFailureBeyondEOFForcesSkip(t *testing.T) {
	tr := NewTracker()
	var last Decision
	for i := 0; i < Checkpoint; i++ {
		last = tr.OnFailure(context.Background(), "med1", 42, ntt.ErrorTypePath, fakeLog{tags: []string{"beyond_eof"}}, fakeMount{exists: true})
	}
	if last.Event == nil || last.Event.Action != "diagnostic_skip" {
		t.Fatalf("Event = %+v, want diagnostic_skip action", last.Event)
	}
}

func TestOnFailurePermanentErrorSkipsAtCheckpoint(t *testing.T) {
	tr := NewTracker()
	var last Decision
	for i := 0; i < Checkpoint; i++ {
		last = tr.OnFailure(context.Background(), "med1", 42, ntt.ErrorTypeIO, fakeLog{}, fakeMount{exists: true})
	}
	if last.Event == nil || last.Event.Action != "diagnostic_skip" {
		t.Fatalf("Event = %+v, want diagnostic_skip for a permanent error_type", last.Event)
	}
}

func TestOnFailureMaxRetryForcesSkip(t *testing.T) {
	tr := NewTracker()
	var last Decision
	for i := 0; i < MaxRetry; i++ {
		last = tr.OnFailure(context.Background(), "med1", 42, ntt.ErrorTypePath, fakeLog{}, fakeMount{exists: true})
	}
	if !last.ForceSkip {
		t.Fatal("ForceSkip = false at MaxRetry, want true")
	}
	if last.Event.ErrorType != ntt.ErrorTypeUnknown {
		t.Errorf("ErrorType = %v, want unknown after forced skip", last.Event.ErrorType)
	}
}

func TestDmesgReaderFindsKnownSignatures(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "kern.log")
	content := "Jan 1 00:00:00 host kernel: attempt to access beyond end of device sda1\n"
	if err := os.WriteFile(logPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r := DmesgReader{Path: logPath}
	tags, err := r.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(tags) != 1 || tags[0] != "beyond_eof" {
		t.Errorf("tags = %v, want [beyond_eof]", tags)
	}
}

func TestResetClearsCount(t *testing.T) {
	tr := NewTracker()
	tr.OnFailure(context.Background(), "med1", 42, ntt.ErrorTypePath, fakeLog{}, fakeMount{exists: true})
	tr.Reset("med1", 42)
	d := tr.OnFailure(context.Background(), "med1", 42, ntt.ErrorTypePath, fakeLog{}, fakeMount{exists: true})
	if d.RetryCount != 1 {
		t.Errorf("RetryCount after reset = %d, want 1", d.RetryCount)
	}
}
