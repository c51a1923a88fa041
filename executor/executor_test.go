package executor

import (
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/vm-wylbur/ntt-sub000"
	"github.com/vm-wylbur/ntt-sub000/analyzer"
)

type fakeLinker struct {
	links  map[string]int
	failOn string
}

func newFakeLinker() *fakeLinker { return &fakeLinker{links: map[string]int{}} }

func (f *fakeLinker) LinkInto(ctx context.Context, hash, archivePath string) error {
	if archivePath == f.failOn {
		return fs.ErrNotExist
	}
	f.links[hash]++
	return nil
}

func TestExecuteFilesystemHandleEmpty(t *testing.T) {
	linker := newFakeLinker()
	in := ntt.Inode{FsType: ntt.FsTypeFile, Size: 0}
	plan := analyzer.Plan{HandleEmpty: &analyzer.HandleEmpty{
		Paths: []ntt.Path{{PathBytes: []byte("a")}, {PathBytes: []byte("b")}},
	}}

	out := ExecuteFilesystem(context.Background(), in, plan, "/archive", linker)

	if out.Status != ntt.StatusSuccess {
		t.Fatalf("Status = %v, want success", out.Status)
	}
	if out.BlobID != ntt.EmptyBlobHash {
		t.Errorf("BlobID = %s, want %s", out.BlobID, ntt.EmptyBlobHash)
	}
	if out.NewHardlinks != 2 {
		t.Errorf("NewHardlinks = %d, want 2", out.NewHardlinks)
	}
}

func TestExecuteFilesystemPublishNewBlob(t *testing.T) {
	linker := newFakeLinker()
	in := ntt.Inode{FsType: ntt.FsTypeFile, Size: 10}
	plan := analyzer.Plan{PublishNewBlob: &analyzer.PublishNewBlob{
		Hash:     "deadbeef",
		MimeType: "text/plain",
		Paths:    []ntt.Path{{PathBytes: []byte("file.txt")}},
	}}

	out := ExecuteFilesystem(context.Background(), in, plan, "/archive", linker)

	if out.Status != ntt.StatusSuccess {
		t.Fatalf("Status = %v, want success", out.Status)
	}
	if len(out.PathUpdates) != 1 || out.PathUpdates[0].MimeType != "text/plain" {
		t.Errorf("PathUpdates = %+v, want one text/plain update", out.PathUpdates)
	}
}

func TestExecuteFilesystemFirstLinkFailureClassifies(t *testing.T) {
	linker := newFakeLinker()
	linker.failOn = "file.txt"
	in := ntt.Inode{FsType: ntt.FsTypeFile, Size: 10}
	plan := analyzer.Plan{PublishNewBlob: &analyzer.PublishNewBlob{
		Hash:  "deadbeef",
		Paths: []ntt.Path{{PathBytes: []byte("file.txt")}},
	}}

	out := ExecuteFilesystem(context.Background(), in, plan, "/archive", linker)

	if out.Status != ntt.StatusFailedRetryable {
		t.Fatalf("Status = %v, want failed_retryable (path_error is retryable)", out.Status)
	}
	if out.ErrorType != ntt.ErrorTypePath {
		t.Errorf("ErrorType = %v, want path_error", out.ErrorType)
	}
}

func TestExecuteFilesystemSkip(t *testing.T) {
	plan := analyzer.Plan{Skip: &analyzer.Skip{Reason: "unrecognized fs_type"}}
	out := ExecuteFilesystem(context.Background(), ntt.Inode{}, plan, "/archive", newFakeLinker())

	if out.Status != ntt.StatusFailedPermanent {
		t.Errorf("Status = %v, want failed_permanent", out.Status)
	}
}

func TestFailClassifiesPermanentVsRetryable(t *testing.T) {
	permanent := fail(Outcome{}, errors.New("beyond EOF on device"), 0)
	if permanent.Status != ntt.StatusFailedPermanent {
		t.Errorf("io-classified error: Status = %v, want failed_permanent", permanent.Status)
	}

	retryable := fail(Outcome{}, fs.ErrNotExist, 0)
	if retryable.Status != ntt.StatusFailedRetryable {
		t.Errorf("path-classified error: Status = %v, want failed_retryable", retryable.Status)
	}
}

func TestFailWithPartialLinksReleasesInsteadOfCrediting(t *testing.T) {
	out := fail(Outcome{}, fs.ErrNotExist, 2)
	if !out.Released {
		t.Fatal("Released = false, want true when a hardlink already succeeded before the failure")
	}
	if out.Status != "" {
		t.Errorf("Status = %v, want empty — a released outcome must not reach a terminal state", out.Status)
	}
	if out.NewHardlinks != 0 || out.BlobID != "" {
		t.Errorf("NewHardlinks/BlobID = %d/%q, want 0/empty — partial links must not be credited", out.NewHardlinks, out.BlobID)
	}
}
