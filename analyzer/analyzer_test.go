package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vm-wylbur/ntt-sub000"
)

// fakeStager simulates blobstore.Store.StageAndPublish without
// touching the filesystem, so analyzer tests exercise the decision
// logic in isolation.
type fakeStager struct {
	known map[string]bool
}

func newFakeStager() *fakeStager { return &fakeStager{known: map[string]bool{}} }

func (f *fakeStager) StageAndPublish(ctx context.Context, read func(w *os.File) (string, error), tempToken string) (string, bool, error) {
	tmp, err := os.CreateTemp("", "analyzer-test-*")
	if err != nil {
		return "", false, err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	hash, err := read(tmp)
	if err != nil {
		return "", false, err
	}
	if f.known[hash] {
		return hash, false, nil
	}
	f.known[hash] = true
	return hash, true, nil
}

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestAnalyzeEmptyFile(t *testing.T) {
	in := ntt.Inode{FsType: ntt.FsTypeFile, Size: 0}
	plan, err := Analyze(context.Background(), in, nil, "", newFakeStager(), "tok")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if plan.HandleEmpty == nil {
		t.Fatalf("expected HandleEmpty plan, got %+v", plan)
	}
}

func TestAnalyzeNewThenExistingBlob(t *testing.T) {
	dir := t.TempDir()
	p1 := writeFile(t, dir, "a", []byte("same content"))
	p2 := writeFile(t, dir, "b", []byte("same content"))

	stager := newFakeStager()
	in := ntt.Inode{FsType: ntt.FsTypeFile, Size: 12}

	plan1, err := Analyze(context.Background(), in, nil, p1, stager, "tok1")
	if err != nil {
		t.Fatalf("Analyze 1: %v", err)
	}
	if plan1.PublishNewBlob == nil {
		t.Fatalf("first analyze of new content: want PublishNewBlob, got %+v", plan1)
	}

	plan2, err := Analyze(context.Background(), in, nil, p2, stager, "tok2")
	if err != nil {
		t.Fatalf("Analyze 2: %v", err)
	}
	if plan2.LinkExistingBlob == nil {
		t.Fatalf("second analyze of identical content: want LinkExistingBlob, got %+v", plan2)
	}
	if plan1.PublishNewBlob.Hash != plan2.LinkExistingBlob.Hash {
		t.Errorf("hashes differ: %s vs %s", plan1.PublishNewBlob.Hash, plan2.LinkExistingBlob.Hash)
	}
}

func TestAnalyzeDirectory(t *testing.T) {
	in := ntt.Inode{FsType: ntt.FsTypeDirectory}
	paths := []ntt.Path{{PathBytes: []byte("b")}, {PathBytes: []byte("a")}}
	plan, err := Analyze(context.Background(), in, paths, "", newFakeStager(), "tok")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if plan.CreateDirectory == nil {
		t.Fatalf("expected CreateDirectory plan, got %+v", plan)
	}
	if string(plan.CreateDirectory.Paths[0].PathBytes) != "a" {
		t.Errorf("paths not sorted lexicographically: %+v", plan.CreateDirectory.Paths)
	}
}

func TestAnalyzeSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	writeFile(t, dir, "target.txt", []byte("x"))
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	in := ntt.Inode{FsType: ntt.FsTypeSymlink}
	plan, err := Analyze(context.Background(), in, nil, link, newFakeStager(), "tok")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if plan.CreateSymlink == nil || string(plan.CreateSymlink.Target) != target {
		t.Fatalf("CreateSymlink.Target = %q, want %q", plan.CreateSymlink, target)
	}
}

func TestAnalyzeSpecialFile(t *testing.T) {
	in := ntt.Inode{FsType: ntt.FsTypeSocket}
	plan, err := Analyze(context.Background(), in, nil, "", newFakeStager(), "tok")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if plan.RecordSpecial == nil {
		t.Fatalf("expected RecordSpecial plan, got %+v", plan)
	}
}

func TestAnalyzeUnknownFsType(t *testing.T) {
	in := ntt.Inode{FsType: "?"}
	plan, err := Analyze(context.Background(), in, nil, "", newFakeStager(), "tok")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if plan.Skip == nil {
		t.Fatalf("expected Skip plan, got %+v", plan)
	}
}
