package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/legalease/internal/fileid"
	"github.com/hyperjump/legalease/internal/indexer"
	"github.com/hyperjump/legalease/internal/models"
)

type fakeTarget struct {
	mu        sync.Mutex
	ingested  []string
	deleted   []string
	unchanged map[string]bool
}

func (f *fakeTarget) IngestPath(_ context.Context, path string, _ []string) (*models.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unchanged[path] {
		return nil, indexer.ErrUnchanged
	}
	f.ingested = append(f.ingested, path)
	return &models.IngestResult{DocumentID: fileid.FileDocID(path), ChunkCount: 1}, nil
}

func (f *fakeTarget) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeTarget) snapshot() (ingested, deleted []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ingested...), append([]string(nil), f.deleted...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startInbox(t *testing.T, target Target, roots []string, exts []string) *Inbox {
	t.Helper()
	in := New(target, roots, exts, true, WithDebounce(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := in.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(in.Stop)
	return in
}

func TestInbox_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	in := startInbox(t, &fakeTarget{}, nil, []string{".txt"})

	if err := in.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	if err := in.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	dirs := in.Directories()
	if len(dirs) != 1 || dirs[0] != filepath.Clean(dir) {
		t.Errorf("Directories() = %v", dirs)
	}
	if err := in.RemoveDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if len(in.Directories()) != 0 {
		t.Errorf("after remove: %v", in.Directories())
	}
}

func TestInbox_AddDirectoryBeforeStart(t *testing.T) {
	in := New(&fakeTarget{}, nil, nil, true)
	if err := in.AddDirectory(t.TempDir(), false); err == nil {
		t.Error("expected error when inbox is not running")
	}
}

func TestInbox_IngestsNewFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "contracts")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	target := &fakeTarget{}
	startInbox(t, target, []string{dir}, []string{".txt"})

	lease := filepath.Join(sub, "lease.txt")
	if err := os.WriteFile(lease, []byte("The Tenant shall pay rent."), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "scan.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "~$lease.txt"), []byte("lock"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		ingested, _ := target.snapshot()
		return len(ingested) >= 1
	})
	time.Sleep(100 * time.Millisecond)
	ingested, _ := target.snapshot()
	for _, p := range ingested {
		if p != lease {
			t.Errorf("unexpected ingest of %s", p)
		}
	}

	if err := os.Remove(lease); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		_, deleted := target.snapshot()
		return len(deleted) == 1
	})
	_, deleted := target.snapshot()
	if deleted[0] != fileid.FileDocID(lease) {
		t.Errorf("deleted %q, want %q", deleted[0], fileid.FileDocID(lease))
	}
}

func TestInbox_SyncExisting(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "nested", "b.txt")
	if err := os.MkdirAll(filepath.Dir(b), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{a, b, filepath.Join(dir, ".hidden.txt"), filepath.Join(dir, "notes.md")} {
		if err := os.WriteFile(p, []byte("text"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	target := &fakeTarget{unchanged: map[string]bool{b: true}}
	var results sync.Map
	in := New(target, []string{dir}, []string{".txt"}, true,
		WithResultHandler(func(path string, _ *models.IngestResult, err error) { results.Store(path, err) }))
	in.SyncExisting()

	ingested, _ := target.snapshot()
	if len(ingested) != 1 || ingested[0] != a {
		t.Errorf("ingested = %v, want [%s]", ingested, a)
	}
	if err, ok := results.Load(b); !ok || err != indexer.ErrUnchanged {
		t.Errorf("result for unchanged file = %v, %v", err, ok)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.PDF", []string{"pdf"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b.docx", nil, true},
		{"/a/b", nil, false},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestIgnored(t *testing.T) {
	tests := map[string]bool{
		"/in/lease.pdf":           false,
		"/in/.DS_Store":           true,
		"/in/~$contract.docx":     true,
		"/in/contract.pdf.part":   true,
		"/in/download.crdownload": true,
	}
	for path, want := range tests {
		if got := ignored(path); got != want {
			t.Errorf("ignored(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}
