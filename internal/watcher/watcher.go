// Package watcher ingests documents dropped into inbox directories and
// removes them from the index when their files are deleted.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/legalease/internal/fileid"
	"github.com/hyperjump/legalease/internal/indexer"
	"github.com/hyperjump/legalease/internal/models"
	"github.com/hyperjump/legalease/pkg/utils"
)

const defaultDebounce = 400 * time.Millisecond

// Target is where inbox files go. *analysis.Service implements it.
type Target interface {
	IngestPath(ctx context.Context, path string, allowedExts []string) (*models.IngestResult, error)
	Delete(ctx context.Context, documentID string) error
}

// Inbox watches directories and keeps the index in sync with their files.
// Writes are debounced per file so a document copied in several writes is
// ingested once.
type Inbox struct {
	target     Target
	extensions []string
	recursive  bool
	debounce   time.Duration
	logger     *zap.Logger
	onResult   func(path string, res *models.IngestResult, err error)

	mu        sync.Mutex
	roots     []string
	rootPaths map[string][]string // root -> directories registered with fsnotify
	pending   map[string]*time.Timer
	fsw       *fsnotify.Watcher
	ctx       context.Context
	done      chan struct{}
	stopOnce  sync.Once
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(in *Inbox) { in.logger = l }
}

// WithDebounce sets how long a file must stay quiet before it is ingested.
func WithDebounce(d time.Duration) Option {
	return func(in *Inbox) { in.debounce = d }
}

// WithResultHandler registers a callback invoked after each ingest attempt.
// err is nil on success and indexer.ErrUnchanged for skipped files.
func WithResultHandler(fn func(path string, res *models.IngestResult, err error)) Option {
	return func(in *Inbox) { in.onResult = fn }
}

// New creates an inbox over roots. An empty extensions list accepts any file
// with an extension; formats the extractor cannot read fail at ingest.
func New(target Target, roots, extensions []string, recursive bool, opts ...Option) *Inbox {
	in := &Inbox{
		target:     target,
		extensions: extensions,
		recursive:  recursive,
		debounce:   defaultDebounce,
		roots:      append([]string(nil), roots...),
		rootPaths:  make(map[string][]string),
		pending:    make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(in)
	}
	in.logger = utils.OrNop(in.logger)
	return in
}

// Start registers the roots, creating missing ones, and processes events
// until ctx is cancelled or Stop is called.
func (in *Inbox) Start(ctx context.Context) error {
	in.mu.Lock()
	if in.fsw != nil {
		in.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		in.mu.Unlock()
		return err
	}
	in.fsw = fsw
	in.ctx = ctx
	for i, root := range in.roots {
		abs, err := filepath.Abs(root)
		if err == nil {
			err = in.addRootLocked(abs)
		}
		if err != nil {
			_ = fsw.Close()
			in.fsw = nil
			in.mu.Unlock()
			return err
		}
		in.roots[i] = abs
	}
	in.logger.Info("inbox watching",
		zap.Strings("roots", in.roots),
		zap.Strings("extensions", in.extensions),
		zap.Bool("recursive", in.recursive),
	)
	in.mu.Unlock()
	go in.run(ctx, fsw)
	return nil
}

func (in *Inbox) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			in.Stop()
			return
		case <-in.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			in.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			in.logger.Warn("inbox watch error", zap.Error(err))
		}
	}
}

func (in *Inbox) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !in.underRoot(path) || ignored(path) {
		return
	}
	in.logger.Debug("inbox event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			in.addSubdirectory(path)
			return
		}
		if in.accepts(path) {
			in.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		in.cancel(path)
		if in.accepts(path) {
			in.remove(path)
		}
	}
}

// addSubdirectory registers a directory created under a root and ingests
// whatever was moved in with it.
func (in *Inbox) addSubdirectory(dir string) {
	in.mu.Lock()
	fsw := in.fsw
	recursive := in.recursive
	in.mu.Unlock()
	if fsw == nil || !recursive {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				in.logger.Warn("inbox failed to watch directory", zap.String("path", path), zap.Error(err))
			}
		}
		return nil
	})
	in.sync(dir)
}

func (in *Inbox) schedule(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Stop()
	}
	in.pending[path] = time.AfterFunc(in.debounce, func() {
		in.mu.Lock()
		delete(in.pending, path)
		in.mu.Unlock()
		in.ingest(path)
	})
}

func (in *Inbox) cancel(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Stop()
		delete(in.pending, path)
	}
}

func (in *Inbox) baseContext() context.Context {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.ctx == nil {
		return context.Background()
	}
	return in.ctx
}

func (in *Inbox) ingest(path string) {
	res, err := in.target.IngestPath(in.baseContext(), path, in.extensions)
	switch {
	case errors.Is(err, indexer.ErrUnchanged):
		in.logger.Debug("inbox file unchanged", zap.String("path", path))
	case err != nil:
		in.logger.Warn("inbox ingest failed", zap.String("path", path), zap.Error(err))
	default:
		in.logger.Info("inbox ingested document",
			zap.String("path", path),
			zap.String("document_id", res.DocumentID),
			zap.Int("chunks", res.ChunkCount),
		)
	}
	if in.onResult != nil {
		in.onResult(path, res, err)
	}
}

func (in *Inbox) remove(path string) {
	id := fileid.FileDocID(path)
	if err := in.target.Delete(in.baseContext(), id); err != nil {
		in.logger.Warn("inbox delete failed", zap.String("path", path), zap.Error(err))
		return
	}
	in.logger.Info("inbox removed document", zap.String("path", path), zap.String("document_id", id))
}

func (in *Inbox) underRoot(path string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, root := range in.roots {
		if inDir(filepath.Clean(root), path) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ignored reports whether path is an editor lock file, a partial download or
// a hidden file.
func ignored(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "."), strings.HasPrefix(base, "~$"):
		return true
	case strings.HasSuffix(base, ".part"), strings.HasSuffix(base, ".crdownload"), strings.HasSuffix(base, ".tmp"):
		return true
	}
	return false
}

func (in *Inbox) accepts(path string) bool {
	return matchExtension(path, in.extensions)
}

func matchExtension(path string, extensions []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if len(extensions) == 0 {
		return ext != ""
	}
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// AddDirectory starts watching root and, when syncExisting is set, ingests
// the files already in it.
func (in *Inbox) AddDirectory(root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	in.mu.Lock()
	if in.fsw == nil {
		in.mu.Unlock()
		return errors.New("inbox is not running")
	}
	for _, r := range in.roots {
		if filepath.Clean(r) == abs {
			in.mu.Unlock()
			return nil
		}
	}
	if err := in.addRootLocked(abs); err != nil {
		in.mu.Unlock()
		return err
	}
	in.roots = append(in.roots, abs)
	in.mu.Unlock()

	in.logger.Info("inbox directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		go in.sync(abs)
	}
	return nil
}

func (in *Inbox) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	var paths []string
	if !in.recursive {
		if err := in.fsw.Add(root); err != nil {
			return err
		}
		in.rootPaths[root] = []string{root}
		return nil
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := in.fsw.Add(path); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return err
	}
	in.rootPaths[root] = paths
	return nil
}

// sync ingests every accepted file under root. Unchanged files are skipped
// by the indexer.
func (in *Inbox) sync(root string) {
	files, err := indexer.ListFiles(root, in.extensions)
	if err != nil {
		in.logger.Warn("inbox sync failed", zap.String("root", root), zap.Error(err))
		return
	}
	for _, path := range files {
		if !in.recursive && filepath.Dir(path) != filepath.Clean(root) {
			continue
		}
		if ignored(path) || !in.accepts(path) {
			continue
		}
		in.ingest(path)
	}
}

// RemoveDirectory stops watching root. Documents already ingested from it stay indexed.
func (in *Inbox) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	in.mu.Lock()
	defer in.mu.Unlock()
	for i, r := range in.roots {
		if filepath.Clean(r) != abs {
			continue
		}
		if in.fsw != nil {
			for _, p := range in.rootPaths[abs] {
				_ = in.fsw.Remove(p)
			}
		}
		delete(in.rootPaths, abs)
		in.roots = append(in.roots[:i], in.roots[i+1:]...)
		in.logger.Info("inbox directory removed", zap.String("path", abs))
		return nil
	}
	return nil
}

// Directories returns the watched roots.
func (in *Inbox) Directories() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.roots...)
}

// SyncExisting ingests the files already present in every root.
func (in *Inbox) SyncExisting() {
	for _, root := range in.Directories() {
		in.sync(root)
	}
}

// Stop stops watching and drops pending ingests.
func (in *Inbox) Stop() {
	in.mu.Lock()
	for path, t := range in.pending {
		t.Stop()
		delete(in.pending, path)
	}
	fsw := in.fsw
	in.fsw = nil
	in.mu.Unlock()
	if fsw != nil {
		_ = fsw.Close()
	}
	in.stopOnce.Do(func() { close(in.done) })
}
