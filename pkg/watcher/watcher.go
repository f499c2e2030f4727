// Package watcher keeps a user's knowledge base in step with a folder:
// files written there are uploaded and files removed are deleted.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/apperr"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/models"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/extract"
)

// Handler is the part of the service the watcher drives.
type Handler interface {
	UploadDocument(ctx context.Context, userID, fileName string, fileBytes []byte, documentType string) (*models.UploadResult, error)
	DeleteDocument(ctx context.Context, userID, documentName string) (*models.DeleteResult, error)
}

type Op string

const (
	OpUpload Op = "upload"
	OpDelete Op = "delete"
)

// Event reports one file the watcher acted on.
type Event struct {
	Path   string
	Op     Op
	Chunks int
	Err    error
}

type Config struct {
	Dir          string
	UserID       string
	DocumentType string
	// Debounce is how long a file must stay quiet before it is processed.
	// Editors often write a file several times per save.
	Debounce time.Duration
	// InitialSync uploads the files already in Dir when Run starts.
	InitialSync bool
	OnEvent     func(Event)
}

type Watcher struct {
	config  Config
	handler Handler
	fs      *fsnotify.Watcher
	log     logr.Logger

	pending map[string]pendingOp
}

type pendingOp struct {
	op   Op
	last time.Time
}

func New(config Config, handler Handler, log logr.Logger) (*Watcher, error) {
	if config.Debounce <= 0 {
		config.Debounce = 500 * time.Millisecond
	}
	info, err := os.Stat(config.Dir)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidInput, "watch", err)
	}
	if !info.IsDir() {
		return nil, apperr.Newf(apperr.KindInvalidInput, "watch", "%s is not a directory", config.Dir)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fs.Add(config.Dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch %s: %w", config.Dir, err)
	}

	return &Watcher{
		config:  config,
		handler: handler,
		fs:      fs,
		log:     log.WithName("watcher").WithValues("dir", config.Dir, "user", config.UserID),
		pending: make(map[string]pendingOp),
	}, nil
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	if w.config.InitialSync {
		if err := w.sync(ctx); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(w.config.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.record(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Error(err, "watch error")
		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) record(event fsnotify.Event) {
	if !extract.Supported(event.Name) {
		return
	}

	var op Op
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		op = OpUpload
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return
	}
	w.log.V(1).Info("file event", "file", event.Name, "event", event.Op.String())
	w.pending[event.Name] = pendingOp{op: op, last: time.Now()}
}

// flush handles every pending file that has been quiet for Debounce, in
// path order.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	var ready []string
	for path, p := range w.pending {
		if now.Sub(p.last) >= w.config.Debounce {
			ready = append(ready, path)
		}
	}
	sort.Strings(ready)

	for _, path := range ready {
		op := w.pending[path].op
		delete(w.pending, path)
		w.apply(ctx, path, op)
	}
}

func (w *Watcher) apply(ctx context.Context, path string, op Op) {
	event := Event{Path: path, Op: op}

	switch op {
	case OpUpload:
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			// Created and removed again before it settled.
			return
		}
		if err != nil {
			event.Err = err
			break
		}
		result, err := w.handler.UploadDocument(ctx, w.config.UserID, filepath.Base(path), data, w.config.DocumentType)
		if err != nil {
			event.Err = err
			break
		}
		event.Chunks = result.ChunksCreated
	case OpDelete:
		result, err := w.handler.DeleteDocument(ctx, w.config.UserID, filepath.Base(path))
		if apperr.IsNotFound(err) {
			return
		}
		if err != nil {
			event.Err = err
			break
		}
		event.Chunks = result.DeletedChunks
	}

	if event.Err != nil {
		w.log.Error(event.Err, "sync failed", "file", path, "op", op)
	} else {
		w.log.Info("synced file", "file", path, "op", op, "chunks", event.Chunks)
	}
	if w.config.OnEvent != nil {
		w.config.OnEvent(event)
	}
}

func (w *Watcher) sync(ctx context.Context) error {
	entries, err := os.ReadDir(w.config.Dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", w.config.Dir, err)
	}
	for _, e := range entries {
		if e.Type().IsRegular() && extract.Supported(e.Name()) {
			w.apply(ctx, filepath.Join(w.config.Dir, e.Name()), OpUpload)
		}
	}
	return nil
}
