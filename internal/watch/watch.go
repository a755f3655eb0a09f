// Package watch reports Sentinel-1 products as they appear in a directory.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sentineleof/eof/internal/logging"
	"github.com/sentineleof/eof/pkg/products"
)

// DefaultDebounce is how long a new entry must be quiet before it is reported.
// Copies of large .zip files emit many write events.
const DefaultDebounce = 2 * time.Second

var logger = logging.New("watch")

// Handler is called once per new product ID.
type Handler func(ctx context.Context, p products.Product)

// Watcher watches one directory for new Sentinel-1 products.
type Watcher struct {
	dir      string
	debounce time.Duration
	handler  Handler

	mu      sync.Mutex
	pending map[string]*time.Timer
	seen    map[string]bool
}

// New creates a Watcher. A zero debounce uses DefaultDebounce.
func New(dir string, debounce time.Duration, handler Handler) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		handler:  handler,
		pending:  make(map[string]*time.Timer),
		seen:     make(map[string]bool),
	}
}

// MarkSeen suppresses future reports for a product ID, e.g. for products
// that were handled before watching started.
func (w *Watcher) MarkSeen(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen[id] = true
}

// Run blocks until ctx is cancelled or the watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	logger.Infof("Watching %s for new Sentinel-1 products", w.dir)

	var handlers sync.WaitGroup
	defer func() {
		w.mu.Lock()
		for id, t := range w.pending {
			t.Stop()
			delete(w.pending, id)
		}
		w.mu.Unlock()
		handlers.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.observe(ctx, event.Name, &handlers)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("watch error: %v", err)
		}
	}
}

// observe (re)arms the debounce timer for the product at path.
func (w *Watcher) observe(ctx context.Context, path string, handlers *sync.WaitGroup) {
	p, err := products.ParseProduct(filepath.Base(path))
	if err != nil {
		return
	}
	id := p.ID()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.seen[id] {
		return
	}
	if t, ok := w.pending[id]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[id] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if _, ok := w.pending[id]; !ok || w.seen[id] {
			w.mu.Unlock()
			return
		}
		delete(w.pending, id)
		w.seen[id] = true
		handlers.Add(1)
		w.mu.Unlock()

		defer handlers.Done()
		if ctx.Err() != nil {
			return
		}
		logger.Debugf("new product %s", id)
		w.handler(ctx, p)
	})
}
