package templates

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"text/template"

	"github.com/fsnotify/fsnotify"
)

//go:embed bundled/*.yaml
var bundled embed.FS

const templateExt = ".yaml"

var ErrTemplateNotFound = errors.New("template not found")

// Renderer renders resource documents from named templates. A file
// <overrideDir>/<name>.yaml takes precedence over the bundled template of the
// same name. Parsed templates are cached until the override directory changes.
type Renderer struct {
	logger      *slog.Logger
	overrideDir string

	mu    sync.RWMutex
	cache map[string]*template.Template

	watcher    *fsnotify.Watcher
	doneCh     chan struct{}
	inShutdown atomic.Bool
}

// New creates a renderer. An empty overrideDir disables overrides.
func New(logger *slog.Logger, overrideDir string) *Renderer {
	return &Renderer{
		logger:      logger.With("component", "templates"),
		overrideDir: overrideDir,
		cache:       make(map[string]*template.Template),
		doneCh:      make(chan struct{}),
	}
}

// Name returns the name of the renderer component.
func (r *Renderer) Name() string {
	return "template-renderer"
}

// Render executes the template called name with vars.
func (r *Renderer) Render(name string, vars any) ([]byte, error) {
	tpl, err := r.lookup(name)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, vars); err != nil {
		return nil, fmt.Errorf("execute template %s: %w", name, err)
	}

	return buf.Bytes(), nil
}

// Start watches the override directory and drops cached templates on any change.
// A missing directory is not an error; overrides are then read from disk only once.
func (r *Renderer) Start(ctx context.Context) error {
	if r.overrideDir == "" || r.inShutdown.Load() {
		close(r.doneCh)

		return nil
	}

	if info, err := os.Stat(r.overrideDir); err != nil || !info.IsDir() {
		r.logger.DebugContext(ctx, "override template directory not present, not watching", "dir", r.overrideDir)
		close(r.doneCh)

		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		close(r.doneCh)

		return fmt.Errorf("create template watcher: %w", err)
	}

	if err := watcher.Add(r.overrideDir); err != nil {
		_ = watcher.Close()

		close(r.doneCh)

		return fmt.Errorf("watch %s: %w", r.overrideDir, err)
	}

	r.watcher = watcher

	go r.watch(ctx)

	r.logger.InfoContext(ctx, "watching override templates", "dir", r.overrideDir)

	return nil
}

// Shutdown stops watching the override directory.
func (r *Renderer) Shutdown(ctx context.Context) error {
	if !r.inShutdown.CompareAndSwap(false, true) {
		return nil
	}

	if r.watcher == nil {
		return nil
	}

	if err := r.watcher.Close(); err != nil {
		return fmt.Errorf("close template watcher: %w", err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context done before template watcher exited: %w", ctx.Err())
	case <-r.doneCh:
	}

	return nil
}

func (r *Renderer) watch(ctx context.Context) {
	defer close(r.doneCh)

	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}

			r.logger.InfoContext(ctx, "override templates changed, dropping cache",
				"file", event.Name,
				"op", event.Op.String(),
			)
			r.invalidate()
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}

			r.logger.WarnContext(ctx, "template watcher error", "reason", err)
		}
	}
}

func (r *Renderer) invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.cache)
}

func (r *Renderer) lookup(name string) (*template.Template, error) {
	r.mu.RLock()
	tpl, ok := r.cache[name]
	r.mu.RUnlock()

	if ok {
		return tpl, nil
	}

	content, source, err := r.load(name)
	if err != nil {
		return nil, err
	}

	tpl, err = template.New(name).Funcs(funcs).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse template %s from %s: %w", name, source, err)
	}

	r.mu.Lock()
	r.cache[name] = tpl
	r.mu.Unlock()

	return tpl, nil
}

func (r *Renderer) load(name string) ([]byte, string, error) {
	filename := name + templateExt

	if r.overrideDir != "" {
		path := filepath.Join(r.overrideDir, filename)

		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			content, err := os.ReadFile(path)
			if err != nil {
				return nil, "", fmt.Errorf("read override template: %w", err)
			}

			r.logger.Debug("using override template", "path", path)

			return content, path, nil
		}
	}

	content, err := bundled.ReadFile("bundled/" + filename)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	return content, "bundled", nil
}

var funcs = template.FuncMap{
	// quote renders a string as a double-quoted YAML scalar.
	"quote": func(s string) (string, error) {
		b, err := json.Marshal(s)
		if err != nil {
			return "", err
		}

		return string(b), nil
	},
}
