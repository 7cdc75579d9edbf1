// Package file loads automations from YAML files and reloads them on change.
package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/menuflow/internal/logging"
	"github.com/aretw0/menuflow/pkg/adapters/memory"
	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/fsnotify/fsnotify"
)

const debounce = 200 * time.Millisecond

// Source implements ports.ConfigReader and ports.Watchable over a YAML file
// or a directory of YAML files.
type Source struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	store *memory.ConfigStore
}

type Option func(*Source)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// NewSource loads path and returns a ready source.
func NewSource(path string, opts ...Option) (*Source, error) {
	s := &Source{path: path, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads and validates every automation under path.
func Load(path string) ([]*domain.Automation, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		files = files[:0]
		for _, e := range entries {
			if !e.IsDir() && isYAML(e.Name()) {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
	}

	var all []*domain.Automation
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		batch, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		for _, a := range batch {
			if err := domain.Validate(a); err != nil {
				return nil, fmt.Errorf("%s: automation %q: %w", f, a.ID, err)
			}
		}
		all = append(all, batch...)
	}
	return all, nil
}

// Reload re-reads path. On failure the previous automations stay in place.
func (s *Source) Reload() error {
	automations, err := Load(s.path)
	if err != nil {
		return fmt.Errorf("load automations: %w", err)
	}
	store, err := memory.NewConfigStore(automations...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.store = store
	s.mu.Unlock()

	s.logger.Info("automations loaded", "path", s.path, "count", len(automations))
	return nil
}

func (s *Source) current() *memory.ConfigStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

func (s *Source) List(ctx context.Context, organizationID string) ([]*domain.Automation, error) {
	return s.current().List(ctx, organizationID)
}

func (s *Source) Get(ctx context.Context, organizationID, automationID string) (*domain.Automation, error) {
	return s.current().Get(ctx, organizationID, automationID)
}

// Watch implements ports.Watchable. Bursts of file events are coalesced.
func (s *Source) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to start watcher: %w", err)
	}

	dir := s.path
	if info, err := os.Stat(s.path); err == nil && !info.IsDir() {
		dir = filepath.Dir(s.path)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	ch := make(chan struct{}, 1)

	go func() {
		defer close(ch)
		defer watcher.Close()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isYAML(evt.Name) || evt.Op == fsnotify.Chmod {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("watcher error", "err", err)
			case <-fire:
				fire = nil
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()

	return ch, nil
}
