package batch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig configures input-directory watching.
type WatchConfig struct {
	// Dir is the drop directory to watch for input tables.
	Dir string `yaml:"dir"`

	// DebounceDelay is how long to wait for more writes before
	// processing a file. Parsed with time.ParseDuration.
	DebounceDelay string `yaml:"debounce_delay"`

	// FileExtensions lists input extensions to accept.
	FileExtensions []string `yaml:"file_extensions"`
}

// DefaultWatchConfig returns default watch configuration.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		DebounceDelay:  "500ms",
		FileExtensions: []string{".csv", ".json"},
	}
}

// GetDebounceDelay returns the debounce delay as a duration.
func (c *WatchConfig) GetDebounceDelay() time.Duration {
	if c.DebounceDelay == "" {
		return 500 * time.Millisecond
	}
	d, err := time.ParseDuration(c.DebounceDelay)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// Watcher watches a drop directory and hands settled input files to a
// handler, one at a time. Files are debounced so a writer that is still
// appending doesn't trigger a half-read table.
type Watcher struct {
	config     WatchConfig
	watcher    *fsnotify.Watcher
	logger     *slog.Logger
	extensions map[string]bool

	// pending tracks last-write times for debouncing.
	pending map[string]time.Time
}

// NewWatcher creates a watcher over cfg.Dir.
func NewWatcher(cfg WatchConfig, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(cfg.Dir); err != nil {
		fsw.Close()
		return nil, err
	}

	extensions := make(map[string]bool, len(cfg.FileExtensions))
	for _, ext := range cfg.FileExtensions {
		extensions[strings.ToLower(ext)] = true
	}

	return &Watcher{
		config:     cfg,
		watcher:    fsw,
		logger:     logger,
		extensions: extensions,
		pending:    make(map[string]time.Time),
	}, nil
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Run blocks, invoking handle for each settled file, until ctx is
// cancelled or the watcher closes. Handlers run inline: processing is
// strictly sequential like the rest of the pipeline.
func (w *Watcher) Run(ctx context.Context, handle func(path string)) error {
	debounce := w.config.GetDebounceDelay()
	ticker := time.NewTicker(debounce / 2)
	defer ticker.Stop()

	w.logger.Info("Watching for input tables",
		"dir", w.config.Dir,
		"extensions", w.config.FileExtensions)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.extensions[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			w.pending[event.Name] = time.Now()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watch error", "error", err)

		case now := <-ticker.C:
			for path, last := range w.pending {
				if now.Sub(last) < debounce {
					continue
				}
				delete(w.pending, path)
				w.logger.Info("Processing input table", "path", path)
				handle(path)
			}
		}
	}
}
