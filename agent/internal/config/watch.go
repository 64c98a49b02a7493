package config

import (
	"context"
	"log/slog"
	"reflect"
	"slices"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Change is one reload that differs from the config previously in effect.
type Change struct {
	Config *Config
	// Sections lists the top-level keys whose values changed, in Config field order.
	Sections []string
}

// Has reports whether section is among the changed sections.
func (c Change) Has(section string) bool {
	return slices.Contains(c.Sections, section)
}

// Diff returns the top-level sections whose values differ between a and b.
// A nil list and an empty one compare equal.
func Diff(a, b *Config) []string {
	va, vb := reflect.ValueOf(a).Elem(), reflect.ValueOf(b).Elem()
	t := va.Type()

	var changed []string
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			continue
		}
		if !cmp.Equal(va.Field(i).Interface(), vb.Field(i).Interface(), cmpopts.EquateEmpty()) {
			changed = append(changed, name)
		}
	}
	return changed
}

// WatchOption customizes Watch.
type WatchOption func(*watchOptions)

type watchOptions struct {
	load func() (*Config, error)
}

// WithLoader replaces Load(path) as the way a changed file is read, so that
// callers can layer their own overrides before the comparison.
func WithLoader(load func() (*Config, error)) WatchOption {
	return func(o *watchOptions) { o.load = load }
}

// Watch monitors path and calls onChange each time a write produces a valid
// config that differs from the last one seen, starting from current. It runs
// until ctx is cancelled.
//
// A reload that fails to parse or validate is logged and skipped; the
// previous config stays the baseline.
func Watch(ctx context.Context, logger *slog.Logger, path string, current *Config,
	onChange func(Change), opts ...WatchOption) error {
	o := watchOptions{load: func() (*Config, error) { return Load(path) }}
	for _, opt := range opts {
		opt(&o)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}
	logger.Info("config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Atomic saves arrive as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// An atomic save replaces the inode.
			_ = watcher.Add(path)

			cfg, err := o.load()
			if err != nil {
				logger.Warn("config: reload failed, keeping previous config", "path", path, "err", err)
				continue
			}
			sections := Diff(current, cfg)
			if len(sections) == 0 {
				logger.Debug("config: file rewritten without changes", "path", path)
				continue
			}
			current = cfg
			logger.Info("config: reloaded", "path", path, "changed", sections)
			onChange(Change{Config: cfg, Sections: sections})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config: watcher error", "err", err)
		}
	}
}
