package spool

import (
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/fieldtrack/fieldtrack/agent/internal/config"
)

// FilePrefix names spool and archive entry files.
const FilePrefix = "gpsdata_"

// Open builds the failed-upload store selected by cfg.
func Open(cfg config.SpoolConfig, logger *slog.Logger) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case "dir", "":
		store, err = NewDirStore(afero.NewOsFs(), cfg.Dir, FilePrefix)
	case "bolt":
		store, err = OpenBolt(cfg.Path)
	default:
		return nil, fmt.Errorf("spool: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return Bound(store, cfg.MaxEntries, logger), nil
}

// OpenArchive builds the write-through archive for delivered payloads.
// It returns nil when archiving is disabled.
func OpenArchive(cfg config.ArchiveConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	store, err := NewDirStore(afero.NewOsFs(), cfg.Dir, FilePrefix)
	if err != nil {
		return nil, err
	}
	return store, nil
}
