package spool

import (
	"errors"
	"log/slog"
)

// bounded evicts the oldest entries once a Store holds more than max.
type bounded struct {
	Store
	max    int
	logger *slog.Logger
}

// Bound limits store to max entries with a drop-oldest policy. Every
// evicted entry is logged at WARNING since it is data that will never be
// delivered. max <= 0 returns store unchanged.
func Bound(store Store, max int, logger *slog.Logger) Store {
	if max <= 0 {
		return store
	}
	return &bounded{Store: store, max: max, logger: logger}
}

func (b *bounded) Put(payload []byte) (EntryID, error) {
	id, err := b.Store.Put(payload)
	if err != nil {
		return id, err
	}

	ids, err := b.Store.List()
	if err != nil {
		b.logger.Warn("spool: cannot enforce size limit", "err", err)
		return id, nil
	}
	for len(ids) > b.max {
		oldest := ids[0]
		ids = ids[1:]
		if err := b.Store.Remove(oldest); err != nil && !errors.Is(err, ErrNotFound) {
			b.logger.Warn("spool: evicting oldest entry failed", "entry", oldest, "err", err)
			break
		}
		b.logger.Warn("spool: full, evicted oldest entry",
			"entry", oldest, "max_entries", b.max)
	}
	return id, nil
}
