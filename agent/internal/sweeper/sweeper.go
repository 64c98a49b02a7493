package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldtrack/fieldtrack/agent/internal/logsink"
	"github.com/fieldtrack/fieldtrack/agent/internal/metrics"
	"github.com/fieldtrack/fieldtrack/agent/internal/spool"
	"github.com/fieldtrack/fieldtrack/agent/internal/uploader"
)

// Sender makes one upload attempt.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

// Result summarises one sweep.
type Result struct {
	Sent      int `json:"sent"`
	Remaining int `json:"remaining"`

	// Stopped is the error that ended the sweep early, nil when the spool
	// was emptied or the listing itself failed.
	Stopped error `json:"-"`

	At time.Time `json:"at"`
}

// Sweeper periodically re-uploads spooled payloads.
type Sweeper struct {
	spool    spool.Store
	sender   Sender
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu   sync.Mutex
	last Result
}

// New returns a Sweeper. m may be nil.
func New(sp spool.Store, sender Sender, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		spool:    sp,
		sender:   sender,
		interval: interval,
		logger:   logsink.For(logger, "sweeper"),
		metrics:  m,
	}
}

// Run sweeps every interval until ctx is cancelled. The timer is re-armed
// after each sweep finishes.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("sweeper: started", "interval", s.interval)

	t := time.NewTimer(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper: stopped")
			return
		case <-t.C:
			s.Sweep(ctx)
			t.Reset(s.interval)
		}
	}
}

// Sweep makes one pass over the spool.
func (s *Sweeper) Sweep(ctx context.Context) Result {
	res := s.sweep(ctx)
	res.At = time.Now()

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	return res
}

func (s *Sweeper) sweep(ctx context.Context) Result {
	ids, err := s.spool.List()
	if err != nil {
		logsink.Exception(s.logger, "sweeper: failed to list spooled payloads", "err", err)
		return Result{}
	}
	s.metrics.SpoolEntries(len(ids))
	if len(ids) == 0 {
		return Result{}
	}
	s.logger.Debug("sweeper: replaying spooled payloads", "entries", len(ids))

	var res Result
	gone := 0
	for i, id := range ids {
		err := s.replay(ctx, id)
		if errors.Is(err, errGone) {
			gone++
			continue
		}
		if err != nil {
			res.Remaining = len(ids) - i
			res.Stopped = err
			break
		}
		res.Sent++
		s.metrics.Replayed()
	}
	s.metrics.SpoolEntries(len(ids) - res.Sent - gone)

	if res.Sent > 0 {
		s.logger.Info("sweeper: replayed spooled payloads", "sent", res.Sent, "remaining", res.Remaining)
	}
	return res
}

// errGone marks an entry that disappeared between List and Read, evicted by
// the spool bound while the sweep was running.
var errGone = errors.New("sweeper: entry already gone")

// replay delivers and removes one entry. Any error other than errGone stops
// the sweep.
func (s *Sweeper) replay(ctx context.Context, id spool.EntryID) error {
	payload, err := s.spool.Read(id)
	if errors.Is(err, spool.ErrNotFound) {
		s.logger.Debug("sweeper: spooled payload vanished before replay", "entry", id)
		return errGone
	}
	if err != nil {
		logsink.Exception(s.logger, "sweeper: failed to read spooled payload", "entry", id, "err", err)
		return fmt.Errorf("sweeper: read %s: %w", id, err)
	}

	start := time.Now()
	if err := s.sender.Send(ctx, payload); err != nil {
		s.metrics.Upload(metrics.PathReplay, string(uploader.ReasonOf(err)), time.Since(start))
		s.logger.Info("sweeper: failed to upload spooled payload, will retry next cycle",
			"entry", id, "reason", uploader.ReasonOf(err), "err", err)
		return err
	}
	s.metrics.Upload(metrics.PathReplay, "ok", time.Since(start))
	if created, err := id.Time(); err == nil {
		s.logger.Debug("sweeper: spooled payload delivered", "entry", id, "age", time.Since(created).Round(time.Second))
	}

	if err := s.spool.Remove(id); err != nil && !errors.Is(err, spool.ErrNotFound) {
		logsink.Exception(s.logger, "sweeper: delivered payload could not be removed, it will be sent again",
			"entry", id, "err", err)
		return fmt.Errorf("sweeper: remove %s: %w", id, err)
	}
	return nil
}

// Last returns the result of the most recent sweep.
func (s *Sweeper) Last() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
