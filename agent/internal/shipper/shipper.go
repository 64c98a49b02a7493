package shipper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/fieldtrack/fieldtrack/agent/internal/logsink"
	"github.com/fieldtrack/fieldtrack/agent/internal/metrics"
	"github.com/fieldtrack/fieldtrack/agent/internal/spool"
	"github.com/fieldtrack/fieldtrack/agent/internal/uploader"
	"github.com/fieldtrack/fieldtrack/pkg/types"
)

// Outcome is the result of one flush.
type Outcome string

const (
	OutcomeEmpty       Outcome = "empty"
	OutcomeUploaded    Outcome = "uploaded"
	OutcomeSpooled     Outcome = "spooled"
	OutcomeLostEncode  Outcome = "lost_encode"
	OutcomeLostPersist Outcome = "lost_persist"
)

// State is where the shipper is in its cycle.
type State string

const (
	StateIdle      State = "idle"
	StateFlushing  State = "flushing"
	StateUploading State = "uploading"
)

// Drainer hands over everything buffered so far.
type Drainer interface {
	Drain() (batch types.Batch, dropped int)
}

// Encoder turns a batch into an upload payload.
type Encoder interface {
	Encode(types.Batch) ([]byte, error)
}

// Sender makes one upload attempt.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

// Status is a point-in-time view of the shipper.
type Status struct {
	State       State     `json:"state"`
	LastOutcome Outcome   `json:"last_outcome,omitempty"`
	LastFlush   time.Time `json:"last_flush,omitempty"`
}

// Shipper drains, encodes, uploads and spools on a fixed interval.
type Shipper struct {
	buf      Drainer
	enc      Encoder
	sender   Sender
	spool    spool.Store
	archive  spool.Store // nil when archiving is disabled
	interval time.Duration
	grace    time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu     sync.Mutex
	status Status
}

// New returns a Shipper. archive and m may be nil.
func New(buf Drainer, enc Encoder, sender Sender, sp spool.Store, archive spool.Store,
	interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Shipper {
	return &Shipper{
		buf:      buf,
		enc:      enc,
		sender:   sender,
		spool:    sp,
		archive:  archive,
		interval: interval,
		logger:   logsink.For(logger, "shipper"),
		metrics:  m,
		status:   Status{State: StateIdle},
	}
}

// SetShutdownGrace bounds the final flush made when Run stops. Zero means the
// final flush gets no deadline of its own.
func (s *Shipper) SetShutdownGrace(d time.Duration) { s.grace = d }

// Run flushes every interval until ctx is cancelled, then flushes once more.
func (s *Shipper) Run(ctx context.Context) {
	s.logger.Info("shipper: started", "interval", s.interval)

	t := time.NewTimer(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.finalFlush()
			return
		case <-t.C:
			s.Flush(ctx)
			t.Reset(s.interval)
		}
	}
}

func (s *Shipper) finalFlush() {
	fctx := context.Background()
	if s.grace > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(fctx, s.grace)
		defer cancel()
	}
	out := s.Flush(fctx)
	s.logger.Info("shipper: stopped", "final_outcome", out)
}

// Flush runs one drain-encode-upload cycle and reports how it ended.
func (s *Shipper) Flush(ctx context.Context) Outcome {
	s.setState(StateFlushing)
	out := s.flush(ctx)
	s.metrics.Flush(string(out))

	s.mu.Lock()
	s.status = Status{State: StateIdle, LastOutcome: out, LastFlush: time.Now()}
	s.mu.Unlock()
	return out
}

func (s *Shipper) flush(ctx context.Context) Outcome {
	batch, dropped := s.buf.Drain()
	if dropped > 0 {
		s.logger.Warn("shipper: buffer overflowed since last flush, oldest records dropped",
			"dropped", dropped)
	}
	if len(batch) == 0 {
		s.logger.Warn("shipper: no data to send, is the sensor configured right?")
		return OutcomeEmpty
	}

	payload, err := s.enc.Encode(batch)
	if err != nil {
		logsink.Exception(s.logger, "shipper: failed to encode batch, records dropped",
			"records", len(batch), "err", err)
		return OutcomeLostEncode
	}
	s.metrics.Payload(len(payload))

	s.setState(StateUploading)
	s.logger.Info("shipper: uploading batch",
		"records", len(batch), "size", humanize.Bytes(uint64(len(payload))))

	start := time.Now()
	err = s.sender.Send(ctx, payload)
	if err != nil {
		s.metrics.Upload(metrics.PathFlush, string(uploader.ReasonOf(err)), time.Since(start))
		s.logger.Info("shipper: upload failed, spooling payload",
			"reason", uploader.ReasonOf(err), "err", err)

		id, perr := s.spool.Put(payload)
		if perr != nil {
			logsink.Critical(s.logger, "shipper: could not spool failed upload, data is lost",
				"records", len(batch), "err", perr)
			return OutcomeLostPersist
		}
		s.logger.Debug("shipper: payload spooled", "entry", id)
		if ids, err := s.spool.List(); err == nil {
			s.metrics.SpoolEntries(len(ids))
		}
		return OutcomeSpooled
	}
	s.metrics.Upload(metrics.PathFlush, "ok", time.Since(start))
	s.logger.Debug("shipper: batch delivered", "records", len(batch))

	if s.archive != nil {
		if _, err := s.archive.Put(payload); err != nil {
			logsink.Exception(s.logger, "shipper: failed to archive delivered payload", "err", err)
		}
	}
	return OutcomeUploaded
}

// Status returns the current state and the last flush result.
func (s *Shipper) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Shipper) setState(st State) {
	s.mu.Lock()
	s.status.State = st
	s.mu.Unlock()
}
