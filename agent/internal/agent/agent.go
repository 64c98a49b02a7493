package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/fieldtrack/fieldtrack/agent/internal/buffer"
	"github.com/fieldtrack/fieldtrack/agent/internal/codec"
	"github.com/fieldtrack/fieldtrack/agent/internal/config"
	"github.com/fieldtrack/fieldtrack/agent/internal/identity"
	"github.com/fieldtrack/fieldtrack/agent/internal/logsink"
	"github.com/fieldtrack/fieldtrack/agent/internal/metrics"
	"github.com/fieldtrack/fieldtrack/agent/internal/sensor"
	"github.com/fieldtrack/fieldtrack/agent/internal/shipper"
	"github.com/fieldtrack/fieldtrack/agent/internal/spool"
	"github.com/fieldtrack/fieldtrack/agent/internal/status"
	"github.com/fieldtrack/fieldtrack/agent/internal/sweeper"
	"github.com/fieldtrack/fieldtrack/agent/internal/uploader"
	"github.com/fieldtrack/fieldtrack/pkg/types"
)

// recordQueue is the capacity of the channel between sensor and buffer.
const recordQueue = 256

// Agent owns the pipeline components.
type Agent struct {
	cfg     *config.Config
	root    *slog.Logger
	logger  *slog.Logger
	metrics *metrics.Metrics

	buf     *buffer.Buffer
	up      *uploader.Uploader
	spool   spool.Store
	archive spool.Store
	shipper *shipper.Shipper
	sweeper *sweeper.Sweeper
	source  sensor.Source
}

// New opens every component described by cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Agent, error) {
	a := &Agent{cfg: cfg, root: logger, logger: logsink.For(logger, "agent"), metrics: metrics.New()}

	enc, err := codec.New(cfg.Uploader.CompressionLevel)
	if err != nil {
		return nil, err
	}

	a.spool, err = spool.Open(cfg.Spool, logsink.For(logger, "spool"))
	if err != nil {
		return nil, err
	}
	a.archive, err = spool.OpenArchive(cfg.Archive)
	if err != nil {
		a.spool.Close()
		return nil, err
	}
	a.up, err = uploader.New(cfg.Uploader, logsink.For(logger, "uploader"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.source, err = sensor.New(cfg.Sensor, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.buf = buffer.New(cfg.Buffer.MaxRecords,
		buffer.WithObservers(a.metrics.RecordIngested, a.metrics.RecordDropped))
	a.metrics.GaugeFunc("buffered_records", "Records waiting for the next flush.",
		func() float64 { return float64(a.buf.Len()) })

	a.shipper = shipper.New(a.buf, enc, a.up, a.spool, a.archive, cfg.Shipper.Interval, logger, a.metrics)
	a.shipper.SetShutdownGrace(cfg.Shipper.ShutdownGrace)
	a.sweeper = sweeper.New(a.spool, a.up, cfg.Sweeper.Interval, logger, a.metrics)
	return a, nil
}

// Metrics returns the agent's instrumentation.
func (a *Agent) Metrics() *metrics.Metrics { return a.metrics }

// Run starts the pipeline and blocks until ctx is cancelled and every unit
// has stopped.
func (a *Agent) Run(ctx context.Context) error {
	if ids, err := a.spool.List(); err == nil {
		a.metrics.SpoolEntries(len(ids))
		if len(ids) > 0 {
			a.logger.Info("agent: spooled payloads waiting for replay", "entries", len(ids))
		}
	}
	a.logger.Info("agent: starting",
		"endpoint", a.up.Endpoint(),
		"sensor", a.cfg.Sensor.Type,
		"spool", a.cfg.Spool.Backend,
		"archive", a.archive != nil,
		"client_cert", a.up.HasIdentity())

	g, gctx := errgroup.WithContext(ctx)
	records := make(chan types.Record, recordQueue)

	// Shutdown order: the sensor stops and closes records, Consume moves
	// whatever is still queued into the buffer, and only then is the
	// shipper stopped so its final flush sees every record.
	shipCtx, stopShipper := context.WithCancel(context.WithoutCancel(gctx))
	defer stopShipper()

	g.Go(func() error {
		a.runSensor(gctx, records)
		close(records)
		return nil
	})
	g.Go(func() error {
		a.buf.Consume(records)
		stopShipper()
		return nil
	})
	g.Go(func() error {
		a.shipper.Run(shipCtx)
		return nil
	})
	g.Go(func() error {
		a.sweeper.Run(gctx)
		return nil
	})
	if addr := a.cfg.Status.Listen; addr != "" {
		h := status.New(a.statusSources(), a.metrics.Registry())
		g.Go(func() error {
			if err := status.Serve(gctx, addr, h, logsink.For(a.root, "status")); err != nil {
				logsink.Exception(a.logger, "agent: status server failed", "err", err)
			}
			return nil
		})
	}
	if path := a.cfg.Status.Textfile; path != "" {
		g.Go(func() error {
			a.metrics.RunTextfile(gctx, path, a.cfg.Status.TextfileInterval, logsink.For(a.root, "metrics"))
			return nil
		})
	}

	err := g.Wait()
	a.logger.Info("agent: stopped")
	return err
}

// runSensor keeps a failing source from taking the pipeline down with it.
func (a *Agent) runSensor(ctx context.Context, out chan<- types.Record) {
	err := a.source.Run(ctx, out)
	switch {
	case err == nil:
	case errors.Is(err, sensor.ErrSetup):
		logsink.Exception(a.logger, "agent: error when setting up the sensor, no new data will be collected", "err", err)
	default:
		logsink.Exception(a.logger, "agent: sensor stopped, no new data will be collected", "err", err)
	}
}

func (a *Agent) statusSources() status.Sources {
	return status.Sources{
		Buffered: a.buf.Len,
		SpoolEntries: func() (int, error) {
			ids, err := a.spool.List()
			return len(ids), err
		},
		Shipper:   a.shipper.Status,
		LastSweep: a.sweeper.Last,
		Identity: func() (*identity.CertStatus, error) {
			return identity.Inspect(a.cfg.Uploader.CertFile)
		},
	}
}

// Close releases everything New opened.
func (a *Agent) Close() error {
	var result *multierror.Error
	if a.up != nil {
		a.up.Close()
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("archive: %w", err))
		}
	}
	if a.spool != nil {
		if err := a.spool.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("spool: %w", err))
		}
	}
	return result.ErrorOrNil()
}
