package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fieldtrack/fieldtrack/agent/internal/config"
	"github.com/fieldtrack/fieldtrack/pkg/types"
)

// ErrSetup marks failures that happen before the first record is produced.
var ErrSetup = errors.New("sensor: setup failed")

// Source writes records to out until ctx is cancelled or the source fails.
// A clean shutdown returns nil.
type Source interface {
	Run(ctx context.Context, out chan<- types.Record) error
}

// New builds the source selected by cfg.Type.
func New(cfg config.SensorConfig, logger *slog.Logger) (Source, error) {
	switch cfg.Type {
	case "gpsd":
		return NewGPSD(cfg.Address, cfg.Classes, logger), nil
	case "simulate":
		return NewSimulator(cfg.Interval, 0, logger), nil
	default:
		return nil, fmt.Errorf("sensor: unknown type %q", cfg.Type)
	}
}

// emit hands rec to out unless ctx ends first. A record that fits in out is
// always queued, even when ctx is already done.
func emit(ctx context.Context, out chan<- types.Record, rec types.Record) bool {
	select {
	case out <- rec:
		return true
	default:
	}
	select {
	case out <- rec:
		return true
	case <-ctx.Done():
		return false
	}
}
