package sensor

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/fieldtrack/fieldtrack/agent/internal/logsink"
	"github.com/fieldtrack/fieldtrack/pkg/types"
)

// Simulator emits TPV fixes that wander around a starting point.
type Simulator struct {
	interval time.Duration
	rng      *rand.Rand
	logger   *slog.Logger

	lat, lon, alt float64
	track, speed  float64
}

// NewSimulator returns a simulated receiver. A zero seed picks one from the
// clock.
func NewSimulator(interval time.Duration, seed int64, logger *slog.Logger) *Simulator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		interval: interval,
		rng:      rand.New(rand.NewSource(seed)), //nolint:gosec // not crypto
		logger:   logsink.For(logger, "sensor.simulate"),
		lat:      47.4979,
		lon:      19.0402,
		alt:      110,
		speed:    8,
	}
}

// Run emits one fix every interval until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context, out chan<- types.Record) error {
	s.logger.Info("simulator: started", "interval", s.interval)

	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			if !emit(ctx, out, s.next(now)) {
				return nil
			}
		}
	}
}

// next advances the walk by one step and returns the fix.
func (s *Simulator) next(now time.Time) types.Record {
	s.track = math.Mod(s.track+s.rng.Float64()*30-15+360, 360)
	s.speed = math.Max(0, s.speed+s.rng.Float64()*2-1)

	// Metres travelled this step, converted to degrees.
	dist := s.speed * s.interval.Seconds()
	rad := s.track * math.Pi / 180
	s.lat += dist * math.Cos(rad) / 111320
	s.lon += dist * math.Sin(rad) / (111320 * math.Cos(s.lat*math.Pi/180))
	s.alt += s.rng.Float64() - 0.5

	return types.Record{
		"class":  "TPV",
		"device": "simulated",
		"mode":   3,
		"time":   now.UTC().Format(time.RFC3339Nano),
		"lat":    s.lat,
		"lon":    s.lon,
		"alt":    s.alt,
		"track":  s.track,
		"speed":  s.speed,
	}
}
