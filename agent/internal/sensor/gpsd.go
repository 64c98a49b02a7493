package sensor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/fieldtrack/fieldtrack/agent/internal/logsink"
	"github.com/fieldtrack/fieldtrack/pkg/types"
)

// watchCommand switches gpsd into streaming JSON reports.
const watchCommand = `?WATCH={"enable":true,"json":true};` + "\n"

const (
	dialTimeout = 10 * time.Second
	maxLineSize = 1 << 20
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// GPSD streams reports from a gpsd daemon.
type GPSD struct {
	addr    string
	classes map[string]bool
	logger  *slog.Logger

	// dial is swapped in tests.
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewGPSD returns a source reading from the gpsd at addr. Only reports whose
// class is in classes are kept; an empty list keeps everything.
func NewGPSD(addr string, classes []string, logger *slog.Logger) *GPSD {
	g := &GPSD{
		addr:   addr,
		logger: logsink.For(logger, "sensor.gpsd"),
		dial:   (&net.Dialer{Timeout: dialTimeout}).DialContext,
	}
	if len(classes) > 0 {
		g.classes = make(map[string]bool, len(classes))
		for _, c := range classes {
			g.classes[c] = true
		}
	}
	return g
}

// Run connects, enables watch mode and forwards reports until ctx is
// cancelled or the connection breaks.
func (g *GPSD) Run(ctx context.Context, out chan<- types.Record) error {
	conn, err := g.dial(ctx, "tcp", g.addr)
	if err != nil {
		return fmt.Errorf("%w: dial gpsd %s: %v", ErrSetup, g.addr, err)
	}
	defer conn.Close()

	if _, err := io.WriteString(conn, watchCommand); err != nil {
		return fmt.Errorf("%w: enable watch: %v", ErrSetup, err)
	}
	g.logger.Debug("gpsd: watching", "addr", g.addr)

	// Unblock the scanner when ctx ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec types.Record
		if err := json.Unmarshal(line, &rec); err != nil || rec == nil {
			g.logger.Debug("gpsd: skipping malformed report", "err", err)
			continue
		}
		if g.classes != nil && !g.classes[rec.Class()] {
			continue
		}
		if !emit(ctx, out, rec) {
			return nil
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("sensor: read gpsd: %w", err)
	}
	return fmt.Errorf("sensor: gpsd %s closed the connection", g.addr)
}
