package sensor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/fieldtrack/fieldtrack/agent/internal/config"
	"github.com/fieldtrack/fieldtrack/pkg/types"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGPSD accepts one client, checks the watch command and replies with
// lines. It closes the connection afterwards unless hold is set.
func fakeGPSD(t *testing.T, lines []string, hold bool) (addr string, gotWatch <-chan string) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { lis.Close() })

	watch := make(chan string, 1)
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		cmd, _ := bufio.NewReader(conn).ReadString('\n')
		watch <- cmd
		for _, l := range lines {
			if _, err := io.WriteString(conn, l+"\n"); err != nil {
				return
			}
		}
		if hold {
			// Wait for the client to hang up.
			io.Copy(io.Discard, conn)
		}
	}()
	return lis.Addr().String(), watch
}

func collect(ctx context.Context, t *testing.T, src Source) ([]types.Record, error) {
	t.Helper()
	out := make(chan types.Record, 16)
	errc := make(chan error, 1)
	go func() { errc <- src.Run(ctx, out) }()

	var recs []types.Record
	for {
		select {
		case r := <-out:
			recs = append(recs, r)
		case err := <-errc:
			for {
				select {
				case r := <-out:
					recs = append(recs, r)
				default:
					return recs, err
				}
			}
		case <-time.After(3 * time.Second):
			t.Fatal("source did not finish")
		}
	}
}

func TestGPSD_StreamsReports(t *testing.T) {
	addr, watch := fakeGPSD(t, []string{
		`{"class":"VERSION","release":"3.22"}`,
		`{"class":"TPV","mode":3,"lat":52.52,"lon":13.40}`,
		`not json`,
		``,
		`{"class":"SKY","satellites":[]}`,
		`{"class":"TPV","mode":3,"lat":52.53,"lon":13.41}`,
	}, false)

	recs, err := collect(context.Background(), t, NewGPSD(addr, nil, discard()))
	if err == nil || !strings.Contains(err.Error(), "closed the connection") {
		t.Errorf("Run error: got %v, want closed connection", err)
	}
	if errors.Is(err, ErrSetup) {
		t.Error("a dropped connection is not a setup error")
	}

	if cmd := <-watch; cmd != watchCommand {
		t.Errorf("watch command: got %q, want %q", cmd, watchCommand)
	}
	if len(recs) != 4 {
		t.Fatalf("got %d records, want 4", len(recs))
	}
	if recs[1].Class() != "TPV" || recs[1]["lat"] != 52.52 {
		t.Errorf("record 1: got %v", recs[1])
	}
}

func TestGPSD_ClassFilter(t *testing.T) {
	addr, _ := fakeGPSD(t, []string{
		`{"class":"VERSION"}`,
		`{"class":"TPV","lat":1}`,
		`{"class":"SKY"}`,
		`{"class":"TPV","lat":2}`,
	}, false)

	recs, _ := collect(context.Background(), t, NewGPSD(addr, []string{"TPV"}, discard()))
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	for _, r := range recs {
		if r.Class() != "TPV" {
			t.Errorf("unexpected class %q", r.Class())
		}
	}
}

func TestGPSD_DialFailureIsSetupError(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()
	lis.Close()

	err = NewGPSD(addr, nil, discard()).Run(context.Background(), make(chan types.Record))
	if !errors.Is(err, ErrSetup) {
		t.Errorf("got %v, want ErrSetup", err)
	}
}

func TestGPSD_CancelStopsCleanly(t *testing.T) {
	addr, watch := fakeGPSD(t, []string{`{"class":"TPV","lat":1}`}, true)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan types.Record, 1)
	errc := make(chan error, 1)
	go func() { errc <- NewGPSD(addr, nil, discard()).Run(ctx, out) }()

	<-watch
	<-out
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run after cancel: got %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSimulator_EmitsTPV(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim := NewSimulator(5*time.Millisecond, 42, discard())
	out := make(chan types.Record)
	errc := make(chan error, 1)
	go func() { errc <- sim.Run(ctx, out) }()

	var prev types.Record
	for i := 0; i < 3; i++ {
		select {
		case r := <-out:
			if r.Class() != "TPV" {
				t.Errorf("class: got %q", r.Class())
			}
			if _, ok := r["lat"].(float64); !ok {
				t.Errorf("lat missing or not float64: %v", r["lat"])
			}
			if prev != nil && prev["lat"] == r["lat"] && prev["lon"] == r["lon"] && r["speed"].(float64) > 0 {
				t.Errorf("fix %d did not move", i)
			}
			prev = r
		case <-time.After(2 * time.Second):
			t.Fatal("no fix from simulator")
		}
	}

	cancel()
	if err := <-errc; err != nil {
		t.Errorf("Run after cancel: %v", err)
	}
}

func TestNew_SelectsSource(t *testing.T) {
	src, err := New(config.SensorConfig{Type: "simulate", Interval: time.Second}, discard())
	if err != nil {
		t.Fatalf("New(simulate): %v", err)
	}
	if _, ok := src.(*Simulator); !ok {
		t.Errorf("New(simulate): got %T", src)
	}
	src, err = New(config.SensorConfig{Type: "gpsd", Address: "127.0.0.1:2947"}, discard())
	if err != nil {
		t.Fatalf("New(gpsd): %v", err)
	}
	if _, ok := src.(*GPSD); !ok {
		t.Errorf("New(gpsd): got %T", src)
	}
	if _, err := New(config.SensorConfig{Type: "sonar"}, discard()); err == nil {
		t.Error("New(sonar): expected error")
	}
}

func TestEmit_QueuesWhenRoomAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan types.Record, 1)
	if !emit(ctx, out, types.Record{"class": "TPV"}) {
		t.Fatal("emit with room in out: got false")
	}
	if emit(ctx, out, types.Record{"class": "TPV"}) {
		t.Error("emit into a full channel after cancel: got true")
	}
	if len(out) != 1 {
		t.Errorf("queued %d records, want 1", len(out))
	}
}
