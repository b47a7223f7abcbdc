package fix

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/trackrelay/trackrelay/agent/internal/config"
)

func TestNew_SelectsSource(t *testing.T) {
	cases := []struct {
		typ  string
		want string
	}{
		{"serial", "*fix.SerialSource"},
		{"file", "*fix.FileSource"},
		{"simulated", "*fix.SimulatedSource"},
	}
	for _, tc := range cases {
		src, err := New(config.FixSourceConfig{Type: tc.typ, Interval: time.Second, Baud: 9600, UEREMeters: 5})
		if err != nil {
			t.Fatalf("New(%q): %v", tc.typ, err)
		}
		if got := typeName(src); got != tc.want {
			t.Errorf("New(%q) = %s, want %s", tc.typ, got, tc.want)
		}
	}
	if _, err := New(config.FixSourceConfig{Type: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unknown source type")
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *SerialSource:
		return "*fix.SerialSource"
	case *FileSource:
		return "*fix.FileSource"
	case *SimulatedSource:
		return "*fix.SimulatedSource"
	}
	return "unknown"
}

func TestFileSource_Replays(t *testing.T) {
	lines := []string{
		sentence("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"),
		sentence("GPGGA,123520,4807.039,N,01131.001,E,1,08,0.9,545.4,M,46.9,M,,"),
		sentence("GPGGA,123521,4807.040,N,01131.002,E,1,08,0.9,545.4,M,46.9,M,,"),
	}
	path := filepath.Join(t.TempDir(), "track.nmea")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	src := &FileSource{Path: path, Interval: time.Millisecond, UERE: 5}
	var got []Fix
	if err := src.Run(context.Background(), func(f Fix) { got = append(got, f) }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d fixes, want 3", len(got))
	}
	if !got[0].Time.Before(got[2].Time) {
		t.Errorf("fixes out of order: %v then %v", got[0].Time, got[2].Time)
	}
}

func TestFileSource_MissingFile(t *testing.T) {
	src := &FileSource{Path: filepath.Join(t.TempDir(), "nope.nmea")}
	if err := src.Run(context.Background(), func(Fix) {}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSerialSource_OpenFails(t *testing.T) {
	src := &SerialSource{Device: filepath.Join(t.TempDir(), "ttyNOPE"), Baud: 9600, UERE: 5}
	if err := src.Run(context.Background(), func(Fix) {}); err == nil {
		t.Fatal("expected error opening a missing device")
	}
}

func TestSimulatedSource_EmitsUntilCancelled(t *testing.T) {
	src := NewSimulatedSource(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	var got []Fix
	done := make(chan error, 1)
	go func() {
		done <- src.Run(ctx, func(f Fix) {
			got = append(got, f)
			if len(got) == 200 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("simulated source did not stop")
	}

	if len(got) < 200 {
		t.Fatalf("got %d fixes", len(got))
	}
	in := NewIngestor(&sliceAppender{}, 50, nil)
	accepted := 0
	for _, f := range got {
		if f.Latitude < 61 || f.Latitude > 62 {
			t.Fatalf("walk drifted to %v", f.Latitude)
		}
		if in.Accept(f) {
			accepted++
		}
	}
	if accepted == 0 || accepted == len(got) {
		t.Errorf("accepted %d of %d, want a mix", accepted, len(got))
	}
}
