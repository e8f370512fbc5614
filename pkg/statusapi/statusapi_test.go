package statusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/hookline/stagezero/pkg/lifecycle"
	"github.com/hookline/stagezero/pkg/metrics"
)

func startTestServer(t *testing.T, tracker *lifecycle.Tracker) *Server {
	t.Helper()
	s := New("127.0.0.1:0", tracker, metrics.NewRecorder().Handler())
	if err := s.Start(); err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

func TestStateReflectsTracker(t *testing.T) {
	tracker := lifecycle.NewTracker()
	if err := tracker.Advance(lifecycle.PhaseEnvReady, "workdir ready"); err != nil {
		t.Fatal(err)
	}
	s := startTestServer(t, tracker)

	resp, err := http.Get(fmt.Sprintf("http://%s/state", s.Addr()))
	if err != nil {
		t.Fatalf("GET /state: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var snap lifecycle.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Phase != lifecycle.PhaseEnvReady {
		t.Errorf("phase = %v, want %v", snap.Phase, lifecycle.PhaseEnvReady)
	}
	if snap.RunID != tracker.RunID() {
		t.Errorf("run_id = %s, want %s", snap.RunID, tracker.RunID())
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	s := startTestServer(t, lifecycle.NewTracker())

	for _, path := range []string{"/health", "/metrics"} {
		resp, err := http.Get(fmt.Sprintf("http://%s%s", s.Addr(), path))
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}
