package metrics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestServerServesMetricsAndHealth(t *testing.T) {
	s := NewServer("127.0.0.1:0", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})

	SessionTransitions.WithLabelValues("start").Inc()

	body := get(t, "http://"+s.Addr()+"/health")
	if body != "OK" {
		t.Errorf("/health = %q, want OK", body)
	}

	body = get(t, "http://"+s.Addr()+"/metrics")
	for _, name := range []string{"clockcord_sessions_active", "clockcord_session_transitions_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("/metrics missing %s", name)
		}
	}
}

func TestStartBindError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	first := NewServer("127.0.0.1:0", logger)
	if err := first.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop(context.Background())

	second := NewServer(first.Addr(), logger)
	if err := second.Start(); err == nil {
		second.Stop(context.Background())
		t.Fatal("expected bind error on an address already in use")
	}
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}
	return string(data)
}
