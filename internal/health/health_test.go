package health

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func pass(context.Context) error { return nil }

func failWith(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

// probe serves path through a mux with h registered and decodes the report.
func probe(t *testing.T, h *Handler, ctx context.Context, path string) (int, Report) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("%s Content-Type = %q", path, ct)
	}
	var rep Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("%s: decode: %v", path, err)
	}
	return rec.Code, rep
}

func TestHealthz_IgnoresCheckers(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "catalog", Check: failWith("db down")})
	code, rep := probe(t, h, context.Background(), "/healthz")
	if code != http.StatusOK || rep.Status != "ok" {
		t.Errorf("/healthz = %d %+v, want 200 ok", code, rep)
	}
	if rep.Checks != nil {
		t.Errorf("/healthz checks = %v, want none", rep.Checks)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "catalog", Check: pass},
				{Name: "snapshots", Check: pass},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"catalog": "ok", "snapshots": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "catalog", Check: pass},
				{Name: "images", Check: failWith("bucket phonoplay-words: 403")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"catalog": "ok", "images": "fail: bucket phonoplay-words: 403"},
		},
		{
			name: "all fail",
			checkers: []Checker{
				{Name: "stt", Check: failWith("no healthy provider")},
				{Name: "tts", Check: failWith("circuit open")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"stt": "fail: no healthy provider", "tts": "fail: circuit open"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			code, rep := probe(t, New(tt.checkers...), context.Background(), "/readyz")
			if code != tt.wantCode || rep.Status != tt.wantStatus {
				t.Errorf("/readyz = %d %q, want %d %q", code, rep.Status, tt.wantCode, tt.wantStatus)
			}
			if len(tt.wantChecks) > 0 && !maps.Equal(rep.Checks, tt.wantChecks) {
				t.Errorf("checks = %v, want %v", rep.Checks, tt.wantChecks)
			}
		})
	}
}

func TestReadyz_CancelledRequest(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "catalog", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, rep := probe(t, h, ctx, "/readyz")
	if code != http.StatusServiceUnavailable || rep.Checks["catalog"] != "fail: context canceled" {
		t.Errorf("/readyz = %d %v, want 503 with a cancelled catalog check", code, rep.Checks)
	}
}

func TestNew_CopiesCheckers(t *testing.T) {
	t.Parallel()

	checkers := []Checker{{Name: "catalog", Check: pass}}
	h := New(checkers...)
	checkers[0] = Checker{Name: "catalog", Check: failWith("swapped")}

	if rep := h.Run(context.Background()); !rep.OK() {
		t.Errorf("Run = %+v, caller's slice leaked into the handler", rep)
	}
}

func TestRun_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(3)
	blocking := func(ctx context.Context) error {
		started.Done()
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := New(
		Checker{Name: "catalog", Check: blocking},
		Checker{Name: "snapshots", Check: blocking},
		Checker{Name: "images", Check: blocking},
	)

	go func() {
		started.Wait()
		close(release)
	}()

	rep := h.Run(context.Background())
	if !rep.OK() || len(rep.Checks) != 3 {
		t.Errorf("Run = %+v, want three passing checks", rep)
	}
}
