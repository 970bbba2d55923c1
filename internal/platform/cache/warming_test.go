package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chenshisan2025/YESC0925/internal/platform/observability"
)

type stubProvider struct {
	name  string
	err   error
	calls atomic.Int32
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Warmup(ctx context.Context) error {
	p.calls.Add(1)
	return p.err
}

func testWarmer(cfg WarmupConfig) *Warmer {
	return NewWarmer(observability.NewLogger("error", "json"), cfg)
}

func TestWarmer_Providers(t *testing.T) {
	ok := &stubProvider{name: "ok"}
	bad := &stubProvider{name: "bad", err: errors.New("upstream down")}

	w := testWarmer(DefaultWarmupConfig())
	w.RegisterProvider(ok)
	w.RegisterProvider(bad)

	results := w.Warmup(context.Background())
	if !results.HasErrors() || results.Errors != 1 {
		t.Errorf("Expected 1 error, got %d", results.Errors)
	}
	if len(results.Results) != 2 {
		t.Errorf("Expected 2 results, got %d", len(results.Results))
	}
	if ok.calls.Load() != 1 || bad.calls.Load() != 1 {
		t.Error("Expected each provider to be warmed once")
	}
}

func TestWarmer_SequentialStopsOnError(t *testing.T) {
	bad := &stubProvider{name: "bad", err: errors.New("fail")}
	after := &stubProvider{name: "after"}

	w := testWarmer(WarmupConfig{Timeout: time.Second, Parallel: false, ContinueOnError: false})
	w.RegisterProvider(bad)
	w.RegisterProvider(after)

	w.Warmup(context.Background())
	if after.calls.Load() != 0 {
		t.Error("Expected warm-up to stop after the first failure")
	}
}

func TestWarmer_NoProviders(t *testing.T) {
	results := testWarmer(DefaultWarmupConfig()).Warmup(context.Background())
	if len(results.Results) != 0 || results.HasErrors() {
		t.Errorf("Expected empty results, got %+v", results)
	}
}

func TestWarmKeys_SkipsLiveAndLoadsMissing(t *testing.T) {
	s := NewStore(Options{Name: "api", Capacity: 10, Clock: newFakeClock()})
	s.Set("bscscan:supply:0xa", "cached", 0)

	var fetched atomic.Int32
	fetch := func(ctx context.Context, key string) (any, error) {
		fetched.Add(1)
		if key == "bscscan:holders:0xa:1:10" {
			return nil, errors.New("boom")
		}
		return "fresh:" + key, nil
	}

	keys := []string{"bscscan:supply:0xa", "bscscan:token:0xa", "bscscan:holders:0xa:1:10"}
	results := testWarmer(DefaultWarmupConfig()).WarmKeys(context.Background(), s, keys, fetch)

	if fetched.Load() != 2 {
		t.Errorf("Expected 2 fetches (one key already live), got %d", fetched.Load())
	}
	if results.Skipped != 1 || results.Loaded != 1 || results.Errors != 1 {
		t.Errorf("Unexpected tally: loaded=%d skipped=%d errors=%d", results.Loaded, results.Skipped, results.Errors)
	}
	if v, _ := s.Get("bscscan:supply:0xa"); v != "cached" {
		t.Error("Expected live entry to be left untouched")
	}
	if v, _ := s.Get("bscscan:token:0xa"); v != "fresh:bscscan:token:0xa" {
		t.Errorf("Expected warmed value, got %v", v)
	}
	if s.Has("bscscan:holders:0xa:1:10") {
		t.Error("Expected failed key to stay absent")
	}
}

func TestWarmKeys_BoundedConcurrency(t *testing.T) {
	s := NewStore(Options{Capacity: 100})
	var inFlight, peak atomic.Int32

	fetch := func(ctx context.Context, key string) (any, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return key, nil
	}

	keys := make([]string, 20)
	for i := range keys {
		keys[i] = Key("test", "k", string(rune('a'+i)))
	}

	cfg := DefaultWarmupConfig()
	cfg.Concurrency = 3
	results := testWarmer(cfg).WarmKeys(context.Background(), s, keys, fetch)

	if results.Loaded != 20 {
		t.Errorf("Expected 20 keys loaded, got %d", results.Loaded)
	}
	if peak.Load() > 3 {
		t.Errorf("Expected at most 3 concurrent fetches, saw %d", peak.Load())
	}
}
