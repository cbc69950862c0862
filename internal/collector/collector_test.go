package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"joke-pipeline/internal/config"
)

const punJoke = `{"id":1,"type":"pun","setup":"Why?","punchline":"Because."}`

func newTestCollector(t *testing.T, url string, window time.Duration, onMalformed string) *Collector {
	t.Helper()

	c, err := New(
		config.APIConfig{URL: url, Timeout: time.Second, UserAgent: "joke-pipeline/test"},
		config.CollectorConfig{
			Duration:    window,
			Pause:       10 * time.Millisecond,
			Timezone:    "Asia/Kolkata",
			OnMalformed: onMalformed,
		},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestCollectSingleScenario(t *testing.T) {
	var served int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "joke-pipeline/test" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		if atomic.AddInt32(&served, 1) > 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(punJoke))
	}))
	defer srv.Close()

	c := newTestCollector(t, srv.URL, 100*time.Millisecond, config.OnMalformedFail)

	jokes, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(jokes) != 1 {
		t.Fatalf("Expected 1 joke, got %d", len(jokes))
	}

	j := jokes[0]
	if j.ID != 1 || j.Type != "pun" || j.Setup != "Why?" || j.Punchline != "Because." {
		t.Errorf("Unexpected joke: %+v", j)
	}
	if j.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
	if j.Timestamp.Location().String() != "Asia/Kolkata" {
		t.Errorf("Timestamp zone = %s, want Asia/Kolkata", j.Timestamp.Location())
	}
	if j.Timestamp.Nanosecond() != 0 {
		t.Errorf("Timestamp should have second precision, got %v", j.Timestamp)
	}
}

func TestCollectCountsOnlySuccessfulIterations(t *testing.T) {
	var calls, successes int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1)%2 == 0 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		atomic.AddInt32(&successes, 1)
		w.Write([]byte(punJoke))
	}))
	defer srv.Close()

	window := 150 * time.Millisecond
	c := newTestCollector(t, srv.URL, window, config.OnMalformedFail)

	start := time.Now()
	jokes, err := c.Collect(context.Background())
	end := time.Now()
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if int32(len(jokes)) != atomic.LoadInt32(&successes) {
		t.Errorf("len(jokes) = %d, successful iterations = %d", len(jokes), successes)
	}
	if atomic.LoadInt32(&calls) < 2 {
		t.Errorf("Expected repeated polling, got %d calls", calls)
	}
	if end.Sub(start) < window {
		t.Errorf("Collect returned after %v, before the %v window", end.Sub(start), window)
	}

	lower := start.Truncate(time.Second)
	for i, j := range jokes {
		if j.Timestamp.Before(lower) || j.Timestamp.After(end) {
			t.Errorf("joke %d timestamp %v outside [%v, %v]", i, j.Timestamp, lower, end)
		}
		if i > 0 && j.Timestamp.Before(jokes[i-1].Timestamp) {
			t.Errorf("joke %d captured before joke %d", i, i-1)
		}
	}
}

func TestCollectNetworkFailureYieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestCollector(t, url, 80*time.Millisecond, config.OnMalformedFail)

	jokes, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if jokes == nil {
		t.Fatal("Expected an empty, non-nil sequence")
	}
	if len(jokes) != 0 {
		t.Errorf("Expected no jokes, got %d", len(jokes))
	}
}

func TestCollectMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"id":1,`},
		{"missing punchline", `{"id":1,"type":"pun","setup":"Why?"}`},
		{"missing id", `{"type":"pun","setup":"Why?","punchline":"Because."}`},
		{"wrong id type", `{"id":"one","type":"pun","setup":"Why?","punchline":"Because."}`},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/fail", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestCollector(t, srv.URL, time.Second, config.OnMalformedFail)

			start := time.Now()
			jokes, err := c.Collect(context.Background())
			if !errors.Is(err, ErrMalformedJoke) {
				t.Fatalf("Collect() error = %v, want ErrMalformedJoke", err)
			}
			if len(jokes) != 0 {
				t.Errorf("Expected no jokes, got %d", len(jokes))
			}
			if time.Since(start) >= time.Second {
				t.Error("Collection should stop early on a malformed payload")
			}
		})

		t.Run(tt.name+"/skip", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestCollector(t, srv.URL, 60*time.Millisecond, config.OnMalformedSkip)

			jokes, err := c.Collect(context.Background())
			if err != nil {
				t.Fatalf("Collect() error = %v", err)
			}
			if len(jokes) != 0 {
				t.Errorf("Expected no jokes, got %d", len(jokes))
			}
		})
	}
}

func TestCollectOversizedBody(t *testing.T) {
	huge := `{"id":1,"type":"pun","setup":"` + strings.Repeat("a", maxBodyBytes) + `","punchline":"Because."}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(huge))
	}))
	defer srv.Close()

	c := newTestCollector(t, srv.URL, time.Second, config.OnMalformedFail)

	jokes, err := c.Collect(context.Background())
	if !errors.Is(err, ErrMalformedJoke) {
		t.Fatalf("Collect() error = %v, want ErrMalformedJoke", err)
	}
	if len(jokes) != 0 {
		t.Errorf("Expected no jokes, got %d", len(jokes))
	}
}

func TestCollectBodyAtLimit(t *testing.T) {
	prefix := `{"id":1,"type":"pun","setup":"`
	suffix := `","punchline":"Because."}`
	body := prefix + strings.Repeat("a", maxBodyBytes-len(prefix)-len(suffix)) + suffix
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c := newTestCollector(t, srv.URL, 30*time.Millisecond, config.OnMalformedFail)

	jokes, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(jokes) == 0 {
		t.Error("Expected a body of exactly the limit to be accepted")
	}
}

func TestCollectContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(punJoke))
	}))
	defer srv.Close()

	c := newTestCollector(t, srv.URL, 10*time.Second, config.OnMalformedFail)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Collect(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Collect() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestCollectUsesClock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(punJoke))
	}))
	defer srv.Close()

	fixed := time.Date(2024, 6, 20, 6, 30, 15, 987654321, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		// start, loop check, capture stamp; the next loop check closes the window.
		if calls > 3 {
			return fixed.Add(time.Hour)
		}
		return fixed
	}

	c, err := New(
		config.APIConfig{URL: srv.URL, Timeout: time.Second},
		config.CollectorConfig{Duration: time.Minute, Timezone: "Asia/Kolkata", OnMalformed: config.OnMalformedFail},
		WithClock(clock),
		WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	jokes, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(jokes) != 1 {
		t.Fatalf("Expected 1 joke, got %d", len(jokes))
	}

	want := "2024-06-20 12:00:15 +0530"
	if got := jokes[0].Timestamp.Format("2006-01-02 15:04:05 -0700"); got != want {
		t.Errorf("Timestamp = %s, want %s", got, want)
	}
}

func TestNewInvalidTimezone(t *testing.T) {
	_, err := New(config.APIConfig{}, config.CollectorConfig{Timezone: "Nowhere/Land"})
	if err == nil {
		t.Error("Expected error for unknown timezone")
	}
}
