package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bharathbbg/awb-reconciler/internal/apperror"
)

func newTestClient(maxRetries int) (*Client, *[]time.Duration) {
	var slept []time.Duration
	c := NewClient(Config{Timeout: 2 * time.Second, MaxRetries: maxRetries}, nil)
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func TestDoRetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, slept := newTestClient(2)
	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	var body struct{ OK bool }
	if err := resp.Decode(&body); err != nil || !body.OK {
		t.Fatalf("expected decoded body, got %+v err=%v", body, err)
	}
	if len(*slept) != 2 || (*slept)[0] != 200*time.Millisecond || (*slept)[1] != 400*time.Millisecond {
		t.Fatalf("unexpected backoff sequence %v", *slept)
	}
}

func TestDoBackoffIsCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, slept := newTestClient(6)
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	if !apperror.Is(err, apperror.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	want := []time.Duration{200, 400, 800, 1600, 2000, 2000}
	if len(*slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), *slept)
	}
	for i, d := range want {
		if (*slept)[i] != d*time.Millisecond {
			t.Fatalf("sleep %d: expected %v, got %v", i, d*time.Millisecond, (*slept)[i])
		}
	}
}

func TestDoClientErrorIsTerminal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"invalid county"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(2)
	_, err := c.Do(context.Background(), Request{Method: http.MethodPost, URL: srv.URL})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if apperror.KindOf(err) != apperror.KindHTTP || apperror.StatusCode(err) != 400 {
		t.Fatalf("expected terminal http 400, got %v", err)
	}
	if apperror.RemoteBody(err) != `{"message":"invalid county"}` {
		t.Fatalf("expected body to be kept, got %q", apperror.RemoteBody(err))
	}
}

func TestDoReturnsRawBodyForBinary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 binary"))
	}))
	defer srv.Close()

	c, _ := newTestClient(0)
	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.JSON {
		t.Fatalf("pdf must not be flagged as json")
	}
	if resp.ContentType != "application/pdf" || string(resp.Body) != "%PDF-1.4 binary" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestDoRetriesConnectionFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, slept := newTestClient(2)
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: url})
	if !apperror.Is(err, apperror.KindNetwork) {
		t.Fatalf("expected network failure, got %v", err)
	}
	if len(*slept) != 2 {
		t.Fatalf("expected 2 retries, got %d", len(*slept))
	}
}

func TestDoSpendsSharedBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := newTestClient(5)
	budget := &Budget{Retries: 1}
	req := Request{Method: http.MethodGet, URL: srv.URL, Budget: budget}

	if _, err := c.Do(context.Background(), req); !apperror.Is(err, apperror.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if calls != 2 || budget.Retries != 0 {
		t.Fatalf("expected one retry from the budget, got calls=%d left=%d", calls, budget.Retries)
	}

	if _, err := c.Do(context.Background(), req); !apperror.Is(err, apperror.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("an exhausted budget allows a single attempt, got %d calls", calls)
	}
}
