package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bharathbbg/awb-reconciler/internal/apperror"
	"github.com/bharathbbg/awb-reconciler/internal/logger"
	"go.uber.org/zap"
)

const (
	DefaultTimeout     = 20 * time.Second
	DefaultMaxRetries  = 2
	DefaultBaseBackoff = 200 * time.Millisecond
	DefaultMaxBackoff  = 2000 * time.Millisecond
)

// Observer receives per-attempt telemetry.
type Observer interface {
	ObserveAttempt(host string, status int, elapsed time.Duration, err error)
	ObserveRetry(reason string)
}

type Config struct {
	Timeout     time.Duration
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	UserAgent   string
}

type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	// Budget, when set, replaces Config.MaxRetries and is spent by every retry.
	Budget *Budget
}

// Budget is a retry allowance that can span several Do calls.
type Budget struct {
	Retries int
}

// Spend takes one retry from b, reporting false when none is left.
func (b *Budget) Spend() bool {
	if b.Retries <= 0 {
		return false
	}
	b.Retries--
	return true
}

// Response is a 2xx reply. JSON is false when the body did not decode.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
	JSON        bool
}

// Decode unmarshals a JSON body into v.
func (r *Response) Decode(v any) error {
	if !r.JSON {
		return fmt.Errorf("response is %q, not json", r.ContentType)
	}
	return json.Unmarshal(r.Body, v)
}

type Client struct {
	http     *http.Client
	cfg      Config
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config, observer Observer) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultBaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 10
	tr.IdleConnTimeout = 90 * time.Second

	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout, Transport: tr},
		cfg:      cfg,
		observer: observer,
		sleep:    sleepCtx,
	}
}

func (c *Client) MaxRetries() int {
	return c.cfg.MaxRetries
}

// Do sends req, retrying connection failures and 429/5xx with capped exponential backoff.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	op := req.Method + " " + pathOf(req.URL)
	host := hostOf(req.URL)
	backoff := c.cfg.BaseBackoff
	budget := req.Budget
	if budget == nil {
		budget = &Budget{Retries: c.cfg.MaxRetries}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if !budget.Spend() {
				return nil, lastErr
			}
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, apperror.New(apperror.KindNetwork, op, err)
			}
			backoff *= 2
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
		}

		resp, err := c.attempt(ctx, host, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, apperror.New(apperror.KindNetwork, op, err)
			}
			lastErr = apperror.New(apperror.KindNetwork, op, err)
			c.retry(ctx, "network", attempt, budget, op, err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		if retryableStatus(resp.StatusCode) {
			lastErr = &apperror.Error{Kind: apperror.KindUnavailable, Op: op, Code: resp.StatusCode, Body: string(resp.Body)}
			c.retry(ctx, "status_"+strconv.Itoa(resp.StatusCode), attempt, budget, op, lastErr)
			continue
		}
		return nil, apperror.HTTP(op, resp.StatusCode, string(resp.Body))
	}
}

func (c *Client) attempt(ctx context.Context, host string, req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" && c.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.observe(host, 0, time.Since(start), err)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.observe(host, resp.StatusCode, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
		JSON:        len(data) > 0 && json.Valid(data),
	}, nil
}

func (c *Client) retry(ctx context.Context, reason string, attempt int, budget *Budget, op string, err error) {
	if budget.Retries <= 0 {
		return
	}
	if c.observer != nil {
		c.observer.ObserveRetry(reason)
	}
	logger.GetLoggerFromCtx(ctx).Warn(ctx, "courier request failed, retrying",
		zap.String("op", op), zap.Int("attempt", attempt+1), zap.Error(err))
}

func (c *Client) observe(host string, status int, elapsed time.Duration, err error) {
	if c.observer != nil {
		c.observer.ObserveAttempt(host, status, elapsed, err)
	}
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid"
	}
	return u.Host
}

func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}

// IsRetryable reports whether err is a transient class the client already retried.
func IsRetryable(err error) bool {
	k := apperror.KindOf(err)
	return k == apperror.KindNetwork || k == apperror.KindUnavailable || errors.Is(err, context.DeadlineExceeded)
}
