package courier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bharathbbg/awb-reconciler/internal/apperror"
	"github.com/bharathbbg/awb-reconciler/internal/logger"
	"github.com/bharathbbg/awb-reconciler/internal/model"
	"github.com/bharathbbg/awb-reconciler/internal/transport"
	"go.uber.org/zap"
)

type Config struct {
	APIURL       string
	EcommerceURL string
	ClientID     string
	UserAgent    string
	// MaxRetries is the per-call budget shared by transport retries and the 401 refresh.
	MaxRetries  int
	ManifestTTL time.Duration
}

type Client struct {
	doer     Doer
	tokens   *TokenManager
	manifest *ManifestCache
	cfg      Config
}

func NewClient(doer Doer, tokens *TokenManager, manifests ManifestStore, cfg Config) *Client {
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.EcommerceURL = strings.TrimRight(cfg.EcommerceURL, "/")
	c := &Client{doer: doer, tokens: tokens, cfg: cfg}
	c.manifest = NewManifestCache(manifests, c.fetchManifest, cfg.ManifestTTL)
	return c
}

// CreateShipment posts the payload with an Idempotency-Key so duplicate triggers dedupe remotely.
func (c *Client) CreateShipment(ctx context.Context, payload model.ShipmentPayload, idempotencyKey string) (*model.CreateResult, error) {
	const op = "courier.create_shipment"
	clientID, err := c.clientIDInt(op)
	if err != nil {
		return nil, err
	}
	payload.ClientID = clientID

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperror.New(apperror.KindMalformed, op, err)
	}

	resp, err := c.call(ctx, FamilyLegacy, transport.Request{
		Method: http.MethodPost,
		URL:    c.cfg.APIURL + "/intern-awb",
		Header: http.Header{
			"Content-Type":    {"application/json"},
			"Idempotency-Key": {idempotencyKey},
			"X-Request-ID":    {idempotencyKey},
		},
		Body: body,
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Response []model.CreateResult `json:"response"`
	}
	if err := resp.Decode(&out); err != nil || len(out.Response) == 0 {
		return nil, &apperror.Error{Kind: apperror.KindMalformed, Op: op, Body: string(resp.Body), Err: err}
	}

	res := out.Response[0]
	if res.AWBNumber == "" {
		msgs := res.FieldErrors()
		if len(msgs) == 0 {
			return &res, &apperror.Error{Kind: apperror.KindMalformed, Op: op, Body: string(resp.Body)}
		}
		return &res, &apperror.Error{Kind: apperror.KindHTTP, Op: op, Code: resp.StatusCode, Body: strings.Join(msgs, " | ")}
	}
	return &res, nil
}

// FetchLabel downloads the A4 PDF label for awb.
func (c *Client) FetchLabel(ctx context.Context, awb string) ([]byte, error) {
	const op = "courier.fetch_label"
	if c.cfg.ClientID == "" {
		return nil, apperror.Config(op, "client id is not configured")
	}
	q := url.Values{
		"clientId": {c.cfg.ClientID},
		"awbs[]":   {awb},
		"pdf":      {"1"},
		"format":   {"A4"},
		"dpi":      {"300"},
	}
	resp, err := c.call(ctx, FamilyLegacy, transport.Request{
		Method: http.MethodGet,
		URL:    c.cfg.APIURL + "/awb/label?" + q.Encode(),
		Header: http.Header{"Accept": {"application/pdf"}},
	})
	if err != nil {
		return nil, err
	}
	if !strings.Contains(strings.ToLower(resp.ContentType), "application/pdf") {
		return nil, &apperror.Error{Kind: apperror.KindMalformed, Op: op, Body: "content-type " + resp.ContentType}
	}
	return resp.Body, nil
}

// FetchTracking returns the events of awb, oldest first as the courier sends them.
func (c *Client) FetchTracking(ctx context.Context, awb string) ([]model.TrackingEvent, error) {
	const op = "courier.fetch_tracking"
	if c.cfg.ClientID == "" {
		return nil, apperror.Config(op, "client id is not configured")
	}
	q := url.Values{"clientId": {c.cfg.ClientID}, "awb[]": {awb}}
	resp, err := c.call(ctx, FamilyLegacy, transport.Request{
		Method: http.MethodGet,
		URL:    c.cfg.APIURL + "/reports/awb/tracking?" + q.Encode(),
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Data []struct {
			Events []model.TrackingEvent `json:"events"`
		} `json:"data"`
	}
	if err := resp.Decode(&out); err != nil {
		return nil, &apperror.Error{Kind: apperror.KindMalformed, Op: op, Body: string(resp.Body), Err: err}
	}
	if len(out.Data) == 0 {
		return nil, nil
	}
	return out.Data[0].Events, nil
}

// FetchManifest lists the raw manifest entries for a day. "No data" is an empty manifest.
func (c *Client) FetchManifest(ctx context.Context, date string) ([]map[string]any, error) {
	return c.fetchManifest(ctx, c.cfg.ClientID, date)
}

func (c *Client) fetchManifest(ctx context.Context, clientID, date string) ([]map[string]any, error) {
	const op = "courier.fetch_manifest"
	if clientID == "" {
		return nil, apperror.Config(op, "client id is not configured")
	}
	q := url.Values{"clientId": {clientID}, "date": {model.NormalizeDate(date)}}
	resp, err := c.call(ctx, FamilyLegacy, transport.Request{
		Method: http.MethodGet,
		URL:    c.cfg.APIURL + "/reports/awb?" + q.Encode(),
	})
	if err != nil {
		if apperror.KindOf(err) == apperror.KindHTTP &&
			(apperror.StatusCode(err) == http.StatusNotFound || noData(apperror.RemoteBody(err))) {
			return nil, nil
		}
		return nil, err
	}

	var out struct {
		Data []map[string]any `json:"data"`
	}
	if err := resp.Decode(&out); err != nil {
		if noData(string(resp.Body)) {
			return nil, nil
		}
		return nil, &apperror.Error{Kind: apperror.KindMalformed, Op: op, Body: string(resp.Body), Err: err}
	}
	return out.Data, nil
}

// AWBExists consults the manifest only. Tracking is never an existence signal.
func (c *Client) AWBExists(ctx context.Context, awb, date string) (bool, error) {
	if c.cfg.ClientID == "" {
		return false, apperror.Config("courier.awb_exists", "client id is not configured")
	}
	return c.manifest.Contains(ctx, c.cfg.ClientID, awb, date)
}

// AWBExistsFresh refetches the manifest for date and refreshes the cache.
// Destructive decisions use it instead of AWBExists.
func (c *Client) AWBExistsFresh(ctx context.Context, awb, date string) (bool, error) {
	if c.cfg.ClientID == "" {
		return false, apperror.Config("courier.awb_exists_fresh", "client id is not configured")
	}
	return c.manifest.ContainsFresh(ctx, c.cfg.ClientID, awb, date)
}

// ForgetManifest drops the cached manifest for date, e.g. after an AWB was added to it.
func (c *Client) ForgetManifest(ctx context.Context, date string) error {
	if c.cfg.ClientID == "" {
		return nil
	}
	return c.manifest.Forget(ctx, c.cfg.ClientID, date)
}

// Ping checks that both API families accept our credentials.
func (c *Client) Ping(ctx context.Context) error {
	for _, f := range []Family{FamilyEcommerce, FamilyLegacy} {
		if _, err := c.tokens.Token(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// call attaches the family's bearer token. A 401 spends one retry from the
// call's budget, invalidates the token once and retries with a fresh one.
func (c *Client) call(ctx context.Context, family Family, req transport.Request) (*transport.Response, error) {
	log := logger.GetLoggerFromCtx(ctx)
	budget := &transport.Budget{Retries: c.cfg.MaxRetries}
	refreshed := false
	for {
		tok, err := c.tokens.Token(ctx, family)
		if err != nil {
			return nil, err
		}

		header := http.Header{}
		for k, v := range req.Header {
			header[k] = v
		}
		header.Set("Authorization", "Bearer "+tok)
		if c.cfg.UserAgent != "" {
			header.Set("User-Agent", c.cfg.UserAgent)
		}
		attempt := req
		attempt.Header = header
		attempt.Budget = budget

		resp, err := c.doer.Do(ctx, attempt)
		if apperror.KindOf(err) != apperror.KindHTTP || apperror.StatusCode(err) != http.StatusUnauthorized {
			return resp, err
		}
		authErr := &apperror.Error{Kind: apperror.KindAuth, Op: req.Method + " " + family.String(),
			Code: http.StatusUnauthorized, Err: err}
		if refreshed {
			return nil, authErr
		}

		if ierr := c.tokens.Invalidate(ctx, family); ierr != nil {
			log.Warn(ctx, "token invalidation failed", zap.String("family", string(family)), zap.Error(ierr))
		}
		if !budget.Spend() {
			return nil, authErr
		}
		refreshed = true
		log.Info(ctx, "courier rejected token, refreshing", zap.String("family", string(family)))
	}
}

func (c *Client) clientIDInt(op string) (int, error) {
	if c.cfg.ClientID == "" {
		return 0, apperror.Config(op, "client id is not configured")
	}
	id, err := strconv.Atoi(c.cfg.ClientID)
	if err != nil {
		return 0, apperror.Config(op, "client id must be numeric")
	}
	return id, nil
}

func (f Family) String() string {
	return string(f)
}

func noData(body string) bool {
	b := strings.ToLower(body)
	return strings.Contains(b, "no data") || strings.Contains(b, "without data")
}
