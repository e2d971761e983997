package courier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bharathbbg/awb-reconciler/internal/apperror"
	"github.com/bharathbbg/awb-reconciler/internal/logger"
	"github.com/bharathbbg/awb-reconciler/internal/metrics"
	"github.com/bharathbbg/awb-reconciler/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	tokenLifetime = 24 * time.Hour
	refreshMargin = 5 * time.Minute
)

// Family names one of the courier's two independently authenticated APIs.
type Family string

const (
	FamilyEcommerce Family = "ecommerce"
	FamilyLegacy    Family = "legacy"
)

type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Fresh reports whether the token is usable without a refresh.
func (t Token) Fresh(now time.Time) bool {
	return t.Value != "" && t.ExpiresAt.After(now.Add(refreshMargin))
}

type TokenStore interface {
	LoadToken(ctx context.Context, family Family) (Token, bool, error)
	SaveToken(ctx context.Context, family Family, tok Token) error
	DeleteToken(ctx context.Context, family Family) error
}

// Doer is the transport the courier client runs on.
type Doer interface {
	Do(ctx context.Context, req transport.Request) (*transport.Response, error)
}

type Credentials struct {
	Domain   string
	Username string
	Password string
}

// loginScheme is the only thing that differs between families.
type loginScheme struct {
	url     string
	request func() (body []byte, contentType string, ok bool)
	parse   func(resp *transport.Response) string
}

type TokenManager struct {
	doer    Doer
	store   TokenStore
	schemes map[Family]loginScheme
	now     func() time.Time
	group   singleflight.Group
}

func NewTokenManager(doer Doer, store TokenStore, apiURL, ecommerceURL string, creds Credentials) *TokenManager {
	return &TokenManager{
		doer:  doer,
		store: store,
		now:   time.Now,
		schemes: map[Family]loginScheme{
			FamilyEcommerce: {
				url: strings.TrimRight(ecommerceURL, "/") + "/authShop",
				request: func() ([]byte, string, bool) {
					form := url.Values{"domain": {creds.Domain}}
					return []byte(form.Encode()), "application/x-www-form-urlencoded", creds.Domain != ""
				},
				parse: func(resp *transport.Response) string {
					var body struct {
						Token string `json:"token"`
					}
					if resp.Decode(&body) != nil {
						return ""
					}
					return body.Token
				},
			},
			FamilyLegacy: {
				url: strings.TrimRight(apiURL, "/") + "/login",
				request: func() ([]byte, string, bool) {
					b, _ := json.Marshal(map[string]string{"username": creds.Username, "password": creds.Password})
					return b, "application/json", creds.Username != "" && creds.Password != ""
				},
				parse: func(resp *transport.Response) string {
					var body struct {
						Data struct {
							Token string `json:"token"`
						} `json:"data"`
					}
					if resp.Decode(&body) != nil {
						return ""
					}
					return body.Data.Token
				},
			},
		},
	}
}

// Token returns a cached bearer token for family, logging in when it is absent or close to expiry.
func (m *TokenManager) Token(ctx context.Context, family Family) (string, error) {
	scheme, ok := m.schemes[family]
	if !ok {
		return "", apperror.Config("token", "unknown api family "+string(family))
	}

	tok, found, err := m.store.LoadToken(ctx, family)
	if err != nil {
		logger.GetLoggerFromCtx(ctx).Warn(ctx, "token store read failed",
			zap.String("family", string(family)), zap.Error(err))
	}
	if found && tok.Fresh(m.now()) {
		return tok.Value, nil
	}

	v, err, _ := m.group.Do(string(family), func() (any, error) {
		return m.login(ctx, family, scheme)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next call logs in again.
func (m *TokenManager) Invalidate(ctx context.Context, family Family) error {
	return m.store.DeleteToken(ctx, family)
}

func (m *TokenManager) login(ctx context.Context, family Family, scheme loginScheme) (string, error) {
	op := "login " + string(family)
	body, contentType, ok := scheme.request()
	if !ok {
		return "", apperror.Config(op, "credentials are not configured")
	}

	resp, err := m.doer.Do(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    scheme.url,
		Header: http.Header{"Content-Type": {contentType}},
		Body:   body,
	})
	if err != nil {
		return "", apperror.New(apperror.KindAuth, op, err)
	}

	value := scheme.parse(resp)
	if value == "" {
		return "", &apperror.Error{Kind: apperror.KindAuth, Op: op, Body: string(resp.Body),
			Err: apperror.New(apperror.KindMalformed, op, nil)}
	}

	tok := Token{Value: value, ExpiresAt: m.now().Add(tokenLifetime)}
	if err := m.store.SaveToken(ctx, family, tok); err != nil {
		logger.GetLoggerFromCtx(ctx).Warn(ctx, "token store write failed",
			zap.String("family", string(family)), zap.Error(err))
	}
	metrics.TokenRefreshesTotal.WithLabelValues(string(family)).Inc()
	logger.GetLoggerFromCtx(ctx).Info(ctx, "courier token refreshed", zap.String("family", string(family)))
	return value, nil
}

// MemoryTokenStore keeps tokens for the life of the process.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[Family]Token
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[Family]Token)}
}

func (s *MemoryTokenStore) LoadToken(_ context.Context, family Family) (Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[family]
	return tok, ok, nil
}

func (s *MemoryTokenStore) SaveToken(_ context.Context, family Family, tok Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[family] = tok
	return nil
}

func (s *MemoryTokenStore) DeleteToken(_ context.Context, family Family) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, family)
	return nil
}
