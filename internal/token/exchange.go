// Package token exchanges the relay's service credentials for short-lived
// access tokens, and supplies those tokens to viewer-side clients.
package token

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/signalsfoundry/modelviewer/internal/logging"
	"github.com/signalsfoundry/modelviewer/internal/observability"
	"github.com/signalsfoundry/modelviewer/timectrl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultTokenURL is the authentication service's client-credentials endpoint.
	DefaultTokenURL = "https://developer.api.autodesk.com/authentication/v1/authenticate"
	// DefaultScope grants read access to translated viewables.
	DefaultScope = "viewables:read"
)

// AuthStyle selects how client credentials are sent upstream.
type AuthStyle string

const (
	AuthStyleAuto   AuthStyle = "auto"
	AuthStyleHeader AuthStyle = "header"
	AuthStyleParams AuthStyle = "params"
)

// ParseAuthStyle accepts auto, header or params (case-insensitive). An empty
// string means auto.
func ParseAuthStyle(s string) (AuthStyle, error) {
	switch AuthStyle(strings.ToLower(strings.TrimSpace(s))) {
	case "", AuthStyleAuto:
		return AuthStyleAuto, nil
	case AuthStyleHeader:
		return AuthStyleHeader, nil
	case AuthStyleParams:
		return AuthStyleParams, nil
	default:
		return "", fmt.Errorf("unknown auth style %q", s)
	}
}

func (s AuthStyle) oauth2() oauth2.AuthStyle {
	switch s {
	case AuthStyleHeader:
		return oauth2.AuthStyleInHeader
	case AuthStyleParams:
		return oauth2.AuthStyleInParams
	default:
		return oauth2.AuthStyleAutoDetect
	}
}

// Credentials are the fixed service credentials read at startup.
type Credentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
	AuthStyle    AuthStyle
}

// Response is the token handed back to relay callers.
type Response struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

// UpstreamError reports a failed exchange. StatusCode is the authentication
// service's HTTP status, or 0 when no response was received.
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("token exchange failed with upstream status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// HTTPStatus is the status the relay answers with: the upstream status when
// it is an error status, otherwise 502.
func (e *UpstreamError) HTTPStatus() int {
	if e.StatusCode >= 400 && e.StatusCode <= 599 {
		return e.StatusCode
	}
	return http.StatusBadGateway
}

// ExchangeRecorder receives exchange metrics.
type ExchangeRecorder interface {
	RecordTokenExchange(code int, d time.Duration)
}

// Exchanger performs one client-credentials grant per call. Tokens are
// never cached.
type Exchanger struct {
	cfg    *clientcredentials.Config
	client *http.Client
	clock  timectrl.Clock
	rec    ExchangeRecorder
	log    logging.Logger
}

// Option configures an Exchanger.
type Option func(*Exchanger)

// WithHTTPClient sets the client used for upstream calls.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Exchanger) {
		if c != nil {
			e.client = c
		}
	}
}

// WithClock sets the clock used to compute ExpiresIn.
func WithClock(c timectrl.Clock) Option {
	return func(e *Exchanger) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r ExchangeRecorder) Option {
	return func(e *Exchanger) { e.rec = r }
}

// WithLogger sets the exchanger's logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Exchanger) { e.log = logging.OrNoop(l) }
}

// NewExchanger validates creds and returns an Exchanger.
func NewExchanger(creds Credentials, opts ...Option) (*Exchanger, error) {
	if creds.TokenURL == "" {
		creds.TokenURL = DefaultTokenURL
	}
	if creds.ClientID == "" {
		return nil, errors.New("token: client id is required")
	}
	if creds.ClientSecret == "" {
		return nil, errors.New("token: client secret is required")
	}

	e := &Exchanger{
		cfg: &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenURL,
			Scopes:       strings.Fields(creds.Scope),
			AuthStyle:    creds.AuthStyle.oauth2(),
		},
		client: &http.Client{Timeout: 30 * time.Second},
		clock:  timectrl.SystemClock{},
		log:    logging.Noop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Exchange requests a new access token from the authentication service.
func (e *Exchanger) Exchange(ctx context.Context) (Response, error) {
	ctx, span := observability.StartSpan(ctx, "token.Exchange",
		attribute.String("auth.token_url", e.cfg.TokenURL),
	)
	defer span.End()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)
	start := time.Now()
	tok, err := e.cfg.Token(ctx)
	elapsed := time.Since(start)

	if err != nil {
		uerr := &UpstreamError{Err: err}
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			uerr.StatusCode = rerr.Response.StatusCode
		}
		e.record(uerr.StatusCode, elapsed)
		span.RecordError(uerr)
		span.SetStatus(codes.Error, "upstream exchange failed")
		span.SetAttributes(attribute.Int("auth.upstream_status", uerr.StatusCode))
		e.log.Warn(ctx, "token exchange failed",
			logging.Int("upstream_status", uerr.StatusCode),
			logging.Duration("elapsed", elapsed),
			logging.Err(err),
		)
		return Response{}, uerr
	}

	e.record(http.StatusOK, elapsed)
	resp := Response{AccessToken: tok.AccessToken, ExpiresIn: e.expiresIn(tok)}
	e.log.Debug(ctx, "token exchanged",
		logging.Int("expires_in", resp.ExpiresIn),
		logging.Duration("elapsed", elapsed),
	)
	return resp, nil
}

func (e *Exchanger) expiresIn(tok *oauth2.Token) int {
	if tok.Expiry.IsZero() {
		return 0
	}
	secs := math.Round(tok.Expiry.Sub(e.clock.Now()).Seconds())
	if secs < 0 {
		return 0
	}
	return int(secs)
}

func (e *Exchanger) record(code int, d time.Duration) {
	if e.rec != nil {
		e.rec.RecordTokenExchange(code, d)
	}
}
