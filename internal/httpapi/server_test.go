package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/modelviewer/internal/observability"
	"github.com/signalsfoundry/modelviewer/internal/token"
	"github.com/stretchr/testify/require"
)

type stubExchanger struct {
	resp  token.Response
	err   error
	calls int
}

func (s *stubExchanger) Exchange(context.Context) (token.Response, error) {
	s.calls++
	return s.resp, s.err
}

func serve(t *testing.T, h http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestTokenReturnsCamelCaseBody(t *testing.T) {
	ex := &stubExchanger{resp: token.Response{AccessToken: "abc", ExpiresIn: 3599}}
	h := NewHandler(context.Background(), ex, Config{})

	rr := serve(t, h, http.MethodGet, "/token", map[string]string{"Origin": "https://viewer.example"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	require.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, map[string]any{"accessToken": "abc", "expiresIn": float64(3599)}, body)
}

func TestTokenFetchesFreshTokenPerRequest(t *testing.T) {
	ex := &stubExchanger{resp: token.Response{AccessToken: "abc", ExpiresIn: 10}}
	h := NewHandler(context.Background(), ex, Config{})
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, serve(t, h, http.MethodGet, "/token", nil).Code)
	}
	require.Equal(t, 3, ex.calls)
}

func TestTokenPropagatesUpstreamStatus(t *testing.T) {
	ex := &stubExchanger{err: &token.UpstreamError{StatusCode: http.StatusUnauthorized, Err: errors.New("invalid_client")}}
	h := NewHandler(context.Background(), ex, Config{})

	rr := serve(t, h, http.MethodGet, "/token", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Contains(t, body, "error")
	require.NotContains(t, body, "accessToken")
	require.NotContains(t, body, "expiresIn")
}

func TestTokenErrorBodyHidesUpstreamDetail(t *testing.T) {
	upstream := &token.UpstreamError{
		StatusCode: http.StatusBadRequest,
		Err:        errors.New(`oauth2: cannot fetch token: 400 Bad Request Response: {"error":"invalid_scope","client":"c-123"}`),
	}
	h := NewHandler(context.Background(), &stubExchanger{err: upstream}, Config{})

	rr := serve(t, h, http.MethodGet, "/token", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, map[string]any{"error": "token exchange failed"}, body)
	require.NotContains(t, rr.Body.String(), "c-123")
}

func TestTokenUnknownFailureIsBadGateway(t *testing.T) {
	h := NewHandler(context.Background(), &stubExchanger{err: errors.New("boom")}, Config{})
	require.Equal(t, http.StatusBadGateway, serve(t, h, http.MethodGet, "/token", nil).Code)
}

func TestCORSPreflightAllowsGetOnly(t *testing.T) {
	ex := &stubExchanger{}
	h := NewHandler(context.Background(), ex, Config{})

	rr := serve(t, h, http.MethodOptions, "/token", map[string]string{
		"Origin":                        "https://elsewhere.example",
		"Access-Control-Request-Method": "GET",
	})
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "GET", rr.Header().Get("Access-Control-Allow-Methods"))
	require.Zero(t, ex.calls)
}

func TestTokenRejectsOtherMethods(t *testing.T) {
	ex := &stubExchanger{}
	h := NewHandler(context.Background(), ex, Config{})
	rr := serve(t, h, http.MethodPost, "/token", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	require.Equal(t, "GET", rr.Header().Get("Allow"))
	require.Zero(t, ex.calls)
}

func TestRequestIDIsPreserved(t *testing.T) {
	h := NewHandler(context.Background(), &stubExchanger{}, Config{})
	rr := serve(t, h, http.MethodGet, "/healthz", map[string]string{"X-Request-ID": "req-42"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "req-42", rr.Header().Get("X-Request-ID"))
}

func TestRecoveryAnswers500(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("kaboom") }), Recovery(nil))
	rr := serve(t, h, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.JSONEq(t, `{"error":"internal server error"}`, rr.Body.String())
}

func TestMetricsRecordedPerRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := observability.NewRelayCollector(reg)
	require.NoError(t, err)

	h := NewHandler(context.Background(), &stubExchanger{resp: token.Response{AccessToken: "a"}}, Config{}, WithMetrics(rec))
	serve(t, h, http.MethodGet, "/token", nil)
	serve(t, h, http.MethodGet, "/nope", nil)

	require.Equal(t, 1.0, testutil.ToFloat64(rec.HTTPRequests.WithLabelValues("GET", "/token", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(rec.HTTPRequests.WithLabelValues("GET", "other", "404")))
}

func TestRateLimitRejectsBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex := &stubExchanger{resp: token.Response{AccessToken: "a"}}
	h := NewHandler(ctx, ex, Config{RateLimit: 0.001, RateBurst: 2})
	require.Equal(t, http.StatusOK, serve(t, h, http.MethodGet, "/token", nil).Code)
	require.Equal(t, http.StatusOK, serve(t, h, http.MethodGet, "/token", nil).Code)
	require.Equal(t, http.StatusTooManyRequests, serve(t, h, http.MethodGet, "/token", nil).Code)
	require.Equal(t, 2, ex.calls)
}

func TestSwaggerServedOnlyWhenEnabled(t *testing.T) {
	off := NewHandler(context.Background(), &stubExchanger{}, Config{})
	require.Equal(t, http.StatusNotFound, serve(t, off, http.MethodGet, "/swagger/v1/swagger.json", nil).Code)

	on := NewHandler(context.Background(), &stubExchanger{}, Config{Swagger: true})
	rr := serve(t, on, http.MethodGet, "/swagger/v1/swagger.json", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	doc, err := openapi3.NewLoader().LoadFromData(rr.Body.Bytes())
	require.NoError(t, err)
	require.NoError(t, doc.Validate(context.Background()))
	op := doc.Paths["/token"].Get
	require.NotNil(t, op)
	require.Equal(t, "GetToken", op.OperationID)
}
