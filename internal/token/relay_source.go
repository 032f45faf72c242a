package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/signalsfoundry/modelviewer/timectrl"
	"golang.org/x/oauth2"
)

// RelaySource is the viewer's access-token supplier: an oauth2.TokenSource
// that asks the relay's GET /token endpoint for a fresh token on every call.
// Wrap it with oauth2.ReuseTokenSource to reuse tokens until they expire.
type RelaySource struct {
	ctx    context.Context
	url    string
	client *http.Client
	clock  timectrl.Clock
}

// NewRelaySource returns a source fetching from url, the full address of the
// relay's token route. ctx bounds every fetch.
func NewRelaySource(ctx context.Context, url string, client *http.Client) *RelaySource {
	if ctx == nil {
		ctx = context.Background()
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RelaySource{ctx: ctx, url: url, client: client, clock: timectrl.SystemClock{}}
}

// Token implements oauth2.TokenSource.
func (s *RelaySource) Token() (*oauth2.Token, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch token from relay: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read relay response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay returned status %d: %s", resp.StatusCode, body)
	}

	var tr Response
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decode relay response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, errors.New("relay response missing accessToken")
	}

	tok := &oauth2.Token{AccessToken: tr.AccessToken, TokenType: "Bearer"}
	if tr.ExpiresIn > 0 {
		tok.Expiry = s.clock.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return tok, nil
}
