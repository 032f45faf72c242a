package derivative

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/signalsfoundry/modelviewer/internal/observability"
	"github.com/signalsfoundry/modelviewer/internal/viewer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the derivative service's host.
const DefaultBaseURL = "https://developer.api.autodesk.com"

// Client fetches manifests over HTTP, authorising each call with a token
// from its source.
type Client struct {
	base string
	hc   *http.Client
}

// NewClient returns a client for base using tokens from ts. ts is normally a
// reusing wrapper around token.RelaySource.
func NewClient(ctx context.Context, base string, ts oauth2.TokenSource) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	if ctx == nil {
		ctx = context.Background()
	}
	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = 30 * time.Second
	return &Client{base: strings.TrimRight(base, "/"), hc: hc}
}

// Load implements DocumentLoader.
func (c *Client) Load(ctx context.Context, documentID string) (*viewer.Document, error) {
	urn := URN(documentID)
	ctx, span := observability.StartSpan(ctx, "derivative.Load", attribute.String("document.urn", urn))
	defer span.End()

	doc, err := c.load(ctx, urn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "manifest load failed")
		return nil, err
	}
	return doc, nil
}

func (c *Client) load(ctx context.Context, urn string) (*viewer.Document, error) {
	if urn == "" {
		return nil, fmt.Errorf("empty document id")
	}
	endpoint := c.base + "/modelderivative/v2/designdata/" + url.PathEscape(urn) + "/manifest"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build manifest request: %w", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest %s: %w", urn, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", urn, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch manifest %s: status %d", urn, resp.StatusCode)
	}
	m, err := ParseManifest(body)
	if err != nil {
		return nil, err
	}
	if m.URN == "" {
		m.URN = urn
	}
	return m.Document()
}

// DirLoader reads manifests saved as <dir>/<urn>.json.
type DirLoader struct {
	Dir string
}

// Load implements DocumentLoader.
func (d DirLoader) Load(ctx context.Context, documentID string) (*viewer.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	urn := URN(documentID)
	if urn == "" || strings.ContainsAny(urn, `/\`) || urn == "." || urn == ".." {
		return nil, fmt.Errorf("invalid document id %q", documentID)
	}
	data, err := os.ReadFile(filepath.Join(d.Dir, urn+".json"))
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", urn, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	if m.URN == "" {
		m.URN = urn
	}
	return m.Document()
}
