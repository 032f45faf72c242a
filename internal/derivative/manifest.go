// Package derivative reads translated-document manifests from the model
// derivative service, or from a directory of saved manifests, and turns them
// into viewer documents.
package derivative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/signalsfoundry/modelviewer/internal/viewer"
)

// ErrNotTranslated reports a manifest whose translation has not succeeded.
var ErrNotTranslated = errors.New("document is not translated")

// DocumentLoader resolves a document id into its derivative tree.
type DocumentLoader interface {
	Load(ctx context.Context, documentID string) (*viewer.Document, error)
}

// Manifest is the subset of the derivative service's manifest we read.
type Manifest struct {
	URN         string         `json:"urn"`
	Status      string         `json:"status"`
	Progress    string         `json:"progress"`
	Derivatives []ManifestNode `json:"derivatives"`
}

// ManifestNode is one entry of the manifest tree.
type ManifestNode struct {
	GUID         string         `json:"guid"`
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	URN          string         `json:"urn"`
	Status       string         `json:"status"`
	OutputType   string         `json:"outputType"`
	IsMasterView bool           `json:"isMasterView"`
	Children     []ManifestNode `json:"children"`
}

// URN normalises a document id: surrounding space and a leading "urn:" are
// removed.
func URN(documentID string) string {
	id := strings.TrimSpace(documentID)
	if len(id) >= 4 && strings.EqualFold(id[:4], "urn:") {
		id = id[4:]
	}
	return id
}

// ParseManifest decodes a manifest body.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// Document converts the manifest into a viewer document. Failed
// translations yield ErrNotTranslated.
func (m *Manifest) Document() (*viewer.Document, error) {
	if strings.EqualFold(m.Status, "failed") || strings.EqualFold(m.Status, "timeout") {
		return nil, fmt.Errorf("%w: %s status %s", ErrNotTranslated, m.URN, m.Status)
	}
	root := &viewer.Node{Type: viewer.NodeTypeFolder, Name: m.URN}
	for _, d := range m.Derivatives {
		if d.Status != "" && !strings.EqualFold(d.Status, "success") {
			continue
		}
		root.Children = append(root.Children, convert(d))
	}
	if len(root.Children) == 0 {
		return nil, fmt.Errorf("%w: %s has no successful derivatives", ErrNotTranslated, m.URN)
	}
	return &viewer.Document{URN: m.URN, Root: root}, nil
}

func convert(n ManifestNode) *viewer.Node {
	out := &viewer.Node{
		GUID:         n.GUID,
		Name:         n.Name,
		Type:         n.Type,
		Role:         n.Role,
		URN:          n.URN,
		IsMasterView: n.IsMasterView,
	}
	if out.Type == "" && n.OutputType != "" {
		out.Type = viewer.NodeTypeFolder
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, convert(c))
	}
	return out
}
