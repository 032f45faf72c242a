// Package loader reads placement lists and attaches each listed document to
// the shared viewer, one at a time.
package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/signalsfoundry/modelviewer/internal/viewer"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ErrInvalidPlacement reports a placement entry that cannot be loaded.
var ErrInvalidPlacement = errors.New("invalid placement")

// Placement is one document to load and where to put it. Matrix holds 16
// column-major values.
type Placement struct {
	DocumentID string    `json:"documentId" yaml:"documentId"`
	Matrix     []float64 `json:"matrix" yaml:"matrix"`
}

// Transform returns the placement matrix.
func (p Placement) Transform() (viewer.Matrix4, error) {
	if len(p.Matrix) == 0 {
		return viewer.Identity(), nil
	}
	return viewer.MatrixFromArray(p.Matrix)
}

// Validate checks the document id and matrix.
func (p Placement) Validate() error {
	if strings.TrimSpace(p.DocumentID) == "" {
		return fmt.Errorf("%w: empty documentId", ErrInvalidPlacement)
	}
	if _, err := p.Transform(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidPlacement, p.DocumentID, err)
	}
	return nil
}

type placementFile struct {
	Documents []Placement `json:"documents" yaml:"documents"`
}

// ReadPlacements loads a placement list from a .yaml, .yml, .json or .jsonc
// file. The file holds either a bare list or an object with a "documents"
// list.
func ReadPlacements(path string) ([]Placement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read placements: %w", err)
	}
	var list []Placement
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		list, err = decodeYAML(data)
	case ".json", ".jsonc":
		list, err = decodeJSON(jsonc.ToJSON(data))
	default:
		return nil, fmt.Errorf("read placements: unsupported file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse placements %s: %w", path, err)
	}

	var errs []error
	for i, p := range list {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return list, nil
}

func decodeYAML(data []byte) ([]Placement, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	if node.Content[0].Kind == yaml.SequenceNode {
		var list []Placement
		err := node.Decode(&list)
		return list, err
	}
	var f placementFile
	err := node.Decode(&f)
	return f.Documents, err
}

func decodeJSON(data []byte) ([]Placement, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var list []Placement
		err := json.Unmarshal(data, &list)
		return list, err
	}
	var f placementFile
	err := json.Unmarshal(data, &f)
	return f.Documents, err
}
