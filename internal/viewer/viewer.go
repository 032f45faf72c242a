package viewer

import (
	"context"
	"errors"
)

// ErrDocumentLoad wraps failures reported by the viewer's document loader.
var ErrDocumentLoad = errors.New("document load failed")

// EventSource delivers viewer events. The returned func removes the listener.
type EventSource interface {
	AddEventListener(t EventType, l Listener) (remove func())
}

// Inspector answers questions about the models currently hosted.
type Inspector interface {
	AllModels() []Model
	// IsLoadDone reports whether the viewer considers m fully loaded.
	IsLoadDone(m Model) bool
}

// Viewer is the subset of the viewer runtime the session drives.
type Viewer interface {
	EventSource
	Inspector

	// LoadDocument fetches a translated document by id.
	LoadDocument(ctx context.Context, documentID string) (*Document, error)
	// LoadDocumentNode attaches one node of doc to the scene as a new model.
	LoadDocumentNode(ctx context.Context, doc *Document, node *Node, opts LoadOptions) (Model, error)
	// AddSceneBuilderModel creates an empty scene-builder model.
	AddSceneBuilderModel(ctx context.Context, conserveMemory bool) (Model, error)

	FitToView()
	SetViewFromCamera(c Camera)
	RecordHomeView()
	Invalidate()
	// Aspect is the width/height ratio of the viewer surface.
	Aspect() float64
}
