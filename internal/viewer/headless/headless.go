// Package headless implements viewer.Viewer without rendering. It keeps the
// bookkeeping a real viewer exposes (models, load state, camera) and raises
// the same completion events so the load tracker can be run end to end.
package headless

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalsfoundry/modelviewer/internal/derivative"
	"github.com/signalsfoundry/modelviewer/internal/logging"
	"github.com/signalsfoundry/modelviewer/internal/viewer"
)

// Poster runs callbacks on the session's event loop.
type Poster interface {
	Post(fn func())
}

// Viewer is a bookkeeping viewer.Viewer.
type Viewer struct {
	viewer.Dispatcher

	docs     derivative.DocumentLoader
	loop     Poster
	log      logging.Logger
	aspect   float64
	suppress map[viewer.EventType]bool

	mu       sync.Mutex
	nextID   viewer.ModelID
	models   []*viewer.BasicModel
	loadDone map[viewer.ModelID]bool
	camera   viewer.Camera
	home     *viewer.Camera
}

// Option configures a Viewer.
type Option func(*Viewer)

// WithLogger sets the viewer's logger.
func WithLogger(l logging.Logger) Option {
	return func(v *Viewer) { v.log = logging.OrNoop(l) }
}

// WithAspect sets the surface's width/height ratio.
func WithAspect(a float64) Option {
	return func(v *Viewer) {
		if a > 0 {
			v.aspect = a
		}
	}
}

// WithSuppressedEvents stops the viewer from raising the given model events.
// The model still finishes loading, so the tracker must recover it by
// reconciliation.
func WithSuppressedEvents(types ...viewer.EventType) Option {
	return func(v *Viewer) {
		for _, t := range types {
			v.suppress[t] = true
		}
	}
}

// New returns a viewer resolving documents through docs and delivering
// events on loop.
func New(docs derivative.DocumentLoader, loop Poster, opts ...Option) *Viewer {
	v := &Viewer{
		docs:     docs,
		loop:     loop,
		log:      logging.Noop(),
		aspect:   16.0 / 9.0,
		suppress: make(map[viewer.EventType]bool),
		nextID:   1,
		loadDone: make(map[viewer.ModelID]bool),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Viewer) LoadDocument(ctx context.Context, documentID string) (*viewer.Document, error) {
	doc, err := v.docs.Load(ctx, documentID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", viewer.ErrDocumentLoad, documentID, err)
	}
	return doc, nil
}

// LoadDocumentNode attaches node as a new model. Geometry and the object
// tree become available right away; their events are posted to the loop.
func (v *Viewer) LoadDocumentNode(ctx context.Context, doc *viewer.Document, node *viewer.Node, opts viewer.LoadOptions) (viewer.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc == nil || node == nil {
		return nil, fmt.Errorf("load document node: missing document or node")
	}

	v.mu.Lock()
	m := v.newModelLocked(false)
	m.Attach(doc, node, opts)
	m.SetInstanceTree(true)
	v.loadDone[m.ID()] = true
	v.mu.Unlock()

	v.log.Debug(ctx, "document node attached",
		logging.Int("model_id", int(m.ID())),
		logging.String("urn", doc.URN),
		logging.String("node_guid", node.GUID),
	)
	v.raise(viewer.Event{Type: viewer.GeometryLoaded, Model: m})
	v.raise(viewer.Event{Type: viewer.ObjectTreeCreated, Model: m})
	return m, nil
}

func (v *Viewer) AddSceneBuilderModel(ctx context.Context, conserveMemory bool) (viewer.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	m := v.newModelLocked(true)
	v.mu.Unlock()
	v.log.Debug(ctx, "scene builder model added",
		logging.Int("model_id", int(m.ID())),
		logging.Bool("conserve_memory", conserveMemory),
	)
	return m, nil
}

func (v *Viewer) newModelLocked(sceneBuilder bool) *viewer.BasicModel {
	m := viewer.NewBasicModel(v.nextID, sceneBuilder)
	v.nextID++
	v.models = append(v.models, m)
	return m
}

func (v *Viewer) raise(ev viewer.Event) {
	if v.suppress[ev.Type] {
		return
	}
	v.loop.Post(func() { v.Emit(ev) })
}

func (v *Viewer) AllModels() []viewer.Model {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]viewer.Model, 0, len(v.models))
	for _, m := range v.models {
		out = append(out, m)
	}
	return out
}

func (v *Viewer) IsLoadDone(m viewer.Model) bool {
	if m == nil {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loadDone[m.ID()]
}

// Unload removes a model, as a user closing it would.
func (v *Viewer) Unload(id viewer.ModelID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, m := range v.models {
		if m.ID() == id {
			v.models = append(v.models[:i], v.models[i+1:]...)
			break
		}
	}
	delete(v.loadDone, id)
}

// FitToView frames the scene; the camera transition completes on the loop.
func (v *Viewer) FitToView() {
	v.loop.Post(func() { v.Emit(viewer.Event{Type: viewer.CameraTransitionCompleted}) })
}

func (v *Viewer) SetViewFromCamera(c viewer.Camera) {
	v.mu.Lock()
	v.camera = c
	v.mu.Unlock()
}

func (v *Viewer) RecordHomeView() {
	v.mu.Lock()
	c := v.camera
	v.home = &c
	v.mu.Unlock()
}

// Invalidate requests a redraw. Nothing is drawn headless.
func (v *Viewer) Invalidate() {}

func (v *Viewer) Aspect() float64 { return v.aspect }

// Camera returns the current camera.
func (v *Viewer) Camera() viewer.Camera {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.camera
}

// HomeView returns the recorded home camera, if any.
func (v *Viewer) HomeView() (viewer.Camera, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.home == nil {
		return viewer.Camera{}, false
	}
	return *v.home, true
}

var _ viewer.Viewer = (*Viewer)(nil)
