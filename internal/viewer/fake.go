package viewer

import (
	"context"
	"fmt"
	"sync"
)

// FakeViewer is a scripted Viewer for tests. Documents are registered up
// front, events are emitted explicitly through Emit, and load-done state is
// set per model, so tests control exactly which signals a model receives.
type FakeViewer struct {
	Dispatcher

	mu        sync.Mutex
	nextID    ModelID
	models    []*BasicModel
	loadDone  map[ModelID]bool
	documents map[string]*Document
	docErrs   map[string]error
	nodeErrs  map[string]error
	loads     []FakeLoad
	aspect    float64

	Cameras     []Camera
	Fits        int
	HomeViews   int
	Invalidates int
}

// FakeLoad records one LoadDocumentNode call.
type FakeLoad struct {
	DocumentID string
	Node       *Node
	Options    LoadOptions
	Model      ModelID
}

// NewFakeViewer returns an empty fake with a 16:9 surface.
func NewFakeViewer() *FakeViewer {
	return &FakeViewer{
		nextID:    1,
		loadDone:  make(map[ModelID]bool),
		documents: make(map[string]*Document),
		docErrs:   make(map[string]error),
		nodeErrs:  make(map[string]error),
		aspect:    16.0 / 9.0,
	}
}

// AddDocument makes id loadable and returns the registered document, which
// has a single master 3D view.
func (f *FakeViewer) AddDocument(id string) *Document {
	doc := &Document{
		URN: id,
		Root: &Node{Type: NodeTypeFolder, Children: []*Node{
			{GUID: id + "-3d", Name: "3D", Type: NodeTypeGeometry, Role: Role3D, IsMasterView: true},
		}},
	}
	f.mu.Lock()
	f.documents[id] = doc
	f.mu.Unlock()
	return doc
}

// SetDocument registers an explicit document tree for id.
func (f *FakeViewer) SetDocument(id string, doc *Document) {
	f.mu.Lock()
	f.documents[id] = doc
	f.mu.Unlock()
}

// FailDocument makes LoadDocument(id) fail with err.
func (f *FakeViewer) FailDocument(id string, err error) {
	f.mu.Lock()
	f.docErrs[id] = err
	f.mu.Unlock()
}

// FailNode makes LoadDocumentNode fail for the document id.
func (f *FakeViewer) FailNode(id string, err error) {
	f.mu.Lock()
	f.nodeErrs[id] = err
	f.mu.Unlock()
}

// AddModel adds a document model directly, bypassing the load path.
func (f *FakeViewer) AddModel() *BasicModel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addModelLocked(false)
}

func (f *FakeViewer) addModelLocked(sceneBuilder bool) *BasicModel {
	m := NewBasicModel(f.nextID, sceneBuilder)
	f.nextID++
	f.models = append(f.models, m)
	return m
}

// RemoveModel drops id from the live model list.
func (f *FakeViewer) RemoveModel(id ModelID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.models {
		if m.ID() == id {
			f.models = append(f.models[:i], f.models[i+1:]...)
			break
		}
	}
	delete(f.loadDone, id)
}

// SetLoadDone sets the answer IsLoadDone gives for id.
func (f *FakeViewer) SetLoadDone(id ModelID, done bool) {
	f.mu.Lock()
	f.loadDone[id] = done
	f.mu.Unlock()
}

// Model returns the live model with id, or nil.
func (f *FakeViewer) Model(id ModelID) *BasicModel {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.models {
		if m.ID() == id {
			return m
		}
	}
	return nil
}

// Loads returns the LoadDocumentNode calls seen so far.
func (f *FakeViewer) Loads() []FakeLoad {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeLoad(nil), f.loads...)
}

// EmitModelEvent emits an event of type t for m.
func (f *FakeViewer) EmitModelEvent(t EventType, m Model) {
	f.Emit(Event{Type: t, Model: m})
}

func (f *FakeViewer) AllModels() []Model {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Model, 0, len(f.models))
	for _, m := range f.models {
		out = append(out, m)
	}
	return out
}

func (f *FakeViewer) IsLoadDone(m Model) bool {
	if m == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadDone[m.ID()]
}

func (f *FakeViewer) LoadDocument(ctx context.Context, documentID string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.docErrs[documentID]; ok {
		return nil, fmt.Errorf("%w: %s: %w", ErrDocumentLoad, documentID, err)
	}
	doc, ok := f.documents[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s: not found", ErrDocumentLoad, documentID)
	}
	return doc, nil
}

func (f *FakeViewer) LoadDocumentNode(ctx context.Context, doc *Document, node *Node, opts LoadOptions) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc == nil || node == nil {
		return nil, fmt.Errorf("load document node: missing document or node")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.nodeErrs[doc.URN]; ok {
		return nil, err
	}
	m := f.addModelLocked(false)
	m.Attach(doc, node, opts)
	f.loads = append(f.loads, FakeLoad{DocumentID: doc.URN, Node: node, Options: opts, Model: m.ID()})
	return m, nil
}

func (f *FakeViewer) AddSceneBuilderModel(ctx context.Context, conserveMemory bool) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addModelLocked(true), nil
}

func (f *FakeViewer) FitToView() {
	f.mu.Lock()
	f.Fits++
	f.mu.Unlock()
	f.Emit(Event{Type: CameraTransitionCompleted})
}

func (f *FakeViewer) SetViewFromCamera(c Camera) {
	f.mu.Lock()
	f.Cameras = append(f.Cameras, c)
	f.mu.Unlock()
}

func (f *FakeViewer) RecordHomeView() {
	f.mu.Lock()
	f.HomeViews++
	f.mu.Unlock()
}

func (f *FakeViewer) Invalidate() {
	f.mu.Lock()
	f.Invalidates++
	f.mu.Unlock()
}

func (f *FakeViewer) Aspect() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aspect
}
