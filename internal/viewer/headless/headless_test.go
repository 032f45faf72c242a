package headless

import (
	"context"
	"errors"
	"testing"

	"github.com/signalsfoundry/modelviewer/internal/tracker"
	"github.com/signalsfoundry/modelviewer/internal/viewer"
)

type queuePoster struct{ fns []func() }

func (q *queuePoster) Post(fn func()) { q.fns = append(q.fns, fn) }

func (q *queuePoster) flush() {
	for len(q.fns) > 0 {
		fn := q.fns[0]
		q.fns = q.fns[1:]
		fn()
	}
}

type mapLoader map[string]*viewer.Document

func (m mapLoader) Load(_ context.Context, id string) (*viewer.Document, error) {
	doc, ok := m[id]
	if !ok {
		return nil, errors.New("no such manifest")
	}
	return doc, nil
}

func houseDoc() *viewer.Document {
	return &viewer.Document{URN: "house", Root: &viewer.Node{Type: viewer.NodeTypeFolder, Children: []*viewer.Node{
		{GUID: "g", Type: viewer.NodeTypeGeometry, Role: viewer.Role3D},
	}}}
}

func TestLoadedNodeRaisesEventsOnLoop(t *testing.T) {
	loop := &queuePoster{}
	v := New(mapLoader{"house": houseDoc()}, loop)
	tr := tracker.New()
	tr.Attach(v)

	doc, err := v.LoadDocument(context.Background(), "house")
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	m, err := v.LoadDocumentNode(context.Background(), doc, doc.Root.DefaultGeometry(), viewer.LoadOptions{})
	if err != nil {
		t.Fatalf("LoadDocumentNode: %v", err)
	}
	if len(loop.fns) != 2 {
		t.Fatalf("posted events = %d, want 2", len(loop.fns))
	}
	tr.DocumentNodeLoaded(m)
	if tr.Len() != 1 {
		t.Fatalf("pending before loop drain = %d, want 1", tr.Len())
	}
	loop.flush()
	if tr.Len() != 0 {
		t.Fatalf("pending after events = %v, want none", tr.Pending())
	}
	if !m.HasInstanceTree() || !v.IsLoadDone(m) {
		t.Fatalf("model should report instance tree and load done")
	}
}

func TestSuppressedEventsAreRecoveredByReconcile(t *testing.T) {
	loop := &queuePoster{}
	v := New(mapLoader{"house": houseDoc()}, loop, WithSuppressedEvents(viewer.ObjectTreeCreated))
	loaded := 0
	tr := tracker.New(tracker.WithOnLoaded(func(viewer.Model) { loaded++ }))
	tr.Attach(v)

	doc, _ := v.LoadDocument(context.Background(), "house")
	m, err := v.LoadDocumentNode(context.Background(), doc, doc.Root.DefaultGeometry(), viewer.LoadOptions{})
	if err != nil {
		t.Fatalf("LoadDocumentNode: %v", err)
	}
	tr.DocumentNodeLoaded(m)
	loop.flush()
	if tr.Len() != 1 || loaded != 0 {
		t.Fatalf("pending=%d loaded=%d, want 1 pending and none loaded", tr.Len(), loaded)
	}

	res := tr.Reconcile(context.Background(), v)
	if len(res.Recovered) != 1 || loaded != 1 {
		t.Fatalf("reconcile = %+v loaded=%d, want one recovered", res, loaded)
	}
}

func TestUnloadedModelVanishes(t *testing.T) {
	loop := &queuePoster{}
	v := New(mapLoader{"house": houseDoc()}, loop, WithSuppressedEvents(viewer.GeometryLoaded, viewer.ObjectTreeCreated))
	tr := tracker.New()

	doc, _ := v.LoadDocument(context.Background(), "house")
	m, _ := v.LoadDocumentNode(context.Background(), doc, doc.Root.DefaultGeometry(), viewer.LoadOptions{})
	tr.DocumentNodeLoaded(m)
	v.Unload(m.ID())

	res := tr.Reconcile(context.Background(), v)
	if len(res.Vanished) != 1 || tr.Len() != 0 {
		t.Fatalf("reconcile = %+v, want model vanished", res)
	}
}

func TestLoadDocumentWrapsFailure(t *testing.T) {
	v := New(mapLoader{}, &queuePoster{})
	if _, err := v.LoadDocument(context.Background(), "missing"); !errors.Is(err, viewer.ErrDocumentLoad) {
		t.Fatalf("LoadDocument error = %v, want ErrDocumentLoad", err)
	}
}

func TestSceneBuilderModelsAndHomeView(t *testing.T) {
	loop := &queuePoster{}
	v := New(mapLoader{}, loop, WithAspect(2))
	m, err := v.AddSceneBuilderModel(context.Background(), true)
	if err != nil || !m.IsSceneBuilder() {
		t.Fatalf("AddSceneBuilderModel = %v, %v", m, err)
	}
	if v.Aspect() != 2 {
		t.Fatalf("Aspect = %v, want 2", v.Aspect())
	}

	cam := viewer.Camera{Eye: viewer.Vec3{X: 1, Y: 1, Z: 1}, Perspective: true}
	v.SetViewFromCamera(cam)
	transitions := 0
	v.AddEventListener(viewer.CameraTransitionCompleted, func(viewer.Event) {
		transitions++
		v.RecordHomeView()
	})
	v.FitToView()
	loop.flush()

	home, ok := v.HomeView()
	if !ok || home != cam || transitions != 1 {
		t.Fatalf("HomeView = %+v,%v transitions=%d", home, ok, transitions)
	}
}
