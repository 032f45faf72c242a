package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/signalsfoundry/modelviewer/internal/tracker"
	"github.com/signalsfoundry/modelviewer/internal/viewer"
)

var shifted = []float64{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	10, 20, 30, 1,
}

type failureCount int

func (f *failureCount) DocumentLoadFailed() { *f++ }

func TestLoadAllAttachesInOrderWithPlacement(t *testing.T) {
	fv := viewer.NewFakeViewer()
	fv.AddDocument("a")
	fv.AddDocument("b")
	tr := tracker.New()

	sum, err := New(fv, tr).LoadAll(context.Background(), []Placement{
		{DocumentID: "a", Matrix: shifted},
		{DocumentID: "b"},
	})
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if sum.Requested != 2 || len(sum.Attached) != 2 || len(sum.Failed) != 0 {
		t.Fatalf("summary = %+v, want 2 attached", sum)
	}

	loads := fv.Loads()
	if loads[0].DocumentID != "a" || loads[1].DocumentID != "b" {
		t.Fatalf("load order = %s,%s, want a,b", loads[0].DocumentID, loads[1].DocumentID)
	}
	opts := loads[0].Options
	if got := opts.PlacementTransform.Translation(); got != (viewer.Vec3{X: 10, Y: 20, Z: 30}) {
		t.Fatalf("translation = %+v, want (10,20,30)", got)
	}
	if opts.GlobalOffset != (viewer.Vec3{}) || !opts.PreserveView || !opts.KeepCurrentModels {
		t.Fatalf("options = %+v, want zero offset with preserveView and keepCurrentModels", opts)
	}
	if loads[1].Options.PlacementTransform != viewer.Identity() {
		t.Fatalf("missing matrix should load with identity transform")
	}
	if loads[0].Node.GUID != "a-3d" {
		t.Fatalf("node = %s, want default geometry a-3d", loads[0].Node.GUID)
	}

	for _, id := range sum.Attached {
		st, ok := tr.Status(id)
		if !ok || !st.DocumentNodeLoaded || st.GeometryLoaded {
			t.Fatalf("status(%v) = %+v,%v; want only document node loaded", id, st, ok)
		}
	}
}

func TestLoadAllContinuesPastFailures(t *testing.T) {
	fv := viewer.NewFakeViewer()
	fv.AddDocument("ok-1")
	fv.FailDocument("broken", errors.New("404"))
	fv.SetDocument("flat", &viewer.Document{URN: "flat", Root: &viewer.Node{Type: viewer.NodeTypeFolder}})
	fv.AddDocument("bad-node")
	fv.FailNode("bad-node", errors.New("svf missing"))
	fv.AddDocument("ok-2")

	var failures failureCount
	sum, err := New(fv, tracker.New(), WithFailureRecorder(&failures)).LoadAll(context.Background(), []Placement{
		{DocumentID: "ok-1"},
		{DocumentID: "broken"},
		{DocumentID: "flat"},
		{DocumentID: "bad-node"},
		{DocumentID: "ok-2"},
	})
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if want := []string{"broken", "flat", "bad-node"}; !reflect.DeepEqual(sum.Failed, want) {
		t.Fatalf("Failed = %v, want %v", sum.Failed, want)
	}
	if len(sum.Attached) != 2 || failures != 3 {
		t.Fatalf("attached = %d failures = %d, want 2 and 3", len(sum.Attached), failures)
	}
	if got := fv.Loads(); got[len(got)-1].DocumentID != "ok-2" {
		t.Fatalf("last load = %s, want ok-2 after failures", got[len(got)-1].DocumentID)
	}
}

func TestLoadAllStopsOnCancel(t *testing.T) {
	fv := viewer.NewFakeViewer()
	fv.AddDocument("a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := New(fv, tracker.New()).LoadAll(ctx, []Placement{{DocumentID: "a"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("LoadAll error = %v, want context.Canceled", err)
	}
	if len(sum.Attached) != 0 || len(sum.Failed) != 0 {
		t.Fatalf("summary = %+v, want nothing processed", sum)
	}
}

func TestLoadAllUsesDispatcher(t *testing.T) {
	fv := viewer.NewFakeViewer()
	fv.AddDocument("a")
	calls := 0
	dispatch := func(_ context.Context, fn func()) error {
		calls++
		fn()
		return nil
	}
	if _, err := New(fv, tracker.New(), WithDispatcher(dispatch)).LoadAll(context.Background(), []Placement{{DocumentID: "a"}}); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if calls != 1 {
		t.Fatalf("dispatcher calls = %d, want 1", calls)
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestReadPlacementsFormats(t *testing.T) {
	cases := map[string]string{
		"list.yaml": `
- documentId: urn:a
  matrix: [1,0,0,0, 0,1,0,0, 0,0,1,0, 5,0,0,1]
- documentId: urn:b
`,
		"wrapped.yml": `
documents:
  - documentId: urn:a
    matrix: [1,0,0,0, 0,1,0,0, 0,0,1,0, 5,0,0,1]
  - documentId: urn:b
`,
		"list.json": `[{"documentId":"urn:a","matrix":[1,0,0,0,0,1,0,0,0,0,1,0,5,0,0,1]},{"documentId":"urn:b"}]`,
		"commented.jsonc": `{
  // the two test houses
  "documents": [
    {"documentId": "urn:a", "matrix": [1,0,0,0, 0,1,0,0, 0,0,1,0, 5,0,0,1]},
    {"documentId": "urn:b"}, /* trailing comma allowed */
  ],
}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := ReadPlacements(writeFile(t, name, body))
			if err != nil {
				t.Fatalf("ReadPlacements: %v", err)
			}
			if len(got) != 2 || got[0].DocumentID != "urn:a" || got[1].DocumentID != "urn:b" {
				t.Fatalf("placements = %+v", got)
			}
			mx, err := got[0].Transform()
			if err != nil || mx.Translation().X != 5 {
				t.Fatalf("transform = %v, %v; want x translation 5", mx, err)
			}
		})
	}
}

func TestReadPlacementsRejectsBadMatrix(t *testing.T) {
	path := writeFile(t, "bad.json", `[{"documentId":"a","matrix":[1,2,3]},{"documentId":""}]`)
	_, err := ReadPlacements(path)
	if !errors.Is(err, ErrInvalidPlacement) {
		t.Fatalf("ReadPlacements error = %v, want ErrInvalidPlacement", err)
	}
}

func TestReadPlacementsRejectsUnknownExtension(t *testing.T) {
	if _, err := ReadPlacements(writeFile(t, "p.toml", "")); err == nil {
		t.Fatalf("expected error for .toml")
	}
}
