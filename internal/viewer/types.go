// Package viewer describes the boundary to the 3D viewer runtime: the models
// it hosts, the documents it loads, the events it emits and the queries the
// load tracker runs against it. Rendering, streaming and camera math live
// behind these interfaces.
package viewer

import (
	"fmt"
	"math"
	"strconv"
)

// ModelID identifies a model inside one viewer instance.
type ModelID int

func (id ModelID) String() string { return strconv.Itoa(int(id)) }

// Model is a model hosted by the viewer.
type Model interface {
	ID() ModelID
	// IsSceneBuilder reports whether the model was created by the scene
	// builder rather than loaded from a document. Such models carry no
	// document data and are never tracked.
	IsSceneBuilder() bool
	// HasInstanceTree reports whether the model's instance tree is populated.
	HasInstanceTree() bool
}

// Vec3 is a point or direction in scene space.
type Vec3 struct {
	X, Y, Z float64
}

// Matrix4 is a 4x4 transform stored column-major, matching the layout of the
// 16-element placement arrays handed to the viewer.
type Matrix4 [16]float64

// Identity returns the identity transform.
func Identity() Matrix4 {
	return Matrix4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// MatrixFromArray builds a Matrix4 from a column-major array of exactly 16
// finite values.
func MatrixFromArray(values []float64) (Matrix4, error) {
	var m Matrix4
	if len(values) != len(m) {
		return m, fmt.Errorf("placement transform has %d elements, want %d", len(values), len(m))
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return m, fmt.Errorf("placement transform element %d is not finite", i)
		}
		m[i] = v
	}
	return m, nil
}

// At returns the element at row r, column c.
func (m Matrix4) At(r, c int) float64 { return m[c*4+r] }

// Translation returns the translation component of the transform.
func (m Matrix4) Translation() Vec3 { return Vec3{X: m[12], Y: m[13], Z: m[14]} }

// LoadOptions controls how a document node is attached to the scene.
type LoadOptions struct {
	PlacementTransform Matrix4
	GlobalOffset       Vec3
	// PreserveView keeps the current camera instead of fitting to the new model.
	PreserveView bool
	// KeepCurrentModels leaves previously loaded models resident.
	KeepCurrentModels bool
}

// Camera is a camera expressed the way the viewer's view arrays describe it.
type Camera struct {
	Eye         Vec3
	Target      Vec3
	Up          Vec3
	Aspect      float64
	FieldOfView float64 // radians
	OrthoScale  float64
	Perspective bool
}

// ViewArray flattens the camera into the viewer's 13-element view array.
func (c Camera) ViewArray() [13]float64 {
	perspective := 0.0
	if c.Perspective {
		perspective = 1
	}
	return [13]float64{
		c.Eye.X, c.Eye.Y, c.Eye.Z,
		c.Target.X, c.Target.Y, c.Target.Z,
		c.Up.X, c.Up.Y, c.Up.Z,
		c.Aspect,
		c.FieldOfView,
		c.OrthoScale,
		perspective,
	}
}

// EventType names a viewer event.
type EventType string

const (
	GeometryLoaded            EventType = "geometryLoaded"
	ObjectTreeCreated         EventType = "objectTreeCreated"
	CameraTransitionCompleted EventType = "cameraTransitionCompleted"
)

// Event is delivered to listeners registered through AddEventListener.
// Model is nil for events that are not about a model.
type Event struct {
	Type  EventType
	Model Model
}

// Listener receives viewer events.
type Listener func(Event)
