package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/modelviewer/internal/logging"
	"github.com/signalsfoundry/modelviewer/internal/observability"
	"github.com/signalsfoundry/modelviewer/internal/viewer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrNoGeometry reports a document without a default geometry node.
var ErrNoGeometry = errors.New("document has no default geometry")

// Target is the part of the viewer the loader drives.
type Target interface {
	LoadDocument(ctx context.Context, documentID string) (*viewer.Document, error)
	LoadDocumentNode(ctx context.Context, doc *viewer.Document, node *viewer.Node, opts viewer.LoadOptions) (viewer.Model, error)
}

// Marker records that a model's document node finished loading.
type Marker interface {
	DocumentNodeLoaded(m viewer.Model) bool
}

// FailureRecorder counts documents that could not be attached.
type FailureRecorder interface {
	DocumentLoadFailed()
}

// Dispatcher runs fn on the thread that owns the tracker.
type Dispatcher func(ctx context.Context, fn func()) error

// Summary describes one LoadAll batch.
type Summary struct {
	Requested int
	Attached  []viewer.ModelID
	Failed    []string
}

// Loader attaches placements to a Target.
type Loader struct {
	target   Target
	marker   Marker
	log      logging.Logger
	rec      FailureRecorder
	dispatch Dispatcher
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(l logging.Logger) Option {
	return func(ld *Loader) { ld.log = logging.OrNoop(l) }
}

// WithFailureRecorder sets the failed-document counter.
func WithFailureRecorder(r FailureRecorder) Option {
	return func(ld *Loader) { ld.rec = r }
}

// WithDispatcher routes Marker calls through d, typically an event loop's
// Do. By default they run on the calling goroutine.
func WithDispatcher(d Dispatcher) Option {
	return func(ld *Loader) {
		if d != nil {
			ld.dispatch = d
		}
	}
}

// New returns a Loader attaching to target and reporting to marker.
func New(target Target, marker Marker, opts ...Option) *Loader {
	ld := &Loader{
		target: target,
		marker: marker,
		log:    logging.Noop(),
		dispatch: func(_ context.Context, fn func()) error {
			fn()
			return nil
		},
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// LoadAll loads placements in order, waiting for each document node before
// starting the next. A failing document is logged and skipped. Only context
// cancellation ends the batch early, and its error is returned with the
// partial summary.
func (ld *Loader) LoadAll(ctx context.Context, placements []Placement) (Summary, error) {
	ctx, span := observability.StartSpan(ctx, "loader.LoadAll", attribute.Int("documents.requested", len(placements)))
	defer span.End()

	sum := Summary{Requested: len(placements)}
	for _, p := range placements {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return sum, err
		}
		id, err := ld.loadOne(ctx, p)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				span.SetStatus(codes.Error, "cancelled")
				return sum, ctxErr
			}
			sum.Failed = append(sum.Failed, p.DocumentID)
			if ld.rec != nil {
				ld.rec.DocumentLoadFailed()
			}
			ld.log.Error(ctx, "document load failed",
				logging.String("document_id", p.DocumentID),
				logging.Err(err),
			)
			continue
		}
		sum.Attached = append(sum.Attached, id)
	}

	span.SetAttributes(
		attribute.Int("documents.attached", len(sum.Attached)),
		attribute.Int("documents.failed", len(sum.Failed)),
	)
	ld.log.Info(ctx, "bulk load finished",
		logging.Int("requested", sum.Requested),
		logging.Int("attached", len(sum.Attached)),
		logging.Int("failed", len(sum.Failed)),
	)
	return sum, nil
}

func (ld *Loader) loadOne(ctx context.Context, p Placement) (viewer.ModelID, error) {
	ctx, span := observability.StartSpan(ctx, "loader.LoadDocument", attribute.String("document.id", p.DocumentID))
	defer span.End()

	fail := func(err error) (viewer.ModelID, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "document load failed")
		return 0, err
	}

	mx, err := p.Transform()
	if err != nil {
		return fail(err)
	}
	doc, err := ld.target.LoadDocument(ctx, p.DocumentID)
	if err != nil {
		return fail(err)
	}
	if doc == nil || doc.Root == nil {
		return fail(fmt.Errorf("%w: %s", ErrNoGeometry, p.DocumentID))
	}
	node := doc.Root.DefaultGeometry()
	if node == nil {
		return fail(fmt.Errorf("%w: %s", ErrNoGeometry, p.DocumentID))
	}

	model, err := ld.target.LoadDocumentNode(ctx, doc, node, viewer.LoadOptions{
		PlacementTransform: mx,
		GlobalOffset:       viewer.Vec3{},
		PreserveView:       true,
		KeepCurrentModels:  true,
	})
	if err != nil {
		return fail(fmt.Errorf("load node %s of %s: %w", node.GUID, p.DocumentID, err))
	}

	if err := ld.dispatch(ctx, func() { ld.marker.DocumentNodeLoaded(model) }); err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.Int("model.id", int(model.ID())))
	ld.log.Debug(ctx, "document node loaded",
		logging.String("document_id", p.DocumentID),
		logging.String("node_guid", node.GUID),
		logging.Int("model_id", int(model.ID())),
	)
	return model.ID(), nil
}
