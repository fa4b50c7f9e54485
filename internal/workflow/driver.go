// Package workflow drives the load → upload → identify → reset cycle and
// keeps the phase machine in step with the data each step produces.
package workflow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Brownie44l1/waste-api/internal/classify"
	"github.com/Brownie44l1/waste-api/internal/imaging"
	"github.com/Brownie44l1/waste-api/internal/logging"
	"github.com/Brownie44l1/waste-api/internal/metrics"
	"github.com/Brownie44l1/waste-api/internal/model"
	"github.com/Brownie44l1/waste-api/internal/phase"
	"github.com/Brownie44l1/waste-api/internal/store"
)

const (
	OpLoadModel     = "workflow.load_model"
	OpTriggerUpload = "workflow.trigger_upload"
	OpFileSelected  = "workflow.file_selected"
	OpIdentify      = "workflow.identify"
	OpReset         = "workflow.reset"
)

// FileInput is the file-selection surface the user picks images from.
type FileInput interface {
	Open()
	Clear()
}

// Images stores uploaded image bytes behind opaque IDs.
type Images interface {
	Put(name, contentType string, data []byte) store.Blob
	Get(id string) (store.Blob, bool)
	Touch(id string) bool
	Release(id string)
}

// File is one user-selected file.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Completion describes a finished classification.
type Completion struct {
	SessionID string
	Image     Image
	Result    classify.Result
	Took      time.Duration
	At        time.Time
}

// Recorder receives every completed classification.
type Recorder interface {
	Record(ctx context.Context, c Completion) error
}

type Options struct {
	// ID identifies the driver in logs and completions.
	ID string
	// RecoverOnFailure moves a failed step back to the phase it started from
	// and surfaces the failure. When false the phase stays in progress.
	RecoverOnFailure bool
	Metrics          *metrics.WorkflowMetrics
	Recorder         Recorder
	Logger           *zap.Logger
}

// Driver runs workflow operations for one user. At most one operation is in
// flight at a time; a concurrent call gets ErrBusy.
type Driver struct {
	id      string
	loader  model.Loader
	images  Images
	input   FileInput
	recover bool
	metrics *metrics.WorkflowMetrics
	rec     Recorder
	logger  *zap.Logger

	busy   atomic.Bool
	closed atomic.Bool

	mu    sync.RWMutex
	snap  Snapshot
	model model.Model
}

func NewDriver(loader model.Loader, images Images, input FileInput, opts Options) *Driver {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		id:      opts.ID,
		loader:  loader,
		images:  images,
		input:   input,
		recover: opts.RecoverOnFailure,
		metrics: opts.Metrics,
		rec:     opts.Recorder,
		logger:  logger.Named("workflow").With(zap.String("session_id", opts.ID)),
		snap:    Snapshot{Phase: phase.Initial},
	}
}

func (d *Driver) ID() string { return d.id }

// Snapshot returns a copy of the current state.
func (d *Driver) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snap.clone()
}

// ModelLoaded reports whether a model handle is held.
func (d *Driver) ModelLoaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.model != nil
}

// KeepAlive restarts the expiry of the selected image so it lives as long as
// the session that shows it.
func (d *Driver) KeepAlive() {
	if img := d.Snapshot().Image; img != nil {
		d.images.Touch(img.ID)
	}
}

// Press runs the action bound to the primary button in the current phase and
// returns it. Phases without an action do nothing.
func (d *Driver) Press(ctx context.Context) (phase.Action, error) {
	action := d.Snapshot().Phase.Action()
	var err error
	switch action {
	case phase.ActionLoadModel:
		err = d.LoadModel(ctx)
	case phase.ActionUpload:
		err = d.TriggerUpload()
	case phase.ActionIdentify:
		err = d.Identify(ctx)
	case phase.ActionReset:
		err = d.Reset(ctx)
	case phase.ActionNone:
	}
	return action, err
}

// LoadModel advances to LoadingModel, loads the model and advances again.
func (d *Driver) LoadModel(ctx context.Context) error {
	if err := d.acquire(OpLoadModel); err != nil {
		return err
	}
	defer d.busy.Store(false)

	d.advance(nil)

	m, err := d.loader.Load(ctx)
	if err != nil {
		return d.fail(OpLoadModel, AssetLoadFailure, err)
	}

	d.advance(func(_ *Snapshot) { d.model = m })
	d.logger.Info("model ready")
	return nil
}

// TriggerUpload opens the file-selection surface. Completion arrives
// separately through HandleFileSelected.
func (d *Driver) TriggerUpload() error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.input.Open()
	logging.WithOperation(d.logger, OpTriggerUpload, "").Debug("file input opened")
	return nil
}

// HandleFileSelected stores the first of files as the selected image and
// advances. With no files it changes nothing.
func (d *Driver) HandleFileSelected(files []File) error {
	if len(files) == 0 {
		return nil
	}
	if err := d.acquire(OpFileSelected); err != nil {
		return err
	}
	defer d.busy.Store(false)

	f := files[0]
	blob := d.images.Put(f.Name, f.ContentType, f.Data)
	img := &Image{ID: blob.ID, Name: f.Name, ContentType: f.ContentType, Size: len(f.Data)}

	var previous *Image
	d.advance(func(s *Snapshot) {
		previous = s.Image
		s.Image = img
	})
	if previous != nil {
		d.images.Release(previous.ID)
	}
	d.logger.Info("image selected", zap.String("image_id", img.ID), zap.Int("bytes", img.Size))
	return nil
}

// Identify advances to Identifying, classifies the selected image and
// advances to Complete with the result.
func (d *Driver) Identify(ctx context.Context) error {
	if err := d.acquire(OpIdentify); err != nil {
		return err
	}
	defer d.busy.Store(false)

	var (
		img *Image
		m   model.Model
	)
	d.advance(func(s *Snapshot) {
		img = s.Image
		m = d.model
	})

	start := time.Now()
	if m == nil {
		return d.fail(OpIdentify, InferenceFailure, ErrNoModel)
	}
	if img == nil {
		return d.fail(OpIdentify, DecodeFailure, ErrNoImage)
	}
	blob, ok := d.images.Get(img.ID)
	if !ok {
		return d.fail(OpIdentify, DecodeFailure, ErrNoImage)
	}

	tensor, err := imaging.Tensor(blob.Data)
	if err != nil {
		return d.fail(OpIdentify, DecodeFailure, err)
	}

	result, err := model.Classify(ctx, m, tensor)
	if err != nil {
		return d.fail(OpIdentify, InferenceFailure, err)
	}
	took := time.Since(start)

	d.advance(func(s *Snapshot) { s.Result = result })
	d.metrics.RecordClassification(result.BestLabel(), took)
	d.logger.Info("image identified",
		zap.String("label", result.BestLabel()),
		zap.Duration("took", took))

	if d.rec != nil {
		c := Completion{SessionID: d.id, Image: *img, Result: result, Took: took, At: time.Now().UTC()}
		if err := d.rec.Record(ctx, c); err != nil {
			d.logger.Warn("failed to record classification", zap.Error(err))
		}
	}
	return nil
}

// Reset clears the file input, the result and the selected image, then
// advances. The loaded model is kept.
func (d *Driver) Reset(ctx context.Context) error {
	if err := d.acquire(OpReset); err != nil {
		return err
	}
	defer d.busy.Store(false)

	d.input.Clear()

	var previous *Image
	d.advance(func(s *Snapshot) {
		previous = s.Image
		s.Image = nil
		s.Result = classify.Result{}
	})
	if previous != nil {
		d.images.Release(previous.ID)
	}
	d.logger.Debug("workflow reset")
	return nil
}

// Close releases the selected image. Later operations return ErrClosed.
// The model belongs to the loader and stays open.
func (d *Driver) Close() {
	if d.closed.Swap(true) {
		return
	}
	d.mu.Lock()
	img := d.snap.Image
	d.snap.Image = nil
	d.mu.Unlock()
	if img != nil {
		d.images.Release(img.ID)
	}
}

func (d *Driver) acquire(op string) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if !d.busy.CompareAndSwap(false, true) {
		d.metrics.RecordRejected(op)
		d.logger.Warn("operation rejected while busy", zap.String("operation", op))
		return ErrBusy
	}
	return nil
}

// advance applies mutate to a copy of the snapshot, follows the Next edge and
// swaps the copy in. A successful step clears any earlier failure.
func (d *Driver) advance(mutate func(s *Snapshot)) Snapshot {
	return d.commit(func(s *Snapshot) {
		if mutate != nil {
			mutate(s)
		}
		s.Failure = nil
		s.Phase = phase.Advance(s.Phase)
	})
}

func (d *Driver) commit(mutate func(s *Snapshot)) Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := d.snap.clone()
	mutate(&next)
	next.Version = d.snap.Version + 1
	if next.Phase != d.snap.Phase {
		d.metrics.RecordTransition(d.snap.Phase.String(), next.Phase.String())
	}
	d.snap = next
	return next.clone()
}

func (d *Driver) fail(op string, kind FailureKind, err error) error {
	cur := d.Snapshot().Phase
	f := &Failure{Kind: kind, Operation: op, Phase: cur, Err: err}
	d.metrics.RecordFailure(string(kind))
	logging.WithOperation(d.logger, op, "").Error("workflow step failed",
		zap.String("kind", string(kind)),
		zap.Stringer("phase", cur),
		zap.Error(err))

	if d.recover {
		d.commit(func(s *Snapshot) {
			s.Phase = phase.Recover(s.Phase)
			s.Failure = f
		})
	}
	return f
}
