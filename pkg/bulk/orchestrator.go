package bulk

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianhq/aegis/pkg/activity"
	"github.com/meridianhq/aegis/pkg/directory"
	"github.com/meridianhq/aegis/pkg/observability"
)

// UserAdmin is the slice of engine surface bulk operations act through.
// Going through the engine rather than the directory keeps cascades
// intact: a bulk delete still revokes the target's sessions.
type UserAdmin interface {
	SuspendUser(ctx context.Context, id, reason string, duration time.Duration) bool
	ActivateUser(ctx context.Context, id string) bool
	DeleteUser(ctx context.Context, id string) bool
	UpdateUser(ctx context.Context, id string, patch directory.UserPatch) (bool, error)
	GetUser(id string) (*directory.User, bool)
}

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	Admin    UserAdmin
	Recorder activity.Recorder
	Logger   *observability.Logger
	Metrics  *observability.Metrics

	// Delay is the pause between items, throttling large batches.
	Delay time.Duration

	Clock func() time.Time
}

const defaultItemDelay = 25 * time.Millisecond

// Orchestrator runs bulk operations asynchronously. Items within one
// operation are processed sequentially; a failed item is recorded and
// the batch continues.
type Orchestrator struct {
	admin    UserAdmin
	recorder activity.Recorder
	logger   *observability.Logger
	metrics  *observability.Metrics
	delay    time.Duration
	now      func() time.Time

	mu  sync.RWMutex
	ops map[string]*handle
}

// NewOrchestrator creates a bulk operation orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Recorder == nil {
		cfg.Recorder = activity.NopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewNopMetrics()
	}
	if cfg.Delay <= 0 {
		cfg.Delay = defaultItemDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Orchestrator{
		admin:    cfg.Admin,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		delay:    cfg.Delay,
		now:      cfg.Clock,
		ops:      make(map[string]*handle),
	}
}

// handle is the live mutable state behind an operation snapshot.
type handle struct {
	mu     sync.Mutex
	op     Operation
	cancel context.CancelFunc
	done   chan struct{}
}

func (h *handle) snapshot() *Operation {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := h.op
	cp.TargetIDs = append([]string{}, h.op.TargetIDs...)
	cp.Errors = append([]ItemError{}, h.op.Errors...)
	if h.op.Output != nil {
		cp.Output = append([]byte{}, h.op.Output...)
	}
	if h.op.StartedAt != nil {
		at := *h.op.StartedAt
		cp.StartedAt = &at
	}
	if h.op.CompletedAt != nil {
		at := *h.op.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

// Start validates the request, registers the operation, and begins
// processing in the background. The returned snapshot has status
// pending; poll Get for progress.
func (o *Orchestrator) Start(ctx context.Context, opType OperationType, targetIDs []string, payload Payload) (*Operation, error) {
	if err := validateRequest(opType, targetIDs, payload); err != nil {
		return nil, err
	}
	if payload != nil && opType != payload.operationType() {
		return nil, &ValidationError{Field: "payload", Reason: fmt.Sprintf("payload does not match operation type %q", opType)}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	h := &handle{
		op: Operation{
			ID:        uuid.NewString(),
			Type:      opType,
			TargetIDs: append([]string{}, targetIDs...),
			Status:    StatusPending,
			CreatedAt: o.now().UTC(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	o.mu.Lock()
	o.ops[h.op.ID] = h
	o.mu.Unlock()

	go func() {
		defer observability.RecoverPanic(o.logger, "bulk operation "+h.op.ID)
		defer close(h.done)
		o.run(runCtx, h, payload)
	}()

	return h.snapshot(), nil
}

// Get returns a snapshot of the operation, or (nil, false) when unknown.
func (o *Orchestrator) Get(id string) (*Operation, bool) {
	o.mu.RLock()
	h, ok := o.ops[id]
	o.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return h.snapshot(), true
}

// List returns snapshots of all known operations, newest first.
func (o *Orchestrator) List() []*Operation {
	o.mu.RLock()
	handles := make([]*handle, 0, len(o.ops))
	for _, h := range o.ops {
		handles = append(handles, h)
	}
	o.mu.RUnlock()

	out := make([]*Operation, len(handles))
	for i, h := range handles {
		out[i] = h.snapshot()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Cancel stops a pending or processing operation. Items already handled
// stay handled. Returns false for unknown or already-finished operations.
func (o *Orchestrator) Cancel(id string) bool {
	o.mu.RLock()
	h, ok := o.ops[id]
	o.mu.RUnlock()
	if !ok {
		return false
	}
	h.mu.Lock()
	finished := h.op.Status.Finished()
	h.mu.Unlock()
	if finished {
		return false
	}
	h.cancel()
	return true
}

// Wait blocks until the operation finishes or the context is done.
// Primarily for tests and synchronous callers.
func (o *Orchestrator) Wait(ctx context.Context, id string) (*Operation, error) {
	o.mu.RLock()
	h, ok := o.ops[id]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown bulk operation %q", id)
	}
	select {
	case <-h.done:
		return h.snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func validateRequest(opType OperationType, targetIDs []string, payload Payload) error {
	valid := false
	for _, t := range ValidTypes() {
		if opType == t {
			valid = true
			break
		}
	}
	if !valid {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown operation type %q", opType)}
	}
	if opType == TypeCreate {
		return &ValidationError{Field: "type", Reason: "bulk create is not supported"}
	}
	if len(targetIDs) == 0 {
		return &ValidationError{Field: "target_ids", Reason: "at least one target is required"}
	}
	switch opType {
	case TypeUpdate:
		if _, ok := payload.(UpdatePayload); !ok {
			return &ValidationError{Field: "payload", Reason: "update requires an UpdatePayload"}
		}
	case TypeExport:
		p, ok := payload.(ExportPayload)
		if !ok {
			return &ValidationError{Field: "payload", Reason: "export requires an ExportPayload"}
		}
		if p.Format != "" && !p.Format.valid() {
			return &ValidationError{Field: "payload.format", Reason: fmt.Sprintf("unknown export format %q", p.Format)}
		}
	case TypeSuspend:
		if payload != nil {
			if _, ok := payload.(SuspendPayload); !ok {
				return &ValidationError{Field: "payload", Reason: "suspend requires a SuspendPayload"}
			}
		}
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, h *handle, payload Payload) {
	start := o.now().UTC()
	h.mu.Lock()
	h.op.Status = StatusInProgress
	h.op.StartedAt = &start
	targets := append([]string{}, h.op.TargetIDs...)
	opType := h.op.Type
	h.mu.Unlock()

	var exported []*directory.User
	total := len(targets)

	for i, targetID := range targets {
		select {
		case <-ctx.Done():
			o.finish(h, StatusCancelled)
			return
		default:
		}

		reason := o.applyItem(ctx, opType, targetID, payload, &exported)

		if reason == "" {
			o.metrics.BulkItemsTotal.WithLabelValues("success").Inc()
		} else {
			o.metrics.BulkItemsTotal.WithLabelValues("failure").Inc()
		}

		h.mu.Lock()
		h.op.Processed = i + 1
		if reason == "" {
			h.op.Succeeded++
		} else {
			h.op.Failed++
			h.op.Errors = append(h.op.Errors, ItemError{UserID: targetID, Reason: reason})
		}
		progress := int(math.Round(float64(i+1) / float64(total) * 100))
		if progress > h.op.Progress {
			h.op.Progress = progress
		}
		h.mu.Unlock()

		if i < total-1 {
			select {
			case <-ctx.Done():
				o.finish(h, StatusCancelled)
				return
			case <-time.After(o.delay):
			}
		}
	}

	if opType == TypeExport {
		format := defaultExport
		if p, ok := payload.(ExportPayload); ok && p.Format != "" {
			format = p.Format
		}
		out, err := encodeUsers(exported, format)
		if err != nil {
			o.logger.WithError(err).WithField("operation_id", h.op.ID).Error("bulk export encoding failed")
			o.finish(h, StatusFailed)
			return
		}
		h.mu.Lock()
		h.op.Output = out
		h.mu.Unlock()
	}

	o.finish(h, StatusCompleted)
}

// applyItem processes one target and returns a failure reason, empty on
// success.
func (o *Orchestrator) applyItem(ctx context.Context, opType OperationType, targetID string, payload Payload, exported *[]*directory.User) string {
	switch opType {
	case TypeSuspend:
		reason := "bulk suspension"
		var duration time.Duration
		if p, ok := payload.(SuspendPayload); ok {
			if p.Reason != "" {
				reason = p.Reason
			}
			duration = p.Duration
		}
		if !o.admin.SuspendUser(ctx, targetID, reason, duration) {
			return "user not found"
		}
	case TypeActivate:
		if !o.admin.ActivateUser(ctx, targetID) {
			return "user not found"
		}
	case TypeDelete:
		if !o.admin.DeleteUser(ctx, targetID) {
			return "user not found"
		}
	case TypeUpdate:
		p := payload.(UpdatePayload)
		found, err := o.admin.UpdateUser(ctx, targetID, p.Patch)
		if err != nil {
			return err.Error()
		}
		if !found {
			return "user not found"
		}
	case TypeExport:
		u, ok := o.admin.GetUser(targetID)
		if !ok {
			return "user not found"
		}
		*exported = append(*exported, u)
	}
	return ""
}

func (o *Orchestrator) finish(h *handle, status Status) {
	end := o.now().UTC()
	h.mu.Lock()
	h.op.Status = status
	h.op.CompletedAt = &end
	snap := h.op
	h.mu.Unlock()

	o.metrics.BulkOperationsTotal.WithLabelValues(string(snap.Type), string(status)).Inc()

	// The run context may already be cancelled; the completion record
	// must still land.
	err := o.recorder.Record(context.Background(), &activity.Activity{
		Action:   activity.ActionBulkOperation,
		Resource: "bulk_operation",
		Metadata: map[string]any{
			"operation_id": snap.ID,
			"type":         string(snap.Type),
			"status":       string(status),
			"targets":      len(snap.TargetIDs),
			"succeeded":    snap.Succeeded,
			"failed":       snap.Failed,
		},
	})
	if err != nil {
		o.logger.WithError(err).WithField("operation_id", snap.ID).Warn("failed to record activity")
	}
}
