package engine

import (
	"context"

	"github.com/meridianhq/aegis/pkg/bulk"
)

// StartBulkOperation launches an asynchronous batch over the target
// users and returns its initial snapshot. Poll GetBulkOperation for
// progress.
func (e *Engine) StartBulkOperation(ctx context.Context, opType bulk.OperationType, targetIDs []string, payload bulk.Payload) (*bulk.Operation, error) {
	return e.bulk.Start(ctx, opType, targetIDs, payload)
}

// GetBulkOperation returns a snapshot of the operation, or (nil, false)
// when unknown.
func (e *Engine) GetBulkOperation(id string) (*bulk.Operation, bool) {
	return e.bulk.Get(id)
}

// ListBulkOperations returns snapshots of all operations, newest first.
func (e *Engine) ListBulkOperations() []*bulk.Operation {
	return e.bulk.List()
}

// CancelBulkOperation stops a running operation. Items already processed
// stay processed.
func (e *Engine) CancelBulkOperation(id string) bool {
	return e.bulk.Cancel(id)
}

// WaitBulkOperation blocks until the operation reaches a terminal state
// or the context is done.
func (e *Engine) WaitBulkOperation(ctx context.Context, id string) (*bulk.Operation, error) {
	return e.bulk.Wait(ctx, id)
}
