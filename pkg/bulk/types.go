package bulk

import (
	"fmt"
	"time"

	"github.com/meridianhq/aegis/pkg/directory"
)

// OperationType identifies what a bulk operation does to each target.
type OperationType string

const (
	// TypeCreate is declared but not runnable: creation needs per-user
	// field data that bulk payloads do not carry. Start rejects it.
	TypeCreate OperationType = "create"

	TypeSuspend  OperationType = "suspend"
	TypeActivate OperationType = "activate"
	TypeDelete   OperationType = "delete"
	TypeUpdate   OperationType = "update"
	TypeExport   OperationType = "export"
)

// ValidTypes lists the declared operation types.
func ValidTypes() []OperationType {
	return []OperationType{TypeCreate, TypeSuspend, TypeActivate, TypeDelete, TypeUpdate, TypeExport}
}

// Status is a bulk operation lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"

	// StatusCompleted is reached even when individual items failed;
	// per-item errors live in the Errors list.
	StatusCompleted Status = "completed"

	// StatusFailed marks a structural failure of the operation itself,
	// such as an export that cannot be encoded. Item failures never
	// produce it.
	StatusFailed Status = "failed"

	// StatusCancelled is reached only through Cancel or context
	// cancellation, never from item failures.
	StatusCancelled Status = "cancelled"
)

// Finished reports whether the status is terminal.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ItemError records one failed target inside an otherwise-continuing
// batch.
type ItemError struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// Operation is a point-in-time snapshot of a bulk operation. Progress is
// a whole percentage and never decreases.
type Operation struct {
	ID          string        `json:"id"`
	Type        OperationType `json:"type"`
	TargetIDs   []string      `json:"target_ids"`
	Status      Status        `json:"status"`
	Progress    int           `json:"progress"`
	Processed   int           `json:"processed"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Errors      []ItemError   `json:"errors,omitempty"`
	Output      []byte        `json:"output,omitempty"` // export result
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Payload carries type-specific parameters for an operation. Exactly one
// concrete payload type matches each OperationType; the orchestrator
// rejects mismatches up front.
type Payload interface {
	operationType() OperationType
}

// SuspendPayload parameterizes a suspend operation.
type SuspendPayload struct {
	Reason   string
	Duration time.Duration
}

func (SuspendPayload) operationType() OperationType { return TypeSuspend }

// UpdatePayload applies the same patch to every target.
type UpdatePayload struct {
	Patch directory.UserPatch
}

func (UpdatePayload) operationType() OperationType { return TypeUpdate }

// ExportPayload parameterizes an export operation.
type ExportPayload struct {
	Format ExportFormat
}

func (ExportPayload) operationType() OperationType { return TypeExport }

// ValidationError reports a structurally invalid request. Mirrors the
// directory package's error contract.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
