// Package streaming carries the operator audit trail out of the request
// path: mode transitions, bulk resolutions and other admin-surface
// mutations are published as AuditEvents so operators can reconstruct
// who changed what and when.
package streaming

import (
	"context"
	"encoding/json"
	"time"
)

// Actors recorded on audit events.
const (
	ActorEscalator = "escalator" // automatic mode transitions
	ActorOperator  = "operator"  // authenticated admin calls
)

// AuditEvent is one recorded admin-surface mutation.
type AuditEvent struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"` // "mode_transition", "mode_override", "bulk_resolve", ...
	Actor     string          `json:"actor"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher records audit events. Implementations must be safe for
// concurrent use and must not fail the admin request that produced the
// event: a lost audit write is logged, never propagated.
type Publisher interface {
	Publish(ctx context.Context, action, actor string, detail interface{}) error
	Close() error
}
