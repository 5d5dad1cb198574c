package streaming

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nexusvanguard/control-plane/control_plane/store"
)

// newEvent stamps the fields every publisher shares.
func newEvent(action, actor string, detail interface{}) (AuditEvent, error) {
	raw, err := json.Marshal(detail)
	if err != nil {
		return AuditEvent{}, err
	}
	return AuditEvent{
		ID:        uuid.NewString(),
		Action:    action,
		Actor:     actor,
		Detail:    raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// LogPublisher writes audit events to the process log only; the sink of
// last resort when no document store is wired.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(ctx context.Context, action, actor string, detail interface{}) error {
	evt, err := newEvent(action, actor, detail)
	if err != nil {
		return err
	}
	log.Printf("[AUDIT] %s by %s: %s", evt.Action, evt.Actor, evt.Detail)
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}

// StorePublisher mirrors every audit event into the document store's
// vanguard_audit collection and echoes a summary line to the log. Write
// failures are logged, not returned: the audit trail must never fail
// the mutation it records.
type StorePublisher struct {
	docs store.Store
}

func NewStorePublisher(docs store.Store) *StorePublisher {
	return &StorePublisher{docs: docs}
}

func (p *StorePublisher) Publish(ctx context.Context, action, actor string, detail interface{}) error {
	evt, err := newEvent(action, actor, detail)
	if err != nil {
		return err
	}
	log.Printf("[AUDIT] %s by %s", evt.Action, evt.Actor)

	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := p.docs.PutDocument(ctx, store.CollectionVanguardAudit, evt.ID, data); err != nil {
		log.Printf("⚠️ audit write failed for %s: %v", evt.Action, err)
	}
	return nil
}

func (p *StorePublisher) Close() error {
	return nil
}
