package streaming

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nexusvanguard/control-plane/control_plane/store"
)

func TestStorePublisherMirrorsEventIntoAuditCollection(t *testing.T) {
	docs := store.NewMemoryStore()
	p := NewStorePublisher(docs)

	detail := map[string]string{"from": "NORMAL", "to": "CIRCUIT_BREAKER"}
	if err := p.Publish(context.Background(), "mode_transition", ActorEscalator, detail); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	written, err := docs.ListDocuments(context.Background(), store.CollectionVanguardAudit, 0)
	if err != nil || len(written) != 1 {
		t.Fatalf("expected one audit document, got %d (err %v)", len(written), err)
	}

	var evt AuditEvent
	if err := json.Unmarshal(written[0].Data, &evt); err != nil {
		t.Fatalf("audit document must decode as AuditEvent: %v", err)
	}
	if evt.Action != "mode_transition" || evt.Actor != ActorEscalator {
		t.Fatalf("unexpected event fields: %+v", evt)
	}
	var got map[string]string
	if err := json.Unmarshal(evt.Detail, &got); err != nil || got["to"] != "CIRCUIT_BREAKER" {
		t.Fatalf("detail payload not preserved: %s", evt.Detail)
	}
}

func TestLogPublisherAcceptsAnyDetail(t *testing.T) {
	p := NewLogPublisher()
	if err := p.Publish(context.Background(), "bulk_resolve", ActorOperator, struct{ Count int }{3}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}
