package idempotency

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
)

func noBypass(path, method string) bool { return false }

func handler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
}

func TestReplayReturnsSameResponse(t *testing.T) {
	store := NewStore(nil, 0)
	mw := Middleware(store, noBypass)(handler(http.StatusOK, `{"queued":true}`))

	body := []byte(`{"team_a":"BOS","team_b":"MIA","max_players":12}`)
	req1 := httptest.NewRequest(http.MethodPost, "/api/h2h/populate", bytes.NewReader(body))
	req1.Header.Set("Idempotency-Key", "k1")
	rec1 := httptest.NewRecorder()
	mw.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/api/h2h/populate", bytes.NewReader(body))
	req2.Header.Set("Idempotency-Key", "k1")
	rec2 := httptest.NewRecorder()
	mw.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK || rec2.Body.String() != `{"queued":true}` {
		t.Fatalf("expected replayed 200 body, got %d %s", rec2.Code, rec2.Body.String())
	}
	if rec2.Header().Get("X-Idempotency-Status") != "Replayed" {
		t.Fatalf("expected Replayed header, got %q", rec2.Header().Get("X-Idempotency-Status"))
	}
}

func TestMismatchedBodyReturns422(t *testing.T) {
	store := NewStore(nil, 0)
	mw := Middleware(store, noBypass)(handler(http.StatusOK, `{"queued":true}`))

	req1 := httptest.NewRequest(http.MethodPost, "/api/h2h/populate", bytes.NewReader([]byte(`{"team_a":"BOS","team_b":"MIA"}`)))
	req1.Header.Set("Idempotency-Key", "k1")
	mw.ServeHTTP(httptest.NewRecorder(), req1)

	req2 := httptest.NewRequest(http.MethodPost, "/api/h2h/populate", bytes.NewReader([]byte(`{"team_a":"LAL","team_b":"MIA"}`)))
	req2.Header.Set("Idempotency-Key", "k1")
	rec2 := httptest.NewRecorder()
	mw.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec2.Code)
	}
}

func TestFourXXEvictsRecordAllowingRetry(t *testing.T) {
	store := NewStore(nil, 0)
	mw := Middleware(store, noBypass)(handler(http.StatusBadRequest, `{"error":"bad"}`))

	body := []byte(`{"x":1}`)
	req1 := httptest.NewRequest(http.MethodPost, "/api/thing", bytes.NewReader(body))
	req1.Header.Set("Idempotency-Key", "k2")
	mw.ServeHTTP(httptest.NewRecorder(), req1)

	key := CacheKey("/api/thing", "k2")
	if _, found := store.Get(req1.Context(), key); found {
		t.Fatal("expected 4xx to evict the idempotency record")
	}
}
