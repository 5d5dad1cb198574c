package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nexusvanguard/control-plane/control_plane/errs"
	"github.com/nexusvanguard/control-plane/control_plane/pulse"
	"github.com/nexusvanguard/control-plane/control_plane/reqid"
	"github.com/nexusvanguard/control-plane/control_plane/router"
	"github.com/nexusvanguard/control-plane/control_plane/shadowrace"
	"github.com/nexusvanguard/control-plane/control_plane/store"
)

// handleLiveGames and handleLiveLeaders both run the adaptive router's
// recommend() against the registered endpoint, then execute whichever
// strategy it names via the shadow-race executor: "live" is the producer's
// in-memory snapshot (freshest, but only as current as the last 10s
// cycle), "cache" is the last document-store write (survives a producer
// restart).
func (a *App) handleLiveGames(w http.ResponseWriter, r *http.Request) {
	liveFn := func(ctx context.Context) (interface{}, error) {
		if a.pulseProducer == nil {
			return nil, fmt.Errorf("pulse producer disabled")
		}
		snap := a.pulseProducer.Snapshot()
		if len(snap) == 0 {
			return nil, fmt.Errorf("no in-memory snapshot available")
		}
		return snap, nil
	}
	cacheFn := func(ctx context.Context) (interface{}, error) {
		docs, err := a.docs.ListDocuments(ctx, store.CollectionLiveGames, 50)
		if err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			return nil, fmt.Errorf("no cached games in %s", store.CollectionLiveGames)
		}
		games := make([]pulse.LiveGameState, 0, len(docs))
		for _, doc := range docs {
			var g pulse.LiveGameState
			if err := json.Unmarshal(doc.Data, &g); err != nil {
				continue
			}
			games = append(games, g)
		}
		return games, nil
	}
	a.serveLiveRaced(w, r, "/live/games", liveFn, cacheFn)
}

func (a *App) handleLiveLeaders(w http.ResponseWriter, r *http.Request) {
	liveFn := func(ctx context.Context) (interface{}, error) {
		if a.pulseProducer == nil {
			return nil, fmt.Errorf("pulse producer disabled")
		}
		leaders := a.pulseProducer.LeaderBoard(15)
		if len(leaders) == 0 {
			return nil, fmt.Errorf("no in-memory leader board available")
		}
		return leaders, nil
	}
	cacheFn := func(ctx context.Context) (interface{}, error) {
		data, found, err := a.docs.GetDocument(ctx, store.CollectionLiveLeaders, "current")
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("no cached leader board")
		}
		var leaders []pulse.PlayerMetrics
		if err := json.Unmarshal(data, &leaders); err != nil {
			return nil, err
		}
		return leaders, nil
	}
	a.serveLiveRaced(w, r, "/live/leaders", liveFn, cacheFn)
}

func (a *App) serveLiveRaced(w http.ResponseWriter, r *http.Request, endpoint string,
	liveFn, cacheFn func(context.Context) (interface{}, error)) {

	ctx := r.Context()
	requestID := reqid.FromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	decision := router.Recommend(endpoint, router.RequestContext{ForceFresh: r.URL.Query().Get("fresh") == "true"}, a.registry, a.gate)

	var result shadowrace.Result
	switch decision.Strategy {
	case router.CacheOnly:
		data, err := cacheFn(ctx)
		result = shadowrace.Result{Data: data, Source: shadowrace.SourceCache, Err: err}
	case router.LiveOnly:
		data, err := liveFn(ctx)
		result = shadowrace.Result{Data: data, Source: shadowrace.SourceLive, Err: err}
	default:
		patience := time.Duration(decision.PatienceMS) * time.Millisecond
		if patience <= 0 {
			patience = 1500 * time.Millisecond
		}
		result = a.race.Execute(ctx, requestID, endpoint, patience, liveFn, cacheFn)
	}

	if result.Err != nil {
		a.writeVanguardError(w, endpoint, "live snapshot unavailable", result.Err)
		return
	}

	w.Header().Set("X-Route-Strategy", string(decision.Strategy))
	if result.LateArrivalPending {
		w.Header().Set("X-Late-Arrival-Pending", "true")
	}
	writeJSON(w, http.StatusOK, result.Data)
}

func (a *App) handleLiveStatus(w http.ResponseWriter, r *http.Request) {
	if a.pulseProducer == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"running": false})
		return
	}
	writeJSON(w, http.StatusOK, a.pulseProducer.GetStatus())
}

// handleLiveStream bridges shadowrace's broadcaster (fed by the pulse
// producer's publish() on every cycle, and by shadow-race late arrivals)
// to SSE, with a 15s heartbeat comment when no event has fired recently.
func (a *App) handleLiveStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	listenerID := uuid.NewString()
	events := a.liveBcast.RegisterListener(listenerID)
	defer a.liveBcast.UnregisterListener(listenerID)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			writeSSEEvent(w, evt.Type, evt.Payload)
			flusher.Flush()
			heartbeat.Reset(15 * time.Second)
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

func (a *App) writeVanguardError(w http.ResponseWriter, endpoint, message string, err error) {
	ve := errs.Wrap(errs.UpstreamError, message, err).WithEndpoint(endpoint).WithFallback(false)
	a.errRing.Record(ve)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ve.HTTPStatus)
	json.NewEncoder(w).Encode(ve)
}
