package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nexusvanguard/control-plane/control_plane/health"
)

func (a *App) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (a *App) handleReadiness(w http.ResponseWriter, r *http.Request) {
	sys := a.gate.CheckAll()
	if sys.Overall == health.Down || sys.Overall == health.Critical {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(sys)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	sys := a.gate.CheckAll()
	if sys.Overall != health.Healthy {
		w.Header().Set("X-System-Status", "degraded")
	}
	writeJSON(w, http.StatusOK, sys)
}

func (a *App) handleHealthDeps(w http.ResponseWriter, r *http.Request) {
	sys := a.gate.CheckAll()
	writeJSON(w, http.StatusOK, sys.Services)
}

// handleHealthStream pushes a SystemHealth snapshot every 5s plus any
// out-of-band health events (mode transitions) the moment they fire.
func (a *App) handleHealthStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	listenerID := uuid.NewString()
	events := a.healthBcast.RegisterListener(listenerID)
	defer a.healthBcast.UnregisterListener(listenerID)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

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
		case <-ticker.C:
			writeSSEEvent(w, "health", a.gate.CheckAll())
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeSSEEvent(w http.ResponseWriter, evtType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintf(w, ": marshal_error\n\n")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evtType, data)
}
