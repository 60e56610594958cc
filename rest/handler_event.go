package rest

import (
	"encoding/json"
	"net/http"

	"github.com/wmsflow/rulebus/model"
)

// HandleEvent injects an event into the bus. Acceptance is asynchronous:
// a 200 means the event was queued, not that any rule matched.
func (s *Server) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var event model.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid event payload")
		return
	}
	defer r.Body.Close()
	if len(event.Type) == 0 {
		respondWithError(w, http.StatusBadRequest, "event type is required")
		return
	}
	s.publisher.Publish(event)
	respondOK(w, map[string]any{"queued": true})
}
