package realtime

import (
	"context"
	"encoding/json"
	"net/http"

	"lanehud/internal/engine"
	"lanehud/internal/navigation"
	"lanehud/internal/protocol"
)

type startResponse struct {
	Token   string `json:"token"`
	RouteID string `json:"routeId"`
	State   string `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Token string `json:"token,omitempty"`
}

type healthResponse struct {
	Status      string `json:"status"`
	State       string `json:"state"`
	Clients     int    `json:"clients"`
	Subscribers int    `json:"subscribers"`
	Dropped     uint64 `json:"droppedEvents"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func writeCoordError(w http.ResponseWriter, err error) {
	code, status := errorCode(err)
	writeError(w, status, code, err.Error())
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req protocol.InitializePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidMessage, "invalid request body")
		return
	}
	if err := protocol.ValidateInitialize(req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidMessage, err.Error())
		return
	}

	if err := s.coord.Initialize(engine.Credential{
		AccessKeyID:     req.AccessKeyID,
		AccessKeySecret: req.AccessKeySecret,
	}); err != nil {
		writeCoordError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.coord.Snapshot())
}

// handleStart submits a route request and waits up to the route timeout for
// the engine to answer.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req protocol.StartPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidMessage, "invalid request body")
		return
	}
	if err := protocol.ValidateStart(req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidMessage, err.Error())
		return
	}

	p, err := s.coord.StartNavigation(waypoint(req.Origin), waypoint(req.Destination))
	if err != nil {
		writeCoordError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.routeTimeout)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		code, status := errorCode(err)
		writeJSON(w, status, errorResponse{Error: err.Error(), Code: code, Token: p.Token()})
		return
	}

	writeJSON(w, http.StatusOK, startResponse{
		Token:   p.Token(),
		RouteID: p.Route().ID(),
		State:   string(navigation.StateNavigating),
	})
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	var req protocol.LocationPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidMessage, "invalid request body")
		return
	}
	if err := protocol.ValidateLocation(req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrInvalidMessage, err.Error())
		return
	}

	// Samples outside navigation are dropped silently.
	s.coord.UpdateLocation(*req.Lat, *req.Lng, req.Speed, req.Bearing)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.coord.StopNavigation()
	writeJSON(w, http.StatusOK, s.coord.Snapshot())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		State:       string(s.coord.State()),
		Clients:     s.ClientCount(),
		Subscribers: s.bus.SubscriberCount(),
		Dropped:     s.bus.Dropped(),
	})
}
