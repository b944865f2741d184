package agent

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/hairocraft/callsync/internal/store/model"
	"github.com/hairocraft/callsync/internal/sync"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterApi(router *chi.Mux, srv *Server) {
	router.Get("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		_ = render.Render(w, r, VersionReply{Version: version})
	})
	router.Get("/api/v1/status", srv.statusHandler)
	router.Post("/api/v1/call-events", srv.callEventHandler)
	router.Post("/api/v1/sync", srv.syncHandler)
	router.Handle("/metrics", promhttp.Handler())
}

// CallEventRequest is one finished call as posted by the event source.
type CallEventRequest struct {
	PhoneNumber string `json:"phone_number"`
	CallType    string `json:"call_type"`
	Duration    int64  `json:"duration"`
	Timestamp   int64  `json:"timestamp"`
	ContactName string `json:"contact_name"`
	SimSlot     string `json:"sim_slot"`
	SimOperator string `json:"sim_operator"`
	SimNumber   string `json:"sim_number"`
}

func (c *CallEventRequest) Bind(r *http.Request) error {
	if c.PhoneNumber == "" {
		return errors.New("phone_number is required")
	}
	if c.Timestamp <= 0 {
		return errors.New("timestamp must be a positive epoch-milliseconds value")
	}
	if c.Duration < 0 {
		return errors.New("duration must not be negative")
	}
	switch c.CallType {
	case model.CallTypeIncoming, model.CallTypeOutgoing, model.CallTypeMissed, model.CallTypeRejected:
		return nil
	default:
		return fmt.Errorf("unknown call_type %q", c.CallType)
	}
}

type CallEventReply struct {
	ClientUUID string `json:"client_uuid"`
	Duplicate  bool   `json:"duplicate"`
}

type StatusReply struct {
	Connected string `json:"connected"`
	Pending   int64  `json:"pending"`
	Uploading int64  `json:"uploading"`
	Failed    int64  `json:"failed"`
	Completed int64  `json:"completed"`
}

type SyncReply struct {
	Triggered bool `json:"triggered"`
}

type VersionReply struct {
	Version string `json:"version"`
}

type ErrorReply struct {
	Error string `json:"error"`
}

func (c CallEventReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (s StatusReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (s SyncReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (v VersionReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (e ErrorReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (s *Server) callEventHandler(w http.ResponseWriter, r *http.Request) {
	event := &CallEventRequest{}
	if err := render.Bind(r, event); err != nil {
		render.Status(r, http.StatusBadRequest)
		_ = render.Render(w, r, ErrorReply{Error: err.Error()})
		return
	}

	job, created, err := s.orchestrator.HandleCallEvent(r.Context(), sync.CallEvent{
		PhoneNumber: event.PhoneNumber,
		CallType:    event.CallType,
		DurationSec: event.Duration,
		TimestampMs: event.Timestamp,
		ContactName: event.ContactName,
		SimSlot:     event.SimSlot,
		SimOperator: event.SimOperator,
		SimNumber:   event.SimNumber,
	})
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		_ = render.Render(w, r, ErrorReply{Error: err.Error()})
		return
	}

	// The event is durable now; upload happens in the background off the
	// long-lived context, not the request's.
	s.orchestrator.TriggerSync(s.baseCtx)

	if created {
		render.Status(r, http.StatusCreated)
	}
	_ = render.Render(w, r, CallEventReply{ClientUUID: job.ClientUUID, Duplicate: !created})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Statistics(r.Context())
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		_ = render.Render(w, r, ErrorReply{Error: err.Error()})
		return
	}

	connected := s.healthChecker != nil && s.healthChecker.State() == HealthStateReachable
	_ = render.Render(w, r, StatusReply{
		Connected: fmt.Sprintf("%t", connected),
		Pending:   stats.Pending,
		Uploading: stats.Uploading,
		Failed:    stats.Failed,
		Completed: stats.Completed,
	})
}

func (s *Server) syncHandler(w http.ResponseWriter, r *http.Request) {
	s.orchestrator.TriggerSync(s.baseCtx)
	render.Status(r, http.StatusAccepted)
	_ = render.Render(w, r, SyncReply{Triggered: true})
}
