// Package httpapi exposes the orchestrator's entry points as a JSON HTTP
// API: the chat turn endpoint, the synchronous intent/workflow operations
// and the external event webhook.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talentmesh/talentmesh/core"
	"github.com/talentmesh/talentmesh/gateway"
	"github.com/talentmesh/talentmesh/logging"
	"github.com/talentmesh/talentmesh/orchestrator"
	"github.com/talentmesh/talentmesh/session"
	"github.com/talentmesh/talentmesh/workflow"
)

// Core is the slice of the orchestrator the HTTP layer needs.
type Core interface {
	HandleTurn(ctx context.Context, participantID, text string) (*core.Response, error)
	SubmitIntent(ctx context.Context, sessionID, text string) (*orchestrator.IntentResult, error)
	AdvanceWorkflow(ctx context.Context, instanceID, event string, payload map[string]any) (core.InstanceSummary, error)
	PostExternalEvent(ctx context.Context, instanceID, event string, payload map[string]any) (core.InstanceSummary, error)
	CancelWorkflow(ctx context.Context, instanceID, reason string) (core.InstanceSummary, error)
	GetInstance(ctx context.Context, instanceID string) (core.InstanceSummary, error)
	QueryAgent(ctx context.Context, capabilityID, message string) (string, error)
}

// Options configures the HTTP handler.
type Options struct {
	// Capabilities, when set, backs GET /capabilities.
	Capabilities interface{ All() []core.CapabilityDescriptor }
	// Metrics, when set, mounts GET /metrics for the given gatherer.
	Metrics prometheus.Gatherer
	// Logger defaults to NoOpLogger when nil.
	Logger logging.Logger
}

// Server maps HTTP routes onto the orchestrator.
type Server struct {
	core   Core
	caps   interface{ All() []core.CapabilityDescriptor }
	logger logging.Logger
}

// NewHandler builds the chi router over the orchestrator.
func NewHandler(c Core, optFns ...func(o *Options)) http.Handler {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	s := &Server{core: c, caps: opts.Capabilities, logger: opts.Logger}

	r := chi.NewRouter()
	r.Get("/healthz", s.health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{}))
	}

	r.Post("/turns", s.handleTurn)
	r.Post("/sessions/{sessionID}/intents", s.submitIntent)
	r.Post("/instances/{instanceID}/events", s.advanceWorkflow)
	r.Post("/instances/{instanceID}/cancel", s.cancelWorkflow)
	r.Get("/instances/{instanceID}", s.getInstance)
	r.Post("/agents/{capabilityID}/query", s.queryAgent)
	r.Post("/webhooks/instances/{instanceID}/events", s.postExternalEvent)
	if s.caps != nil {
		r.Get("/capabilities", s.listCapabilities)
	}
	return r
}

type turnRequest struct {
	ParticipantID string `json:"participant_id"`
	Text          string `json:"text"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var body turnRequest
	if !decode(w, r, &body) {
		return
	}
	resp, err := s.core.HandleTurn(r.Context(), body.ParticipantID, body.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type intentRequest struct {
	Text string `json:"text"`
}

func (s *Server) submitIntent(w http.ResponseWriter, r *http.Request) {
	var body intentRequest
	if !decode(w, r, &body) {
		return
	}
	result, err := s.core.SubmitIntent(r.Context(), chi.URLParam(r, "sessionID"), body.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type eventRequest struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (s *Server) advanceWorkflow(w http.ResponseWriter, r *http.Request) {
	var body eventRequest
	if !decode(w, r, &body) {
		return
	}
	summary, err := s.core.AdvanceWorkflow(r.Context(), chi.URLParam(r, "instanceID"), body.Event, body.Payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) postExternalEvent(w http.ResponseWriter, r *http.Request) {
	var body eventRequest
	if !decode(w, r, &body) {
		return
	}
	summary, err := s.core.PostExternalEvent(r.Context(), chi.URLParam(r, "instanceID"), body.Event, body.Payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) cancelWorkflow(w http.ResponseWriter, r *http.Request) {
	var body cancelRequest
	if !decode(w, r, &body) {
		return
	}
	summary, err := s.core.CancelWorkflow(r.Context(), chi.URLParam(r, "instanceID"), body.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) getInstance(w http.ResponseWriter, r *http.Request) {
	summary, err := s.core.GetInstance(r.Context(), chi.URLParam(r, "instanceID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type queryRequest struct {
	Message string `json:"message"`
}

type queryResponse struct {
	Text string `json:"text"`
}

func (s *Server) queryAgent(w http.ResponseWriter, r *http.Request) {
	var body queryRequest
	if !decode(w, r, &body) {
		return
	}
	text, err := s.core.QueryAgent(r.Context(), chi.URLParam(r, "capabilityID"), body.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{Text: text})
}

func (s *Server) listCapabilities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.caps.All())
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var (
		validation  *core.ValidationError
		unknownCap  *core.UnknownCapabilityError
		unknownWf   *core.UnknownWorkflowError
		conflict    *core.ConflictError
		noMatch     *core.NoMatchingTransitionError
		invalid     *core.InvalidStateError
		unavailable *core.RoutingUnavailableError
		authz       *gateway.AuthorizationError
		external    *gateway.ExternalServiceError
	)
	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.As(err, &unknownCap), errors.As(err, &unknownWf):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, workflow.ErrInstanceNotFound):
		status = http.StatusNotFound
	case errors.As(err, &conflict), errors.As(err, &noMatch), errors.As(err, &invalid):
		status = http.StatusConflict
	case errors.As(err, &unavailable):
		status = http.StatusServiceUnavailable
	case errors.As(err, &authz):
		status = http.StatusForbidden
	case errors.As(err, &external):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("httpapi.internal_error", "error", err.Error())
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
