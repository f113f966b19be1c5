// Package server exposes the study engine over HTTP and gRPC.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/study-core/pkg/logger"
	"github.com/GoSim-25-26J-441/study-core/pkg/models"
)

const maxBodyBytes = 1 << 20

type HTTPServer struct {
	mux     *http.ServeMux
	svc     *service
	handler http.Handler
}

func NewHTTPServer(opts Options) *HTTPServer {
	s := &HTTPServer{
		mux: http.NewServeMux(),
		svc: newService(opts),
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /v1/ping", s.handlePing)
	s.mux.HandleFunc("POST /v1/studies/{name}/ask", s.handleAsk)
	s.mux.HandleFunc("POST /v1/studies/{name}/tell", s.handleTell)
	s.mux.HandleFunc("GET /v1/studies/{name}/trials", s.handleTrials)
	s.mux.HandleFunc("GET /v1/studies/{name}/best", s.handleBest)

	// Legacy optunapi routes: hparams asks with the default space, score tells.
	s.mux.HandleFunc("GET /optunapi/ping", s.handlePing)
	s.mux.HandleFunc("GET /optunapi/hparams/{name}", s.handleHparams)
	s.mux.HandleFunc("GET /optunapi/score/{name}", s.handleScore)

	var h http.Handler = s.mux
	if auth := NewAuthenticator(opts.AuthSecret); auth != nil {
		h = authMiddleware(auth, h)
	}
	h = tracingMiddleware(h)
	h = loggingMiddleware(s.svc.logger, h)
	s.handler = requestIDMiddleware(h)
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *HTTPServer) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"message": "pong"})
}

// handleAsk handles POST /v1/studies/{name}/ask
func (s *HTTPServer) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := s.svc.ask(r.Context(), r.PathValue("name"), req)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTell handles POST /v1/studies/{name}/tell
func (s *HTTPServer) handleTell(w http.ResponseWriter, r *http.Request) {
	var req tellRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := s.svc.tell(r.Context(), r.PathValue("name"), req)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTrials handles GET /v1/studies/{name}/trials?state=COMPLETE,FAILED
func (s *HTTPServer) handleTrials(w http.ResponseWriter, r *http.Request) {
	var states []models.TrialState
	if raw := r.URL.Query().Get("state"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := models.ParseTrialState(part)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			states = append(states, st)
		}
	}
	resp, err := s.svc.trials(r.Context(), r.PathValue("name"), states)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleBest handles GET /v1/studies/{name}/best
func (s *HTTPServer) handleBest(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.best(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHparams handles GET /optunapi/hparams/{name}: an ask with the
// server's default search space.
func (s *HTTPServer) handleHparams(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.ask(r.Context(), r.PathValue("name"), askRequest{})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleScore handles GET /optunapi/score/{name}?trial_id=&score=&step=
func (s *HTTPServer) handleScore(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var req tellRequest

	id, err := strconv.ParseInt(q.Get("trial_id"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "trial_id must be an integer")
		return
	}
	req.TrialID = &id

	score, err := strconv.ParseFloat(q.Get("score"), 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "score must be a number")
		return
	}
	req.Value = &score

	if raw := q.Get("step"); raw != "" {
		step, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "step must be an integer")
			return
		}
		req.Step = &step
	}

	resp, err := s.svc.tell(r.Context(), r.PathValue("name"), req)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	if code >= 500 {
		s.svc.logger.Error("request failed", "path", r.URL.Path, "request_id", RequestIDFromContext(r.Context()), "error", err)
	}
	writeError(w, r, code, err.Error())
}

// decodeBody decodes a JSON body. An empty body leaves target untouched.
func decodeBody(r *http.Request, target any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	body := map[string]any{"error": message}
	if id := RequestIDFromContext(r.Context()); id != "" {
		body["request_id"] = id
	}
	writeJSON(w, status, body)
}
