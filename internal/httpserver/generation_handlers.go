package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tamoray/tamoray-api/internal/generation"
)

type generateRequest struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style"`
	Count  int    `json:"count"`
}

type generateResponse struct {
	Generation *generation.Record `json:"generation"`
	Tokens     int64              `json:"tokens"`
}

// handleGenerate runs the thumbnail pipeline for the caller.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		s.respondError(w, http.StatusNotImplemented, "generation_disabled", "generation is not configured on this server")
		return
	}
	info := identityFromContext(r.Context())
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}

	rec, balance, err := s.generator.Generate(r.Context(), info.userID, generation.Request{
		Prompt: req.Prompt,
		Style:  req.Style,
		Count:  req.Count,
	})
	if err != nil {
		switch {
		case errors.Is(err, generation.ErrEmptyPrompt):
			s.respondError(w, http.StatusBadRequest, "invalid_request", "prompt is required")
		case errors.Is(err, generation.ErrBatchTooLarge):
			s.respondError(w, http.StatusBadRequest, "batch_too_large", err.Error())
		default:
			s.respondLedgerError(w, "generation", err)
		}
		return
	}
	s.respondJSON(w, http.StatusCreated, generateResponse{Generation: rec, Tokens: balance})
}

type generationsResponse struct {
	Generations []generation.Record `json:"generations"`
}

// handleGenerations lists the caller's recent generations.
func (s *Server) handleGenerations(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		s.respondError(w, http.StatusNotImplemented, "generation_disabled", "generation is not configured on this server")
		return
	}
	info := identityFromContext(r.Context())
	records, err := s.generator.History(r.Context(), info.userID, queryLimit(r, 20))
	if err != nil {
		s.errorf("list generations: %v", err)
		s.respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	if records == nil {
		records = []generation.Record{}
	}
	s.respondJSON(w, http.StatusOK, generationsResponse{Generations: records})
}
