package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"associateflow/associate"
	"associateflow/stage"
)

type associateReader interface {
	Get(ctx context.Context, id string) (associate.Record, error)
	List(ctx context.Context, filters associate.ListFilters) ([]associate.Record, int, error)
}

type transitioner interface {
	Transition(ctx context.Context, req associate.TransitionRequest) (associate.Result, error)
}

// Server exposes the pipeline over HTTP.
type Server struct {
	associateService  associateReader
	transitionService transitioner
	logger            *slog.Logger
}

func NewServer(reader associateReader, transitions transitioner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		associateService:  reader,
		transitionService: transitions,
		logger:            logger,
	}
}

// Routes registers the API handlers.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stages", s.handleStages)
	mux.HandleFunc("GET /api/associates", s.handleAssociates)
	mux.HandleFunc("GET /api/associates/{id}", s.handleGetAssociate)
	mux.HandleFunc("POST /api/associates/{id}/stage", s.handleTransition)
	mux.HandleFunc("PATCH /api/associates/{id}/stage", s.handleTransition)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

type stageResponse struct {
	Index int    `json:"index"`
	Code  string `json:"code"`
	Value string `json:"value"`
	Next  string `json:"next,omitempty"`
}

type associateResponse struct {
	ID                 string `json:"id"`
	Name               string `json:"nombre"`
	IdentificationCode string `json:"identificacion"`
	Stage              string `json:"estado_pipeline"`
	ContributionPaid   bool   `json:"aporte_49900_pagado"`
	LastUpdated        string `json:"ultima_actualizacion,omitempty"`
	NextStage          string `json:"siguiente_estado,omitempty"`
}

type transitionRequestBody struct {
	Stage   string `json:"nuevoEstado"`
	ActorID string `json:"actorId"`
}

type transitionResponse struct {
	Success bool               `json:"success"`
	Data    *associateResponse `json:"data,omitempty"`
	Reason  string             `json:"reason,omitempty"`
	Message string             `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStages(w http.ResponseWriter, r *http.Request) {
	ordered := stage.Ordered()
	items := make([]stageResponse, 0, len(ordered))
	for i, st := range ordered {
		item := stageResponse{Index: i, Code: st.Code(), Value: string(st)}
		if next, ok := stage.Next(string(st)); ok {
			item.Next = string(next)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleAssociates(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := strings.TrimSpace(query.Get("stage"))
	if strings.EqualFold(filter, "ALL") {
		filter = ""
	}

	limit, err := parseNonNegative(query.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := parseNonNegative(query.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	records, total, err := s.associateService.List(r.Context(), associate.ListFilters{Stage: filter, Limit: limit, Offset: offset})
	if err != nil {
		s.logger.ErrorContext(r.Context(), "list associates", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]associateResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toAssociateResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleGetAssociate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.associateService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, associate.ErrNotFound) {
			writeError(w, http.StatusNotFound, "associate not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "get associate", slog.String("associate_id", id), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toAssociateResponse(rec))
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body transitionRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	res, err := s.transitionService.Transition(r.Context(), associate.TransitionRequest{
		AssociateID: id,
		Stage:       body.Stage,
		ActorID:     body.ActorID,
	})
	if err != nil {
		if errors.Is(err, associate.ErrNotFound) {
			writeError(w, http.StatusNotFound, "associate not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "transition associate", slog.String("associate_id", id), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if !res.Accepted {
		writeJSON(w, http.StatusUnprocessableEntity, transitionResponse{
			Reason:  string(res.Reason),
			Message: res.Message,
		})
		return
	}

	data := toAssociateResponse(res.Record)
	writeJSON(w, http.StatusOK, transitionResponse{
		Success: true,
		Data:    &data,
		Message: res.Message,
	})
}

// parseNonNegative reads an optional paging parameter. Empty means zero.
func parseNonNegative(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid value %q", raw)
	}
	return n, nil
}

func toAssociateResponse(rec associate.Record) associateResponse {
	resp := associateResponse{
		ID:                 rec.ID,
		Name:               rec.Name,
		IdentificationCode: rec.IdentificationCode,
		Stage:              rec.Stage,
		ContributionPaid:   rec.ContributionPaid,
	}
	if rec.LastUpdated != nil {
		resp.LastUpdated = rec.LastUpdated.UTC().Format(time.RFC3339Nano)
	}
	if next, ok := stage.Next(rec.Stage); ok {
		resp.NextStage = string(next)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
