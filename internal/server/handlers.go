package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/light-rec/lr-ibcf/internal/recommend"
	"github.com/light-rec/lr-ibcf/internal/similarity"
	"github.com/light-rec/lr-ibcf/internal/topk"
	"github.com/light-rec/lr-ibcf/internal/vectorstore"
)

// MaxLimit bounds the limit a client may ask for; the heap is allocated up front.
const MaxLimit = 1000

type itemSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Features int    `json:"features"`
}

type itemResponse struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Source    string             `json:"source"`
	UpdatedAt time.Time          `json:"updated_at"`
	Vector    map[string]float64 `json:"vector"`
	Metadata  map[string]string  `json:"metadata,omitempty"`
}

type matchResponse struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

type rankResponse struct {
	Items      []matchResponse `json:"items"`
	Considered int             `json:"considered"`
	Admitted   int             `json:"admitted"`
	Rejected   int             `json:"rejected"`
	Skipped    int             `json:"skipped"`
}

type similarityRequest struct {
	A similarity.Vector `json:"a"`
	B similarity.Vector `json:"b"`
}

type queryRequest struct {
	Vector similarity.Vector `json:"vector"`
	Limit  int               `json:"limit"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Error("health: count items failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "items": count})
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items := []itemSummary{}
	err := s.store.Scan(r.Context(), func(rec vectorstore.Record) error {
		items = append(items, itemSummary{ID: rec.ID, Title: rec.Title, Features: len(rec.Vector)})
		return nil
	})
	if err != nil {
		s.respondFailure(w, "list items", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, "get item", err)
		return
	}
	s.respondJSON(w, http.StatusOK, itemResponse{
		ID:        rec.ID,
		Title:     rec.Title,
		Source:    rec.Source,
		UpdatedAt: rec.UpdatedAt,
		Vector:    rec.Vector,
		Metadata:  rec.Metadata,
	})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	s.logger.Debug("similar request", zap.String("id", id), zap.Int("limit", limit))

	res, err := s.engine.Similar(r.Context(), id, limit)
	if err != nil {
		s.respondFailure(w, "similar", err)
		return
	}
	s.respondJSON(w, http.StatusOK, toRankResponse(res))
}

func (s *Server) handleSimilarity(w http.ResponseWriter, r *http.Request) {
	var req similarityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	score, err := s.engine.Compare(req.A, req.B)
	if err != nil {
		s.respondFailure(w, "similarity", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]float64{"score": score})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := checkLimit(req.Limit); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("query request", zap.Int("features", len(req.Vector)), zap.Int("limit", req.Limit))

	res, err := s.engine.Query(r.Context(), req.Vector, req.Limit)
	if err != nil {
		s.respondFailure(w, "query", err)
		return
	}
	s.respondJSON(w, http.StatusOK, toRankResponse(res))
}

// parseLimit reads an optional limit; empty means the configured default
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid limit: %q", raw)
	}
	return limit, checkLimit(limit)
}

func checkLimit(limit int) error {
	if limit < 0 || limit > MaxLimit {
		return fmt.Errorf("limit must be between 0 and %d, got %d", MaxLimit, limit)
	}
	return nil
}

func toRankResponse(res *recommend.Result) rankResponse {
	out := rankResponse{
		Items:      make([]matchResponse, len(res.Items)),
		Considered: res.Considered,
		Admitted:   res.Admitted,
		Rejected:   res.Rejected,
		Skipped:    res.Skipped,
	}
	for i, m := range res.Items {
		out.Items[i] = matchResponse{ID: m.ID, Title: m.Title, Score: m.Score}
	}
	return out
}

// respondFailure maps domain errors to status codes
func (s *Server) respondFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, vectorstore.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, similarity.ErrInvalidInput), errors.Is(err, topk.ErrInvalidInput):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
