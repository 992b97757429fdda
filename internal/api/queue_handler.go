package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zapflow/dispatch/internal/logger"
	"github.com/zapflow/dispatch/internal/queue"
)

// QueueStatusHandler handles GET /v1/queue/status.
func QueueStatusHandler(processor *queue.Processor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := processor.GetStatus(r.Context())
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("queue status failed")
			respondError(w, http.StatusServiceUnavailable, "queue store unavailable")
			return
		}
		respondJSON(w, http.StatusOK, status)
	}
}

// QueueErrorsHandler handles GET /v1/queue/errors, listing error-routed items
// for operator inspection.
func QueueErrorsHandler(store queue.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := store.ErrorItems(r.Context())
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("error list read failed")
			respondError(w, http.StatusServiceUnavailable, "queue store unavailable")
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"count":  len(entries),
			"errors": entries,
		})
	}
}

// replayRequest is the JSON body for POST /v1/queue/errors/replay. An empty
// keys list replays every error-routed item.
type replayRequest struct {
	Keys []string `json:"keys"`
}

// replayResponse is the JSON response for a replay operation.
type replayResponse struct {
	Replayed int `json:"replayed"`
}

// ReplayErrorsHandler handles POST /v1/queue/errors/replay. Replay is the
// only path an error-routed item takes back to the pending set.
func ReplayErrorsHandler(processor *queue.Processor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req replayRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		replayed, err := processor.ReplayErrors(r.Context(), req.Keys)
		if err != nil {
			log.Error().Err(err).Int("replayed", replayed).Msg("error replay failed")
			respondError(w, http.StatusInternalServerError, "replay failed")
			return
		}

		log.Info().Int("replayed", replayed).Msg("error replay completed")
		respondJSON(w, http.StatusOK, replayResponse{Replayed: replayed})
	}
}

// enqueueRequest is the JSON body for POST /v1/campaigns/{id}/enqueue.
type enqueueRequest struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	CreatedBy uuid.UUID `json:"created_by"`
}

// EnqueueCampaignHandler handles POST /v1/campaigns/{id}/enqueue.
func EnqueueCampaignHandler(sq *queue.SecureQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		campaignID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid campaign id")
			return
		}

		var req enqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.TenantID == uuid.Nil {
			respondError(w, http.StatusBadRequest, "tenant_id is required")
			return
		}

		err = sq.EnqueueCampaign(r.Context(), campaignID, req.TenantID, req.CreatedBy)
		switch {
		case errors.Is(err, queue.ErrCampaignNotFound):
			respondError(w, http.StatusNotFound, "campaign not found")
		case errors.Is(err, queue.ErrTenantAccessDenied):
			respondError(w, http.StatusForbidden, "campaign belongs to another tenant")
		case err != nil:
			log.Error().Err(err).Stringer("campaign_id", campaignID).Msg("enqueue failed")
			respondError(w, http.StatusInternalServerError, "enqueue failed")
		default:
			respondJSON(w, http.StatusAccepted, map[string]string{"campaign_id": campaignID.String()})
		}
	}
}

// HealthzHandler handles GET /healthz.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
