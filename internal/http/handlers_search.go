// Package httpx provides HTTP handlers and utilities for the gistseek search API.
package httpx

import (
	"errors"
	"net/http"

	"github.com/gistseek/gistseek/internal/domain/model"
	apperrors "github.com/gistseek/gistseek/internal/errors"
	"github.com/gistseek/gistseek/internal/service"
)

// SearchHandlers provides HTTP handlers for search job operations.
type SearchHandlers struct {
	Svc *service.SearchService
}

// Submit handles HTTP requests to start a new gist search.
func (h *SearchHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitSearchRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	id, err := h.Svc.Submit(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{"request_id": id})
}

// GetStatus handles HTTP requests to poll the status of a search job.
func (h *SearchHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("request_id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("request id is required")},
		)
		return
	}

	status, lastError, err := h.Svc.GetStatus(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	body := map[string]any{"status": status}
	if lastError != nil {
		body["last_error"] = *lastError
	}
	WriteJSON(w, http.StatusOK, body)
}

// GetResults handles HTTP requests to retrieve a search job's matches.
func (h *SearchHandlers) GetResults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("request_id")
	if id == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("request id is required")},
		)
		return
	}

	results, err := h.Svc.GetResults(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, results)
}

// writeServiceError maps a service error to a JSON HTTP error response.
func writeServiceError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrCodeValidation:
		status = http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeConflict:
		status = http.StatusConflict
	case apperrors.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	}
	WriteError(w, ErrorParams{Code: status, ErrCode: string(code), Err: err})
}
