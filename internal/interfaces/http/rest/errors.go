package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "taxonomy-backend/internal/errors"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Type    apperrors.ErrorType `json:"type"`
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details string              `json:"details,omitempty"`
}

// StatusFor maps an error type to an HTTP status.
func StatusFor(errType apperrors.ErrorType) int {
	switch errType {
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeValidation, apperrors.ErrorTypeUnsupportedExpression:
		return http.StatusBadRequest
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict
	case apperrors.ErrorTypeCircularReference:
		return http.StatusUnprocessableEntity
	case apperrors.ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ue *apperrors.UnifiedError
	if !errors.As(err, &ue) {
		ue = apperrors.Wrap(err, r.URL.Path, "request failed")
	}
	status := StatusFor(ue.Type)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zapRequest(r, ue)...)
	}

	body := ErrorResponse{Type: ue.Type, Code: ue.Code, Message: ue.Message, Details: ue.Details}
	if status == http.StatusInternalServerError {
		body.Details = ""
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
