package utils

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"teahouse-backend/pkg/apperror"
	"teahouse-backend/pkg/logger"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// WriteAppError maps err to its HTTP status and writes the error envelope.
// Untyped errors become INTERNAL_ERROR and their text is only logged.
func WriteAppError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := apperror.As(err)
	if typed == nil {
		typed = apperror.Wrap(apperror.CodeInternal, err, "unexpected error")
	}
	meta := apperror.MetadataFor(typed.Code())

	msg := meta.PublicMessage
	if meta.ShowMessage && typed.Message() != "" {
		msg = typed.Message()
	}
	payload := errorEnvelope{Error: apiError{Code: string(typed.Code()), Message: msg}}
	if meta.DetailsAllowed {
		payload.Error.Details = typed.Details()
	}

	log := logger.WithContext(ctx)
	if meta.HTTPStatus >= http.StatusInternalServerError {
		log.Error().Err(err).Str("error_code", string(typed.Code())).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("error_code", string(typed.Code())).Msg("request rejected")
	}

	WriteJSON(w, meta.HTTPStatus, payload)
}
