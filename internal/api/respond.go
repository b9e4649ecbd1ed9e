package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	mnemoerrors "github.com/mnemolite/mnemolite/internal/errors"
	"github.com/mnemolite/mnemolite/internal/logging"
)

type errorBody struct {
	Code       string `json:"code"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{
		Code:    mnemoerrors.GetCode(err),
		Kind:    mnemoerrors.KindOf(err),
		Message: err.Error(),
		TraceID: logging.Trace(r.Context()),
	}
	if me, ok := err.(*mnemoerrors.MnemoError); ok {
		body.Message = me.Message
		body.Suggestion = me.Suggestion
	}
	writeJSON(w, httpStatus(body.Code), errorEnvelope{Error: body})
}

// httpStatus maps error codes onto HTTP status. Unknown codes are
// internal errors.
func httpStatus(code string) int {
	switch code {
	case mnemoerrors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case mnemoerrors.ErrCodeLockDenied:
		return http.StatusConflict
	case mnemoerrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case mnemoerrors.ErrCodeParseFailed, mnemoerrors.ErrCodeChunkingFailed:
		return http.StatusUnprocessableEntity
	case mnemoerrors.ErrCodeSkippedFile, mnemoerrors.ErrCodeUnknownLanguage:
		return http.StatusUnprocessableEntity
	case mnemoerrors.ErrCodeStoreUnavailable, mnemoerrors.ErrCodeCacheUnavailable:
		return http.StatusServiceUnavailable
	case mnemoerrors.ErrCodePersistFailed, mnemoerrors.ErrCodeEmbeddingFailed, mnemoerrors.ErrCodeOracleFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
