package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	zlog "github.com/rs/zerolog/log"

	pkgerrors "github.com/angelmondragon/ohya-backend/pkg/errors"
	"github.com/angelmondragon/ohya-backend/pkg/logger"
)

// SuccessEnvelope wraps every successful payload.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public shape of a failure.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RetryAfterDetail is read from error details to set the Retry-After header.
const RetryAfterDetail = "retryAfterSeconds"

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

// WriteError renders err as an error envelope. Caller-facing codes keep their
// message; server-side codes are replaced by the public message of the code.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	payload := ErrorEnvelope{
		Error: APIError{
			Code:    string(typed.Code()),
			Message: publicMessage(typed, meta),
		},
	}
	if meta.DetailsAllowed && typed.Details() != nil {
		payload.Error.Details = typed.Details()
	}

	if seconds, ok := retryAfter(typed.Details()); ok {
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	if logg != nil {
		logFailure(ctx, logg, err, typed, meta)
	}

	writeJSON(w, meta.HTTPStatus, payload)
}

func publicMessage(typed *pkgerrors.Error, meta pkgerrors.Metadata) string {
	if meta.HTTPStatus >= http.StatusInternalServerError {
		return meta.PublicMessage
	}
	if m := typed.Message(); m != "" {
		return m
	}
	return meta.PublicMessage
}

func retryAfter(details any) (int, bool) {
	dm, ok := details.(map[string]any)
	if !ok {
		return 0, false
	}
	switch v := dm[RetryAfterDetail].(type) {
	case int:
		return v, v > 0
	case int64:
		return int(v), v > 0
	case float64:
		return int(v), v > 0
	}
	return 0, false
}

// logFailure keeps client mistakes at warn and reserves error level, with the
// driver-level dump, for failures on our side.
func logFailure(ctx context.Context, logg *logger.Logger, err error, typed *pkgerrors.Error, meta pkgerrors.Metadata) {
	if meta.HTTPStatus < http.StatusInternalServerError {
		ctx = logg.WithFields(ctx, map[string]any{
			"error_code": string(typed.Code()),
			"error":      typed.Message(),
			"status":     meta.HTTPStatus,
		})
		logg.Warn(ctx, "request.rejected")
		return
	}

	dump := pkgerrors.Dump(err)
	fields := map[string]any{
		"error":       dump.TopMessage,
		"error_code":  dump.Code,
		"error_chain": dump.Chain,
		"status":      meta.HTTPStatus,
	}
	for k, v := range dump.DB.Fields() {
		fields[k] = v
	}
	logg.Error(logg.WithFields(ctx, fields), "request.error", err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zlog.Error().Err(err).Msg("failed to encode response")
	}
}
