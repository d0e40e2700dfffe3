package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/fpang/auction-catalog/internal/catalog"
)

// maxBodyBytes matches the API Gateway payload limit.
const maxBodyBytes = 6 << 20

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Class string `json:"class"`
}

// httpError sends a JSON error response. The clientMsg is returned to the
// caller; internal details are logged but never sent.
func httpError(w http.ResponseWriter, r *http.Request, status int, clientMsg string, internalDetails ...string) {
	if len(internalDetails) > 0 {
		zerolog.Ctx(r.Context()).Error().
			Int("status", status).
			Str("clientMsg", clientMsg).
			Strs("internalDetails", internalDetails).
			Msg("HTTP error with internal details")
	}
	respondJSON(w, status, errorBody{Error: clientMsg, Class: classForStatus(status)})
}

// statusFor maps an error class to an HTTP status.
func statusFor(err error) int {
	switch catalog.ErrorClass(err) {
	case "validation_error":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "not_ready":
		return http.StatusConflict
	case "external_service_error":
		return http.StatusBadGateway
	case "storage_unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func classForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "not_ready"
	case http.StatusBadGateway:
		return "external_service_error"
	case http.StatusServiceUnavailable:
		return "storage_unavailable"
	case http.StatusForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// respondError classifies err and writes it. Validation, not-found, and
// not-ready messages are safe to show; anything else is replaced with a
// generic message and logged.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: clientMessage(status, err), Class: catalog.ErrorClass(err)}
	evt := zerolog.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		evt = zerolog.Ctx(r.Context()).Error()
	}
	evt.Err(err).Int("status", status).Str("class", body.Class).Msg("Request failed")
	respondJSON(w, status, body)
}

func clientMessage(status int, err error) string {
	switch status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict:
		return err.Error()
	case http.StatusBadGateway:
		return "upstream AI service error"
	case http.StatusServiceUnavailable:
		return "storage temporarily unavailable"
	default:
		return "internal server error"
	}
}

// decodeJSON reads a bounded JSON body into v. Failures are validation
// errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return catalog.Validationf("request body exceeds %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return catalog.Validationf("request body is required")
		default:
			return fmt.Errorf("%w: invalid JSON body: %v", catalog.ErrValidation, err)
		}
	}
	return nil
}
