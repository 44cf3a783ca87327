package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/MrWong99/phonoplay/internal/catalog"
	"github.com/MrWong99/phonoplay/internal/observe"
	"github.com/MrWong99/phonoplay/internal/phonics"
	"github.com/MrWong99/phonoplay/internal/session"
	"github.com/MrWong99/phonoplay/pkg/provider/stt"
	"github.com/MrWong99/phonoplay/pkg/provider/tts"
)

const maxJSONBody = 1 << 20

var (
	errBadRequest     = errors.New("bad request")
	errNotConfigured  = errors.New("feature not configured")
	errUpstreamFailed = errors.New("upstream failed")
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("web: write response", "error", err)
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrRecordingActive),
		errors.Is(err, session.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, session.ErrInvalidRequest),
		errors.Is(err, catalog.ErrInvalidQuery),
		errors.Is(err, catalog.ErrUnknownSource),
		errors.Is(err, stt.ErrEmptyAudio),
		errors.Is(err, tts.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, phonics.ErrEmptyCandidateSet):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrUnavailable),
		errors.Is(err, session.ErrCatalogUnavailable),
		errors.Is(err, errNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, errUpstreamFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and writes the JSON error envelope. Server errors
// hide their details from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: http.StatusText(status)}
	log := observe.Logger(r.Context()).With("method", r.Method, "path", r.URL.Path, "status", status)
	if status >= 500 {
		log.Error("request failed", "error", err)
	} else {
		body.Details = err.Error()
		log.Debug("request rejected", "error", err)
	}
	writeJSON(w, status, body)
}

// jsonName reports struct fields by their JSON name in validation errors.
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: invalid JSON: %w", errBadRequest, err)
	}
	return s.check(dst)
}

// check validates v against its struct tags.
func (s *Server) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", errBadRequest, strings.Join(msgs, "; "))
}

// errorf wraps sentinel with a formatted message.
func errorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
