// Package api provides HTTP handlers for the escape room API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/containerd/errdefs"
	"github.com/containerd/errdefs/pkg/errhttp"
	"github.com/go-chi/chi/v5"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// WriteError maps err to its HTTP status and writes it. Server-side
// failures are logged and reported without detail.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := errhttp.ToHTTP(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		Error(w, status, http.StatusText(status))
		return
	}
	Error(w, status, err.Error())
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body too large: %w", errdefs.ErrInvalidArgument)
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty: %w", errdefs.ErrInvalidArgument)
		}
		return fmt.Errorf("invalid JSON body: %w", errdefs.ErrInvalidArgument)
	}
	return nil
}

// roomParam parses the {room} URL parameter.
func roomParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "room")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid room %q: %w", raw, errdefs.ErrInvalidArgument)
	}
	return n, nil
}
