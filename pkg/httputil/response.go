package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

type envelope map[string]any

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response failed", slog.Any("err", err))
	}
}

// OK writes {"data": data} with 200.
func OK(w http.ResponseWriter, data any) {
	Data(w, http.StatusOK, data)
}

func Data(w http.ResponseWriter, status int, data any) {
	JSON(w, status, envelope{"data": data})
}

// Error writes {"error": {"message": msg, "meta": meta}}.
func Error(ctx context.Context, w http.ResponseWriter, status int, msg string, meta map[string]any) {
	body := envelope{"message": msg}
	if reqID, ok := RequestIDFrom(ctx); ok {
		if meta == nil {
			meta = map[string]any{}
		}
		meta["request_id"] = reqID
	}
	if len(meta) > 0 {
		body["meta"] = meta
	}
	JSON(w, status, envelope{"error": body})
}

// Decode reads a JSON body into dst, rejecting unknown fields.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
