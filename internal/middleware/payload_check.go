package middleware

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/skillx/backend/internal/services"
)

const ctxPayloadKey contextKey = "validated_payload"

// PayloadFromCtx returns the raw body validated by CreateRequestCheck,
// or nil if not set.
func PayloadFromCtx(ctx context.Context) []byte {
	b, _ := ctx.Value(ctxPayloadKey).([]byte)
	return b
}

// CreateRequestCheck validates the request-creation body against the JSON
// schema before the handler runs. Reads the body for validation, then
// replaces r.Body so downstream handlers can re-read it.
func CreateRequestCheck(v *services.Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ActorFromCtx(r.Context()) == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			if err := v.ValidateCreateRequest(bodyBytes); err != nil {
				msg := strings.ReplaceAll(err.Error(), `"`, `'`)
				http.Error(w, fmt.Sprintf(`{"error":%q}`, msg), http.StatusBadRequest)
				return
			}

			ctx := context.WithValue(r.Context(), ctxPayloadKey, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
