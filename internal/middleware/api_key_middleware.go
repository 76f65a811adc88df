package middleware

import (
	"context"
	"errors"
	"net/http"

	"aigate/internal/models"
	"aigate/internal/storage"
	"aigate/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

const (
	// APIKeyRecordKey is the context key for storing the resolved API key record
	APIKeyRecordKey ContextKey = "apiKeyRecord"
)

// APIKeyMiddleware resolves the api_key query parameter (or X-API-Key
// header) to a stored key and adds it to the request context. It only
// resolves identity; quota and balance checks happen later, inside the
// accounting admit.
func APIKeyMiddleware(store storage.KeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.URL.Query().Get("api_key")
			if apiKey == "" {
				apiKey = r.Header.Get("X-API-Key")
			}

			if apiKey == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing API key")
				return
			}

			ctx := r.Context()
			keyRecord, err := store.Get(ctx, apiKey)
			if err != nil {
				if errors.Is(err, storage.ErrKeyNotFound) {
					utils.RespondWithError(w, http.StatusUnauthorized, "Invalid API key")
					return
				}
				utils.RespondWithError(w, http.StatusInternalServerError, "Error validating API key")
				return
			}

			ctx = context.WithValue(ctx, APIKeyRecordKey, keyRecord)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAPIKeyRecord retrieves the API key record from the request context
func GetAPIKeyRecord(ctx context.Context) (*models.APIKey, bool) {
	record, ok := ctx.Value(APIKeyRecordKey).(*models.APIKey)
	return record, ok
}
