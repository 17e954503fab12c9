package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error codes surfaced to clients. Retryability is derived from the code so
// the extension can decide whether to offer a retry button.
const (
	codeInvalidRequest = "INVALID_REQUEST"
	codeUnauthorized   = "UNAUTHORIZED"
	codeNotFound       = "NOT_FOUND"
	codeChatInProgress = "CHAT_IN_PROGRESS"
	codeRateLimited    = "RATE_LIMITED"
	codeQuotaExceeded  = "QUOTA_EXCEEDED"
	codeSafetyBlocked  = "SAFETY_BLOCKED"
	codeUpstreamError  = "UPSTREAM_ERROR"
	codeInternalError  = "INTERNAL_ERROR"
)

func retryable(code string) bool {
	switch code {
	case codeRateLimited, codeQuotaExceeded, codeUpstreamError, codeChatInProgress:
		return true
	}
	return false
}

func httpError(w http.ResponseWriter, status int, code string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message":   msg,
			"code":      code,
			"retryable": retryable(code),
		},
	})
}
