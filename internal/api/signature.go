package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body, keyed
// with the shared webhook secret. Upstream hooks (registration, payment
// processor) sign every call; end users cannot.
const SignatureHeader = "X-Webhook-Signature"

// Sign returns the SignatureHeader value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// signed admits only requests whose body carries a valid signature. With no
// secret configured every request is refused.
func (h *Handler) signed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(h.webhookSecret) == 0 {
			respondWithError(w, http.StatusForbidden, "Webhook endpoints are disabled")
			return
		}
		sig := r.Header.Get(SignatureHeader)
		if sig == "" {
			respondWithError(w, http.StatusUnauthorized, "Missing "+SignatureHeader+" header")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "Stream read error")
			return
		}
		r.Body = io.NopCloser(bytes.NewBuffer(body))

		expected := Sign(h.webhookSecret, body)
		if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(sig))) {
			h.logger.Warn("webhook signature mismatch", "path", r.URL.Path)
			respondWithError(w, http.StatusForbidden, "Invalid webhook signature")
			return
		}
		next(w, r)
	}
}
