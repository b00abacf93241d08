package registry

import (
	"encoding/json"
	"net/http"
	"strings"
)

// WalletExtractor pulls the caller's wallet address out of a request.
// Returning "" means no address was supplied.
type WalletExtractor func(r *http.Request) string

// DefaultWalletExtractor looks at the "wallet" query parameter, then the
// X-Wallet-Address header. Only 0x-prefixed values are accepted.
func DefaultWalletExtractor(r *http.Request) string {
	if v := r.URL.Query().Get("wallet"); strings.HasPrefix(v, "0x") {
		return v
	}
	if v := r.Header.Get("X-Wallet-Address"); strings.HasPrefix(v, "0x") {
		return v
	}
	return ""
}

// GateOption configures RequireSubscription.
type GateOption func(*gate)

// WithWalletExtractor replaces the default wallet extraction.
func WithWalletExtractor(fn WalletExtractor) GateOption {
	return func(g *gate) { g.extract = fn }
}

type gate struct {
	reg     Registry
	planID  string
	extract WalletExtractor
}

// RequireSubscription returns middleware that admits a request only when the
// caller holds an active subscription to planID. It answers 400 when no
// wallet address is supplied, 402 when the subscription is inactive, and 500
// when the registry itself fails. A registry outage must not read as "not
// subscribed".
func RequireSubscription(reg Registry, planID string, opts ...GateOption) func(http.Handler) http.Handler {
	g := &gate{reg: reg, planID: planID, extract: DefaultWalletExtractor}
	for _, opt := range opts {
		opt(g)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wallet := g.extract(r)
			if wallet == "" {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"ok":    false,
					"error": "missing wallet address (?wallet or X-Wallet-Address header)",
				})
				return
			}

			active, err := g.reg.IsActive(r.Context(), wallet, g.planID)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"ok":    false,
					"error": "subscription check failed",
				})
				return
			}
			if !active {
				writeJSON(w, http.StatusPaymentRequired, map[string]any{
					"ok":     false,
					"error":  "subscription inactive for this plan",
					"planId": g.planID,
					"wallet": wallet,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
