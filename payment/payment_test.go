package payment_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	g402 "github.com/402guard/guard402"
	"github.com/402guard/guard402/payment"
)

const payerKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

// Test 1: Local retries with the test payment header and reports settlement.
func TestLocal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(payment.TestPaymentHeader) != "paid" {
			w.WriteHeader(http.StatusPaymentRequired)
			return
		}
		fmt.Fprintln(w, "paid content")
	}))
	t.Cleanup(srv.Close)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	res, err := payment.Local()(context.Background(), g402.PaymentArgs{
		Option:  g402.PaymentOption{Network: "test-net"},
		Request: req,
		Client:  srv.Client(),
	})
	require.NoError(t, err)
	defer res.Response.Body.Close()

	assert.Equal(t, http.StatusOK, res.Response.StatusCode)
	require.NotNil(t, res.Settlement)
	assert.True(t, res.Settlement.Success)
	assert.Equal(t, "0x-local-tx", res.Settlement.Transaction)
	assert.Equal(t, "test-net", res.Settlement.Network)
}

// Test 2: a server that keeps demanding payment is an error, not a loop.
func TestLocalStillChallenged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	t.Cleanup(srv.Close)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := payment.Local()(context.Background(), g402.PaymentArgs{
		Request: req,
		Client:  srv.Client(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still demands payment")
}

// Test 3: the facilitator flow end to end. The settle call must carry a
// signature, payer address, and timestamp; the origin retry must carry the
// returned proof.
func TestFacilitatorPay(t *testing.T) {
	const proof = "proof-abc123"
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	facilitator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/settle", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		assert.NotEmpty(t, r.Header.Get("Authorization"))

		payer := r.Header.Get("X-Payer-Address")
		assert.Len(t, payer, 42)
		assert.Equal(t, "0x", payer[:2])

		ts, err := strconv.ParseInt(r.Header.Get("X-Timestamp"), 10, 64)
		require.NoError(t, err)
		assert.Equal(t, now.UnixNano(), ts)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "0xmerchant", body["payTo"])
		assert.Equal(t, payer, body["payer"])

		json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"transaction":  "0xtx42",
			"network":      "base-sepolia",
			"payer":        payer,
			"paymentProof": proof,
		})
	}))
	t.Cleanup(facilitator.Close)

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(payment.PaymentProofHeader) != proof {
			w.WriteHeader(http.StatusPaymentRequired)
			return
		}
		fmt.Fprintln(w, "paid content")
	}))
	t.Cleanup(origin.Close)

	f := payment.NewFacilitator(facilitator.URL, payerKey,
		payment.WithNow(func() time.Time { return now }),
	)

	req, _ := http.NewRequest(http.MethodGet, origin.URL, nil)
	res, err := f.Pay(context.Background(), g402.PaymentArgs{
		Option: g402.PaymentOption{
			Scheme:         "exact",
			Network:        "base-sepolia",
			AmountRequired: "10000",
			PayTo:          "0xmerchant",
			Asset:          "USDC",
		},
		Request: req,
		Client:  origin.Client(),
	})
	require.NoError(t, err)
	defer res.Response.Body.Close()

	assert.Equal(t, http.StatusOK, res.Response.StatusCode)
	require.NotNil(t, res.Settlement)
	assert.Equal(t, "0xtx42", res.Settlement.Transaction)
	assert.Equal(t, "base-sepolia", res.Settlement.Network)
}

// Test 4: a rejected settlement surfaces the facilitator's reason.
func TestFacilitatorRejected(t *testing.T) {
	facilitator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success":     false,
			"errorReason": "insufficient funds",
		})
	}))
	t.Cleanup(facilitator.Close)

	f := payment.NewFacilitator(facilitator.URL, payerKey)

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	_, err := f.Pay(context.Background(), g402.PaymentArgs{
		Request: req,
		Client:  http.DefaultClient,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient funds")
}

// Test 5: a non-200 from the facilitator is an error with the body included.
func TestFacilitatorHTTPError(t *testing.T) {
	facilitator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance window", http.StatusServiceUnavailable)
	}))
	t.Cleanup(facilitator.Close)

	f := payment.NewFacilitator(facilitator.URL, payerKey)

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	_, err := f.Pay(context.Background(), g402.PaymentArgs{
		Request: req,
		Client:  http.DefaultClient,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "maintenance window")
}

// Test 6: a bad key fails before any network traffic.
func TestFacilitatorBadKey(t *testing.T) {
	f := payment.NewFacilitator("http://example.invalid", "not-a-key")

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	_, err := f.Pay(context.Background(), g402.PaymentArgs{
		Request: req,
		Client:  http.DefaultClient,
	})
	assert.Error(t, err)
}
