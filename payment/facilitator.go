package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/402guard/guard402"
)

// PaymentProofHeader carries the settlement proof on the retried request.
const PaymentProofHeader = "X-Payment"

// Facilitator settles payment quotes through an HTTP facilitator service.
// Each settle call is signed with the configured secp256k1 key; the
// facilitator verifies the signature, performs the on-chain transfer, and
// returns a proof the origin server accepts in the X-Payment header.
type Facilitator struct {
	baseURL string
	hexKey  string
	keys    *keyCache
	client  *http.Client
	nowFunc func() time.Time
}

// FacilitatorOption configures a Facilitator.
type FacilitatorOption func(*Facilitator)

// WithHTTPClient sets the client used for facilitator calls (not for the
// retried origin request, which uses the guard's client).
func WithHTTPClient(c *http.Client) FacilitatorOption {
	return func(f *Facilitator) { f.client = c }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) FacilitatorOption {
	return func(f *Facilitator) { f.nowFunc = now }
}

// NewFacilitator creates a Facilitator for the given settle endpoint base URL
// and hex-encoded payer private key.
func NewFacilitator(baseURL, hexPrivateKey string, opts ...FacilitatorOption) *Facilitator {
	f := &Facilitator{
		baseURL: strings.TrimRight(baseURL, "/"),
		hexKey:  hexPrivateKey,
		keys:    newKeyCache(),
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Facilitator) now() time.Time {
	if f.nowFunc != nil {
		return f.nowFunc()
	}
	return time.Now()
}

// settleRequest is the payload posted to the facilitator.
type settleRequest struct {
	Scheme         string `json:"scheme"`
	Network        string `json:"network"`
	AmountRequired string `json:"maxAmountRequired"`
	PayTo          string `json:"payTo"`
	Asset          string `json:"asset"`
	Resource       string `json:"resource,omitempty"`
	Payer          string `json:"payer"`
}

// settleResponse is the facilitator's answer.
type settleResponse struct {
	Success      bool   `json:"success"`
	Transaction  string `json:"transaction"`
	Network      string `json:"network"`
	Payer        string `json:"payer"`
	PaymentProof string `json:"paymentProof"`
	ErrorReason  string `json:"errorReason"`
}

// Executor returns the Facilitator as a guard402.PaymentExecutor.
func (f *Facilitator) Executor() guard402.PaymentExecutor {
	return f.Pay
}

// Pay settles the selected option via the facilitator and retries the
// original request with the returned proof. It fails rather than return a
// partial result: if settlement is rejected or the retried request still
// gets a challenge, the error surfaces and nothing is recorded.
func (f *Facilitator) Pay(ctx context.Context, args guard402.PaymentArgs) (*guard402.PaymentResult, error) {
	ki, err := f.keys.get(f.hexKey)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(settleRequest{
		Scheme:         args.Option.Scheme,
		Network:        args.Option.Network,
		AmountRequired: args.Option.AmountRequired,
		PayTo:          args.Option.PayTo,
		Asset:          args.Option.Asset,
		Resource:       args.Option.Resource,
		Payer:          ki.address,
	})
	if err != nil {
		return nil, fmt.Errorf("payment: marshal settle request: %w", err)
	}

	tsNanos := f.now().UnixNano()
	signature, err := signPayload(ki.privKey, body, tsNanos, args.Option.PayTo)
	if err != nil {
		return nil, fmt.Errorf("payment: sign settle request: %w", err)
	}

	settleReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/settle", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("payment: build settle request: %w", err)
	}
	settleReq.Header.Set("Content-Type", "application/json")
	settleReq.Header.Set("Authorization", signature)
	settleReq.Header.Set("X-Payer-Address", ki.address)
	settleReq.Header.Set("X-Timestamp", strconv.FormatInt(tsNanos, 10))

	settleResp, err := f.client.Do(settleReq)
	if err != nil {
		return nil, fmt.Errorf("payment: settle: %w", err)
	}
	defer settleResp.Body.Close()

	if settleResp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(settleResp.Body, 4096))
		return nil, fmt.Errorf("payment: facilitator returned %d: %s", settleResp.StatusCode, strings.TrimSpace(string(data)))
	}

	var settled settleResponse
	if err := json.NewDecoder(settleResp.Body).Decode(&settled); err != nil {
		return nil, fmt.Errorf("payment: decode settle response: %w", err)
	}
	if !settled.Success {
		return nil, fmt.Errorf("payment: settlement rejected: %s", settled.ErrorReason)
	}

	// Retry the original request with proof of payment.
	retry := args.Request.WithContext(ctx)
	retry.Header.Set(PaymentProofHeader, settled.PaymentProof)

	resp, err := args.Client.Do(retry)
	if err != nil {
		return nil, fmt.Errorf("payment: retry request: %w", err)
	}
	if resp.StatusCode == guard402.StatusPaymentRequired {
		resp.Body.Close()
		return nil, fmt.Errorf("payment: server still demands payment after settlement (tx %s)", settled.Transaction)
	}

	return &guard402.PaymentResult{
		Response: resp,
		Settlement: &guard402.SettlementMeta{
			Success:     true,
			Transaction: settled.Transaction,
			Network:     settled.Network,
			Payer:       settled.Payer,
		},
	}, nil
}
