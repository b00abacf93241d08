package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Client is an HTTP implementation of Registry, talking JSON to a registry
// gateway that fronts the on-chain subscription contract.
type Client struct {
	baseURL string
	client  *http.Client
}

var _ Registry = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.client = c }
}

// NewClient creates a registry client for the given gateway base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type statusResponse struct {
	Active bool `json:"active"`
}

type txResponse struct {
	Transaction string `json:"transaction"`
	Error       string `json:"error"`
}

// IsActive reports whether user holds an active subscription to planID.
func (c *Client) IsActive(ctx context.Context, user, planID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/subscriptions/status?user=%s&plan=%s",
		c.baseURL, url.QueryEscape(user), url.QueryEscape(HashPlanID(planID)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, &Error{Op: "isActive", Err: err}
	}

	var status statusResponse
	if err := c.do(req, &status); err != nil {
		return false, &Error{Op: "isActive", Err: err}
	}
	return status.Active, nil
}

// CreatePlan provisions a plan. HTTP 409 ("plan already exists") counts as
// success so repeated provisioning stays idempotent.
func (c *Client) CreatePlan(ctx context.Context, plan Plan) (string, error) {
	payload := struct {
		Plan
		PlanKey string `json:"planKey"`
	}{Plan: plan, PlanKey: HashPlanID(plan.ID)}

	tx, err := c.post(ctx, "/subscriptions/plans", payload, http.StatusConflict)
	if err != nil {
		return "", &Error{Op: "createPlan", Err: err}
	}
	return tx, nil
}

// Subscribe subscribes user to planID.
func (c *Client) Subscribe(ctx context.Context, user, planID string) (string, error) {
	payload := map[string]string{
		"user":    user,
		"planKey": HashPlanID(planID),
	}

	tx, err := c.post(ctx, "/subscriptions/subscribe", payload, 0)
	if err != nil {
		return "", &Error{Op: "subscribe", Err: err}
	}
	return tx, nil
}

// RecordUsage reports settled usage upstream.
func (c *Client) RecordUsage(ctx context.Context, user, planID string, usdCents int64) (string, error) {
	payload := map[string]any{
		"user":     user,
		"planKey":  HashPlanID(planID),
		"usdCents": usdCents,
	}

	tx, err := c.post(ctx, "/subscriptions/usage", payload, 0)
	if err != nil {
		return "", &Error{Op: "recordUsage", Err: err}
	}
	return tx, nil
}

// post sends a JSON payload and decodes the transaction reference.
// tolerateStatus, when non-zero, names one non-2xx status to treat as
// success (used for idempotent creates).
func (c *Client) post(ctx context.Context, path string, payload any, tolerateStatus int) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var tx txResponse
	if err := c.doTolerant(req, &tx, tolerateStatus); err != nil {
		return "", err
	}
	return tx.Transaction, nil
}

func (c *Client) do(req *http.Request, out any) error {
	return c.doTolerant(req, out, 0)
}

func (c *Client) doTolerant(req *http.Request, out any, tolerateStatus int) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok && resp.StatusCode != tolerateStatus {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("registry gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
