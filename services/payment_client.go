package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the payment network's view of a reference.
type PaymentStatus string

const (
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// PaymentClient talks to the payment gateway that fronts the on-chain prize-pool contract.
type PaymentClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewPaymentClient(baseURL, token string, client *http.Client) *PaymentClient {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &PaymentClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  client,
	}
}

// OpenRound registers the round on the payment network so entry fees can be paid into it.
func (c *PaymentClient) OpenRound(ctx context.Context, roundID string, entryFee decimal.Decimal) (string, error) {
	var out struct {
		TxRef string `json:"tx_ref"`
	}
	body := map[string]interface{}{
		"round_id":  roundID,
		"entry_fee": entryFee.String(),
	}
	if err := c.do(ctx, http.MethodPost, "/rounds", body, &out); err != nil {
		return "", fmt.Errorf("open round %s: %w", roundID, err)
	}
	if out.TxRef == "" {
		return "", fmt.Errorf("open round %s: gateway returned empty tx_ref", roundID)
	}
	return out.TxRef, nil
}

// Pay submits a prize transfer and returns its payment reference.
func (c *PaymentClient) Pay(ctx context.Context, roundID string, amount decimal.Decimal, recipient string) (string, error) {
	var out struct {
		PaymentRef string `json:"payment_ref"`
	}
	body := map[string]interface{}{
		"round_id":  roundID,
		"recipient": recipient,
		"amount":    amount.String(),
	}
	if err := c.do(ctx, http.MethodPost, "/payouts", body, &out); err != nil {
		return "", fmt.Errorf("pay %s to %s: %w", amount.String(), recipient, err)
	}
	if out.PaymentRef == "" {
		return "", fmt.Errorf("pay %s to %s: gateway returned empty payment_ref", amount.String(), recipient)
	}
	return out.PaymentRef, nil
}

// Verify reports whether the payment behind ref has settled.
func (c *PaymentClient) Verify(ctx context.Context, ref string) (PaymentStatus, error) {
	var out struct {
		Status PaymentStatus `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(ref), nil, &out); err != nil {
		return "", fmt.Errorf("verify payment %s: %w", ref, err)
	}
	switch out.Status {
	case PaymentStatusConfirmed, PaymentStatusPending, PaymentStatusFailed:
		return out.Status, nil
	default:
		return "", fmt.Errorf("verify payment %s: unknown status %q", ref, out.Status)
	}
}

func (c *PaymentClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("call payment gateway: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("payment gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode payment gateway response: %w", err)
	}
	return nil
}
