// Package processor wraps the REST API of the upstream payout rail that
// actually moves money to the user's bank. The service never interprets HTTP
// status codes as payout outcomes; outcomes come from the status field of the
// response body.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Payout statuses the rail is known to answer with. Anything outside this set
// must be treated as a failure by the caller.
const (
	PayoutStatusSent       = "sent"
	PayoutStatusAccepted   = "accepted"
	PayoutStatusProcessing = "processing"
	PayoutStatusFailed     = "failed"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	http *resty.Client
}

func New(baseURL, apiKey string) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetAuthToken(apiKey)

	return &Client{http: client}
}

type PayoutRequest struct {
	Amount            float64 `json:"amount"`
	IBAN              string  `json:"iban"`
	AccountHolderName string  `json:"accountHolderName"`

	// Reference makes the request idempotent on the rail side; retrying with
	// the same reference never produces a second payout.
	Reference string `json:"reference"`
}

type PayoutResult struct {
	PayoutID             string `json:"payoutId"`
	Status               string `json:"status"`
	ReceiverName         string `json:"receiverName"`
	FailureReason        string `json:"failureReason"`
	YandexTransactionID  string `json:"yandexTransactionId"`
	BankTransactionRefNo string `json:"bankTransactionRefNo"`
	BankPaymentNo        string `json:"bankPaymentNo"`
}

type CommissionResult struct {
	CommissionAmount float64 `json:"commissionAmount"`
}

func (c *Client) CreatePayout(ctx context.Context, payout *PayoutRequest) (*PayoutResult, error) {
	var result PayoutResult

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", payout.Reference).
		SetBody(payout).
		SetResult(&result).
		Post("/v1/payouts")
	if err != nil {
		return nil, err
	}

	if resp.IsError() {
		return nil, fmt.Errorf("payout request rejected with status %d", resp.StatusCode())
	}

	return &result, nil
}

func (c *Client) GetPayout(ctx context.Context, payoutID string) (*PayoutResult, error) {
	var result PayoutResult

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/v1/payouts/" + payoutID)
	if err != nil {
		return nil, err
	}

	if resp.IsError() {
		return nil, fmt.Errorf("payout lookup rejected with status %d", resp.StatusCode())
	}

	return &result, nil
}

func (c *Client) CommissionQuote(ctx context.Context, amount float64) (float64, error) {
	var result CommissionResult

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("amount", fmt.Sprintf("%.2f", amount)).
		SetResult(&result).
		Get("/v1/commissions")
	if err != nil {
		return 0, err
	}

	if resp.IsError() {
		return 0, fmt.Errorf("commission lookup rejected with status %d", resp.StatusCode())
	}

	return result.CommissionAmount, nil
}
