package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/globalnexus/streamvault/app/models"
	"github.com/globalnexus/streamvault/internal/pkg/env"
	"github.com/sony/gobreaker/v2"
)

// RelworxClient talks to the Relworx mobile-money API: a deposit request is
// pushed to the customer's phone and confirmed there, then the status is
// polled until it settles. No redirect, no webhook.
type RelworxClient struct {
	BaseURL string
	APIKey  string

	HTTPClient *http.Client

	breaker *gobreaker.CircuitBreaker[httpResult]
}

type relworxDepositRequest struct {
	MSISDN      string  `json:"msisdn"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

type relworxDepositResponse struct {
	Success           bool   `json:"success"`
	InternalReference string `json:"internal_reference"`
	Message           string `json:"message"`
}

type relworxStatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Relworx struct {
		RequestStatus string `json:"request_status"`
	} `json:"relworx"`
}

// NewRelworxClientFromEnv builds a Relworx client from environment
// configuration.
func NewRelworxClientFromEnv() *RelworxClient {
	return &RelworxClient{
		BaseURL: strings.TrimRight(env.GetEnv("RELWORX_BASE_URL", ""), "/"),
		APIKey:  strings.TrimSpace(env.GetEnv("RELWORX_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		breaker: newGatewayBreaker("relworx"),
	}
}

func (c *RelworxClient) Name() string { return models.ProviderRelworx }

// SubmitOrder pushes a deposit request to the customer's phone. The
// returned provider reference is Relworx's internal_reference, used for
// all status polls.
func (c *RelworxClient) SubmitOrder(ctx context.Context, intent *models.PaymentIntent, customer Customer) (*SubmitResult, error) {
	msisdn, err := NormalizeMSISDN(customer.Phone)
	if err != nil {
		return nil, &GatewayRejectedError{Provider: models.ProviderRelworx, Message: err.Error()}
	}

	payload := relworxDepositRequest{
		MSISDN:      msisdn,
		Amount:      float64(intent.AmountMinor),
		Description: fmt.Sprintf("Payment for %s plan", intent.PlanID),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/deposit", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	res, err := doRequest(c.breaker, c.HTTPClient, req)
	if err != nil {
		return nil, err
	}

	var resp relworxDepositResponse
	if err := json.Unmarshal(res.body, &resp); err != nil {
		return nil, fmt.Errorf("%w: bad deposit response: %v", ErrGatewayUnavailable, err)
	}
	if !resp.Success || resp.InternalReference == "" {
		return nil, &GatewayRejectedError{
			Provider: models.ProviderRelworx,
			Message:  firstNonEmpty(resp.Message, "deposit request refused"),
		}
	}

	return &SubmitResult{ProviderReference: resp.InternalReference}, nil
}

// QueryStatus polls the deposit status for an internal reference.
func (c *RelworxClient) QueryStatus(ctx context.Context, providerReference string) (*SettlementSignal, error) {
	endpoint := c.BaseURL + "/api/request-status?internal_reference=" + url.QueryEscape(providerReference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	res, err := doRequest(c.breaker, c.HTTPClient, req)
	if err != nil {
		return nil, err
	}

	var resp relworxStatusResponse
	if err := json.Unmarshal(res.body, &resp); err != nil {
		return nil, fmt.Errorf("%w: bad status response: %v", ErrGatewayUnavailable, err)
	}
	if !resp.Success {
		return nil, &GatewayRejectedError{
			Provider: models.ProviderRelworx,
			Message:  firstNonEmpty(resp.Message, "status query refused"),
		}
	}

	return &SettlementSignal{
		ProviderStatus: mapRelworxStatus(resp.Relworx.RequestStatus),
		PaymentMethod:  "mobile_money",
		ReceivedVia:    SourcePoll,
	}, nil
}

func mapRelworxStatus(status string) ProviderStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success":
		return StatusCompleted
	case "failed":
		return StatusFailed
	case "pending":
		return StatusPending
	default:
		return StatusUnknown
	}
}

// NormalizeMSISDN formats a Ugandan phone number for the deposit API:
// a leading 0 becomes +256, a bare international number gets a +.
func NormalizeMSISDN(phone string) (string, error) {
	p := strings.TrimSpace(phone)
	p = strings.ReplaceAll(p, " ", "")
	if p == "" {
		return "", fmt.Errorf("phone number is required")
	}

	switch {
	case strings.HasPrefix(p, "0"):
		p = "+256" + p[1:]
	case !strings.HasPrefix(p, "+"):
		p = "+" + p
	}

	if len(p) < 10 {
		return "", fmt.Errorf("phone number %q is too short", phone)
	}
	return p, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
