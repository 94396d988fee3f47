package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/globalnexus/streamvault/app/models"
	"github.com/globalnexus/streamvault/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
)

const (
	defaultPesapalSandboxURL    = "https://cybqa.pesapal.com/pesapalv3"
	defaultPesapalProductionURL = "https://pay.pesapal.com/v3"

	// Refresh the bearer token slightly before its stated expiry so a
	// request never goes out with a token that dies in flight.
	pesapalTokenSkew = 30 * time.Second
)

// PesapalClient talks to the Pesapal v3 order API. It authenticates with a
// short-lived bearer token and registers an IPN URL once; both are cached
// on the client instance and refreshed proactively, never by waiting for a
// 401.
type PesapalClient struct {
	ConsumerKey    string
	ConsumerSecret string

	BaseURL     string
	CallbackURL string
	IPNURL      string

	HTTPClient *http.Client

	mu             sync.Mutex
	token          string
	tokenExpiresAt time.Time
	ipnID          string

	// Concurrent pollers needing a fresh token share one refresh call.
	tokenGroup singleflight.Group

	breaker *gobreaker.CircuitBreaker[httpResult]
}

type pesapalAPIError struct {
	Type    string `json:"error_type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type pesapalAuthResponse struct {
	Token      string           `json:"token"`
	ExpiryDate string           `json:"expiryDate"`
	Status     string           `json:"status"`
	Message    string           `json:"message"`
	Error      *pesapalAPIError `json:"error"`
}

type pesapalIPNResponse struct {
	IPNID  string           `json:"ipn_id"`
	URL    string           `json:"url"`
	Status string           `json:"status"`
	Error  *pesapalAPIError `json:"error"`
}

type pesapalOrderRequest struct {
	ID             string                `json:"id"`
	Currency       string                `json:"currency"`
	Amount         float64               `json:"amount"`
	Description    string                `json:"description"`
	CallbackURL    string                `json:"callback_url"`
	NotificationID string                `json:"notification_id"`
	BillingAddress pesapalBillingAddress `json:"billing_address"`
}

type pesapalBillingAddress struct {
	EmailAddress string `json:"email_address"`
	PhoneNumber  string `json:"phone_number"`
	CountryCode  string `json:"country_code"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

type pesapalOrderResponse struct {
	OrderTrackingID   string           `json:"order_tracking_id"`
	MerchantReference string           `json:"merchant_reference"`
	RedirectURL       string           `json:"redirect_url"`
	Status            string           `json:"status"`
	Error             *pesapalAPIError `json:"error"`
}

type pesapalStatusResponse struct {
	PaymentMethod            string           `json:"payment_method"`
	Amount                   float64          `json:"amount"`
	ConfirmationCode         string           `json:"confirmation_code"`
	PaymentStatusDescription string           `json:"payment_status_description"`
	StatusCode               int              `json:"status_code"`
	MerchantReference        string           `json:"merchant_reference"`
	Status                   string           `json:"status"`
	Error                    *pesapalAPIError `json:"error"`
}

// NewPesapalClientFromEnv builds a Pesapal client from environment
// configuration. PESAPAL_ENV selects sandbox or production unless a full
// base URL is provided.
func NewPesapalClientFromEnv() *PesapalClient {
	baseURL := strings.TrimSpace(env.GetEnv("PESAPAL_ENV", ""))
	switch {
	case strings.HasPrefix(baseURL, "http://"), strings.HasPrefix(baseURL, "https://"):
		// full URL, use as-is
	case baseURL == "production":
		baseURL = defaultPesapalProductionURL
	default:
		baseURL = defaultPesapalSandboxURL
	}

	publicBase := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/")

	return &PesapalClient{
		ConsumerKey:    strings.Trim(strings.TrimSpace(env.GetEnv("PESAPAL_CONSUMER_KEY", "")), `"'`),
		ConsumerSecret: strings.Trim(strings.TrimSpace(env.GetEnv("PESAPAL_CONSUMER_SECRET", "")), `"'`),
		BaseURL:        strings.TrimRight(baseURL, "/"),
		CallbackURL:    publicBase + "/api/pesapal/callback",
		IPNURL:         publicBase + "/api/pesapal/ipn",
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		breaker: newGatewayBreaker("pesapal"),
	}
}

func (c *PesapalClient) Name() string { return models.ProviderPesapal }

// authToken returns a valid bearer token, reusing the cached one until it
// nears expiry.
func (c *PesapalClient) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Now().Add(pesapalTokenSkew).Before(c.tokenExpiresAt) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	v, err, _ := c.tokenGroup.Do("token", func() (interface{}, error) {
		return c.requestToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *PesapalClient) requestToken(ctx context.Context) (string, error) {
	if c.ConsumerKey == "" || c.ConsumerSecret == "" {
		return "", fmt.Errorf("PESAPAL_CONSUMER_KEY/PESAPAL_CONSUMER_SECRET are not configured")
	}

	payload := map[string]string{
		"consumer_key":    c.ConsumerKey,
		"consumer_secret": c.ConsumerSecret,
	}
	res, err := c.postJSON(ctx, "/api/Auth/RequestToken", "", payload)
	if err != nil {
		return "", err
	}

	var auth pesapalAuthResponse
	if err := json.Unmarshal(res.body, &auth); err != nil {
		return "", fmt.Errorf("%w: bad auth response: %v", ErrGatewayUnavailable, err)
	}
	if auth.Status != "200" || auth.Token == "" {
		return "", c.rejection(auth.Error, auth.Message, "authentication refused")
	}

	expiresAt, err := time.Parse(time.RFC3339, auth.ExpiryDate)
	if err != nil {
		// Provider-supplied expiry is authoritative when parseable.
		// Pesapal tokens live 5 minutes; fall back to that.
		expiresAt = time.Now().Add(5 * time.Minute)
	}

	c.mu.Lock()
	c.token = auth.Token
	c.tokenExpiresAt = expiresAt
	c.mu.Unlock()

	log.Debugf("[Pesapal] token refreshed, expires %s", expiresAt.Format(time.RFC3339))
	return auth.Token, nil
}

// notificationID returns the registered IPN id, registering the IPN URL on
// first use.
func (c *PesapalClient) notificationID(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.ipnID != "" {
		id := c.ipnID
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	token, err := c.authToken(ctx)
	if err != nil {
		return "", err
	}

	payload := map[string]string{
		"url":                   c.IPNURL,
		"ipn_notification_type": "GET",
	}
	res, err := c.postJSON(ctx, "/api/URLSetup/RegisterIPN", token, payload)
	if err != nil {
		return "", err
	}

	var ipn pesapalIPNResponse
	if err := json.Unmarshal(res.body, &ipn); err != nil {
		return "", fmt.Errorf("%w: bad IPN response: %v", ErrGatewayUnavailable, err)
	}
	if ipn.Status != "200" || ipn.IPNID == "" {
		return "", c.rejection(ipn.Error, "", "IPN registration refused")
	}

	c.mu.Lock()
	c.ipnID = ipn.IPNID
	c.mu.Unlock()

	log.Infof("[Pesapal] IPN registered: %s -> %s", ipn.IPNID, c.IPNURL)
	return ipn.IPNID, nil
}

// SubmitOrder opens a hosted-checkout order. The returned redirect URL is
// where the customer completes payment.
func (c *PesapalClient) SubmitOrder(ctx context.Context, intent *models.PaymentIntent, customer Customer) (*SubmitResult, error) {
	token, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}
	ipnID, err := c.notificationID(ctx)
	if err != nil {
		return nil, err
	}

	order := pesapalOrderRequest{
		ID:             intent.MerchantReference,
		Currency:       intent.Currency,
		Amount:         float64(intent.AmountMinor),
		Description:    fmt.Sprintf("%s subscription", intent.PlanID),
		CallbackURL:    c.CallbackURL,
		NotificationID: ipnID,
		BillingAddress: pesapalBillingAddress{
			EmailAddress: customer.Email,
			PhoneNumber:  customer.Phone,
			CountryCode:  "UG",
			FirstName:    customer.FirstName,
			LastName:     customer.LastName,
		},
	}

	res, err := c.postJSON(ctx, "/api/Transactions/SubmitOrderRequest", token, order)
	if err != nil {
		return nil, err
	}

	var resp pesapalOrderResponse
	if err := json.Unmarshal(res.body, &resp); err != nil {
		return nil, fmt.Errorf("%w: bad order response: %v", ErrGatewayUnavailable, err)
	}
	// Pesapal reports rejections inside a 200 body; the HTTP status alone
	// is not trustworthy.
	if resp.Status != "200" || resp.RedirectURL == "" || resp.OrderTrackingID == "" {
		return nil, c.rejection(resp.Error, "", "order refused")
	}

	return &SubmitResult{
		ProviderReference: resp.OrderTrackingID,
		RedirectURL:       resp.RedirectURL,
	}, nil
}

// QueryStatus fetches the transaction status for an order tracking id and
// maps Pesapal's numeric status_code to the internal vocabulary.
func (c *PesapalClient) QueryStatus(ctx context.Context, providerReference string) (*SettlementSignal, error) {
	token, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := c.BaseURL + "/api/Transactions/GetTransactionStatus?orderTrackingId=" + url.QueryEscape(providerReference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := doRequest(c.breaker, c.HTTPClient, req)
	if err != nil {
		return nil, err
	}

	var status pesapalStatusResponse
	if err := json.Unmarshal(res.body, &status); err != nil {
		return nil, fmt.Errorf("%w: bad status response: %v", ErrGatewayUnavailable, err)
	}
	if status.Error != nil && status.Error.Code != "" {
		return nil, c.rejection(status.Error, "", "status query refused")
	}

	return &SettlementSignal{
		MerchantReference: status.MerchantReference,
		ProviderStatus:    mapPesapalStatusCode(status.StatusCode),
		ConfirmationCode:  status.ConfirmationCode,
		AmountMinor:       int64(status.Amount),
		PaymentMethod:     status.PaymentMethod,
		ReceivedVia:       SourcePoll,
	}, nil
}

// Pesapal status_code values: 0=INVALID, 1=COMPLETED, 2=FAILED, 3=REVERSED.
func mapPesapalStatusCode(code int) ProviderStatus {
	switch code {
	case 1:
		return StatusCompleted
	case 2:
		return StatusFailed
	case 3:
		return StatusReversed
	case 0:
		return StatusPending
	default:
		return StatusUnknown
	}
}

func (c *PesapalClient) postJSON(ctx context.Context, path, token string, payload interface{}) (httpResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return httpResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return httpResult{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return doRequest(c.breaker, c.HTTPClient, req)
}

func (c *PesapalClient) rejection(apiErr *pesapalAPIError, message, fallback string) error {
	rejected := &GatewayRejectedError{Provider: models.ProviderPesapal, Message: fallback}
	if message != "" {
		rejected.Message = message
	}
	if apiErr != nil {
		rejected.Code = apiErr.Code
		if apiErr.Message != "" {
			rejected.Message = apiErr.Message
		}
	}
	return rejected
}
