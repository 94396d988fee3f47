package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/globalnexus/streamvault/app/models"
	"github.com/sony/gobreaker/v2"
)

// Customer carries the purchaser details a provider needs to open an order.
type Customer struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// SubmitResult is the provider's answer to a new order. RedirectURL is set
// only for redirect-based providers (Pesapal); deposit-based providers
// (Relworx) confirm on the customer's phone instead.
type SubmitResult struct {
	ProviderReference string
	RedirectURL       string
}

// Gateway is the uniform provider interface. Adapters normalize each
// provider's protocol and vocabulary; everything above this interface is
// provider-agnostic.
type Gateway interface {
	Name() string
	SubmitOrder(ctx context.Context, intent *models.PaymentIntent, customer Customer) (*SubmitResult, error)
	QueryStatus(ctx context.Context, providerReference string) (*SettlementSignal, error)
}

// httpResult is what adapter circuit breakers carry: decoded status + body.
type httpResult struct {
	status int
	body   []byte
}

// newGatewayBreaker builds the circuit breaker both adapters wrap around
// provider calls. Repeated transport failures open the breaker; an open
// breaker short-circuits to ErrGatewayUnavailable without burning the
// polling deadline on dead connections.
func newGatewayBreaker(name string) *gobreaker.CircuitBreaker[httpResult] {
	return gobreaker.NewCircuitBreaker[httpResult](gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// doRequest executes an HTTP request through the breaker and reads the
// body. Transport errors and 5xx responses count as breaker failures and
// surface as ErrGatewayUnavailable.
func doRequest(cb *gobreaker.CircuitBreaker[httpResult], client *http.Client, req *http.Request) (httpResult, error) {
	res, err := cb.Execute(func() (httpResult, error) {
		resp, err := client.Do(req)
		if err != nil {
			return httpResult{}, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return httpResult{}, err
		}
		if resp.StatusCode >= 500 {
			return httpResult{}, fmt.Errorf("server error %d: %s", resp.StatusCode, body)
		}
		return httpResult{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return httpResult{}, fmt.Errorf("%w: circuit open for %s", ErrGatewayUnavailable, req.URL.Host)
		}
		return httpResult{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return res, nil
}
