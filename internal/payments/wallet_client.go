package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	defaultWalletTimeout     = 8 * time.Second
	defaultBreakerFailures   = 5
	defaultBreakerOpenPeriod = 30 * time.Second
	idempotencyHeader        = "Idempotency-Key"
	maxWalletBody            = 64 << 10
)

// WalletClientConfig configures the mobile-wallet initiation client.
type WalletClientConfig struct {
	// Endpoint is the collaborator base URL; requests go to {Endpoint}/payments/initiate.
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	// BreakerMaxFailures consecutive failures open the circuit for BreakerOpenTimeout.
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
	HTTPClient         *http.Client
	Logger             func(context.Context, string, map[string]any)
}

// WalletClient posts initiation requests to the payment-initiation collaborator behind a
// circuit breaker.
type WalletClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[WalletResponse]
	logger   func(context.Context, string, map[string]any)
}

var _ WalletInitiator = (*WalletClient)(nil)

type walletPayload struct {
	OrderID       string          `json:"orderId"`
	PaymentMethod string          `json:"paymentMethod"`
	Provider      string          `json:"provider,omitempty"`
	Amount        json.RawMessage `json:"amount"`
}

// NewWalletClient validates cfg and constructs the client.
func NewWalletClient(cfg WalletClientConfig) (*WalletClient, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("payments: wallet endpoint is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("payments: invalid wallet endpoint: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultWalletTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerFailures
	}
	openTimeout := cfg.BreakerOpenTimeout
	if openTimeout <= 0 {
		openTimeout = defaultBreakerOpenPeriod
	}

	c := &WalletClient{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		http:     httpClient,
		logger:   logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[WalletResponse](gobreaker.Settings{
		Name:        "wallet-initiation",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Business rejections prove the collaborator is reachable.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrWalletRejected) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger(context.Background(), "payments.wallet.breaker_state", map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
	return c, nil
}

// BreakerState reports the circuit state: closed, half-open or open.
func (c *WalletClient) BreakerState() string {
	return c.breaker.State().String()
}

// Initiate posts {orderId, paymentMethod, amount} and requires a paymentUrl on success.
func (c *WalletClient) Initiate(ctx context.Context, req WalletRequest) (WalletResponse, error) {
	if c == nil {
		return WalletResponse{}, fmt.Errorf("%w: client is nil", ErrWalletUnavailable)
	}
	resp, err := c.breaker.Execute(func() (WalletResponse, error) {
		return c.initiate(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return WalletResponse{}, fmt.Errorf("%w: %v", ErrWalletUnavailable, err)
	}
	return resp, err
}

func (c *WalletClient) initiate(ctx context.Context, req WalletRequest) (WalletResponse, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return WalletResponse{}, errors.New("payments: wallet order id is required")
	}
	amount := strings.TrimSpace(req.Amount)
	if !json.Valid([]byte(amount)) {
		return WalletResponse{}, fmt.Errorf("payments: invalid wallet amount %q", req.Amount)
	}

	endpoint, err := url.JoinPath(c.endpoint, "payments", "initiate")
	if err != nil {
		return WalletResponse{}, err
	}
	payload, err := json.Marshal(walletPayload{
		OrderID:       orderID,
		PaymentMethod: req.PaymentMethod,
		Provider:      req.Provider,
		Amount:        json.RawMessage(amount),
	})
	if err != nil {
		return WalletResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return WalletResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = orderID
	}
	httpReq.Header.Set(idempotencyHeader, key)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return WalletResponse{}, ctx.Err()
		}
		return WalletResponse{}, fmt.Errorf("%w: %v", ErrWalletUnavailable, err)
	}
	defer httpResp.Body.Close()

	c.logger(ctx, "payments.wallet.initiate", map[string]any{
		"orderId": orderID,
		"status":  httpResp.StatusCode,
		"latency": time.Since(started).String(),
	})

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return WalletResponse{}, fmt.Errorf("%w: status %d: %s", ErrWalletUnavailable, httpResp.StatusCode, drainError(httpResp.Body))
	}

	var body WalletResponse
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, maxWalletBody)).Decode(&body); err != nil {
		return WalletResponse{}, fmt.Errorf("%w: %v", ErrWalletMalformed, err)
	}
	if !body.Success {
		msg := strings.TrimSpace(body.Error)
		if msg == "" {
			msg = "declined"
		}
		return body, fmt.Errorf("%w: %s", ErrWalletRejected, msg)
	}
	body.PaymentURL = strings.TrimSpace(body.PaymentURL)
	if body.PaymentURL == "" {
		return WalletResponse{}, fmt.Errorf("%w: missing paymentUrl", ErrWalletMalformed)
	}
	if u, err := url.Parse(body.PaymentURL); err != nil || u.Scheme == "" || u.Host == "" {
		return WalletResponse{}, fmt.Errorf("%w: invalid paymentUrl", ErrWalletMalformed)
	}
	return body, nil
}

func drainError(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
