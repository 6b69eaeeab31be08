package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lumeapp/agenda/internal/payment/domain"
)

// Client reads the authoritative charge status from the Stripe API.
// It queries payment intents directly rather than relying on webhook
// delivery, so a missed event never leaves a booking stuck.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: "https://api.stripe.com/v1",
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Provider() string { return "stripe" }

func (c *Client) QueryStatus(ctx context.Context, gatewayRef string, ownerRef string) (domain.GatewayStatus, error) {
	endpoint := c.baseURL + "/payment_intents/" + url.PathEscape(gatewayRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.GatewayStatusUnknown, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.GatewayStatusUnknown, domain.ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.GatewayStatusUnknown, nil
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return domain.GatewayStatusUnknown, domain.ErrGatewayUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		return domain.GatewayStatusUnknown, domain.ErrInvalidPayload
	}

	var intent struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return domain.GatewayStatusUnknown, domain.ErrInvalidPayload
	}

	return mapIntentStatus(intent.Status), nil
}

func mapIntentStatus(status string) domain.GatewayStatus {
	switch strings.TrimSpace(status) {
	case "succeeded":
		return domain.GatewayStatusApproved
	case "canceled":
		return domain.GatewayStatusCancelled
	case "requires_payment_method", "requires_confirmation", "requires_action", "processing", "requires_capture":
		return domain.GatewayStatusPending
	default:
		return domain.GatewayStatusUnknown
	}
}
