package pix

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lumeapp/agenda/internal/payment/domain"
)

// Client polls a Pix PSP for charge status. Pix confirmations arrive out of
// band, so the charge endpoint is the only authoritative source.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Provider() string { return "pix" }

func (c *Client) QueryStatus(ctx context.Context, gatewayRef string, ownerRef string) (domain.GatewayStatus, error) {
	endpoint := c.baseURL + "/v2/cob/" + url.PathEscape(gatewayRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.GatewayStatusUnknown, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if ownerRef != "" {
		req.Header.Set("X-Account-Ref", ownerRef)
	}

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

	var charge struct {
		TxID   string `json:"txid"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&charge); err != nil {
		return domain.GatewayStatusUnknown, domain.ErrInvalidPayload
	}

	return mapChargeStatus(charge.Status), nil
}

func mapChargeStatus(status string) domain.GatewayStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "CONCLUIDA":
		return domain.GatewayStatusApproved
	case "REMOVIDA_PELO_USUARIO_RECEBEDOR", "REMOVIDA_PELO_PSP":
		return domain.GatewayStatusCancelled
	case "DEVOLVIDA":
		return domain.GatewayStatusRefunded
	case "ATIVA":
		return domain.GatewayStatusPending
	default:
		return domain.GatewayStatusUnknown
	}
}
