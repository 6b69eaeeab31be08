package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	paymentdomain "github.com/lumeapp/agenda/internal/payment/domain"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// HandleWebhook accepts provider callbacks as an advisory trigger: it never
// trusts the payload's verdict, it only learns which booking to look at and
// runs a normal reconcile pass against the gateway. A forged or replayed
// callback can at worst cause one extra status query.
func (s *Server) HandleWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	if provider == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	if s.limiter != nil {
		result, err := s.limiter.AllowProvider(ctx, provider)
		if err != nil {
			s.log.Warn("webhook rate limit check failed", zap.String("provider", provider), zap.Error(err))
		} else if !result.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(result.RetryAfter.Seconds())+1))
			AbortWithError(c, ErrTooManyRequests)
			return
		}
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.verifyWebhookSignature(payload, c.Request.Header); err != nil {
		AbortWithError(c, err)
		return
	}

	hint, err := parseWebhookHint(payload)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	switch {
	case hint.BookingID != 0:
		if _, err := s.reconciler.Reconcile(ctx, hint.BookingID); err != nil {
			s.log.Warn("webhook-triggered reconcile failed",
				zap.String("provider", provider),
				zap.String("booking_id", hint.BookingID.String()),
				zap.Error(err),
			)
		}
	case hint.PackageToken != "":
		if _, err := s.reconciler.FixPackage(ctx, hint.PackageToken); err != nil {
			s.log.Warn("webhook-triggered package pass failed",
				zap.String("provider", provider),
				zap.String("package_token", hint.PackageToken),
				zap.Error(err),
			)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type webhookHint struct {
	BookingID    snowflake.ID
	PackageToken string
}

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

func parseWebhookHint(payload []byte) (webhookHint, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return webhookHint{}, paymentdomain.ErrInvalidPayload
	}

	hint := webhookHint{
		PackageToken: strings.TrimSpace(event.Data.Object.Metadata["package_token"]),
	}
	if raw := strings.TrimSpace(event.Data.Object.Metadata["booking_id"]); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return webhookHint{}, paymentdomain.ErrInvalidPayload
		}
		hint.BookingID = id
	}
	if hint.BookingID == 0 && hint.PackageToken == "" {
		return webhookHint{}, paymentdomain.ErrInvalidPayload
	}
	return hint, nil
}

func (s *Server) verifyWebhookSignature(payload []byte, headers http.Header) error {
	secret := s.cfg.Gateway.WebhookSecret
	if secret == "" {
		return paymentdomain.ErrInvalidSignature
	}

	sigHeader := strings.TrimSpace(headers.Get("Webhook-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, paymentdomain.ErrInvalidSignature
	}
	return timestamp, signatures, nil
}
