package domain

import "errors"

var (
	ErrPaymentNotFound    = errors.New("payment_not_found")
	ErrProviderNotFound   = errors.New("provider_not_found")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrInvalidConfig      = errors.New("invalid_config")
)
