package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/lanepoint/realtime-gateway/internal/infrastructure/config"
)

// Identity is the verified principal behind a connection.
type Identity struct {
	UserID         string `json:"id"`
	Email          string `json:"email"`
	OrganizationID string `json:"organizationId"`
	Role           string `json:"role"`
}

// Verifier turns a bearer token into an Identity by asking the external
// authentication service. One call per connection attempt; there is no retry
// and no anonymous fallback. Any non-2xx response, malformed payload, timeout
// or transport failure is a rejection.
type Verifier struct {
	verifyURL string
	client    *http.Client
	logger    *zap.Logger
}

// RejectionError marks a verification failure the handshake must fail closed on.
type RejectionError struct {
	Reason string
	Cause  error
}

func (e *RejectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("token rejected: %s: %v", e.Reason, e.Cause)
	}
	return "token rejected: " + e.Reason
}

func (e *RejectionError) Unwrap() error { return e.Cause }

func NewVerifier(cfg *config.AuthConfig, logger *zap.Logger) *Verifier {
	return &Verifier{
		verifyURL: cfg.VerifyURL,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

// Verify performs the single verification round-trip. The client timeout
// bounds the call; expiry is treated as rejection, not as a retryable error.
func (v *Verifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, &RejectionError{Reason: "missing token"}
	}

	body, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return Identity{}, &RejectionError{Reason: "encoding request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, bytes.NewReader(body))
	if err != nil {
		return Identity{}, &RejectionError{Reason: "building request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Warn("auth service unreachable", zap.Error(err))
		return Identity{}, &RejectionError{Reason: "verifier unreachable", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Identity{}, &RejectionError{Reason: fmt.Sprintf("verifier returned %d", resp.StatusCode)}
	}

	var ident Identity
	if err := json.NewDecoder(resp.Body).Decode(&ident); err != nil {
		return Identity{}, &RejectionError{Reason: "malformed identity payload", Cause: err}
	}
	if ident.UserID == "" || ident.OrganizationID == "" {
		return Identity{}, &RejectionError{Reason: "incomplete identity payload"}
	}

	return ident, nil
}
