package vaultapi

import (
	"context"
	"fmt"
	"net/http"
)

// SignedSessionURL requests a signed, single-use websocket endpoint for one
// conversational-voice session. A missing field is an error: the caller must
// not open a transport without a usable endpoint.
func (c *Client) SignedSessionURL(ctx context.Context) (string, error) {
	var session struct {
		SignedURL string `json:"signed_url"`
	}
	if err := c.do(ctx, http.MethodGet, "/voice/elevenlabs-session", nil, &session); err != nil {
		return "", err
	}
	if session.SignedURL == "" {
		return "", fmt.Errorf("session response is missing signed_url")
	}
	return session.SignedURL, nil
}
