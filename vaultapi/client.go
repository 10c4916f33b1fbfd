// Package vaultapi is the HTTP client for the vault service and the
// session-authorization endpoint. It speaks the service's JSON envelope
// ({"success":bool,"data":...,"error":"..."}) with bearer-token auth.
package vaultapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client, mainly for tests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

func NewClient(baseURL, accessToken string, opts ...ClientOption) *Client {
	client := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(operation string, request *http.Request) string {
					return request.Method + " " + request.URL.Path
				})),
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// NewClientFromEnv builds a client from VOXVAULT_API_BASE and
// VOXVAULT_ACCESS_TOKEN.
func NewClientFromEnv(opts ...ClientOption) (*Client, error) {
	baseURL, ok := os.LookupEnv("VOXVAULT_API_BASE")
	if !ok {
		return nil, fmt.Errorf("VOXVAULT_API_BASE not set")
	}
	accessToken, ok := os.LookupEnv("VOXVAULT_ACCESS_TOKEN")
	if !ok {
		return nil, fmt.Errorf("VOXVAULT_ACCESS_TOKEN not set")
	}
	return NewClient(baseURL, accessToken, opts...), nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	ctx, span := tracer.Start(ctx, "vault api request")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.method", method),
		attribute.String("request.path", path),
	)

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			err = fmt.Errorf("failed to marshal request body: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		err = fmt.Errorf("failed to create request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("request failed: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("failed to read response body: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		err = fmt.Errorf("failed to unmarshal response envelope: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if !env.Success {
		message := env.Error
		if message == "" {
			message = resp.Status
		}
		err = fmt.Errorf("vault service error: %s", message)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			err = fmt.Errorf("failed to unmarshal response data: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}
	return nil
}
