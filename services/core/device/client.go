// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package device is the outbound client for the OpenShock-compatible device
// API. All control traffic funnels through one Client so the process-wide
// rate limit, in-flight cap, and bounded wait queue hold no matter how many
// components dispatch actions.
//
// # Capacity Model
//
// Three layers guard the upstream:
//
//  1. A bounded wait queue (semaphore, TryAcquire). A full queue fails the
//     request immediately with a rate_limited rejection instead of letting
//     callers pile up.
//  2. A token bucket (golang.org/x/time/rate) pacing sustained throughput.
//  3. An in-flight cap (golang.org/x/sync/semaphore) bounding concurrent
//     upstream connections.
//
// Tokens arrive in memguard locked buffers and are copied into the request
// header only; the client never retains or logs token material.
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/voltcord/voltcord/pkg/logging"
	"github.com/voltcord/voltcord/services/core/domain"
	"github.com/voltcord/voltcord/services/core/observability"
)

// API paths. Control uses the v2 endpoint; shocker listing is only available
// on v1.
const (
	controlPath     = "/2/shockers/control"
	ownShockersPath = "/1/shockers/own"
	tokenHeader     = "OpenShockToken"
)

// Config configures the Client.
type Config struct {
	// BaseURL is the default API endpoint, overridden per command when the
	// principal runs a self-hosted instance.
	BaseURL string

	// RequestTimeout bounds one HTTP attempt.
	RequestTimeout time.Duration

	// RatePerSecond and Burst configure the shared token bucket.
	RatePerSecond float64
	Burst         int

	// MaxInFlight caps concurrent upstream requests.
	MaxInFlight int64

	// MaxQueued caps requests waiting for capacity. Beyond it, Send fails
	// fast with a rate_limited rejection.
	MaxQueued int64

	// MaxRetries is the retry count for transient failures (5xx, network
	// errors). Client errors are never retried.
	MaxRetries int
}

// Command is one control request.
type Command struct {
	// BaseURL overrides the client default when non-empty.
	BaseURL string

	// Token is the target principal's device API token. Borrowed for the
	// duration of the call; the caller destroys it.
	Token *memguard.LockedBuffer

	Params domain.ActionParams

	// Name is shown by the device app as the command origin.
	Name string
}

// RemoteShocker is one shocker reported by the device API.
type RemoteShocker struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsPaused bool   `json:"isPaused"`
}

// Client sends rate-limited control commands to the device API.
//
// Thread Safety: Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	cfg        Config
	limiter    *rate.Limiter
	inFlight   *semaphore.Weighted
	queue      *semaphore.Weighted
	metrics    *observability.Metrics
	logger     *logging.Logger
}

// NewClient creates a device client. Metrics and logger may be nil.
func NewClient(cfg Config, metrics *observability.Metrics, logger *logging.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if cfg.RatePerSecond <= 0 || cfg.Burst <= 0 {
		return nil, errors.New("rate and burst must be positive")
	}
	if cfg.MaxInFlight <= 0 {
		return nil, errors.New("max in-flight must be positive")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	if metrics == nil {
		metrics = observability.NewTestMetrics()
	}

	queueCap := cfg.MaxQueued
	if queueCap <= 0 {
		queueCap = cfg.MaxInFlight
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		inFlight:   semaphore.NewWeighted(cfg.MaxInFlight),
		queue:      semaphore.NewWeighted(queueCap),
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// controlBody is the v2 control request payload.
type controlBody struct {
	Shocks     []controlShock `json:"shocks"`
	CustomName string         `json:"customName,omitempty"`
}

type controlShock struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Intensity int    `json:"intensity"`
	Duration  int    `json:"duration"`
	Exclusive bool   `json:"exclusive"`
}

// Send issues one control command. Failures come back as domain rejections:
// rate_limited when no capacity is available, downstream_timeout when the
// deadline hits, downstream_error for upstream failures.
func (c *Client) Send(ctx context.Context, cmd Command) error {
	if cmd.Token == nil {
		return domain.NewRejection(domain.RejectDownstreamError, "no device token available")
	}

	// Fail fast when the wait queue is full.
	if !c.queue.TryAcquire(1) {
		c.metrics.DeviceQueueDrops.Inc()
		c.metrics.DeviceCallsTotal.WithLabelValues(string(cmd.Params.Type), "rate_limited").Inc()
		return domain.NewRejection(domain.RejectRateLimited, "device client queue is full")
	}
	defer c.queue.Release(1)

	if err := c.limiter.Wait(ctx); err != nil {
		c.metrics.DeviceCallsTotal.WithLabelValues(string(cmd.Params.Type), "timeout").Inc()
		return domain.WrapRejection(domain.RejectDownstreamTimeout, "timed out waiting for rate capacity", err)
	}

	if err := c.inFlight.Acquire(ctx, 1); err != nil {
		c.metrics.DeviceCallsTotal.WithLabelValues(string(cmd.Params.Type), "timeout").Inc()
		return domain.WrapRejection(domain.RejectDownstreamTimeout, "timed out waiting for in-flight slot", err)
	}
	defer c.inFlight.Release(1)

	body := controlBody{
		Shocks: []controlShock{{
			ID:        cmd.Params.ShockerID,
			Type:      string(cmd.Params.Type),
			Intensity: cmd.Params.Intensity,
			Duration:  cmd.Params.DurationMs,
			Exclusive: true,
		}},
		CustomName: cmd.Name,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode control body: %w", err)
	}

	start := time.Now()
	err = c.doWithRetry(ctx, http.MethodPost, c.url(cmd.BaseURL, controlPath), cmd.Token, payload, nil)
	c.metrics.DeviceCallSeconds.WithLabelValues(string(cmd.Params.Type)).Observe(time.Since(start).Seconds())

	status := "success"
	if err != nil {
		status = "error"
		if domain.RejectionIs(err, domain.RejectDownstreamTimeout) {
			status = "timeout"
		}
	}
	c.metrics.DeviceCallsTotal.WithLabelValues(string(cmd.Params.Type), status).Inc()
	return err
}

// ListOwnShockers fetches the shockers owned by the token's account,
// flattening the v1 device-grouped response. Used to validate a token at
// registration and to sync shocker references.
func (c *Client) ListOwnShockers(ctx context.Context, baseURL string, token *memguard.LockedBuffer) ([]RemoteShocker, error) {
	if token == nil {
		return nil, domain.NewRejection(domain.RejectDownstreamError, "no device token available")
	}

	// v1 nests shockers under their hub devices.
	var response struct {
		Data []struct {
			Shockers []RemoteShocker `json:"shockers"`
		} `json:"data"`
	}

	err := c.doWithRetry(ctx, http.MethodGet, c.url(baseURL, ownShockersPath), token, nil, &response)
	if err != nil {
		return nil, err
	}

	var out []RemoteShocker
	for _, device := range response.Data {
		out = append(out, device.Shockers...)
	}
	return out, nil
}

// ValidateToken reports whether the token is accepted by the device API.
func (c *Client) ValidateToken(ctx context.Context, baseURL string, token *memguard.LockedBuffer) error {
	_, err := c.ListOwnShockers(ctx, baseURL, token)
	return err
}

func (c *Client) url(override, path string) string {
	base := c.cfg.BaseURL
	if override != "" {
		base = override
	}
	return strings.TrimRight(base, "/") + path
}

// retryBaseDelay is the backoff before the first retry. Each further retry
// doubles it.
const retryBaseDelay = 500 * time.Millisecond

// doWithRetry performs the HTTP call with exponential backoff on transient
// failures. Responses are decoded into out when non-nil.
func (c *Client) doWithRetry(ctx context.Context, method, url string, token *memguard.LockedBuffer, payload []byte, out any) error {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := retryBaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return domain.WrapRejection(domain.RejectDownstreamTimeout, "cancelled during retry backoff", ctx.Err())
			case <-time.After(backoff):
			}
		}

		retryable, err := c.do(ctx, method, url, token, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
		c.logger.Warn("device API call failed, retrying",
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"error", err.Error())
	}
	return lastErr
}

// do performs one HTTP attempt. The bool result reports whether the failure
// is retryable.
func (c *Client) do(ctx context.Context, method, url string, token *memguard.LockedBuffer, payload []byte, out any) (bool, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(tokenHeader, token.String())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "voltcord")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// The caller's context is gone, so another attempt cannot help.
			return false, domain.WrapRejection(domain.RejectDownstreamTimeout, "request cancelled", ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			// Per-attempt timeout from httpClient.Timeout. The next attempt
			// gets a fresh window.
			return true, domain.WrapRejection(domain.RejectDownstreamTimeout, "device API timed out", err)
		}
		// Network errors are retryable.
		return true, domain.WrapRejection(domain.RejectDownstreamError, "device API unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return false, domain.WrapRejection(domain.RejectDownstreamError, "decode device API response", err)
			}
		}
		return false, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, domain.NewRejection(domain.RejectDownstreamError,
			fmt.Sprintf("device API rejected token (status %d)", resp.StatusCode))

	case resp.StatusCode == http.StatusTooManyRequests:
		return true, domain.NewRejection(domain.RejectRateLimited, "device API rate limit exceeded")

	case resp.StatusCode >= 500:
		return true, domain.NewRejection(domain.RejectDownstreamError,
			fmt.Sprintf("device API error (status %d)", resp.StatusCode))

	default:
		detail := readErrorDetail(resp.Body)
		return false, domain.NewRejection(domain.RejectDownstreamError,
			fmt.Sprintf("device API error (status %d): %s", resp.StatusCode, detail))
	}
}

// readErrorDetail extracts a short message from an error response body.
func readErrorDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(data) == 0 {
		return "no detail"
	}

	var parsed struct {
		Message string `json:"message"`
		Title   string `json:"title"`
	}
	if json.Unmarshal(data, &parsed) == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Title != "" {
			return parsed.Title
		}
	}
	return strings.TrimSpace(string(data))
}
