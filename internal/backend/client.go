// Package backend is the REST and event-stream client for the CTEM backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/triagewatch/internal/domain/activity"
	"github.com/rpggio/triagewatch/internal/domain/finding"
	"github.com/rpggio/triagewatch/internal/domain/triage"
	"github.com/rpggio/triagewatch/internal/repository"
)

// Config configures a Client.
type Config struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("backend: unexpected status %d: %s", e.Code, e.Body)
}

// Unwrap maps well-known statuses to repository errors.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return repository.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return repository.ErrUnauthorized
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return repository.ErrInvalidInput
	default:
		return nil
	}
}

// Client talks to the backend over HTTP.
type Client struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	streamClient  *http.Client
	retryAttempts int
	retryDelay    time.Duration
	log           *slog.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend: base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("backend: parse base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		token:         cfg.Token,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		streamClient:  &http.Client{},
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		log:           logger.With("adapter", "backend"),
	}, nil
}

// ListActivities fetches one page of raw activities for a finding.
func (c *Client) ListActivities(ctx context.Context, findingID string, opts activity.ListActivityOptions) (*activity.RawPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(opts.Page))
	query.Set("page_size", strconv.Itoa(opts.PageSize))

	var page activity.RawPage
	if err := c.getJSON(ctx, c.findingPath(findingID, "activities")+"?"+query.Encode(), &page); err != nil {
		return nil, err
	}
	for i := range page.Items {
		if page.Items[i].FindingID == "" {
			page.Items[i].FindingID = findingID
		}
	}
	return &page, nil
}

// PostComment creates a comment activity. Comments are not retried.
func (c *Client) PostComment(ctx context.Context, findingID, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("backend: encode comment: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.findingPath(findingID, "comments"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.ErrorContext(ctx, "backend comment failed", slog.String("finding_id", findingID), slog.String("error", err.Error()))
		return fmt.Errorf("backend: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// GetFinding fetches a finding's detail.
func (c *Client) GetFinding(ctx context.Context, id string) (*finding.Finding, error) {
	var f finding.Finding
	if err := c.getJSON(ctx, c.findingPath(id, ""), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// GetTriage fetches a finding's latest triage result.
func (c *Client) GetTriage(ctx context.Context, findingID string) (*triage.Result, error) {
	var res triage.Result
	if err := c.getJSON(ctx, c.findingPath(findingID, "triage"), &res); err != nil {
		return nil, err
	}
	if res.FindingID == "" {
		res.FindingID = findingID
	}
	return &res, nil
}

// OpenStream opens the finding's server-sent event stream. The caller closes
// the returned body; cancelling ctx also ends the stream.
func (c *Client) OpenStream(ctx context.Context, findingID string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.findingPath(findingID, "stream"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	c.log.DebugContext(ctx, "backend request", slog.String("path", path))

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, path, nil)
	})
	if err != nil {
		c.log.ErrorContext(ctx, "backend request failed", slog.String("path", path), slog.String("error", err.Error()))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend: read body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("backend: decode json: %w", err)
	}
	return nil
}

// doWithRetry executes the request, retrying on 5xx or network errors. 4xx
// responses are returned as-is.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		req, err := build()
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}

		if err != nil {
			lastErr = fmt.Errorf("backend: request failed: %w", err)
		} else {
			lastErr = statusError(resp)
			resp.Body.Close()
		}

		// Don't retry if context is already cancelled.
		if ctx.Err() != nil {
			return nil, lastErr
		}

		c.log.WarnContext(ctx, "backend retry",
			slog.String("path", req.URL.Path),
			slog.Int("attempt", attempt+1),
			slog.String("reason", lastErr.Error()),
		)
	}
	return nil, lastErr
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("backend: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) findingPath(findingID, suffix string) string {
	p := "/findings/" + url.PathEscape(findingID)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
