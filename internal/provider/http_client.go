package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/listsync/internal/models"
	"golang.org/x/time/rate"
)

// HTTPClient implements ListClient against the provider's REST API.
// Requests are authenticated with a per-owner bearer token and throttled by
// a client-side rate limiter so a burst of queue drains does not trip the
// provider's own limit.
type HTTPClient struct {
	baseURL  string
	client   *http.Client
	sessions SessionSource
	limiter  *rate.Limiter
}

// HTTPClientConfig holds configuration for the provider HTTP client.
type HTTPClientConfig struct {
	BaseURL           string
	Sessions          SessionSource
	RequestTimeout    time.Duration
	RequestsPerSecond float64
}

// NewHTTPClient creates a new provider HTTP client.
func NewHTTPClient(cfg *HTTPClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider base URL cannot be empty")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session source cannot be nil")
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}

	return &HTTPClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		sessions: cfg.Sessions,
		limiter:  rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}, nil
}

// listDTO is the provider's wire representation of a list.
type listDTO struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	OwnerID     string  `json:"owner_id"`
	Public      bool    `json:"public"`
	ItemCount   int     `json:"item_count"`
	Items       []int64 `json:"items,omitempty"`
	UpdatedAt   string  `json:"updated_at"`
}

// errorDTO is the provider's wire representation of a failure.
type errorDTO struct {
	StatusMessage string `json:"status_message"`
}

func (d *listDTO) toModel() *models.RemoteList {
	updatedAt, _ := time.Parse(time.RFC3339, d.UpdatedAt)
	return &models.RemoteList{
		ListID:      d.ID,
		Name:        d.Name,
		Description: d.Description,
		OwnerID:     d.OwnerID,
		IsPublic:    d.Public,
		ItemCount:   d.ItemCount,
		MovieIDs:    d.Items,
		UpdatedAt:   updatedAt,
	}
}

// CreateList creates a new remote list.
func (c *HTTPClient) CreateList(ctx context.Context, ownerID, name, description string, isPublic bool) (*models.RemoteList, error) {
	body := map[string]interface{}{
		"name":        name,
		"description": description,
		"public":      isPublic,
	}

	var dto listDTO
	if err := c.do(ctx, ownerID, http.MethodPost, "/lists", body, &dto); err != nil {
		return nil, err
	}

	return dto.toModel(), nil
}

// UpdateList updates list metadata. Nil fields are not sent.
func (c *HTTPClient) UpdateList(ctx context.Context, listID, ownerID string, fields ListFields) (*models.RemoteList, error) {
	body := map[string]interface{}{}
	if fields.Name != nil {
		body["name"] = *fields.Name
	}
	if fields.Description != nil {
		body["description"] = *fields.Description
	}
	if fields.IsPublic != nil {
		body["public"] = *fields.IsPublic
	}

	var dto listDTO
	if err := c.do(ctx, ownerID, http.MethodPatch, "/lists/"+listID, body, &dto); err != nil {
		return nil, err
	}

	return dto.toModel(), nil
}

// DeleteList deletes a remote list.
func (c *HTTPClient) DeleteList(ctx context.Context, listID, ownerID string) error {
	return c.do(ctx, ownerID, http.MethodDelete, "/lists/"+listID, nil, nil)
}

// ClearList removes all movies from a remote list.
func (c *HTTPClient) ClearList(ctx context.Context, listID, ownerID string) error {
	return c.do(ctx, ownerID, http.MethodPost, "/lists/"+listID+"/clear", nil, nil)
}

// AddMovie adds one movie to a remote list. Adding a movie that is already
// present returns a duplicate_movie error.
func (c *HTTPClient) AddMovie(ctx context.Context, listID, ownerID string, movieID int64) error {
	body := map[string]interface{}{"movie_id": movieID}
	return c.do(ctx, ownerID, http.MethodPost, "/lists/"+listID+"/items", body, nil)
}

// RemoveMovie removes one movie from a remote list.
func (c *HTTPClient) RemoveMovie(ctx context.Context, listID, ownerID string, movieID int64) error {
	return c.do(ctx, ownerID, http.MethodDelete, fmt.Sprintf("/lists/%s/items/%d", listID, movieID), nil, nil)
}

// FetchList retrieves a remote list with its metadata.
func (c *HTTPClient) FetchList(ctx context.Context, listID, ownerID string) (*models.RemoteList, error) {
	var dto listDTO
	if err := c.do(ctx, ownerID, http.MethodGet, "/lists/"+listID, nil, &dto); err != nil {
		return nil, err
	}
	return dto.toModel(), nil
}

// FetchListMovies retrieves the ordered movie ids of a remote list.
func (c *HTTPClient) FetchListMovies(ctx context.Context, listID, ownerID string) ([]int64, error) {
	var resp struct {
		Items []int64 `json:"items"`
	}
	if err := c.do(ctx, ownerID, http.MethodGet, "/lists/"+listID+"/items", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// do performs one authenticated request and maps the outcome to the
// provider error taxonomy.
func (c *HTTPClient) do(ctx context.Context, ownerID, method, path string, body interface{}, out interface{}) error {
	token, err := c.sessions.SessionToken(ctx, ownerID)
	if err != nil {
		// A missing or expired session is a credential problem. Anything
		// else, like the session store being unreachable, is an infra
		// failure the queue should retry.
		var perr *Error
		if errors.As(err, &perr) {
			return err
		}
		return NewTransientError(CodeNetwork, "session lookup failed", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return NewTransientError(CodeTimeout, "rate limiter wait cancelled", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return NewPermanentError(CodeValidation, "failed to encode request body", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return NewPermanentError(CodeValidation, "failed to build request", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewTransientError(CodeNetwork, "failed to read response body", err)
	}

	if resp.StatusCode >= 400 {
		return classifyStatusError(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return NewTransientError(CodeNetwork, "failed to decode response body", err)
		}
	}

	return nil
}

// classifyTransportError maps transport-level failures to the taxonomy.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransientError(CodeTimeout, "request timed out", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTransientError(CodeTimeout, "request timed out", err)
	}

	return NewTransientError(CodeNetwork, "request failed", err)
}

// classifyStatusError maps provider HTTP status codes to the taxonomy.
func classifyStatusError(status int, body []byte) error {
	var dto errorDTO
	_ = json.Unmarshal(body, &dto)
	message := dto.StatusMessage
	if message == "" {
		message = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized:
		return NewSessionExpiredError(message)
	case status == http.StatusForbidden:
		return NewPermanentError(CodeUnauthorized, message, nil)
	case status == http.StatusNotFound:
		return NewPermanentError(CodeNotFound, message, nil)
	case status == http.StatusConflict:
		return NewPermanentError(CodeDuplicateMovie, message, nil)
	case status == http.StatusRequestTimeout:
		return NewTransientError(CodeTimeout, message, nil)
	case status == http.StatusTooManyRequests:
		return NewTransientError(CodeRateLimited, message, nil)
	case status >= 500:
		return NewTransientError(CodeRemoteDown, message, nil)
	default:
		return NewPermanentError(CodeValidation, message, nil)
	}
}
