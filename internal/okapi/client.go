// Package okapi is an HTTP client for the record store and the policy engine that
// hold a patron's manual and automated blocks.
package okapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/libraryops/patron-blocks/internal/blocks"
	"github.com/libraryops/patron-blocks/internal/models"
	"github.com/libraryops/patron-blocks/pkg/logger"
)

var (
	// ErrNotFound is returned when the remote record does not exist.
	ErrNotFound = errors.New("remote record not found")

	// ErrUnexpectedStatus is returned for any other non-success response.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

const (
	headerTenant = "X-Okapi-Tenant"
	headerToken  = "X-Okapi-Token"

	maxErrorBody = 4 << 10
)

// HTTPClient defines the interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Resources names the remote paths the client talks to, relative to the base URL.
type Resources struct {
	ManualBlocks string
	// ActiveRecord is a fmt template taking the patron id.
	ActiveRecord string
	Automated    string
}

// DefaultResources returns the stock resource paths.
func DefaultResources() Resources {
	return Resources{
		ManualBlocks: "manualblocks",
		ActiveRecord: "patrons/%s/active-record",
		Automated:    "automated-patron-blocks",
	}
}

// Config configures a Client.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	BaseURL     string
	Tenant      string
	Token       string
	Timeout     time.Duration
	Resources   Resources
	ManualLimit int
	HTTPClient  HTTPClient
}

// Client reads and writes patron blocks over HTTP.
type Client struct {
	base        *url.URL
	tenant      string
	token       string
	resources   Resources
	manualLimit int
	http        HTTPClient
}

// NewClient creates a Client.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("parse base url: %q is not absolute", cfg.BaseURL)
	}

	res := cfg.Resources
	def := DefaultResources()
	if res.ManualBlocks == "" {
		res.ManualBlocks = def.ManualBlocks
	}
	if res.ActiveRecord == "" {
		res.ActiveRecord = def.ActiveRecord
	}
	if res.Automated == "" {
		res.Automated = def.Automated
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	limit := cfg.ManualLimit
	if limit <= 0 {
		limit = 1000
	}

	return &Client{
		base:        base,
		tenant:      cfg.Tenant,
		token:       cfg.Token,
		resources:   res,
		manualLimit: limit,
		http:        client,
	}, nil
}

// ListManualBlocks returns the patron's manual blocks.
func (c *Client) ListManualBlocks(ctx context.Context, patronID string) ([]models.ManualBlock, error) {
	q := url.Values{}
	q.Set("query", "userId=="+patronID)
	q.Set("limit", strconv.Itoa(c.manualLimit))

	var out models.ManualBlockCollection
	if err := c.do(ctx, http.MethodGet, c.resources.ManualBlocks, q, nil, &out); err != nil {
		return nil, fmt.Errorf("list manual blocks: %w", err)
	}
	return out.ManualBlocks, nil
}

// ListAutomatedBlocks returns at most limit automated blocks for the patron.
func (c *Client) ListAutomatedBlocks(ctx context.Context, patronID string, limit int) ([]models.AutomatedBlock, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var out models.AutomatedBlockCollection
	path := c.resources.Automated + "/" + url.PathEscape(patronID)
	if err := c.do(ctx, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, fmt.Errorf("list automated blocks: %w", err)
	}
	return out.AutomatedPatronBlocks, nil
}

// SetActiveRecord points the patron's active record at blockID.
func (c *Client) SetActiveRecord(ctx context.Context, patronID, blockID string) error {
	path := fmt.Sprintf(c.resources.ActiveRecord, url.PathEscape(patronID))
	if err := c.do(ctx, http.MethodPut, path, nil, models.ActiveRecord{BlockID: blockID}, nil); err != nil {
		return fmt.Errorf("set active record: %w", err)
	}
	return nil
}

// DeleteManualBlock deletes the manual block with id.
func (c *Client) DeleteManualBlock(ctx context.Context, id string) error {
	path := c.resources.ManualBlocks + "/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("delete manual block %s: %w: %w", id, err, blocks.ErrGone)
		}
		return fmt.Errorf("delete manual block %s: %w", id, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("parse path: %w", err)
	}
	u := c.base.ResolveReference(ref)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tenant != "" {
		req.Header.Set(headerTenant, c.tenant)
	}
	if c.token != "" {
		req.Header.Set(headerToken, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logger.Log.Warn("Record store returned an error",
			zap.String("method", method),
			zap.String("url", u.String()),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(msg)),
		)
		return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
