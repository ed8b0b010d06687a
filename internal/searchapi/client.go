// Package searchapi talks to the real-estate backend: the project search
// endpoint and the WhatsApp card delivery endpoints.
package searchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avaestate/ava-agent/internal/agent/model"
	errx "github.com/avaestate/ava-agent/internal/core/error"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

const (
	searchPath      = "/ia/search"
	projectCardPath = "/chatbot/whatsapp/project_card"
	unitCardPath    = "/chatbot/whatsapp/unit_card"
)

// Client implements model.SearchAPI and model.CardSender.
type Client struct {
	baseURL       string
	cardURL       string
	apiKey        string
	searchTimeout time.Duration
	cardTimeout   time.Duration
	httpClient    *http.Client
	tokens        *tokenSource
}

var (
	_ model.SearchAPI  = (*Client)(nil)
	_ model.CardSender = (*Client)(nil)
)

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithClock replaces time.Now for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.tokens.now = now
	}
}

// New builds a client. With an API key every request carries X-API-Key;
// otherwise the client logs in with the username and password.
func New(cfg model.SearchAPIConfig, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("search api url is required")
	}
	if cfg.APIKey == "" && (cfg.Username == "" || cfg.Password == "") {
		return nil, fmt.Errorf("search api needs API_KEY or MAIN_BACKEND_API_USERNAME and MAIN_BACKEND_API_PASSWORD")
	}

	base := strings.TrimRight(cfg.URL, "/")
	cardURL := strings.TrimRight(cfg.CardURL, "/")
	if cardURL == "" {
		cardURL = base
	}
	searchTimeout := orDefault(cfg.SearchTimeout, 15*time.Second)

	c := &Client{
		baseURL:       base,
		cardURL:       cardURL,
		apiKey:        cfg.APIKey,
		searchTimeout: searchTimeout,
		cardTimeout:   orDefault(cfg.CardTimeout, 10*time.Second),
		httpClient:    &http.Client{},
	}
	c.tokens = &tokenSource{
		loginURL:  base + loginPath,
		username:  cfg.Username,
		password:  cfg.Password,
		threshold: time.Duration(cfg.RefreshThreshold) * time.Second,
		timeout:   searchTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tokens.httpClient = c.httpClient
	return c, nil
}

// Search posts the query to the search endpoint. The raw answer is kept on
// the result.
func (c *Client) Search(ctx context.Context, q model.SearchQuery) (*model.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.searchTimeout)
	defer cancel()

	raw, err := c.postAuthorized(ctx, searchPath, q)
	if err != nil {
		return nil, err
	}

	var res model.SearchResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, errx.WrapUpstream(fmt.Errorf("decode search response: %w", err))
	}
	res.Raw = raw
	logx.Debug().
		Str("query", q.Label()).
		Int("projects", len(res.ProjectIDs())).
		Msg("search api answered")
	return &res, nil
}

type cardRequest struct {
	To        string `json:"to"`
	ProjectID *int   `json:"projectId,omitempty"`
	UnitID    string `json:"unitId,omitempty"`
}

func (c *Client) SendProjectCard(ctx context.Context, projectID int, threadID string) (*model.CardResult, error) {
	return c.sendCard(ctx, projectCardPath, cardRequest{To: "+" + threadID, ProjectID: &projectID})
}

func (c *Client) SendUnitCard(ctx context.Context, unitID, threadID string) (*model.CardResult, error) {
	return c.sendCard(ctx, unitCardPath, cardRequest{To: "+" + threadID, UnitID: unitID})
}

func (c *Client) sendCard(ctx context.Context, path string, body cardRequest) (*model.CardResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cardTimeout)
	defer cancel()

	raw, status, err := c.post(ctx, c.cardURL+path, body, nil)
	if err != nil {
		return nil, err
	}
	if !success(status) {
		return nil, errx.WrapUpstream(&errx.UpstreamError{Endpoint: path, StatusCode: status, Body: snippet(raw)})
	}

	// the card service may answer with an empty body
	res := model.CardResult{Success: true, Message: http.StatusText(status)}
	if len(bytes.TrimSpace(raw)) > 0 {
		var decoded model.CardResult
		if err := json.Unmarshal(raw, &decoded); err == nil {
			res = decoded
		}
	}
	logx.Info().Str("to", body.To).Str("endpoint", path).Bool("success", res.Success).Msg("card sent")
	return &res, nil
}

// postAuthorized sends body with the configured credentials. A 401 answer to
// a bearer request renews the token and retries once.
func (c *Client) postAuthorized(ctx context.Context, path string, body any) ([]byte, error) {
	url := c.baseURL + path
	for attempt := 0; ; attempt++ {
		header, err := c.authHeader(ctx)
		if err != nil {
			return nil, err
		}
		raw, status, err := c.post(ctx, url, body, header)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized && c.apiKey == "" && attempt == 0 {
			logx.Warn().Str("endpoint", path).Msg("search api rejected token, renewing")
			c.tokens.Invalidate()
			continue
		}
		if !success(status) {
			return nil, errx.WrapUpstream(&errx.UpstreamError{Endpoint: path, StatusCode: status, Body: snippet(raw)})
		}
		return raw, nil
	}
}

func (c *Client) authHeader(ctx context.Context) (http.Header, error) {
	h := http.Header{}
	if c.apiKey != "" {
		h.Set("X-API-Key", c.apiKey)
		return h, nil
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	h.Set("Authorization", "Bearer "+tok)
	return h, nil
}

func (c *Client) post(ctx context.Context, url string, body any, header http.Header) ([]byte, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, errx.WrapUpstream(fmt.Errorf("post %s: %w", url, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, errx.WrapUpstream(fmt.Errorf("read response: %w", err))
	}
	return raw, resp.StatusCode, nil
}

func success(status int) bool {
	return status >= 200 && status < 300
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func snippet(b []byte) string {
	const limit = 300
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
