package searchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	errx "github.com/avaestate/ava-agent/internal/core/error"
	logx "github.com/avaestate/ava-agent/pkg/logger"
)

const loginPath = "/v2/auth/login-password"

type loginRequest struct {
	PreferredUsername string `json:"preferredUsername"`
	Password          string `json:"password"`
}

type loginResponse struct {
	AuthenticationResult struct {
		AccessToken string `json:"AccessToken"`
		ExpiresIn   int    `json:"ExpiresIn"`
		TokenType   string `json:"TokenType"`
	} `json:"AuthenticationResult"`
}

// tokenSource caches the backend bearer token and renews it when fewer than
// threshold remain. Concurrent renewals share one login call.
type tokenSource struct {
	httpClient *http.Client
	loginURL   string
	username   string
	password   string
	threshold  time.Duration
	timeout    time.Duration
	now        func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
	group   singleflight.Group
}

// Token returns a valid bearer token, logging in when needed.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	if tok, ok := ts.cached(); ok {
		return tok, nil
	}

	// the login serves every waiting caller, so one caller's cancellation
	// must not abort it; login applies its own timeout
	loginCtx := context.WithoutCancel(ctx)
	ch := ts.group.DoChan("login", func() (any, error) {
		// a login that finished while this caller was waiting is good enough
		if tok, ok := ts.cached(); ok {
			return tok, nil
		}
		return ts.login(loginCtx)
	})
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("wait for login: %w", ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		if r.Shared {
			logx.Debug().Msg("search api login shared with a concurrent caller")
		}
		return r.Val.(string), nil
	}
}

func (ts *tokenSource) cached() (string, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token != "" && ts.now().Add(ts.threshold).Before(ts.expires) {
		return ts.token, true
	}
	return "", false
}

// Invalidate drops the cached token so the next call logs in again.
func (ts *tokenSource) Invalidate() {
	ts.mu.Lock()
	ts.token = ""
	ts.expires = time.Time{}
	ts.mu.Unlock()
}

func (ts *tokenSource) login(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ts.timeout)
	defer cancel()

	body, err := json.Marshal(loginRequest{PreferredUsername: ts.username, Password: ts.password})
	if err != nil {
		return "", fmt.Errorf("marshal login: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.loginURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", errx.WrapUpstream(fmt.Errorf("login: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errx.WrapUpstream(fmt.Errorf("read login response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errx.WrapUpstream(&errx.UpstreamError{Endpoint: loginPath, StatusCode: resp.StatusCode, Body: snippet(raw)})
	}

	var out loginResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", errx.WrapUpstream(fmt.Errorf("decode login response: %w", err))
	}
	if out.AuthenticationResult.AccessToken == "" {
		return "", errx.WrapUpstream(fmt.Errorf("login response has no access token"))
	}

	ttl := time.Duration(out.AuthenticationResult.ExpiresIn) * time.Second
	ts.mu.Lock()
	ts.token = out.AuthenticationResult.AccessToken
	ts.expires = ts.now().Add(ttl)
	ts.mu.Unlock()

	logx.Info().Dur("expires_in", ttl).Msg("search api token renewed")
	return out.AuthenticationResult.AccessToken, nil
}
