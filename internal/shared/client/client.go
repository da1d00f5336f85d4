// Package client holds the resty-backed clients services use to call each
// other. Every client speaks the shared response envelope and maps remote
// error codes back onto apperr sentinels.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/shared/apperr"
	"github.com/bitfantasy/nimo-mes/internal/shared/response"
	"github.com/go-resty/resty/v2"
)

type ctxKey int

const (
	tokenKey ctxKey = iota
	requestIDKey
)

// WithToken stores the caller's bearer token so downstream calls made with
// ctx forward it.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

func TokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tokenKey).(string); ok {
		return v
	}
	return ""
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func requestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type baseClient struct {
	name string
	http *resty.Client
}

func newBaseClient(name, baseURL string, timeout time.Duration) baseClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	return baseClient{name: name, http: rc}
}

// do executes one request and decodes the envelope's data into out.
func (b baseClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	env := new(envelope)
	req := b.http.R().
		SetContext(ctx).
		SetResult(env).
		SetError(env)
	if token := TokenFromContext(ctx); token != "" {
		req.SetAuthToken(token)
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		req.SetHeader("X-Request-ID", rid)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return apperr.Upstream(b.name, err)
	}

	if resp.IsError() || !env.Success {
		if env.Code == 0 {
			return apperr.Upstream(b.name, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode()))
		}
		return response.ErrorForCode(env.Code, env.Message)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return apperr.Upstream(b.name, fmt.Errorf("decode %s %s: %w", method, path, err))
		}
	}
	return nil
}
