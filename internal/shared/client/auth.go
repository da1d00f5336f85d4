package client

import (
	"context"
	"net/http"
	"time"
)

// Identity is the user object returned by the user service's verify endpoint.
type Identity struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type AuthClient struct {
	base baseClient
}

func NewAuthClient(baseURL string, timeout time.Duration) *AuthClient {
	return &AuthClient{base: newBaseClient("user", baseURL, timeout)}
}

// Verify asks the user service whether token is valid.
func (c *AuthClient) Verify(ctx context.Context, token string) (*Identity, error) {
	var id Identity
	if err := c.base.do(WithToken(ctx, token), http.MethodPost, "/api/auth/verify", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}
