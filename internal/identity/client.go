package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/subtrackhq/subtrack/internal/apperrors"
	"github.com/subtrackhq/subtrack/internal/logger"
)

const requestTimeout = 5 * time.Second

// Provider error codes we branch on. Everything else is surfaced as a
// generic apperrors.ErrIdentityUnavailable so provider internals never
// leak to clients.
const (
	codeEmailExists      = "EMAIL_EXISTS"
	codeEmailNotFound    = "EMAIL_NOT_FOUND"
	codeInvalidPassword  = "INVALID_PASSWORD"
	codeInvalidLoginCred = "INVALID_LOGIN_CREDENTIALS"
	codeInvalidIDToken   = "INVALID_ID_TOKEN"
	codeUserNotFound     = "USER_NOT_FOUND"
)

type Client struct {
	// Provider base URL, e.g. https://identitytoolkit.googleapis.com
	BaseURL string

	apiKey string
	client *http.Client
	logger logger.Logger
}

func NewClient(baseURL string, apiKey string, l logger.Logger) *Client {
	if l == nil {
		l = logger.NewNoOp()
	}

	return &Client{
		BaseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{},
		logger:  l,
	}
}

func (c *Client) VerifyPassword(ctx context.Context, email string, password string) (string, error) {
	payload := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}

	var result struct {
		LocalID string `json:"localId"`
	}

	err := c.post(ctx, "accounts:signInWithPassword", payload, &result)
	if err != nil {
		switch code(err) {
		case codeEmailNotFound, codeInvalidPassword, codeInvalidLoginCred:
			return "", apperrors.ErrInvalidCredentials
		default:
			return "", err
		}
	}

	return result.LocalID, nil
}

func (c *Client) VerifyIDToken(ctx context.Context, idToken string) (UserRecord, error) {
	payload := map[string]any{"idToken": idToken}

	var result struct {
		Users []userPayload `json:"users"`
	}

	err := c.post(ctx, "accounts:lookup", payload, &result)
	switch {
	case err != nil && code(err) == codeInvalidIDToken:
		return UserRecord{}, apperrors.ErrTokenMalformed
	case err != nil:
		return UserRecord{}, err
	case len(result.Users) == 0:
		return UserRecord{}, apperrors.ErrTokenMalformed
	}

	return result.Users[0].record(), nil
}

func (c *Client) CreateUser(ctx context.Context, email string, password string) (string, error) {
	payload := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}

	var result struct {
		LocalID string `json:"localId"`
	}

	err := c.post(ctx, "accounts:signUp", payload, &result)
	if err != nil {
		if code(err) == codeEmailExists {
			return "", apperrors.ErrEmailAlreadyExists
		}
		return "", err
	}

	return result.LocalID, nil
}

func (c *Client) GetUser(ctx context.Context, uid string) (UserRecord, error) {
	payload := map[string]any{"localId": []string{uid}}

	var result struct {
		Users []userPayload `json:"users"`
	}

	err := c.post(ctx, "accounts:lookup", payload, &result)
	switch {
	case err != nil && code(err) == codeUserNotFound:
		return UserRecord{}, apperrors.ErrUserNotFound
	case err != nil:
		return UserRecord{}, err
	case len(result.Users) == 0:
		return UserRecord{}, apperrors.ErrUserNotFound
	}

	return result.Users[0].record(), nil
}

func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	payload := map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}

	err := c.post(ctx, "accounts:sendOobCode", payload, nil)
	if err != nil && code(err) == codeEmailNotFound {
		// Unknown emails are indistinguishable from known ones for the caller
		c.logger.Debug("password reset requested for unknown email")
		return nil
	}

	return err
}

func (c *Client) SendEmailVerification(ctx context.Context, email string) error {
	payload := map[string]any{
		"requestType": "VERIFY_EMAIL",
		"email":       email,
	}

	return c.post(ctx, "accounts:sendOobCode", payload, nil)
}

// providerError keeps the provider's error code for branching.
// Unwraps to ErrIdentityUnavailable so unmatched codes surface generically.
type providerError struct {
	Code string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("identity provider error: %s", e.Code)
}

func (e *providerError) Unwrap() error {
	return apperrors.ErrIdentityUnavailable
}

func code(err error) string {
	var pe *providerError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// post sends a provider request and decodes the response into out (if not nil)
func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/%s?key=%s", c.BaseURL, endpoint, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("identity provider request failed", "endpoint", endpoint, "error", err)
		return fmt.Errorf("identity request failed: %w", apperrors.ErrIdentityUnavailable)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Message == "" {
			c.logger.Warn("identity provider returned unexpected status", "endpoint", endpoint, "status_code", resp.StatusCode)
			return fmt.Errorf("identity request failed with status %d: %w", resp.StatusCode, apperrors.ErrIdentityUnavailable)
		}
		return &providerError{Code: errResp.Error.Message}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Warn("failed to decode identity provider response", "endpoint", endpoint, "error", err)
		return fmt.Errorf("identity response decode failed: %w", apperrors.ErrIdentityUnavailable)
	}

	return nil
}

type userPayload struct {
	LocalID       string `json:"localId"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	PhotoURL      string `json:"photoUrl"`
	EmailVerified bool   `json:"emailVerified"`
}

func (u userPayload) record() UserRecord {
	return UserRecord{
		UID:           u.LocalID,
		Email:         u.Email,
		Name:          u.DisplayName,
		PhotoURL:      u.PhotoURL,
		EmailVerified: u.EmailVerified,
	}
}
