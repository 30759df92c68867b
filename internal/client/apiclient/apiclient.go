// Package apiclient implements the session auth and search providers
// over the server's REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/watchtogether/server/internal/session"
)

var codeToErr = map[string]error{
	"invalid_email":      session.ErrInvalidEmail,
	"weak_password":      session.ErrWeakPassword,
	"wrong_password":     session.ErrWrongPassword,
	"user_not_found":     session.ErrUserNotFound,
	"email_in_use":       session.ErrEmailInUse,
	"rate_limited":       session.ErrRateLimited,
	"invalid_credential": session.ErrInvalidCredential,
}

type Client struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	token     string
	identity  *session.Identity
	observers []func(identity *session.Identity)
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Token returns the current bearer credential, empty when signed out.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.token
}

// ObserveAuthState registers fn and fires it immediately with the
// current state, then again on every sign-in/out transition.
func (c *Client) ObserveAuthState(fn func(identity *session.Identity)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	identity := c.identity
	c.mu.Unlock()

	fn(identity)
}

func (c *Client) notifyObservers() {
	c.mu.Lock()
	observers := append(([]func(*session.Identity))(nil), c.observers...)
	identity := c.identity
	c.mu.Unlock()

	for _, fn := range observers {
		fn(identity)
	}
}

type apiUser struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	PhotoURL string `json:"photo_url"`
}

type authData struct {
	Token string  `json:"token"`
	User  apiUser `json:"user"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeError(body []byte) error {
	var envelope struct {
		Error errorBody `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
		if mapped, ok := codeToErr[envelope.Error.Code]; ok {
			return mapped
		}
		return fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
	}

	return fmt.Errorf("unexpected response: %s", body)
}

func (c *Client) post(ctx context.Context, path, token string, body, data any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var raw bytes.Buffer
	if _, err := raw.ReadFrom(resp.Body); err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return decodeError(raw.Bytes())
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw.Bytes(), &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, data); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}

	return nil
}

func (c *Client) setAuthed(data authData) session.Identity {
	identity := session.Identity{
		Id:       data.User.Id,
		Name:     data.User.Name,
		PhotoURL: data.User.PhotoURL,
	}

	c.mu.Lock()
	c.token = data.Token
	c.identity = &identity
	c.mu.Unlock()

	c.notifyObservers()

	return identity
}

func (c *Client) SignIn(ctx context.Context, email, password string) (session.Identity, error) {
	var data authData
	if err := c.post(ctx, "/api/auth/sign-in", "", map[string]string{
		"email":    email,
		"password": password,
	}, &data); err != nil {
		return session.Identity{}, err
	}

	return c.setAuthed(data), nil
}

// SignUp derives the initial display name from the email local part,
// the way the account screen presents it before the first profile edit.
func (c *Client) SignUp(ctx context.Context, email, password string) (session.Identity, error) {
	name := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		name = email[:at]
	}

	var data authData
	if err := c.post(ctx, "/api/auth/sign-up", "", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, &data); err != nil {
		return session.Identity{}, err
	}

	return c.setAuthed(data), nil
}

func (c *Client) UpdateProfile(ctx context.Context, displayName string) error {
	token := c.Token()
	if token == "" {
		return session.ErrInvalidCredential
	}

	var user apiUser
	if err := c.post(ctx, "/api/auth/profile", token, map[string]string{
		"display_name": displayName,
	}, &user); err != nil {
		return err
	}

	c.mu.Lock()
	if c.identity != nil {
		c.identity = &session.Identity{
			Id:       user.Id,
			Name:     user.Name,
			PhotoURL: user.PhotoURL,
		}
	}
	c.mu.Unlock()

	c.notifyObservers()

	return nil
}

// SignOut drops the credential locally. Tokens are stateless, the
// server keeps nothing to invalidate.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	c.token = ""
	c.identity = nil
	c.mu.Unlock()

	c.notifyObservers()

	return nil
}

func (c *Client) Search(ctx context.Context, query string) ([]session.SearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/search?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var raw bytes.Buffer
	if _, err := raw.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(raw.Bytes())
	}

	var envelope struct {
		Data []session.SearchResult `json:"data"`
	}
	if err := json.Unmarshal(raw.Bytes(), &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return envelope.Data, nil
}
