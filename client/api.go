package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBytes = 1 << 20

// Location mirrors the server's address block.
type Location struct {
	Division string `json:"division,omitempty"`
	District string `json:"district,omitempty"`
	Upazila  string `json:"upazila,omitempty"`
}

// User is a user record as the server returns it.
type User struct {
	ID         string    `json:"id"`
	FullName   string    `json:"fullName"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	Gender     string    `json:"gender,omitempty"`
	Role       string    `json:"role"`
	BloodGroup string    `json:"bloodGroup,omitempty"`
	Location   Location  `json:"location"`
	PhotoURL   string    `json:"photoURL,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Registration is the body of POST /register.
type Registration struct {
	FullName   string   `json:"fullName"`
	Email      string   `json:"email"`
	Password   string   `json:"password"`
	Phone      string   `json:"phone,omitempty"`
	Gender     string   `json:"gender,omitempty"`
	Role       string   `json:"role,omitempty"`
	BloodGroup string   `json:"bloodGroup,omitempty"`
	Location   Location `json:"location"`
	PhotoURL   string   `json:"photoURL,omitempty"`
}

// ProfileUpdate is the body of PUT /profile/{id}. Nil fields are unchanged.
type ProfileUpdate struct {
	FullName   *string   `json:"fullName,omitempty"`
	Phone      *string   `json:"phone,omitempty"`
	Gender     *string   `json:"gender,omitempty"`
	BloodGroup *string   `json:"bloodGroup,omitempty"`
	Location   *Location `json:"location,omitempty"`
	PhotoURL   *string   `json:"photoURL,omitempty"`
}

// Session is the verified principal reported by GET /session.
type Session struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

type sessionEnvelope struct {
	AccessToken string `json:"accessToken"`
	User        User   `json:"user"`
}

// Login starts a session. The access token is kept in memory and the
// refresh token in the cookie jar.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	var out sessionEnvelope
	body := map[string]string{"email": email, "password": password}
	if err := c.call(ctx, http.MethodPost, "/login", body, &out); err != nil {
		return nil, err
	}
	c.startSession(out.AccessToken)
	return &out.User, nil
}

// Register creates an account and starts its session.
func (c *Client) Register(ctx context.Context, r Registration) (*User, error) {
	var out sessionEnvelope
	if err := c.call(ctx, http.MethodPost, "/register", r, &out); err != nil {
		return nil, err
	}
	c.startSession(out.AccessToken)
	return &out.User, nil
}

func (c *Client) startSession(token string) {
	c.tokens.Set(token)
	c.coord.Reset()
}

// Logout revokes the refresh token server-side. The local token is dropped
// even if the call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.tokens.Clear()
	return c.call(ctx, http.MethodPost, "/logout", nil, nil)
}

// Refresh forces a refresh through the coordinator and returns the new
// access token.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	return c.coord.Await(ctx, c.tokens.Get())
}

func (c *Client) Profile(ctx context.Context) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := c.call(ctx, http.MethodGet, "/profile", nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) UserByID(ctx context.Context, id string) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := c.call(ctx, http.MethodGet, "/profile/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) UpdateProfile(ctx context.Context, id string, u ProfileUpdate) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := c.call(ctx, http.MethodPut, "/profile/"+id, u, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Users lists every account. Admin only.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var out struct {
		Users []User `json:"users"`
	}
	if err := c.call(ctx, http.MethodGet, "/all", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) Session(ctx context.Context) (*Session, error) {
	var out struct {
		Session Session `json:"session"`
	}
	if err := c.call(ctx, http.MethodGet, "/session", nil, &out); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

// decodeResponse closes resp. Non-2xx statuses become *APIError.
func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Code: resp.Header.Get(headerAuthError)}
		var env struct {
			Code    string            `json:"code"`
			Message string            `json:"message"`
			Fields  map[string]string `json:"fields"`
		}
		if json.Unmarshal(raw, &env) == nil {
			if apiErr.Code == "" {
				apiErr.Code = env.Code
			}
			apiErr.Message = env.Message
			apiErr.Fields = env.Fields
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsCode reports whether err is an *APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
