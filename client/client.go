package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// DefaultPrefix is where the server mounts the user routes.
const DefaultPrefix = "/api/users"

// refreshCookieName is the cookie the server keeps the refresh token in.
const refreshCookieName = "refreshToken"

// Paths that never trigger a refresh, matched by suffix.
var excludedSuffixes = []string{"/login", "/register", "/refreshToken"}

// Options configures [New].
type Options struct {
	// HTTPClient is used for every call. A cookie jar is installed when it
	// has none, since the refresh token lives in a cookie.
	HTTPClient *http.Client
	// Prefix of the user routes. Empty means DefaultPrefix.
	Prefix         string
	RefreshTimeout time.Duration
	// OnSessionEnd runs when the session can no longer be recovered
	// without a new login.
	OnSessionEnd func(error)
	Logger       *slog.Logger
}

// Client sends requests on behalf of one session.
type Client struct {
	base   *url.URL
	prefix string
	http   *http.Client
	tokens *TokenHolder
	coord  *Coordinator
}

func New(baseURL string, opts Options) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		copied := *hc
		copied.Jar = jar
		hc = &copied
	}

	prefix := strings.TrimRight(opts.Prefix, "/")
	if opts.Prefix == "" {
		prefix = DefaultPrefix
	}

	c := &Client{
		base:   base,
		prefix: prefix,
		http:   hc,
		tokens: &TokenHolder{},
	}
	c.coord, err = NewCoordinator(CoordinatorConfig{
		Refresh:      c.refreshAccess,
		Tokens:       c.tokens,
		Timeout:      opts.RefreshTimeout,
		OnSessionEnd: opts.OnSessionEnd,
		Logger:       opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Tokens exposes the access token holder.
func (c *Client) Tokens() *TokenHolder { return c.tokens }

// Coordinator exposes the refresh coordinator.
func (c *Client) Coordinator() *Coordinator { return c.coord }

// URL resolves path against the base URL and route prefix.
func (c *Client) URL(path string) string {
	return c.base.JoinPath(c.prefix, path).String()
}

type retriedKey struct{}

func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func retried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

// Do sends req with the current access token. A refreshable 401 parks the
// request until a refresh settles and then replays it once. The caller
// closes the returned body as with http.Client.Do.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	token := c.tokens.Get()
	resp, err := c.send(req, body, token)
	if err != nil {
		return nil, err
	}
	if excluded(req.URL.Path) || retried(req.Context()) {
		return resp, nil
	}

	switch classify(resp) {
	case verdictRefresh:
		discard(resp)
		fresh, err := c.coord.Await(req.Context(), token)
		if err != nil {
			return nil, err
		}
		return c.send(req.Clone(markRetried(req.Context())), body, fresh)
	case verdictEndSession:
		cause := fmt.Errorf("server rejected token: %s", resp.Header.Get(headerAuthError))
		if _, ended := c.coord.EndSession(token, cause); ended {
			c.expireRefreshCookie()
		}
	}
	return resp, nil
}

// expireRefreshCookie drops the refresh cookie from the jar so a rejected
// session cannot be revived by a refresh.
func (c *Client) expireRefreshCookie() {
	if c.http.Jar == nil {
		return
	}
	u, err := url.Parse(c.URL("/refreshToken"))
	if err != nil {
		return
	}
	var expired []*http.Cookie
	for _, path := range []string{"/", c.prefix} {
		expired = append(expired, &http.Cookie{Name: refreshCookieName, Path: path, MaxAge: -1})
	}
	c.http.Jar.SetCookies(u, expired)
}

func (c *Client) send(req *http.Request, body []byte, token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.ContentLength = int64(len(body))
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	} else {
		out.Header.Del("Authorization")
	}
	return c.http.Do(out)
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	b, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	return b, nil
}

func excluded(path string) bool {
	for _, s := range excludedSuffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}

type verdict int

const (
	verdictPass verdict = iota
	verdictRefresh
	verdictEndSession
)

func classify(resp *http.Response) verdict {
	code := resp.Header.Get(headerAuthError)
	switch {
	case code == CodeTokenMalformed || code == CodeTokenBadSignature:
		return verdictEndSession
	case resp.StatusCode != http.StatusUnauthorized:
		return verdictPass
	case code == "" || code == CodeTokenExpired || code == CodeNoToken:
		return verdictRefresh
	default:
		return verdictPass
	}
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

// refreshAccess calls POST /refreshToken. The refresh token travels in the
// cookie jar, never in the body.
func (c *Client) refreshAccess(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL("/refreshToken"), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}

	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := decodeResponse(resp, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("refresh response carried no access token")
	}
	return out.AccessToken, nil
}
