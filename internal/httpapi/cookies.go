package httpapi

import (
	"net/http"
	"time"

	"github.com/vitadrop/vitaauth"
)

type cookieJar struct {
	session    vitaauth.SessionConfig
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func newCookieJar(session vitaauth.SessionConfig, jwt vitaauth.JWTConfig) cookieJar {
	return cookieJar{session: session, accessTTL: jwt.AccessTTL, refreshTTL: jwt.RefreshTTL}
}

func (c cookieJar) cookie(name, value string, expires time.Time, ttl time.Duration) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.session.CookiePath,
		Domain:   c.session.CookieDomain,
		HttpOnly: true,
		Secure:   c.session.CookieSecure,
		SameSite: c.session.CookieSameSite,
	}
	if value == "" {
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		return ck
	}
	ck.Expires = expires
	ck.MaxAge = int(ttl.Seconds())
	return ck
}

func (c cookieJar) setAccess(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, c.cookie(c.session.AccessCookieName, token, expires, c.accessTTL))
}

func (c cookieJar) setRefresh(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, c.cookie(c.session.RefreshCookieName, token, expires, c.refreshTTL))
}

func (c cookieJar) setSession(w http.ResponseWriter, s *vitaauth.SessionResult) {
	c.setAccess(w, s.AccessToken, s.AccessExpiresAt)
	c.setRefresh(w, s.RefreshToken, s.RefreshExpiresAt)
}

func (c cookieJar) clear(w http.ResponseWriter) {
	c.setAccess(w, "", time.Time{})
	c.setRefresh(w, "", time.Time{})
}

func (c cookieJar) refreshToken(r *http.Request) string {
	ck, err := r.Cookie(c.session.RefreshCookieName)
	if err != nil {
		return ""
	}
	return ck.Value
}
