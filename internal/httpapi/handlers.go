package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vitadrop/vitaauth"
	"github.com/vitadrop/vitaauth/middleware"
)

const maxBodyBytes = 1 << 20

type handler struct {
	auth    Auth
	cookies cookieJar
	logger  *slog.Logger
}

type sessionResponse struct {
	Success     bool          `json:"success"`
	Message     string        `json:"message"`
	AccessToken string        `json:"accessToken"`
	User        vitaauth.User `json:"user"`
}

type refreshResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	AccessToken string `json:"accessToken"`
}

type userResponse struct {
	Success bool          `json:"success"`
	User    vitaauth.User `json:"user"`
}

type usersResponse struct {
	Success bool            `json:"success"`
	Users   []vitaauth.User `json:"users"`
}

type sessionInfoResponse struct {
	Success bool                  `json:"success"`
	Session *vitaauth.SessionInfo `json:"session"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := middleware.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	middleware.WriteError(w, err)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return &vitaauth.ValidationError{Fields: map[string]string{"body": fmt.Sprintf("invalid JSON: %v", err)}}
	}
	return nil
}

func principal(r *http.Request) vitaauth.Principal {
	p, _ := middleware.PrincipalFromContext(r.Context())
	return p
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	s, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.cookies.setSession(w, s)
	writeJSON(w, http.StatusOK, sessionResponse{
		Success:     true,
		Message:     "Login successful",
		AccessToken: s.AccessToken,
		User:        s.User,
	})
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var in vitaauth.RegisterInput
	if err := decode(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	s, err := h.auth.Register(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.cookies.setSession(w, s)
	writeJSON(w, http.StatusCreated, sessionResponse{
		Success:     true,
		Message:     "User registered successfully",
		AccessToken: s.AccessToken,
		User:        s.User,
	})
}

// refresh reads the refresh token from its cookie only, never the body.
func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.auth.Refresh(r.Context(), h.cookies.refreshToken(r))
	if err != nil {
		if errors.Is(err, vitaauth.ErrRefreshExpiredOrRevoked) {
			h.cookies.clear(w)
		}
		h.fail(w, r, err)
		return
	}

	h.cookies.setAccess(w, res.AccessToken, res.AccessExpiresAt)
	if res.Rotated {
		h.cookies.setRefresh(w, res.RefreshToken, res.RefreshExpiresAt)
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		Success:     true,
		Message:     "Access token refreshed successfully",
		AccessToken: res.AccessToken,
	})
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), principal(r).UserID); err != nil {
		h.fail(w, r, err)
		return
	}

	h.cookies.clear(w)
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Logout successful"})
}

func (h *handler) profile(w http.ResponseWriter, r *http.Request) {
	u, err := h.auth.Profile(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Success: true, User: u})
}

func (h *handler) userByID(w http.ResponseWriter, r *http.Request) {
	u, err := h.auth.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Success: true, User: u})
}

func (h *handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var patch vitaauth.ProfilePatch
	if err := decode(w, r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.auth.UpdateProfile(r.Context(), principal(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Success: true, User: u})
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.auth.ListUsers(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if users == nil {
		users = []vitaauth.User{}
	}
	writeJSON(w, http.StatusOK, usersResponse{Success: true, Users: users})
}

func (h *handler) session(w http.ResponseWriter, r *http.Request) {
	info, err := h.auth.SessionInfo(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionInfoResponse{Success: true, Session: info})
}
