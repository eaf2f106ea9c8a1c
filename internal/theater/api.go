package theater

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/kuitang/crud-e2e/internal/auth"
	"github.com/kuitang/crud-e2e/internal/errs"
	"github.com/kuitang/crud-e2e/internal/logutil"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    errs.Code `json:"code"`
	Message string    `json:"message"`
}

// UserResponse is returned by register and login. Password echoes the
// submitted value; the stored credential is only a hash.
type UserResponse struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	ID          string `json:"_id"`
	AccessToken string `json:"accessToken"`
	CreatedOn   int64  `json:"_createdOn"`
}

// DeleteResponse is returned by DELETE.
type DeleteResponse struct {
	DeletedOn int64 `json:"_deletedOn"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Handler serves the users and data JSON API.
type Handler struct {
	users    *auth.UserService
	sessions *auth.SessionService
	store    *Store
	logger   *slog.Logger
}

// RegisterRoutes registers the API on mux. authed wraps handlers that need a
// session; limited wraps the credential endpoints.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, authed, limited func(http.Handler) http.Handler) {
	mux.Handle("POST /users/register", limited(http.HandlerFunc(h.Register)))
	mux.Handle("POST /users/login", limited(http.HandlerFunc(h.Login)))
	mux.HandleFunc("GET /users/logout", h.Logout)
	mux.Handle("GET /users/me", authed(http.HandlerFunc(h.Me)))

	mux.HandleFunc("GET /data/theaters", h.ListTheaters)
	mux.HandleFunc("GET /data/theaters/{id}", h.GetTheater)
	mux.Handle("POST /data/theaters", authed(http.HandlerFunc(h.CreateTheater)))
	mux.Handle("PUT /data/theaters/{id}", authed(http.HandlerFunc(h.UpdateTheater)))
	mux.Handle("DELETE /data/theaters/{id}", authed(http.HandlerFunc(h.DeleteTheater)))
}

// Register handles POST /users/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.users.Register(r.Context(), req.Email, req.Password, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAccountExists):
			err = errs.Wrap(errs.AlreadyExists, "A user with the same email already exists", err)
		case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword):
			err = errs.Wrap(errs.InvalidArgument, err.Error(), err)
		}
		h.writeErr(w, r, err)
		return
	}
	h.issueToken(w, r, user, req.Password)
}

// Login handles POST /users/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			err = errs.Wrap(errs.PermissionDenied, "Login or password don't match", err)
		}
		h.writeErr(w, r, err)
		return
	}
	h.issueToken(w, r, user, req.Password)
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request, user *auth.User, password string) {
	token, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{
		Email:       user.Email,
		Password:    password,
		ID:          user.ID,
		AccessToken: token,
		CreatedOn:   user.CreatedAt.UnixMilli(),
	})
}

// Logout handles GET /users/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := auth.TokenFromHeader(r)
	if err != nil {
		h.writeErr(w, r, errs.New(errs.Unauthenticated, "Unauthorized"))
		return
	}
	if err := h.sessions.Delete(r.Context(), token); err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			err = errs.Wrap(errs.PermissionDenied, "Invalid access token", err)
		}
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /users/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(r.Context(), auth.GetUserID(r.Context()))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"email":      user.Email,
		"_id":        user.ID,
		"_createdOn": user.CreatedAt.UnixMilli(),
	})
}

var ownerFilter = regexp.MustCompile(`^_ownerId="([^"]*)"$`)

// ListTheaters handles GET /data/theaters with an optional
// where=_ownerId="<id>" filter.
func (h *Handler) ListTheaters(w http.ResponseWriter, r *http.Request) {
	ownerID := ""
	if where := r.URL.Query().Get("where"); where != "" {
		m := ownerFilter.FindStringSubmatch(where)
		if m == nil {
			h.writeErr(w, r, errs.New(errs.InvalidArgument, `Unsupported where clause, expected _ownerId="<id>"`))
			return
		}
		ownerID = m[1]
	}

	theaters, err := h.store.List(r.Context(), ownerID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, theaters)
}

// GetTheater handles GET /data/theaters/{id}.
func (h *Handler) GetTheater(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CreateTheater handles POST /data/theaters.
func (h *Handler) CreateTheater(w http.ResponseWriter, r *http.Request) {
	var f Fields
	if !h.decode(w, r, &f) {
		return
	}
	if err := f.Validate(); err != nil {
		h.writeErr(w, r, err)
		return
	}

	t, err := h.store.Create(r.Context(), auth.GetUserID(r.Context()), f)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateTheater handles PUT /data/theaters/{id}.
func (h *Handler) UpdateTheater(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	var f Fields
	if !h.decode(w, r, &f) {
		return
	}
	if err := f.Validate(); err != nil {
		h.writeErr(w, r, err)
		return
	}

	t, err := h.store.Update(r.Context(), existing.ID, f)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DeleteTheater handles DELETE /data/theaters/{id}.
func (h *Handler) DeleteTheater(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	deletedOn, err := h.store.Delete(r.Context(), existing.ID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{DeletedOn: deletedOn})
}

func (h *Handler) loadOwned(w http.ResponseWriter, r *http.Request) (*Theater, bool) {
	t, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return nil, false
	}
	if t.OwnerID != auth.GetUserID(r.Context()) {
		h.writeErr(w, r, errs.New(errs.PermissionDenied, "You are not the owner of this record"))
		return nil, false
	}
	return t, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		h.writeErr(w, r, errs.Wrap(errs.InvalidArgument, "Invalid JSON body", err))
		return false
	}
	return true
}

// writeErr writes err as a coded JSON error. Internal errors are logged and
// never exposed.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		h.logger.DebugContext(r.Context(), "request rejected", "status", status, "code", code, "error", logutil.Truncate(err.Error(), 200))
	}
	writeJSON(w, status, ErrorResponse{Code: code, Message: errs.MessageOf(err)})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
