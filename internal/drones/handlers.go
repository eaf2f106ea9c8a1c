package drones

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kuitang/crud-e2e/internal/auth"
)

// PageData is the view model shared by every template.
type PageData struct {
	Title    string
	LoggedIn bool
	Error    string
	Email    string

	// Drone form
	Form   Input
	Errors FieldErrors
	Action string
	Submit string

	Drone   *Drone
	Drones  []*Drone
	IsOwner bool
}

func (a *App) page(r *http.Request, title string) PageData {
	return PageData{Title: title, LoggedIn: auth.IsAuthenticated(r.Context())}
}

func (a *App) render(w http.ResponseWriter, r *http.Request, status int, name string, data PageData) {
	if err := a.renderer.Render(w, status, name, data); err != nil {
		a.logger.ErrorContext(r.Context(), "render failed", "template", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (a *App) serverError(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	a.renderer.RenderError(w, http.StatusInternalServerError, a.page(r, ""), "Something went wrong.")
}

func (a *App) rateLimited(w http.ResponseWriter, r *http.Request) {
	a.renderer.RenderError(w, http.StatusTooManyRequests, a.page(r, ""), "Too many attempts. Try again in a moment.")
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (a *App) handleHome(w http.ResponseWriter, r *http.Request) {
	a.render(w, r, http.StatusOK, "home.html", a.page(r, "Home"))
}

func (a *App) handleNotFound(w http.ResponseWriter, r *http.Request) {
	a.renderer.RenderError(w, http.StatusNotFound, a.page(r, ""), "Page not found.")
}

// Authentication

func (a *App) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	a.render(w, r, http.StatusOK, "register.html", a.page(r, "Register"))
}

func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	user, err := a.users.Register(r.Context(), email, r.PostFormValue("password"), r.PostFormValue("rePassword"))
	if err != nil {
		data := a.page(r, "Register")
		data.Email = email
		switch {
		case errors.Is(err, auth.ErrAccountExists):
			data.Error = "An account with this email already exists."
			a.render(w, r, http.StatusConflict, "register.html", data)
		case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrPasswordMismatch):
			data.Error = capitalize(err.Error()) + "."
			a.render(w, r, http.StatusBadRequest, "register.html", data)
		default:
			a.serverError(w, r, err)
		}
		return
	}
	a.startSession(w, r, user.ID)
}

func (a *App) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	a.render(w, r, http.StatusOK, "login.html", a.page(r, "Login"))
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	user, err := a.users.Login(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			data := a.page(r, "Login")
			data.Email = email
			data.Error = "Invalid email or password."
			a.render(w, r, http.StatusUnauthorized, "login.html", data)
			return
		}
		a.serverError(w, r, err)
		return
	}
	a.startSession(w, r, user.ID)
}

func (a *App) startSession(w http.ResponseWriter, r *http.Request, userID string) {
	token, err := a.sessions.Create(r.Context(), userID)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	auth.SetCookie(w, token, a.sessions.Duration(), a.secure)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := auth.GetToken(r.Context()); token != "" {
		if err := a.sessions.Delete(r.Context(), token); err != nil && !errors.Is(err, auth.ErrSessionNotFound) {
			a.logger.WarnContext(r.Context(), "session delete failed", "error", err)
		}
	}
	auth.ClearCookie(w, a.secure)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Catalog

func (a *App) handleCatalog(w http.ResponseWriter, r *http.Request) {
	drones, err := a.store.List(r.Context())
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	data := a.page(r, "Marketplace")
	data.Drones = drones
	a.render(w, r, http.StatusOK, "catalog.html", data)
}

func (a *App) handleDetails(w http.ResponseWriter, r *http.Request) {
	drone, ok := a.loadDrone(w, r)
	if !ok {
		return
	}
	data := a.page(r, drone.Model)
	data.Drone = drone
	data.IsOwner = drone.OwnerID == auth.GetUserID(r.Context())
	a.render(w, r, http.StatusOK, "details.html", data)
}

func (a *App) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	a.render(w, r, http.StatusOK, "create.html", a.formPage(r, "Sell", "/create", "Create listing", Input{}, nil))
}

func (a *App) handleCreate(w http.ResponseWriter, r *http.Request) {
	in := inputFromForm(r)
	drone, err := in.Parse()
	if err != nil {
		a.render(w, r, http.StatusBadRequest, "create.html", a.formPage(r, "Sell", "/create", "Create listing", in, asFieldErrors(err)))
		return
	}
	if _, err := a.store.Create(r.Context(), auth.GetUserID(r.Context()), drone); err != nil {
		a.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, "/catalog", http.StatusSeeOther)
}

func (a *App) handleEditPage(w http.ResponseWriter, r *http.Request) {
	drone, ok := a.loadOwnedDrone(w, r)
	if !ok {
		return
	}
	a.render(w, r, http.StatusOK, "edit.html", a.formPage(r, "Edit", editPath(drone.ID), "Save changes", InputFrom(drone), nil))
}

func (a *App) handleEdit(w http.ResponseWriter, r *http.Request) {
	existing, ok := a.loadOwnedDrone(w, r)
	if !ok {
		return
	}
	in := inputFromForm(r)
	drone, err := in.Parse()
	if err != nil {
		a.render(w, r, http.StatusBadRequest, "edit.html", a.formPage(r, "Edit", editPath(existing.ID), "Save changes", in, asFieldErrors(err)))
		return
	}
	if _, err := a.store.Update(r.Context(), existing.ID, drone); err != nil {
		a.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, "/catalog/"+existing.ID, http.StatusSeeOther)
}

func (a *App) handleDelete(w http.ResponseWriter, r *http.Request) {
	drone, ok := a.loadOwnedDrone(w, r)
	if !ok {
		return
	}
	if err := a.store.Delete(r.Context(), drone.ID); err != nil && !errors.Is(err, ErrNotFound) {
		a.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, "/catalog", http.StatusSeeOther)
}

func (a *App) formPage(r *http.Request, title, action, submit string, in Input, errs FieldErrors) PageData {
	data := a.page(r, title)
	data.Form = in
	data.Errors = errs
	data.Action = action
	data.Submit = submit
	return data
}

func (a *App) loadDrone(w http.ResponseWriter, r *http.Request) (*Drone, bool) {
	drone, err := a.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.renderer.RenderError(w, http.StatusNotFound, a.page(r, ""), "This drone is no longer listed.")
			return nil, false
		}
		a.serverError(w, r, err)
		return nil, false
	}
	return drone, true
}

func (a *App) loadOwnedDrone(w http.ResponseWriter, r *http.Request) (*Drone, bool) {
	drone, ok := a.loadDrone(w, r)
	if !ok {
		return nil, false
	}
	if drone.OwnerID != auth.GetUserID(r.Context()) {
		a.renderer.RenderError(w, http.StatusForbidden, a.page(r, ""), "Only the seller can change this listing.")
		return nil, false
	}
	return drone, true
}

func inputFromForm(r *http.Request) Input {
	return Input{
		Model:       r.PostFormValue("model"),
		ImageURL:    r.PostFormValue("imageUrl"),
		Price:       r.PostFormValue("price"),
		Weight:      r.PostFormValue("weight"),
		Phone:       r.PostFormValue("phone"),
		Condition:   r.PostFormValue("condition"),
		Description: r.PostFormValue("description"),
	}
}

func asFieldErrors(err error) FieldErrors {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe
	}
	return FieldErrors{"model": err.Error()}
}

func editPath(id string) string {
	return "/catalog/" + id + "/edit"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
