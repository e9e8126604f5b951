package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mfa-service/internal/service"
)

// AdminHandler serves the administrative endpoints. Every operation
// carries the acting admin's directory credentials via HTTP basic
// auth; the service re-verifies them on each call.
type AdminHandler struct {
	admin *service.AdminService
}

func NewAdminHandler(admin *service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Route("/admin", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Get("/users", h.ListUsers)
		r.Post("/users/{username}/activate", h.ActivateUser)
		r.Post("/users/{username}/reject", h.RejectUser)
	})
}

func adminCredentials(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	username, password, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
		respondWithError(w, http.StatusUnauthorized, service.ErrInvalidCredentials,
			"Admin credentials required")
		return "", "", false
	}
	return username, password, true
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.admin.Login(r.Context(), req.Username, req.Password, req.VerificationCode)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Admin login failed")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(result, "Admin login successful"))
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	adminUsername, adminPassword, ok := adminCredentials(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))

	result, err := h.admin.ListUsers(r.Context(), adminUsername, adminPassword,
		query.Get("status"), query.Get("q"), limit)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to list users")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(result, ""))
}

func (h *AdminHandler) ActivateUser(w http.ResponseWriter, r *http.Request) {
	adminUsername, adminPassword, ok := adminCredentials(w, r)
	if !ok {
		return
	}

	result, err := h.admin.Activate(r.Context(), adminUsername, adminPassword,
		chi.URLParam(r, "username"))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to activate user")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(result, "User activated"))
}

func (h *AdminHandler) RejectUser(w http.ResponseWriter, r *http.Request) {
	adminUsername, adminPassword, ok := adminCredentials(w, r)
	if !ok {
		return
	}

	err := h.admin.Reject(r.Context(), adminUsername, adminPassword,
		chi.URLParam(r, "username"))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to reject user")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "User rejected"))
}
