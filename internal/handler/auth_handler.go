package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mfa-service/internal/service"
	"mfa-service/internal/util"
)

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("failed to encode JSON response", zap.Error(err))
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	util.Warn("HTTP error response",
		zap.Error(err),
		zap.Int("status_code", statusCode),
		zap.String("message", message))
	respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode maps service errors onto HTTP status codes.
func getStatusCode(err error) int {
	var incomplete *service.ProfileIncompleteError
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrSMSDisabled):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidCode),
		errors.Is(err, service.ErrCodeExpired):
		return http.StatusUnauthorized
	case errors.As(err, &incomplete),
		errors.Is(err, service.ErrAwaitingApproval),
		errors.Is(err, service.ErrPermissionDenied),
		errors.Is(err, service.ErrNotActive),
		errors.Is(err, service.ErrNotEnrolledSMS),
		errors.Is(err, service.ErrMFANotConfigured):
		return http.StatusForbidden
	case errors.Is(err, service.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AuthHandler serves the public authentication endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.Signup)
		r.Post("/verify-email", h.VerifyEmail)
		r.Post("/verify-phone", h.VerifyPhone)
		r.Post("/resend-verification", h.ResendVerification)
		r.Get("/profile-status", h.ProfileStatus)
		r.Post("/login", h.Login)

		r.Route("/mfa", func(r chi.Router) {
			r.Get("/methods", h.MFAMethods)
			r.Get("/status", h.MFAStatus)
			r.Post("/enroll", h.Enroll)
		})
		r.Post("/sms/send-code", h.SendSMSCode)
	})
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.auth.Signup(r.Context(), &req)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Signup failed")
		return
	}
	respondWithJSON(w, http.StatusCreated,
		successResponse(result, "Signup accepted, verification pending"))
}

type verifyRequest struct {
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
	Code     string `json:"code,omitempty"`
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	status, err := h.auth.VerifyEmail(r.Context(), req.Username, req.Token)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Email verification failed")
		return
	}
	respondWithJSON(w, http.StatusOK,
		successResponse(map[string]string{"status": string(status)}, "Email verified"))
}

func (h *AuthHandler) VerifyPhone(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	status, err := h.auth.VerifyPhone(r.Context(), req.Username, req.Code)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Phone verification failed")
		return
	}
	respondWithJSON(w, http.StatusOK,
		successResponse(map[string]string{"status": string(status)}, "Phone verified"))
}

type resendRequest struct {
	Username string `json:"username"`
	Type     string `json:"type"`
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	status, err := h.auth.ResendVerification(r.Context(), req.Username, req.Type)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Resend failed")
		return
	}
	respondWithJSON(w, http.StatusOK,
		successResponse(map[string]string{"status": string(status)}, "Verification resent"))
}

func (h *AuthHandler) ProfileStatus(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		respondWithError(w, http.StatusBadRequest, service.ErrInvalidInput, "username is required")
		return
	}

	info, err := h.auth.ProfileStatus(r.Context(), username)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to get profile status")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(info, ""))
}

func (h *AuthHandler) MFAMethods(w http.ResponseWriter, r *http.Request) {
	methods, smsEnabled := h.auth.MFAMethods()
	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"methods":     methods,
		"sms_enabled": smsEnabled,
	}, ""))
}

func (h *AuthHandler) MFAStatus(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		respondWithError(w, http.StatusBadRequest, service.ErrInvalidInput, "username is required")
		return
	}

	info, err := h.auth.MFAStatus(r.Context(), username)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to get MFA status")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(info, ""))
}

func (h *AuthHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req service.EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.auth.Enroll(r.Context(), &req)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Enrollment failed")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(result, "Enrollment updated"))
}

type loginRequest struct {
	Username         string `json:"username"`
	Password         string `json:"password"`
	VerificationCode string `json:"verification_code"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password, req.VerificationCode)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Login failed")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(result, "Login successful"))
}

type sendCodeRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) SendSMSCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.auth.SendSMSCode(r.Context(), req.Username, req.Password)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to send SMS code")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(result, "Code sent"))
}
