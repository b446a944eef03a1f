package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/taskflow-app/taskflow/database"
	"github.com/taskflow-app/taskflow/services"
)

// AuthHandler handles authentication-related endpoints
type AuthHandler struct {
	authService *services.AuthService
	dataService *database.DataService
}

func NewAuthHandler(authService *services.AuthService, dataService *database.DataService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		dataService: dataService,
	}
}

// Login handles the login request (sending a magic link)
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request format", "", "")
		return
	}

	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "invalid email address", "", "")
		return
	}

	// Get base URL from request or use default
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	baseURL := fmt.Sprintf("%s://%s", scheme, r.Host)

	magicLink, err := h.authService.GenerateMagicLink(req.Email, baseURL)
	if err != nil {
		log.Printf("Error generating magic link: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to generate login link", "", "")
		return
	}

	// Return success response with magic link for development
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "success",
		"message":   "Magic link has been sent",
		"magicLink": magicLink, // For development only
	})
}

// HandleMagicLink processes a magic link token, provisions the profile
// on first login, and redirects to the frontend with a session token
func (h *AuthHandler) HandleMagicLink(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing token", "", "")
		return
	}

	email, err := h.authService.VerifyMagicLinkToken(token)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or expired token", "", "")
		return
	}

	profile, err := h.dataService.EnsureProfile(email)
	if err != nil {
		log.Printf("Error provisioning profile: %v", err)
		writeError(w, http.StatusInternalServerError, "authentication error", "", "")
		return
	}

	jwtToken, err := h.authService.CreateJWT(profile.ID, profile.Email)
	if err != nil {
		log.Printf("Error creating JWT: %v", err)
		writeError(w, http.StatusInternalServerError, "authentication error", "", "")
		return
	}

	// Redirect to frontend with token
	redirectURL := fmt.Sprintf("/?token=%s&email=%s", jwtToken, profile.Email)
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// VerifyToken checks if a JWT is valid
func (h *AuthHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	tokenString := bearerToken(r)
	if tokenString == "" {
		writeError(w, http.StatusUnauthorized, "missing or malformed authorization header", "", "")
		return
	}

	userID, email, err := h.authService.VerifyJWT(tokenString)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token", "", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":     userID,
		"email":  email,
		"status": "valid",
	})
}
