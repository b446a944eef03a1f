package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/taskflow-app/taskflow/database"
)

// GetProfile returns the authenticated user's profile
func (h *DataHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "user not found", "", "")
		return
	}

	profile, err := h.dataService.GetProfile(userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "profile not found", "", "")
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// ReplaceProfile replaces the mutable fields of the authenticated
// user's profile (PUT semantics: absent fields are cleared)
func (h *DataHandler) ReplaceProfile(w http.ResponseWriter, r *http.Request) {
	if !h.requireServiceKey(w) {
		return
	}

	userID, _ := requestUserID(r)

	var req struct {
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
		Bio       string `json:"bio"`
		Location  string `json:"location"`
		Website   string `json:"website"`
		Phone     string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request format", "", "")
		return
	}
	if req.Name == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "name and email are required", "", "")
		return
	}

	update := database.ProfileUpdate{
		Name:      &req.Name,
		Email:     &req.Email,
		AvatarURL: &req.AvatarURL,
		Bio:       &req.Bio,
		Location:  &req.Location,
		Website:   &req.Website,
		Phone:     &req.Phone,
	}

	profile, err := h.dataService.UpdateProfile(userID, &update)
	if err != nil {
		log.Printf("Error updating profile: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update profile", "", "")
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// PatchProfile applies a partial update to the authenticated user's profile
func (h *DataHandler) PatchProfile(w http.ResponseWriter, r *http.Request) {
	if !h.requireServiceKey(w) {
		return
	}

	userID, _ := requestUserID(r)

	var update database.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request format", "", "")
		return
	}

	profile, err := h.dataService.UpdateProfile(userID, &update)
	if err != nil {
		log.Printf("Error updating profile: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update profile", "", "")
		return
	}

	writeJSON(w, http.StatusOK, profile)
}
