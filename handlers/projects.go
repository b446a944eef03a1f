package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/taskflow-app/taskflow/database"
	"github.com/taskflow-app/taskflow/services"
)

// DataHandler handles project, task, tag, comment and profile endpoints
type DataHandler struct {
	dataService *database.DataService
	authService *services.AuthService
	hub         *services.Hub
	serviceKey  string
}

func NewDataHandler(dataService *database.DataService, authService *services.AuthService, hub *services.Hub, serviceKey string) *DataHandler {
	return &DataHandler{
		dataService: dataService,
		authService: authService,
		hub:         hub,
		serviceKey:  serviceKey,
	}
}

// requireServiceKey fails every mutation closed when the elevated
// service key is absent from the environment. Reads stay open.
func (h *DataHandler) requireServiceKey(w http.ResponseWriter) bool {
	if h.serviceKey == "" {
		writeError(w, http.StatusInternalServerError,
			"service key not configured",
			"mutation endpoints are disabled until a service key is provided",
			"add TASKFLOW_SERVICE_KEY to .env")
		return false
	}
	return true
}

// requireProjectOwner resolves a project and enforces that the
// requester owns it
func (h *DataHandler) requireProjectOwner(w http.ResponseWriter, r *http.Request, projectID string) (*database.Project, bool) {
	project, err := h.dataService.GetProject(projectID)
	if err != nil {
		writeError(w, http.StatusNotFound, "project not found", "", "")
		return nil, false
	}
	userID, _ := requestUserID(r)
	if project.OwnerID != userID {
		writeError(w, http.StatusForbidden, "not the project owner", "", "")
		return nil, false
	}
	return project, true
}

// publishProject emits a row-level change event to the project owner's sessions
func (h *DataHandler) publishProject(eventType string, project *database.Project, old *database.Project) {
	event := services.ChangeEvent{Table: "projects", EventType: eventType}
	ownerID := ""
	if project != nil {
		ownerID = project.OwnerID
		event.New, _ = json.Marshal(project)
	}
	if old != nil {
		ownerID = old.OwnerID
		event.Old, _ = json.Marshal(old)
	}
	h.hub.Publish(ownerID, event)
}

// GetProjects lists the requesting user's projects with derived task summaries
func (h *DataHandler) GetProjects(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "user not found", "", "")
		return
	}
	// The list is always the requester's own; a userId targeting
	// another user is rejected rather than honored
	if queryUser := r.URL.Query().Get("userId"); queryUser != "" && queryUser != userID {
		writeError(w, http.StatusForbidden, "cannot list another user's projects", "", "")
		return
	}

	projects, err := h.dataService.ListProjects(userID)
	if err != nil {
		log.Printf("Error listing projects: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list projects", "", "")
		return
	}

	writeJSON(w, http.StatusOK, projects)
}

// CreateProject inserts a project and broadcasts the change
func (h *DataHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	if !h.requireServiceKey(w) {
		return
	}

	userID, _ := requestUserID(r)

	var req struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Color       string  `json:"color"`
		DueDate     *string `json:"due_date"`
		OwnerID     string  `json:"owner_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request format", "", "")
		return
	}
	if req.OwnerID == "" {
		req.OwnerID = userID
	}

	project := &database.Project{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		DueDate:     req.DueDate,
		OwnerID:     req.OwnerID,
	}
	if err := project.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "", "")
		return
	}

	created, err := h.dataService.CreateProject(project)
	if err != nil {
		log.Printf("Error creating project: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create project",
			"database operation failed, check server logs for details", "")
		return
	}

	h.publishProject(services.EventInsert, created, nil)
	writeJSON(w, http.StatusOK, created)
}

// UpdateProject applies a partial update and broadcasts the change
func (h *DataHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	if !h.requireServiceKey(w) {
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id", "", "")
		return
	}

	existing, ok := h.requireProjectOwner(w, r, id)
	if !ok {
		return
	}

	var update database.ProjectUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request format", "", "")
		return
	}

	updated, err := h.dataService.UpdateProject(id, &update)
	if err != nil {
		log.Printf("Error updating project: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update project", "", "")
		return
	}

	h.publishProject(services.EventUpdate, updated, existing)
	writeJSON(w, http.StatusOK, updated)
}

// DeleteProject removes a project and broadcasts the change
func (h *DataHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if !h.requireServiceKey(w) {
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id", "", "")
		return
	}

	existing, ok := h.requireProjectOwner(w, r, id)
	if !ok {
		return
	}

	if err := h.dataService.DeleteProject(id); err != nil {
		log.Printf("Error deleting project: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete project", "", "")
		return
	}

	h.publishProject(services.EventDelete, nil, existing)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
