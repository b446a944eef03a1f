package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/taskflow-app/taskflow/database"
	"github.com/taskflow-app/taskflow/services"
)

// requireTaskOwner resolves a task and enforces that the requester
// owns its project
func (h *DataHandler) requireTaskOwner(w http.ResponseWriter, r *http.Request, taskID string) (*database.Task, bool) {
	task, err := h.dataService.GetTask(taskID)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found", "", "")
		return nil, false
	}
	userID, _ := requestUserID(r)
	project, err := h.dataService.GetProject(task.ProjectID)
	if err != nil || project.OwnerID != userID {
		writeError(w, http.StatusForbidden, "not the project owner", "", "")
		return nil, false
	}
	return task, true
}

// publishTask emits a row-level task change to the project owner's sessions
func (h *DataHandler) publishTask(eventType string, task *database.Task, old *database.Task) {
	projectID := ""
	if task != nil {
		projectID = task.ProjectID
	} else if old != nil {
		projectID = old.ProjectID
	}

	project, err := h.dataService.GetProject(projectID)
	if err != nil {
		log.Printf("Error resolving task owner for event: %v", err)
		return
	}

	event := services.ChangeEvent{Table: "tasks", EventType: eventType}
	if task != nil {
		event.New, _ = json.Marshal(task)
	}
	if old != nil {
		event.Old, _ = json.Marshal(old)
	}
	h.hub.Publish(project.OwnerID, event)
}

// GetTasks lists a project's tasks with denormalized assignee, tags
// and comment counts
func (h *DataHandler) GetTasks(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "missing projectId", "", "")
		return
	}
	if _, ok := h.requireProjectOwner(w, r, projectID); !ok {
		return
	}

	tasks, err := h.dataService.ListTasks(projectID)
	if err != nil {
		log.Printf("Error listing tasks: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list tasks", "", "")
		return
	}

	writeJSON(w, http.StatusOK, tasks)
}

// CreateTask inserts a task and broadcasts the change
func (h *DataHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	if !h.requireServiceKey(w) {
		return
	}

	userID, _ := requestUserID(r)

	var req struct {
		Title       string  `json:"title"`
		Description string  `json:"description"`
		Status      string  `json:"status"`
		Priority    string  `json:"priority"`
		ProjectID   string  `json:"project_id"`
		AssigneeID  string  `json:"assignee_id"`
		DueDate     *string `json:"due_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request format", "", "")
		return
	}

	task := &database.Task{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		ProjectID:   req.ProjectID,
		AssigneeID:  req.AssigneeID,
		DueDate:     req.DueDate,
		CreatedBy:   userID,
	}
	if task.Status == "" {
		task.Status = database.StatusTodo
	}
	if task.Priority == "" {
		task.Priority = database.PriorityMedium
	}
	if err := task.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "", "")
		return
	}

	project, err := h.dataService.GetProject(task.ProjectID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "project does not exist", "", "")
		return
	}
	if project.OwnerID != userID {
		writeError(w, http.StatusForbidden, "not the project owner", "", "")
		return
	}

	created, err := h.dataService.CreateTask(task)
	if err != nil {
		log.Printf("Error creating task: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create task",
			"database operation failed, check server logs for details", "")
		return
	}

	h.publishTask(services.EventInsert, created, nil)
	writeJSON(w, http.StatusOK, created)
}

// UpdateTask applies a partial update and broadcasts the change
func (h *DataHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	if !h.requireServiceKey(w) {
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id", "", "")
		return
	}

	existing, ok := h.requireTaskOwner(w, r, id)
	if !ok {
		return
	}

	var update database.TaskUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request format", "", "")
		return
	}
	if err := update.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "", "")
		return
	}

	updated, err := h.dataService.UpdateTask(id, &update)
	if err != nil {
		log.Printf("Error updating task: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update task", "", "")
		return
	}

	h.publishTask(services.EventUpdate, updated, existing)
	writeJSON(w, http.StatusOK, updated)
}

// DeleteTask removes a task and broadcasts the change
func (h *DataHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if !h.requireServiceKey(w) {
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id", "", "")
		return
	}

	existing, ok := h.requireTaskOwner(w, r, id)
	if !ok {
		return
	}

	if err := h.dataService.DeleteTask(id); err != nil {
		log.Printf("Error deleting task: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete task", "", "")
		return
	}

	h.publishTask(services.EventDelete, nil, existing)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// AddTaskTag attaches a tag to a task; a duplicate add is a no-op
func (h *DataHandler) AddTaskTag(w http.ResponseWriter, r *http.Request) {
	if !h.requireServiceKey(w) {
		return
	}

	var req struct {
		TaskID string `json:"taskId"`
		Tag    string `json:"tag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request format", "", "")
		return
	}
	if req.TaskID == "" || req.Tag == "" {
		writeError(w, http.StatusBadRequest, "taskId and tag are required", "", "")
		return
	}
	if _, ok := h.requireTaskOwner(w, r, req.TaskID); !ok {
		return
	}

	if err := h.dataService.AddTaskTag(req.TaskID, req.Tag); err != nil {
		log.Printf("Error adding tag: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to add tag", "", "")
		return
	}

	if task, err := h.dataService.GetTask(req.TaskID); err == nil {
		h.publishTask(services.EventUpdate, task, nil)
	}
	writeJSON(w, http.StatusOK, map[string]string{"taskId": req.TaskID, "tag": req.Tag})
}

// RemoveTaskTag detaches a tag from a task
func (h *DataHandler) RemoveTaskTag(w http.ResponseWriter, r *http.Request) {
	if !h.requireServiceKey(w) {
		return
	}

	taskID := r.URL.Query().Get("taskId")
	tag := r.URL.Query().Get("tag")
	if taskID == "" || tag == "" {
		writeError(w, http.StatusBadRequest, "taskId and tag are required", "", "")
		return
	}
	if _, ok := h.requireTaskOwner(w, r, taskID); !ok {
		return
	}

	if err := h.dataService.RemoveTaskTag(taskID, tag); err != nil {
		log.Printf("Error removing tag: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to remove tag", "", "")
		return
	}

	if task, err := h.dataService.GetTask(taskID); err == nil {
		h.publishTask(services.EventUpdate, task, nil)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetComments lists a task's comments oldest first
func (h *DataHandler) GetComments(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("taskId")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "missing taskId", "", "")
		return
	}
	if _, ok := h.requireTaskOwner(w, r, taskID); !ok {
		return
	}

	comments, err := h.dataService.ListComments(taskID)
	if err != nil {
		log.Printf("Error listing comments: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list comments", "", "")
		return
	}

	writeJSON(w, http.StatusOK, comments)
}

// CreateComment appends a comment to a task and broadcasts the updated task
func (h *DataHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	if !h.requireServiceKey(w) {
		return
	}

	userID, _ := requestUserID(r)

	var req struct {
		TaskID  string `json:"taskId"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request format", "", "")
		return
	}
	if req.TaskID == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "taskId and content are required", "", "")
		return
	}
	if _, ok := h.requireTaskOwner(w, r, req.TaskID); !ok {
		return
	}

	comment, err := h.dataService.CreateComment(req.TaskID, userID, req.Content)
	if err != nil {
		log.Printf("Error creating comment: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create comment", "", "")
		return
	}

	if task, err := h.dataService.GetTask(req.TaskID); err == nil {
		h.publishTask(services.EventUpdate, task, nil)
	}
	writeJSON(w, http.StatusOK, comment)
}
