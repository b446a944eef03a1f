package client

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/taskflow-app/taskflow/database"
	"github.com/taskflow-app/taskflow/services"
)

const (
	// Delay before reloading the project list after a task change, so
	// several rapid changes collapse into one reload
	statsReloadDelay = 500 * time.Millisecond

	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Listener subscribes to the backend's change channel and applies
// inserts, updates and deletes to the same stores the coordinator
// mutates, keeping every open session consistent without polling.
//
// Only events occurring after the subscription attaches are delivered;
// a full load must precede Run to avoid missing state.
type Listener struct {
	wsURL    string
	token    string
	projects *Store[database.Project]
	tasks    *Store[database.Task]

	// reloadProjects refreshes the project list so derived task
	// statistics catch up; typically Coordinator.LoadProjects.
	reloadProjects func()

	reloadDelay time.Duration

	mu          sync.Mutex
	reloadTimer *time.Timer
}

// NewListener wires the listener to the shared stores. baseURL is the
// server's HTTP base URL; the websocket endpoint is derived from it.
func NewListener(baseURL, token string, projects *Store[database.Project], tasks *Store[database.Task], reloadProjects func()) *Listener {
	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/api/ws"
	return &Listener{
		wsURL:          wsURL,
		token:          token,
		projects:       projects,
		tasks:          tasks,
		reloadProjects: reloadProjects,
		reloadDelay:    statsReloadDelay,
	}
}

// Run connects and processes change events until ctx is cancelled,
// reconnecting with capped exponential backoff after any drop. A
// disconnect would otherwise silently stop all live updates.
func (l *Listener) Run(ctx context.Context) {
	defer l.stopReloadTimer()

	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		header := http.Header{"Authorization": {"Bearer " + l.token}}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.wsURL, header)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Realtime connect failed, retrying in %s: %v", backoff, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = initialBackoff
		l.readLoop(ctx, conn)
	}
}

func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	// Unblock the read when the listener is stopped
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var event services.ChangeEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() == nil {
				log.Printf("Realtime connection lost: %v", err)
			}
			return
		}
		l.handleEvent(event)
	}
}

type eventRef struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Status    string `json:"status"`
}

func (l *Listener) handleEvent(event services.ChangeEvent) {
	switch event.Table {
	case "projects":
		l.handleProjectEvent(event)
	case "tasks":
		l.handleTaskEvent(event)
	default:
		log.Printf("Ignoring change event for unknown table %q", event.Table)
	}
}

func (l *Listener) handleProjectEvent(event services.ChangeEvent) {
	switch event.EventType {
	case services.EventInsert:
		var project database.Project
		if err := json.Unmarshal(event.New, &project); err != nil || project.ID == "" {
			log.Printf("Malformed project insert event: %v", err)
			return
		}
		if project.Members == 0 {
			project.Members = 1
		}
		// The optimistic path may already have reconciled this id;
		// inserting again would violate the one-entity-per-id invariant
		if _, exists := l.projects.Get(ProjectScope, project.ID); exists {
			return
		}
		l.projects.Insert(ProjectScope, project)

	case services.EventUpdate:
		var ref eventRef
		if err := json.Unmarshal(event.New, &ref); err != nil || ref.ID == "" {
			log.Printf("Malformed project update event: %v", err)
			return
		}
		l.projects.Patch(ProjectScope, ref.ID, event.New)

	case services.EventDelete:
		var ref eventRef
		if err := json.Unmarshal(event.Old, &ref); err != nil || ref.ID == "" {
			log.Printf("Malformed project delete event: %v", err)
			return
		}
		l.projects.Remove(ProjectScope, ref.ID)
	}
}

func (l *Listener) handleTaskEvent(event services.ChangeEvent) {
	switch event.EventType {
	case services.EventInsert:
		var task database.Task
		if err := json.Unmarshal(event.New, &task); err != nil || task.ID == "" || task.ProjectID == "" {
			log.Printf("Malformed task insert event: %v", err)
			return
		}
		if task.Tags == nil {
			task.Tags = []string{}
		}
		// Dedupe first so a redelivered event cannot bump the counts
		// twice; own creates echo back here and rely on the reload
		if _, exists := l.tasks.Get(task.ProjectID, task.ID); exists {
			l.scheduleStatsReload()
			return
		}
		completed := 0
		if task.Status == database.StatusDone {
			completed = 1
		}
		l.adjustProjectCounts(task.ProjectID, 1, completed)
		l.tasks.Insert(task.ProjectID, task)

	case services.EventUpdate:
		var ref eventRef
		if err := json.Unmarshal(event.New, &ref); err != nil || ref.ID == "" {
			log.Printf("Malformed task update event: %v", err)
			return
		}
		// Old is only present for genuine row updates; tag and comment
		// changes arrive without it and cannot move the status counts
		if len(event.Old) > 0 {
			var old eventRef
			if err := json.Unmarshal(event.Old, &old); err == nil {
				delta := 0
				if ref.Status == database.StatusDone && old.Status != database.StatusDone {
					delta = 1
				} else if ref.Status != database.StatusDone && old.Status == database.StatusDone {
					delta = -1
				}
				l.adjustProjectCounts(ref.ProjectID, 0, delta)
			}
		}
		l.tasks.Patch(ref.ProjectID, ref.ID, event.New)

	case services.EventDelete:
		var ref eventRef
		if err := json.Unmarshal(event.Old, &ref); err != nil || ref.ID == "" {
			log.Printf("Malformed task delete event: %v", err)
			return
		}
		completed := 0
		if ref.Status == database.StatusDone {
			completed = 1
		}
		l.adjustProjectCounts(ref.ProjectID, -1, -completed)
		l.tasks.Remove(ref.ProjectID, ref.ID)
	}

	// The counts above keep the cached summary current; the delayed
	// reload reconverges with the authoritative server aggregates in
	// case any event was missed
	l.scheduleStatsReload()
}

// adjustProjectCounts maintains the cached project's derived task
// summary as child task events arrive
func (l *Listener) adjustProjectCounts(projectID string, dTotal, dCompleted int) {
	if dTotal == 0 && dCompleted == 0 {
		return
	}
	project, ok := l.projects.Get(ProjectScope, projectID)
	if !ok {
		return
	}
	summary := database.TasksSummary{
		Total:     project.Tasks.Total + dTotal,
		Completed: project.Tasks.Completed + dCompleted,
	}
	l.projects.Patch(ProjectScope, projectID, map[string]any{"tasks": summary})
}

func (l *Listener) scheduleStatsReload() {
	if l.reloadProjects == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.reloadTimer != nil {
		l.reloadTimer.Reset(l.reloadDelay)
		return
	}
	l.reloadTimer = time.AfterFunc(l.reloadDelay, func() {
		l.mu.Lock()
		l.reloadTimer = nil
		l.mu.Unlock()
		l.reloadProjects()
	})
}

func (l *Listener) stopReloadTimer() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reloadTimer != nil {
		l.reloadTimer.Stop()
		l.reloadTimer = nil
	}
}
