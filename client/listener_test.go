package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/taskflow-app/taskflow/database"
	"github.com/taskflow-app/taskflow/services"
)

// eventServer is a scripted change-event endpoint: every connection
// receives the given events in order, then stays open.
func eventServer(t *testing.T, events []services.ChangeEvent) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		for _, event := range events {
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}

		// Hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func insertEvent(table string, entity any) services.ChangeEvent {
	payload, _ := json.Marshal(entity)
	return services.ChangeEvent{Table: table, EventType: services.EventInsert, New: payload}
}

func updateEvent(table string, entity any) services.ChangeEvent {
	payload, _ := json.Marshal(entity)
	return services.ChangeEvent{Table: table, EventType: services.EventUpdate, New: payload}
}

func deleteEvent(table string, entity any) services.ChangeEvent {
	payload, _ := json.Marshal(entity)
	return services.ChangeEvent{Table: table, EventType: services.EventDelete, Old: payload}
}

func TestListener_AppliesProjectEvents(t *testing.T) {
	server := eventServer(t, []services.ChangeEvent{
		insertEvent("projects", database.Project{ID: "p1", Name: "Demo", OwnerID: "u1"}),
		updateEvent("projects", map[string]string{"id": "p1", "name": "Renamed"}),
	})

	projects := NewStore[database.Project]()
	tasks := NewStore[database.Task]()
	listener := NewListener(server.URL, "test-token", projects, tasks, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Run(ctx)

	waitFor(t, func() bool {
		p, exists := projects.Get(ProjectScope, "p1")
		return exists && p.Name == "Renamed"
	})

	// Insert events default the derived fields the payload omits
	p, _ := projects.Get(ProjectScope, "p1")
	if p.Members != 1 {
		t.Errorf("expected defaulted members=1, got %d", p.Members)
	}
}

func TestListener_InsertDoesNotDuplicateReconciledEntity(t *testing.T) {
	server := eventServer(t, []services.ChangeEvent{
		insertEvent("projects", database.Project{ID: "p1", Name: "Demo"}),
		// Marker event so the test can tell the first was processed
		insertEvent("projects", database.Project{ID: "p2", Name: "Marker"}),
	})

	projects := NewStore[database.Project]()
	tasks := NewStore[database.Task]()

	// The optimistic path already reconciled p1 into the cache
	projects.Insert(ProjectScope, database.Project{ID: "p1", Name: "Demo"})

	listener := NewListener(server.URL, "test-token", projects, tasks, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Run(ctx)

	waitFor(t, func() bool {
		_, exists := projects.Get(ProjectScope, "p2")
		return exists
	})

	count := 0
	for _, p := range projects.List(ProjectScope) {
		if p.ID == "p1" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one p1 after echo of own insert, got %d", count)
	}
}

func TestListener_TaskDeleteWhileDetailOpen(t *testing.T) {
	server := eventServer(t, []services.ChangeEvent{
		deleteEvent("tasks", map[string]string{"id": "t1", "project_id": "p1"}),
	})

	projects := NewStore[database.Project]()
	tasks := NewStore[database.Task]()
	tasks.Load("p1", []database.Task{{ID: "t1", Title: "Doomed", ProjectID: "p1"}})

	listener := NewListener(server.URL, "test-token", projects, tasks, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Run(ctx)

	waitFor(t, func() bool { return tasks.Len("p1") == 0 })

	// A detail view reading the vanished record sees a clean miss
	if _, exists := tasks.Get("p1", "t1"); exists {
		t.Error("expected t1 gone from cache")
	}
}

func TestListener_TaskChangesScheduleCoalescedReload(t *testing.T) {
	server := eventServer(t, []services.ChangeEvent{
		insertEvent("tasks", database.Task{ID: "t1", Title: "A", ProjectID: "p1"}),
		insertEvent("tasks", database.Task{ID: "t2", Title: "B", ProjectID: "p1"}),
		insertEvent("tasks", database.Task{ID: "t3", Title: "C", ProjectID: "p1"}),
	})

	projects := NewStore[database.Project]()
	tasks := NewStore[database.Task]()

	var reloads int32
	listener := NewListener(server.URL, "test-token", projects, tasks, func() {
		atomic.AddInt32(&reloads, 1)
	})
	listener.reloadDelay = 30 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Run(ctx)

	waitFor(t, func() bool { return tasks.Len("p1") == 3 })
	waitFor(t, func() bool { return atomic.LoadInt32(&reloads) >= 1 })

	// Three rapid events collapse into a single reload
	time.Sleep(3 * listener.reloadDelay)
	if got := atomic.LoadInt32(&reloads); got != 1 {
		t.Errorf("expected one coalesced reload, got %d", got)
	}
}

func TestListener_MaintainsProjectTaskCounts(t *testing.T) {
	done := services.ChangeEvent{
		Table:     "tasks",
		EventType: services.EventUpdate,
		New:       mustJSON(t, map[string]string{"id": "t1", "project_id": "p1", "status": database.StatusDone}),
		Old:       mustJSON(t, map[string]string{"id": "t1", "project_id": "p1", "status": database.StatusTodo}),
	}
	server := eventServer(t, []services.ChangeEvent{
		insertEvent("tasks", database.Task{ID: "t1", Title: "A", ProjectID: "p1", Status: database.StatusTodo}),
		insertEvent("tasks", database.Task{ID: "t2", Title: "B", ProjectID: "p1", Status: database.StatusDone}),
		done,
		deleteEvent("tasks", map[string]string{"id": "t2", "project_id": "p1", "status": database.StatusDone}),
	})

	projects := NewStore[database.Project]()
	tasks := NewStore[database.Task]()
	projects.Load(ProjectScope, []database.Project{{ID: "p1", Name: "Demo", Members: 1}})

	listener := NewListener(server.URL, "test-token", projects, tasks, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Run(ctx)

	// Two inserts (one done), t1 flipped to done, t2 deleted: 1 task, 1 done
	waitFor(t, func() bool {
		p, exists := projects.Get(ProjectScope, "p1")
		return exists && p.Tasks.Total == 1 && p.Tasks.Completed == 1
	})

	if tasks.Len("p1") != 1 {
		t.Errorf("expected one task left, got %d", tasks.Len("p1"))
	}
}

func TestListener_RedeliveredInsertBumpsCountsOnce(t *testing.T) {
	event := insertEvent("tasks", database.Task{ID: "t1", Title: "A", ProjectID: "p1", Status: database.StatusDone})
	server := eventServer(t, []services.ChangeEvent{
		event,
		event, // redelivery of the same change
		insertEvent("projects", database.Project{ID: "marker", Name: "Marker"}),
	})

	projects := NewStore[database.Project]()
	tasks := NewStore[database.Task]()
	projects.Load(ProjectScope, []database.Project{{ID: "p1", Name: "Demo", Members: 1}})

	listener := NewListener(server.URL, "test-token", projects, tasks, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Run(ctx)

	// The marker arriving means both task events were handled
	waitFor(t, func() bool {
		_, exists := projects.Get(ProjectScope, "marker")
		return exists
	})

	p, _ := projects.Get(ProjectScope, "p1")
	if p.Tasks.Total != 1 || p.Tasks.Completed != 1 {
		t.Errorf("expected counts 1/1 after redelivered insert, got %+v", p.Tasks)
	}
	if tasks.Len("p1") != 1 {
		t.Errorf("expected one cached task, got %d", tasks.Len("p1"))
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	return payload
}

func TestListener_ReconnectsAfterDrop(t *testing.T) {
	var connections int32
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := atomic.AddInt32(&connections, 1)

		if n == 1 {
			// Drop the first connection immediately after one event
			conn.WriteJSON(insertEvent("projects", database.Project{ID: "p1", Name: "First"}))
			conn.Close()
			return
		}

		conn.WriteJSON(insertEvent("projects", database.Project{ID: "p2", Name: "Second"}))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	projects := NewStore[database.Project]()
	tasks := NewStore[database.Task]()
	listener := NewListener(server.URL, "test-token", projects, tasks, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Run(ctx)

	waitFor(t, func() bool {
		_, exists := projects.Get(ProjectScope, "p2")
		return exists
	})

	if atomic.LoadInt32(&connections) < 2 {
		t.Error("expected the listener to reconnect after the drop")
	}
}
