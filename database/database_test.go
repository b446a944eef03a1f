package database

import (
	"path/filepath"
	"testing"
)

// setupTestService creates a DataService over a throwaway database
// file together with a provisioned owner profile.
func setupTestService(t *testing.T) (*DataService, *Profile) {
	t.Helper()

	db, err := InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	service := NewDataService(db)
	owner, err := service.EnsureProfile("owner@example.com")
	if err != nil {
		t.Fatalf("Failed to provision profile: %v", err)
	}
	return service, owner
}

func createTestProject(t *testing.T, s *DataService, ownerID, name string) *Project {
	t.Helper()
	project, err := s.CreateProject(&Project{Name: name, OwnerID: ownerID})
	if err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}
	return project
}

func TestEnsureProfile_Idempotent(t *testing.T) {
	service, owner := setupTestService(t)

	again, err := service.EnsureProfile("owner@example.com")
	if err != nil {
		t.Fatalf("EnsureProfile failed: %v", err)
	}
	if again.ID != owner.ID {
		t.Errorf("expected the same profile on repeat login, got %s vs %s", again.ID, owner.ID)
	}
}

func TestProjectCRUD(t *testing.T) {
	service, owner := setupTestService(t)

	project := createTestProject(t, service, owner.ID, "Demo")
	if project.ID == "" {
		t.Fatal("expected server-assigned id")
	}
	if project.Members != 1 {
		t.Errorf("expected derived members=1, got %d", project.Members)
	}
	if project.Tasks.Total != 0 || project.Tasks.Completed != 0 {
		t.Errorf("expected empty task summary, got %+v", project.Tasks)
	}

	name := "Renamed"
	updated, err := service.UpdateProject(project.ID, &ProjectUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateProject failed: %v", err)
	}
	if updated.Name != "Renamed" {
		t.Errorf("expected renamed project, got %q", updated.Name)
	}

	if err := service.DeleteProject(project.ID); err != nil {
		t.Fatalf("DeleteProject failed: %v", err)
	}
	if err := service.DeleteProject(project.ID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestProjectValidation(t *testing.T) {
	service, owner := setupTestService(t)

	if _, err := service.CreateProject(&Project{OwnerID: owner.ID}); err == nil {
		t.Error("expected error for missing name")
	}
	if _, err := service.CreateProject(&Project{Name: "No owner"}); err == nil {
		t.Error("expected error for missing owner_id")
	}
}

func TestListProjects_DerivedSummary(t *testing.T) {
	service, owner := setupTestService(t)
	project := createTestProject(t, service, owner.ID, "Demo")

	for _, status := range []string{StatusTodo, StatusInProgress, StatusDone} {
		_, err := service.CreateTask(&Task{Title: "Task " + status, Status: status, Priority: PriorityLow, ProjectID: project.ID})
		if err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
	}

	projects, err := service.ListProjects(owner.ID)
	if err != nil {
		t.Fatalf("ListProjects failed: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("expected one project, got %d", len(projects))
	}
	if projects[0].Tasks.Total != 3 || projects[0].Tasks.Completed != 1 {
		t.Errorf("expected summary 3/1, got %+v", projects[0].Tasks)
	}
}

func TestTaskCRUD(t *testing.T) {
	service, owner := setupTestService(t)
	project := createTestProject(t, service, owner.ID, "Demo")

	task, err := service.CreateTask(&Task{Title: "Ship it", ProjectID: project.ID})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.Status != StatusTodo || task.Priority != PriorityMedium {
		t.Errorf("expected defaulted status/priority, got %s/%s", task.Status, task.Priority)
	}
	if task.Tags == nil || len(task.Tags) != 0 {
		t.Errorf("expected empty tag list, got %v", task.Tags)
	}

	status := StatusDone
	updated, err := service.UpdateTask(task.ID, &TaskUpdate{Status: &status})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if updated.Status != StatusDone {
		t.Errorf("expected status done, got %q", updated.Status)
	}

	bogus := "urgent-ish"
	if _, err := service.UpdateTask(task.ID, &TaskUpdate{Priority: &bogus}); err == nil {
		t.Error("expected invalid priority to be rejected")
	}

	if err := service.DeleteTask(task.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}

	tasks, err := service.ListTasks(project.ID)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected no tasks after delete, got %d", len(tasks))
	}
}

func TestTaskAssigneeDenormalized(t *testing.T) {
	service, owner := setupTestService(t)
	project := createTestProject(t, service, owner.ID, "Demo")

	task, err := service.CreateTask(&Task{Title: "Assigned", ProjectID: project.ID, AssigneeID: owner.ID})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.Assignee == nil || task.Assignee.ID != owner.ID {
		t.Fatalf("expected denormalized assignee, got %+v", task.Assignee)
	}
}

func TestTaskTags_DuplicateAddIsNoop(t *testing.T) {
	service, owner := setupTestService(t)
	project := createTestProject(t, service, owner.ID, "Demo")
	task, err := service.CreateTask(&Task{Title: "Tagged", ProjectID: project.ID})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	for _, tag := range []string{"backend", "backend", "urgent"} {
		if err := service.AddTaskTag(task.ID, tag); err != nil {
			t.Fatalf("AddTaskTag failed: %v", err)
		}
	}

	tags, err := service.GetTaskTags(task.ID)
	if err != nil {
		t.Fatalf("GetTaskTags failed: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("expected two tags after duplicate add, got %v", tags)
	}

	// Removing an absent tag is a no-op
	if err := service.RemoveTaskTag(task.ID, "missing"); err != nil {
		t.Fatalf("RemoveTaskTag failed: %v", err)
	}
	if err := service.RemoveTaskTag(task.ID, "backend"); err != nil {
		t.Fatalf("RemoveTaskTag failed: %v", err)
	}

	tags, _ = service.GetTaskTags(task.ID)
	if len(tags) != 1 || tags[0] != "urgent" {
		t.Errorf("expected [urgent], got %v", tags)
	}
}

func TestComments_CountReflectedOnTask(t *testing.T) {
	service, owner := setupTestService(t)
	project := createTestProject(t, service, owner.ID, "Demo")
	task, err := service.CreateTask(&Task{Title: "Discussed", ProjectID: project.ID})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if _, err := service.CreateComment(task.ID, owner.ID, "first"); err != nil {
		t.Fatalf("CreateComment failed: %v", err)
	}
	if _, err := service.CreateComment(task.ID, owner.ID, "second"); err != nil {
		t.Fatalf("CreateComment failed: %v", err)
	}

	got, err := service.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Comments != 2 {
		t.Errorf("expected comment count 2, got %d", got.Comments)
	}

	comments, err := service.ListComments(task.ID)
	if err != nil {
		t.Fatalf("ListComments failed: %v", err)
	}
	if len(comments) != 2 || comments[0].Content != "first" {
		t.Errorf("expected oldest-first comments, got %v", comments)
	}
	if comments[0].Author == nil || comments[0].Author.ID != owner.ID {
		t.Errorf("expected denormalized author, got %+v", comments[0].Author)
	}
}

func TestDeleteProject_CascadesToTasks(t *testing.T) {
	service, owner := setupTestService(t)
	project := createTestProject(t, service, owner.ID, "Demo")
	task, err := service.CreateTask(&Task{Title: "Doomed", ProjectID: project.ID})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if err := service.AddTaskTag(task.ID, "tag"); err != nil {
		t.Fatalf("AddTaskTag failed: %v", err)
	}

	if err := service.DeleteProject(project.ID); err != nil {
		t.Fatalf("DeleteProject failed: %v", err)
	}

	if _, err := service.GetTask(task.ID); err != ErrNotFound {
		t.Errorf("expected task removed by cascade, got %v", err)
	}
}

func TestProfileUpdate_Partial(t *testing.T) {
	service, owner := setupTestService(t)

	name := "Ada"
	bio := "writes software"
	updated, err := service.UpdateProfile(owner.ID, &ProfileUpdate{Name: &name, Bio: &bio})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if updated.Name != "Ada" || updated.Bio != "writes software" {
		t.Errorf("expected patched fields, got %+v", updated)
	}
	if updated.Email != owner.Email {
		t.Errorf("expected email untouched, got %q", updated.Email)
	}
}
