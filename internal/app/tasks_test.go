package app

import (
	"context"
	"testing"
	"time"

	"tasukeai/api/internal/search"
	"tasukeai/api/internal/store"
)

type recordingSearcher struct {
	indexed  []search.TaskRecord
	deleted  []string
	response search.Response
	lastQ    search.Query
}

func (r *recordingSearcher) Search(q search.Query) search.Response {
	r.lastQ = q
	return r.response
}

func (r *recordingSearcher) IndexTask(t search.TaskRecord) {
	r.indexed = append(r.indexed, t)
}

func (r *recordingSearcher) DeleteTask(id string) {
	r.deleted = append(r.deleted, id)
}

func TestCreateTaskStartsWaiting(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	searcher := &recordingSearcher{}
	svc.search = searcher

	payload, err := svc.CreateTask(context.Background(), Session{UID: "usr_owner"}, CreateTaskInput{
		Category: 2,
		Place:    "Shibuya Station",
		Text:     "  Help me carry boxes  ",
	})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if payload["status"] != int(store.TaskWaiting) {
		t.Fatalf("expected WAITING, got %v", payload["status"])
	}
	if payload["text"] != "Help me carry boxes" {
		t.Fatalf("expected trimmed text, got %v", payload["text"])
	}
	taskID, _ := payload["id"].(string)
	stored, err := fs.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if payload["createdAt"] != stored.CreatedAt.UTC().Format(time.RFC3339) {
		t.Fatalf("expected response createdAt to match the stored row, got %v vs %v",
			payload["createdAt"], stored.CreatedAt.UTC().Format(time.RFC3339))
	}
	if len(searcher.indexed) != 1 {
		t.Fatalf("expected one index call, got %d", len(searcher.indexed))
	}
	if searcher.indexed[0].Text != "Help me carry boxes" || searcher.indexed[0].Category != 2 {
		t.Fatalf("unexpected indexed record %+v", searcher.indexed[0])
	}
}

func TestCreateTaskRequiresText(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.CreateTask(context.Background(), Session{UID: "usr_owner"}, CreateTaskInput{Text: "   "})
	domainErr := domainErrorFrom(t, err)
	if domainErr.Status != 422 {
		t.Fatalf("expected 422, got %d", domainErr.Status)
	}
}

func TestListTasksHidesMessagingTasks(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	now := time.Now()
	fs.seedTask(store.Task{ID: "task_open", Text: "open", Status: store.TaskWaiting, CreatedAt: now})
	fs.seedTask(store.Task{ID: "task_busy", Text: "busy", Status: store.TaskMessaging, CreatedAt: now.Add(time.Second)})
	fs.seedTask(store.Task{ID: "task_done", Text: "done", Status: store.TaskConcluded, CreatedAt: now.Add(2 * time.Second)})

	items, err := svc.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(items))
	}
	for _, item := range items {
		if item["id"] == "task_busy" {
			t.Fatal("expected MESSAGING task to be hidden")
		}
	}
}

func TestGetTaskIncludesOwner(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	fs.seedUser(store.User{UID: "usr_owner", Name: "Aki", ProfilePicURL: "https://img.example.com/aki.png"})
	fs.seedTask(store.Task{ID: "task_1", OwnerUID: "usr_owner", Text: "help", Status: store.TaskWaiting})

	payload, err := svc.GetTask(context.Background(), "task_1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	owner := payload["owner"].(map[string]any)
	if owner["name"] != "Aki" || owner["deactivated"] != false {
		t.Fatalf("unexpected owner %v", owner)
	}
}

func TestGetTaskDeactivatedOwner(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	fs.seedTask(store.Task{ID: "task_1", OwnerUID: "usr_gone", Text: "help", Status: store.TaskWaiting})

	payload, err := svc.GetTask(context.Background(), "task_1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	owner := payload["owner"].(map[string]any)
	if owner["deactivated"] != true || owner["name"] != "Deactivated user" {
		t.Fatalf("unexpected owner %v", owner)
	}
}

func TestSearchTasksWithoutBackend(t *testing.T) {
	svc := newTestService(newFakeStore())
	response := svc.SearchTasks("boxes", 0, 20, 0)
	if response.Total != 0 || len(response.Results) != 0 {
		t.Fatalf("expected empty response, got %+v", response)
	}
	if response.Results == nil {
		t.Fatal("expected non-nil results slice")
	}
}

func TestSearchTasksPassesQuery(t *testing.T) {
	svc := newTestService(newFakeStore())
	searcher := &recordingSearcher{response: search.Response{Results: []search.Result{}, Total: 0, Query: "boxes"}}
	svc.search = searcher

	svc.SearchTasks("boxes", 2, 10, 5)
	if searcher.lastQ.Text != "boxes" || searcher.lastQ.Category != 2 || searcher.lastQ.Limit != 10 || searcher.lastQ.Offset != 5 {
		t.Fatalf("unexpected query %+v", searcher.lastQ)
	}
}
