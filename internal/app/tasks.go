package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"tasukeai/api/internal/search"
	"tasukeai/api/internal/store"
	"tasukeai/api/internal/util"
)

const taskPageSize = 100

// CreateTaskInput carries the fields of a new help request.
type CreateTaskInput struct {
	Category  int     `json:"category"`
	Place     string  `json:"place"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Date      string  `json:"date"`
	TimeSlot  int     `json:"time"`
	Text      string  `json:"text"`
}

// ListTasks returns the latest open tasks. The newest page is fetched first
// and tasks already in MESSAGING are dropped afterwards, so a page can come
// back shorter than the limit.
func (s *Service) ListTasks(ctx context.Context) ([]map[string]any, error) {
	tasks, err := s.store.ListTasks(ctx, taskPageSize)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		if task.Status == store.TaskMessaging {
			continue
		}
		items = append(items, taskPayload(task))
	}
	return items, nil
}

// CreateTask records a WAITING help request owned by the caller.
func (s *Service) CreateTask(ctx context.Context, session Session, input CreateTaskInput) (map[string]any, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required", nil)
	}
	task := store.Task{
		ID:        util.NewID("task"),
		OwnerUID:  session.UID,
		Category:  input.Category,
		Place:     strings.TrimSpace(input.Place),
		Address:   strings.TrimSpace(input.Address),
		Latitude:  input.Latitude,
		Longitude: input.Longitude,
		Date:      strings.TrimSpace(input.Date),
		TimeSlot:  input.TimeSlot,
		Text:      text,
		Status:    store.TaskWaiting,
		CreatedAt: time.Now(),
	}
	if err := s.store.InsertTask(ctx, task); err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexTask(taskRecord(task))
	}
	return taskPayload(task), nil
}

func taskRecord(task store.Task) search.TaskRecord {
	return search.TaskRecord{
		ID:       task.ID,
		Text:     task.Text,
		Place:    task.Place,
		Address:  task.Address,
		Category: task.Category,
		Status:   int(task.Status),
	}
}

// GetTask returns a task together with its owner's profile. An owner whose
// account no longer exists is shown as deactivated rather than failing the
// whole request.
func (s *Service) GetTask(ctx context.Context, taskID string) (map[string]any, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	payload := taskPayload(task)

	owner, err := s.store.GetUserByUID(ctx, task.OwnerUID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		payload["owner"] = map[string]any{
			"uid":         task.OwnerUID,
			"name":        "Deactivated user",
			"photoUrl":    "",
			"deactivated": true,
		}
		return payload, nil
	}
	payload["owner"] = map[string]any{
		"uid":         owner.UID,
		"name":        owner.Name,
		"photoUrl":    owner.ProfilePicURL,
		"deactivated": false,
	}
	return payload, nil
}

// SearchTasks runs a text search over task records.
func (s *Service) SearchTasks(q string, category, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Total: 0, Query: q}
	}
	return s.search.Search(search.Query{Text: q, Category: category, Limit: limit, Offset: offset})
}

func taskPayload(task store.Task) map[string]any {
	return map[string]any{
		"id":        task.ID,
		"uid":       task.OwnerUID,
		"category":  task.Category,
		"place":     task.Place,
		"address":   task.Address,
		"latitude":  task.Latitude,
		"longitude": task.Longitude,
		"date":      task.Date,
		"time":      task.TimeSlot,
		"text":      task.Text,
		"status":    int(task.Status),
		"createdAt": task.CreatedAt.UTC().Format(time.RFC3339),
	}
}
