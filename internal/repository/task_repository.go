package repository

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"taskboard-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	FindByID(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context, assigneeID string, filter domain.TaskFilter) ([]*domain.Task, error)
	// ListDueBetween returns unfinished tasks with from <= dueDate < to.
	ListDueBetween(ctx context.Context, from, to time.Time) ([]*domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
	Delete(ctx context.Context, id string) error
}

// taskDoc stores the due date as YYYY-MM-DD so Mango range selectors
// compare it lexically.
type taskDoc struct {
	ID          string    `json:"_id"`
	Rev         string    `json:"_rev,omitempty"`
	Type        string    `json:"type"`
	TaskID      string    `json:"task_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	AssignedTo  string    `json:"assigned_to"`
	DueDate     string    `json:"due_date"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func taskDocID(id string) string { return fmt.Sprintf("task:%s", id) }

func newTaskDoc(t *domain.Task) taskDoc {
	return taskDoc{
		ID:          taskDocID(t.ID),
		Type:        "task",
		TaskID:      t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		AssignedTo:  t.AssignedTo,
		DueDate:     t.DueDate.UTC().Format(domain.DateLayout),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func (d *taskDoc) toDomain() *domain.Task {
	due, _ := domain.ParseDueDate(d.DueDate)
	return &domain.Task{
		ID:          d.TaskID,
		Title:       d.Title,
		Description: d.Description,
		Status:      domain.TaskStatus(d.Status),
		Priority:    domain.TaskPriority(d.Priority),
		AssignedTo:  d.AssignedTo,
		DueDate:     due,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// findPageSize caps each _find request. CouchDB applies a limit of 25 when
// none is sent, so queries always page with an explicit limit.
const findPageSize = 100

type taskRepository struct {
	client   *kivik.Client
	dbName   string
	pageSize int
}

func NewTaskRepository(client *kivik.Client, dbName string) TaskRepository {
	return &taskRepository{
		client:   client,
		dbName:   dbName,
		pageSize: findPageSize,
	}
}

func (r *taskRepository) Create(ctx context.Context, task *domain.Task) error {
	doc := newTaskDoc(task)
	if _, err := r.client.DB(r.dbName).Put(ctx, doc.ID, doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusConflict {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (r *taskRepository) getDoc(ctx context.Context, id string) (*taskDoc, error) {
	var doc taskDoc
	if err := r.client.DB(r.dbName).Get(ctx, taskDocID(id)).ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return &doc, nil
}

func (r *taskRepository) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	doc, err := r.getDoc(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *taskRepository) List(ctx context.Context, assigneeID string, filter domain.TaskFilter) ([]*domain.Task, error) {
	selector := map[string]interface{}{
		"type":        "task",
		"assigned_to": assigneeID,
	}
	if filter.Status != "" {
		selector["status"] = string(filter.Status)
	}
	if filter.Priority != "" {
		selector["priority"] = string(filter.Priority)
	}

	return r.find(ctx, selector)
}

func (r *taskRepository) ListDueBetween(ctx context.Context, from, to time.Time) ([]*domain.Task, error) {
	selector := map[string]interface{}{
		"type":   "task",
		"status": map[string]interface{}{"$ne": string(domain.StatusDone)},
		"due_date": map[string]interface{}{
			"$gte": from.UTC().Format(domain.DateLayout),
			"$lt":  to.UTC().Format(domain.DateLayout),
		},
	}

	return r.find(ctx, selector)
}

// find follows the _find bookmark until a page comes back short.
func (r *taskRepository) find(ctx context.Context, selector map[string]interface{}) ([]*domain.Task, error) {
	db := r.client.DB(r.dbName)

	tasks := []*domain.Task{}
	bookmark := ""
	for {
		query := map[string]interface{}{
			"selector": selector,
			"limit":    r.pageSize,
		}
		if bookmark != "" {
			query["bookmark"] = bookmark
		}

		page, next, err := findPage(ctx, db, query)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, page...)

		if len(page) < r.pageSize || next == "" || next == bookmark {
			return tasks, nil
		}
		bookmark = next
	}
}

func findPage(ctx context.Context, db *kivik.DB, query map[string]interface{}) ([]*domain.Task, string, error) {
	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		var doc taskDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, "", fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, doc.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to list tasks: %w", err)
	}

	meta, err := rows.Metadata()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read list metadata: %w", err)
	}

	return tasks, meta.Bookmark, nil
}

func (r *taskRepository) Update(ctx context.Context, task *domain.Task) error {
	db := r.client.DB(r.dbName)

	for attempt := 0; attempt < maxRevisionRetries; attempt++ {
		existing, err := r.getDoc(ctx, task.ID)
		if err != nil {
			return err
		}

		doc := newTaskDoc(task)
		doc.Rev = existing.Rev
		doc.CreatedAt = existing.CreatedAt

		_, err = db.Put(ctx, doc.ID, doc)
		if err == nil {
			return nil
		}
		if kivik.HTTPStatus(err) != http.StatusConflict {
			return fmt.Errorf("failed to update task: %w", err)
		}
	}

	return fmt.Errorf("failed to update task: too many revision conflicts")
}

func (r *taskRepository) Delete(ctx context.Context, id string) error {
	doc, err := r.getDoc(ctx, id)
	if err != nil {
		return err
	}

	if _, err := r.client.DB(r.dbName).Delete(ctx, doc.ID, doc.Rev); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}

	return nil
}
