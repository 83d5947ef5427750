package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"taskboard-server/internal/domain"
	"taskboard-server/internal/events"
	"taskboard-server/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TaskService scopes every operation to the calling user: a task is
// visible to and mutable by its assignee only.
type TaskService struct {
	taskRepo  repository.TaskRepository
	publisher events.Publisher
	validate  *validator.Validate
	log       logrus.FieldLogger
}

func NewTaskService(taskRepo repository.TaskRepository, publisher events.Publisher, log logrus.FieldLogger) *TaskService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &TaskService{
		taskRepo:  taskRepo,
		publisher: publisher,
		validate:  validator.New(),
		log:       log.WithField("component", "tasks"),
	}
}

func assigneeOf(user *domain.User) domain.Assignee {
	return domain.Assignee{ID: user.ID, Username: user.Username}
}

func (s *TaskService) List(ctx context.Context, user *domain.User, filter domain.TaskFilter) ([]*domain.TaskResponse, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrValidation, filter.Priority)
	}

	tasks, err := s.taskRepo.List(ctx, user.ID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	SortTasks(tasks)

	assignee := assigneeOf(user)
	resp := make([]*domain.TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, domain.NewTaskResponse(t, assignee))
	}
	return resp, nil
}

func (s *TaskService) Get(ctx context.Context, user *domain.User, id string) (*domain.TaskResponse, error) {
	task, err := s.owned(ctx, user, id)
	if err != nil {
		return nil, err
	}
	return domain.NewTaskResponse(task, assigneeOf(user)), nil
}

func (s *TaskService) Create(ctx context.Context, user *domain.User, req *domain.CreateTaskRequest) (*domain.TaskResponse, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.DueDate = strings.TrimSpace(req.DueDate)

	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	due, err := domain.ParseDueDate(req.DueDate)
	if err != nil {
		return nil, fmt.Errorf("%w: dueDate must be a date formatted %s", ErrValidation, domain.DateLayout)
	}

	status := req.Status
	if status == "" {
		status = domain.StatusTodo
	}
	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}

	now := time.Now().UTC()
	task := &domain.Task{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Description: req.Description,
		Status:      status,
		Priority:    priority,
		AssignedTo:  user.ID,
		DueDate:     due,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	resp := domain.NewTaskResponse(task, assigneeOf(user))
	s.publish(ctx, domain.TaskCreated, user.ID, task.ID, resp)
	return resp, nil
}

func (s *TaskService) Update(ctx context.Context, user *domain.User, id string, req *domain.UpdateTaskRequest) (*domain.TaskResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	task, err := s.owned(ctx, user, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title is required", ErrValidation)
		}
		task.Title = title
	}
	if req.Description != nil {
		task.Description = strings.TrimSpace(*req.Description)
	}
	if req.Status != nil {
		task.Status = *req.Status
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.DueDate != nil {
		due, err := domain.ParseDueDate(*req.DueDate)
		if err != nil {
			return nil, fmt.Errorf("%w: dueDate must be a date formatted %s", ErrValidation, domain.DateLayout)
		}
		task.DueDate = due
	}
	task.UpdatedAt = time.Now().UTC()

	if err := s.taskRepo.Update(ctx, task); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: task not found", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	resp := domain.NewTaskResponse(task, assigneeOf(user))
	s.publish(ctx, domain.TaskUpdated, user.ID, task.ID, resp)
	return resp, nil
}

func (s *TaskService) Delete(ctx context.Context, user *domain.User, id string) error {
	if _, err := s.owned(ctx, user, id); err != nil {
		return err
	}

	if err := s.taskRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: task not found", ErrNotFound)
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}

	s.publish(ctx, domain.TaskDeleted, user.ID, id, nil)
	return nil
}

// owned loads a task and hides tasks of other users behind ErrNotFound.
func (s *TaskService) owned(ctx context.Context, user *domain.User, id string) (*domain.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: task not found", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}

	if task.AssignedTo != user.ID {
		return nil, fmt.Errorf("%w: task not found", ErrNotFound)
	}

	return task, nil
}

func (s *TaskService) publish(ctx context.Context, kind domain.TaskEventType, userID, taskID string, task *domain.TaskResponse) {
	event := domain.TaskEvent{
		Type:       kind,
		UserID:     userID,
		TaskID:     taskID,
		Task:       task,
		OccurredAt: time.Now().UTC(),
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"event":   kind,
			"task_id": taskID,
		}).Warn("failed to publish task event")
	}
}

// SortTasks orders tasks by due date, then creation time.
func SortTasks(tasks []*domain.Task) {
	slices.SortStableFunc(tasks, func(a, b *domain.Task) int {
		if c := a.DueDate.Compare(b.DueDate); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
