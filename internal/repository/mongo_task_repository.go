package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskboard-server/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type mongoTaskRepository struct {
	tasks *mongo.Collection
}

func NewMongoTaskRepository(tasks *mongo.Collection) TaskRepository {
	return &mongoTaskRepository{tasks: tasks}
}

func (r *mongoTaskRepository) Create(ctx context.Context, task *domain.Task) error {
	if _, err := r.tasks.InsertOne(ctx, task); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (r *mongoTaskRepository) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	if err := r.tasks.FindOne(ctx, bson.M{"_id": id}).Decode(&task); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return &task, nil
}

func (r *mongoTaskRepository) List(ctx context.Context, assigneeID string, filter domain.TaskFilter) ([]*domain.Task, error) {
	query := bson.M{"assignedTo": assigneeID}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Priority != "" {
		query["priority"] = filter.Priority
	}
	return r.find(ctx, query)
}

func (r *mongoTaskRepository) ListDueBetween(ctx context.Context, from, to time.Time) ([]*domain.Task, error) {
	query := bson.M{
		"status":  bson.M{"$ne": domain.StatusDone},
		"dueDate": bson.M{"$gte": from.UTC(), "$lt": to.UTC()},
	}
	return r.find(ctx, query)
}

func (r *mongoTaskRepository) find(ctx context.Context, query bson.M) ([]*domain.Task, error) {
	cursor, err := r.tasks.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	var found []domain.Task
	if err := cursor.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}

	tasks := make([]*domain.Task, 0, len(found))
	for i := range found {
		tasks = append(tasks, &found[i])
	}
	return tasks, nil
}

func (r *mongoTaskRepository) Update(ctx context.Context, task *domain.Task) error {
	// createdAt is left as stored.
	update := bson.M{"$set": bson.M{
		"title":       task.Title,
		"description": task.Description,
		"status":      task.Status,
		"priority":    task.Priority,
		"assignedTo":  task.AssignedTo,
		"dueDate":     task.DueDate,
		"updatedAt":   task.UpdatedAt,
	}}

	res, err := r.tasks.UpdateOne(ctx, bson.M{"_id": task.ID}, update)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoTaskRepository) Delete(ctx context.Context, id string) error {
	res, err := r.tasks.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
