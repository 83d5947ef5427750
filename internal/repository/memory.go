package repository

import (
	"context"
	"sync"
	"time"

	"taskboard-server/internal/domain"
)

// NewMemoryStore returns a process-local store. Records are copied on the
// way in and out, so callers never share state with the store.
func NewMemoryStore() *Store {
	return &Store{
		Users:  &memoryUserRepository{users: make(map[string]domain.User)},
		Tasks:  &memoryTaskRepository{tasks: make(map[string]domain.Task)},
		driver: "memory",
	}
}

type memoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func (r *memoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; ok {
		return ErrDuplicate
	}
	for _, u := range r.users {
		if u.Email == user.Email {
			return ErrDuplicate
		}
	}

	r.users[user.ID] = *user
	return nil
}

func (r *memoryUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r *memoryUserRepository) findBy(match func(u *domain.User) bool) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Oldest match wins.
	var found *domain.User
	for _, u := range r.users {
		if match(&u) && (found == nil || u.CreatedAt.Before(found.CreatedAt)) {
			u := u
			found = &u
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (r *memoryUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findBy(func(u *domain.User) bool { return u.Email == email })
}

func (r *memoryUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findBy(func(u *domain.User) bool { return u.Username == username })
}

func (r *memoryUserRepository) FindByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error) {
	return findByEmailOrUsername(ctx, r, email, username)
}

func (r *memoryUserRepository) SetRefreshToken(ctx context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.RefreshToken = token
	u.UpdatedAt = time.Now()
	r.users[userID] = u
	return nil
}

func (r *memoryUserRepository) ReplaceRefreshToken(ctx context.Context, userID, oldToken, newToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok || oldToken == "" || u.RefreshToken != oldToken {
		return ErrNotFound
	}
	u.RefreshToken = newToken
	u.UpdatedAt = time.Now()
	r.users[userID] = u
	return nil
}

type memoryTaskRepository struct {
	mu    sync.RWMutex
	tasks map[string]domain.Task
}

func (r *memoryTaskRepository) Create(ctx context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[task.ID]; ok {
		return ErrDuplicate
	}
	r.tasks[task.ID] = *task
	return nil
}

func (r *memoryTaskRepository) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (r *memoryTaskRepository) List(ctx context.Context, assigneeID string, filter domain.TaskFilter) ([]*domain.Task, error) {
	return r.collect(func(t *domain.Task) bool {
		return t.AssignedTo == assigneeID && filter.Matches(t)
	}), nil
}

func (r *memoryTaskRepository) ListDueBetween(ctx context.Context, from, to time.Time) ([]*domain.Task, error) {
	return r.collect(func(t *domain.Task) bool {
		return t.Status != domain.StatusDone && !t.DueDate.Before(from) && t.DueDate.Before(to)
	}), nil
}

func (r *memoryTaskRepository) collect(match func(t *domain.Task) bool) []*domain.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := []*domain.Task{}
	for _, t := range r.tasks {
		if match(&t) {
			found := t
			tasks = append(tasks, &found)
		}
	}
	return tasks
}

func (r *memoryTaskRepository) Update(ctx context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[task.ID]; !ok {
		return ErrNotFound
	}
	r.tasks[task.ID] = *task
	return nil
}

func (r *memoryTaskRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}
