// Package board keeps a client-side Kanban view of the user's tasks.
//
// Mutations are applied locally before the server confirms them. Every task
// carries a small state machine (Synced, PendingCreate, PendingUpdate,
// PendingDelete) together with the last server-confirmed copy. A failed
// request puts back the copy the task had when that request began. Requests
// are fenced by a per-board operation sequence so that a response for an
// older operation never overwrites the effect of a newer one.
package board

import (
	"context"
	"errors"
	"strings"
	"sync"

	"taskboard-server/pkg/client"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("task not found")
	ErrPending       = errors.New("task is still being created")
	ErrInvalidStatus = errors.New("invalid status")
)

// TaskAPI is the subset of client.Client the board needs.
type TaskAPI interface {
	ListTasks(ctx context.Context, filter client.TaskFilter) ([]client.Task, error)
	CreateTask(ctx context.Context, input client.TaskInput) (*client.Task, error)
	UpdateTask(ctx context.Context, id string, patch client.TaskPatch) (*client.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Notifier shows a transient message to the user.
type Notifier interface {
	Notify(message string)
}

type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

type State int

const (
	Synced State = iota
	PendingCreate
	PendingUpdate
	PendingDelete
)

func (s State) String() string {
	switch s {
	case Synced:
		return "synced"
	case PendingCreate:
		return "pending-create"
	case PendingUpdate:
		return "pending-update"
	case PendingDelete:
		return "pending-delete"
	default:
		return "unknown"
	}
}

// Column is one of the three fixed board columns.
type Column struct {
	Status string
	Title  string
	Tasks  []client.Task
}

var columns = []struct{ status, title string }{
	{client.StatusTodo, "To Do"},
	{client.StatusInProgress, "In Progress"},
	{client.StatusDone, "Done"},
}

func validStatus(status string) bool {
	for _, c := range columns {
		if c.status == status {
			return true
		}
	}
	return false
}

type entry struct {
	task  client.Task
	state State

	// confirmed is the last copy the server acknowledged, confirmedSeq the
	// operation that produced it.
	confirmed    client.Task
	confirmedSeq uint64

	seq      uint64
	inflight int
}

// Board is safe for concurrent use. The lock is never held across a
// network call.
type Board struct {
	mu       sync.Mutex
	api      TaskAPI
	notifier Notifier
	entries  map[string]*entry
	order    []string
	seq      uint64

	// removed maps tasks whose deletion the server confirmed to the
	// operation that deleted them.
	removed map[string]uint64
}

func New(api TaskAPI, notifier Notifier) *Board {
	if notifier == nil {
		notifier = NotifierFunc(func(string) {})
	}
	return &Board{
		api:      api,
		notifier: notifier,
		entries:  make(map[string]*entry),
		removed:  make(map[string]uint64),
	}
}

// Load replaces the board contents with the server's task list. Work the
// listing cannot reflect survives the reload: tasks with requests still in
// flight, and tasks created, changed or deleted after the listing was
// requested.
func (b *Board) Load(ctx context.Context) error {
	b.mu.Lock()
	mark := b.seq
	b.mu.Unlock()

	tasks, err := b.api.ListTasks(ctx, client.TaskFilter{})
	if err != nil {
		b.notifier.Notify("Failed to load tasks")
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entries := make(map[string]*entry, len(tasks))
	order := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if b.removed[t.ID] > mark {
			continue
		}
		if e, ok := b.entries[t.ID]; ok && e.newerThan(mark) {
			entries[t.ID] = e
		} else {
			entries[t.ID] = &entry{task: t, confirmed: t, state: Synced}
		}
		order = append(order, t.ID)
	}
	for _, id := range b.order {
		if _, ok := entries[id]; ok {
			continue
		}
		if e := b.entries[id]; e != nil && e.newerThan(mark) {
			entries[id] = e
			order = append(order, id)
		}
	}

	for id, seq := range b.removed {
		if seq <= mark {
			delete(b.removed, id)
		}
	}
	b.entries, b.order = entries, order
	return nil
}

// Create shows a placeholder immediately and swaps it for the server's task
// once the request succeeds. The placeholder is removed on failure.
func (b *Board) Create(ctx context.Context, input client.TaskInput) (*client.Task, error) {
	if input.Status == "" {
		input.Status = client.StatusTodo
	}
	if !validStatus(input.Status) {
		return nil, ErrInvalidStatus
	}

	b.mu.Lock()
	tempID := "pending-" + uuid.NewString()
	placeholder := client.Task{
		ID:          tempID,
		Title:       input.Title,
		Description: input.Description,
		Status:      input.Status,
		Priority:    input.Priority,
		DueDate:     input.DueDate,
	}
	e := &entry{task: placeholder, state: PendingCreate, seq: b.next(), inflight: 1}
	b.entries[tempID] = e
	b.order = append(b.order, tempID)
	b.mu.Unlock()

	created, err := b.api.CreateTask(ctx, input)

	b.mu.Lock()
	if b.entries[tempID] == e {
		if err != nil {
			b.remove(tempID)
		} else {
			e.task, e.confirmed = *created, *created
			e.confirmedSeq = e.seq
			e.state = Synced
			e.inflight = 0
			b.rename(tempID, created.ID)
		}
	}
	b.mu.Unlock()

	if err != nil {
		b.notifier.Notify("Failed to create task")
		return nil, err
	}
	return created, nil
}

// Edit applies patch locally and sends it to the server. On failure the
// task returns to the copy it had before this edit.
func (b *Board) Edit(ctx context.Context, id string, patch client.TaskPatch) error {
	if patch.Status != nil && !validStatus(*patch.Status) {
		return ErrInvalidStatus
	}

	b.mu.Lock()
	e, err := b.mutable(id)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	before := e.task
	e.task = patch.Apply(e.task)
	e.state = PendingUpdate
	seq := b.begin(e)
	b.mu.Unlock()

	return b.update(ctx, id, e, seq, before, patch)
}

// Move changes a task's column. Moving a task into the column it is already
// in sends no request.
func (b *Board) Move(ctx context.Context, id, status string) error {
	if !validStatus(status) {
		return ErrInvalidStatus
	}

	b.mu.Lock()
	e, err := b.mutable(id)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if e.task.Status == status {
		b.mu.Unlock()
		return nil
	}
	patch := client.TaskPatch{Status: &status}
	before := e.task
	e.task = patch.Apply(e.task)
	e.state = PendingUpdate
	seq := b.begin(e)
	b.mu.Unlock()

	return b.update(ctx, id, e, seq, before, patch)
}

// update sends patch for the operation seq. before is the visible copy the
// operation started from.
func (b *Board) update(ctx context.Context, id string, e *entry, seq uint64, before client.Task, patch client.TaskPatch) error {
	updated, err := b.api.UpdateTask(ctx, id, patch)

	b.mu.Lock()
	if b.entries[id] == e {
		e.inflight--
		if err == nil && seq > e.confirmedSeq {
			e.confirmed = *updated
			e.confirmedSeq = seq
		}
		if seq == e.seq {
			if err == nil {
				e.task = *updated
			} else {
				e.task = before
			}
		}
		b.settle(e)
	}
	b.mu.Unlock()

	if err != nil {
		b.notifier.Notify("Failed to update task")
	}
	return err
}

// Delete hides the task at once and restores it if the server refuses.
func (b *Board) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	e, err := b.mutable(id)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	e.state = PendingDelete
	seq := b.begin(e)
	b.mu.Unlock()

	err = b.api.DeleteTask(ctx, id)

	b.mu.Lock()
	if b.entries[id] == e {
		e.inflight--
		switch {
		case err == nil:
			b.remove(id)
			b.removed[id] = seq
		case seq == e.seq:
			e.state = PendingUpdate
			b.settle(e)
		}
	}
	b.mu.Unlock()

	if err != nil {
		b.notifier.Notify("Failed to delete task")
	}
	return err
}

// Task returns the visible copy of a task and its state.
func (b *Board) Task(id string) (client.Task, State, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]
	if !ok {
		return client.Task{}, 0, false
	}
	return e.task, e.state, true
}

// Columns groups the visible tasks by status. A non-empty query keeps only
// tasks whose title, description or assignee name contains it, ignoring
// case. Tasks pending deletion are hidden.
func (b *Board) Columns(query string) []Column {
	q := strings.ToLower(strings.TrimSpace(query))

	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Column, len(columns))
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		out[i] = Column{Status: c.status, Title: c.title, Tasks: []client.Task{}}
		index[c.status] = i
	}

	for _, id := range b.order {
		e := b.entries[id]
		if e == nil || e.state == PendingDelete {
			continue
		}
		i, ok := index[e.task.Status]
		if !ok || !matches(e.task, q) {
			continue
		}
		out[i].Tasks = append(out[i].Tasks, e.task)
	}
	return out
}

func matches(t client.Task, q string) bool {
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), q) ||
		strings.Contains(strings.ToLower(t.Description), q) ||
		strings.Contains(strings.ToLower(t.Assignee.Username), q)
}

// mutable returns the entry for id if it can accept a new operation.
// Caller holds b.mu.
func (b *Board) mutable(id string) (*entry, error) {
	e, ok := b.entries[id]
	if !ok || e.state == PendingDelete {
		return nil, ErrNotFound
	}
	if e.state == PendingCreate {
		return nil, ErrPending
	}
	return e, nil
}

// newerThan reports whether the entry has work the server listing requested
// at operation mark may not reflect.
func (e *entry) newerThan(mark uint64) bool {
	return e.inflight > 0 || e.seq > mark || e.confirmedSeq > mark
}

func (b *Board) next() uint64 {
	b.seq++
	return b.seq
}

func (b *Board) begin(e *entry) uint64 {
	e.seq = b.next()
	e.inflight++
	return e.seq
}

// settle returns an entry to Synced once nothing is in flight for it.
func (b *Board) settle(e *entry) {
	if e.inflight > 0 {
		return
	}
	e.task = e.confirmed
	e.state = Synced
}

func (b *Board) remove(id string) {
	delete(b.entries, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}

func (b *Board) rename(from, to string) {
	e := b.entries[from]
	delete(b.entries, from)
	b.entries[to] = e
	for i, v := range b.order {
		if v == from {
			b.order[i] = to
			return
		}
	}
}
