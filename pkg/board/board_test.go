package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"taskboard-server/pkg/client"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errServer = errors.New("server unavailable")

// fakeAPI keeps tasks in memory. Mutating calls can be held with gate until
// the test releases them.
type fakeAPI struct {
	mu      sync.Mutex
	tasks   map[string]client.Task
	seeded  []string
	nextID  int
	calls   int
	fail    bool
	gate    chan struct{}
	entered chan struct{}

	// listGate holds ListTasks after it has taken its snapshot.
	listGate    chan struct{}
	listEntered chan struct{}
}

func newFakeAPI(tasks ...client.Task) *fakeAPI {
	f := &fakeAPI{tasks: make(map[string]client.Task)}
	for _, t := range tasks {
		f.tasks[t.ID] = t
		f.seeded = append(f.seeded, t.ID)
	}
	return f
}

func (f *fakeAPI) ListTasks(ctx context.Context, filter client.TaskFilter) ([]client.Task, error) {
	f.mu.Lock()
	out := make([]client.Task, 0, len(f.tasks))
	for _, id := range f.seeded {
		if t, ok := f.tasks[id]; ok {
			out = append(out, t)
		}
	}
	gate, entered := f.listGate, f.listEntered
	f.listGate, f.listEntered = nil, nil
	f.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if gate != nil {
		<-gate
	}
	return out, nil
}

func (f *fakeAPI) CreateTask(ctx context.Context, input client.TaskInput) (*client.Task, error) {
	f.wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, errServer
	}
	f.nextID++
	t := client.Task{
		ID:          fmt.Sprintf("new%d", f.nextID),
		Title:       input.Title,
		Description: input.Description,
		Status:      input.Status,
		Priority:    "medium",
		DueDate:     input.DueDate,
	}
	f.tasks[t.ID] = t
	f.seeded = append(f.seeded, t.ID)
	return &t, nil
}

func (f *fakeAPI) UpdateTask(ctx context.Context, id string, patch client.TaskPatch) (*client.Task, error) {
	f.wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, errServer
	}
	t, ok := f.tasks[id]
	if !ok {
		return nil, &client.APIError{StatusCode: 404, Message: "Task not found"}
	}
	t = patch.Apply(t)
	f.tasks[id] = t
	return &t, nil
}

func (f *fakeAPI) DeleteTask(ctx context.Context, id string) error {
	f.wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return errServer
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeAPI) wait() {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
}

func (f *fakeAPI) hold() (release func(), entered <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 8)
	gate := f.gate
	return func() { close(gate) }, f.entered
}

// holdList delays the next listing. The listing reflects the server state
// at the time entered is closed.
func (f *fakeAPI) holdList() (release func(), entered <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listGate = make(chan struct{})
	f.listEntered = make(chan struct{})
	gate := f.listGate
	return func() { close(gate) }, f.listEntered
}

// unhold lets mutating calls through without waiting.
func (f *fakeAPI) unhold() {
	f.mu.Lock()
	f.gate, f.entered = nil, nil
	f.mu.Unlock()
}

func (f *fakeAPI) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type notes struct {
	mu   sync.Mutex
	msgs []string
}

func (n *notes) Notify(message string) {
	n.mu.Lock()
	n.msgs = append(n.msgs, message)
	n.mu.Unlock()
}

func (n *notes) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

func seedTasks() []client.Task {
	return []client.Task{
		{ID: "t1", Title: "Write report", Status: client.StatusTodo, Priority: "high", Assignee: client.Assignee{ID: "u1", Username: "alice"}},
		{ID: "t2", Title: "Review PR", Description: "backend auth changes", Status: client.StatusInProgress, Priority: "medium", Assignee: client.Assignee{ID: "u1", Username: "alice"}},
		{ID: "t3", Title: "Deploy", Status: client.StatusDone, Priority: "low", Assignee: client.Assignee{ID: "u2", Username: "bob"}},
	}
}

func loadedBoard(t *testing.T) (*Board, *fakeAPI, *notes) {
	t.Helper()

	api := newFakeAPI(seedTasks()...)
	n := &notes{}
	b := New(api, n)
	require.NoError(t, b.Load(context.Background()))
	return b, api, n
}

func columnIDs(cols []Column) map[string][]string {
	out := make(map[string][]string, len(cols))
	for _, c := range cols {
		ids := []string{}
		for _, t := range c.Tasks {
			ids = append(ids, t.ID)
		}
		out[c.Status] = ids
	}
	return out
}

func TestBoard_LoadGroupsIntoColumns(t *testing.T) {
	b, _, _ := loadedBoard(t)

	cols := b.Columns("")
	require.Len(t, cols, 3)
	assert.Equal(t, []string{client.StatusTodo, client.StatusInProgress, client.StatusDone},
		[]string{cols[0].Status, cols[1].Status, cols[2].Status})
	assert.Equal(t, map[string][]string{
		client.StatusTodo:       {"t1"},
		client.StatusInProgress: {"t2"},
		client.StatusDone:       {"t3"},
	}, columnIDs(cols))
}

func TestBoard_MoveChangesOnlyThatTask(t *testing.T) {
	b, api, n := loadedBoard(t)
	before := b.Columns("")

	require.NoError(t, b.Move(context.Background(), "t1", client.StatusDone))

	task, state, ok := b.Task("t1")
	require.True(t, ok)
	assert.Equal(t, client.StatusDone, task.Status)
	assert.Equal(t, Synced, state)
	assert.Equal(t, 1, api.callCount())
	assert.Empty(t, n.all())

	after := b.Columns("")
	assert.Equal(t, before[1].Tasks, after[1].Tasks)
	assert.Equal(t, []string{"t1", "t3"}, columnIDs(after)[client.StatusDone])
	assert.Empty(t, after[0].Tasks)
}

func TestBoard_MoveIntoOwnColumnIsNoop(t *testing.T) {
	b, api, _ := loadedBoard(t)
	before := b.Columns("")

	require.NoError(t, b.Move(context.Background(), "t2", client.StatusInProgress))

	assert.Equal(t, 0, api.callCount())
	assert.Equal(t, before, b.Columns(""))
}

func TestBoard_MoveRejectsUnknownColumn(t *testing.T) {
	b, api, _ := loadedBoard(t)

	assert.ErrorIs(t, b.Move(context.Background(), "t1", "archived"), ErrInvalidStatus)
	assert.ErrorIs(t, b.Move(context.Background(), "missing", client.StatusDone), ErrNotFound)
	assert.Equal(t, 0, api.callCount())
}

func TestBoard_FailedUpdateRollsBack(t *testing.T) {
	b, api, n := loadedBoard(t)
	before := b.Columns("")
	api.setFail(true)

	title := "Renamed"
	err := b.Edit(context.Background(), "t1", client.TaskPatch{Title: &title})
	assert.ErrorIs(t, err, errServer)

	err = b.Move(context.Background(), "t2", client.StatusDone)
	assert.ErrorIs(t, err, errServer)

	assert.Equal(t, before, b.Columns(""))
	_, state, _ := b.Task("t1")
	assert.Equal(t, Synced, state)
	assert.Equal(t, []string{"Failed to update task", "Failed to update task"}, n.all())
}

func TestBoard_OptimisticStateVisibleWhileInFlight(t *testing.T) {
	b, api, _ := loadedBoard(t)
	release, entered := api.hold()

	done := make(chan error, 1)
	go func() { done <- b.Move(context.Background(), "t1", client.StatusInProgress) }()
	<-entered

	task, state, _ := b.Task("t1")
	assert.Equal(t, client.StatusInProgress, task.Status)
	assert.Equal(t, PendingUpdate, state)
	assert.Equal(t, []string{"t1", "t2"}, columnIDs(b.Columns(""))[client.StatusInProgress])

	release()
	require.NoError(t, <-done)

	_, state, _ = b.Task("t1")
	assert.Equal(t, Synced, state)
}

func TestBoard_StaleResponseDoesNotOverwriteNewer(t *testing.T) {
	b, api, _ := loadedBoard(t)

	first := "First"
	second := "Second"

	// Issue the first edit and hold it on the wire.
	release1, entered1 := api.hold()
	done1 := make(chan error, 1)
	go func() { done1 <- b.Edit(context.Background(), "t1", client.TaskPatch{Title: &first}) }()
	<-entered1

	// The second edit overtakes it.
	api.mu.Lock()
	api.gate, api.entered = nil, nil
	api.mu.Unlock()
	require.NoError(t, b.Edit(context.Background(), "t1", client.TaskPatch{Title: &second}))

	task, state, _ := b.Task("t1")
	assert.Equal(t, "Second", task.Title)
	assert.Equal(t, PendingUpdate, state)

	// The server applies the late first edit, but the board keeps the result
	// of the newer operation.
	release1()
	require.NoError(t, <-done1)

	task, state, _ = b.Task("t1")
	assert.Equal(t, "Second", task.Title)
	assert.Equal(t, Synced, state)
}

func TestBoard_StaleFailureDoesNotRollBackNewer(t *testing.T) {
	b, api, n := loadedBoard(t)

	first := "First"
	second := "Second"

	release1, entered1 := api.hold()
	api.setFail(true)
	done1 := make(chan error, 1)
	go func() { done1 <- b.Edit(context.Background(), "t1", client.TaskPatch{Title: &first}) }()
	<-entered1

	api.mu.Lock()
	api.gate, api.entered = nil, nil
	api.fail = false
	api.mu.Unlock()
	require.NoError(t, b.Edit(context.Background(), "t1", client.TaskPatch{Title: &second}))

	api.setFail(true)
	release1()
	assert.ErrorIs(t, <-done1, errServer)

	task, state, _ := b.Task("t1")
	assert.Equal(t, "Second", task.Title)
	assert.Equal(t, Synced, state)
	assert.Equal(t, []string{"Failed to update task"}, n.all())
}

func TestBoard_CreateReplacesPlaceholder(t *testing.T) {
	b, api, _ := loadedBoard(t)
	release, entered := api.hold()

	done := make(chan *client.Task, 1)
	go func() {
		task, err := b.Create(context.Background(), client.TaskInput{Title: "Plan sprint", DueDate: "2030-02-01"})
		assert.NoError(t, err)
		done <- task
	}()
	<-entered

	todo := b.Columns("")[0].Tasks
	require.Len(t, todo, 2)
	placeholder := todo[1]
	assert.Equal(t, "Plan sprint", placeholder.Title)
	_, state, _ := b.Task(placeholder.ID)
	assert.Equal(t, PendingCreate, state)
	assert.ErrorIs(t, b.Move(context.Background(), placeholder.ID, client.StatusDone), ErrPending)

	release()
	created := <-done
	require.NotNil(t, created)

	_, _, ok := b.Task(placeholder.ID)
	assert.False(t, ok)
	task, state, ok := b.Task(created.ID)
	require.True(t, ok)
	assert.Equal(t, Synced, state)
	assert.Equal(t, []string{"t1", created.ID}, columnIDs(b.Columns(""))[client.StatusTodo])
	assert.Equal(t, "medium", task.Priority)
}

func TestBoard_FailedCreateRemovesPlaceholder(t *testing.T) {
	b, api, n := loadedBoard(t)
	before := b.Columns("")
	api.setFail(true)

	_, err := b.Create(context.Background(), client.TaskInput{Title: "Plan sprint"})
	assert.ErrorIs(t, err, errServer)
	assert.Equal(t, before, b.Columns(""))
	assert.Equal(t, []string{"Failed to create task"}, n.all())
}

func TestBoard_DeleteHidesThenRemoves(t *testing.T) {
	b, api, _ := loadedBoard(t)
	release, entered := api.hold()

	done := make(chan error, 1)
	go func() { done <- b.Delete(context.Background(), "t3") }()
	<-entered

	assert.Empty(t, b.Columns("")[2].Tasks)
	_, state, ok := b.Task("t3")
	require.True(t, ok)
	assert.Equal(t, PendingDelete, state)
	assert.ErrorIs(t, b.Move(context.Background(), "t3", client.StatusTodo), ErrNotFound)

	release()
	require.NoError(t, <-done)

	_, _, ok = b.Task("t3")
	assert.False(t, ok)
}

func TestBoard_FailedDeleteRestores(t *testing.T) {
	b, api, n := loadedBoard(t)
	before := b.Columns("")
	api.setFail(true)

	assert.ErrorIs(t, b.Delete(context.Background(), "t2"), errServer)

	assert.Equal(t, before, b.Columns(""))
	_, state, _ := b.Task("t2")
	assert.Equal(t, Synced, state)
	assert.Equal(t, []string{"Failed to delete task"}, n.all())
}

func TestBoard_LoadKeepsInFlightMutations(t *testing.T) {
	b, api, _ := loadedBoard(t)
	release, entered := api.hold()

	done := make(chan error, 1)
	go func() { done <- b.Move(context.Background(), "t1", client.StatusDone) }()
	<-entered

	// Reload sees the server state from before the move lands.
	require.NoError(t, b.Load(context.Background()))
	task, state, _ := b.Task("t1")
	assert.Equal(t, client.StatusDone, task.Status)
	assert.Equal(t, PendingUpdate, state)

	release()
	require.NoError(t, <-done)

	task, state, _ = b.Task("t1")
	assert.Equal(t, client.StatusDone, task.Status)
	assert.Equal(t, Synced, state)
	assert.Equal(t, []string{"t1", "t3"}, columnIDs(b.Columns(""))[client.StatusDone])
}

func TestBoard_LoadKeepsMutationsConfirmedDuringListing(t *testing.T) {
	b, api, _ := loadedBoard(t)
	release, entered := api.holdList()

	loaded := make(chan error, 1)
	go func() { loaded <- b.Load(context.Background()) }()
	<-entered

	// These land on the server after the listing was taken.
	require.NoError(t, b.Move(context.Background(), "t1", client.StatusDone))
	require.NoError(t, b.Delete(context.Background(), "t3"))
	created, err := b.Create(context.Background(), client.TaskInput{Title: "Plan sprint"})
	require.NoError(t, err)

	release()
	require.NoError(t, <-loaded)

	task, state, ok := b.Task("t1")
	require.True(t, ok)
	assert.Equal(t, client.StatusDone, task.Status)
	assert.Equal(t, Synced, state)

	_, _, ok = b.Task("t3")
	assert.False(t, ok)

	_, state, ok = b.Task(created.ID)
	require.True(t, ok)
	assert.Equal(t, Synced, state)

	assert.Equal(t, map[string][]string{
		client.StatusTodo:       {created.ID},
		client.StatusInProgress: {"t2"},
		client.StatusDone:       {"t1"},
	}, columnIDs(b.Columns("")))

	// A later reload reflects the server again.
	require.NoError(t, b.Load(context.Background()))
	_, _, ok = b.Task("t3")
	assert.False(t, ok)
	task, _, _ = b.Task("t1")
	assert.Equal(t, client.StatusDone, task.Status)
	_, _, ok = b.Task(created.ID)
	assert.True(t, ok)
}

func TestBoard_LoadKeepsPendingCreate(t *testing.T) {
	b, api, _ := loadedBoard(t)
	release, entered := api.hold()

	done := make(chan error, 1)
	go func() {
		_, err := b.Create(context.Background(), client.TaskInput{Title: "Plan sprint"})
		done <- err
	}()
	<-entered

	require.NoError(t, b.Load(context.Background()))
	todo := b.Columns("")[0].Tasks
	require.Len(t, todo, 2)
	assert.Equal(t, "Plan sprint", todo[1].Title)

	release()
	require.NoError(t, <-done)

	todo = b.Columns("")[0].Tasks
	require.Len(t, todo, 2)
	_, state, _ := b.Task(todo[1].ID)
	assert.Equal(t, Synced, state)
}

func TestBoard_LoadReplacesSettledTasks(t *testing.T) {
	b, api, _ := loadedBoard(t)

	api.mu.Lock()
	t2 := api.tasks["t2"]
	t2.Title = "Changed elsewhere"
	api.tasks["t2"] = t2
	delete(api.tasks, "t3")
	api.mu.Unlock()

	require.NoError(t, b.Load(context.Background()))

	task, state, _ := b.Task("t2")
	assert.Equal(t, "Changed elsewhere", task.Title)
	assert.Equal(t, Synced, state)
	_, _, ok := b.Task("t3")
	assert.False(t, ok)
}

func TestBoard_FailedEditRestoresItsOwnSnapshot(t *testing.T) {
	b, api, n := loadedBoard(t)

	first := "First"
	second := "Second"

	// The first edit is held on the wire and later succeeds.
	release1, entered1 := api.hold()
	done1 := make(chan error, 1)
	go func() { done1 <- b.Edit(context.Background(), "t1", client.TaskPatch{Title: &first}) }()
	<-entered1

	// The second edit fails while the first is still pending.
	api.unhold()
	api.setFail(true)
	assert.ErrorIs(t, b.Edit(context.Background(), "t1", client.TaskPatch{Title: &second}), errServer)

	task, state, _ := b.Task("t1")
	assert.Equal(t, "First", task.Title)
	assert.Equal(t, PendingUpdate, state)

	api.setFail(false)
	release1()
	require.NoError(t, <-done1)

	task, state, _ = b.Task("t1")
	assert.Equal(t, "First", task.Title)
	assert.Equal(t, Synced, state)
	assert.Equal(t, []string{"Failed to update task"}, n.all())
}

func TestBoard_ColumnsFilter(t *testing.T) {
	b, _, _ := loadedBoard(t)

	tests := []struct {
		name  string
		query string
		want  map[string][]string
	}{
		{"title", "REPORT", map[string][]string{client.StatusTodo: {"t1"}, client.StatusInProgress: {}, client.StatusDone: {}}},
		{"description", "Auth", map[string][]string{client.StatusTodo: {}, client.StatusInProgress: {"t2"}, client.StatusDone: {}}},
		{"assignee", "bOb", map[string][]string{client.StatusTodo: {}, client.StatusInProgress: {}, client.StatusDone: {"t3"}}},
		{"blank", "  ", map[string][]string{client.StatusTodo: {"t1"}, client.StatusInProgress: {"t2"}, client.StatusDone: {"t3"}}},
		{"no match", "zzz", map[string][]string{client.StatusTodo: {}, client.StatusInProgress: {}, client.StatusDone: {}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, columnIDs(b.Columns(tt.query)))
		})
	}

	// Filtering never mutates the collection.
	assert.Len(t, b.Columns("")[0].Tasks, 1)
}

func TestBoard_ConcurrentMoves(t *testing.T) {
	b, _, _ := loadedBoard(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := client.StatusDone
			if i%2 == 0 {
				status = client.StatusTodo
			}
			_ = b.Move(context.Background(), "t1", status)
		}(i)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("moves did not finish")
	}

	_, state, _ := b.Task("t1")
	assert.Equal(t, Synced, state)
}
