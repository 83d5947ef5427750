package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskboard-server/internal/domain"
	"taskboard-server/internal/logger"
	"taskboard-server/internal/notify"
	"taskboard-server/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	sent    []notify.Message
	failFor string
}

func (m *fakeMailer) Send(_ context.Context, msg notify.Message) error {
	if msg.To == m.failFor {
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func seedReminderStore(t *testing.T) *repository.Store {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()

	for _, u := range []*domain.User{
		{ID: "u1", Username: "alice", Email: "alice@example.com"},
		{ID: "u2", Username: "bob", Email: "bob@example.com"},
	} {
		require.NoError(t, store.Users.Create(ctx, u))
	}

	due := func(s string) time.Time {
		d, err := domain.ParseDueDate(s)
		require.NoError(t, err)
		return d
	}

	for _, task := range []*domain.Task{
		{ID: "t1", Title: "today", Status: domain.StatusTodo, Priority: domain.PriorityHigh, AssignedTo: "u1", DueDate: due("2025-06-10")},
		{ID: "t2", Title: "tomorrow", Status: domain.StatusInProgress, Priority: domain.PriorityLow, AssignedTo: "u1", DueDate: due("2025-06-11")},
		{ID: "t3", Title: "finished", Status: domain.StatusDone, Priority: domain.PriorityLow, AssignedTo: "u1", DueDate: due("2025-06-10")},
		{ID: "t4", Title: "bob today", Status: domain.StatusTodo, Priority: domain.PriorityMedium, AssignedTo: "u2", DueDate: due("2025-06-10")},
		{ID: "t5", Title: "yesterday", Status: domain.StatusTodo, Priority: domain.PriorityMedium, AssignedTo: "u2", DueDate: due("2025-06-09")},
		{ID: "t6", Title: "orphan", Status: domain.StatusTodo, Priority: domain.PriorityMedium, AssignedTo: "ghost", DueDate: due("2025-06-10")},
	} {
		require.NoError(t, store.Tasks.Create(ctx, task))
	}

	return store
}

func TestReminderService_SendDueReminders(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		windowDays int
		wantSent   int
		wantAlice  []string
	}{
		{name: "today only", windowDays: 1, wantSent: 2, wantAlice: []string{"today"}},
		{name: "two days", windowDays: 2, wantSent: 2, wantAlice: []string{"today", "tomorrow"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seedReminderStore(t)
			mailer := &fakeMailer{}
			s := NewReminderService(store.Tasks, store.Users, mailer, tt.windowDays, logger.Discard())

			sent, err := s.SendDueReminders(context.Background(), now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSent, sent)
			require.Len(t, mailer.sent, tt.wantSent)

			alice := mailer.sent[0]
			assert.Equal(t, "alice@example.com", alice.To)
			for _, title := range tt.wantAlice {
				assert.Contains(t, alice.Text, title)
			}
			assert.NotContains(t, alice.Text, "finished")

			bob := mailer.sent[1]
			assert.Equal(t, "bob@example.com", bob.To)
			assert.Equal(t, "1 task due soon", bob.Subject)
			assert.NotContains(t, bob.Text, "yesterday")
		})
	}
}

func TestReminderService_DeliveryFailureContinues(t *testing.T) {
	store := seedReminderStore(t)
	mailer := &fakeMailer{failFor: "alice@example.com"}
	s := NewReminderService(store.Tasks, store.Users, mailer, 1, logger.Discard())

	sent, err := s.SendDueReminders(context.Background(), time.Date(2025, 6, 10, 23, 0, 0, 0, time.UTC))
	assert.Error(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "bob@example.com", mailer.sent[0].To)
}
