package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"taskboard-server/internal/domain"
	"taskboard-server/internal/notify"
	"taskboard-server/internal/repository"

	"github.com/sirupsen/logrus"
)

// ReminderService e-mails each user a digest of their unfinished tasks
// that fall due within the reminder window.
type ReminderService struct {
	taskRepo   repository.TaskRepository
	userRepo   repository.UserRepository
	mailer     notify.Mailer
	windowDays int
	log        logrus.FieldLogger
}

func NewReminderService(taskRepo repository.TaskRepository, userRepo repository.UserRepository, mailer notify.Mailer, windowDays int, log logrus.FieldLogger) *ReminderService {
	if windowDays < 1 {
		windowDays = 1
	}
	return &ReminderService{
		taskRepo:   taskRepo,
		userRepo:   userRepo,
		mailer:     mailer,
		windowDays: windowDays,
		log:        log.WithField("component", "reminders"),
	}
}

// SendDueReminders covers due dates in [today, today+window) where today
// is the UTC calendar day of now. It returns the number of digests sent.
// A failed delivery is logged and does not stop the remaining users.
func (s *ReminderService) SendDueReminders(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, s.windowDays)

	tasks, err := s.taskRepo.ListDueBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to list due tasks: %w", err)
	}

	byUser := make(map[string][]*domain.Task)
	for _, t := range tasks {
		byUser[t.AssignedTo] = append(byUser[t.AssignedTo], t)
	}

	userIDs := make([]string, 0, len(byUser))
	for id := range byUser {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	sent := 0
	var errs []error
	for _, userID := range userIDs {
		user, err := s.userRepo.FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				s.log.WithField("user_id", userID).Warn("skipping reminders for unknown user")
				continue
			}
			errs = append(errs, err)
			continue
		}

		userTasks := byUser[userID]
		SortTasks(userTasks)

		if err := s.mailer.Send(ctx, digest(user, userTasks)); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Error("failed to send reminder")
			errs = append(errs, err)
			continue
		}
		sent++
	}

	s.log.WithFields(logrus.Fields{
		"tasks": len(tasks),
		"sent":  sent,
	}).Info("due-date reminders processed")

	return sent, errors.Join(errs...)
}

func digest(user *domain.User, tasks []*domain.Task) notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nThe following tasks are due soon:\n\n", user.Username)
	for _, t := range tasks {
		fmt.Fprintf(&b, "- [%s] %s (%s, due %s)\n", t.Status, t.Title, t.Priority, t.DueDate.Format(domain.DateLayout))
	}
	b.WriteString("\nTaskboard\n")

	subject := "1 task due soon"
	if len(tasks) != 1 {
		subject = fmt.Sprintf("%d tasks due soon", len(tasks))
	}

	return notify.Message{
		To:      user.Email,
		Subject: subject,
		Text:    b.String(),
	}
}
