package cli

import (
	"context"
	"fmt"
	"time"

	"taskboard-server/internal/events"
	"taskboard-server/internal/notify"
	"taskboard-server/internal/server"
	"taskboard-server/internal/service"
	"taskboard-server/internal/websocket"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.store.EnsureSchema(ctx); err != nil {
		return err
	}

	wsManager := websocket.NewManager(rt.cfg.WebSocket, rt.log)
	go wsManager.Run(ctx)

	publishers := events.Multi{wsManager}
	if rt.cfg.AMQP.URL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(rt.cfg.AMQP)
		if err != nil {
			return err
		}
		defer amqpPublisher.Close()
		publishers = append(publishers, amqpPublisher)
		rt.log.WithField("exchange", rt.cfg.AMQP.Exchange).Info("publishing task events to amqp")
	}

	authService := service.NewAuthService(rt.store.Users, service.NewTokenService(rt.cfg.JWT), rt.log)
	userService := service.NewUserService(rt.store.Users)
	taskService := service.NewTaskService(rt.store.Tasks, publishers, rt.log)

	if rt.cfg.SMTP.Enabled() {
		reminders := service.NewReminderService(
			rt.store.Tasks,
			rt.store.Users,
			notify.NewSMTPMailer(rt.cfg.SMTP, rt.log),
			rt.cfg.Reminder.WindowDays,
			rt.log,
		)

		scheduler, err := scheduleReminders(ctx, rt.cfg.Reminder.Schedule, reminders, rt)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() {
			<-scheduler.Stop().Done()
		}()
	}

	router := server.NewRouter(server.Deps{
		Config:    rt.cfg,
		Auth:      authService,
		Users:     userService,
		Tasks:     taskService,
		WebSocket: wsManager,
		Log:       rt.log,
	})

	addr := fmt.Sprintf("%s:%s", rt.cfg.Server.Host, rt.cfg.Server.Port)
	rt.log.WithField("env", rt.cfg.Server.Env).Info("starting taskboard server")

	return server.New(addr, router, rt.log).Run(ctx)
}

func scheduleReminders(ctx context.Context, schedule string, reminders *service.ReminderService, rt *app) (*cron.Cron, error) {
	scheduler := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cron.PrintfLogger(rt.log)),
	)

	_, err := scheduler.AddFunc(schedule, func() {
		if _, err := reminders.SendDueReminders(ctx, time.Now()); err != nil {
			rt.log.WithError(err).Error("reminder run failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid REMINDER_SCHEDULE %q: %w", schedule, err)
	}

	rt.log.WithField("schedule", schedule).Info("due-date reminders scheduled")
	return scheduler, nil
}
