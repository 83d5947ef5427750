package cli

import (
	"errors"
	"time"

	"taskboard-server/internal/notify"
	"taskboard-server/internal/service"

	"github.com/spf13/cobra"
)

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Send due-date reminder e-mails once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		if !rt.cfg.SMTP.Enabled() {
			return errors.New("SMTP_HOST is not configured")
		}

		reminders := service.NewReminderService(
			rt.store.Tasks,
			rt.store.Users,
			notify.NewSMTPMailer(rt.cfg.SMTP, rt.log),
			rt.cfg.Reminder.WindowDays,
			rt.log,
		)

		sent, err := reminders.SendDueReminders(cmd.Context(), time.Now())
		rt.log.WithField("sent", sent).Info("reminder run finished")
		return err
	},
}

func init() {
	rootCmd.AddCommand(remindCmd)
}
