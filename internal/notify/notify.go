package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/telebot.v3"

	"semaphore/reports/internal/logger"
	"semaphore/reports/internal/workflow"
)

var ErrNoRecipient = errors.New("no_recipient")

// Notifier delivers a short text to a user of the service.
type Notifier interface {
	Notify(ctx context.Context, userID, message string) error
}

// New returns a Telegram notifier when a bot token is configured and a log
// notifier otherwise.
func New(token string, chatIDs map[string]int64) (Notifier, error) {
	if token == "" {
		return LogNotifier{}, nil
	}
	bot, err := telebot.NewBot(telebot.Settings{
		Token:   token,
		Offline: true,
		OnError: func(err error, _ telebot.Context) {
			logger.Log.WithError(err).Warn("telegram error")
		},
	})
	if err != nil {
		return nil, err
	}
	return NewTelegram(bot, chatIDs), nil
}

type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, userID, message string) error {
	logger.Log.WithField("user_id", userID).Info(message)
	return nil
}

type sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

type Telegram struct {
	bot     sender
	chatIDs map[string]int64
}

func NewTelegram(bot sender, chatIDs map[string]int64) *Telegram {
	return &Telegram{bot: bot, chatIDs: chatIDs}
}

func (t *Telegram) Notify(ctx context.Context, userID, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, ok := t.chatIDs[strings.ToLower(userID)]
	if !ok {
		return ErrNoRecipient
	}
	_, err := t.bot.Send(&telebot.User{ID: chatID}, message, &telebot.SendOptions{ParseMode: telebot.ModeDefault})
	return err
}

// ReviewRequest is sent when a report starts waiting on a reviewer.
func ReviewRequest(reportID, studentName string, state workflow.State) string {
	return fmt.Sprintf("Report %s for %s is waiting for your %s review.", reportID, studentName, roleLabel(state.AwaitingRole))
}

// Reminder is sent by the reminder job for a report idle since updatedAt.
func Reminder(reportID string, state workflow.State, updatedAt, now time.Time) string {
	idle := now.Sub(updatedAt).Round(time.Hour)
	if state.Rejected {
		return fmt.Sprintf("Reminder: rejected report %s still needs your %s review (idle %s).", reportID, roleLabel(state.AwaitingRole), idle)
	}
	return fmt.Sprintf("Reminder: report %s has been waiting for your %s review for %s.", reportID, roleLabel(state.AwaitingRole), idle)
}

// Rejected tells the other reviewers that a report was sent back.
func Rejected(reportID, reason string) string {
	return fmt.Sprintf("Report %s was rejected: %s", reportID, reason)
}

func roleLabel(role workflow.Role) string {
	switch role {
	case workflow.RoleTimeTeacher:
		return "time-teacher"
	case workflow.RoleTeacher:
		return "teacher"
	default:
		return string(role)
	}
}
