package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"fp-innova/internal/config"
)

// Message is one outgoing email
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender delivers rendered messages
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender returns the sender configured by cfg.Provider
func NewSender(cfg *config.EmailConfig) Sender {
	switch cfg.Provider {
	case "smtp":
		return NewSMTPSender(cfg)
	case "sendgrid":
		return NewSendGridSender(cfg)
	default:
		return LogSender{}
	}
}

// LogSender only logs messages; used in development
type LogSender struct{}

// Send implements Sender
func (LogSender) Send(_ context.Context, msg Message) error {
	slog.Info("Email (log provider)", "to", msg.To, "subject", msg.Subject)
	return nil
}

// Service renders the application emails and hands them to a Sender
type Service struct {
	sender      Sender
	appName     string
	frontendURL string
}

// NewService creates a new email service
func NewService(cfg *config.EmailConfig, sender Sender) *Service {
	return &Service{
		sender:      sender,
		appName:     cfg.FromName,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
	}
}

type notificationData struct {
	AppName string
	Name    string
	Title   string
	Message string
	Link    string
}

// SendNotification emails an in-app notification. link is relative to the frontend.
func (s *Service) SendNotification(ctx context.Context, to, name, title, message, link string) error {
	data := notificationData{
		AppName: s.appName,
		Name:    name,
		Title:   title,
		Message: message,
	}
	if link != "" {
		data.Link = s.frontendURL + link
	}
	body, err := render(notificationTemplate, data)
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, Message{
		To:       to,
		Subject:  fmt.Sprintf("[%s] %s", s.appName, title),
		HTMLBody: body,
		TextBody: message,
	})
}

// ReminderItem is one open document correction listed in a reminder
type ReminderItem struct {
	DocumentName string
	Deadline     time.Time
}

type reminderData struct {
	AppName      string
	Name         string
	ProjectTitle string
	Items        []ReminderItem
	Link         string
}

// SendAmendmentReminder reminds a presenter of corrections due soon
func (s *Service) SendAmendmentReminder(ctx context.Context, to, name, projectTitle string, projectID uint, items []ReminderItem) error {
	if len(items) == 0 {
		return nil
	}
	body, err := render(reminderTemplate, reminderData{
		AppName:      s.appName,
		Name:         name,
		ProjectTitle: projectTitle,
		Items:        items,
		Link:         fmt.Sprintf("%s/projects/%d", s.frontendURL, projectID),
	})
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, Message{
		To:       to,
		Subject:  fmt.Sprintf("[%s] Subsanaciones pendientes: %s", s.appName, projectTitle),
		HTMLBody: body,
		TextBody: fmt.Sprintf("Tiene %d documentos pendientes de subsanar en el proyecto %s.", len(items), projectTitle),
	})
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render email %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
