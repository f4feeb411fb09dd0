package email

import (
	"context"
	"strings"
	"testing"
	"time"

	"fp-innova/internal/config"
)

type recordingSender struct {
	sent []Message
}

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	r.sent = append(r.sent, msg)
	return nil
}

func testConfig() *config.EmailConfig {
	return &config.EmailConfig{
		Provider:    "log",
		From:        "noreply@fpinnova.es",
		FromName:    "FP Innova",
		FrontendURL: "http://localhost:5173/",
	}
}

func TestNewSender(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"smtp", "*email.SMTPSender"},
		{"sendgrid", "*email.SendGridSender"},
		{"log", "email.LogSender"},
		{"", "email.LogSender"},
	}
	for _, tt := range tests {
		cfg := testConfig()
		cfg.Provider = tt.provider
		got := typeName(NewSender(cfg))
		if got != tt.want {
			t.Errorf("NewSender(%q) = %s, want %s", tt.provider, got, tt.want)
		}
	}
}

func typeName(s Sender) string {
	switch s.(type) {
	case *SMTPSender:
		return "*email.SMTPSender"
	case *SendGridSender:
		return "*email.SendGridSender"
	case LogSender:
		return "email.LogSender"
	}
	return "unknown"
}

func TestSendNotification(t *testing.T) {
	rec := &recordingSender{}
	svc := NewService(testConfig(), rec)

	err := svc.SendNotification(context.Background(), "ana@test.com", "Ana", "Proyecto aprobado",
		"Su proyecto <b>Robótica</b> ha sido aprobado", "/projects/7")
	if err != nil {
		t.Fatalf("SendNotification failed: %v", err)
	}
	if len(rec.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(rec.sent))
	}
	msg := rec.sent[0]
	if msg.To != "ana@test.com" || msg.Subject != "[FP Innova] Proyecto aprobado" {
		t.Errorf("unexpected envelope: %+v", msg)
	}
	if !strings.Contains(msg.HTMLBody, "http://localhost:5173/projects/7") {
		t.Errorf("body does not link to the project: %s", msg.HTMLBody)
	}
	if strings.Contains(msg.HTMLBody, "<b>Robótica</b>") {
		t.Error("message text was not escaped")
	}
}

func TestSendAmendmentReminder(t *testing.T) {
	rec := &recordingSender{}
	svc := NewService(testConfig(), rec)
	deadline := time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

	if err := svc.SendAmendmentReminder(context.Background(), "ana@test.com", "Ana", "Robótica", 7, nil); err != nil {
		t.Fatalf("empty reminder failed: %v", err)
	}
	if len(rec.sent) != 0 {
		t.Fatal("reminder without items was sent")
	}

	items := []ReminderItem{{DocumentName: "Memoria.pdf", Deadline: deadline}}
	if err := svc.SendAmendmentReminder(context.Background(), "ana@test.com", "Ana", "Robótica", 7, items); err != nil {
		t.Fatalf("SendAmendmentReminder failed: %v", err)
	}
	if len(rec.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(rec.sent))
	}
	body := rec.sent[0].HTMLBody
	if !strings.Contains(body, "Memoria.pdf") || !strings.Contains(body, "14/03/2026 18:30") {
		t.Errorf("reminder body missing item: %s", body)
	}
}
