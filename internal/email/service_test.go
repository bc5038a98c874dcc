package email

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{name: "empty config", config: Config{}, expected: false},
		{name: "missing host", config: Config{Port: "587", From: "test@example.com"}, expected: false},
		{name: "missing port", config: Config{Host: "smtp.example.com", From: "test@example.com"}, expected: false},
		{name: "missing from", config: Config{Host: "smtp.example.com", Port: "587"}, expected: false},
		{name: "fully configured", config: Config{Host: "smtp.example.com", Port: "587", From: "test@example.com"}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestSendShareInvitation(t *testing.T) {
	svc := NewService(Config{Host: "smtp.example.com", Port: "587", From: "noreply@example.com", FromName: "Inkwell"})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	svc.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := svc.SendShareInvitation("reader@example.com", ShareData{
		SharerName:    "Avery",
		DocumentTitle: "Q3 Plan",
		ShareURL:      "https://inkwell.example.com/shared/abc",
		ExpiresIn:     "7 days",
	})
	if err != nil {
		t.Fatalf("SendShareInvitation failed: %v", err)
	}

	if gotAddr != "smtp.example.com:587" || gotFrom != "noreply@example.com" {
		t.Errorf("unexpected envelope addr=%q from=%q", gotAddr, gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "reader@example.com" {
		t.Errorf("unexpected recipients %v", gotTo)
	}
	msg := string(gotMsg)
	for _, want := range []string{
		"From: Inkwell <noreply@example.com>",
		"Subject: Avery shared \"Q3 Plan\" with you",
		"https://inkwell.example.com/shared/abc",
		"7 days",
		"Content-Type: text/html",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSendRequiresConfiguration(t *testing.T) {
	svc := NewService(Config{})
	err := svc.SendShareInvitation("reader@example.com", ShareData{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestRenderShareTemplateEscapes(t *testing.T) {
	html, err := renderTemplate(shareEmailTemplate, ShareData{
		AppName:       "Inkwell",
		SharerName:    "<b>Mallory</b>",
		DocumentTitle: "Notes",
		ShareURL:      "https://example.com/shared/x",
	})
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}
	if strings.Contains(html, "<b>Mallory</b>") {
		t.Error("sharer name should be escaped")
	}
	if !strings.Contains(html, "https://example.com/shared/x") {
		t.Error("template should contain share URL")
	}
}
