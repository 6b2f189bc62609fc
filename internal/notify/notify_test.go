package notify

import (
	"strings"
	"testing"
	"time"
)

func TestConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"empty", Config{}, false},
		{"host only", Config{Host: "smtp.example.com"}, false},
		{"from only", Config{From: "hr@example.com"}, false},
		{"host and from", Config{Host: "smtp.example.com", From: "hr@example.com"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Configured(); got != tt.want {
				t.Errorf("Configured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRenderInvite(t *testing.T) {
	cfg := Config{
		CompanyName: "ABC Technologies",
		TestName:    "Online Hiring Assessment",
		PortalURL:   "https://hire.example.com",
	}
	start := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	body, err := RenderInvite(cfg, "alice@example.com", "AB12CD", start, end)
	if err != nil {
		t.Fatalf("RenderInvite: %v", err)
	}

	for _, want := range []string{
		"Hi alice@example.com,",
		"ABC Technologies",
		"Online Hiring Assessment",
		"Your access code: AB12CD",
		"https://hire.example.com",
		"2026-04-01 10:00 UTC",
		"2026-04-01 12:00 UTC",
		"marked as expired",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("invite body missing %q", want)
		}
	}
}

func TestLogNotifier(t *testing.T) {
	n := LogNotifier{}
	if err := n.Invite("a@example.com", "XYZ123", time.Now(), time.Now().Add(time.Hour)); err != nil {
		t.Errorf("LogNotifier.Invite: %v", err)
	}
}
