package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		if got := parseLogLevel(tc.in); got != tc.want {
			t.Fatalf("%q: expected %s, got %s", tc.in, tc.want, got)
		}
	}
}

func TestSanitizeTelegramErr(t *testing.T) {
	token := "123456:ABCDEF"
	err := errors.New(`Post "https://api.telegram.org/bot123456:ABCDEF/getMe": dial tcp: timeout`)
	got := sanitizeTelegramErr(err, token)
	if strings.Contains(got, "ABCDEF") {
		t.Fatalf("token leaked: %s", got)
	}
	if !strings.Contains(got, "<redacted-token>") {
		t.Fatalf("expected redaction marker: %s", got)
	}
	if sanitizeTelegramErr(nil, token) != "" {
		t.Fatalf("nil error should give empty string")
	}
}
