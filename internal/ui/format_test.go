package ui

import (
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{3 << 20, "3.0 MiB"},
		{5 << 30, "5.0 GiB"},
		{2 << 40, "2.0 TiB"},
	}

	for _, tc := range tests {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatSpeed(t *testing.T) {
	if got := FormatSpeed(0); got != "" {
		t.Errorf("Expected empty speed, got %q", got)
	}
	if got := FormatSpeed(2048); got != "2.0 KiB/s" {
		t.Errorf("Expected 2.0 KiB/s, got %q", got)
	}
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, ""},
		{-time.Second, ""},
		{30 * time.Second, "30s left"},
		{90 * time.Second, "2min left"},
		{45 * time.Minute, "45min left"},
		{2 * time.Hour, "2h left"},
	}

	for _, tc := range tests {
		if got := FormatETA(tc.in); got != tc.want {
			t.Errorf("FormatETA(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatCount(t *testing.T) {
	if got := FormatCount(1234567); got != "1,234,567" {
		t.Errorf("Expected grouped digits, got %q", got)
	}
}

func TestFormatProgress(t *testing.T) {
	if got := FormatProgress(512, 1024); got != "512 B / 1.0 KiB (50%)" {
		t.Errorf("Unexpected progress %q", got)
	}
	if got := FormatProgress(512, 0); got != "512 B" {
		t.Errorf("Unexpected progress for unknown size %q", got)
	}
}
