package domain

import (
	"testing"
	"time"
)

func TestParseRevision(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"142", 142, false},
		{"r142", 142, false},
		{" r7 \n", 7, false},
		{"rx", 0, true},
		{"", 0, true},
		{"deadbeef", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRevision(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseRevision(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseRevision(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestRevision_Summary(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"Fix the build\n\nLonger description", "Fix the build"},
		{"Single line", "Single line"},
		{"Windows line\r\nsecond", "Windows line"},
		{"", ""},
	}

	for _, tt := range tests {
		r := Revision{Message: tt.message}
		if got := r.Summary(); got != tt.want {
			t.Errorf("Summary(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

func TestRevision_ShortAuthor(t *testing.T) {
	tests := []struct {
		author string
		want   string
	}{
		{"mseaborn@chromium.org", "mseaborn"},
		{"chrome-bot", "chrome-bot"},
		{"a@b@c", "a"},
	}

	for _, tt := range tests {
		r := Revision{Author: tt.author}
		if got := r.ShortAuthor(); got != tt.want {
			t.Errorf("ShortAuthor(%q) = %q, want %q", tt.author, got, tt.want)
		}
	}
}

func TestRevision_StringAndAge(t *testing.T) {
	now := time.Date(2012, 6, 1, 12, 0, 0, 0, time.UTC)
	r := Revision{Number: 8631, Time: now.Add(-15 * time.Minute)}

	if got := r.String(); got != "r8631" {
		t.Errorf("String() = %q, want r8631", got)
	}
	if got := r.Age(now); got != 15*time.Minute {
		t.Errorf("Age() = %v, want 15m", got)
	}
}
