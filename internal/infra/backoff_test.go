package infra

import (
	"testing"
	"time"
)

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		name  string
		retry int
		want  time.Duration
	}{
		{"negative", -1, 1 * time.Second},
		{"first", 0, 1 * time.Second},
		{"second", 1, 2 * time.Second},
		{"fifth", 4, 16 * time.Second},
		{"capped", 10, 60 * time.Second},
		{"huge", 63, 60 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateBackoff(tt.retry); got != tt.want {
				t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.retry, got, tt.want)
			}
		})
	}
}
