package model

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
)

func TestSlot_RequiredFields(t *testing.T) {
	v := validator.New()
	start := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		slot        Slot
		expectValid bool
		description string
	}{
		{
			name:        "valid slot",
			slot:        Slot{ServiceID: "massage-60", StartTime: start, EndTime: start.Add(time.Hour), Capacity: 3},
			expectValid: true,
			description: "all required fields present",
		},
		{
			name:        "missing service",
			slot:        Slot{StartTime: start, EndTime: start.Add(time.Hour), Capacity: 3},
			expectValid: false,
			description: "serviceId is required",
		},
		{
			name:        "end before start",
			slot:        Slot{ServiceID: "massage-60", StartTime: start, EndTime: start.Add(-time.Minute), Capacity: 3},
			expectValid: false,
			description: "endTime must be after startTime",
		},
		{
			name:        "end equals start",
			slot:        Slot{ServiceID: "massage-60", StartTime: start, EndTime: start, Capacity: 3},
			expectValid: false,
			description: "zero-length slots are rejected",
		},
		{
			name:        "zero capacity",
			slot:        Slot{ServiceID: "massage-60", StartTime: start, EndTime: start.Add(time.Hour)},
			expectValid: false,
			description: "capacity must be at least 1",
		},
		{
			name:        "capacity above limit",
			slot:        Slot{ServiceID: "massage-60", StartTime: start, EndTime: start.Add(time.Hour), Capacity: 10001},
			expectValid: false,
			description: "capacity is bounded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.slot)
			if tt.expectValid && err != nil {
				t.Errorf("%s: expected valid, got %v", tt.description, err)
			}
			if !tt.expectValid && err == nil {
				t.Errorf("%s: expected validation error", tt.description)
			}
		})
	}
}
