package model

import (
	"testing"
	"time"
)

func TestReservationOverlaps(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r := &Reservation{StartTime: base, EndTime: base.Add(time.Hour)}

	tests := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"внутри", base.Add(10 * time.Minute), base.Add(20 * time.Minute), true},
		{"охватывает", base.Add(-time.Hour), base.Add(2 * time.Hour), true},
		{"пересекает начало", base.Add(-30 * time.Minute), base.Add(30 * time.Minute), true},
		{"встык до", base.Add(-time.Hour), base, false},
		{"встык после", base.Add(time.Hour), base.Add(2 * time.Hour), false},
		{"раньше", base.Add(-3 * time.Hour), base.Add(-2 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Overlaps(tt.start, tt.end); got != tt.want {
				t.Errorf("Overlaps() = %v, хотели %v", got, tt.want)
			}
		})
	}
}

func TestParseReservationType(t *testing.T) {
	if got, err := ParseReservationType("machine"); err != nil || got != ReservationMachine {
		t.Errorf("ParseReservationType(machine) = %q, %v", got, err)
	}
	if got, err := ParseReservationType("device"); err != nil || got != ReservationDevice {
		t.Errorf("ParseReservationType(device) = %q, %v", got, err)
	}
	if _, err := ParseReservationType("MACHINE"); err == nil {
		t.Error("ParseReservationType(MACHINE) должен вернуть ошибку")
	}
}
