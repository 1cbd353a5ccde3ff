package units

import (
	"math"
	"testing"
)

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		name     string
		speedMPS float64
		units    string
		expected float64
	}{
		{"mps passthrough", 12.16, MPS, 12.16},
		{"one radar step to kph", 3.04, KPH, 10.944},
		{"kmph alias", 3.04, KMPH, 10.944},
		{"max radar speed to mph", 45.6, MPH, 102.0043},
		{"unknown falls back to mps", 3.04, "knots", 3.04},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertSpeed(tt.speedMPS, tt.units)
			if math.Abs(got-tt.expected) > 0.001 {
				t.Errorf("ConvertSpeed(%f, %q) = %f, want %f", tt.speedMPS, tt.units, got, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	for _, u := range ValidUnits {
		if !IsValid(u) {
			t.Errorf("IsValid(%q) = false", u)
		}
	}
	for _, u := range []string{"", "MPS", "knots", "m/s"} {
		if IsValid(u) {
			t.Errorf("IsValid(%q) = true", u)
		}
	}
}

func TestFormatSpeed(t *testing.T) {
	tests := []struct {
		units string
		want  string
	}{
		{MPS, "12.2m/s"},
		{KPH, "43.8km/h"},
		{MPH, "27.2mph"},
	}
	for _, tt := range tests {
		if got := FormatSpeed(12.16, tt.units); got != tt.want {
			t.Errorf("FormatSpeed(12.16, %q) = %q, want %q", tt.units, got, tt.want)
		}
	}
}
