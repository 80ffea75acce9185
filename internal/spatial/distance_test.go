package spatial

import (
	"math"
	"testing"
)

func TestHaversineDistance(t *testing.T) {
	// 0.001 degree of latitude
	d := HaversineDistance(50.000, 8.0, 50.001, 8.0)
	want := EarthRadiusMeters * 0.001 * math.Pi / 180
	if math.Abs(d-want) > 0.01 {
		t.Errorf("expected %f m, got %f m", want, d)
	}

	if d := HaversineDistance(10, 10, 10, 10); d != 0 {
		t.Errorf("expected zero distance for identical points, got %f", d)
	}
}

func TestTurnAngle(t *testing.T) {
	tests := []struct {
		name   string
		coords [6]float64
		want   float64
		ok     bool
	}{
		{"straight", [6]float64{50.000, 8, 50.001, 8, 50.002, 8}, 180, true},
		{"right angle", [6]float64{0, 0, 0, 1, 1, 1}, 90, true},
		{"reversal", [6]float64{0, 0, 0, 1, 0, 0}, 0, true},
		{"zero leg", [6]float64{0, 1, 0, 1, 0, 2}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.coords
			got, ok := TurnAngle(c[0], c[1], c[2], c[3], c[4], c[5])
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("angle = %f, want %f", got, tt.want)
			}
		})
	}
}
