package selector

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/vehicle-crop/pkg/detection"
	"github.com/menta2k/vehicle-crop/pkg/types"
)

func det(class int, x1, y1, x2, y2 float64) types.Detection {
	return types.Detection{ClassID: class, Confidence: 0.9, Box: types.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}}
}

func TestVehicleBoxScenarios(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		detections    []types.Detection
		expected      types.SelectedBox
	}{
		{
			name:     "no detections falls back to full image",
			width:    640,
			height:   480,
			expected: types.SelectedBox{Left: 0, Top: 0, Right: 640, Bottom: 480},
		},
		{
			name:   "larger person box is ignored",
			width:  640,
			height: 480,
			detections: []types.Detection{
				det(detection.ClassCar, 10, 10, 100, 100),
				det(detection.ClassPerson, 0, 0, 640, 480),
			},
			expected: types.SelectedBox{Left: 10, Top: 10, Right: 100, Bottom: 100},
		},
		{
			name:   "truck with larger area wins over car",
			width:  640,
			height: 480,
			detections: []types.Detection{
				det(detection.ClassCar, 0, 0, 50, 50),
				det(detection.ClassTruck, 0, 0, 200, 200),
			},
			expected: types.SelectedBox{Left: 0, Top: 0, Right: 200, Bottom: 200},
		},
		{
			name:       "coordinates are truncated not rounded",
			width:      640,
			height:     480,
			detections: []types.Detection{det(detection.ClassCar, 1.7, 2.3, 100.9, 200.1)},
			expected:   types.SelectedBox{Left: 1, Top: 2, Right: 100, Bottom: 200},
		},
		{
			name:   "only non-vehicle detections fall back to full image",
			width:  300,
			height: 200,
			detections: []types.Detection{
				det(detection.ClassPerson, 10, 10, 50, 50),
				det(detection.ClassBicycle, 20, 20, 90, 90),
				det(detection.ClassBus, 0, 0, 300, 200),
			},
			expected: types.SelectedBox{Left: 0, Top: 0, Right: 300, Bottom: 200},
		},
		{
			name:   "equal areas keep the first occurrence",
			width:  640,
			height: 480,
			detections: []types.Detection{
				det(detection.ClassTruck, 100, 100, 200, 200),
				det(detection.ClassCar, 0, 0, 100, 100),
			},
			expected: types.SelectedBox{Left: 100, Top: 100, Right: 200, Bottom: 200},
		},
		{
			name:   "confidence does not influence the choice",
			width:  640,
			height: 480,
			detections: []types.Detection{
				{ClassID: detection.ClassCar, Confidence: 0.99, Box: types.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}},
				{ClassID: detection.ClassCar, Confidence: 0.51, Box: types.Box{X1: 0, Y1: 0, X2: 20, Y2: 20}},
			},
			expected: types.SelectedBox{Left: 0, Top: 0, Right: 20, Bottom: 20},
		},
		{
			name:       "box touching the image edge is valid",
			width:      640,
			height:     480,
			detections: []types.Detection{det(detection.ClassCar, 0, 0, 640, 480)},
			expected:   types.SelectedBox{Left: 0, Top: 0, Right: 640, Bottom: 480},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box, err := VehicleBox(tt.width, tt.height, tt.detections)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, box)
		})
	}
}

func TestVehicleBoxErrors(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		detections    []types.Detection
		expected      error
	}{
		{"zero width", 0, 480, nil, ErrInvalidDimensions},
		{"negative height", 640, -1, nil, ErrInvalidDimensions},
		{"inverted x", 640, 480, []types.Detection{det(detection.ClassCar, 100, 0, 50, 50)}, ErrMalformedBox},
		{"inverted y", 640, 480, []types.Detection{det(detection.ClassCar, 0, 100, 50, 50)}, ErrMalformedBox},
		{"negative coordinate", 640, 480, []types.Detection{det(detection.ClassTruck, -1, 0, 50, 50)}, ErrMalformedBox},
		{"outside right edge", 640, 480, []types.Detection{det(detection.ClassCar, 0, 0, 641, 50)}, ErrMalformedBox},
		{"outside bottom edge", 640, 480, []types.Detection{det(detection.ClassCar, 0, 0, 50, 480.5)}, ErrMalformedBox},
		{"nan coordinate", 640, 480, []types.Detection{det(detection.ClassCar, math.NaN(), 0, 50, 50)}, ErrMalformedBox},
		{"sub-pixel box", 640, 480, []types.Detection{det(detection.ClassCar, 10.2, 10, 10.8, 50)}, ErrDegenerateBox},
		{"malformed box behind a valid one", 640, 480, []types.Detection{
			det(detection.ClassCar, 0, 0, 50, 50),
			det(detection.ClassCar, 60, 60, 10, 10),
		}, ErrMalformedBox},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VehicleBox(tt.width, tt.height, tt.detections)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestNonVehicleDetectionsAreNotValidated(t *testing.T) {
	dets := []types.Detection{
		det(detection.ClassPerson, -50, -50, 5000, 5000),
		det(detection.ClassCar, 10, 10, 20, 20),
	}

	box, err := VehicleBox(100, 100, dets)
	require.NoError(t, err)
	assert.Equal(t, types.SelectedBox{Left: 10, Top: 10, Right: 20, Bottom: 20}, box)
}

func TestSelectDoesNotMutateInput(t *testing.T) {
	dets := []types.Detection{
		det(detection.ClassCar, 1.5, 1.5, 30.5, 30.5),
		det(detection.ClassTruck, 2, 2, 10, 10),
	}
	orig := append([]types.Detection(nil), dets...)

	_, err := VehicleBox(100, 100, dets)
	require.NoError(t, err)
	assert.Equal(t, orig, dets)
}

func TestCustomClasses(t *testing.T) {
	s := New(detection.ClassBus)
	assert.True(t, s.Eligible(detection.ClassBus))
	assert.False(t, s.Eligible(detection.ClassCar))

	dets := []types.Detection{
		det(detection.ClassCar, 0, 0, 90, 90),
		det(detection.ClassBus, 5, 5, 15, 15),
	}
	box, err := s.Select(100, 100, dets)
	require.NoError(t, err)
	assert.Equal(t, types.SelectedBox{Left: 5, Top: 5, Right: 15, Bottom: 15}, box)
}

// TestSelectProperties checks the output guarantees over random detection sets.
func TestSelectProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	classes := []int{detection.ClassPerson, detection.ClassCar, detection.ClassTruck, detection.ClassBus}

	for i := 0; i < 500; i++ {
		width, height := 1+rng.Intn(1000), 1+rng.Intn(1000)
		n := rng.Intn(6)
		dets := make([]types.Detection, 0, n)
		bestArea, bestIdx := -1.0, -1
		for j := 0; j < n; j++ {
			x1 := float64(rng.Intn(width))
			y1 := float64(rng.Intn(height))
			x2 := x1 + 1 + float64(rng.Intn(width-int(x1)))
			y2 := y1 + 1 + float64(rng.Intn(height-int(y1)))
			if x2 > float64(width) {
				x2 = float64(width)
			}
			if y2 > float64(height) {
				y2 = float64(height)
			}
			d := det(classes[rng.Intn(len(classes))], x1, y1, x2, y2)
			dets = append(dets, d)
			if detection.IsVehicle(d.ClassID) && d.Box.Area() > bestArea {
				bestArea, bestIdx = d.Box.Area(), j
			}
		}

		box, err := VehicleBox(width, height, dets)
		require.NoError(t, err)

		assert.True(t, 0 <= box.Left && box.Left < box.Right && box.Right <= width, "x range %v for %dx%d", box, width, height)
		assert.True(t, 0 <= box.Top && box.Top < box.Bottom && box.Bottom <= height, "y range %v for %dx%d", box, width, height)

		if bestIdx < 0 {
			assert.Equal(t, types.FullImage(width, height), box)
			continue
		}
		b := dets[bestIdx].Box
		assert.Equal(t, types.SelectedBox{Left: int(b.X1), Top: int(b.Y1), Right: int(b.X2), Bottom: int(b.Y2)}, box)
	}
}

func BenchmarkVehicleBox(b *testing.B) {
	dets := make([]types.Detection, 0, 100)
	for i := 0; i < 100; i++ {
		dets = append(dets, det(i%8, float64(i), float64(i), float64(i+50), float64(i+80)))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = VehicleBox(1920, 1080, dets)
	}
}
