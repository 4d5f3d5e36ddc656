package detection

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/vehicle-crop/pkg/client"
	"github.com/menta2k/vehicle-crop/pkg/types"
)

type fakeVisionClient struct {
	result *types.AnalysisResult
	err    error
	prompt string
	reply  string
}

func (f *fakeVisionClient) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

func (f *fakeVisionClient) AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error) {
	f.prompt = prompt
	return f.result, f.err
}

func encodeStub(image.Image) (string, error) { return "aGVsbG8=", nil }

func TestClassTaxonomy(t *testing.T) {
	assert.Equal(t, "car", ClassName(ClassCar))
	assert.Equal(t, "truck", ClassName(ClassTruck))
	assert.Equal(t, "person", ClassName(ClassPerson))
	assert.Equal(t, "toothbrush", ClassName(NumClasses-1))
	assert.Equal(t, "", ClassName(NumClasses))
	assert.Equal(t, "", ClassName(-1))

	id, ok := ClassID(" Car ")
	require.True(t, ok)
	assert.Equal(t, ClassCar, id)

	id, ok = ClassID("lorry")
	require.True(t, ok)
	assert.Equal(t, ClassTruck, id)

	_, ok = ClassID("spaceship")
	assert.False(t, ok)
}

func TestIsVehicle(t *testing.T) {
	assert.True(t, IsVehicle(ClassCar))
	assert.True(t, IsVehicle(ClassTruck))
	assert.False(t, IsVehicle(ClassBus))
	assert.False(t, IsVehicle(ClassPerson))
}

func TestFilterByConfidence(t *testing.T) {
	dets := []types.Detection{
		{ClassID: ClassCar, Confidence: 0.4},
		{ClassID: ClassCar, Confidence: 0.5},
		{ClassID: ClassTruck, Confidence: 0.9},
	}

	out := FilterByConfidence(dets, 0.5)
	require.Len(t, out, 2)
	assert.Equal(t, 0.5, out[0].Confidence)
	assert.Len(t, dets, 3, "input must not be modified")
}

func TestVisionDetectorDetect(t *testing.T) {
	fake := &fakeVisionClient{result: &types.AnalysisResult{Objects: []types.LabeledObject{
		{Label: "car", Confidence: 0.9, Box: types.Box{X1: 0.1, Y1: 0.2, X2: 0.5, Y2: 0.6}},
		{Label: "person", Confidence: 0.8, Box: types.Box{X1: 0.5, Y1: 0.0, X2: 0.7, Y2: 1.0}},
		{Label: "truck", Confidence: 0.2, Box: types.Box{X1: 0, Y1: 0, X2: 1, Y2: 1}},
		{Label: "unicorn", Confidence: 0.99, Box: types.Box{X1: 0, Y1: 0, X2: 1, Y2: 1}},
		{Label: "car", Confidence: 0.9, Box: types.Box{X1: 0.3, Y1: 0.3, X2: 0.3, Y2: 0.5}},
	}}}

	d := NewVisionDetector(fake, encodeStub, VisionConfig{Model: "m", ConfidenceThreshold: 0.5})
	defer d.Close()

	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	dets, err := d.Detect(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, dets, 2)

	assert.Equal(t, DefaultPrompt, fake.prompt)
	assert.Equal(t, ClassCar, dets[0].ClassID)
	assert.InDelta(t, 20, dets[0].Box.X1, 1e-9)
	assert.InDelta(t, 20, dets[0].Box.Y1, 1e-9)
	assert.InDelta(t, 100, dets[0].Box.X2, 1e-9)
	assert.InDelta(t, 60, dets[0].Box.Y2, 1e-9)
	assert.Equal(t, ClassPerson, dets[1].ClassID)
}

func TestVisionDetectorPropagatesErrors(t *testing.T) {
	boom := errors.New("model offline")
	d := NewVisionDetector(&fakeVisionClient{err: boom}, encodeStub, VisionConfig{})

	_, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 10, 10)))
	assert.ErrorIs(t, err, boom)
}

func TestVisionDetectorWarnsOnReplyWithoutJSON(t *testing.T) {
	log, hook := test.NewNullLogger()
	parsed, err := client.ParseAnalysisResult("I see a red car.")
	require.NoError(t, err)

	d := NewVisionDetector(&fakeVisionClient{result: parsed}, encodeStub, VisionConfig{Model: "m", Logger: log})
	dets, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 10, 10)))
	require.NoError(t, err)
	assert.Empty(t, dets)

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "m", hook.LastEntry().Data["model"])

	// an empty JSON answer is a real "nothing found"
	hook.Reset()
	d = NewVisionDetector(&fakeVisionClient{result: &types.AnalysisResult{Description: "no objects"}}, encodeStub, VisionConfig{Logger: log})
	_, err = d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 10, 10)))
	require.NoError(t, err)
	assert.Empty(t, hook.Entries)
}

func TestVisionDetectorPing(t *testing.T) {
	tests := []struct {
		name    string
		fake    *fakeVisionClient
		wantErr string
	}{
		{"answers", &fakeVisionClient{reply: "OK"}, ""},
		{"unreachable", &fakeVisionClient{err: errors.New("connection refused")}, "not reachable"},
		{"silent", &fakeVisionClient{reply: "  "}, "empty reply"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewVisionDetector(tt.fake, encodeStub, VisionConfig{Model: "m"})
			err := d.Ping(context.Background())
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, pingPrompt, tt.fake.prompt)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNormalizeBox(t *testing.T) {
	b := normalizeBox(types.Box{X1: 0.9, Y1: 1.2, X2: -0.1, Y2: 0.5})
	assert.Equal(t, types.Box{X1: 0, Y1: 0.5, X2: 0.9, Y2: 1}, b)
}

func TestFuncDetector(t *testing.T) {
	var d Detector = Func(func(ctx context.Context, img image.Image) ([]types.Detection, error) {
		return []types.Detection{{ClassID: ClassCar}}, nil
	})
	dets, err := d.Detect(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, dets, 1)
	assert.NoError(t, d.Close())
}
