package vision

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySource(t *testing.T) {
	cases := []struct {
		uri  string
		want SourceType
	}{
		{"0", SourceWebcam},
		{"12", SourceWebcam},
		{" 1 ", SourceWebcam},
		{"rtsp://cam.local/stream1", SourceRTSP},
		{"RTSP://CAM.LOCAL/STREAM1", SourceRTSP},
		{"http://cam.local/mjpeg", SourceHTTP},
		{"https://cam.local/mjpeg", SourceHTTP},
		{"rtmp://cam.local/live", SourceRTMP},
		{"/videos/lobby.mp4", SourceFile},
		{"clip.MKV", SourceFile},
		{"", SourceNone},
		{"   ", SourceNone},
		{"not-a-source", SourceNone},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifySource(tc.uri), "uri %q", tc.uri)
	}
}

func TestEuclideanDistance(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	assert.InDelta(t, math.Sqrt(2), EuclideanDistance(a, b), 1e-9)
	assert.InDelta(t, 0, EuclideanDistance(a, a), 1e-9)

	t.Run("length mismatch never matches", func(t *testing.T) {
		assert.True(t, math.IsInf(EuclideanDistance(a, []float32{1, 0}), 1))
		assert.True(t, math.IsInf(EuclideanDistance(nil, nil), 1))
	})
}

func TestIoU(t *testing.T) {
	a := [4]float64{0, 0, 10, 10}
	assert.InDelta(t, 1.0, IoU(a, a), 1e-9)
	assert.InDelta(t, 0.0, IoU(a, [4]float64{20, 20, 30, 30}), 1e-9)

	got := IoU(a, [4]float64{5, 0, 15, 10})
	assert.InDelta(t, 50.0/150.0, got, 1e-9)
}

func TestAdaptiveTolerance(t *testing.T) {
	base := 0.6

	assert.InDelta(t, 0.70, AdaptiveTolerance(0.3, base), 1e-9)
	assert.InDelta(t, 0.65, AdaptiveTolerance(0.6, base), 1e-9)
	assert.InDelta(t, base, AdaptiveTolerance(0.9, base), 1e-9)

	t.Run("caps apply for loose bases", func(t *testing.T) {
		assert.InDelta(t, 0.75, AdaptiveTolerance(0.3, 0.72), 1e-9)
		assert.InDelta(t, 0.70, AdaptiveTolerance(0.6, 0.72), 1e-9)
	})
}

func TestMatchEncoding(t *testing.T) {
	snap := &mirrorSnapshot{
		encodings: [][]float32{
			{1, 0, 0},
			{0, 1, 0},
		},
		names:     []string{"Ada", "Grace"},
		personIDs: []string{"emp-1", "emp-2"},
	}

	t.Run("closest entry wins", func(t *testing.T) {
		name, personID, confidence, matched := MatchEncoding([]float32{0.9, 0.1, 0}, snap, 0.9, 0.65)
		require.True(t, matched)
		assert.Equal(t, "Ada", name)
		assert.Equal(t, "emp-1", personID)
		assert.Greater(t, confidence, 0.0)
		assert.LessOrEqual(t, confidence, 1.0)
	})

	t.Run("distance beyond tolerance rejects", func(t *testing.T) {
		_, _, _, matched := MatchEncoding([]float32{-1, -1, -1}, snap, 0.9, 0.65)
		assert.False(t, matched)
	})

	t.Run("low quality relaxes tolerance", func(t *testing.T) {
		// distance just above base tolerance but inside the relaxed one
		probe := []float32{0.52, 0, 0}
		_, _, _, strict := MatchEncoding(probe, snap, 0.9, 0.45)
		assert.False(t, strict)

		_, _, _, relaxed := MatchEncoding(probe, snap, 0.3, 0.45)
		assert.True(t, relaxed)
	})

	t.Run("empty mirror", func(t *testing.T) {
		_, _, _, matched := MatchEncoding([]float32{1, 0, 0}, &mirrorSnapshot{}, 0.9, 0.65)
		assert.False(t, matched)
		_, _, _, matched = MatchEncoding([]float32{1, 0, 0}, nil, 0.9, 0.65)
		assert.False(t, matched)
	})
}

func TestRecognizerMirrorPublication(t *testing.T) {
	r := NewRecognizer(nil, nil, 0.65)
	assert.Equal(t, 0, r.MirrorCount())

	r.SetMirror([][]float32{{1, 0}}, []string{"Ada"}, []string{"emp-1"})
	assert.Equal(t, 1, r.MirrorCount())

	old := r.snapshot()
	r.AppendMirror([]float32{0, 1}, "Grace", "emp-2")
	assert.Equal(t, 2, r.MirrorCount())
	assert.Len(t, old.encodings, 1, "published snapshots are immutable")

	r.ClearMirror()
	assert.Equal(t, 0, r.MirrorCount())
}

func TestFilterPersonDetections(t *testing.T) {
	params := DefaultPersonFilterParams()

	good := Detection{BBox: [4]float64{100, 100, 200, 400}, Confidence: 0.9}

	cases := []struct {
		name string
		det  Detection
		keep bool
	}{
		{"valid person", good, true},
		{"below confidence", Detection{BBox: good.BBox, Confidence: 0.2}, false},
		{"tiny area", Detection{BBox: [4]float64{0, 0, 30, 60}, Confidence: 0.9}, false},
		{"pole-like aspect", Detection{BBox: [4]float64{0, 0, 60, 400}, Confidence: 0.9}, false},
		{"table-like aspect", Detection{BBox: [4]float64{0, 0, 400, 80}, Confidence: 0.9}, false},
		{"inverted box", Detection{BBox: [4]float64{200, 400, 100, 100}, Confidence: 0.9}, false},
		{"implausibly wide", Detection{BBox: [4]float64{0, 0, 900, 1100}, Confidence: 0.9}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := FilterPersonDetections([]Detection{tc.det}, params)
			if tc.keep {
				assert.Len(t, out, 1)
			} else {
				assert.Empty(t, out)
			}
		})
	}

	t.Run("order preserved", func(t *testing.T) {
		second := Detection{BBox: [4]float64{300, 100, 400, 400}, Confidence: 0.8}
		out := FilterPersonDetections([]Detection{good, second}, params)
		require.Len(t, out, 2)
		assert.Equal(t, good.BBox, out[0].BBox)
		assert.Equal(t, second.BBox, out[1].BBox)
	})
}

func TestQualityScore(t *testing.T) {
	assert.Equal(t, 0.0, QualityScore(0, 50, 100, 128))
	assert.Equal(t, 0.0, QualityScore(50, -1, 100, 128))

	// large sharp well-lit face saturates every component
	assert.InDelta(t, 1.0, QualityScore(200, 200, 1000, 128), 1e-9)

	// dark frame only loses the brightness component
	dark := QualityScore(200, 200, 1000, 0)
	assert.InDelta(t, 0.8, dark, 1e-9)

	small := QualityScore(20, 20, 1000, 128)
	assert.Less(t, small, 0.7)
}
