package vision

import (
	"image"
	"log"
	"math"
	"sync"

	"gocv.io/x/gocv"
)

const (
	// EncodingDimensions is the store-wide embedding length.
	EncodingDimensions = 128

	DefaultBaseTolerance    = 0.65
	DefaultQualityThreshold = 0.25
	DefaultMaxUpsample      = 2

	goodQualityEarlyStop = 0.6
	faceDedupeIoU        = 0.5
)

// scoredFace is a candidate face found during multi-scale detection.
type scoredFace struct {
	box     FaceBox
	quality float64
}

// mirrorSnapshot is an immutable view of the face store used for matching.
// Mutations publish a whole new snapshot; readers never see a torn view.
type mirrorSnapshot struct {
	encodings [][]float32
	names     []string
	personIDs []string
}

// MatchResult is the outcome of recognizing a single person region.
type MatchResult struct {
	FaceFound  bool
	Matched    bool
	FaceBBox   [4]float64
	Name       string
	PersonID   string
	Confidence float64
	Quality    float64
}

// Recognizer detects and encodes faces within person crops and matches the
// encodings against an in-memory mirror of the face store.
type Recognizer struct {
	detector FaceDetector
	encoder  FaceEncoder

	BaseTolerance    float64
	QualityThreshold float64
	MaxUpsample      int

	mu     sync.RWMutex
	mirror *mirrorSnapshot
}

// NewRecognizer builds a Recognizer around a face detector and encoder.
func NewRecognizer(detector FaceDetector, encoder FaceEncoder, baseTolerance float64) *Recognizer {
	if baseTolerance <= 0 {
		baseTolerance = DefaultBaseTolerance
	}
	return &Recognizer{
		detector:         detector,
		encoder:          encoder,
		BaseTolerance:    baseTolerance,
		QualityThreshold: DefaultQualityThreshold,
		MaxUpsample:      DefaultMaxUpsample,
		mirror:           &mirrorSnapshot{},
	}
}

// SetMirror replaces the whole mirror in one atomic publication.
func (r *Recognizer) SetMirror(encodings [][]float32, names, personIDs []string) {
	snap := &mirrorSnapshot{
		encodings: encodings,
		names:     names,
		personIDs: personIDs,
	}
	r.mu.Lock()
	r.mirror = snap
	r.mu.Unlock()
}

// AppendMirror publishes a new snapshot with one more entry.
func (r *Recognizer) AppendMirror(encoding []float32, name, personID string) {
	r.mu.Lock()
	old := r.mirror
	snap := &mirrorSnapshot{
		encodings: append(append([][]float32{}, old.encodings...), encoding),
		names:     append(append([]string{}, old.names...), name),
		personIDs: append(append([]string{}, old.personIDs...), personID),
	}
	r.mirror = snap
	r.mu.Unlock()
}

// ClearMirror publishes an empty snapshot.
func (r *Recognizer) ClearMirror() {
	r.mu.Lock()
	r.mirror = &mirrorSnapshot{}
	r.mu.Unlock()
}

// MirrorCount reports the number of entries currently visible to matching.
func (r *Recognizer) MirrorCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mirror.encodings)
}

func (r *Recognizer) snapshot() *mirrorSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mirror
}

// detectBestFace runs multi-scale face detection over a person crop and
// returns the best face with its quality, or nil when no face is found.
// Upsample levels are tried in order and the search stops early once a face
// of good quality is seen; duplicates across levels are removed by IoU.
func (r *Recognizer) detectBestFace(region gocv.Mat) *scoredFace {
	if region.Empty() {
		return nil
	}

	var candidates []scoredFace
	for upsample := 0; upsample <= r.MaxUpsample; upsample++ {
		boxes := r.detector.DetectFaces(region, upsample)
		for _, box := range boxes {
			duplicate := false
			for _, existing := range candidates {
				if IoU(box.BBox, existing.box.BBox) > faceDedupeIoU {
					duplicate = true
					break
				}
			}
			if duplicate {
				continue
			}

			crop := cropRegion(region, box.BBox)
			quality := AssessFaceQuality(crop)
			crop.Close()
			candidates = append(candidates, scoredFace{box: box, quality: quality})
		}

		stop := false
		for _, c := range candidates {
			if c.quality >= goodQualityEarlyStop {
				stop = true
				break
			}
		}
		if stop {
			break
		}
	}

	if len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.quality > best.quality {
			best = c
		}
	}
	return &best
}

// RecognizePersonRegion runs the full per-person pipeline: multi-scale face
// detection, quality gate, enhancement, encoding, and adaptive matching.
func (r *Recognizer) RecognizePersonRegion(region gocv.Mat) MatchResult {
	best := r.detectBestFace(region)
	if best == nil {
		return MatchResult{}
	}

	if best.quality < r.QualityThreshold {
		return MatchResult{}
	}

	crop := cropRegion(region, best.box.BBox)
	enhanced := EnhanceFaceForAngle(crop)
	crop.Close()

	encoding := r.encoder.Encode(enhanced)
	enhanced.Close()
	if len(encoding) == 0 {
		return MatchResult{}
	}

	result := MatchResult{
		FaceFound: true,
		FaceBBox:  best.box.BBox,
		Quality:   best.quality,
	}

	name, personID, confidence, matched := MatchEncoding(encoding, r.snapshot(), best.quality, r.BaseTolerance)
	if matched {
		result.Matched = true
		result.Name = name
		result.PersonID = personID
		result.Confidence = confidence
	}
	return result
}

// EncodeSingleFace detects and encodes exactly one face at upsample 0, for
// the registration fast path where the subject is close to the camera.
// Returns the encoding and the face box, or ok=false when no face is found.
func (r *Recognizer) EncodeSingleFace(img gocv.Mat) (encoding []float32, box [4]float64, ok bool) {
	boxes := r.detector.DetectFaces(img, 0)
	if len(boxes) == 0 {
		return nil, box, false
	}

	best := boxes[0]
	for _, b := range boxes[1:] {
		if b.Confidence > best.Confidence {
			best = b
		}
	}

	crop := cropRegion(img, best.BBox)
	defer crop.Close()
	encoding = r.encoder.Encode(crop)
	if len(encoding) == 0 {
		log.Printf("recognition: failed to encode detected face")
		return nil, box, false
	}
	return encoding, best.BBox, true
}

// MatchEncoding scans the snapshot for the closest stored encoding and
// applies the quality-adaptive tolerance. Confidence is 1 - d/tolerance
// clamped to [0, 1].
func MatchEncoding(encoding []float32, snap *mirrorSnapshot, quality, baseTolerance float64) (name, personID string, confidence float64, matched bool) {
	if snap == nil || len(snap.encodings) == 0 {
		return "", "", 0, false
	}

	tolerance := AdaptiveTolerance(quality, baseTolerance)

	bestIdx := -1
	bestDist := math.MaxFloat64
	for i, stored := range snap.encodings {
		d := EuclideanDistance(encoding, stored)
		if d < bestDist {
			bestDist = d
			bestIdx = i
		}
	}

	if bestIdx < 0 || bestDist > tolerance {
		return "", "", 0, false
	}

	confidence = 1.0 - bestDist/tolerance
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return snap.names[bestIdx], snap.personIDs[bestIdx], confidence, true
}

// AdaptiveTolerance relaxes the matching threshold as face quality drops.
func AdaptiveTolerance(quality, base float64) float64 {
	switch {
	case quality < 0.5:
		return minF(0.75, base+0.10)
	case quality < 0.7:
		return minF(0.70, base+0.05)
	default:
		return base
	}
}

// EuclideanDistance computes the L2 distance between two encodings. A
// length mismatch yields +Inf so the pair can never match.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// IoU computes intersection-over-union for [x1,y1,x2,y2] boxes.
func IoU(a, b [4]float64) float64 {
	interX1 := maxF(a[0], b[0])
	interY1 := maxF(a[1], b[1])
	interX2 := minF(a[2], b[2])
	interY2 := minF(a[3], b[3])

	if interX2 < interX1 || interY2 < interY1 {
		return 0.0
	}

	interArea := (interX2 - interX1) * (interY2 - interY1)
	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - interArea
	if union <= 0 {
		return 0.0
	}
	return interArea / union
}

// cropRegion clones the sub-image bounded by box, clamped to img.
func cropRegion(img gocv.Mat, box [4]float64) gocv.Mat {
	x1 := int(maxF(0, box[0]))
	y1 := int(maxF(0, box[1]))
	x2 := int(minF(float64(img.Cols()), box[2]))
	y2 := int(minF(float64(img.Rows()), box[3]))
	if x2 <= x1 || y2 <= y1 {
		return gocv.NewMat()
	}
	roi := img.Region(image.Rect(x1, y1, x2, y2))
	defer roi.Close()
	return roi.Clone()
}
