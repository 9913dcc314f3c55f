package tracker

import (
	"log"
	"sync"
	"time"
)

// Track statuses
const (
	StatusTracking = "Tracking"
	StatusKnown    = "Known"
	StatusUnknown  = "Unknown"
)

const (
	DefaultIoUThreshold   = 0.3
	DefaultMaxAge         = 3
	DefaultMinHits        = 1
	DefaultFaceMemoryTime = 3 * time.Second

	provisionalExpiry = 2 * time.Second
)

// Detection is a person observation handed to the tracker for association.
// BBox is [x1, y1, x2, y2] in frame pixel space.
type Detection struct {
	BBox       [4]float64
	Confidence float64
}

// Track is a live identity observed across consecutive frames.
type Track struct {
	TrackID             int        `json:"track_id"`
	BBox                [4]float64 `json:"bbox"`
	DetectionConfidence float64    `json:"confidence"`

	FaceBBox       *[4]float64 `json:"face_bbox,omitempty"`
	Name           string      `json:"name"`
	PersonID       string      `json:"person_id"`
	FaceConfidence float64     `json:"face_confidence"`
	Status         string      `json:"status"`

	FramesTracked  int       `json:"frames_tracked"`
	FramesLost     int       `json:"frames_lost"`
	FirstSeen      time.Time `json:"-"`
	LastSeen       time.Time `json:"-"`
	FaceLastSeen   time.Time `json:"-"`
}

// Color returns the advisory render color for the track's status as an
// (r, g, b) triple. Known is green, Unknown red, Tracking yellow.
func (t *Track) Color() (uint8, uint8, uint8) {
	switch t.Status {
	case StatusKnown:
		return 0, 255, 0
	case StatusUnknown:
		return 255, 0, 0
	default:
		return 255, 255, 0
	}
}

func (t *Track) clone() *Track {
	c := *t
	if t.FaceBBox != nil {
		box := *t.FaceBBox
		c.FaceBBox = &box
	}
	return &c
}

// Tracker assigns stable integer identities to detections across frames
// using greedy IoU association, and holds per-track face memory.
type Tracker struct {
	IoUThreshold   float64
	MaxAge         int
	MinHits        int
	FaceMemoryTime time.Duration

	mu     sync.Mutex
	nextID int
	tracks map[int]*Track
	now    func() time.Time
}

// NewTracker builds a tracker with the standard thresholds.
func NewTracker() *Tracker {
	t := &Tracker{
		IoUThreshold:   DefaultIoUThreshold,
		MaxAge:         DefaultMaxAge,
		MinHits:        DefaultMinHits,
		FaceMemoryTime: DefaultFaceMemoryTime,
		nextID:         1,
		tracks:         make(map[int]*Track),
		now:            time.Now,
	}
	log.Printf("tracker: initialized with max_age=%d frames", t.MaxAge)
	return t
}

// Update associates the frame's detections with live tracks and returns the
// resulting live set. Unmatched detections create new tracks; unmatched
// tracks age and are removed once lost for more than MaxAge frames.
func (tr *Tracker) Update(detections []Detection) []*Track {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	now := tr.now()

	for _, track := range tr.tracks {
		track.FramesLost++
	}

	matched := make(map[int]bool)
	var unmatched []Detection

	for _, det := range detections {
		bestIoU := 0.0
		bestID := -1

		for id, track := range tr.tracks {
			if matched[id] {
				continue
			}
			iou := boxIoU(det.BBox, track.BBox)
			if iou >= tr.IoUThreshold && iou > bestIoU {
				bestIoU = iou
				bestID = id
			}
		}

		if bestID >= 0 {
			track := tr.tracks[bestID]
			track.BBox = det.BBox
			track.DetectionConfidence = det.Confidence
			track.LastSeen = now
			track.FramesTracked++
			track.FramesLost = 0
			matched[bestID] = true
		} else {
			unmatched = append(unmatched, det)
		}
	}

	for _, det := range unmatched {
		id := tr.nextID
		tr.nextID++
		tr.tracks[id] = &Track{
			TrackID:             id,
			BBox:                det.BBox,
			DetectionConfidence: det.Confidence,
			Name:                "",
			Status:              StatusTracking,
			FramesTracked:       1,
			FirstSeen:           now,
			LastSeen:            now,
		}
	}

	tr.removeStale(now)
	tr.decayFaceMemory(now)

	return tr.snapshotLocked()
}

// UpdateFace records face recognition output for a specific track.
func (tr *Tracker) UpdateFace(trackID int, faceBBox [4]float64, name, personID string, confidence float64, matched bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	track, ok := tr.tracks[trackID]
	if !ok {
		return
	}

	box := faceBBox
	track.FaceBBox = &box
	track.FaceLastSeen = tr.now()

	if matched {
		track.Name = name
		track.PersonID = personID
		track.FaceConfidence = confidence
		track.Status = StatusKnown
	} else if track.Status != StatusKnown {
		track.Status = StatusUnknown
	}
}

// GetTrack returns a copy of the track with the given id, or nil.
func (tr *Tracker) GetTrack(trackID int) *Track {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if track, ok := tr.tracks[trackID]; ok {
		return track.clone()
	}
	return nil
}

// Tracks returns a copy of the current live set.
func (tr *Tracker) Tracks() []*Track {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.snapshotLocked()
}

// Reset removes all tracks. Track ids are not reused; the counter keeps
// increasing for the lifetime of the tracker.
func (tr *Tracker) Reset() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.tracks = make(map[int]*Track)
}

func (tr *Tracker) snapshotLocked() []*Track {
	out := make([]*Track, 0, len(tr.tracks))
	for _, track := range tr.tracks {
		out = append(out, track.clone())
	}
	return out
}

func (tr *Tracker) removeStale(now time.Time) {
	for id, track := range tr.tracks {
		if track.FramesLost > tr.MaxAge {
			delete(tr.tracks, id)
			continue
		}
		if track.FramesTracked < tr.MinHits && now.Sub(track.LastSeen) > provisionalExpiry {
			delete(tr.tracks, id)
		}
	}
}

// decayFaceMemory clears stale face boxes. A Known identity is sticky: the
// name and status survive decay, only the displayed face box is dropped.
func (tr *Tracker) decayFaceMemory(now time.Time) {
	for _, track := range tr.tracks {
		if track.FaceLastSeen.IsZero() || now.Sub(track.FaceLastSeen) <= tr.FaceMemoryTime {
			continue
		}
		if track.FaceBBox == nil {
			continue
		}
		track.FaceBBox = nil
		if track.Status != StatusKnown {
			track.Name = ""
			track.PersonID = ""
			track.FaceConfidence = 0
			track.Status = StatusTracking
		}
	}
}

// LinkFaceToPerson reports whether a face box belongs to a person box: the
// face center lies inside the person box, or more than half of the face
// overlaps it.
func LinkFaceToPerson(personBBox, faceBBox [4]float64) bool {
	centerX := (faceBBox[0] + faceBBox[2]) / 2
	centerY := (faceBBox[1] + faceBBox[3]) / 2
	if centerX >= personBBox[0] && centerX <= personBBox[2] &&
		centerY >= personBBox[1] && centerY <= personBBox[3] {
		return true
	}

	overlapX := minF(personBBox[2], faceBBox[2]) - maxF(personBBox[0], faceBBox[0])
	overlapY := minF(personBBox[3], faceBBox[3]) - maxF(personBBox[1], faceBBox[1])
	if overlapX <= 0 || overlapY <= 0 {
		return false
	}

	faceArea := (faceBBox[2] - faceBBox[0]) * (faceBBox[3] - faceBBox[1])
	if faceArea <= 0 {
		return false
	}
	return overlapX*overlapY/faceArea > 0.5
}

func boxIoU(a, b [4]float64) float64 {
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

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
