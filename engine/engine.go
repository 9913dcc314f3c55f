package engine

import (
	"fmt"
	"image"
	"image/color"
	"log"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/visionsuite/attendvision/config"
	"github.com/visionsuite/attendvision/realtime"
	"github.com/visionsuite/attendvision/runstate"
	"github.com/visionsuite/attendvision/services"
	"github.com/visionsuite/attendvision/tracker"
	"github.com/visionsuite/attendvision/vision"
	"github.com/visionsuite/attendvision/workers"
)

const (
	// recognitionTTL is how long a Known track keeps its identity before
	// the face is re-verified.
	recognitionTTL = 2 * time.Second

	idleNoSourceSleep = 1 * time.Second
	idleNoFrameSleep  = 100 * time.Millisecond
)

// Status is the externally visible processing state.
type Status struct {
	Running         bool             `json:"running"`
	Source          string           `json:"source"`
	SourceType      string           `json:"source_type"`
	FramesProcessed uint64           `json:"frames_processed"`
	LastFrameAt     int64            `json:"last_frame_at,omitempty"`
	ActiveTracks    int              `json:"active_tracks"`
	KnownFaces      int              `json:"known_faces"`
	Health          *vision.Health   `json:"health,omitempty"`
	Tracks          []*tracker.Track `json:"tracks"`
}

// Engine drives the full pipeline: frame ingest, person detection, identity
// tracking, face recognition, and automatic attendance marking. One engine
// runs at most one source at a time.
type Engine struct {
	cfg        config.Config
	detector   vision.PersonDetector
	recognizer *vision.Recognizer
	tracks     *tracker.Tracker
	attendance *services.AttendanceService
	snapshots  *workers.SnapshotProcessor
	hub        *realtime.Hub
	state      *runstate.File

	mu       sync.Mutex
	ingestor *vision.Ingestor
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	// pipelineMu serializes detection, tracking, and recognition passes
	// between the background loop and interactive recognition.
	pipelineMu sync.Mutex

	frameMu         sync.RWMutex
	lastJPEG        []byte
	lastTracks      []*tracker.Track
	framesProcessed uint64
	lastFrameAt     time.Time

	marked map[int]bool
}

// New builds the engine around its collaborators.
func New(
	cfg config.Config,
	detector vision.PersonDetector,
	recognizer *vision.Recognizer,
	tracks *tracker.Tracker,
	attendance *services.AttendanceService,
	snapshots *workers.SnapshotProcessor,
	hub *realtime.Hub,
	state *runstate.File,
) *Engine {
	return &Engine{
		cfg:        cfg,
		detector:   detector,
		recognizer: recognizer,
		tracks:     tracks,
		attendance: attendance,
		snapshots:  snapshots,
		hub:        hub,
		state:      state,
		marked:     make(map[int]bool),
	}
}

// StartSource opens the given source and starts the processing loop. An
// empty uri falls back to the configured default source.
func (e *Engine) StartSource(uri string) error {
	if uri == "" {
		uri = e.cfg.DefaultSource
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return services.ErrAlreadyRunning
	}

	ing, err := vision.OpenIngestor(uri, vision.IngestorOptions{
		MaxWidth:       e.cfg.MaxFrameWidth,
		MaxHeight:      e.cfg.MaxFrameHeight,
		ReconnectDelay: e.cfg.ReconnectDelay,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", services.ErrSourceOpenFailed, err)
	}

	e.ingestor = ing
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.tracks.Reset()
	e.marked = make(map[int]bool)

	if err := e.state.SetActive(uri, string(ing.SourceType())); err != nil {
		log.Printf("engine: failed to persist run state: %v", err)
	}

	go e.loop(e.stopCh, e.doneCh)

	log.Printf("engine: started processing source %s (%s)", uri, ing.SourceType())
	e.hub.Broadcast(realtime.Event{Type: realtime.EventStreamStarted, Source: uri})
	return nil
}

// StopSource stops the processing loop and releases the source.
func (e *Engine) StopSource() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return services.ErrNotRunning
	}
	stopCh, doneCh := e.stopCh, e.doneCh
	ing := e.ingestor
	e.running = false
	e.ingestor = nil
	e.mu.Unlock()

	close(stopCh)
	<-doneCh
	ing.Close()

	if err := e.state.SetInactive(); err != nil {
		log.Printf("engine: failed to persist run state: %v", err)
	}

	e.frameMu.Lock()
	e.lastJPEG = nil
	e.lastTracks = nil
	e.frameMu.Unlock()

	log.Println("engine: stopped processing")
	e.hub.Broadcast(realtime.Event{Type: realtime.EventStreamStopped})
	return nil
}

// Resume restarts processing from the persisted run state after a process
// restart.
func (e *Engine) Resume() {
	st := e.state.Snapshot()
	if !st.Active || st.Source == "" {
		return
	}
	log.Printf("engine: resuming persisted source %s", st.Source)
	if err := e.StartSource(st.Source); err != nil {
		log.Printf("engine: failed to resume source %s: %v", st.Source, err)
		if stateErr := e.state.SetInactive(); stateErr != nil {
			log.Printf("engine: failed to clear run state: %v", stateErr)
		}
	}
}

// Running reports whether a source is being processed.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Status returns the current processing state and live tracks.
func (e *Engine) Status() Status {
	e.mu.Lock()
	ing := e.ingestor
	running := e.running
	e.mu.Unlock()

	st := Status{
		Running:    running,
		KnownFaces: e.recognizer.MirrorCount(),
	}
	if ing != nil {
		st.Source = ing.URI()
		st.SourceType = string(ing.SourceType())
		h := ing.Health()
		st.Health = &h
	}

	e.frameMu.RLock()
	st.FramesProcessed = e.framesProcessed
	if !e.lastFrameAt.IsZero() {
		st.LastFrameAt = e.lastFrameAt.Unix()
	}
	st.Tracks = e.lastTracks
	e.frameMu.RUnlock()
	st.ActiveTracks = len(st.Tracks)
	return st
}

// CurrentJPEG returns the latest annotated frame, or nil when idle.
func (e *Engine) CurrentJPEG() []byte {
	e.frameMu.RLock()
	defer e.frameMu.RUnlock()
	return e.lastJPEG
}

// CurrentTracks returns the live set from the last processed frame.
func (e *Engine) CurrentTracks() []*tracker.Track {
	e.frameMu.RLock()
	defer e.frameMu.RUnlock()
	return e.lastTracks
}

// Close stops processing if running.
func (e *Engine) Close() {
	if err := e.StopSource(); err != nil && err != services.ErrNotRunning {
		log.Printf("engine: error during shutdown: %v", err)
	}
}

func (e *Engine) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	interval := time.Duration(e.cfg.BackgroundIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		e.mu.Lock()
		ing := e.ingestor
		e.mu.Unlock()
		if ing == nil {
			if !e.sleepOrStop(idleNoSourceSleep, stopCh) {
				return
			}
			continue
		}

		frame := ing.LatestFrame()
		if frame == nil {
			if !e.sleepOrStop(idleNoFrameSleep, stopCh) {
				return
			}
			continue
		}

		start := time.Now()
		e.processFrame(frame)
		frame.Close()

		elapsed := time.Since(start)
		if elapsed < interval {
			if !e.sleepOrStop(interval-elapsed, stopCh) {
				return
			}
		}
	}
}

// processFrame runs one detection, tracking, and recognition pass and
// publishes the annotated result.
func (e *Engine) processFrame(frame *vision.Frame) {
	now := time.Now()

	e.pipelineMu.Lock()
	live := e.runPipeline(frame, now, true)
	e.pipelineMu.Unlock()

	e.publish(frame, live, now)
}

// runPipeline runs detection, tracker update, and per-track recognition on
// one frame and returns the live track set. Callers must hold pipelineMu.
func (e *Engine) runPipeline(frame *vision.Frame, now time.Time, markAttendance bool) []*tracker.Track {
	detections := e.detector.Detect(frame.Mat)

	trackerDets := make([]tracker.Detection, len(detections))
	for i, d := range detections {
		trackerDets[i] = tracker.Detection{BBox: d.BBox, Confidence: d.Confidence}
	}
	live := e.tracks.Update(trackerDets)

	for _, trk := range live {
		if trk.FramesLost > 0 {
			continue
		}
		if trk.Status == tracker.StatusKnown && now.Sub(trk.FaceLastSeen) < recognitionTTL {
			continue
		}
		e.recognizeTrack(frame, trk, now, markAttendance)
	}

	live = e.tracks.Tracks()
	e.pruneMarked(live)
	return live
}

// RecognizeNow runs a synchronous detection, tracking, and recognition pass
// on the supplied image, or on the latest raw source frame when imageData is
// empty. It returns the resulting live track set without publishing an
// annotated frame and without marking attendance.
func (e *Engine) RecognizeNow(imageData []byte) ([]*tracker.Track, error) {
	now := time.Now()

	var frame *vision.Frame
	if len(imageData) == 0 {
		e.mu.Lock()
		ing := e.ingestor
		e.mu.Unlock()
		if ing == nil {
			return nil, services.ErrFrameUnavailable
		}
		frame = ing.LatestFrame()
		if frame == nil {
			return nil, services.ErrFrameUnavailable
		}
	} else {
		img, err := gocv.IMDecode(imageData, gocv.IMReadColor)
		if err != nil || img.Empty() {
			if err == nil {
				img.Close()
			}
			return nil, services.ErrInvalidImage
		}
		frame = &vision.Frame{
			Mat:       img,
			Width:     img.Cols(),
			Height:    img.Rows(),
			Timestamp: now,
			SourceTag: "upload",
		}
	}
	defer frame.Close()

	e.pipelineMu.Lock()
	live := e.runPipeline(frame, now, false)
	e.pipelineMu.Unlock()
	return live, nil
}

// recognizeTrack runs face recognition on one person region and, when
// markAttendance is set, records attendance for a fresh match.
func (e *Engine) recognizeTrack(frame *vision.Frame, trk *tracker.Track, now time.Time, markAttendance bool) {
	region := cropMat(frame.Mat, trk.BBox)
	if region.Empty() {
		region.Close()
		return
	}

	result := e.recognizer.RecognizePersonRegion(region)
	if !result.FaceFound {
		region.Close()
		return
	}

	// face coordinates come back in crop space
	faceBBox := [4]float64{
		result.FaceBBox[0] + trk.BBox[0],
		result.FaceBBox[1] + trk.BBox[1],
		result.FaceBBox[2] + trk.BBox[0],
		result.FaceBBox[3] + trk.BBox[1],
	}
	if !tracker.LinkFaceToPerson(trk.BBox, faceBBox) {
		region.Close()
		return
	}

	e.tracks.UpdateFace(trk.TrackID, faceBBox, result.Name, result.PersonID, result.Confidence, result.Matched)

	if markAttendance && result.Matched && !e.marked[trk.TrackID] {
		e.marked[trk.TrackID] = true

		record, err := e.attendance.MarkAutomatic(result.PersonID, result.Name, result.Confidence, frame.SourceTag, "")
		switch {
		case err == services.ErrDuplicateSuppressed:
			log.Printf("engine: duplicate check-in suppressed for %s (%s)", result.Name, result.PersonID)
		case err != nil:
			log.Printf("engine: ERROR marking attendance for %s: %v", result.PersonID, err)
			delete(e.marked, trk.TrackID)
		default:
			log.Printf("engine: marked attendance for %s (%s), confidence %.2f", result.Name, result.PersonID, result.Confidence)
			if e.snapshots != nil {
				e.snapshots.QueueSnapshot(workers.SnapshotJob{
					Frame:        region.Clone(),
					PersonID:     result.PersonID,
					Name:         result.Name,
					AttendanceID: record.ID,
					Timestamp:    now,
				})
			}
			e.hub.Broadcast(realtime.Event{
				Type:       realtime.EventAttendance,
				TrackID:    trk.TrackID,
				PersonID:   result.PersonID,
				Name:       result.Name,
				Confidence: result.Confidence,
				Source:     frame.SourceTag,
				Extra:      map[string]interface{}{"attendance_id": record.ID},
			})
		}
	}
	region.Close()
}

// pruneMarked drops attendance bookkeeping for tracks that no longer exist.
func (e *Engine) pruneMarked(live []*tracker.Track) {
	alive := make(map[int]bool, len(live))
	for _, trk := range live {
		alive[trk.TrackID] = true
	}
	for id := range e.marked {
		if !alive[id] {
			delete(e.marked, id)
		}
	}
}

// publish annotates the frame, encodes it, and stores it for streaming.
func (e *Engine) publish(frame *vision.Frame, live []*tracker.Track, now time.Time) {
	annotated := frame.Mat.Clone()
	defer annotated.Close()

	for _, trk := range live {
		r, g, b := trk.Color()
		col := color.RGBA{R: r, G: g, B: b, A: 255}

		rect := image.Rect(int(trk.BBox[0]), int(trk.BBox[1]), int(trk.BBox[2]), int(trk.BBox[3]))
		gocv.Rectangle(&annotated, rect, col, 2)

		label := fmt.Sprintf("#%d %s", trk.TrackID, trk.Status)
		if trk.Name != "" {
			label = fmt.Sprintf("#%d %s (%.0f%%)", trk.TrackID, trk.Name, trk.FaceConfidence*100)
		}
		gocv.PutText(&annotated, label, image.Pt(rect.Min.X, rect.Min.Y-8), gocv.FontHersheySimplex, 0.5, col, 2)

		if trk.FaceBBox != nil {
			fb := *trk.FaceBBox
			gocv.Rectangle(&annotated, image.Rect(int(fb[0]), int(fb[1]), int(fb[2]), int(fb[3])), col, 1)
		}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, annotated)
	if err != nil {
		log.Printf("engine: failed to encode frame: %v", err)
		return
	}
	encoded := make([]byte, len(buf.GetBytes()))
	copy(encoded, buf.GetBytes())
	buf.Close()

	e.frameMu.Lock()
	e.lastJPEG = encoded
	e.lastTracks = live
	e.framesProcessed++
	e.lastFrameAt = now
	e.frameMu.Unlock()

	e.hub.Broadcast(realtime.Event{
		Type:  realtime.EventTrackUpdate,
		Extra: map[string]interface{}{"tracks": live},
	})
}

func (e *Engine) sleepOrStop(d time.Duration, stopCh <-chan struct{}) bool {
	select {
	case <-time.After(d):
		return true
	case <-stopCh:
		return false
	}
}

// cropMat clones the sub-image bounded by box, clamped to the frame.
func cropMat(img gocv.Mat, box [4]float64) gocv.Mat {
	x1, y1 := int(box[0]), int(box[1])
	x2, y2 := int(box[2]), int(box[3])
	if x1 < 0 {
		x1 = 0
	}
	if y1 < 0 {
		y1 = 0
	}
	if x2 > img.Cols() {
		x2 = img.Cols()
	}
	if y2 > img.Rows() {
		y2 = img.Rows()
	}
	if x2 <= x1 || y2 <= y1 {
		return gocv.NewMat()
	}
	roi := img.Region(image.Rect(x1, y1, x2, y2))
	defer roi.Close()
	return roi.Clone()
}
