package vision

import (
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrOpenFailed is returned when a source cannot be opened within the
// bounded open timeout.
var ErrOpenFailed = errors.New("failed to open video source")

// OpenCV capture property ids not exposed by name in gocv
const (
	capPropOpenTimeoutMsec = 53
	capPropReadTimeoutMsec = 54
)

const (
	defaultOpenTimeout   = 10 * time.Second
	networkTimeoutMsec   = 3000
	aliveWindow          = 5 * time.Second
	readerJoinTimeout    = 2 * time.Second
	consecutiveFailLimit = 30
	rtspGrabSkip         = 3
)

// IngestorOptions tune an Ingestor. Zero values select the defaults.
type IngestorOptions struct {
	MaxWidth       int
	MaxHeight      int
	ReconnectDelay time.Duration
	OpenTimeout    time.Duration
}

func (o *IngestorOptions) applyDefaults() {
	if o.MaxWidth <= 0 {
		o.MaxWidth = 1280
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = 720
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 5 * time.Second
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = defaultOpenTimeout
	}
}

// Ingestor reads frames from one video source on a dedicated goroutine and
// exposes the most recent decoded frame without ever blocking the caller.
type Ingestor struct {
	uri        string
	sourceType SourceType
	opts       IngestorOptions

	mu               sync.Mutex
	capture          *gocv.VideoCapture
	latest           gocv.Mat
	latestTS         time.Time
	width            int
	height           int
	fps              float64
	connected        bool
	reconnects       int
	downscaleApplied bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// OpenIngestor opens the given source and starts the reader goroutine.
// Open is bounded by opts.OpenTimeout independently of any socket-level
// timeout; on expiry ErrOpenFailed is returned. For network sources no
// frame is read during open; the reader goroutine obtains the first frame.
func OpenIngestor(uri string, opts IngestorOptions) (*Ingestor, error) {
	opts.applyDefaults()

	sourceType := ClassifySource(uri)
	if sourceType == SourceNone {
		return nil, fmt.Errorf("%w: unrecognized source %q", ErrOpenFailed, uri)
	}

	cap, err := openCapture(uri, sourceType, opts.OpenTimeout)
	if err != nil {
		return nil, err
	}

	ing := &Ingestor{
		uri:        uri,
		sourceType: sourceType,
		opts:       opts,
		capture:    cap,
		latest:     gocv.NewMat(),
		connected:  true,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	ing.fps = cap.Get(gocv.VideoCaptureFPS)

	log.Printf("ingest: opened %s source %q", sourceType, uri)
	go ing.readLoop()
	return ing, nil
}

// openCapture opens a VideoCapture with a bounded timeout. The open itself
// runs on its own goroutine; if it outlives the deadline the eventual handle
// is closed and ErrOpenFailed is returned.
func openCapture(uri string, sourceType SourceType, timeout time.Duration) (*gocv.VideoCapture, error) {
	if sourceType == SourceRTSP {
		// TCP avoids packet loss artifacts on congested links
		os.Setenv("OPENCV_FFMPEG_CAPTURE_OPTIONS", "rtsp_transport;tcp")
	}

	type openResult struct {
		cap *gocv.VideoCapture
		err error
	}
	resultCh := make(chan openResult, 1)

	go func() {
		var cap *gocv.VideoCapture
		var err error
		if sourceType == SourceWebcam {
			deviceID, _ := strconv.Atoi(uri)
			cap, err = gocv.OpenVideoCapture(deviceID)
		} else {
			cap, err = gocv.OpenVideoCapture(uri)
		}
		resultCh <- openResult{cap, err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOpenFailed, res.err)
		}
		if res.cap == nil || !res.cap.IsOpened() {
			if res.cap != nil {
				res.cap.Close()
			}
			return nil, fmt.Errorf("%w: %q", ErrOpenFailed, uri)
		}
		configureCapture(res.cap, sourceType)
		return res.cap, nil
	case <-time.After(timeout):
		// leave the goroutine to close the handle whenever open returns
		go func() {
			res := <-resultCh
			if res.cap != nil {
				res.cap.Close()
			}
		}()
		return nil, fmt.Errorf("%w: open timed out after %s for %q", ErrOpenFailed, timeout, uri)
	}
}

func configureCapture(cap *gocv.VideoCapture, sourceType SourceType) {
	cap.Set(gocv.VideoCaptureBufferSize, 1)
	if sourceType == SourceRTSP || sourceType == SourceHTTP || sourceType == SourceRTMP {
		cap.Set(gocv.VideoCaptureProperties(capPropOpenTimeoutMsec), networkTimeoutMsec)
		cap.Set(gocv.VideoCaptureProperties(capPropReadTimeoutMsec), networkTimeoutMsec)
	}
}

// ValidateSource opens the source, reads a single frame, and closes it.
// It never touches any live ingestor.
func ValidateSource(uri string, openTimeout time.Duration) error {
	if openTimeout <= 0 {
		openTimeout = defaultOpenTimeout
	}
	sourceType := ClassifySource(uri)
	if sourceType == SourceNone {
		return fmt.Errorf("%w: unrecognized source %q", ErrOpenFailed, uri)
	}

	cap, err := openCapture(uri, sourceType, openTimeout)
	if err != nil {
		return err
	}
	defer cap.Close()

	img := gocv.NewMat()
	defer img.Close()
	if ok := cap.Read(&img); !ok || img.Empty() {
		return fmt.Errorf("%w: source %q opened but produced no frame", ErrOpenFailed, uri)
	}
	return nil
}

func (in *Ingestor) readLoop() {
	defer close(in.doneCh)

	sleep := 10 * time.Millisecond
	if in.sourceType == SourceRTSP {
		sleep = time.Millisecond
	}

	consecutiveFails := 0
	img := gocv.NewMat()
	defer img.Close()

	for {
		select {
		case <-in.stopCh:
			return
		default:
		}

		in.mu.Lock()
		cap := in.capture
		in.mu.Unlock()

		if cap == nil {
			if !in.sleepOrStop(in.opts.ReconnectDelay) {
				return
			}
			if !in.reconnect() {
				continue
			}
			consecutiveFails = 0
			continue
		}

		if in.sourceType == SourceRTSP {
			// drain stale buffered frames so the decode below is current
			cap.Grab(rtspGrabSkip)
		}

		ok := cap.Read(&img)
		if !ok || img.Empty() {
			consecutiveFails++
			if in.sourceType == SourceFile {
				cap.Set(gocv.VideoCapturePosFrames, 0)
				consecutiveFails = 0
			} else if in.sourceType == SourceWebcam {
				if consecutiveFails > consecutiveFailLimit {
					log.Printf("ingest: device source %q stopped producing frames", in.uri)
					in.mu.Lock()
					in.connected = false
					in.mu.Unlock()
					return
				}
			} else if consecutiveFails > consecutiveFailLimit {
				log.Printf("ingest: %d consecutive read failures on %q, reconnecting", consecutiveFails, in.uri)
				in.mu.Lock()
				in.capture.Close()
				in.capture = nil
				in.connected = false
				in.mu.Unlock()
			}
			if !in.sleepOrStop(sleep) {
				return
			}
			continue
		}

		consecutiveFails = 0
		in.publish(&img)

		if !in.sleepOrStop(sleep) {
			return
		}
	}
}

// publish downscales if needed and installs img as the latest frame.
func (in *Ingestor) publish(img *gocv.Mat) {
	w := img.Cols()
	h := img.Rows()

	scaled := *img
	ownScaled := false
	if w > in.opts.MaxWidth || h > in.opts.MaxHeight {
		scale := minF(float64(in.opts.MaxWidth)/float64(w), float64(in.opts.MaxHeight)/float64(h))
		newW := int(float64(w) * scale)
		newH := int(float64(h) * scale)
		dst := gocv.NewMat()
		gocv.Resize(*img, &dst, image.Pt(newW, newH), 0, 0, gocv.InterpolationArea)
		scaled = dst
		ownScaled = true

		in.mu.Lock()
		first := !in.downscaleApplied
		in.downscaleApplied = true
		in.mu.Unlock()
		if first {
			log.Printf("ingest: downscaling %dx%d -> %dx%d (factor %.3f)", w, h, newW, newH, scale)
		}
	}

	in.mu.Lock()
	if !in.latest.Empty() {
		in.latest.Close()
	}
	in.latest = scaled.Clone()
	in.latestTS = time.Now()
	in.width = scaled.Cols()
	in.height = scaled.Rows()
	in.connected = true
	in.mu.Unlock()

	if ownScaled {
		scaled.Close()
	}
}

func (in *Ingestor) reconnect() bool {
	cap, err := openCapture(in.uri, in.sourceType, in.opts.OpenTimeout)
	if err != nil {
		log.Printf("ingest: reconnect to %q failed: %v", in.uri, err)
		return false
	}
	in.mu.Lock()
	in.capture = cap
	in.connected = true
	in.reconnects++
	count := in.reconnects
	in.mu.Unlock()
	log.Printf("ingest: reconnected to %q (attempt %d)", in.uri, count)
	return true
}

func (in *Ingestor) sleepOrStop(d time.Duration) bool {
	select {
	case <-in.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

// LatestFrame returns a copy of the most recent frame, or nil if none has
// been produced yet. Never blocks beyond the mutex.
func (in *Ingestor) LatestFrame() *Frame {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.latest.Empty() {
		return nil
	}
	return &Frame{
		Mat:       in.latest.Clone(),
		Width:     in.width,
		Height:    in.height,
		Timestamp: in.latestTS,
		SourceTag: in.uri,
	}
}

// URI returns the source URI this ingestor was opened with.
func (in *Ingestor) URI() string { return in.uri }

// SourceType returns the classified type of the source.
func (in *Ingestor) SourceType() SourceType { return in.sourceType }

// Health reports the current ingestor state.
func (in *Ingestor) Health() Health {
	in.mu.Lock()
	defer in.mu.Unlock()
	return Health{
		Connected:      in.connected,
		Alive:          !in.latestTS.IsZero() && time.Since(in.latestTS) < aliveWindow,
		SourceType:     in.sourceType,
		Width:          in.width,
		Height:         in.height,
		FPS:            in.fps,
		ReconnectCount: in.reconnects,
	}
}

// Close stops the reader goroutine and releases the capture handle. The
// reader join is bounded; if it does not finish in time it is abandoned and
// the handle is left for it to observe closed.
func (in *Ingestor) Close() error {
	select {
	case <-in.stopCh:
	default:
		close(in.stopCh)
	}

	select {
	case <-in.doneCh:
	case <-time.After(readerJoinTimeout):
		log.Printf("ingest: reader for %q did not stop within %s, abandoning", in.uri, readerJoinTimeout)
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.capture != nil {
		in.capture.Close()
		in.capture = nil
	}
	if !in.latest.Empty() {
		in.latest.Close()
	}
	in.connected = false
	return nil
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
