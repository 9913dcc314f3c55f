package vision

import (
	"path/filepath"
	"strings"
	"time"

	"gocv.io/x/gocv"
)

// SourceType classifies a video source URI
type SourceType string

const (
	SourceWebcam SourceType = "webcam"
	SourceRTSP   SourceType = "rtsp"
	SourceHTTP   SourceType = "http"
	SourceRTMP   SourceType = "rtmp"
	SourceFile   SourceType = "file"
	SourceNone   SourceType = "unknown"
)

var videoFileExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
	".mkv": true,
	".mov": true,
	".flv": true,
}

// ClassifySource determines the source type from a URI. An all-digit string
// is a local capture device index; scheme prefixes select network transports;
// a path with a known video extension is a looping file source.
func ClassifySource(uri string) SourceType {
	trimmed := strings.TrimSpace(uri)
	if trimmed == "" {
		return SourceNone
	}

	if isAllDigits(trimmed) {
		return SourceWebcam
	}

	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(lower, "rtsp://"):
		return SourceRTSP
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return SourceHTTP
	case strings.HasPrefix(lower, "rtmp://"):
		return SourceRTMP
	}

	if videoFileExtensions[strings.ToLower(filepath.Ext(trimmed))] {
		return SourceFile
	}

	return SourceNone
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Frame is a single decoded video frame. The Mat is owned by the receiver
// of the frame and must be closed by it.
type Frame struct {
	Mat       gocv.Mat
	Width     int
	Height    int
	Timestamp time.Time
	SourceTag string
}

// Close releases the underlying pixel buffer.
func (f *Frame) Close() {
	if f != nil && !f.Mat.Empty() {
		f.Mat.Close()
	}
}

// Detection is a single person bounding box in frame pixel space.
// BBox is [x1, y1, x2, y2].
type Detection struct {
	BBox       [4]float64 `json:"bbox"`
	Confidence float64    `json:"confidence"`
}

// Health is a point-in-time snapshot of an ingestor's state.
type Health struct {
	Connected      bool       `json:"connected"`
	Alive          bool       `json:"alive"`
	SourceType     SourceType `json:"source_type"`
	Width          int        `json:"width"`
	Height         int        `json:"height"`
	FPS            float64    `json:"fps"`
	ReconnectCount int        `json:"reconnect_count"`
}
