package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/visionsuite/attendvision/engine"
	"github.com/visionsuite/attendvision/realtime"
	"github.com/visionsuite/attendvision/services"
	"github.com/visionsuite/attendvision/tracker"
)

const streamFrameInterval = 33 * time.Millisecond

// StreamHandler serves processing control, live status, and the MJPEG
// stream.
type StreamHandler struct {
	Engine *engine.Engine
	Hub    *realtime.Hub
}

func NewStreamHandler(eng *engine.Engine, hub *realtime.Hub) *StreamHandler {
	return &StreamHandler{Engine: eng, Hub: hub}
}

type startStreamPayload struct {
	Source string `json:"source"`
}

// Start handles POST /api/stream/start.
func (h *StreamHandler) Start(w http.ResponseWriter, r *http.Request) {
	var payload startStreamPayload
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
			return
		}
	}

	if err := h.Engine.StartSource(payload.Source); err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Engine.Status())
}

// Stop handles POST /api/stream/stop.
func (h *StreamHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.StopSource(); err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// Status handles GET /api/stream/status.
func (h *StreamHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Status())
}

// Tracks handles GET /api/stream/tracks.
func (h *StreamHandler) Tracks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.CurrentTracks())
}

// Snapshot handles GET /api/stream/snapshot, returning the latest annotated
// frame as a single JPEG.
func (h *StreamHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	frame := h.Engine.CurrentJPEG()
	if frame == nil {
		WriteServiceError(w, services.ErrFrameUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame)
}

type recognizeResponse struct {
	Tracks       []*tracker.Track `json:"tracks"`
	ActiveTracks int              `json:"active_tracks"`
}

// Recognize handles POST /api/stream/recognize: a synchronous detection,
// tracking, and recognition pass over an uploaded image, or over the latest
// raw source frame when the body is empty.
func (h *StreamHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	imageData, err := io.ReadAll(io.LimitReader(r.Body, maxRegistrationImageBytes))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "failed to read image")
		return
	}

	tracks, err := h.Engine.RecognizeNow(imageData)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recognizeResponse{Tracks: tracks, ActiveTracks: len(tracks)})
}

// MJPEG handles GET /api/stream/live, pushing annotated frames as a
// multipart MJPEG stream at roughly 30 FPS until the client disconnects.
func (h *StreamHandler) MJPEG(w http.ResponseWriter, r *http.Request) {
	if !h.Engine.Running() {
		WriteServiceError(w, services.ErrNotRunning)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "streaming unsupported")
		return
	}

	const boundary = "frame"
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(streamFrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			frame := h.Engine.CurrentJPEG()
			if frame == nil {
				if !h.Engine.Running() {
					return
				}
				continue
			}
			if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(frame)); err != nil {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			if _, err := fmt.Fprint(w, "\r\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// WS handles GET /api/stream/ws, upgrading to a websocket that receives
// track and attendance events.
func (h *StreamHandler) WS(w http.ResponseWriter, r *http.Request) {
	log.Printf("handlers: websocket client connecting from %s", r.RemoteAddr)
	h.Hub.ServeWS(w, r)
}
