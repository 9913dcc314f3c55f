package workers

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

const snapshotMaxWidth = 640

// SnapshotJob is one annotated frame crop to persist as evidence for an
// attendance record. The job owns its Mat; the worker closes it.
type SnapshotJob struct {
	Frame        gocv.Mat
	PersonID     string
	Name         string
	AttendanceID uint
	Timestamp    time.Time
}

// SnapshotResult is delivered to the optional callback once the file is on
// disk.
type SnapshotResult struct {
	PersonID     string
	AttendanceID uint
	Path         string
}

// SnapshotProcessor writes attendance evidence snapshots off the hot path so
// recognition never blocks on disk IO.
type SnapshotProcessor struct {
	JobQueue chan SnapshotJob
	Dir      string
	OnSaved  func(SnapshotResult)

	Wg       sync.WaitGroup
	StopChan chan struct{}
}

// NewSnapshotProcessor starts the worker pool writing into dir.
func NewSnapshotProcessor(dir string, queueSize, numWorkers int, onSaved func(SnapshotResult)) *SnapshotProcessor {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	proc := &SnapshotProcessor{
		JobQueue: make(chan SnapshotJob, queueSize),
		Dir:      dir,
		OnSaved:  onSaved,
		StopChan: make(chan struct{}),
	}
	proc.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go proc.worker(i)
	}
	log.Printf("snapshots: started %d worker(s) with queue size %d", numWorkers, queueSize)
	return proc
}

func (sp *SnapshotProcessor) worker(id int) {
	defer sp.Wg.Done()

	for {
		select {
		case job, ok := <-sp.JobQueue:
			if !ok {
				log.Printf("snapshots: worker %d stopping: queue closed", id)
				return
			}
			path, err := sp.save(job)
			job.Frame.Close()
			if err != nil {
				log.Printf("snapshots: worker %d: ERROR saving snapshot for %s: %v", id, job.PersonID, err)
				continue
			}
			if sp.OnSaved != nil {
				sp.OnSaved(SnapshotResult{PersonID: job.PersonID, AttendanceID: job.AttendanceID, Path: path})
			}

		case <-sp.StopChan:
			log.Printf("snapshots: worker %d stopping: stop signal received", id)
			return
		}
	}
}

func (sp *SnapshotProcessor) save(job SnapshotJob) (string, error) {
	if job.Frame.Empty() {
		return "", fmt.Errorf("empty frame")
	}

	img, err := job.Frame.ToImage()
	if err != nil {
		return "", fmt.Errorf("failed to convert frame: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > snapshotMaxWidth {
		img = imaging.Resize(img, snapshotMaxWidth, 0, imaging.Linear)
	}

	dayDir := filepath.Join(sp.Dir, job.Timestamp.Format("2006-01-02"))
	if err := os.MkdirAll(dayDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	// uuid suffix keeps concurrent workers from clobbering same-second saves
	filename := fmt.Sprintf("%s_%s_%s.jpg", job.PersonID, job.Timestamp.Format("150405"), uuid.NewString()[:8])
	fullPath := filepath.Join(dayDir, filename)

	if err := imaging.Save(img, fullPath, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}
	return fullPath, nil
}

// QueueSnapshot enqueues a job without blocking; when the queue is full the
// frame is dropped and closed.
func (sp *SnapshotProcessor) QueueSnapshot(job SnapshotJob) bool {
	select {
	case sp.JobQueue <- job:
		return true
	default:
		log.Printf("snapshots: WARNING - queue full, dropping snapshot for %s", job.PersonID)
		job.Frame.Close()
		return false
	}
}

// Stop signals the workers to exit and waits for them. Jobs still in the
// queue are not processed.
func (sp *SnapshotProcessor) Stop() {
	log.Println("snapshots: stopping workers...")
	close(sp.StopChan)
	sp.Wg.Wait()
	log.Println("snapshots: all workers stopped")
}
