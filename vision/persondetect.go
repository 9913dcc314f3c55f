package vision

import (
	"image"
	"log"

	"gocv.io/x/gocv"
)

// Person geometry filter defaults
const (
	DefaultPersonConfidence = 0.65
	DefaultMinPersonArea    = 3000.0
	DefaultMaxAspectRatio   = 4.0
	DefaultMinAspectRatio   = 0.3
	minPersonWidth          = 20.0
	maxPersonWidth          = 800.0
	minPersonHeight         = 40.0
	maxPersonHeight         = 1200.0
)

// PersonDetector locates person bounding boxes in a frame. Implementations
// are stateless; batch calls preserve input order position-for-position.
type PersonDetector interface {
	Detect(img gocv.Mat) []Detection
	DetectBatch(imgs []gocv.Mat) [][]Detection
	Close()
}

// PersonFilterParams are the thresholds applied to raw backend output.
type PersonFilterParams struct {
	Confidence     float64
	MinArea        float64
	MaxAspectRatio float64
}

// DefaultPersonFilterParams returns the standard thresholds.
func DefaultPersonFilterParams() PersonFilterParams {
	return PersonFilterParams{
		Confidence:     DefaultPersonConfidence,
		MinArea:        DefaultMinPersonArea,
		MaxAspectRatio: DefaultMaxAspectRatio,
	}
}

// FilterPersonDetections applies the confidence and geometry filters, in
// order: confidence, minimum area, aspect ratio band, absolute dimensions.
func FilterPersonDetections(raw []Detection, p PersonFilterParams) []Detection {
	out := make([]Detection, 0, len(raw))
	for _, det := range raw {
		if det.Confidence < p.Confidence {
			continue
		}

		width := det.BBox[2] - det.BBox[0]
		height := det.BBox[3] - det.BBox[1]
		if width <= 0 || height <= 0 {
			continue
		}

		if width*height < p.MinArea {
			continue
		}

		aspect := height / width
		if aspect > p.MaxAspectRatio || aspect < DefaultMinAspectRatio {
			// pole-like or table-like shapes are not people
			continue
		}

		if width < minPersonWidth || width > maxPersonWidth {
			continue
		}
		if height < minPersonHeight || height > maxPersonHeight {
			continue
		}

		out = append(out, det)
	}
	return out
}

// DNNPersonDetector is a MobileNet-SSD style person detector on a gocv DNN.
type DNNPersonDetector struct {
	Net     gocv.Net
	Enabled bool

	InputSizeW  int
	InputSizeH  int
	ScaleFactor float64
	MeanVal     gocv.Scalar
	PersonClass int
	Filters     PersonFilterParams
	BatchSize   int
}

// NewDNNPersonDetector loads the person detection network. device selects
// "cuda" or "cpu"; CUDA silently falls back to CPU when unavailable.
func NewDNNPersonDetector(configPath, modelPath, device string, filters PersonFilterParams, batchSize int) *DNNPersonDetector {
	if configPath == "" || modelPath == "" {
		log.Println("detection(person): config or model path is empty, disabling person detector")
		return &DNNPersonDetector{Enabled: false, Filters: filters}
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		log.Printf("detection(person): ERROR loading network model: config=%s, model=%s", configPath, modelPath)
		return &DNNPersonDetector{Enabled: false, Filters: filters}
	}
	log.Printf("detection(person): successfully loaded person detection model")

	if device == "cuda" {
		cudaBackendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
		cudaTargetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)
		if cudaBackendErr == nil && cudaTargetErr == nil {
			log.Println("detection(person): Set backend/target to CUDA")
		} else {
			net.SetPreferableBackend(gocv.NetBackendDefault)
			net.SetPreferableTarget(gocv.NetTargetCPU)
			log.Println("detection(person): CUDA unavailable, set backend/target to CPU (Default)")
		}
	} else {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
	}

	if batchSize <= 0 {
		batchSize = 8
	}

	return &DNNPersonDetector{
		Net:         net,
		Enabled:     true,
		InputSizeW:  300,
		InputSizeH:  300,
		ScaleFactor: 1.0 / 127.5,
		MeanVal:     gocv.NewScalar(127.5, 127.5, 127.5, 0),
		PersonClass: 15, // VOC person class for MobileNet-SSD
		Filters:     filters,
		BatchSize:   batchSize,
	}
}

func (d *DNNPersonDetector) Close() {
	if d != nil && d.Enabled {
		d.Net.Close()
		log.Println("detection(person): closed network")
		d.Enabled = false
	}
}

// Detect runs person detection on a single frame and applies the filters.
func (d *DNNPersonDetector) Detect(img gocv.Mat) []Detection {
	if d == nil || !d.Enabled || img.Empty() {
		return nil
	}

	imgHeight := float64(img.Rows())
	imgWidth := float64(img.Cols())

	blob := gocv.BlobFromImage(img, d.ScaleFactor, image.Pt(d.InputSizeW, d.InputSizeH), d.MeanVal, false, false)
	defer blob.Close()

	d.Net.SetInput(blob, "")
	detectionsMat := d.Net.Forward("")
	defer detectionsMat.Close()

	raw := d.parseDetections(detectionsMat, imgWidth, imgHeight)
	return FilterPersonDetections(raw, d.Filters)
}

// DetectBatch runs detection over up to BatchSize frames, output index i
// corresponding to input index i.
func (d *DNNPersonDetector) DetectBatch(imgs []gocv.Mat) [][]Detection {
	results := make([][]Detection, len(imgs))
	if d == nil || !d.Enabled {
		return results
	}
	for i, img := range imgs {
		if i >= d.BatchSize {
			break
		}
		results[i] = d.Detect(img)
	}
	return results
}

// parseDetections reads the SSD output tensor [1,1,N,7] where each row is
// (batch, class, confidence, x1, y1, x2, y2) with normalized coordinates.
func (d *DNNPersonDetector) parseDetections(detectionsMat gocv.Mat, imgWidth, imgHeight float64) []Detection {
	results := []Detection{}

	sizes := detectionsMat.Size()
	if len(sizes) < 3 {
		log.Printf("detection(person): Error - Output matrix dimensions too small to parse: %v", sizes)
		return results
	}

	numDetections := sizes[2]
	if numDetections == 0 {
		return results
	}

	detections2D := detectionsMat.Reshape(1, numDetections*sizes[3])
	detectionsData := detections2D.Reshape(1, numDetections)
	defer detectionsData.Close()

	for i := 0; i < numDetections; i++ {
		classID := int(detectionsData.GetFloatAt(i, 1))
		if classID != d.PersonClass {
			continue
		}
		confidence := float64(detectionsData.GetFloatAt(i, 2))

		x1 := float64(detectionsData.GetFloatAt(i, 3)) * imgWidth
		y1 := float64(detectionsData.GetFloatAt(i, 4)) * imgHeight
		x2 := float64(detectionsData.GetFloatAt(i, 5)) * imgWidth
		y2 := float64(detectionsData.GetFloatAt(i, 6)) * imgHeight

		x1 = maxF(0, x1)
		y1 = maxF(0, y1)
		x2 = minF(imgWidth, x2)
		y2 = minF(imgHeight, y2)

		if x2 > x1 && y2 > y1 {
			results = append(results, Detection{
				BBox:       [4]float64{x1, y1, x2, y2},
				Confidence: confidence,
			})
		}
	}

	return results
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
