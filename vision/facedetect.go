package vision

import (
	"image"
	"log"
	"math"

	"gocv.io/x/gocv"
)

// FaceBox is a detected face within a person crop. BBox is [x1,y1,x2,y2]
// in the crop's pixel space.
type FaceBox struct {
	BBox       [4]float64
	Confidence float64
}

// FaceDetector locates faces within an image. upsample scales the input by
// 2^upsample before detection so small (distant) faces become resolvable;
// returned boxes are always in the original pixel space.
type FaceDetector interface {
	DetectFaces(img gocv.Mat, upsample int) []FaceBox
	Close()
}

// FaceEncoder produces the fixed-length embedding for an aligned face crop.
type FaceEncoder interface {
	Encode(face gocv.Mat) []float32
	Close()
}

// DNNFaceDetector detects faces with an SSD ResNet network.
type DNNFaceDetector struct {
	Net     gocv.Net
	Enabled bool

	InputSizeW    int
	InputSizeH    int
	ScaleFactor   float64
	MeanVal       gocv.Scalar
	ConfThreshold float32
}

// NewDNNFaceDetector loads the DNN face detection model
func NewDNNFaceDetector(configPath, modelPath string) *DNNFaceDetector {
	if configPath == "" || modelPath == "" {
		log.Println("detection(face): config or model path is empty, disabling DNN detector")
		return &DNNFaceDetector{Enabled: false}
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		log.Printf("detection(face): ERROR loading network model: config=%s, model=%s", configPath, modelPath)
		return &DNNFaceDetector{Enabled: false}
	}
	log.Printf("detection(face): successfully loaded face detection model")

	cudaBackendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
	cudaTargetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)
	if cudaBackendErr == nil && cudaTargetErr == nil {
		log.Println("detection(face): Set backend/target to CUDA")
	} else {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
		log.Println("detection(face): Set backend/target to CPU (Default)")
	}

	return &DNNFaceDetector{
		Net:           net,
		Enabled:       true,
		InputSizeW:    300,
		InputSizeH:    300,
		ScaleFactor:   1.0,
		MeanVal:       gocv.NewScalar(104.0, 177.0, 123.0, 0),
		ConfThreshold: 0.5,
	}
}

func (d *DNNFaceDetector) Close() {
	if d != nil && d.Enabled {
		d.Net.Close()
		log.Println("detection(face): closed network")
		d.Enabled = false
	}
}

// DetectFaces runs face detection at the given upsample level.
func (d *DNNFaceDetector) DetectFaces(img gocv.Mat, upsample int) []FaceBox {
	if d == nil || !d.Enabled || img.Empty() {
		return nil
	}

	input := img
	factor := 1.0
	if upsample > 0 {
		factor = float64(int(1) << upsample)
		scaled := gocv.NewMat()
		gocv.Resize(img, &scaled, image.Pt(int(float64(img.Cols())*factor), int(float64(img.Rows())*factor)), 0, 0, gocv.InterpolationLinear)
		defer scaled.Close()
		input = scaled
	}

	imgHeight := float64(input.Rows())
	imgWidth := float64(input.Cols())

	blob := gocv.BlobFromImage(input, d.ScaleFactor, image.Pt(d.InputSizeW, d.InputSizeH), d.MeanVal, false, false)
	defer blob.Close()

	d.Net.SetInput(blob, "")
	detectionsMat := d.Net.Forward("")
	defer detectionsMat.Close()

	sizes := detectionsMat.Size()
	if len(sizes) < 4 {
		log.Printf("detection(face): Warning - Unexpected output matrix dimensions: %v", sizes)
		return nil
	}

	numDetections := sizes[2]
	if numDetections == 0 {
		return nil
	}

	detections2D := detectionsMat.Reshape(1, numDetections*sizes[3])
	detectionsData := detections2D.Reshape(1, numDetections)
	defer detectionsData.Close()

	results := []FaceBox{}
	for i := 0; i < numDetections; i++ {
		confidence := detectionsData.GetFloatAt(i, 2)
		if confidence <= d.ConfThreshold {
			continue
		}

		x1 := float64(detectionsData.GetFloatAt(i, 3)) * imgWidth / factor
		y1 := float64(detectionsData.GetFloatAt(i, 4)) * imgHeight / factor
		x2 := float64(detectionsData.GetFloatAt(i, 5)) * imgWidth / factor
		y2 := float64(detectionsData.GetFloatAt(i, 6)) * imgHeight / factor

		x1 = maxF(0, x1)
		y1 = maxF(0, y1)
		x2 = minF(float64(img.Cols()), x2)
		y2 = minF(float64(img.Rows()), y2)

		if x2 > x1 && y2 > y1 {
			results = append(results, FaceBox{
				BBox:       [4]float64{x1, y1, x2, y2},
				Confidence: float64(confidence),
			})
		}
	}

	return results
}

// DNNFaceEncoder produces embeddings with an OpenFace-style network.
type DNNFaceEncoder struct {
	Net     gocv.Net
	Enabled bool

	InputSizeW int
	InputSizeH int
	Dimensions int
}

// NewDNNFaceEncoder loads the face embedding model.
func NewDNNFaceEncoder(modelPath string, dimensions int) *DNNFaceEncoder {
	if modelPath == "" {
		log.Println("recognition: encoder model path is empty, disabling face encoding")
		return &DNNFaceEncoder{Enabled: false, Dimensions: dimensions}
	}

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		log.Printf("recognition: ERROR - ReadNet returned an empty network for %s", modelPath)
		return &DNNFaceEncoder{Enabled: false, Dimensions: dimensions}
	}
	log.Printf("recognition: successfully loaded face encoder model")

	cudaBackendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
	cudaTargetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)
	if cudaBackendErr == nil && cudaTargetErr == nil {
		log.Println("recognition: Set backend/target to CUDA")
	} else {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
		log.Println("recognition: Set backend/target to CPU (Default)")
	}

	if dimensions <= 0 {
		dimensions = 128
	}

	return &DNNFaceEncoder{
		Net:        net,
		Enabled:    true,
		InputSizeW: 96,
		InputSizeH: 96,
		Dimensions: dimensions,
	}
}

func (e *DNNFaceEncoder) Close() {
	if e != nil && e.Enabled {
		e.Net.Close()
		log.Println("recognition: closed encoder network")
		e.Enabled = false
	}
}

// Encode extracts the embedding vector for a face crop. The result is
// L2-normalized so Euclidean distances are comparable across inputs.
func (e *DNNFaceEncoder) Encode(face gocv.Mat) []float32 {
	if e == nil || !e.Enabled || face.Empty() {
		return nil
	}

	blob := gocv.BlobFromImage(face, 1.0/255.0, image.Pt(e.InputSizeW, e.InputSizeH), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	e.Net.SetInput(blob, "")
	output := e.Net.Forward("")
	defer output.Close()

	flattened := output.Reshape(1, 1)
	defer flattened.Close()

	n := flattened.Cols()
	if n != e.Dimensions {
		log.Printf("recognition: WARNING - encoder produced %d values, expected %d", n, e.Dimensions)
	}
	embedding := make([]float32, n)
	for i := 0; i < n; i++ {
		embedding[i] = flattened.GetFloatAt(0, i)
	}

	return normalizeEmbedding(embedding)
}

// normalizeEmbedding scales the vector to unit L2 length.
func normalizeEmbedding(embedding []float32) []float32 {
	var norm float64
	for _, val := range embedding {
		norm += float64(val) * float64(val)
	}
	if norm == 0 {
		return embedding
	}
	norm = math.Sqrt(norm)

	normalized := make([]float32, len(embedding))
	for i, val := range embedding {
		normalized[i] = float32(float64(val) / norm)
	}
	return normalized
}
