package vision

import (
	"gocv.io/x/gocv"
)

const (
	qualityAreaNorm      = 100.0 * 100.0
	qualitySharpnessNorm = 500.0

	// quality weights: size, sharpness, brightness-centering
	qualitySizeWeight       = 0.4
	qualitySharpnessWeight  = 0.4
	qualityBrightnessWeight = 0.2
)

// QualityScore combines face size, sharpness, and brightness-centering into
// a 0..1 score. lapVar is the variance of the Laplacian over the face crop;
// meanBrightness is the mean grayscale intensity.
func QualityScore(width, height int, lapVar, meanBrightness float64) float64 {
	if width <= 0 || height <= 0 {
		return 0.0
	}

	sizeScore := minF(float64(width*height)/qualityAreaNorm, 1.0)
	sharpnessScore := minF(lapVar/qualitySharpnessNorm, 1.0)
	brightnessScore := 1.0 - absF(meanBrightness-128.0)/128.0

	return sizeScore*qualitySizeWeight + sharpnessScore*qualitySharpnessWeight + brightnessScore*qualityBrightnessWeight
}

// AssessFaceQuality computes the quality score for a face crop.
func AssessFaceQuality(face gocv.Mat) float64 {
	if face.Empty() {
		return 0.0
	}

	var gray gocv.Mat
	if face.Channels() == 3 {
		gray = gocv.NewMat()
		gocv.CvtColor(face, &gray, gocv.ColorBGRToGray)
	} else {
		gray = face.Clone()
	}
	defer gray.Close()

	lapVar := laplacianVariance(gray)
	mean := gray.Mean().Val1

	return QualityScore(face.Cols(), face.Rows(), lapVar, mean)
}

// laplacianVariance measures sharpness as the variance of the Laplacian.
func laplacianVariance(gray gocv.Mat) float64 {
	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	meanMat := gocv.NewMat()
	defer meanMat.Close()
	stdMat := gocv.NewMat()
	defer stdMat.Close()
	gocv.MeanStdDev(lap, &meanMat, &stdMat)

	std := stdMat.GetDoubleAt(0, 0)
	return std * std
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
