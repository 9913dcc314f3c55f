package vision

import (
	"image"

	"gocv.io/x/gocv"
)

// EnhanceFaceForAngle compensates for oblique and distant faces before
// encoding: tile-based contrast equalization on the lightness channel plus
// a light sharpen blended 70/30 with the equalized image. The caller owns
// the returned Mat.
func EnhanceFaceForAngle(face gocv.Mat) gocv.Mat {
	if face.Empty() || face.Channels() != 3 {
		return face.Clone()
	}

	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(face, &lab, gocv.ColorBGRToLab)

	channels := gocv.Split(lab)
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()

	clahe := gocv.NewCLAHEWithParams(2.0, image.Pt(4, 4))
	defer clahe.Close()
	equalized := gocv.NewMat()
	clahe.Apply(channels[0], &equalized)
	channels[0].Close()
	channels[0] = equalized

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(channels, &merged)

	enhanced := gocv.NewMat()
	defer enhanced.Close()
	gocv.CvtColor(merged, &enhanced, gocv.ColorLabToBGR)

	kernel := sharpenKernel()
	defer kernel.Close()
	sharpened := gocv.NewMat()
	defer sharpened.Close()
	gocv.Filter2D(enhanced, &sharpened, gocv.MatTypeCV8UC3, kernel, image.Pt(-1, -1), 0, gocv.BorderDefault)

	result := gocv.NewMat()
	gocv.AddWeighted(enhanced, 0.7, sharpened, 0.3, 0, &result)
	return result
}

// sharpenKernel builds the 3x3 sharpening kernel scaled by 1/9.
func sharpenKernel() gocv.Mat {
	kernel := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			val := -1.0 / 9.0
			if row == 1 && col == 1 {
				val = 9.0 / 9.0
			}
			kernel.SetDoubleAt(row, col, val)
		}
	}
	return kernel
}
