package renderer

import (
	"encoding/binary"
	"math"
)

// MatrixSize is the byte size of the uniform transform.
const MatrixSize = 16 * 4

// ScaleFor returns the x and y scale that stretch an image of the given
// logical size over the viewport without distorting it. The axis along
// which the image is relatively longer is scaled up by the ratio of the
// aspect ratios, so the image fills the viewport and the overhanging edges
// are cropped. Equal ratios, and empty sizes, give 1, 1.
func ScaleFor(imageW, imageH, viewW, viewH int) (x, y float32) {
	if imageW <= 0 || imageH <= 0 || viewW <= 0 || viewH <= 0 {
		return 1, 1
	}
	viewRatio := float32(viewW) / float32(viewH)
	imageRatio := float32(imageW) / float32(imageH)

	x, y = 1, 1
	if imageRatio > viewRatio {
		x = imageRatio / viewRatio
	}
	if viewRatio > imageRatio {
		y = viewRatio / imageRatio
	}
	return x, y
}

// Matrix returns the 4x4 diagonal scale matrix in column-major order.
func Matrix(x, y float32) [16]float32 {
	return [16]float32{
		x, 0, 0, 0,
		0, y, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// matrixBytes serializes m for the uniform buffer.
func matrixBytes(m [16]float32) []byte {
	buf := make([]byte, MatrixSize)
	for i, v := range m {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
