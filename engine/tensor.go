package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/x448/float16"
	"gocv.io/x/gocv"
)

var f16LookupTable [65536]float32

func init() {
	// precompute float16 lookup table for faster conversion to float32
	for i := range f16LookupTable {
		f16 := float16.Frombits(uint16(i))
		f16LookupTable[i] = f16.Float32()
	}
}

// checkImage validates an image can be packed into an input tensor
func checkImage(img gocv.Mat) error {

	if img.Empty() {
		return fmt.Errorf("image is empty")
	}

	if img.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("image must be 8 bit BGR, got type %v", img.Type())
	}

	return nil
}

// pixels returns the BGR bytes of a continuous copy of img
func pixels(img gocv.Mat) ([]uint8, func(), error) {

	done := func() {}

	if !img.IsContinuous() {
		img = img.Clone()
		done = func() { img.Close() }
	}

	src, err := img.DataPtrUint8()

	if err != nil {
		done()
		return nil, nil, fmt.Errorf("error getting uint8 data from image: %w", err)
	}

	return src, done, nil
}

// FillCHW packs a BGR image into a planar RGB float32 tensor scaled to
// [0,1].  dst must hold 3*width*height values.
func FillCHW(img gocv.Mat, dst []float32) error {

	if err := checkImage(img); err != nil {
		return err
	}

	plane := img.Cols() * img.Rows()

	if len(dst) < 3*plane {
		return fmt.Errorf("tensor too small: %d < %d", len(dst), 3*plane)
	}

	src, done, err := pixels(img)

	if err != nil {
		return err
	}

	defer done()

	for i := 0; i < plane; i++ {
		dst[i] = float32(src[i*3+2]) / 255
		dst[plane+i] = float32(src[i*3+1]) / 255
		dst[2*plane+i] = float32(src[i*3]) / 255
	}

	return nil
}

// FillCHW16 is FillCHW for a float16 tensor stored as little endian bytes.
// dst must hold 6*width*height bytes.
func FillCHW16(img gocv.Mat, dst []byte) error {

	if err := checkImage(img); err != nil {
		return err
	}

	plane := img.Cols() * img.Rows()

	if len(dst) < 6*plane {
		return fmt.Errorf("tensor too small: %d < %d bytes", len(dst), 6*plane)
	}

	src, done, err := pixels(img)

	if err != nil {
		return err
	}

	defer done()

	// only 256 distinct input values so convert each once
	var lut [256]uint16

	for i := range lut {
		lut[i] = float16.Fromfloat32(float32(i) / 255).Bits()
	}

	for i := 0; i < plane; i++ {
		binary.LittleEndian.PutUint16(dst[2*i:], lut[src[i*3+2]])
		binary.LittleEndian.PutUint16(dst[2*(plane+i):], lut[src[i*3+1]])
		binary.LittleEndian.PutUint16(dst[2*(2*plane+i):], lut[src[i*3]])
	}

	return nil
}

// Float16ToFloat32 converts little endian float16 bytes into dst, which must
// hold len(src)/2 values
func Float16ToFloat32(src []byte, dst []float32) {

	n := len(src) / 2

	if len(dst) < n {
		n = len(dst)
	}

	for i := 0; i < n; i++ {
		dst[i] = f16LookupTable[binary.LittleEndian.Uint16(src[2*i:])]
	}
}
