package video

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// Codec is the fourcc of written video
const Codec = "mp4v"

// Writer encodes frames to a video file
type Writer struct {
	path string
	vw   *gocv.VideoWriter
	n    int
}

// NewWriter creates a colour video file of the given frame rate and size
func NewWriter(path string, fps float64, width, height int) (*Writer, error) {

	if fps <= 0 {
		fps = DefaultFPS
	}

	vw, err := gocv.VideoWriterFile(path, Codec, fps, width, height, true)

	if err != nil {
		return nil, fmt.Errorf("error creating video writer %s: %w", path, err)
	}

	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("error creating video writer %s: not opened", path)
	}

	return &Writer{path: path, vw: vw}, nil
}

// Write appends a frame
func (w *Writer) Write(img gocv.Mat) error {

	if err := w.vw.Write(img); err != nil {
		return fmt.Errorf("error writing frame %d: %w", w.n, err)
	}

	w.n++
	return nil
}

// Path returns the output file
func (w *Writer) Path() string {
	return w.path
}

// Frames returns the number of frames written
func (w *Writer) Frames() int {
	return w.n
}

// Close finishes the file
func (w *Writer) Close() error {
	return w.vw.Close()
}

// TimestampName returns <prefix>_<unix seconds><ext>, such as
// output_1700000000.mp4
func TimestampName(prefix, ext string, t time.Time) string {
	return fmt.Sprintf("%s_%d%s", prefix, t.Unix(), ext)
}
