// Package video reads frames from files and cameras, writes annotated video
// and drives the detection pipeline for playback
package video

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// DefaultFPS is assumed for sources that do not report a frame rate
const DefaultFPS = 30.0

// ErrSourceOpen is returned when a video file or camera can not be opened
var ErrSourceOpen = errors.New("unable to open video source")

// Props are the properties reported by a video source
type Props struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
	// Frames is the frame count of a file, 0 for cameras
	Frames int  `json:"frames"`
	Camera bool `json:"camera"`
}

// String formats the properties for display
func (p Props) String() string {

	if p.Camera {
		return fmt.Sprintf("%dx%d @ %.1f fps (camera)", p.Width, p.Height, p.FPS)
	}

	return fmt.Sprintf("%dx%d @ %.1f fps, %d frames", p.Width, p.Height, p.FPS, p.Frames)
}

// Source is an open video file or camera
type Source struct {
	name  string
	cap   *gocv.VideoCapture
	props Props
	// pos is read by status queries while playback advances it
	pos atomic.Int64
}

// ParseCamera returns the camera index when source is a non negative integer
func ParseCamera(source string) (int, bool) {
	idx, err := strconv.Atoi(strings.TrimSpace(source))

	if err != nil || idx < 0 {
		return 0, false
	}

	return idx, true
}

// Open opens source, which is either a camera index such as "0" or a video
// file path
func Open(source string) (*Source, error) {

	var (
		vc  *gocv.VideoCapture
		err error
	)

	idx, camera := ParseCamera(source)

	if camera {
		vc, err = gocv.OpenVideoCapture(idx)
	} else {
		vc, err = gocv.VideoCaptureFile(source)
	}

	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrSourceOpen, source, err)
	}

	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w %q", ErrSourceOpen, source)
	}

	props := Props{
		Width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
		FPS:    vc.Get(gocv.VideoCaptureFPS),
		Camera: camera,
	}

	if !camera {
		props.Frames = int(vc.Get(gocv.VideoCaptureFrameCount))
	}

	if props.FPS <= 0 {
		props.FPS = DefaultFPS
	}

	return &Source{name: source, cap: vc, props: props}, nil
}

// Name returns the path or camera index the source was opened with
func (s *Source) Name() string {
	return s.name
}

// Props returns the source properties
func (s *Source) Props() Props {
	return s.props
}

// Position returns the index of the next frame to be read
func (s *Source) Position() int {
	return int(s.pos.Load())
}

// Read the next frame into dst.  io.EOF is returned at the end of a file.
func (s *Source) Read(dst *gocv.Mat) error {

	if ok := s.cap.Read(dst); !ok || dst.Empty() {
		return io.EOF
	}

	s.pos.Add(1)
	return nil
}

// Seek moves a file source to the frame index, clamped to the file length
func (s *Source) Seek(frame int) error {

	if s.props.Camera {
		return errors.New("can not seek a camera")
	}

	if frame < 0 {
		frame = 0
	}

	if s.props.Frames > 0 && frame >= s.props.Frames {
		frame = s.props.Frames - 1
	}

	s.cap.Set(gocv.VideoCapturePosFrames, float64(frame))
	s.pos.Store(int64(frame))

	return nil
}

// Close the source
func (s *Source) Close() error {
	return s.cap.Close()
}
