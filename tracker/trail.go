package tracker

import (
	"image"
	"sync"
)

// Trail keeps a bounded history of track center points used for drawing
// motion trails
type Trail struct {
	// size is the maximum number of most recent points kept per track
	size    int
	history map[int][]image.Point
	// lastSeen records the frame a track was last added on so stale
	// histories can be pruned
	lastSeen map[int]int
	frame    int
	sync.Mutex
}

// NewTrail returns a new trail history.  Size is the maximum length of each
// trail
func NewTrail(size int) *Trail {
	return &Trail{
		size:     size,
		history:  make(map[int][]image.Point),
		lastSeen: make(map[int]int),
	}
}

// Reset clears all history
func (t *Trail) Reset() {
	t.Lock()
	defer t.Unlock()

	t.history = make(map[int][]image.Point)
	t.lastSeen = make(map[int]int)
	t.frame = 0
}

// Add records the center point of a tracked box
func (t *Trail) Add(trackID int, rect Rect) {
	t.Lock()
	defer t.Unlock()

	cx, cy := rect.Center()
	pts := append(t.history[trackID], image.Pt(int(cx), int(cy)))

	if len(pts) > t.size {
		pts = pts[len(pts)-t.size:]
	}

	t.history[trackID] = pts
	t.lastSeen[trackID] = t.frame
}

// Step marks the end of a frame and forgets tracks not seen for maxAge frames
func (t *Trail) Step(maxAge int) {
	t.Lock()
	defer t.Unlock()

	t.frame++

	for id, seen := range t.lastSeen {
		if t.frame-seen > maxAge {
			delete(t.history, id)
			delete(t.lastSeen, id)
		}
	}
}

// GetPoints returns a copy of the point history for a track id
func (t *Trail) GetPoints(trackID int) []image.Point {
	t.Lock()
	defer t.Unlock()

	pts, ok := t.history[trackID]

	if !ok {
		return nil
	}

	out := make([]image.Point, len(pts))
	copy(out, pts)

	return out
}

// Len returns the number of tracks with history
func (t *Trail) Len() int {
	t.Lock()
	defer t.Unlock()

	return len(t.history)
}
