package tracker

// Object is a detection as consumed by the BYTETracker.  The class stays on
// the detection, the adapter joins it back by ID.
type Object struct {
	// Rect is the bounding box of the detected object
	Rect Rect
	// Prob is the confidence of the object detected
	Prob float32
	// ID is the detection id, carried onto the track matched with it so the
	// tracker output can be joined back to its detection
	ID int64
}

// NewObject is a constructor function for the Object struct
func NewObject(rect Rect, prob float32, id int64) Object {
	return Object{
		Rect: rect,
		Prob: prob,
		ID:   id,
	}
}
