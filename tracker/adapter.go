package tracker

import (
	"sync"

	"github.com/roadeye/vtrack/postprocess/result"
)

// Adapter feeds detection results through a BYTETracker and returns the same
// detections with their track ids filled in
type Adapter struct {
	mu    sync.Mutex
	bt    *BYTETracker
	idGen *result.IDGenerator
	trail *Trail
	// trailAge is the number of frames a trail outlives its track
	trailAge int
}

// NewAdapter returns an adapter around a new BYTETracker.  Trail may be nil
// when motion history is not needed
func NewAdapter(cfg Config, trail *Trail) *Adapter {
	return &Adapter{
		bt:       NewBYTETracker(cfg),
		idGen:    result.NewIDGenerator(),
		trail:    trail,
		trailAge: cfg.TrackBuffer,
	}
}

// Update tracks the given detections.  Detections that have a confirmed track
// are returned in input order with TrackID set, each keeping its own box,
// class and confidence, and ID replaced by one unique to this tracker.
func (a *Adapter) Update(dets []result.DetectResult) ([]result.DetectResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	in := make([]result.DetectResult, len(dets))
	copy(in, dets)

	// detections from different runners may share ids so the join key is
	// always issued here
	for i := range in {
		in[i].ID = a.idGen.GetNext()
	}

	tracks, err := a.bt.Update(DetectionsToObjects(in))

	if err != nil {
		return nil, err
	}

	byDet := make(map[int64]*STrack, len(tracks))

	for _, t := range tracks {
		byDet[t.DetectionID()] = t
	}

	out := make([]result.DetectResult, 0, len(tracks))

	for _, det := range in {
		t, ok := byDet[det.ID]

		if !ok {
			continue
		}

		det.TrackID = t.TrackID()
		out = append(out, det)

		if a.trail != nil {
			a.trail.Add(t.TrackID(), RectFromBox(det.Box))
		}
	}

	if a.trail != nil {
		a.trail.Step(a.trailAge)
	}

	return out, nil
}

// Reset clears tracker state and trails, track ids restart from 1
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.bt.Reset()
	a.idGen.Reset()

	if a.trail != nil {
		a.trail.Reset()
	}
}

// Trail returns the trail history, nil when disabled
func (a *Adapter) Trail() *Trail {
	return a.trail
}

// Frames returns the number of frames tracked since the last reset
func (a *Adapter) Frames() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.bt.FrameID()
}
