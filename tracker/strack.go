package tracker

import (
	"fmt"
)

// TrackState represents the lifecycle state of a track
type TrackState int

const (
	// New is a track created from a detection that is not yet confirmed
	New TrackState = iota
	// Tracked is a track matched in the most recent frame
	Tracked
	// Lost is a track that missed one or more frames
	Lost
	// Removed is a track that has been lost for too long
	Removed
)

func (s TrackState) String() string {
	switch s {
	case New:
		return "new"
	case Tracked:
		return "tracked"
	case Lost:
		return "lost"
	case Removed:
		return "removed"
	}

	return fmt.Sprintf("TrackState(%d)", int(s))
}

// STrack is a single object track
type STrack struct {
	kf    *KalmanFilter
	ks    *KalmanState
	rect  Rect
	state TrackState
	// activated is set once the track is confirmed
	activated    bool
	score        float32
	trackID      int
	frameID      int
	startFrameID int
	// detectionID is the id of the detection last matched to the track
	detectionID int64
}

// NewSTrack creates an unconfirmed track from a detection
func NewSTrack(kf *KalmanFilter, obj Object) *STrack {
	return &STrack{
		kf:          kf,
		rect:        obj.Rect,
		state:       New,
		score:       obj.Prob,
		detectionID: obj.ID,
	}
}

// Rect returns the current bounding box of the track
func (s *STrack) Rect() Rect {
	return s.rect
}

// State returns the current lifecycle state
func (s *STrack) State() TrackState {
	return s.state
}

// IsActivated returns whether the track has been confirmed
func (s *STrack) IsActivated() bool {
	return s.activated
}

// Score returns the last matched detection score
func (s *STrack) Score() float32 {
	return s.score
}

// TrackID returns the persistent track identity
func (s *STrack) TrackID() int {
	return s.trackID
}

// FrameID returns the frame the track was last updated on
func (s *STrack) FrameID() int {
	return s.frameID
}

// StartFrameID returns the frame the track started on
func (s *STrack) StartFrameID() int {
	return s.startFrameID
}

// DetectionID returns the id of the detection last matched to the track
func (s *STrack) DetectionID() int64 {
	return s.detectionID
}

// Activate starts a new track.  Tracks born on the first frame are confirmed
// immediately, later tracks need a second match.
func (s *STrack) Activate(frameID, trackID int) {

	s.ks = s.kf.Initiate(s.rect.Xyah())
	s.syncRect()

	s.state = Tracked
	s.activated = frameID == 1
	s.trackID = trackID
	s.frameID = frameID
	s.startFrameID = frameID
}

// ReActivate revives a lost track with a new detection
func (s *STrack) ReActivate(det *STrack, frameID int) error {

	if err := s.kf.Update(s.ks, det.rect.Xyah()); err != nil {
		return fmt.Errorf("error reactivating track %d: %w", s.trackID, err)
	}

	s.syncRect()
	s.absorb(det, frameID)

	return nil
}

// Update applies a matched detection to the track
func (s *STrack) Update(det *STrack, frameID int) error {

	if err := s.kf.Update(s.ks, det.rect.Xyah()); err != nil {
		return fmt.Errorf("error updating track %d: %w", s.trackID, err)
	}

	s.syncRect()
	s.absorb(det, frameID)

	return nil
}

// Predict advances the kalman state one frame
func (s *STrack) Predict() {

	if s.state != Tracked {
		// a lost track does not keep growing in height
		s.ks.Mean.SetVec(7, 0)
	}

	s.kf.Predict(s.ks)
	s.syncRect()
}

// MarkAsLost marks the track as lost
func (s *STrack) MarkAsLost() {
	s.state = Lost
}

// MarkAsRemoved marks the track as removed
func (s *STrack) MarkAsRemoved() {
	s.state = Removed
}

func (s *STrack) absorb(det *STrack, frameID int) {
	s.state = Tracked
	s.activated = true
	s.score = det.score
	s.detectionID = det.detectionID
	s.frameID = frameID
}

// syncRect updates the bounding box from the kalman state mean
func (s *STrack) syncRect() {
	m := s.ks.Mean
	s.rect = rectFromMean(m.AtVec(0), m.AtVec(1), m.AtVec(2), m.AtVec(3))
}
