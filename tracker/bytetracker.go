package tracker

import (
	"fmt"
)

// Config holds the BYTETracker tuning parameters
type Config struct {
	// FrameRate of the video source, scales TrackBuffer
	FrameRate int
	// TrackBuffer is the number of frames a lost track is kept at 30 fps
	TrackBuffer int
	// TrackThresh splits detections into high and low score groups
	TrackThresh float32
	// HighThresh is the minimum score needed to start a new track
	HighThresh float32
	// MatchThresh is the maximum IoU distance for the first association
	MatchThresh float32
}

// DefaultConfig returns the ByteTrack defaults of the supervision library.
// A new track needs the activation threshold plus 0.1.
func DefaultConfig() Config {
	return Config{
		FrameRate:   30,
		TrackBuffer: 30,
		TrackThresh: 0.25,
		HighThresh:  0.35,
		MatchThresh: 0.8,
	}
}

const (
	// minLowScore is the floor of the low score group, weaker detections
	// are ignored
	minLowScore = 0.1
	// lowScoreMatchThresh is the IoU distance used to match low score
	// detections in the second association
	lowScoreMatchThresh = 0.5
	// unconfirmedMatchThresh is the IoU distance used to confirm new tracks
	unconfirmedMatchThresh = 0.7
	// duplicateThresh is the IoU distance below which a tracked and lost
	// track are considered the same object
	duplicateThresh = 0.15
)

// BYTETracker associates detections across frames using the BYTE method of
// matching high score detections first then low score ones
type BYTETracker struct {
	cfg          Config
	kf           *KalmanFilter
	maxTimeLost  int
	frameID      int
	trackIDCount int
	tracked      []*STrack
	lost         []*STrack
	removed      []*STrack
}

// NewBYTETracker initializes and returns a new BYTETracker
func NewBYTETracker(cfg Config) *BYTETracker {

	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}

	return &BYTETracker{
		cfg:         cfg,
		kf:          NewKalmanFilter(1.0/20, 1.0/160),
		maxTimeLost: int(float32(cfg.FrameRate) / 30.0 * float32(cfg.TrackBuffer)),
	}
}

// Reset clears all tracks and restarts track ids from 1
func (bt *BYTETracker) Reset() {
	bt.frameID = 0
	bt.trackIDCount = 0
	bt.tracked = nil
	bt.lost = nil
	bt.removed = nil
}

// FrameID returns the number of frames processed since the last reset
func (bt *BYTETracker) FrameID() int {
	return bt.frameID
}

// Update runs one tracking step and returns the confirmed tracks matched on
// this frame
func (bt *BYTETracker) Update(objects []Object) ([]*STrack, error) {

	bt.frameID++

	// Step 1: split detections by score
	var highDets, lowDets []*STrack

	for _, obj := range objects {
		det := NewSTrack(bt.kf, obj)

		switch {
		case obj.Prob > bt.cfg.TrackThresh:
			highDets = append(highDets, det)
		case obj.Prob > minLowScore && obj.Prob < bt.cfg.TrackThresh:
			lowDets = append(lowDets, det)
		}
	}

	var unconfirmed, confirmed []*STrack

	for _, t := range bt.tracked {
		if t.IsActivated() {
			confirmed = append(confirmed, t)
		} else {
			unconfirmed = append(unconfirmed, t)
		}
	}

	pool := joinStracks(confirmed, bt.lost)

	for _, t := range pool {
		t.Predict()
	}

	var activated, refound, newlyLost, newlyRemoved []*STrack

	// Step 2: first association with high score detections
	matches, uTrack, uDet, err := linearAssignment(fuseScore(iouDistance(pool, highDets), highDets),
		len(pool), len(highDets), bt.cfg.MatchThresh)

	if err != nil {
		return nil, fmt.Errorf("first association: %w", err)
	}

	for _, m := range matches {
		track, det := pool[m[0]], highDets[m[1]]

		if err := bt.apply(track, det, &activated, &refound); err != nil {
			return nil, err
		}
	}

	remainDets := pick(highDets, uDet)

	var remainTracked []*STrack

	for _, i := range uTrack {
		if pool[i].State() == Tracked {
			remainTracked = append(remainTracked, pool[i])
		}
	}

	// Step 3: second association with low score detections
	matches, uTrack, _, err = linearAssignment(iouDistance(remainTracked, lowDets),
		len(remainTracked), len(lowDets), lowScoreMatchThresh)

	if err != nil {
		return nil, fmt.Errorf("second association: %w", err)
	}

	for _, m := range matches {
		track, det := remainTracked[m[0]], lowDets[m[1]]

		if err := bt.apply(track, det, &activated, &refound); err != nil {
			return nil, err
		}
	}

	for _, i := range uTrack {
		track := remainTracked[i]

		if track.State() != Lost {
			track.MarkAsLost()
			newlyLost = append(newlyLost, track)
		}
	}

	// Step 4: confirm tentative tracks and start new ones
	matches, uUnconfirmed, uDet, err := linearAssignment(fuseScore(iouDistance(unconfirmed, remainDets), remainDets),
		len(unconfirmed), len(remainDets), unconfirmedMatchThresh)

	if err != nil {
		return nil, fmt.Errorf("unconfirmed association: %w", err)
	}

	for _, m := range matches {
		track := unconfirmed[m[0]]

		if err := track.Update(remainDets[m[1]], bt.frameID); err != nil {
			return nil, err
		}

		activated = append(activated, track)
	}

	for _, i := range uUnconfirmed {
		track := unconfirmed[i]
		track.MarkAsRemoved()
		newlyRemoved = append(newlyRemoved, track)
	}

	for _, i := range uDet {
		det := remainDets[i]

		if det.Score() < bt.cfg.HighThresh {
			continue
		}

		bt.trackIDCount++
		det.Activate(bt.frameID, bt.trackIDCount)
		activated = append(activated, det)
	}

	// Step 5: expire lost tracks
	for _, t := range bt.lost {
		if bt.frameID-t.FrameID() > bt.maxTimeLost {
			t.MarkAsRemoved()
			newlyRemoved = append(newlyRemoved, t)
		}
	}

	var stillTracked []*STrack

	for _, t := range bt.tracked {
		if t.State() == Tracked {
			stillTracked = append(stillTracked, t)
		}
	}

	bt.tracked = joinStracks(joinStracks(stillTracked, activated), refound)
	bt.lost = subStracks(bt.lost, bt.tracked)
	bt.lost = append(bt.lost, newlyLost...)
	bt.lost = subStracks(bt.lost, newlyRemoved)
	bt.removed = append(bt.removed, newlyRemoved...)
	bt.tracked, bt.lost = removeDuplicates(bt.tracked, bt.lost)

	// removed tracks are only needed to stop lost ones being revived, keep
	// a bounded history
	if len(bt.removed) > 1000 {
		bt.removed = bt.removed[len(bt.removed)-1000:]
	}

	var out []*STrack

	for _, t := range bt.tracked {
		if t.IsActivated() && t.FrameID() == bt.frameID {
			out = append(out, t)
		}
	}

	return out, nil
}

// apply updates a matched track with its detection, reviving it if lost
func (bt *BYTETracker) apply(track, det *STrack, activated, refound *[]*STrack) error {

	if track.State() == Tracked {
		if err := track.Update(det, bt.frameID); err != nil {
			return err
		}
		*activated = append(*activated, track)
		return nil
	}

	if err := track.ReActivate(det, bt.frameID); err != nil {
		return err
	}

	*refound = append(*refound, track)

	return nil
}

// pick returns the tracks at the given indices
func pick(tracks []*STrack, idx []int) []*STrack {
	out := make([]*STrack, 0, len(idx))

	for _, i := range idx {
		out = append(out, tracks[i])
	}

	return out
}

// joinStracks combines two lists of tracks, skipping duplicate ids and
// keeping order
func joinStracks(a, b []*STrack) []*STrack {

	seen := make(map[int]bool, len(a)+len(b))
	res := make([]*STrack, 0, len(a)+len(b))

	for _, list := range [][]*STrack{a, b} {
		for _, t := range list {
			if seen[t.TrackID()] {
				continue
			}
			seen[t.TrackID()] = true
			res = append(res, t)
		}
	}

	return res
}

// subStracks returns the tracks of a whose ids are not in b, keeping order
func subStracks(a, b []*STrack) []*STrack {

	drop := make(map[int]bool, len(b))

	for _, t := range b {
		drop[t.TrackID()] = true
	}

	res := make([]*STrack, 0, len(a))

	for _, t := range a {
		if !drop[t.TrackID()] {
			res = append(res, t)
		}
	}

	return res
}

// removeDuplicates drops the younger of any tracked and lost pair that
// overlap almost completely
func removeDuplicates(tracked, lost []*STrack) ([]*STrack, []*STrack) {

	dist := iouDistance(tracked, lost)
	dropA := make([]bool, len(tracked))
	dropB := make([]bool, len(lost))

	for i := range dist {
		for j := range dist[i] {
			if dist[i][j] >= duplicateThresh {
				continue
			}

			ageA := tracked[i].FrameID() - tracked[i].StartFrameID()
			ageB := lost[j].FrameID() - lost[j].StartFrameID()

			if ageA > ageB {
				dropB[j] = true
			} else {
				dropA[i] = true
			}
		}
	}

	var resA, resB []*STrack

	for i, t := range tracked {
		if !dropA[i] {
			resA = append(resA, t)
		}
	}

	for j, t := range lost {
		if !dropB[j] {
			resB = append(resB, t)
		}
	}

	return resA, resB
}

// iouDistance builds the 1-IoU cost matrix between two sets of tracks
func iouDistance(a, b []*STrack) [][]float32 {

	if len(a) == 0 || len(b) == 0 {
		return nil
	}

	cost := make([][]float32, len(a))

	for i, ta := range a {
		cost[i] = make([]float32, len(b))
		ra := ta.Rect()

		for j, tb := range b {
			cost[i][j] = 1 - ra.IoU(tb.Rect())
		}
	}

	return cost
}

// fuseScore weights the IoU similarity by detection confidence so weak
// detections need a closer overlap to match
func fuseScore(cost [][]float32, dets []*STrack) [][]float32 {

	for i := range cost {
		for j, d := range dets {
			cost[i][j] = 1 - (1-cost[i][j])*d.Score()
		}
	}

	return cost
}
