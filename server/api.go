package server

import (
	"errors"
	"image"
	"image/png"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/roadeye/vtrack"
	"github.com/roadeye/vtrack/video"
	"github.com/roadeye/vtrack/zone"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// maxSnapshotWidth caps the width of scaled snapshots
const maxSnapshotWidth = 4096

type openRequest struct {
	Source string `json:"source" binding:"required"`
	// Play starts playback once opened
	Play bool `json:"play"`
}

type seekRequest struct {
	Frame *int `json:"frame" binding:"required"`
}

// Settings are the runtime mutable detection settings
type Settings struct {
	Confidence *float32      `json:"conf,omitempty"`
	Classes    []string      `json:"classes,omitempty"`
	Zone       *ZoneSettings `json:"zone,omitempty"`
}

// ZoneSettings changes the polygon zone.  Points left empty keep the current
// polygon, a missing threshold keeps the current one.
type ZoneSettings struct {
	Points    [][2]int `json:"points,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// defaultZoneThreshold applies to a new zone given without a threshold
const defaultZoneThreshold = 0.5

// buildZone validates a zone change against the current zone
func buildZone(cur *zone.Zone, set ZoneSettings) (*zone.Zone, error) {

	var pts []image.Point

	if len(set.Points) > 0 {
		pts = lo.Map(set.Points, func(p [2]int, _ int) image.Point {
			return image.Pt(p[0], p[1])
		})
	} else if cur != nil {
		pts = cur.Points()
	} else {
		return nil, errors.New("zone: no polygon configured")
	}

	threshold := defaultZoneThreshold

	if set.Threshold != nil {
		threshold = *set.Threshold
	} else if cur != nil {
		threshold = cur.Threshold()
	}

	return zone.New(pts, threshold)
}

// zoneJSON describes the current zone, nil when none is set
func zoneJSON(z *zone.Zone) gin.H {
	if z == nil {
		return nil
	}

	return gin.H{
		"points": lo.Map(z.Points(), func(p image.Point, _ int) [2]int {
			return [2]int{p.X, p.Y}
		}),
		"threshold": z.Threshold(),
	}
}

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error(), "success": false})
}

// playerStatus maps player errors to HTTP status codes
func playerStatus(err error) int {
	if errors.Is(err, video.ErrNoSource) {
		return http.StatusConflict
	}

	return http.StatusBadRequest
}

func (s *Server) open(c *gin.Context) {

	var req openRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	props, err := s.player.Open(req.Source)

	if err != nil {
		s.log.Warn("error opening source", zap.String("source", req.Source), zap.Error(err))
		fail(c, http.StatusBadRequest, err)
		return
	}

	if req.Play {
		if err := s.player.Play(); err != nil {
			fail(c, playerStatus(err), err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "source": req.Source, "props": props})
}

func (s *Server) play(c *gin.Context) {

	if err := s.player.Play(); err != nil {
		fail(c, playerStatus(err), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "state": s.player.State()})
}

func (s *Server) pause(c *gin.Context) {
	s.player.Pause()
	c.JSON(http.StatusOK, gin.H{"success": true, "state": s.player.State()})
}

func (s *Server) stop(c *gin.Context) {

	if err := s.player.Stop(); err != nil {
		fail(c, playerStatus(err), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "state": s.player.State()})
}

func (s *Server) seek(c *gin.Context) {

	var req seekRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	if err := s.player.Seek(*req.Frame); err != nil {
		fail(c, playerStatus(err), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "frame": *req.Frame})
}

// currentSettings reads the settings back from the pipeline
func (s *Server) currentSettings() gin.H {

	pipe := s.player.Pipeline()
	names := pipe.ClassNames()

	classes := names

	if f := pipe.Classes(); f != nil {
		classes = f.Names(names)
	}

	return gin.H{
		"conf":      pipe.Confidence(),
		"classes":   classes,
		"available": names,
		"presets":   vtrack.Presets(),
		"zone":      zoneJSON(pipe.Zone()),
	}
}

func (s *Server) settings(c *gin.Context) {
	c.JSON(http.StatusOK, s.currentSettings())
}

func (s *Server) updateSettings(c *gin.Context) {

	var req Settings

	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	if err := s.Apply(req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	c.JSON(http.StatusOK, s.currentSettings())
}

// Apply changes the pipeline settings.  Nothing is changed when any value is
// invalid.
func (s *Server) Apply(set Settings) error {

	pipe := s.player.Pipeline()

	var filter *vtrack.ClassFilter

	if len(set.Classes) > 0 {
		f, err := vtrack.ClassFilterFromNames(set.Classes, pipe.ClassNames())

		if err != nil {
			return err
		}

		filter = f
	}

	var zn *zone.Zone

	if set.Zone != nil {
		z, err := buildZone(pipe.Zone(), *set.Zone)

		if err != nil {
			return err
		}

		zn = z
	}

	if set.Confidence != nil {
		if err := pipe.SetConfidence(*set.Confidence); err != nil {
			return err
		}
	}

	if filter != nil {
		pipe.SetClasses(filter)
	}

	if zn != nil {
		pipe.SetZone(zn)
	}

	s.log.Info("detection settings changed",
		zap.Float32("conf", pipe.Confidence()),
		zap.Strings("classes", set.Classes),
		zap.Bool("zone", zn != nil),
	)

	return nil
}

func (s *Server) stats(c *gin.Context) {

	out := gin.H{
		"player":   s.player.State(),
		"pipeline": s.player.Pipeline().Stats(),
		"viewers":  s.Sessions(),
	}

	if s.monitor != nil {
		out["system"] = s.monitor.Report()
	}

	c.JSON(http.StatusOK, out)
}

// snapshot returns the last annotated frame as a PNG, scaled down to the
// width query parameter when given
func (s *Server) snapshot(c *gin.Context) {

	img, err := s.player.Snapshot()

	if err != nil {
		fail(c, http.StatusNotFound, err)
		return
	}

	if w := c.Query("width"); w != "" {
		width, err := strconv.Atoi(w)

		if err != nil || width <= 0 || width > maxSnapshotWidth {
			fail(c, http.StatusBadRequest, errors.New("width must be between 1 and 4096"))
			return
		}

		img = Thumbnail(img, width)
	}

	c.Header("Content-Type", "image/png")
	c.Status(http.StatusOK)

	if err := png.Encode(c.Writer, img); err != nil {
		s.log.Warn("snapshot encode failed", zap.Error(err))
	}
}
