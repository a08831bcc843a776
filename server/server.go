// Package server is the browser viewer for a video player.  It streams the
// annotated frames as MJPEG, pushes per frame events over a websocket and
// exposes playback controls as a small JSON API.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/roadeye/vtrack/perf"
	"github.com/roadeye/vtrack/video"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

//go:embed web
var webFS embed.FS

// shutdownTimeout bounds how long open streams delay shutdown
const shutdownTimeout = 5 * time.Second

// Options configure a Server
type Options struct {
	Addr string
	// Monitor serves /metrics and is sampled while running when set
	Monitor        *perf.Monitor
	SampleInterval time.Duration
	Log            *zap.Logger
}

// Server serves a Player to browsers
type Server struct {
	player  *video.Player
	monitor *perf.Monitor
	opts    Options
	log     *zap.Logger
	router  *gin.Engine

	mu       sync.Mutex
	sessions map[string]*session
}

// session is one connected viewer
type session struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Remote    string    `json:"remote"`
	Connected time.Time `json:"connected"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// New builds the routes for player
func New(player *video.Player, opts Options) *Server {

	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	if opts.Addr == "" {
		opts.Addr = ":8080"
	}

	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 2 * time.Second
	}

	s := &Server{
		player:   player,
		monitor:  opts.Monitor,
		opts:     opts,
		log:      opts.Log,
		sessions: make(map[string]*session),
	}

	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", s.index)
	r.GET("/stream", s.stream)
	r.GET("/ws", s.events)

	api := r.Group("/api")
	api.POST("/open", s.open)
	api.POST("/play", s.play)
	api.POST("/pause", s.pause)
	api.POST("/stop", s.stop)
	api.POST("/seek", s.seek)
	api.GET("/settings", s.settings)
	api.POST("/settings", s.updateSettings)
	api.GET("/stats", s.stats)
	api.GET("/snapshot", s.snapshot)
	api.GET("/sessions", s.listSessions)

	if s.monitor != nil {
		r.GET("/metrics", gin.WrapH(s.monitor.Handler()))
	}

	s.router = r

	return s
}

// Handler returns the HTTP handler of the viewer
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled or a component fails.  The playback loop
// and resource sampler run alongside the HTTP server.
func (s *Server) Run(ctx context.Context) error {

	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.opts.Addr,
		Handler: s.router,
	}

	g.Go(func() error {
		s.log.Info("viewer listening", zap.String("addr", s.opts.Addr))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		// end the streams so Shutdown is not held up by them
		s.player.Close()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(sctx)
	})

	g.Go(func() error {
		return s.player.Run(ctx)
	})

	if s.monitor != nil {
		g.Go(func() error {
			s.monitor.Run(ctx, s.opts.SampleInterval)
			return nil
		})
	}

	return g.Wait()
}

func (s *Server) index(c *gin.Context) {

	page, err := fs.ReadFile(webFS, "web/index.html")

	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

// addSession registers a viewer connection and returns its id
func (s *Server) addSession(kind string, r *http.Request) string {

	sess := &session{
		ID:        uuid.New().String(),
		Kind:      kind,
		Remote:    r.RemoteAddr,
		Connected: time.Now(),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.log.Info("viewer connected",
		zap.String("session", sess.ID),
		zap.String("kind", kind),
		zap.String("remote", sess.Remote),
	)

	return sess.ID
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	s.log.Info("viewer disconnected", zap.String("session", id))
}

// Sessions returns the number of connected viewers
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

func (s *Server) listSessions(c *gin.Context) {
	s.mu.Lock()
	list := make([]session, 0, len(s.sessions))

	for _, sess := range s.sessions {
		list = append(list, *sess)
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"sessions": list})
}

// stream writes the annotated frames as a multipart JPEG stream
func (s *Server) stream(c *gin.Context) {

	frames, cancel := s.player.Frames()
	defer cancel()

	id := s.addSession("stream", c.Request)
	defer s.removeSession(id)

	w := c.Writer
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Session-Id", id)
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ctx := c.Request.Context()

	for {
		select {
		case <-ctx.Done():
			return

		case frame, ok := <-frames:
			if !ok {
				return
			}

			w.Write([]byte("--frame\r\n"))
			w.Write([]byte("Content-Type: image/jpeg\r\n\r\n"))
			w.Write(frame.JPEG)

			if _, err := w.Write([]byte("\r\n")); err != nil {
				return
			}

			w.Flush()
		}
	}
}

// events pushes every per frame event as JSON until the viewer disconnects
func (s *Server) events(c *gin.Context) {

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)

	if err != nil {
		// upgrade has already replied
		return
	}

	defer conn.Close()

	id := s.addSession("events", c.Request)
	defer s.removeSession(id)

	events, cancel := s.player.Events()
	defer cancel()

	if err := conn.WriteJSON(gin.H{"type": "session", "session": id}); err != nil {
		return
	}

	// reader ends the session when the browser goes away
	closed := make(chan struct{})

	go func() {
		defer close(closed)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return

		case ev, ok := <-events:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"))
				return
			}

			if err := conn.WriteJSON(ev); err != nil {
				s.log.Debug("websocket write failed", zap.String("session", id), zap.Error(err))
				return
			}
		}
	}
}
