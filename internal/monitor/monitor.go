// Package monitor serves prometheus metrics and a live websocket feed of the
// recorder and player state.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"echojournal/internal/echo"
	"echojournal/internal/metrics"
	"echojournal/internal/watch"
)

const (
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RecorderView is the JSON form of a recorder snapshot.
type RecorderView struct {
	State      string  `json:"state"`
	File       string  `json:"file,omitempty"`
	DurationMs int64   `json:"duration_ms"`
	Samples    int     `json:"samples"`
	Level      float32 `json:"level"`
}

// PlayerView is the JSON form of the active track; Active is false when nothing plays.
type PlayerView struct {
	Active   bool  `json:"active"`
	Playing  bool  `json:"playing"`
	PlayedMs int64 `json:"played_ms"`
}

// Snapshot is one frame written to /live clients.
type Snapshot struct {
	Recorder RecorderView `json:"recorder"`
	Player   PlayerView   `json:"player"`
}

func recorderView(s echo.RecorderSnapshot) RecorderView {
	v := RecorderView{
		State:      s.State.String(),
		File:       s.Details.FilePath,
		DurationMs: s.Details.Duration.Milliseconds(),
		Samples:    len(s.Details.Amplitudes),
	}
	if n := len(s.Details.Amplitudes); n > 0 {
		v.Level = s.Details.Amplitudes[n-1]
	}
	return v
}

func playerView(t *echo.AudioTrack) PlayerView {
	if t == nil {
		return PlayerView{}
	}
	return PlayerView{Active: true, Playing: t.IsPlaying, PlayedMs: t.DurationPlayed.Milliseconds()}
}

// Options configures a Server.
type Options struct {
	Addr     string
	Recorder echo.VoiceRecorder
	Player   echo.AudioPlayer
	Logger   *slog.Logger
}

// Server is the optional HTTP surface of the journal.
type Server struct {
	opts Options
	log  *slog.Logger
	live *watch.Value[Snapshot]
	mux  *http.ServeMux
}

func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		opts: opts,
		log:  log.With("component", "monitor"),
		live: watch.New(Snapshot{Recorder: RecorderView{State: echo.RecorderIdle.String()}}),
		mux:  http.NewServeMux(),
	}
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/health", handleHealth)
	s.mux.HandleFunc("/live", s.handleLive)
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// Track folds recorder and player updates into the live snapshot until ctx is done.
func (s *Server) Track(ctx context.Context) {
	var recCh <-chan echo.RecorderSnapshot
	var playCh <-chan *echo.AudioTrack
	if s.opts.Recorder != nil {
		recCh = s.opts.Recorder.Subscribe(ctx)
	}
	if s.opts.Player != nil {
		playCh = s.opts.Player.Subscribe(ctx)
	}
	go func() {
		for recCh != nil || playCh != nil {
			select {
			case snap, ok := <-recCh:
				if !ok {
					recCh = nil
					continue
				}
				view := recorderView(snap)
				s.live.Update(func(cur Snapshot) Snapshot {
					cur.Recorder = view
					return cur
				})
			case track, ok := <-playCh:
				if !ok {
					playCh = nil
					continue
				}
				view := playerView(track)
				s.live.Update(func(cur Snapshot) Snapshot {
					cur.Player = view
					return cur
				})
			}
		}
	}()
}

// Latest returns the snapshot /live clients currently see.
func (s *Server) Latest() Snapshot { return s.live.Get() }

// Run tracks state and serves on opts.Addr until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.Track(ctx)
	srv := &http.Server{
		Handler:     s.mux,
		ErrorLog:    slog.NewLogLogger(s.log.Handler(), slog.LevelWarn),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("monitor shutdown", "error", err)
		}
	}()

	s.log.Info("monitor listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("monitor stopped")
	return nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	metrics.LiveClients.Inc()
	defer metrics.LiveClients.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// clients only listen; a read error means they went away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.log.Debug("live client connected", "remote", r.RemoteAddr)
	for snap := range s.live.Subscribe(ctx) {
		data, err := json.Marshal(snap)
		if err != nil {
			s.log.Error("marshal snapshot", "error", err)
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.log.Debug("live client gone", "remote", r.RemoteAddr, "error", err)
			return
		}
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}
