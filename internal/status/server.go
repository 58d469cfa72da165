// Package status serves a read-only view of the firmware over HTTP: JSON
// snapshots and a websocket stream. Nothing here changes firmware state.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ble-proximity.klederson.com/internal/app"
	"ble-proximity.klederson.com/internal/display"
	"ble-proximity.klederson.com/internal/signal"
)

const (
	writeTimeout    = 2 * time.Second
	shutdownTimeout = 3 * time.Second
)

// Snapshotter is the firmware view the server reads.
type Snapshotter interface {
	Snapshot() app.Snapshot
}

// Response is the JSON status document.
type Response struct {
	Estimate  uint8         `json:"estimate"`
	Frame     int           `json:"frame"`
	DistanceM float64       `json:"distance_m"`
	Channel   uint8         `json:"channel"`
	Listening bool          `json:"listening"`
	Minima    []int         `json:"minima"`
	Samples   uint64        `json:"samples"`
	Skipped   uint64        `json:"skipped"`
	Bursts    uint64        `json:"bursts"`
	Received  uint64        `json:"received"`
	Dropped   uint64        `json:"dropped"`
	Spurious  uint64        `json:"spurious"`
	Halted    bool          `json:"halted"`
	Image     display.Frame `json:"image"`
}

// NewResponse converts a snapshot.
func NewResponse(s app.Snapshot) Response {
	// []uint8 would encode as base64.
	minima := make([]int, len(s.Minima))
	for i, m := range s.Minima {
		minima[i] = int(m)
	}
	return Response{
		Estimate:  s.Estimate,
		Frame:     s.Frame,
		DistanceM: signal.EstimateDistance(s.Estimate),
		Channel:   s.Channel,
		Listening: s.Listening,
		Minima:    minima,
		Samples:   s.Collector.Samples,
		Skipped:   s.Collector.Skipped,
		Bursts:    s.Collector.Bursts,
		Received:  s.Radio.Received,
		Dropped:   s.Radio.Dropped,
		Spurious:  s.Spurious,
		Halted:    s.Halted,
		Image:     s.Image,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the status HTTP server.
type Server struct {
	fw       Snapshotter
	interval time.Duration
	logger   *zap.Logger
	router   chi.Router
}

// NewServer creates a server streaming every interval.
func NewServer(fw Snapshotter, interval time.Duration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{fw: fw, interval: interval, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)

	r.Get("/health", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Get("/matrix", s.matrix)
		r.Get("/stream", s.stream)
	})
	s.router = r
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	snap := s.fw.Snapshot()
	if snap.Halted {
		jsonResponse(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "halted"})
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, NewResponse(s.fw.Snapshot()))
}

func (s *Server) matrix(w http.ResponseWriter, r *http.Request) {
	snap := s.fw.Snapshot()
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"frame": snap.Frame,
		"image": snap.Image,
	})
}

// stream pushes a Response every interval until the client goes away.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// The client never sends; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(NewResponse(s.fw.Snapshot())); err != nil {
			s.logger.Debug("websocket closed", zap.Error(err))
			return
		}
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
