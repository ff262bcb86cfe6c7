package admin

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"loadalert-sim/internal/export"
	"loadalert-sim/internal/logging"
	"loadalert-sim/internal/sim"
	"loadalert-sim/internal/telemetry"
)

const (
	maxChartPoints  = 1000
	wsWriteTimeout  = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

//go:embed templates/index.html
var content embed.FS

// Server exposes the reading log over HTTP and forwards operator actions to the simulator.
type Server struct {
	Sim      *sim.Simulator
	tpl      *template.Template
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

func NewServer(s *sim.Simulator) *Server {
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	srv := &Server{
		Sim: s,
		tpl: tpl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		mux: http.NewServeMux(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/summary", s.handleSummary)
	s.mux.HandleFunc("/readings", s.handleReadings)
	s.mux.HandleFunc("/map", s.handleMap)
	s.mux.HandleFunc("/threshold", s.handleThreshold)
	s.mux.HandleFunc("/reset", s.handleReset)
	s.mux.HandleFunc("/manual", s.handleManual)
	s.mux.HandleFunc("/export.csv", s.handleExportCSV)
	s.mux.HandleFunc("/chart.png", s.handleChart)
	s.mux.HandleFunc("/ws", s.handleWS)
}

// Handler returns the admin routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	log := logging.FromContext(ctx).With().Str("component", "admin").Logger()
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("admin UI listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		log.Info().Msg("admin UI stopped")
		return nil
	}
}

type summaryResponse struct {
	SessionID string             `json:"session_id"`
	TruckID   string             `json:"truck_id"`
	Threshold float64            `json:"threshold"`
	Total     int                `json:"total"`
	Overloads int                `json:"overloads"`
	Latest    *telemetry.Reading `json:"latest,omitempty"`
}

func (s *Server) summary() summaryResponse {
	sum := s.Sim.Summary()
	return summaryResponse{
		SessionID: s.Sim.SessionID(),
		TruckID:   s.Sim.Config().TruckID,
		Threshold: s.Sim.Threshold(),
		Total:     sum.Total,
		Overloads: sum.Overloads,
		Latest:    sum.Latest,
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := struct {
		Summary   summaryResponse
		MapWindow int
	}{
		Summary:   s.summary(),
		MapWindow: s.Sim.Config().Admin.MapWindow,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, data); err != nil {
		logging.FromContext(r.Context()).Error().Err(err).Msg("render index")
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.summary())
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	n, err := intParam(r, "tail", -1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Sim.Log().Tail(n))
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	n, err := intParam(r, "window", s.Sim.Config().Admin.MapWindow)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("window must be a positive integer"))
		return
	}
	writeJSON(w, http.StatusOK, s.Sim.Log().Tail(n))
}

func (s *Server) handleThreshold(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	v, err := strconv.ParseFloat(r.FormValue("value"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("value: %w", err))
		return
	}
	if err := s.Sim.SetThreshold(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	logging.FromContext(r.Context()).Info().Float64("threshold", v).Msg("threshold changed")
	writeJSON(w, http.StatusOK, map[string]float64{"threshold": s.Sim.Threshold()})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	s.Sim.Reset()
	logging.FromContext(r.Context()).Info().Msg("log cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleManual(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var vals [3]float64
	for i, name := range []string{"weight", "lat", "lon"} {
		v, err := strconv.ParseFloat(r.FormValue(name), 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%s: %w", name, err))
			return
		}
		vals[i] = v
	}
	reading, err := s.Sim.Manual(r.Context(), vals[0], vals[1], vals[2])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, reading)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.Sim.Config().TruckID+"_log.csv"))
	if err := export.WriteCSV(w, s.Sim.Log().Readings()); err != nil {
		logging.FromContext(r.Context()).Error().Err(err).Msg("csv export failed")
	}
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	rs := export.Downsample(s.Sim.Log().Readings(), maxChartPoints)
	if len(rs) < 2 {
		writeError(w, http.StatusNotFound, export.ErrNotEnoughPoints)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteChart(&buf, rs, s.Sim.Threshold()); err != nil {
		logging.FromContext(r.Context()).Error().Err(err).Msg("chart render failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

// wsMessage is one websocket frame. A reset frame tells clients to drop what they have.
type wsMessage struct {
	Type    string             `json:"type"`
	Reading *telemetry.Reading `json:"reading,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context()).With().Str("component", "admin-ws").Logger()
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	signal, cancel := s.Sim.Log().Subscribe()
	defer cancel()

	// reader detects client disconnects
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	cursor := s.Sim.Log().Len()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-signal:
			if cursor, err = s.push(conn, cursor); err != nil {
				log.Debug().Err(err).Msg("websocket client gone")
				return
			}
		}
	}
}

// push sends readings appended since cursor and returns the new cursor.
func (s *Server) push(conn *websocket.Conn, cursor int) (int, error) {
	l := s.Sim.Log()
	if l.Len() < cursor {
		cursor = 0
		if err := writeFrame(conn, wsMessage{Type: "reset"}); err != nil {
			return cursor, err
		}
	}
	for _, rd := range l.Since(cursor) {
		rd := rd
		if err := writeFrame(conn, wsMessage{Type: "reading", Reading: &rd}); err != nil {
			return cursor, err
		}
		cursor++
	}
	return cursor, nil
}

func writeFrame(conn *websocket.Conn, msg wsMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	return false
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
