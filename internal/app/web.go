// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/posture_telemetry/internal/calibration"
	"github.com/relabs-tech/posture_telemetry/internal/orientation"
	"github.com/relabs-tech/posture_telemetry/internal/pipeline"
	"github.com/relabs-tech/posture_telemetry/internal/posture"
	"github.com/relabs-tech/posture_telemetry/internal/ringbuf"
	"github.com/relabs-tech/posture_telemetry/internal/serialport"
	"github.com/relabs-tech/posture_telemetry/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const (
	wsSendBuffer  = 32
	wsWriteWait   = 5 * time.Second
	forwardLength = 1.5
)

var (
	faceColorsUpright  = []string{"cyan", "cyan", "yellow", "yellow", "lightblue", "gray"}
	faceColorsSlouched = []string{"red", "red", "orange", "orange", "pink", "darkred"}
)

// statusColors maps alert level names to the visualiser title color.
var statusColors = map[string]string{
	"none":     "green",
	"gentle":   "yellow",
	"warning":  "orange",
	"urgent":   "red",
	"critical": "darkred",
}

// monitorView is what the web server needs from the pipeline.
type monitorView interface {
	Latest() (pipeline.Snapshot, bool)
	Calibration() calibration.State
	Stats() pipeline.Stats
	Config() pipeline.Config
	Endpoint() string
	RequestSwitch(ctx context.Context, endpoint string) (*serialport.Session, error)
}

// OrientationPayload is what the 3-D visualiser draws.
type OrientationPayload struct {
	telemetry.SampleRecord
	HasData     bool                 `json:"has_data"`
	Band        string               `json:"band"`
	Zone        string               `json:"zone"`
	StatusText  string               `json:"status_text"`
	StatusColor string               `json:"status_color"`
	Rotation    orientation.Rotation `json:"rotation"`
	Forward     orientation.Vector3  `json:"forward"`
	Faces       []orientation.Face   `json:"faces"`
	FaceColors  []string             `json:"face_colors"`
	Calibration calibration.State    `json:"calibration"`
	Endpoint    string               `json:"endpoint"`
}

// NewOrientationPayload renders a snapshot for the visualiser.
func NewOrientationPayload(s pipeline.Snapshot) OrientationPayload {
	rec := s.Record()
	fwd := s.Forward
	for i := range fwd {
		fwd[i] *= forwardLength
	}

	status := "GOOD POSTURE"
	colors := faceColorsUpright
	if rec.ForwardSlouch {
		status = "SLOUCHING"
		colors = faceColorsSlouched
	}

	return OrientationPayload{
		SampleRecord: rec,
		HasData:      true,
		Band:         s.Band.String(),
		Zone:         s.Zone.String(),
		StatusText:   status + " | Alert: " + strings.ToUpper(rec.AlertLevelName),
		StatusColor:  statusColors[rec.AlertLevelName],
		Rotation:     s.Rotation,
		Forward:      fwd,
		Faces:        orientation.RotateFaces(orientation.SensorBox(), s.Rotation),
		FaceColors:   colors,
		Calibration:  s.Calibration,
		Endpoint:     s.Endpoint,
	}
}

// idlePayload is shown before the first sample: a level sensor with no
// alert on the current endpoint.
func idlePayload(endpoint string, cal calibration.State, threshold float64) OrientationPayload {
	rot := orientation.Rotate(0, 0)
	p := NewOrientationPayload(pipeline.Snapshot{
		At:          time.UnixMilli(0),
		Endpoint:    endpoint,
		Calibration: cal,
		Threshold:   threshold,
		Rotation:    rot,
		Forward:     rot.Apply(orientation.Forward),
		Band:        posture.BandFor(0, threshold),
		Zone:        posture.ZoneFor(0, 0, threshold),
	})
	p.HasData = false
	return p
}

// currentPayload is the latest sample, or the idle payload before one.
func (s *WebServer) currentPayload() OrientationPayload {
	if snap, ok := s.mon.Latest(); ok {
		return NewOrientationPayload(snap)
	}
	threshold := s.mon.Config().Posture.PitchThresholdDeg
	return idlePayload(s.mon.Endpoint(), s.mon.Calibration(), threshold)
}

// DiagnosticEntry is one buffered non-telemetry line.
type DiagnosticEntry struct {
	At     time.Time `json:"at"`
	Text   string    `json:"text"`
	Status string    `json:"status,omitempty"`
}

// WSMessage is a request from a websocket client.
type WSMessage struct {
	Action string `json:"action"` // switch
	Port   string `json:"port,omitempty"`
}

// WSResponse is pushed to websocket clients.
type WSResponse struct {
	Type    string      `json:"type"` // hello, orientation, calibration, diagnostic, switched, error
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// WebServer serves the visualiser API and streams pipeline output to
// websocket clients. It is a pipeline.Sink.
type WebServer struct {
	mon           monitorView
	diag          *ringbuf.Ring[DiagnosticEntry]
	listPorts     func() ([]serialport.PortInfo, error)
	switchTimeout time.Duration
	staticDir     string
	metrics       http.Handler
	now           func() time.Time

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewWebServer serves mon and keeps the last diagSize diagnostic lines.
func NewWebServer(mon monitorView, diagSize int) *WebServer {
	return &WebServer{
		mon:           mon,
		diag:          ringbuf.New[DiagnosticEntry](diagSize),
		listPorts:     serialport.ListPorts,
		switchTimeout: 15 * time.Second,
		staticDir:     "web",
		now:           time.Now,
		clients:       make(map[*wsClient]struct{}),
	}
}

// SetMetricsHandler exposes h on GET /metrics.
func (s *WebServer) SetMetricsHandler(h http.Handler) {
	s.metrics = h
}

// Handler returns the HTTP routes.
func (s *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/orientation", s.handleOrientation)
	mux.HandleFunc("GET /api/calibration", s.handleCalibration)
	mux.HandleFunc("GET /api/ports", s.handlePorts)
	mux.HandleFunc("POST /api/port", s.handleSwitch)
	mux.HandleFunc("GET /api/diagnostics", s.handleDiagnostics)
	mux.HandleFunc("GET /ws", s.handleWS)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func (s *WebServer) handleOrientation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.currentPayload())
}

func (s *WebServer) handleCalibration(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mon.Calibration())
}

func (s *WebServer) handlePorts(w http.ResponseWriter, r *http.Request) {
	ports, err := s.listPorts()
	if err != nil {
		log.Printf("web: error enumerating serial ports: %v", err)
		http.Error(w, "failed to enumerate serial ports", http.StatusInternalServerError)
		return
	}
	current := s.mon.Endpoint()
	writeJSON(w, http.StatusOK, map[string]any{
		"ports":     ports,
		"current":   current,
		"connected": current != "",
	})
}

func (s *WebServer) switchTo(ctx context.Context, endpoint string) (*serialport.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.switchTimeout)
	defer cancel()
	return s.mon.RequestSwitch(ctx, endpoint)
}

func (s *WebServer) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Port string `json:"port"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Port) == "" {
		http.Error(w, "expected JSON body with a non-empty \"port\"", http.StatusBadRequest)
		return
	}

	session, err := s.switchTo(r.Context(), strings.TrimSpace(req.Port))
	if err != nil {
		var ce *serialport.ConnectError
		status := http.StatusInternalServerError
		switch {
		case errors.As(err, &ce):
			status = http.StatusBadGateway
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	log.Printf("web: switched to %s", session.Endpoint)
	writeJSON(w, http.StatusOK, session)
}

func (s *WebServer) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"lines": s.diag.Snapshot(),
		"total": s.diag.Total(),
		"stats": s.mon.Stats(),
	})
}

func (s *WebServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	go c.writeLoop()
	s.register(c)
	defer func() {
		s.unregister(c)
		conn.Close()
	}()

	s.sendTo(c, WSResponse{Type: "hello", Data: s.currentPayload()})

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("web: websocket read error: %v", err)
			}
			return
		}

		switch msg.Action {
		case "switch":
			session, err := s.switchTo(r.Context(), msg.Port)
			if err != nil {
				s.sendTo(c, WSResponse{Type: "error", Message: err.Error()})
				continue
			}
			s.sendTo(c, WSResponse{Type: "switched", Data: session})
		default:
			s.sendTo(c, WSResponse{Type: "error", Message: "unknown action: " + msg.Action})
		}
	}
}

func (c *wsClient) writeLoop() {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Printf("web: websocket write error: %v", err)
			c.conn.Close()
			return
		}
	}
}

func (s *WebServer) register(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *WebServer) unregister(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

// ClientCount is the number of connected websocket clients.
func (s *WebServer) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *WebServer) sendTo(c *wsClient, resp WSResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		log.Printf("web: json marshal error: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

// broadcast drops the message for clients that are not keeping up.
func (s *WebServer) broadcast(resp WSResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		log.Printf("web: json marshal error: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- b:
		default:
		}
	}
}

func (s *WebServer) HandleSample(snap pipeline.Snapshot) {
	s.broadcast(WSResponse{Type: "orientation", Data: NewOrientationPayload(snap)})
}

func (s *WebServer) HandleCalibration(st calibration.State) {
	s.broadcast(WSResponse{Type: "calibration", Data: st})
}

func (s *WebServer) HandleDiagnostic(d telemetry.DiagnosticLine) {
	entry := DiagnosticEntry{At: s.now(), Text: d.Text, Status: d.Status}
	s.diag.Push(entry)
	s.broadcast(WSResponse{Type: "diagnostic", Data: entry})
}

// Serve listens on addr until ctx is cancelled.
func (s *WebServer) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Printf("web server listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
