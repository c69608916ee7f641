// Package server exposes one live editing session over HTTP: rendered
// frames, the picking canvas, pointer and key input, and the graph.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/TFMV/stitchgraph/models"
	"github.com/TFMV/stitchgraph/render"
	"github.com/TFMV/stitchgraph/stitch"
	"github.com/TFMV/stitchgraph/viewer"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stitchgraph_server_requests_total",
	Help: "HTTP requests by route and status code",
}, []string{"route", "code"})

// Config for the server
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Executor runs fn on the goroutine that owns the session. viewer.Loop is
// the production executor.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// Session is one viewer, optionally driven by a crochet scheme.
type Session struct {
	ID     string
	viewer *viewer.Controller
	scheme *stitch.Scheme
	exec   Executor
}

// NewSession wraps a viewer. scheme may be nil, in which case key input is
// rejected.
func NewSession(v *viewer.Controller, scheme *stitch.Scheme, exec Executor) *Session {
	return &Session{ID: uuid.NewString(), viewer: v, scheme: scheme, exec: exec}
}

// Viewer returns the session's controller. Touch it only through Do.
func (s *Session) Viewer() *viewer.Controller { return s.viewer }

// Do runs fn on the session goroutine.
func (s *Session) Do(ctx context.Context, fn func()) error {
	return s.exec.Do(ctx, fn)
}

// Server serves a session.
type Server struct {
	config  Config
	session *Session
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New creates a server and registers its routes.
func New(config Config, session *Session, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:  config,
		session: session,
		logger:  logger.With("component", "server", "session", session.ID),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("GET /{$}", "index", s.handleIndex)
	s.handle("GET /frame.png", "frame", s.handleFrame)
	s.handle("GET /shadow.png", "shadow", s.handleShadow)
	s.handle("GET /api/graph", "graph", s.handleGraph)
	s.handle("GET /api/pick", "pick", s.handlePick)
	s.handle("POST /api/pointer", "pointer", s.handlePointer)
	s.handle("POST /api/key", "key", s.handleKey)
	s.handle("POST /api/fit", "fit", s.handleFit)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// statusRecorder captures the response code for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handle(pattern, route string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		h(rec, r)
		requestsTotal.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		s.logger.Debug("request", "route", route, "code", rec.code)
	})
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run listens on the configured port until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.mux,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.config.Port)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// do runs fn on the session goroutine, answering 503 when the request is
// cancelled first.
func (s *Server) do(w http.ResponseWriter, r *http.Request, fn func()) bool {
	if err := s.session.Do(r.Context(), fn); err != nil {
		http.Error(w, "session unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(v)
}

// objectJSON is the wire form of a picked object.
type objectJSON struct {
	Kind  viewer.ObjectKind `json:"kind"`
	ID    int               `json:"id"`
	Label string            `json:"label,omitempty"`
}

func toJSON(obj *viewer.Object) *objectJSON {
	if obj == nil {
		return nil
	}
	out := &objectJSON{Kind: obj.Kind, ID: obj.ID()}
	if obj.Node != nil {
		out.Label = obj.Node.Label
	}
	return out
}

func nodeID(n *models.Node) *int {
	if n == nil {
		return nil
	}
	id := n.ID
	return &id
}

func (s *Server) writePNG(w http.ResponseWriter, r *http.Request, encode func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	var err error
	if !s.do(w, r, func() { err = encode(&buf) }) {
		return
	}
	if err != nil {
		s.logger.Error("encode png", "error", err)
		http.Error(w, "Error encoding frame: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	s.writePNG(w, r, func(buf *bytes.Buffer) error { return s.session.viewer.EncodePNG(buf) })
}

func (s *Server) handleShadow(w http.ResponseWriter, r *http.Request) {
	s.writePNG(w, r, func(buf *bytes.Buffer) error { return s.session.viewer.EncodeShadowPNG(buf) })
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	var snapshot *models.Graph
	ok := s.do(w, r, func() { snapshot = s.session.viewer.Graph.Value().Clone() })
	if !ok {
		return
	}
	data, err := (&render.JSONExporter{}).Export(snapshot, render.NewDefaultOptions("json"))
	if err != nil {
		http.Error(w, "Error exporting graph: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Session-ID", s.session.ID)
	_, _ = w.Write(data)
}

// handlePick reports the object at a CSS pixel. The picking canvas is
// redrawn first so the answer matches the current layout.
func (s *Server) handlePick(w http.ResponseWriter, r *http.Request) {
	x, errX := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
	y, errY := strconv.ParseFloat(r.URL.Query().Get("y"), 64)
	if errX != nil || errY != nil {
		http.Error(w, "x and y must be numbers", http.StatusBadRequest)
		return
	}
	var obj *viewer.Object
	ok := s.do(w, r, func() {
		v := s.session.viewer
		v.RefreshShadow()
		obj = v.PickAt(x, y)
	})
	if !ok {
		return
	}
	writeJSON(w, map[string]any{"object": toJSON(obj)})
}

type pointerRequest struct {
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Button int     `json:"button"`
	DeltaY float64 `json:"deltaY"`
}

type pointerResponse struct {
	Hover    *objectJSON `json:"hover"`
	Clicked  *objectJSON `json:"clicked,omitempty"`
	Dragging bool        `json:"dragging"`
	Zoom     float64     `json:"zoom"`
}

func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error parsing pointer event: "+err.Error(), http.StatusBadRequest)
		return
	}

	var resp pointerResponse
	var unknown bool
	ok := s.do(w, r, func() {
		v := s.session.viewer
		var clicked *viewer.Object
		prevClick := v.OnClick.Value()
		v.OnClick.Set(func(obj *viewer.Object, button int) {
			clicked = obj
			if prevClick != nil {
				prevClick(obj, button)
			}
		})
		defer v.OnClick.Set(prevClick)

		switch req.Type {
		case "down":
			v.PointerDown(req.X, req.Y, req.Button)
		case "move":
			v.PointerMove(req.X, req.Y)
		case "up":
			v.PointerUp(req.Button)
		case "cancel":
			v.PointerCancel()
		case "wheel":
			v.Wheel(req.X, req.Y, req.DeltaY)
		case "dblclick":
			v.DoubleClick(req.X, req.Y)
		default:
			unknown = true
			return
		}
		resp = pointerResponse{
			Hover:    toJSON(v.HoverObject()),
			Clicked:  toJSON(clicked),
			Dragging: v.IsDragging(),
			Zoom:     v.Zoom(),
		}
	})
	if !ok {
		return
	}
	if unknown {
		http.Error(w, fmt.Sprintf("unknown pointer event %q", req.Type), http.StatusBadRequest)
		return
	}
	writeJSON(w, resp)
}

type keyRequest struct {
	Key   string `json:"key"`
	Shift bool   `json:"shift"`
}

type keyResponse struct {
	Changed bool `json:"changed"`
	Start   *int `json:"start"`
	Target  *int `json:"target"`
	Nodes   int  `json:"nodes"`
	Links   int  `json:"links"`
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	scheme := s.session.scheme
	if scheme == nil {
		http.Error(w, "session has no editable scheme", http.StatusNotImplemented)
		return
	}
	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		http.Error(w, "expected {\"key\": ..., \"shift\": ...}", http.StatusBadRequest)
		return
	}

	var resp keyResponse
	ok := s.do(w, r, func() {
		resp.Changed = scheme.HandleKey(req.Key, req.Shift)
		if resp.Changed {
			s.session.viewer.RequestRedraw()
		}
		g := scheme.Editor().Graph()
		resp.Start = nodeID(scheme.StartStitch())
		resp.Target = nodeID(scheme.TargetStitch())
		resp.Nodes = len(g.Nodes)
		resp.Links = len(g.Links)
	})
	if !ok {
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleFit(w http.ResponseWriter, r *http.Request) {
	padding := 10.0
	if p := r.URL.Query().Get("padding"); p != "" {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			http.Error(w, "padding must be a number", http.StatusBadRequest)
			return
		}
		padding = v
	}
	var zoom float64
	if !s.do(w, r, func() { zoom = s.session.viewer.ZoomToFit(padding).Zoom() }) {
		return
	}
	writeJSON(w, map[string]float64{"zoom": zoom})
}

// handleIndex serves a minimal page that polls frames and forwards input.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, indexHTML)
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>stitchgraph</title>
  <style>
    body { font-family: 'Helvetica Neue', Arial, sans-serif; margin: 20px; background: #f5f5f5; color: #333; }
    img { background: white; box-shadow: 0 2px 10px rgba(0,0,0,0.1); cursor: crosshair; }
  </style>
</head>
<body>
  <h1>stitchgraph</h1>
  <p>c chain, x crochet, l direct link, Backspace undo, arrows move the focus (shift for start).</p>
  <img id="frame" src="/frame.png" draggable="false">
  <script>
    const img = document.getElementById('frame');
    const post = (url, body) => fetch(url, {method: 'POST', body: JSON.stringify(body)});
    const pos = e => ({x: e.offsetX, y: e.offsetY, button: e.button});
    img.addEventListener('pointerdown', e => post('/api/pointer', {type: 'down', ...pos(e)}));
    img.addEventListener('pointermove', e => post('/api/pointer', {type: 'move', ...pos(e)}));
    img.addEventListener('pointerup', e => post('/api/pointer', {type: 'up', ...pos(e)}));
    img.addEventListener('wheel', e => { e.preventDefault(); post('/api/pointer', {type: 'wheel', ...pos(e), deltaY: e.deltaY}); });
    document.addEventListener('keydown', e => post('/api/key', {key: e.key, shift: e.shiftKey}));
    setInterval(() => { img.src = '/frame.png?t=' + Date.now(); }, 100);
  </script>
</body>
</html>
`
