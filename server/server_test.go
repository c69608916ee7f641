package server

import (
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TFMV/stitchgraph/editor"
	"github.com/TFMV/stitchgraph/models"
	"github.com/TFMV/stitchgraph/physics"
	"github.com/TFMV/stitchgraph/stitch"
	"github.com/TFMV/stitchgraph/viewer"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// inline runs session calls on the test goroutine.
type inline struct{ err error }

func (e inline) Do(ctx context.Context, fn func()) error {
	if e.err != nil {
		return e.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	fn()
	return nil
}

type fixture struct {
	srv     *Server
	session *Session
	sched   *viewer.ManualScheduler
	a, b    *models.Node
}

// newFixture serves A(0,0) and B(20,0) joined by a link on a 100x100 view
// at zoom 1, with the graph origin in the centre.
func newFixture(t *testing.T, withScheme bool) *fixture {
	t.Helper()
	g := models.NewGraph("served")
	a := models.NewNodeAt("stitch", 0, 0)
	b := models.NewNodeAt("stitch", 20, 0)
	a.ID, b.ID = 0, 1
	l := models.NewLink("chain", a, b)
	l.Attach()
	g.Nodes = []*models.Node{a, b}
	g.Links = []*models.Link{l}

	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	sim := physics.New(g, physics.WithClock(clock), physics.WithLogger(quiet))
	var scheme *stitch.Scheme
	if withScheme {
		scheme = stitch.New(editor.New(sim, quiet), stitch.WithLogger(quiet))
	}

	sched := viewer.NewManualScheduler()
	v := viewer.New(sim, viewer.Dimensions{Width: 100, Height: 100},
		viewer.WithScheduler(sched), viewer.WithClock(clock), viewer.WithLogger(quiet))
	v.CanvasZoom(1)
	now = now.Add(time.Second)
	require.True(t, sched.Step())

	session := NewSession(v, scheme, inline{})
	return &fixture{srv: New(Config{}, session, quiet), session: session, sched: sched, a: a, b: b}
}

func (f *fixture) request(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewSession_AssignsID(t *testing.T) {
	f := newFixture(t, false)
	_, err := uuid.Parse(f.session.ID)
	assert.NoError(t, err)
	assert.NotNil(t, f.session.Viewer())
}

func TestFrame(t *testing.T) {
	f := newFixture(t, false)
	rec := f.request(t, http.MethodGet, "/frame.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	r, g, b, _ := img.At(50, 50).RGBA()
	assert.Less(t, r>>8, uint32(100))
	assert.Greater(t, b>>8, uint32(150))
	assert.Greater(t, g>>8, uint32(80))

	r, g, b, _ = img.At(5, 5).RGBA()
	assert.Equal(t, []uint32{0xff, 0xff, 0xff}, []uint32{r >> 8, g >> 8, b >> 8}, "background is white")
}

func TestShadow(t *testing.T) {
	f := newFixture(t, false)
	rec := f.request(t, http.MethodGet, "/shadow.png", "")
	require.Equal(t, http.StatusOK, rec.Code)

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	_, _, _, alpha := img.At(50, 50).RGBA()
	assert.Equal(t, uint32(0xffff), alpha)
	_, _, _, alpha = img.At(5, 5).RGBA()
	assert.Zero(t, alpha)
}

func TestPick(t *testing.T) {
	f := newFixture(t, false)

	type pick struct {
		Object *objectJSON `json:"object"`
	}
	got := decode[pick](t, f.request(t, http.MethodGet, "/api/pick?x=70&y=50", ""))
	require.NotNil(t, got.Object)
	assert.Equal(t, viewer.KindNode, got.Object.Kind)
	assert.Equal(t, f.b.ID, got.Object.ID)

	got = decode[pick](t, f.request(t, http.MethodGet, "/api/pick?x=60&y=50", ""))
	require.NotNil(t, got.Object)
	assert.Equal(t, viewer.KindLink, got.Object.Kind)

	got = decode[pick](t, f.request(t, http.MethodGet, "/api/pick?x=60&y=80", ""))
	assert.Nil(t, got.Object)

	assert.Equal(t, http.StatusBadRequest, f.request(t, http.MethodGet, "/api/pick?x=a", "").Code)
}

func TestGraph(t *testing.T) {
	f := newFixture(t, false)
	served := f.session.Viewer().Graph.Value()
	slots := f.session.Viewer().Tracker().Len()
	rec := f.request(t, http.MethodGet, "/api/graph", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.session.ID, rec.Header().Get("X-Session-ID"))

	got := decode[models.SerializableGraph](t, rec)
	assert.Equal(t, "served", got.Name)
	assert.Len(t, got.Nodes, 2)
	require.Len(t, got.Links, 1)
	assert.Equal(t, 1, got.Links[0].Target)

	assert.Same(t, served, f.session.Viewer().Graph.Value(), "export works on a snapshot")
	assert.Equal(t, slots, f.session.Viewer().Tracker().Len())
	assert.NotEmpty(t, f.a.IndexColor)
}

func TestPointer_DragAndClick(t *testing.T) {
	f := newFixture(t, false)

	got := decode[pointerResponse](t, f.request(t, http.MethodPost, "/api/pointer", `{"type":"down","x":50,"y":50}`))
	assert.False(t, got.Dragging)

	got = decode[pointerResponse](t, f.request(t, http.MethodPost, "/api/pointer", `{"type":"move","x":60,"y":50}`))
	assert.True(t, got.Dragging)
	assert.Equal(t, 10.0, f.a.X)

	got = decode[pointerResponse](t, f.request(t, http.MethodPost, "/api/pointer", `{"type":"up"}`))
	assert.False(t, got.Dragging)
	assert.Nil(t, got.Clicked, "a drag is not a click")
	assert.False(t, f.a.IsPinned())

	var clicks int
	f.session.Viewer().OnClick.Set(func(*viewer.Object, int) { clicks++ })
	f.request(t, http.MethodPost, "/api/pointer", `{"type":"down","x":70,"y":50}`)
	got = decode[pointerResponse](t, f.request(t, http.MethodPost, "/api/pointer", `{"type":"up"}`))
	require.NotNil(t, got.Clicked)
	assert.Equal(t, f.b.ID, got.Clicked.ID)
	assert.Equal(t, 1, clicks, "the host's click handler still runs")
	assert.NotNil(t, f.session.Viewer().OnClick.Value())
}

func TestPointer_Wheel(t *testing.T) {
	f := newFixture(t, false)
	got := decode[pointerResponse](t, f.request(t, http.MethodPost, "/api/pointer", `{"type":"wheel","x":50,"y":50,"deltaY":-500}`))
	assert.InDelta(t, 2.0, got.Zoom, 1e-9)
}

func TestPointer_BadRequests(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusBadRequest, f.request(t, http.MethodPost, "/api/pointer", `{"type":"hover"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.request(t, http.MethodPost, "/api/pointer", `{`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.request(t, http.MethodGet, "/api/pointer", "").Code)
}

func TestKey(t *testing.T) {
	f := newFixture(t, true)

	got := decode[keyResponse](t, f.request(t, http.MethodPost, "/api/key", `{"key":"c"}`))
	assert.True(t, got.Changed)
	assert.Equal(t, 3, got.Nodes)
	assert.Equal(t, 2, got.Links)
	require.NotNil(t, got.Start)
	require.NotNil(t, got.Target)
	assert.Equal(t, 2, *got.Start)
	assert.Equal(t, f.b.ID, *got.Target)

	got = decode[keyResponse](t, f.request(t, http.MethodPost, "/api/key", `{"key":"q"}`))
	assert.False(t, got.Changed)

	assert.Equal(t, http.StatusBadRequest, f.request(t, http.MethodPost, "/api/key", `{}`).Code)
}

func TestKey_WithoutScheme(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusNotImplemented, f.request(t, http.MethodPost, "/api/key", `{"key":"c"}`).Code)
}

func TestFit(t *testing.T) {
	f := newFixture(t, false)
	rec := f.request(t, http.MethodPost, "/api/fit?padding=0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]float64](t, rec)
	assert.Greater(t, got["zoom"], 1.0)

	assert.Equal(t, http.StatusBadRequest, f.request(t, http.MethodPost, "/api/fit?padding=x", "").Code)
}

func TestSessionUnavailable(t *testing.T) {
	f := newFixture(t, false)
	f.session.exec = inline{err: errors.New("loop stopped")}
	assert.Equal(t, http.StatusServiceUnavailable, f.request(t, http.MethodGet, "/frame.png", "").Code)
}

func TestIndexAndMetrics(t *testing.T) {
	f := newFixture(t, false)
	rec := f.request(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/frame.png")
	assert.Equal(t, http.StatusNotFound, f.request(t, http.MethodGet, "/nope", "").Code)

	rec = f.request(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stitchgraph_server_requests_total")
}

func TestRun_StopsWithContext(t *testing.T) {
	f := newFixture(t, false)
	srv := New(Config{Port: 0, ReadTimeout: time.Second}, f.session, quiet)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
