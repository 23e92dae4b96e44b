package handle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mind-lens/api/internal/analysis"
	"mind-lens/api/internal/analysis/types"
	"mind-lens/api/internal/imagedec"
	"mind-lens/api/internal/store"
)

const modelOutput = `{"analysis_result":{"mind_expression":"포근한 마음","persona_mind_sentence":"마음이 포근하구나!",
"persona_energy_sentence":"반짝반짝 에너지!","word_cloud":["즐거움","호기심","반짝임","휴식","여유"],
"top_5_colors":["#FFC107","#03A9F4","#E91E63","#4CAF50","#9C27B0"],
"energy_chart":{"joyful":80.5,"curious":60,"sparkle":72,"rest":40,"spacing_out":10}},
"character_commentary":"오늘도 멋진 그림이야","commentary_sections":[{"title":"마음 읽기","content":"a"},
{"title":"에너지 읽기","content":"b"},{"title":"색채 분위기","content":"c"}]}`

// fakeEngine повторяет поведение gemini.Engine после сетевого вызова.
type fakeEngine struct {
	calls   int
	persona string
	images  []imagedec.Image
	output  string
	err     error
	wait    time.Duration
}

func (f *fakeEngine) Name() string  { return "fake" }
func (f *fakeEngine) Model() string { return "fake-model" }

func (f *fakeEngine) Analyze(ctx context.Context, persona string, images []imagedec.Image) (analysis.Result, error) {
	f.calls++
	f.persona = persona
	f.images = images
	if f.wait > 0 {
		select {
		case <-time.After(f.wait):
		case <-ctx.Done():
			return analysis.Result{}, errors.Join(analysis.ErrExternalCall, ctx.Err())
		}
	}
	if f.err != nil {
		return analysis.Result{}, f.err
	}
	r, err := types.ParseResponse([]byte(f.output))
	if err != nil {
		return analysis.Result{}, err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(f.output)); err != nil {
		return analysis.Result{}, err
	}
	return analysis.Result{Response: r, Raw: buf.Bytes()}, nil
}

// failingStore — хранилище, у которого не работает запись.
type failingStore struct{ LogStore }

func (failingStore) Append(context.Context, string, json.RawMessage) (store.AnalysisLog, error) {
	return store.AnalysisLog{}, errors.Join(store.ErrPersistence, errors.New("disk full"))
}

type fixture struct {
	engine *fakeEngine
	repo   *store.AnalysisLogRepo
	h      *Handle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(context.Background(), store.Options{DSN: "sqlite:///:memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	f := &fixture{
		engine: &fakeEngine{output: modelOutput},
		repo:   store.NewAnalysisLogRepo(db, nil),
	}
	f.h = New(f.engine, f.repo, Options{
		Timeout:        time.Second,
		MaxUploadBytes: 1 << 20,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func (f *fixture) count(t *testing.T) int64 {
	t.Helper()
	n, err := f.repo.Count(context.Background())
	require.NoError(t, err)
	return n
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	m := image.NewRGBA(image.Rect(0, 0, 8, 8))
	m.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, m, nil))
	return buf.Bytes()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 2))))
	return buf.Bytes()
}

type upload struct {
	name string
	data []byte
}

func newUploadRequest(t *testing.T, persona *string, files ...upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		fw, err := mw.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	if persona != nil {
		require.NoError(t, mw.WriteField("persona", *persona))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func strPtr(s string) *string { return &s }

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestAnalyzeHappyPath(t *testing.T) {
	f := newFixture(t)
	req := newUploadRequest(t, strPtr("상냥한 친구"), upload{"a.jpg", jpegBytes(t)})

	rec := serve(f.h.Wrap(f.h.Analyze), req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got types.AnalysisResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	want, err := types.ParseResponse([]byte(modelOutput))
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.JSONEq(t, modelOutput, rec.Body.String())

	assert.Equal(t, 1, f.engine.calls)
	assert.Equal(t, "상냥한 친구", f.engine.persona)

	logs, err := f.repo.Recent(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "상냥한 친구", logs[0].Persona)
	assert.JSONEq(t, modelOutput, string(logs[0].Result))
}

func TestAnalyzeKeepsImageOrder(t *testing.T) {
	f := newFixture(t)
	j, p := jpegBytes(t), pngBytes(t)
	req := newUploadRequest(t, strPtr("칭찬봇 피코"), upload{"1.png", p}, upload{"2.jpg", j}, upload{"3.png", p})

	rec := serve(f.h.Wrap(f.h.Analyze), req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, f.engine.images, 3)
	assert.Equal(t, "png", f.engine.images[0].Format)
	assert.Equal(t, "jpeg", f.engine.images[1].Format)
	assert.Equal(t, "png", f.engine.images[2].Format)
	assert.Equal(t, j, f.engine.images[1].Data)
}

func TestAnalyzeTwiceWritesTwoRows(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 2; i++ {
		req := newUploadRequest(t, strPtr("p"), upload{"a.jpg", jpegBytes(t)})
		rec := serve(f.h.Wrap(f.h.Analyze), req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.EqualValues(t, 2, f.count(t))
	assert.Equal(t, 2, f.engine.calls)
}

func TestAnalyzeRejectsBeforeExternalCall(t *testing.T) {
	cases := map[string]*http.Request{}
	f := newFixture(t)
	cases["no files"] = newUploadRequest(t, strPtr("상냥한 친구"))
	cases["no persona"] = newUploadRequest(t, nil, upload{"a.jpg", jpegBytes(t)})
	cases["blank persona"] = newUploadRequest(t, strPtr("   "), upload{"a.jpg", jpegBytes(t)})
	notMultipart := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewBufferString(`{"persona":"p"}`))
	notMultipart.Header.Set("Content-Type", "application/json")
	cases["json body"] = notMultipart

	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			rec := serve(f.h.Wrap(f.h.Analyze), req)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"detail"`)
		})
	}
	assert.Zero(t, f.engine.calls)
	assert.Zero(t, f.count(t))
}

func TestAnalyzeBadImage(t *testing.T) {
	f := newFixture(t)
	req := newUploadRequest(t, strPtr("p"), upload{"a.jpg", jpegBytes(t)}, upload{"b.jpg", []byte("not an image")})

	rec := serve(f.h.Wrap(f.h.Analyze), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "image #2")
	assert.Zero(t, f.engine.calls)
	assert.Zero(t, f.count(t))
}

func TestAnalyzeNotJSONOutput(t *testing.T) {
	f := newFixture(t)
	f.engine.output = "not json"
	req := newUploadRequest(t, strPtr("p"), upload{"a.jpg", jpegBytes(t)})

	rec := serve(f.h.Wrap(f.h.Analyze), req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "analysis_result")
	assert.Equal(t, 1, f.engine.calls)
	assert.Zero(t, f.count(t))
}

func TestAnalyzeSchemaMismatch(t *testing.T) {
	f := newFixture(t)
	f.engine.output = `{"analysis_result":{"mind_expression":"x"},"character_commentary":"c","commentary_sections":[]}`
	req := newUploadRequest(t, strPtr("p"), upload{"a.jpg", jpegBytes(t)})

	rec := serve(f.h.Wrap(f.h.Analyze), req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Zero(t, f.count(t))
}

func TestAnalyzeExternalFailure(t *testing.T) {
	f := newFixture(t)
	f.engine.err = errors.Join(analysis.ErrExternalCall, errors.New("403 API key invalid"))
	req := newUploadRequest(t, strPtr("p"), upload{"a.jpg", jpegBytes(t)})

	rec := serve(f.h.Wrap(f.h.Analyze), req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Zero(t, f.count(t))
}

func TestAnalyzeTimeout(t *testing.T) {
	f := newFixture(t)
	f.engine.wait = 5 * time.Second
	req := newUploadRequest(t, strPtr("p"), upload{"a.jpg", jpegBytes(t)})
	req.Header.Set("X-Request-Timeout", "1")

	start := time.Now()
	rec := serve(f.h.Wrap(f.h.Analyze), req)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Zero(t, f.count(t))
}

func TestAnalyzePersistenceFailure(t *testing.T) {
	f := newFixture(t)
	h := New(f.engine, failingStore{LogStore: f.repo}, Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	req := newUploadRequest(t, strPtr("p"), upload{"a.jpg", jpegBytes(t)})

	rec := serve(h.Wrap(h.Analyze), req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "analysis_result")
	assert.Equal(t, 1, f.engine.calls)
}

func TestAnalyzeUploadTooLarge(t *testing.T) {
	f := newFixture(t)
	h := New(f.engine, f.repo, Options{
		MaxUploadBytes: 512,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	req := newUploadRequest(t, strPtr("p"), upload{"big.bin", bytes.Repeat([]byte{1}, 4096)})

	rec := serve(h.Wrap(h.Analyze), req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, f.engine.calls)
}

func TestRequestTimeout(t *testing.T) {
	h := New(nil, nil, Options{Timeout: 7 * time.Second})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	assert.Equal(t, 7*time.Second, h.requestTimeout(req))

	req.Header.Set("X-Request-Timeout", "3")
	assert.Equal(t, 3*time.Second, h.requestTimeout(req))

	req = httptest.NewRequest(http.MethodPost, "/api/analyze?timeoutSec=5", nil)
	assert.Equal(t, 5*time.Second, h.requestTimeout(req))

	req.Header.Set("X-Request-Timeout", "abc")
	assert.Equal(t, 7*time.Second, h.requestTimeout(req))
}

func TestRequestTimeoutCannotExceedConfig(t *testing.T) {
	h := New(nil, nil, Options{Timeout: 7 * time.Second})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	req.Header.Set("X-Request-Timeout", "3600")
	assert.Equal(t, 7*time.Second, h.requestTimeout(req))

	req = httptest.NewRequest(http.MethodPost, "/api/analyze?timeoutSec=600", nil)
	assert.Equal(t, 7*time.Second, h.requestTimeout(req))
}

func TestWriteJSONMarshalFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]any{"ch": make(chan int)})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"internal error"}`, rec.Body.String())
}
