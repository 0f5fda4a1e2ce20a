package worker

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/archive"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/config"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/queue"
)

func redPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestImageHandler(t *testing.T) (*ImageHandler, string) {
	t.Helper()
	dir := t.TempDir()
	a := archive.NewWithUploaders(&archive.LocalUploader{BaseDir: dir}, nil)
	return NewImageHandler(config.Default(), a), dir
}

func TestImageHandlerResizesAndStores(t *testing.T) {
	body := redPNG(t, 20, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	h, dir := newTestImageHandler(t)
	var m milestones
	job := models.Job{ID: "img-1", Type: models.JobTypeImageProcessing, Payload: map[string]any{
		"source_url": srv.URL + "/photo.png",
		"output_key": "thumbs/test.png",
		"width":      5,
		"grayscale":  true,
	}}

	out, err := h.Handle(context.Background(), job, m.report())
	require.NoError(t, err)
	res := out.(ImageResult)

	assert.Equal(t, filepath.Join(dir, "thumbs", "test.png"), res.Location)
	assert.Equal(t, 5, res.Width)
	assert.Equal(t, 3, res.Height)
	assert.Equal(t, "png", res.Format)
	assert.Equal(t, []string{"download", "transform", "upload"}, m.steps)

	f, err := os.Open(res.Location)
	require.NoError(t, err)
	defer f.Close()
	stored, format, err := image.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	r, g, b, _ := stored.At(2, 1).RGBA()
	assert.Equal(t, r, g, "grayscale output has equal channels")
	assert.Equal(t, g, b)
}

func TestImageHandlerClientErrorsArePermanent(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	h, _ := newTestImageHandler(t)
	_, err := h.Handle(context.Background(), models.Job{Payload: map[string]any{"source_url": srv.URL}}, func(int, string, string) {})
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
}

func TestImageHandlerServerErrorsAreRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	h, _ := newTestImageHandler(t)
	_, err := h.Handle(context.Background(), models.Job{Payload: map[string]any{"source_url": srv.URL}}, func(int, string, string) {})
	require.Error(t, err)
	assert.False(t, queue.IsPermanent(err))
}

func TestImageHandlerValidatesPayload(t *testing.T) {
	h, _ := newTestImageHandler(t)
	noop := func(int, string, string) {}

	_, err := h.Handle(context.Background(), models.Job{Payload: map[string]any{}}, noop)
	require.ErrorIs(t, err, ErrInvalidPayload)

	_, err = h.Handle(context.Background(), models.Job{Payload: map[string]any{"source_url": "http://x", "width": -1}}, noop)
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestChooseFormat(t *testing.T) {
	assert.Equal(t, "png", formatExtension(chooseFormat("a.png", "jpeg", "")))
	assert.Equal(t, "jpg", formatExtension(chooseFormat("a.jpeg", "png", "")))
	assert.Equal(t, "gif", formatExtension(chooseFormat("", "gif", "")))
	assert.Equal(t, "jpg", formatExtension(chooseFormat("", "webp", "image/webp")))
	assert.Equal(t, "image/png", mimeForFormat(chooseFormat("", "", "image/png")))
}
