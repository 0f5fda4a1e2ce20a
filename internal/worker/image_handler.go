package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/archive"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/config"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/queue"
)

// ImageHandler resizes listing photos and stores them in the archive.
type ImageHandler struct {
	cfg        config.Config
	httpClient *http.Client
	archive    *archive.Archive
}

type imageJobPayload struct {
	SourceURL   string `json:"source_url"`
	OutputKey   string `json:"output_key"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Grayscale   bool   `json:"grayscale"`
	Destination string `json:"destination"`
}

// ImageResult describes the stored photo.
type ImageResult struct {
	Location string `json:"location"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format"`
	Bytes    int    `json:"bytes"`
}

func NewImageHandler(cfg config.Config, a *archive.Archive) *ImageHandler {
	timeout := cfg.ImageDownloadTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ImageHandler{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		archive:    a,
	}
}

// Handle downloads, transforms and uploads a single photo.
func (h *ImageHandler) Handle(ctx context.Context, job models.Job, report queue.ReportFunc) (any, error) {
	payload, err := h.decodePayload(job)
	if err != nil {
		return nil, err
	}

	report(10, "Downloading image", "download")
	data, contentType, err := h.download(ctx, payload.SourceURL)
	if err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, queue.Permanent(fmt.Errorf("decode image: %w", err))
	}

	report(40, "Transforming image", "transform")
	if payload.Grayscale {
		img = imaging.Grayscale(img)
	}
	img = imaging.Resize(img, payload.Width, payload.Height, imaging.Lanczos)

	outputFormat := chooseFormat(payload.OutputKey, format, contentType)
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, img, outputFormat, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	outputKey := payload.OutputKey
	if outputKey == "" {
		outputKey = fmt.Sprintf("photos/%s.%s", job.ID, formatExtension(outputFormat))
	}

	report(70, "Uploading image", "upload")
	location, err := h.archive.Put(ctx, payload.Destination, outputKey, buf.Bytes(), mimeForFormat(outputFormat))
	if err != nil {
		if errors.Is(err, archive.ErrS3NotConfigured) {
			return nil, queue.Permanent(err)
		}
		return nil, err
	}

	return ImageResult{
		Location: location,
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
		Format:   formatExtension(outputFormat),
		Bytes:    buf.Len(),
	}, nil
}

func (h *ImageHandler) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", queue.Permanent(fmt.Errorf("build request: %w", err))
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		err := fmt.Errorf("download image: status %d", resp.StatusCode)
		if resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests {
			return nil, "", queue.Permanent(err)
		}
		return nil, "", err
	}

	limit := h.cfg.ImageMaxBytes
	if limit == 0 {
		limit = 25 * 1024 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, "", queue.Permanent(fmt.Errorf("image too large (>%d bytes)", limit))
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (h *ImageHandler) decodePayload(job models.Job) (imageJobPayload, error) {
	var payload imageJobPayload
	if err := decodePayload(job, &payload); err != nil {
		return payload, err
	}
	if payload.SourceURL == "" {
		return payload, invalidPayload("source_url is required")
	}
	if payload.Width < 0 || payload.Height < 0 {
		return payload, invalidPayload("width and height must not be negative")
	}
	if payload.Width == 0 && payload.Height == 0 {
		payload.Width = h.cfg.ImageDefaultWidth
		payload.Height = h.cfg.ImageDefaultHeight
	}
	if payload.Width == 0 && payload.Height == 0 {
		payload.Width = 320
	}
	return payload, nil
}

func formatExtension(format imaging.Format) string {
	switch format {
	case imaging.PNG:
		return "png"
	case imaging.GIF:
		return "gif"
	case imaging.TIFF:
		return "tiff"
	default:
		return "jpg"
	}
}

// chooseFormat prefers the output key extension, then the decoded format.
// WebP input is re-encoded as JPEG since imaging cannot write WebP.
func chooseFormat(outputKey, decodeFormat, contentType string) imaging.Format {
	switch strings.ToLower(filepath.Ext(outputKey)) {
	case ".png":
		return imaging.PNG
	case ".jpg", ".jpeg":
		return imaging.JPEG
	}
	switch strings.ToLower(decodeFormat) {
	case "png":
		return imaging.PNG
	case "gif":
		return imaging.GIF
	case "tiff":
		return imaging.TIFF
	}
	if strings.Contains(strings.ToLower(contentType), "png") {
		return imaging.PNG
	}
	return imaging.JPEG
}

func mimeForFormat(format imaging.Format) string {
	switch format {
	case imaging.PNG:
		return "image/png"
	case imaging.GIF:
		return "image/gif"
	case imaging.TIFF:
		return "image/tiff"
	default:
		return "image/jpeg"
	}
}
