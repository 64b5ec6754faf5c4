package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/casaviva/decora-backend/internal/logger"
)

// ImageFetcher downloads and decodes images the pipeline works on: source
// photos, product reference images and segmentation masks.
type ImageFetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
	FetchImage(ctx context.Context, url string) (image.Image, error)
}

type imageFetcher struct {
	log        *logger.Logger
	httpClient *http.Client
	maxBytes   int64
}

func NewImageFetcher(log *logger.Logger) ImageFetcher {
	return &imageFetcher{
		log:        log.With("service", "ImageFetcher"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxBytes:   32 << 20,
	}
}

func (f *imageFetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("image url required")
	}
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch image http %d: %s", resp.StatusCode, url)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	return raw, nil
}

func (f *imageFetcher) FetchImage(ctx context.Context, url string) (image.Image, error) {
	raw, err := f.FetchBytes(ctx, url)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
