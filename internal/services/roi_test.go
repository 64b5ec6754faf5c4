package services

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"testing"
)

func TestNormalizeBoundingBoxFractionalCorners(t *testing.T) {
	raw := json.RawMessage(`{"x_min": 0.1, "y_min": 0.1, "x_max": 0.5, "y_max": 0.6}`)
	region, err := NormalizeBoundingBox(raw, 1000, 800, DefaultFractionMax)
	if err != nil {
		t.Fatalf("NormalizeBoundingBox: %v", err)
	}
	want := Region{X: 100, Y: 80, Width: 400, Height: 400}
	if region != want {
		t.Fatalf("region: want=%+v got=%+v", want, region)
	}
}

func TestNormalizeBoundingBoxAbsoluteCorners(t *testing.T) {
	raw := json.RawMessage(`{"x_min": 100, "y_min": 50, "x_max": 300, "y_max": 250}`)
	region, err := NormalizeBoundingBox(raw, 1000, 800, DefaultFractionMax)
	if err != nil {
		t.Fatalf("NormalizeBoundingBox: %v", err)
	}
	want := Region{X: 100, Y: 50, Width: 200, Height: 200}
	if region != want {
		t.Fatalf("region: want=%+v got=%+v", want, region)
	}
}

func TestNormalizeBoundingBoxXYWidthHeight(t *testing.T) {
	raw := json.RawMessage(`{"x": 20, "y": 30, "width": 100, "height": 150}`)
	region, err := NormalizeBoundingBox(raw, 1000, 800, DefaultFractionMax)
	if err != nil {
		t.Fatalf("NormalizeBoundingBox: %v", err)
	}
	want := Region{X: 20, Y: 30, Width: 100, Height: 150}
	if region != want {
		t.Fatalf("region: want=%+v got=%+v", want, region)
	}
}

func TestNormalizeBoundingBoxClampsToImage(t *testing.T) {
	raw := json.RawMessage(`{"x": -50, "y": 700, "width": 2000, "height": 500}`)
	region, err := NormalizeBoundingBox(raw, 1000, 800, DefaultFractionMax)
	if err != nil {
		t.Fatalf("NormalizeBoundingBox: %v", err)
	}
	if region.X < 0 || region.Y < 0 {
		t.Fatalf("region origin not clamped: %+v", region)
	}
	if region.X+region.Width > 1000 || region.Y+region.Height > 800 {
		t.Fatalf("region exceeds image: %+v", region)
	}
	if region.Width < 1 || region.Height < 1 {
		t.Fatalf("region has no area: %+v", region)
	}
}

func TestNormalizeBoundingBoxRejectsBadInputs(t *testing.T) {
	cases := map[string]string{
		"unknown keys":  `{"left": 1, "top": 2}`,
		"zero size":     `{"x": 10, "y": 10, "width": 0, "height": 5}`,
		"inverted":      `{"x_min": 300, "y_min": 300, "x_max": 200, "y_max": 200}`,
		"outside image": `{"x": 5000, "y": 5000, "width": 10, "height": 10}`,
	}
	for name, raw := range cases {
		if _, err := NormalizeBoundingBox(json.RawMessage(raw), 1000, 800, DefaultFractionMax); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := NormalizeBoundingBox(nil, 1000, 800, DefaultFractionMax); err == nil {
		t.Fatalf("missing box: expected error")
	}
	if _, err := NormalizeBoundingBox(json.RawMessage(`{"x":1,"y":1,"width":2,"height":2}`), 0, 0, DefaultFractionMax); err == nil {
		t.Fatalf("invalid image dims: expected error")
	}
}

type fakeSegmenter struct {
	maskURL string
	err     error
	calls   int
}

func (f *fakeSegmenter) Segment(ctx context.Context, imageURL, objectName string) (string, error) {
	f.calls++
	return f.maskURL, f.err
}

type fakeEmbedder struct {
	vec        []float32
	imageErr   error
	imageCalls int
}

func (f *fakeEmbedder) EmbedImage(ctx context.Context, imageBytes []byte) ([]float32, error) {
	f.imageCalls++
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	return f.vec, nil
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return f.vec, nil
}

type fakeFetcher struct {
	images map[string]image.Image
	bytes  map[string][]byte
}

func (f *fakeFetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	if raw, ok := f.bytes[url]; ok {
		return raw, nil
	}
	return nil, fmt.Errorf("no bytes for %s", url)
}

func (f *fakeFetcher) FetchImage(ctx context.Context, url string) (image.Image, error) {
	if img, ok := f.images[url]; ok {
		return img, nil
	}
	return nil, fmt.Errorf("no image for %s", url)
}

func testSourceImage(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 60, A: 255})
		}
	}
	return img
}

func testMaskImage(w, h int) image.Image {
	mask := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return mask
}

func TestEmbedDetectionUsesMaskWhenAvailable(t *testing.T) {
	seg := &fakeSegmenter{maskURL: "https://cdn.test/mask.png"}
	emb := &fakeEmbedder{vec: []float32{0.1, 0.2}}
	fetch := &fakeFetcher{images: map[string]image.Image{
		"https://cdn.test/mask.png": testMaskImage(100, 80),
	}}
	extractor := NewROIExtractor(testLogger(t), seg, emb, fetch)

	source := testSourceImage(100, 80)
	region := Region{X: 10, Y: 10, Width: 40, Height: 40}
	vec, err := extractor.EmbedDetection(context.Background(), source, "https://cdn.test/room.png", Detection{Name: "sofa"}, region)
	if err != nil {
		t.Fatalf("EmbedDetection: %v", err)
	}
	if len(vec) != 2 {
		t.Fatalf("vector: got=%v", vec)
	}
	if seg.calls != 1 {
		t.Fatalf("segmenter calls: want=1 got=%d", seg.calls)
	}
	if emb.imageCalls != 1 {
		t.Fatalf("embed calls: want=1 got=%d", emb.imageCalls)
	}
}

func TestEmbedDetectionFallsBackToCrop(t *testing.T) {
	// Segmenter finds no matching segment; the bbox crop still yields a vector.
	seg := &fakeSegmenter{maskURL: ""}
	emb := &fakeEmbedder{vec: []float32{0.5}}
	extractor := NewROIExtractor(testLogger(t), seg, emb, &fakeFetcher{})

	source := testSourceImage(100, 80)
	region := Region{X: 0, Y: 0, Width: 50, Height: 50}
	vec, err := extractor.EmbedDetection(context.Background(), source, "https://cdn.test/room.png", Detection{Name: "mesa"}, region)
	if err != nil {
		t.Fatalf("EmbedDetection: %v", err)
	}
	if len(vec) != 1 {
		t.Fatalf("vector: got=%v", vec)
	}
}

func TestEmbedDetectionNoSegmenterStillEmbeds(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{1}}
	extractor := NewROIExtractor(testLogger(t), nil, emb, &fakeFetcher{})

	source := testSourceImage(60, 60)
	region := Region{X: 5, Y: 5, Width: 20, Height: 20}
	if _, err := extractor.EmbedDetection(context.Background(), source, "url", Detection{Name: "rack"}, region); err != nil {
		t.Fatalf("EmbedDetection: %v", err)
	}
}

func TestEmbedDetectionPropagatesEmbedderFailure(t *testing.T) {
	emb := &fakeEmbedder{imageErr: fmt.Errorf("embedding service down")}
	extractor := NewROIExtractor(testLogger(t), nil, emb, &fakeFetcher{})

	source := testSourceImage(60, 60)
	region := Region{X: 0, Y: 0, Width: 30, Height: 30}
	if _, err := extractor.EmbedDetection(context.Background(), source, "url", Detection{Name: "rack"}, region); err == nil {
		t.Fatalf("expected error when embedder fails")
	}
}

func TestApplyMaskAlphaZeroesMaskedOutPixels(t *testing.T) {
	source := testSourceImage(10, 10)
	mask := testMaskImage(10, 10)
	masked := applyMaskAlpha(source, mask)

	left := color.NRGBAModel.Convert(masked.At(1, 5)).(color.NRGBA)
	right := color.NRGBAModel.Convert(masked.At(8, 5)).(color.NRGBA)
	if left.A != 255 {
		t.Fatalf("kept pixel alpha: want=255 got=%d", left.A)
	}
	if right.A != 0 {
		t.Fatalf("masked pixel alpha: want=0 got=%d", right.A)
	}
}
