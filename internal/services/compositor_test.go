package services

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"testing"

	"github.com/google/uuid"
)

func TestFitWithinNeverUpscales(t *testing.T) {
	small := image.NewNRGBA(image.Rect(0, 0, 40, 30))
	fitted := fitWithin(small, 400, 300)
	if fitted.Bounds().Dx() != 40 || fitted.Bounds().Dy() != 30 {
		t.Fatalf("small image was upscaled: %v", fitted.Bounds())
	}
}

func TestFitWithinPreservesAspectRatio(t *testing.T) {
	wide := image.NewNRGBA(image.Rect(0, 0, 400, 100))
	fitted := fitWithin(wide, 200, 200)
	if fitted.Bounds().Dx() != 200 {
		t.Fatalf("width: want=200 got=%d", fitted.Bounds().Dx())
	}
	if fitted.Bounds().Dy() != 50 {
		t.Fatalf("height: want=50 got=%d", fitted.Bounds().Dy())
	}
}

func TestRenderRegionMaskPaintsRegionWhite(t *testing.T) {
	mask := renderRegionMask(image.Rect(0, 0, 100, 100), Region{X: 20, Y: 20, Width: 30, Height: 30})

	inside := color.GrayModel.Convert(mask.At(35, 35)).(color.Gray)
	outside := color.GrayModel.Convert(mask.At(5, 5)).(color.Gray)
	if inside.Y < 250 {
		t.Fatalf("inside region not white: %d", inside.Y)
	}
	if outside.Y > 5 {
		t.Fatalf("outside region not black: %d", outside.Y)
	}
}

func TestPrimeSceneCentersProductInRegion(t *testing.T) {
	base := image.NewNRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			base.SetNRGBA(x, y, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
		}
	}
	product := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			product.SetNRGBA(x, y, color.NRGBA{R: 250, G: 0, B: 0, A: 255})
		}
	}

	region := Region{X: 50, Y: 50, Width: 100, Height: 100}
	primed := primeScene(base, product, region)

	// Region center carries the product, the region corner still the base.
	center := color.NRGBAModel.Convert(primed.At(100, 100)).(color.NRGBA)
	if center.R < 200 {
		t.Fatalf("product not composited at region center: %+v", center)
	}
	corner := color.NRGBAModel.Convert(primed.At(51, 51)).(color.NRGBA)
	if corner.R > 50 {
		t.Fatalf("base overwritten outside product extent: %+v", corner)
	}
}

type fakeInpainter struct {
	outputURL string
	err       error
	calls     int
	lastMask  string
}

func (f *fakeInpainter) Inpaint(ctx context.Context, primedImageURL, maskURL, prompt string) (string, error) {
	f.calls++
	f.lastMask = maskURL
	if f.err != nil {
		return "", f.err
	}
	return f.outputURL, nil
}

type fakeBucket struct {
	uploads map[string][]byte
}

func (f *fakeBucket) UploadFile(ctx context.Context, key string, file io.Reader, contentType string) error {
	return nil
}

func (f *fakeBucket) UploadBytes(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if f.uploads == nil {
		f.uploads = make(map[string][]byte)
	}
	f.uploads[key] = data
	return "https://bucket.test/" + key, nil
}

func (f *fakeBucket) DeleteFile(ctx context.Context, key string) error { return nil }

func (f *fakeBucket) GetPublicURL(key string) string { return "https://bucket.test/" + key }

func TestCompositeItemThreadsInpaintedResult(t *testing.T) {
	base := testSourceImage(100, 100)
	next := testSourceImage(100, 100)
	productImg := testSourceImage(20, 20)

	fetch := &fakeFetcher{images: map[string]image.Image{
		"https://cdn.test/product.png": productImg,
		"https://gen.test/out.png":     next,
	}}
	inpaint := &fakeInpainter{outputURL: "https://gen.test/out.png"}
	bucket := &fakeBucket{}
	comp := NewCompositor(testLogger(t), fetch, bucket, inpaint)

	got, gotURL, err := comp.CompositeItem(context.Background(), uuid.New(), uuid.New(), base,
		Region{X: 10, Y: 10, Width: 40, Height: 40}, "https://cdn.test/product.png", "a sofa")
	if err != nil {
		t.Fatalf("CompositeItem: %v", err)
	}
	if got == nil || gotURL != "https://gen.test/out.png" {
		t.Fatalf("result: url=%q", gotURL)
	}
	if inpaint.calls != 1 {
		t.Fatalf("inpaint calls: want=1 got=%d", inpaint.calls)
	}
	if len(bucket.uploads) != 2 {
		t.Fatalf("uploads: want primed+mask, got=%d", len(bucket.uploads))
	}
}

func TestCompositeItemFailsWhenInpaintFails(t *testing.T) {
	fetch := &fakeFetcher{images: map[string]image.Image{
		"https://cdn.test/product.png": testSourceImage(20, 20),
	}}
	inpaint := &fakeInpainter{err: fmt.Errorf("model overloaded")}
	comp := NewCompositor(testLogger(t), fetch, &fakeBucket{}, inpaint)

	_, _, err := comp.CompositeItem(context.Background(), uuid.New(), uuid.New(), testSourceImage(100, 100),
		Region{X: 0, Y: 0, Width: 40, Height: 40}, "https://cdn.test/product.png", "a sofa")
	if err == nil {
		t.Fatalf("expected error when inpainting fails")
	}
}
