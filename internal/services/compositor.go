package services

import (
	"context"
	"fmt"
	"image"

	"github.com/fogleman/gg"
	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"

	"github.com/casaviva/decora-backend/internal/logger"
)

// Compositor performs one inpainting round: the selected product is pasted
// into its detection region to prime the generator, a mask marks the region
// to regenerate, and the inpainting model produces the next scene base.
type Compositor interface {
	CompositeItem(ctx context.Context, projectID, itemID uuid.UUID, base image.Image, region Region, productImageURL, prompt string) (image.Image, string, error)
}

type compositor struct {
	log     *logger.Logger
	fetcher ImageFetcher
	bucket  BucketService
	inpaint InpaintClient
}

func NewCompositor(log *logger.Logger, fetcher ImageFetcher, bucket BucketService, inpaint InpaintClient) Compositor {
	return &compositor{
		log:     log.With("service", "Compositor"),
		fetcher: fetcher,
		bucket:  bucket,
		inpaint: inpaint,
	}
}

// CompositeItem returns the inpainted scene and its URL. The caller owns
// failure policy: on error the previous base stays in play.
func (c *compositor) CompositeItem(ctx context.Context, projectID, itemID uuid.UUID, base image.Image, region Region, productImageURL, prompt string) (image.Image, string, error) {
	product, err := c.fetcher.FetchImage(ctx, productImageURL)
	if err != nil {
		return nil, "", fmt.Errorf("fetch product image: %w", err)
	}

	primed := primeScene(base, product, region)
	mask := renderRegionMask(base.Bounds(), region)

	primedPNG, err := encodePNG(primed)
	if err != nil {
		return nil, "", fmt.Errorf("encode primed scene: %w", err)
	}
	maskPNG, err := encodePNG(mask)
	if err != nil {
		return nil, "", fmt.Errorf("encode mask: %w", err)
	}

	keyBase := fmt.Sprintf("designs/%s/items/%s", projectID, itemID)
	primedURL, err := c.bucket.UploadBytes(ctx, keyBase+"/primed.png", primedPNG, "image/png")
	if err != nil {
		return nil, "", fmt.Errorf("upload primed scene: %w", err)
	}
	maskURL, err := c.bucket.UploadBytes(ctx, keyBase+"/mask.png", maskPNG, "image/png")
	if err != nil {
		return nil, "", fmt.Errorf("upload mask: %w", err)
	}

	outURL, err := c.inpaint.Inpaint(ctx, primedURL, maskURL, prompt)
	if err != nil {
		return nil, "", fmt.Errorf("inpaint item: %w", err)
	}

	next, err := c.fetcher.FetchImage(ctx, outURL)
	if err != nil {
		return nil, "", fmt.Errorf("fetch inpainted scene: %w", err)
	}
	return next, outURL, nil
}

// primeScene pastes the product into the region, centered, scaled to fit
// without ever upscaling past the product's native resolution.
func primeScene(base, product image.Image, region Region) image.Image {
	bounds := base.Bounds()
	dc := gg.NewContext(bounds.Dx(), bounds.Dy())
	dc.DrawImage(base, -bounds.Min.X, -bounds.Min.Y)

	fitted := fitWithin(product, region.Width, region.Height)
	fw := fitted.Bounds().Dx()
	fh := fitted.Bounds().Dy()
	x := region.X + (region.Width-fw)/2
	y := region.Y + (region.Height-fh)/2
	dc.DrawImage(fitted, x, y)

	return dc.Image()
}

// renderRegionMask paints the detection region white on a black canvas the
// size of the scene. The inpainting model regenerates white pixels only.
func renderRegionMask(bounds image.Rectangle, region Region) image.Image {
	dc := gg.NewContext(bounds.Dx(), bounds.Dy())
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	dc.SetRGB(1, 1, 1)
	dc.DrawRectangle(float64(region.X), float64(region.Y), float64(region.Width), float64(region.Height))
	dc.Fill()
	return dc.Image()
}

// fitWithin scales img to fit the box preserving aspect ratio. Images
// already smaller than the box pass through untouched.
func fitWithin(img image.Image, maxW, maxH int) image.Image {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w <= 0 || h <= 0 || maxW <= 0 || maxH <= 0 {
		return img
	}

	scale := 1.0
	if sx := float64(maxW) / float64(w); sx < scale {
		scale = sx
	}
	if sy := float64(maxH) / float64(h); sy < scale {
		scale = sy
	}
	if scale >= 1.0 {
		return img
	}

	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	return dst
}
