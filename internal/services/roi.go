package services

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"

	"github.com/casaviva/decora-backend/internal/logger"
	"github.com/casaviva/decora-backend/internal/utils"
)

// Region is a pixel-space rectangle, always clamped inside its source image
// with positive area.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// DefaultFractionMax is the threshold below which four-corner coordinates
// are read as fractions of the image rather than absolute pixels. The value
// is a known weakness inherited from the vision contract, kept tunable via
// ROI_FRACTION_MAX rather than re-derived.
const DefaultFractionMax = 1.5

type rawBoundingBox struct {
	XMin   *float64 `json:"x_min"`
	YMin   *float64 `json:"y_min"`
	XMax   *float64 `json:"x_max"`
	YMax   *float64 `json:"y_max"`
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
}

// NormalizeBoundingBox resolves a raw bounding box into a clamped pixel
// region. Three encodings are accepted: fractional corners (all values at
// most fractionMax), absolute-pixel corners, and absolute x/y/width/height.
func NormalizeBoundingBox(raw json.RawMessage, imgWidth, imgHeight int, fractionMax float64) (Region, error) {
	if imgWidth <= 0 || imgHeight <= 0 {
		return Region{}, fmt.Errorf("invalid image dimensions %dx%d", imgWidth, imgHeight)
	}
	if len(raw) == 0 {
		return Region{}, fmt.Errorf("missing bounding box")
	}
	if fractionMax <= 0 {
		fractionMax = DefaultFractionMax
	}

	var box rawBoundingBox
	if err := json.Unmarshal(raw, &box); err != nil {
		return Region{}, fmt.Errorf("decode bounding box: %w", err)
	}

	var x, y, w, h float64
	switch {
	case box.X != nil && box.Y != nil && box.Width != nil && box.Height != nil:
		x, y, w, h = *box.X, *box.Y, *box.Width, *box.Height
	case box.XMin != nil && box.YMin != nil && box.XMax != nil && box.YMax != nil:
		xMin, yMin, xMax, yMax := *box.XMin, *box.YMin, *box.XMax, *box.YMax
		if xMin <= fractionMax && yMin <= fractionMax && xMax <= fractionMax && yMax <= fractionMax {
			xMin *= float64(imgWidth)
			xMax *= float64(imgWidth)
			yMin *= float64(imgHeight)
			yMax *= float64(imgHeight)
		}
		x, y = xMin, yMin
		w, h = xMax-xMin, yMax-yMin
	default:
		return Region{}, fmt.Errorf("bounding box matches no known encoding")
	}

	if w <= 0 || h <= 0 {
		return Region{}, fmt.Errorf("bounding box resolves to non-positive size %.1fx%.1f", w, h)
	}

	region := Region{X: int(x), Y: int(y), Width: int(w), Height: int(h)}
	return clampRegion(region, imgWidth, imgHeight)
}

func clampRegion(r Region, imgWidth, imgHeight int) (Region, error) {
	if r.X < 0 {
		r.Width += r.X
		r.X = 0
	}
	if r.Y < 0 {
		r.Height += r.Y
		r.Y = 0
	}
	if r.X >= imgWidth || r.Y >= imgHeight {
		return Region{}, fmt.Errorf("bounding box lies outside the image")
	}
	if r.X+r.Width > imgWidth {
		r.Width = imgWidth - r.X
	}
	if r.Y+r.Height > imgHeight {
		r.Height = imgHeight - r.Y
	}
	if r.Width < 1 || r.Height < 1 {
		return Region{}, fmt.Errorf("bounding box clamps to zero area")
	}
	return r, nil
}

// ROIExtractor turns a detection's bounding box into a pixel region and a
// visual embedding. The embedding chain is: segmentation mask composed as
// alpha, then plain bbox crop, then no visual signal at all.
type ROIExtractor interface {
	Region(rawBox json.RawMessage, imgWidth, imgHeight int) (Region, error)
	EmbedDetection(ctx context.Context, source image.Image, sourceURL string, det Detection, region Region) ([]float32, error)
}

type roiExtractor struct {
	log         *logger.Logger
	segmenter   SegmentationClient
	embedder    EmbeddingClient
	fetcher     ImageFetcher
	fractionMax float64
}

// NewROIExtractor builds the extractor. segmenter may be nil; the chain
// then starts at the bbox crop. Embedding caching lives in the embedder.
func NewROIExtractor(log *logger.Logger, segmenter SegmentationClient, embedder EmbeddingClient, fetcher ImageFetcher) ROIExtractor {
	return &roiExtractor{
		log:         log.With("service", "ROIExtractor"),
		segmenter:   segmenter,
		embedder:    embedder,
		fetcher:     fetcher,
		fractionMax: utils.GetEnvAsFloat("ROI_FRACTION_MAX", DefaultFractionMax, log),
	}
}

func (e *roiExtractor) Region(rawBox json.RawMessage, imgWidth, imgHeight int) (Region, error) {
	return NormalizeBoundingBox(rawBox, imgWidth, imgHeight, e.fractionMax)
}

func (e *roiExtractor) EmbedDetection(ctx context.Context, source image.Image, sourceURL string, det Detection, region Region) ([]float32, error) {
	if e.embedder == nil {
		return nil, fmt.Errorf("embedding client unavailable")
	}

	if vec, err := e.embedMasked(ctx, source, sourceURL, det, region); err == nil {
		return vec, nil
	} else {
		e.log.Debug("masked embedding unavailable, falling back to bbox crop",
			"detection", det.Name, "reason", err)
	}

	crop := cropRegion(source, region)
	raw, err := encodePNG(crop)
	if err != nil {
		return nil, fmt.Errorf("encode region crop: %w", err)
	}
	vec, err := e.embedder.EmbedImage(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("embed region crop: %w", err)
	}
	return vec, nil
}

func (e *roiExtractor) embedMasked(ctx context.Context, source image.Image, sourceURL string, det Detection, region Region) ([]float32, error) {
	if e.segmenter == nil {
		return nil, fmt.Errorf("segmentation client unavailable")
	}
	maskURL, err := e.segmenter.Segment(ctx, sourceURL, det.Name)
	if err != nil {
		return nil, fmt.Errorf("segmentation call: %w", err)
	}
	if maskURL == "" {
		return nil, fmt.Errorf("no matching segment")
	}
	mask, err := e.fetcher.FetchImage(ctx, maskURL)
	if err != nil {
		return nil, fmt.Errorf("fetch mask: %w", err)
	}

	masked := applyMaskAlpha(source, mask)
	crop := cropRegion(masked, region)
	raw, err := encodePNG(crop)
	if err != nil {
		return nil, fmt.Errorf("encode masked crop: %w", err)
	}
	vec, err := e.embedder.EmbedImage(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("embed masked crop: %w", err)
	}
	return vec, nil
}

// applyMaskAlpha composes the mask into the source's alpha channel: white
// mask pixels keep the source, black pixels become transparent. The mask is
// rescaled to the source resolution when the two disagree.
func applyMaskAlpha(source, mask image.Image) image.Image {
	bounds := source.Bounds()

	if !mask.Bounds().Eq(bounds) {
		scaled := image.NewGray(bounds)
		xdraw.ApproxBiLinear.Scale(scaled, bounds, mask, mask.Bounds(), xdraw.Src, nil)
		mask = scaled
	}

	out := image.NewNRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			alpha := color.GrayModel.Convert(mask.At(x, y)).(color.Gray).Y
			c := color.NRGBAModel.Convert(source.At(x, y)).(color.NRGBA)
			c.A = alpha
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}

func cropRegion(img image.Image, region Region) image.Image {
	rect := region.Rect().Add(img.Bounds().Min)
	out := image.NewNRGBA(image.Rect(0, 0, region.Width, region.Height))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out
}
