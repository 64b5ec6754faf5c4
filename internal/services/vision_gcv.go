package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"github.com/casaviva/decora-backend/internal/logger"
)

// gcvVisionClient is the secondary vision vendor. Cloud Vision object
// localization has no free-text descriptions, but its normalized vertices
// map directly onto the fractional bounding-box encoding, so its output is
// rendered into the same payload shape the normalizer already accepts.
type gcvVisionClient struct {
	log        *logger.Logger
	annotator  *vision.ImageAnnotatorClient
	maxResults int32
}

func NewGCVVisionClient(ctx context.Context, log *logger.Logger) (VisionClient, error) {
	serviceLog := log.With("service", "GCVVisionClient")

	var opts []option.ClientOption
	if saPath := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON")); saPath != "" {
		opts = append(opts, option.WithCredentialsFile(saPath))
	} else {
		serviceLog.Warn("GOOGLE_APPLICATION_CREDENTIALS_JSON not set; relying on ADC")
	}

	annotator, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision annotator client: %w", err)
	}

	return &gcvVisionClient{
		log:        serviceLog,
		annotator:  annotator,
		maxResults: 20,
	}, nil
}

func (c *gcvVisionClient) AnalyzeImage(ctx context.Context, imageURL string) (json.RawMessage, error) {
	if strings.TrimSpace(imageURL) == "" {
		return nil, fmt.Errorf("imageURL required")
	}

	resp, err := c.annotator.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{
					Source: &visionpb.ImageSource{ImageUri: imageURL},
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_OBJECT_LOCALIZATION, MaxResults: c.maxResults},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("cloud vision annotate: %w", err)
	}
	if len(resp.Responses) == 0 {
		return nil, fmt.Errorf("cloud vision returned no responses")
	}
	annotation := resp.Responses[0]
	if annotation.Error != nil {
		return nil, fmt.Errorf("cloud vision error: %s", annotation.Error.Message)
	}

	type payloadBox struct {
		XMin float64 `json:"x_min"`
		YMin float64 `json:"y_min"`
		XMax float64 `json:"x_max"`
		YMax float64 `json:"y_max"`
	}
	type payloadDetection struct {
		Name        string     `json:"name"`
		Description string     `json:"description"`
		BoundingBox payloadBox `json:"bounding_box"`
	}

	furniture := make([]payloadDetection, 0, len(annotation.LocalizedObjectAnnotations))
	for _, obj := range annotation.LocalizedObjectAnnotations {
		if obj == nil || strings.TrimSpace(obj.Name) == "" || obj.BoundingPoly == nil {
			continue
		}
		box := payloadBox{XMin: 1, YMin: 1, XMax: 0, YMax: 0}
		for _, v := range obj.BoundingPoly.NormalizedVertices {
			x := float64(v.X)
			y := float64(v.Y)
			if x < box.XMin {
				box.XMin = x
			}
			if y < box.YMin {
				box.YMin = y
			}
			if x > box.XMax {
				box.XMax = x
			}
			if y > box.YMax {
				box.YMax = y
			}
		}
		if box.XMax <= box.XMin || box.YMax <= box.YMin {
			continue
		}
		furniture = append(furniture, payloadDetection{
			Name:        obj.Name,
			BoundingBox: box,
		})
	}

	raw, err := json.Marshal(map[string]any{"furniture": furniture})
	if err != nil {
		return nil, err
	}
	c.log.Debug("cloud vision fallback produced detections", "count", len(furniture))
	return raw, nil
}

func (c *gcvVisionClient) Close() error {
	return c.annotator.Close()
}
