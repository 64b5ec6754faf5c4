package services

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/casaviva/decora-backend/internal/logger"
)

// SegmentationClient asks a SAM-style service for a pixel mask of a named
// object. An empty mask URL means no matching segment was found; both that
// and outright failure degrade to the bbox-crop fallback upstream.
type SegmentationClient interface {
	Segment(ctx context.Context, imageURL, objectName string) (string, error)
}

type segmentationClient struct {
	ai *aiHTTPClient
}

func NewSegmentationClient(log *logger.Logger) (SegmentationClient, error) {
	baseURL := os.Getenv("SEGMENTATION_BASE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("missing SEGMENTATION_BASE_URL")
	}

	return &segmentationClient{
		ai: &aiHTTPClient{
			log:        log.With("service", "SegmentationClient"),
			baseURL:    baseURL,
			apiKey:     os.Getenv("SEGMENTATION_API_KEY"),
			httpClient: &http.Client{Timeout: 90 * time.Second},
			maxRetries: 1,
		},
	}, nil
}

type segmentRequest struct {
	ImageURL string `json:"image_url"`
	Prompt   string `json:"prompt"`
}

type segmentResponse struct {
	MaskURL string `json:"mask_url"`
}

func (c *segmentationClient) Segment(ctx context.Context, imageURL, objectName string) (string, error) {
	imageURL = strings.TrimSpace(imageURL)
	objectName = strings.TrimSpace(objectName)
	if imageURL == "" || objectName == "" {
		return "", fmt.Errorf("imageURL and objectName required")
	}

	req := segmentRequest{ImageURL: imageURL, Prompt: objectName}
	var resp segmentResponse
	if err := c.ai.do(ctx, "POST", "/v1/segment", req, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.MaskURL), nil
}
