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

// InpaintClient regenerates the masked region of a primed composite image,
// conditioned on a text prompt. Returns the generated image URL.
type InpaintClient interface {
	Inpaint(ctx context.Context, primedImageURL, maskURL, prompt string) (string, error)
}

type inpaintClient struct {
	ai *aiHTTPClient
}

func NewInpaintClient(log *logger.Logger) (InpaintClient, error) {
	baseURL := os.Getenv("INPAINT_BASE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("missing INPAINT_BASE_URL")
	}

	return &inpaintClient{
		ai: &aiHTTPClient{
			log:        log.With("service", "InpaintClient"),
			baseURL:    baseURL,
			apiKey:     os.Getenv("INPAINT_API_KEY"),
			httpClient: &http.Client{Timeout: 180 * time.Second},
			maxRetries: 1,
		},
	}, nil
}

type inpaintRequest struct {
	ImageURL string `json:"image_url"`
	MaskURL  string `json:"mask_url"`
	Prompt   string `json:"prompt"`
}

type inpaintResponse struct {
	OutputURL string `json:"output_url"`
}

func (c *inpaintClient) Inpaint(ctx context.Context, primedImageURL, maskURL, prompt string) (string, error) {
	if strings.TrimSpace(primedImageURL) == "" || strings.TrimSpace(maskURL) == "" {
		return "", fmt.Errorf("primed image and mask URLs required")
	}

	req := inpaintRequest{ImageURL: primedImageURL, MaskURL: maskURL, Prompt: prompt}
	var resp inpaintResponse
	if err := c.ai.do(ctx, "POST", "/v1/inpaint", req, &resp); err != nil {
		return "", err
	}
	out := strings.TrimSpace(resp.OutputURL)
	if out == "" {
		return "", fmt.Errorf("inpainting returned empty output URL")
	}
	return out, nil
}
