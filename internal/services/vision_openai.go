package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/casaviva/decora-backend/internal/logger"
)

// VisionClient analyzes a room photo and returns the raw furniture-detection
// payload. Shape tolerance lives in the detection normalizer, not here.
type VisionClient interface {
	AnalyzeImage(ctx context.Context, imageURL string) (json.RawMessage, error)
}

const furnitureInstruction = `Identify every piece of furniture in this room photo. ` +
	`Respond with a JSON object {"furniture": [...]} where each entry has ` +
	`"name" (short furniture type, in Portuguese when possible), "description" ` +
	`(one sentence: color, material, style) and "bounding_box" with fractional ` +
	`corners {"x_min","y_min","x_max","y_max"} between 0 and 1.`

type openAIVisionClient struct {
	ai    *aiHTTPClient
	model string
}

func NewOpenAIVisionClient(log *logger.Logger) (VisionClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	model := os.Getenv("OPENAI_VISION_MODEL")
	if model == "" {
		model = "gpt-4o"
	}

	timeoutSec := 120
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 3
	if v := os.Getenv("OPENAI_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	return &openAIVisionClient{
		ai: &aiHTTPClient{
			log:        log.With("service", "OpenAIVisionClient"),
			baseURL:    baseURL,
			apiKey:     apiKey,
			httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
			maxRetries: maxRetries,
		},
		model: model,
	}, nil
}

type visionContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type visionRequest struct {
	Model string `json:"model"`
	Input []struct {
		Role    string              `json:"role"`
		Content []visionContentPart `json:"content"`
	} `json:"input"`
	Text struct {
		Format map[string]any `json:"format"`
	} `json:"text"`
}

type visionResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func (c *openAIVisionClient) AnalyzeImage(ctx context.Context, imageURL string) (json.RawMessage, error) {
	if strings.TrimSpace(imageURL) == "" {
		return nil, fmt.Errorf("imageURL required")
	}

	req := visionRequest{Model: c.model}
	req.Input = []struct {
		Role    string              `json:"role"`
		Content []visionContentPart `json:"content"`
	}{
		{
			Role: "user",
			Content: []visionContentPart{
				{Type: "input_text", Text: furnitureInstruction},
				{Type: "input_image", ImageURL: imageURL},
			},
		},
	}
	req.Text.Format = map[string]any{"type": "json_object"}

	var resp visionResponse
	if err := c.ai.do(ctx, "POST", "/v1/responses", req, &resp); err != nil {
		return nil, err
	}
	if resp.Refusal != "" {
		return nil, fmt.Errorf("model refused: %s", resp.Refusal)
	}

	var jsonText string
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, part := range item.Content {
				if part.Type == "output_text" && part.Text != "" {
					jsonText += part.Text
				}
			}
		}
	}
	if jsonText == "" {
		return nil, fmt.Errorf("no output_text found in vision response")
	}

	return json.RawMessage(jsonText), nil
}
