package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	redisclient "github.com/casaviva/decora-backend/internal/clients/redis"
	"github.com/casaviva/decora-backend/internal/logger"
)

// EmbeddingClient produces fixed-length CLIP-style vectors for image regions
// and free text, over a plain HTTP inference contract.
type EmbeddingClient interface {
	EmbedImage(ctx context.Context, imageBytes []byte) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type embeddingClient struct {
	ai    *aiHTTPClient
	model string
	cache redisclient.EmbeddingCache
}

// NewEmbeddingClient builds the client; cache may be nil, in which case
// every call goes to the inference service.
func NewEmbeddingClient(log *logger.Logger, cache redisclient.EmbeddingCache) (EmbeddingClient, error) {
	baseURL := os.Getenv("EMBEDDING_BASE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("missing EMBEDDING_BASE_URL")
	}
	apiKey := os.Getenv("EMBEDDING_API_KEY")

	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = "clip-vit-base-patch32"
	}

	timeoutSec := 60
	if v := os.Getenv("EMBEDDING_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	return &embeddingClient{
		ai: &aiHTTPClient{
			log:        log.With("service", "EmbeddingClient"),
			baseURL:    baseURL,
			apiKey:     apiKey,
			httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
			maxRetries: 2,
		},
		model: model,
		cache: cache,
	}, nil
}

type embeddingRequest struct {
	Model string `json:"model"`
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (c *embeddingClient) EmbedImage(ctx context.Context, imageBytes []byte) ([]float32, error) {
	if len(imageBytes) == 0 {
		return nil, fmt.Errorf("image bytes required")
	}

	if c.cache != nil {
		if vec, ok := c.cache.Get(ctx, imageBytes); ok {
			return vec, nil
		}
	}

	req := embeddingRequest{
		Model: c.model,
		Image: base64.StdEncoding.EncodeToString(imageBytes),
	}
	var resp embeddingResponse
	if err := c.ai.do(ctx, "POST", "/v1/embeddings/image", req, &resp); err != nil {
		return nil, err
	}
	vec, err := toFloat32Vector(resp.Embedding)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Put(ctx, imageBytes, vec)
	}
	return vec, nil
}

func (c *embeddingClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("text required")
	}
	req := embeddingRequest{Model: c.model, Text: text}
	var resp embeddingResponse
	if err := c.ai.do(ctx, "POST", "/v1/embeddings/text", req, &resp); err != nil {
		return nil, err
	}
	return toFloat32Vector(resp.Embedding)
}

func toFloat32Vector(in []float64) ([]float32, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	out := make([]float32, len(in))
	for i, f := range in {
		out[i] = float32(f)
	}
	return out, nil
}
