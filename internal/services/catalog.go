package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/casaviva/decora-backend/internal/logger"
	"github.com/casaviva/decora-backend/internal/repos"
	"github.com/casaviva/decora-backend/internal/types"
)

// LexicalHit is a catalog product with its normalized text score in [0,1].
type LexicalHit struct {
	Product *types.Product
	Score   float64
}

// CatalogService wraps catalog reads for the matcher: normalized full-text
// search and bulk product lookup.
type CatalogService interface {
	SearchLexical(ctx context.Context, ownerID uuid.UUID, query string, limit int) ([]LexicalHit, error)
	ProductsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*types.Product, error)
}

type catalogService struct {
	log      *logger.Logger
	products repos.ProductRepo
}

func NewCatalogService(log *logger.Logger, products repos.ProductRepo) CatalogService {
	return &catalogService{
		log:      log.With("service", "CatalogService"),
		products: products,
	}
}

// minTextScore keeps zero-relevance FTS rows from polluting fusion. Raw
// ts_rank values are divided by the best hit's rank, so the top hit is
// always 1.0.
const minTextScore = 0.01

func (s *catalogService) SearchLexical(ctx context.Context, ownerID uuid.UUID, query string, limit int) ([]LexicalHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}
	ranked, err := s.products.SearchText(ctx, nil, ownerID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	if len(ranked) == 0 {
		return nil, nil
	}

	maxRelevance := 0.0
	for _, r := range ranked {
		if r.Relevance > maxRelevance {
			maxRelevance = r.Relevance
		}
	}

	hits := make([]LexicalHit, 0, len(ranked))
	for _, r := range ranked {
		score := 0.0
		if maxRelevance > 0 {
			score = r.Relevance / maxRelevance
		}
		if score < minTextScore {
			continue
		}
		hits = append(hits, LexicalHit{Product: r.Product, Score: score})
	}
	return hits, nil
}

func (s *catalogService) ProductsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*types.Product, error) {
	out := make(map[uuid.UUID]*types.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	products, err := s.products.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}
