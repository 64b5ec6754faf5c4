package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/casaviva/decora-backend/internal/clients/pinecone"
	"github.com/casaviva/decora-backend/internal/logger"
	"github.com/casaviva/decora-backend/internal/types"
	"github.com/casaviva/decora-backend/internal/utils"
)

// MatchConfig holds the fusion weights and floors. Defaults are the tuned
// production values; every knob is overridable from the environment so
// re-tuning does not need a deploy.
type MatchConfig struct {
	TextWeight     float64
	VisualWeight   float64
	VisualFloor    float64
	CombinedFloor  float64
	LexicalLimit   int
	VisualTopK     int
	MaxSuggestions int
}

func MatchConfigFromEnv(log *logger.Logger) MatchConfig {
	return MatchConfig{
		TextWeight:     utils.GetEnvAsFloat("MATCH_TEXT_WEIGHT", 0.01, log),
		VisualWeight:   utils.GetEnvAsFloat("MATCH_VISUAL_WEIGHT", 0.99, log),
		VisualFloor:    utils.GetEnvAsFloat("MATCH_VISUAL_FLOOR", 0.135, log),
		CombinedFloor:  utils.GetEnvAsFloat("MATCH_COMBINED_FLOOR", 0.05, log),
		LexicalLimit:   utils.GetEnvAsInt("MATCH_LEXICAL_LIMIT", 20, log),
		VisualTopK:     utils.GetEnvAsInt("MATCH_VISUAL_TOPK", 40, log),
		MaxSuggestions: utils.GetEnvAsInt("MATCH_MAX_SUGGESTIONS", 3, log),
	}
}

// MatcherService fuses lexical and visual candidates for one detection into
// ranked suggestion slots.
type MatcherService interface {
	SuggestProducts(ctx context.Context, ownerID uuid.UUID, det Detection, visual []float32) ([]types.SuggestionSlot, error)
}

type matcherService struct {
	log        *logger.Logger
	catalog    CatalogService
	vectors    pinecone.VectorStore
	categories *CategoryMap
	cfg        MatchConfig
}

// NewMatcherService builds the matcher. vectors may be nil; matching then
// runs on the lexical signal alone.
func NewMatcherService(log *logger.Logger, catalog CatalogService, vectors pinecone.VectorStore, categories *CategoryMap, cfg MatchConfig) MatcherService {
	return &matcherService{
		log:        log.With("service", "MatcherService"),
		catalog:    catalog,
		vectors:    vectors,
		categories: categories,
		cfg:        cfg,
	}
}

type fusedCandidate struct {
	productID   uuid.UUID
	textScore   float64
	visualScore float64
	sources     []string
}

func (c *fusedCandidate) addSource(src string) {
	for _, s := range c.sources {
		if s == src {
			return
		}
	}
	c.sources = append(c.sources, src)
}

// SuggestProducts gathers candidates from both signals, fuses per product
// with a weighted sum of the best score each signal produced, filters by
// category compatibility and by having a display image, and returns the top
// slots in a deterministic order.
func (m *matcherService) SuggestProducts(ctx context.Context, ownerID uuid.UUID, det Detection, visual []float32) ([]types.SuggestionSlot, error) {
	candidates := make(map[uuid.UUID]*fusedCandidate)
	products := make(map[uuid.UUID]*types.Product)

	query := det.Name
	if det.Description != "" {
		query = det.Name + " " + det.Description
	}
	lexical, err := m.catalog.SearchLexical(ctx, ownerID, query, m.cfg.LexicalLimit)
	if err != nil {
		m.log.Warn("lexical search failed, continuing on visual signal only",
			"detection", det.Name, "error", err)
	}
	for _, hit := range lexical {
		c := ensureCandidate(candidates, hit.Product.ID)
		if hit.Score > c.textScore {
			c.textScore = hit.Score
		}
		c.addSource("text")
		products[hit.Product.ID] = hit.Product
	}

	if m.vectors != nil && len(visual) > 0 {
		if err := m.addVisualCandidates(ctx, ownerID, visual, candidates, products); err != nil {
			m.log.Warn("visual search failed, continuing on lexical signal only",
				"detection", det.Name, "error", err)
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	slots := make([]types.SuggestionSlot, 0, len(candidates))
	for id, c := range candidates {
		product := products[id]
		if product == nil || strings.TrimSpace(product.ImageURL) == "" {
			continue
		}
		if !m.categories.Compatible(det.Name, product.Category) {
			continue
		}
		score := m.cfg.TextWeight*c.textScore + m.cfg.VisualWeight*c.visualScore
		if score < m.cfg.CombinedFloor {
			continue
		}
		slots = append(slots, types.SuggestionSlot{
			ProductID:   id,
			ProductName: product.Name,
			ImageURL:    product.ImageURL,
			Score:       score,
			Sources:     c.sources,
		})
	}

	// Product ID breaks score ties so the same inputs always rank the same.
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Score != slots[j].Score {
			return slots[i].Score > slots[j].Score
		}
		return slots[i].ProductID.String() < slots[j].ProductID.String()
	})
	if len(slots) > m.cfg.MaxSuggestions {
		slots = slots[:m.cfg.MaxSuggestions]
	}
	return slots, nil
}

func (m *matcherService) addVisualCandidates(ctx context.Context, ownerID uuid.UUID, visual []float32, candidates map[uuid.UUID]*fusedCandidate, products map[uuid.UUID]*types.Product) error {
	matches, err := m.vectors.QueryMatches(ctx, ownerID.String(), visual, m.cfg.VisualTopK)
	if err != nil {
		return err
	}

	var missing []uuid.UUID
	for _, match := range matches {
		productID, err := uuid.Parse(match.ID)
		if err != nil {
			m.log.Warn("skipping vector match with non-uuid id", "id", match.ID)
			continue
		}
		// Euclidean distance folds into (0,1]: identical vectors score 1.
		score := 1.0 / (1.0 + match.Distance)
		if score > 1.0 {
			score = 1.0
		}
		if score < m.cfg.VisualFloor {
			continue
		}
		c := ensureCandidate(candidates, productID)
		if score > c.visualScore {
			c.visualScore = score
		}
		c.addSource("visual")
		if products[productID] == nil {
			missing = append(missing, productID)
		}
	}

	if len(missing) > 0 {
		loaded, err := m.catalog.ProductsByID(ctx, missing)
		if err != nil {
			return fmt.Errorf("resolve visual matches: %w", err)
		}
		for id, p := range loaded {
			products[id] = p
		}
	}
	return nil
}

func ensureCandidate(candidates map[uuid.UUID]*fusedCandidate, id uuid.UUID) *fusedCandidate {
	c := candidates[id]
	if c == nil {
		c = &fusedCandidate{productID: id}
		candidates[id] = c
	}
	return c
}
