package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/casaviva/decora-backend/internal/clients/pinecone"
	"github.com/casaviva/decora-backend/internal/logger"
	"github.com/casaviva/decora-backend/internal/repos"
	"github.com/casaviva/decora-backend/internal/utils"
)

// CatalogIngestService backfills visual embeddings for catalog products
// and keeps the vector index in sync. This is the only place in the system
// with parallel fan-out; the interactive pipelines stay sequential.
type CatalogIngestService interface {
	BackfillEmbeddings(ctx context.Context, ownerID uuid.UUID) (int, error)
}

type catalogIngestService struct {
	log      *logger.Logger
	products repos.ProductRepo
	embedder EmbeddingClient
	fetcher  ImageFetcher
	vectors  pinecone.VectorStore
	workers  int
	batch    int
}

func NewCatalogIngestService(log *logger.Logger, products repos.ProductRepo, embedder EmbeddingClient, fetcher ImageFetcher, vectors pinecone.VectorStore) CatalogIngestService {
	return &catalogIngestService{
		log:      log.With("service", "CatalogIngestService"),
		products: products,
		embedder: embedder,
		fetcher:  fetcher,
		vectors:  vectors,
		workers:  utils.GetEnvAsInt("INGEST_WORKERS", 4, log),
		batch:    utils.GetEnvAsInt("INGEST_BATCH_SIZE", 100, log),
	}
}

// BackfillEmbeddings embeds every product of the owner that has an image
// but no vector yet. Per-product failures are logged and skipped; the
// return value counts products successfully indexed.
func (s *catalogIngestService) BackfillEmbeddings(ctx context.Context, ownerID uuid.UUID) (int, error) {
	if s.vectors == nil {
		return 0, fmt.Errorf("vector store unavailable")
	}

	pending, err := s.products.ListWithoutEmbedding(ctx, nil, ownerID, s.batch)
	if err != nil {
		return 0, fmt.Errorf("list products without embedding: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	var mu sync.Mutex
	var vectors []pinecone.Vector
	var done []uuid.UUID

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, product := range pending {
		product := product
		g.Go(func() error {
			raw, err := s.fetcher.FetchBytes(gctx, product.ImageURL)
			if err != nil {
				s.log.Warn("skipping product, image unreadable",
					"product_id", product.ID, "error", err)
				return nil
			}
			vec, err := s.embedder.EmbedImage(gctx, raw)
			if err != nil {
				s.log.Warn("skipping product, embedding failed",
					"product_id", product.ID, "error", err)
				return nil
			}
			mu.Lock()
			vectors = append(vectors, pinecone.Vector{
				ID:     product.ID.String(),
				Values: vec,
				Metadata: map[string]any{
					"name":     product.Name,
					"category": product.Category,
				},
			})
			done = append(done, product.ID)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if len(vectors) == 0 {
		return 0, nil
	}

	if err := s.vectors.Upsert(ctx, ownerID.String(), vectors); err != nil {
		return 0, fmt.Errorf("upsert vectors: %w", err)
	}
	for _, id := range done {
		if err := s.products.MarkEmbedded(ctx, nil, id); err != nil {
			s.log.Warn("failed to mark product embedded", "product_id", id, "error", err)
		}
	}
	s.log.Info("embedding backfill batch complete", "owner_id", ownerID, "indexed", len(done))
	return len(done), nil
}
