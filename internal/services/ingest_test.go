package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/casaviva/decora-backend/internal/types"
)

func TestBackfillEmbeddingsIndexesPendingProducts(t *testing.T) {
	ownerID := uuid.New()
	a := mkProduct("Sofa Oslo", "sofa", "https://cdn.test/a.png")
	b := mkProduct("Mesa Alta", "mesa", "https://cdn.test/b.png")
	repo := &fakeProductRepo{pending: []*types.Product{a, b}}
	fetch := &fakeFetcher{bytes: map[string][]byte{
		"https://cdn.test/a.png": []byte("a"),
		"https://cdn.test/b.png": []byte("b"),
	}}
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2}}
	vectors := &fakeVectorStore{}

	svc := NewCatalogIngestService(testLogger(t), repo, embedder, fetch, vectors)
	indexed, err := svc.BackfillEmbeddings(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("BackfillEmbeddings: %v", err)
	}
	if indexed != 2 {
		t.Fatalf("indexed: want=2 got=%d", indexed)
	}
	if got := len(vectors.upserts[ownerID.String()]); got != 2 {
		t.Fatalf("upserted vectors: want=2 got=%d", got)
	}
	if len(repo.marked) != 2 {
		t.Fatalf("marked products: want=2 got=%d", len(repo.marked))
	}
	for _, vec := range vectors.upserts[ownerID.String()] {
		if vec.Metadata["name"] == "" || vec.Metadata["category"] == "" {
			t.Fatalf("vector missing metadata: %+v", vec)
		}
	}
}

func TestBackfillEmbeddingsSkipsUnreadableImages(t *testing.T) {
	ownerID := uuid.New()
	good := mkProduct("Sofa Oslo", "sofa", "https://cdn.test/good.png")
	broken := mkProduct("Sofa Quebrado", "sofa", "https://cdn.test/broken.png")
	repo := &fakeProductRepo{pending: []*types.Product{good, broken}}
	fetch := &fakeFetcher{bytes: map[string][]byte{
		"https://cdn.test/good.png": []byte("g"),
	}}
	vectors := &fakeVectorStore{}

	svc := NewCatalogIngestService(testLogger(t), repo, &fakeEmbedder{vec: []float32{0.1}}, fetch, vectors)
	indexed, err := svc.BackfillEmbeddings(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("BackfillEmbeddings: %v", err)
	}
	if indexed != 1 {
		t.Fatalf("indexed: want=1 got=%d", indexed)
	}
	if len(repo.marked) != 1 || repo.marked[0] != good.ID {
		t.Fatalf("only the readable product should be marked: %v", repo.marked)
	}
}

func TestBackfillEmbeddingsNoVectorStore(t *testing.T) {
	svc := NewCatalogIngestService(testLogger(t), &fakeProductRepo{}, &fakeEmbedder{}, &fakeFetcher{}, nil)
	if _, err := svc.BackfillEmbeddings(context.Background(), uuid.New()); err == nil {
		t.Fatalf("expected error without a vector store")
	}
}

func TestBackfillEmbeddingsNothingPending(t *testing.T) {
	vectors := &fakeVectorStore{}
	svc := NewCatalogIngestService(testLogger(t), &fakeProductRepo{}, &fakeEmbedder{}, &fakeFetcher{}, vectors)
	indexed, err := svc.BackfillEmbeddings(context.Background(), uuid.New())
	if err != nil || indexed != 0 {
		t.Fatalf("empty backlog: indexed=%d err=%v", indexed, err)
	}
	if len(vectors.upserts) != 0 {
		t.Fatalf("unexpected upserts: %+v", vectors.upserts)
	}
}
