package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/casaviva/decora-backend/internal/logger"
	"github.com/casaviva/decora-backend/internal/types"
)

// RankedProduct is a product plus the raw FTS relevance figure from
// ts_rank; normalization happens in the catalog service.
type RankedProduct struct {
	Product   *types.Product
	Relevance float64
}

type ProductRepo interface {
	Create(ctx context.Context, tx *gorm.DB, products []*types.Product) ([]*types.Product, error)
	GetByID(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*types.Product, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, productIDs []uuid.UUID) ([]*types.Product, error)
	ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, limit, offset int) ([]*types.Product, error)
	ListWithoutEmbedding(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, limit int) ([]*types.Product, error)
	MarkEmbedded(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error
	SearchText(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, query string, limit int) ([]RankedProduct, error)
}

type productRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProductRepo(db *gorm.DB, baseLog *logger.Logger) ProductRepo {
	return &productRepo{db: db, log: baseLog.With("repo", "ProductRepo")}
}

func (pr *productRepo) Create(ctx context.Context, tx *gorm.DB, products []*types.Product) ([]*types.Product, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	if len(products) == 0 {
		return []*types.Product{}, nil
	}
	for _, p := range products {
		if p.SearchText == "" {
			p.SearchText = p.BuildSearchText()
		}
	}
	if err := transaction.WithContext(ctx).Create(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (pr *productRepo) GetByID(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*types.Product, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	var product types.Product
	if err := transaction.WithContext(ctx).
		Where("id = ?", productID).
		First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (pr *productRepo) GetByIDs(ctx context.Context, tx *gorm.DB, productIDs []uuid.UUID) ([]*types.Product, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	var results []*types.Product
	if len(productIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", productIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (pr *productRepo) ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, limit, offset int) ([]*types.Product, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	if limit <= 0 {
		limit = 50
	}
	var results []*types.Product
	if err := transaction.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (pr *productRepo) ListWithoutEmbedding(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, limit int) ([]*types.Product, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	if limit <= 0 {
		limit = 100
	}
	var results []*types.Product
	if err := transaction.WithContext(ctx).
		Where("owner_id = ? AND has_embedding = false AND image_url <> ''", ownerID).
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (pr *productRepo) MarkEmbedded(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Product{}).
		Where("id = ?", productID).
		Update("has_embedding", true).Error
}

// SearchText runs the postgres FTS ranking query over the maintained
// search_vector column. Relevance is the raw ts_rank figure.
func (pr *productRepo) SearchText(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, query string, limit int) ([]RankedProduct, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	if limit <= 0 {
		limit = 20
	}

	type row struct {
		types.Product
		Relevance float64 `gorm:"column:relevance"`
	}
	var rows []row
	if err := transaction.WithContext(ctx).Raw(`
		SELECT p.*, ts_rank(p.search_vector, plainto_tsquery('portuguese', ?)) AS relevance
		FROM "product" p
		WHERE p.owner_id = ?
		  AND p.search_vector @@ plainto_tsquery('portuguese', ?)
		ORDER BY relevance DESC
		LIMIT ?
	`, query, ownerID, query, limit).Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]RankedProduct, 0, len(rows))
	for i := range rows {
		product := rows[i].Product
		out = append(out, RankedProduct{Product: &product, Relevance: rows[i].Relevance})
	}
	return out, nil
}
