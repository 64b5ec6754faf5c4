package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/casaviva/decora-backend/internal/repos"
	"github.com/casaviva/decora-backend/internal/requestdata"
	"github.com/casaviva/decora-backend/internal/services"
	"github.com/casaviva/decora-backend/internal/types"
)

type ProductHandler struct {
	products repos.ProductRepo
	ingest   services.CatalogIngestService
}

func NewProductHandler(products repos.ProductRepo, ingest services.CatalogIngestService) *ProductHandler {
	return &ProductHandler{products: products, ingest: ingest}
}

func (ph *ProductHandler) Create(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("no authenticated user"))
		return
	}
	var req []struct {
		Name        string `json:"name"`
		Category    string `json:"category"`
		Description string `json:"description"`
		ImageURL    string `json:"image_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	products := make([]*types.Product, 0, len(req))
	for _, p := range req {
		if p.Name == "" {
			RespondError(c, http.StatusBadRequest, "invalid_product", fmt.Errorf("product name required"))
			return
		}
		products = append(products, &types.Product{
			OwnerID:     rd.UserID,
			Name:        p.Name,
			Category:    p.Category,
			Description: p.Description,
			ImageURL:    p.ImageURL,
		})
	}
	created, err := ph.products.Create(c.Request.Context(), nil, products)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "create_failed", err)
		return
	}
	RespondOK(c, gin.H{"products": created})
}

func (ph *ProductHandler) List(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("no authenticated user"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	products, err := ph.products.ListByOwner(c.Request.Context(), nil, rd.UserID, limit, offset)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"products": products})
}

func (ph *ProductHandler) Get(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("no authenticated user"))
		return
	}
	productID, err := uuid.Parse(c.Param("productID"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_product_id", err)
		return
	}
	product, err := ph.products.GetByID(c.Request.Context(), nil, productID)
	if err != nil || product.OwnerID != rd.UserID {
		RespondError(c, http.StatusNotFound, "product_not_found", fmt.Errorf("product not found"))
		return
	}
	RespondOK(c, gin.H{"product": product})
}

// BackfillEmbeddings embeds one batch of the caller's unindexed products.
// Intended to be called repeatedly until it reports zero indexed.
func (ph *ProductHandler) BackfillEmbeddings(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("no authenticated user"))
		return
	}
	indexed, err := ph.ingest.BackfillEmbeddings(c.Request.Context(), rd.UserID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "backfill_failed", err)
		return
	}
	RespondOK(c, gin.H{"indexed": indexed})
}
