package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vibek01/ECOM-D1/internal/platform/auth"
	"github.com/vibek01/ECOM-D1/internal/platform/httpx"
	"github.com/vibek01/ECOM-D1/internal/platform/requestctx"
	"github.com/vibek01/ECOM-D1/internal/services"
)

// ProductHandlers serves product reads and the admin catalog mutations that seed variant stock.
type ProductHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewProductHandlers constructs the product handlers.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{authn: authn, catalog: catalog}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{productID}", h.getProduct)

	r.Group(func(admin chi.Router) {
		if h.authn != nil {
			admin.Use(h.authn.RequireAuth(auth.RoleAdmin))
		}
		admin.Post("/", h.createProduct)
		admin.Put("/{productID}", h.updateProduct)
		admin.Delete("/{productID}", h.deleteProduct)
	})
}

type upsertProductRequest struct {
	Name        string                 `json:"name"`
	Brand       string                 `json:"brand"`
	Description string                 `json:"description"`
	Price       *decimal.Decimal       `json:"price"`
	Variants    []productVariantRecord `json:"variants"`
}

type productVariantRecord struct {
	ID    string `json:"id,omitempty"`
	Size  string `json:"size"`
	Color string `json:"color"`
	Stock int    `json:"stock"`
	Image string `json:"image"`
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productPayload struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Brand       string                 `json:"brand"`
	Description string                 `json:"description"`
	Price       json.Number            `json:"price"`
	Variants    []productVariantRecord `json:"variants"`
	CreatedAt   string                 `json:"createdAt"`
	UpdatedAt   string                 `json:"updatedAt,omitempty"`
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	h.upsert(w, r, "", http.StatusCreated)
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}
	h.upsert(w, r, productID, http.StatusOK)
}

func (h *ProductHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}
	if err := h.catalog.DeleteProduct(ctx, productID); err != nil {
		writeProductError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandlers) upsert(w http.ResponseWriter, r *http.Request, productID string, status int) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req upsertProductRequest
	if err := decodeJSONBody(r, maxBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.UpsertProductCommand{
		ProductID:   productID,
		Name:        req.Name,
		Brand:       req.Brand,
		Description: req.Description,
		Price:       req.Price,
		Variants:    make([]services.ProductVariant, 0, len(req.Variants)),
	}
	for _, variant := range req.Variants {
		cmd.Variants = append(cmd.Variants, services.ProductVariant{
			ID:       variant.ID,
			Size:     variant.Size,
			Color:    variant.Color,
			Stock:    variant.Stock,
			ImageURL: variant.Image,
		})
	}

	var (
		product services.Product
		err     error
	)
	if productID == "" {
		product, err = h.catalog.CreateProduct(ctx, cmd)
	} else {
		product, err = h.catalog.UpdateProduct(ctx, cmd)
	}
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, status, productResponse{Product: buildProductPayload(product)})
}

func buildProductPayload(product services.Product) productPayload {
	payload := productPayload{
		ID:          product.ID,
		Name:        product.Name,
		Brand:       product.Brand,
		Description: product.Description,
		Price:       amount(product.Price),
		Variants:    make([]productVariantRecord, 0, len(product.Variants)),
		CreatedAt:   formatTime(product.CreatedAt),
		UpdatedAt:   formatTime(product.UpdatedAt),
	}
	for _, variant := range product.Variants {
		payload.Variants = append(payload.Variants, productVariantRecord{
			ID:    variant.ID,
			Size:  variant.Size,
			Color: variant.Color,
			Stock: variant.Stock,
			Image: variant.ImageURL,
		})
	}
	return payload
}

func writeProductError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrProductInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductConflict):
		httpx.WriteError(ctx, w, httpx.NewError("product_conflict", "product was modified concurrently", http.StatusConflict))
	case errors.Is(err, services.ErrProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog store unavailable", http.StatusServiceUnavailable))
	default:
		requestctx.Logger(ctx).Error("product request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process product request", http.StatusInternalServerError))
	}
}
