package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xenking/storefront-api/internal/domain/product"
)

type variantResponse struct {
	ID         string            `json:"id"`
	SKU        string            `json:"sku"`
	Price      *float64          `json:"price,omitempty"`
	Stock      int               `json:"stock"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type productResponse struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Price    float64           `json:"price"`
	Category string            `json:"category,omitempty"`
	Active   bool              `json:"active"`
	Stock    int               `json:"stock"`
	Variants []variantResponse `json:"variants,omitempty"`
}

func toProductResponse(p product.Product) productResponse {
	resp := productResponse{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price.InexactFloat64(),
		Category: p.Category,
		Active:   p.Active,
		Stock:    p.Stock,
	}
	for _, v := range p.Variants {
		vr := variantResponse{
			ID:         v.ID,
			SKU:        v.SKU,
			Stock:      v.Stock,
			Attributes: v.Attributes,
		}
		if v.Price != nil {
			price := v.Price.InexactFloat64()
			vr.Price = &price
		}
		resp.Variants = append(resp.Variants, vr)
	}
	return resp
}

// listProducts handles GET /api/products.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// getProduct handles GET /api/products/{id}.
func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}
