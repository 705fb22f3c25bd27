package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/jeobran69367/Mspr4-produits/internal/domain"
	"github.com/jeobran69367/Mspr4-produits/internal/domain/product"
	"github.com/jeobran69367/Mspr4-produits/internal/usecase"
)

type Handlers struct {
	categories *usecase.Categories
	products   *usecase.Products
	stocks     *usecase.Stocks
}

func NewHandlers(categories *usecase.Categories, products *usecase.Products, stocks *usecase.Stocks) *Handlers {
	return &Handlers{
		categories: categories,
		products:   products,
		stocks:     stocks,
	}
}

func decode(r *http.Request, dst validation.Validatable) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.NewValidation("invalid request body: %v", err)
	}
	return dst.Validate()
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.NewValidation("invalid %s", name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, domain.NewValidation("%s must be a non-negative integer", name)
	}
	return v, nil
}

func paging(r *http.Request) (int, int, error) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		return 0, 0, err
	}
	limit, err := queryInt(r, "limit", usecase.DefaultLimit)
	if err != nil {
		return 0, 0, err
	}
	return skip, limit, nil
}

// Categories

func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := paging(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := h.categories.List(r.Context(), skip, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handlers) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.categories.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.categories.Create(r.Context(), req.params())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handlers) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateCategoryRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.categories.Update(r.Context(), id, req.patch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.categories.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Products

func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := paging(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := product.Filter{
		Status: product.Status(q.Get("status")),
		Search: q.Get("search"),
		Skip:   skip,
		Limit:  limit,
	}
	if err := validation.Validate(f.Status, validation.In(product.Statuses...)); err != nil {
		writeError(w, r, domain.NewValidation("status: %v", err))
		return
	}
	if raw := q.Get("category_id"); raw != "" {
		if f.CategoryID, err = uuid.Parse(raw); err != nil {
			writeError(w, r, domain.NewValidation("invalid category_id"))
			return
		}
	}

	items, err := h.products.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.products.Create(r.Context(), req.params())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateProductRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.products.Update(r.Context(), id, req.patch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.products.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stock

func (h *Handlers) ListStock(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := paging(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := h.stocks.List(r.Context(), skip, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handlers) StockAlerts(w http.ResponseWriter, r *http.Request) {
	items, err := h.stocks.Alerts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handlers) GetStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.stocks.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) GetStockByProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "product_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.stocks.GetByProduct(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) CreateStock(w http.ResponseWriter, r *http.Request) {
	var req createStockRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.stocks.Create(r.Context(), req.params())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *Handlers) UpdateStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateStockRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.stocks.Update(r.Context(), id, req.patch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) DeleteStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.stocks.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "product_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req adjustStockRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.stocks.Adjust(r.Context(), id, *req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
