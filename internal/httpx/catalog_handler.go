package httpx

import (
	"context"
	"github.com/ariefcatur/woodchain/internal/catalog"
	"github.com/ariefcatur/woodchain/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
	"time"
)

// CatalogStore is implemented by *catalog.Repo.
type CatalogStore interface {
	ListSuppliers(ctx context.Context, q string) ([]catalog.Supplier, error)
	GetSupplier(ctx context.Context, supplierID int64) (catalog.Supplier, error)
	UpdateDescription(ctx context.Context, supplierID int64, description string) error
	ListProducts(ctx context.Context, supplierID int64, q string) ([]orders.Product, error)
	GetProduct(ctx context.Context, productID int64) (orders.Product, error)
	CreateProduct(ctx context.Context, supplierID int64, in catalog.ProductInput) (orders.Product, error)
	UpdateProduct(ctx context.Context, supplierID, productID int64, in catalog.ProductInput) error
	RetireProduct(ctx context.Context, supplierID, productID int64) error
}

type CatalogHandler struct {
	Catalog CatalogStore
	Log     *zap.Logger
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Get("/suppliers", h.listSuppliers)
	r.Get("/suppliers/{id}", h.getSupplier)
	r.Get("/suppliers/{id}/products", h.listSupplierProducts)
	r.Get("/products/{id}", h.getProduct)

	sup := r.With(requireSupplier)
	sup.Put("/supplier/description", h.updateDescription)
	sup.Get("/supplier/products", h.listOwnProducts)
	sup.Post("/supplier/products", h.createProduct)
	sup.Put("/supplier/products/{id}", h.updateProduct)
	sup.Delete("/supplier/products/{id}", h.retireProduct)
}

type productView struct {
	ProductID   int64  `json:"product_id"`
	SupplierID  int64  `json:"supplier_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Image       string `json:"image"`
	Active      bool   `json:"active"`
}

func toProductView(p orders.Product) productView {
	return productView{
		ProductID:   p.ProductID,
		SupplierID:  p.SupplierID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Image:       p.Image,
		Active:      p.Active,
	}
}

func toProductViews(ps []orders.Product) []productView {
	out := make([]productView, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProductView(p))
	}
	return out
}

func (h *CatalogHandler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ss, err := h.Catalog.ListSuppliers(ctx, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if ss == nil {
		ss = []catalog.Supplier{}
	}
	writeJSON(w, http.StatusOK, ss)
}

func (h *CatalogHandler) getSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid supplier id")
		return
	}
	s, err := h.Catalog.GetSupplier(r.Context(), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *CatalogHandler) listSupplierProducts(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid supplier id")
		return
	}
	h.writeProducts(w, r, id)
}

func (h *CatalogHandler) listOwnProducts(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	h.writeProducts(w, r, p.SupplierID)
}

func (h *CatalogHandler) writeProducts(w http.ResponseWriter, r *http.Request, supplierID int64) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.ListProducts(ctx, supplierID, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductViews(ps))
}

func (h *CatalogHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid product id")
		return
	}
	p, err := h.Catalog.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductView(p))
}

func (h *CatalogHandler) updateDescription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	p, _ := PrincipalFrom(r.Context())
	if err := h.Catalog.UpdateDescription(r.Context(), p.SupplierID, req.Description); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := decode(r, &in); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if _, err := in.Validate(); err != nil {
		badRequest(w, err.Error())
		return
	}
	p, _ := PrincipalFrom(r.Context())
	prod, err := h.Catalog.CreateProduct(r.Context(), p.SupplierID, in)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductView(prod))
}

func (h *CatalogHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid product id")
		return
	}
	var in catalog.ProductInput
	if err := decode(r, &in); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if _, err := in.Validate(); err != nil {
		badRequest(w, err.Error())
		return
	}
	p, _ := PrincipalFrom(r.Context())
	if err := h.Catalog.UpdateProduct(r.Context(), p.SupplierID, id, in); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// retireProduct hides the product from the catalog; past order lines keep their snapshot.
func (h *CatalogHandler) retireProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid product id")
		return
	}
	p, _ := PrincipalFrom(r.Context())
	if err := h.Catalog.RetireProduct(r.Context(), p.SupplierID, id); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
