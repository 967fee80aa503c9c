package quote

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-erp/internal/common"
	"github.com/noah-isme/backend-erp/internal/money"
)

// Handler exposes quote creation and reads.
type Handler struct {
	Svc         *Service
	Development bool
}

type itemDTO struct {
	ProductID string `json:"productId" validate:"required,uuid4"`
	Qty       int    `json:"qty" validate:"required,gt=0"`
}

type createRequest struct {
	CustomerID      string       `json:"customerId" validate:"required,uuid4"`
	LocationID      string       `json:"locationId" validate:"required,uuid4"`
	Items           []itemDTO    `json:"items" validate:"required,min=1,dive"`
	DeliveryAddress *string      `json:"deliveryAddress"`
	Discount        *money.Money `json:"discount"`
	TaxExempt       bool         `json:"taxExempt"`
}

// Create issues a new priced quote.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := common.DecodeAndValidate(r, &req); err != nil {
		common.RenderError(w, err, h.Development)
		return
	}
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid customer id", nil)
		return
	}
	locationID, err := uuid.Parse(req.LocationID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid location id", nil)
		return
	}

	in := CreateInput{
		CustomerID:      customerID,
		LocationID:      locationID,
		DeliveryAddress: req.DeliveryAddress,
		TaxExempt:       req.TaxExempt,
		OrderDiscount:   money.Zero(),
	}
	if req.Discount != nil {
		in.OrderDiscount = *req.Discount
	}
	for _, item := range req.Items {
		pid, err := uuid.Parse(item.ProductID)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid product id: "+item.ProductID, nil)
			return
		}
		in.Items = append(in.Items, ItemSpec{ProductID: pid, Qty: item.Qty})
	}

	created, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		common.RenderError(w, err, h.Development)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": quoteResponse(created)})
}

// Get returns a quote with items and derived totals.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "quoteId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid quote id", nil)
		return
	}
	q, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		common.RenderError(w, err, h.Development)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quoteResponse(q)})
}

func quoteResponse(q Quote) map[string]any {
	items := make([]map[string]any, 0, len(q.Items))
	for _, it := range q.Items {
		items = append(items, map[string]any{
			"id":        it.ID,
			"productId": it.ProductID,
			"qty":       it.Qty,
			"unitPrice": it.UnitPrice,
			"discount":  it.Discount,
		})
	}
	return map[string]any{
		"id":              q.ID,
		"number":          q.Number,
		"subtotal":        q.Subtotal,
		"discount":        q.Discount,
		"tax":             q.Tax,
		"deliveryFee":     q.DeliveryFee,
		"total":           q.Total,
		"deliveryAddress": q.DeliveryAddress,
		"items":           items,
		"expiresAt":       q.ExpiresAt,
	}
}
