package order

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-erp/internal/common"
	"github.com/noah-isme/backend-erp/internal/money"
)

// Handler exposes order reads and the OCC-guarded edit endpoint.
type Handler struct {
	Svc         *Service
	Development bool
}

type updateItemDTO struct {
	ProductID string `json:"productId" validate:"required,uuid4"`
	// Qty of zero removes an existing line, so it carries no validation tag;
	// the service distinguishes removal from an invalid new line.
	Qty int `json:"qty"`
}

type updateRequest struct {
	ExpectedVersion *int64          `json:"expectedVersion"`
	Items           []updateItemDTO `json:"items" validate:"required,min=1,dive"`
	DeliveryAddress *string         `json:"deliveryAddress"`
	Discount        *money.Money    `json:"discount"`
}

// Get returns an order with items and derived totals.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid order id", nil)
		return
	}
	o, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		common.RenderError(w, err, h.Development)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": orderResponse(o)})
}

// Update applies a full-item-set edit guarded by the expected version.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid order id", nil)
		return
	}
	var req updateRequest
	if err := common.DecodeAndValidate(r, &req); err != nil {
		common.RenderError(w, err, h.Development)
		return
	}

	in := UpdateInput{
		ExpectedVersion: req.ExpectedVersion,
		DeliveryAddress: req.DeliveryAddress,
		OrderDiscount:   req.Discount,
	}
	for _, item := range req.Items {
		pid, err := uuid.Parse(item.ProductID)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid product id: "+item.ProductID, nil)
			return
		}
		in.Items = append(in.Items, ItemSpec{ProductID: pid, Qty: item.Qty})
	}

	updated, err := h.Svc.Update(r.Context(), id, in)
	if err != nil {
		common.RenderError(w, err, h.Development)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": orderResponse(updated)})
}

func orderResponse(o Order) map[string]any {
	items := make([]map[string]any, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, map[string]any{
			"id":        it.ID,
			"productId": it.ProductID,
			"qty":       it.Qty,
			"unitPrice": it.UnitPrice,
			"discount":  it.Discount,
		})
	}
	return map[string]any{
		"id":              o.ID,
		"number":          o.Number,
		"status":          o.Status,
		"version":         o.Version,
		"subtotal":        o.Subtotal,
		"discount":        o.Discount,
		"tax":             o.Tax,
		"deliveryFee":     o.DeliveryFee,
		"total":           o.Total,
		"deliveryAddress": o.DeliveryAddress,
		"items":           items,
		"updatedAt":       o.UpdatedAt,
	}
}
