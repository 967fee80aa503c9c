package shipment

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/noah-isme/backend-erp/internal/common"
)

// Handler exposes shipment creation, metadata edits, deletion and the
// schedule range query.
type Handler struct {
	Svc         *Service
	Development bool
}

type itemDTO struct {
	OrderItemID string `json:"orderItemId" validate:"required,uuid4"`
	Qty         int    `json:"qty" validate:"required,gt=0"`
}

type createRequest struct {
	Items         []itemDTO `json:"items" validate:"required,min=1,dive"`
	ScheduledDate string    `json:"scheduledDate"`
	Method        string    `json:"method"`
	Carrier       string    `json:"carrier"`
	Tracking      string    `json:"tracking"`
}

type updateRequest struct {
	ScheduledDate *string `json:"scheduledDate"`
	Method        *string `json:"method"`
	Carrier       *string `json:"carrier"`
	Tracking      *string `json:"tracking"`
	Status        *string `json:"status"`
}

// Create registers a new (possibly partial) shipment for an order.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid order id", nil)
		return
	}
	var req createRequest
	if err := common.DecodeAndValidate(r, &req); err != nil {
		common.RenderError(w, err, h.Development)
		return
	}
	in := CreateInput{
		ScheduledDate: req.ScheduledDate,
		Method:        req.Method,
		Carrier:       req.Carrier,
		Tracking:      req.Tracking,
	}
	for _, item := range req.Items {
		itemID, err := uuid.Parse(item.OrderItemID)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid order item id: "+item.OrderItemID, nil)
			return
		}
		in.Items = append(in.Items, ItemInput{OrderItemID: itemID, Qty: item.Qty})
	}
	created, err := h.Svc.Create(r.Context(), orderID, in)
	if err != nil {
		common.RenderError(w, err, h.Development)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": shipmentResponse(created)})
}

// Update edits shipment metadata or advances its status.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	orderID, shipmentID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := common.DecodeAndValidate(r, &req); err != nil {
		common.RenderError(w, err, h.Development)
		return
	}
	in := UpdateInput{
		ScheduledDate: req.ScheduledDate,
		Method:        req.Method,
		Carrier:       req.Carrier,
		Tracking:      req.Tracking,
	}
	if req.Status != nil {
		status, err := ParseStatus(*req.Status)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
			return
		}
		in.Status = &status
	}
	updated, err := h.Svc.Update(r.Context(), orderID, shipmentID, in)
	if err != nil {
		common.RenderError(w, err, h.Development)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": shipmentResponse(updated)})
}

// Delete removes a not-yet-shipped shipment.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	orderID, shipmentID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Delete(r.Context(), orderID, shipmentID); err != nil {
		common.RenderError(w, err, h.Development)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Available renders remaining-to-ship quantities per order line.
func (h *Handler) Available(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid order id", nil)
		return
	}
	available, err := h.Svc.Available(r.Context(), orderID)
	if err != nil {
		common.RenderError(w, err, h.Development)
		return
	}
	data := make(map[string]int, len(available))
	for itemID, qty := range available {
		data[itemID.String()] = qty
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": data})
}

// Schedule lists shipments in a scheduled-date range, optionally scoped to a
// location.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if start == "" || end == "" {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "start and end are required", nil)
		return
	}
	var locationID *uuid.UUID
	if raw := r.URL.Query().Get("locationId"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid location id", nil)
			return
		}
		locationID = &parsed
	}
	shipments, err := h.Svc.QueryRange(r.Context(), start, end, locationID)
	if err != nil {
		common.RenderError(w, err, h.Development)
		return
	}

	page, perPage := common.ParsePagination(r, 50)
	total := len(shipments)
	low := (page - 1) * perPage
	if low > total {
		low = total
	}
	high := low + perPage
	if high > total {
		high = total
	}

	data := lo.Map(shipments[low:high], func(sh Shipment, _ int) map[string]any {
		return shipmentResponse(sh)
	})
	common.JSON(w, http.StatusOK, map[string]any{
		"data": data,
		"meta": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

func (h *Handler) pathIDs(w http.ResponseWriter, r *http.Request) (orderID, shipmentID uuid.UUID, ok bool) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid order id", nil)
		return uuid.Nil, uuid.Nil, false
	}
	shipmentID, err = uuid.Parse(chi.URLParam(r, "shipmentId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid shipment id", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return orderID, shipmentID, true
}

func shipmentResponse(sh Shipment) map[string]any {
	items := lo.Map(sh.Items, func(it Item, _ int) map[string]any {
		return map[string]any{
			"id":          it.ID,
			"orderItemId": it.OrderItemID,
			"qty":         it.Qty,
		}
	})
	return map[string]any{
		"id":          sh.ID,
		"orderId":     sh.OrderID,
		"status":      sh.Status,
		"scheduledAt": sh.ScheduledAt,
		"method":      sh.Method,
		"carrier":     sh.Carrier,
		"tracking":    sh.Tracking,
		"items":       items,
	}
}
