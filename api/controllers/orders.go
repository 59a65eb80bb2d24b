package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/access"
	"github.com/angelmondragon/storefront-backend/internal/addresses"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultRecentOrders = 10

// createOrderRequest takes each address inline or as a saved address id; the id wins.
type createOrderRequest struct {
	ShippingAddress   *orders.AddressInput `json:"shipping_address,omitempty" validate:"required_without=ShippingAddressID"`
	ShippingAddressID *uuid.UUID           `json:"shipping_address_id,omitempty"`
	BillingAddress    *orders.AddressInput `json:"billing_address,omitempty"`
	BillingAddressID  *uuid.UUID           `json:"billing_address_id,omitempty"`
	CouponCode        string               `json:"coupon_code,omitempty" validate:"max=50"`
	Notes             *string              `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type orderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type trackingRequest struct {
	TrackingNumber string `json:"tracking_number" validate:"required,max=100"`
}

type estimatedDeliveryRequest struct {
	EstimatedDelivery time.Time `json:"estimated_delivery" validate:"required"`
}

type paymentStatusRequest struct {
	PaymentStatus string `json:"payment_status" validate:"required"`
}

// OrderCreate checks out the caller's cart. Saved addresses are resolved
// through book and copied onto the order.
func OrderCreate(svc orders.Service, book addresses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "order")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}

		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shipping, err := resolveAddress(r.Context(), book, caller, body.ShippingAddressID, body.ShippingAddress)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		billing, err := resolveAddress(r.Context(), book, caller, body.BillingAddressID, body.BillingAddress)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CreateFromCart(r.Context(), caller, caller.UserID, orders.CreateOrderInput{
			ShippingAddress: *shipping,
			BillingAddress:  billing,
			CouponCode:      body.CouponCode,
			Notes:           body.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, http.StatusCreated, "Order created successfully", order)
	}
}

// resolveAddress returns inline unless id names a saved address. Both nil yields nil.
func resolveAddress(ctx context.Context, book addresses.Service, caller access.Caller, id *uuid.UUID, inline *orders.AddressInput) (*orders.AddressInput, error) {
	if id == nil {
		return inline, nil
	}
	if book == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "address service unavailable")
	}
	snap, err := book.Snapshot(ctx, caller, *id)
	if err != nil {
		return nil, err
	}
	return &orders.AddressInput{
		FullName:    snap.FullName,
		Street:      snap.Street,
		Apartment:   snap.Apartment,
		City:        snap.City,
		State:       snap.State,
		ZipCode:     snap.ZipCode,
		Country:     snap.Country,
		PhoneNumber: snap.PhoneNumber,
	}, nil
}

// OrderListMine pages through the caller's own orders.
func OrderListMine(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "order")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListForUser(r.Context(), caller, caller.UserID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func OrderGet(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "order")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		orderID, ok := pathUUID(w, r, logg, "orderId", "orderId")
		if !ok {
			return
		}
		order, err := svc.Get(r.Context(), caller, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func OrderGetByNumber(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "order")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		number := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
		if number == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order number is required"))
			return
		}
		order, err := svc.GetByNumber(r.Context(), caller, number)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// OrderCancel is available to the owner and to admins.
func OrderCancel(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "order")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		orderID, ok := pathUUID(w, r, logg, "orderId", "orderId")
		if !ok {
			return
		}

		var body cancelOrderRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := svc.Cancel(r.Context(), caller, orderID, body.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, http.StatusOK, "Order cancelled", order)
	}
}

// AdminOrderList filters by userId and status.
func AdminOrderList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "order")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := validators.ParseQueryUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := optionalEnum(r, "status", enums.ParseOrderStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), caller, orders.ListFilters{UserID: userID, Status: status}, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func AdminOrderUpdateStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "order")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		orderID, ok := pathUUID(w, r, logg, "orderId", "orderId")
		if !ok {
			return
		}

		var body orderStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(strings.ToUpper(strings.TrimSpace(body.Status)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}

		order, err := svc.UpdateStatus(r.Context(), caller, orderID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func AdminOrderTracking(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "order")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		orderID, ok := pathUUID(w, r, logg, "orderId", "orderId")
		if !ok {
			return
		}

		var body trackingRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.SetTrackingNumber(r.Context(), caller, orderID, strings.TrimSpace(body.TrackingNumber))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func AdminOrderEstimatedDelivery(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "order")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		orderID, ok := pathUUID(w, r, logg, "orderId", "orderId")
		if !ok {
			return
		}

		var body estimatedDeliveryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.SetEstimatedDelivery(r.Context(), caller, orderID, body.EstimatedDelivery)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// AdminOrderPaymentStatus overrides the mirrored payment status.
func AdminOrderPaymentStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "order")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		orderID, ok := pathUUID(w, r, logg, "orderId", "orderId")
		if !ok {
			return
		}

		var body paymentStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParsePaymentStatus(strings.ToUpper(strings.TrimSpace(body.PaymentStatus)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment status"))
			return
		}

		order, err := svc.UpdatePaymentStatus(r.Context(), caller, orderID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func AdminOrderStats(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "order")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		stats, err := svc.Stats(r.Context(), caller)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// AdminOrderRevenue sums order totals created in [from, to].
func AdminOrderRevenue(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "order")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		from, to, err := parseRange(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		revenue, err := svc.RevenueBetween(r.Context(), caller, from, to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"from": from, "to": to, "revenue": revenue})
	}
}

func AdminOrderRecent(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "order")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultRecentOrders, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := svc.Recent(r.Context(), caller, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// parseRange rejects an inverted window.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	from, err := validators.ParseQueryTime(r, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := validators.ParseQueryTime(r, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "to must not be before from")
	}
	return from, to, nil
}
