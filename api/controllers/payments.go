package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type createPaymentRequest struct {
	OrderID  uuid.UUID `json:"order_id" validate:"required"`
	Method   string    `json:"method" validate:"required"`
	Currency string    `json:"currency,omitempty" validate:"omitempty,len=3"`
}

type refundPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"required,max=500"`
}

type cancelPaymentRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// PaymentCreate opens a PENDING payment for an order.
func PaymentCreate(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "payment")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}

		var body createPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(strings.ToUpper(strings.TrimSpace(body.Method)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		payment, err := svc.Create(r.Context(), caller, body.OrderID, method, body.Currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, http.StatusCreated, "Payment created", payment)
	}
}

// PaymentProcess charges the gateway. A declined charge is still a 200 with status FAILED.
func PaymentProcess(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "payment")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		reference, ok := pathReference(w, r, logg)
		if !ok {
			return
		}

		var creds payments.Credentials
		if err := validators.DecodeJSONBody(r, &creds); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Process(r.Context(), caller, reference, creds)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

func PaymentGet(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "payment")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		reference, ok := pathReference(w, r, logg)
		if !ok {
			return
		}
		payment, err := svc.Get(r.Context(), caller, reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

func PaymentGetByOrder(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "payment")
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
		payment, err := svc.GetByOrder(r.Context(), caller, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

// PaymentList is scoped to the caller unless an admin asks.
func PaymentList(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "payment")
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
		filters, err := parsePaymentFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), caller, filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func PaymentCancel(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "payment")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		reference, ok := pathReference(w, r, logg)
		if !ok {
			return
		}

		var body cancelPaymentRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		payment, err := svc.Cancel(r.Context(), caller, reference, body.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, http.StatusOK, "Payment cancelled", payment)
	}
}

func AdminPaymentRefund(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "payment")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		reference, ok := pathReference(w, r, logg)
		if !ok {
			return
		}

		var body refundPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Refund(r.Context(), caller, reference, body.Amount, body.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, http.StatusOK, "Payment refunded", payment)
	}
}

func AdminPaymentStats(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "payment")
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

// AdminPaymentRevenue sums completed payment amounts in [from, to].
func AdminPaymentRevenue(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "payment")
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

func pathReference(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (string, bool) {
	reference := strings.TrimSpace(chi.URLParam(r, "reference"))
	if reference == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required"))
		return "", false
	}
	return reference, true
}

func parsePaymentFilters(r *http.Request) (payments.ListFilters, error) {
	userID, err := validators.ParseQueryUUID(r, "userId")
	if err != nil {
		return payments.ListFilters{}, err
	}
	status, err := optionalEnum(r, "status", enums.ParsePaymentStatus)
	if err != nil {
		return payments.ListFilters{}, err
	}
	method, err := optionalEnum(r, "method", enums.ParsePaymentMethod)
	if err != nil {
		return payments.ListFilters{}, err
	}
	return payments.ListFilters{UserID: userID, Status: status, Method: method}, nil
}
