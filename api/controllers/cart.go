package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type addCartLineRequest struct {
	ProductID uuid.UUID         `json:"product_id" validate:"required"`
	Quantity  int               `json:"quantity" validate:"gte=1"`
	Variants  map[string]string `json:"selected_variants,omitempty"`
}

type updateCartQuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=1"`
}

type updateCartVariantsRequest struct {
	Variants map[string]string `json:"selected_variants"`
}

// CartList returns the caller's cart lines.
func CartList(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "cart")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		lines, err := svc.List(r.Context(), caller, caller.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lines)
	}
}

// CartAddLine merges a product into the caller's cart.
func CartAddLine(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "cart")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}

		var body addCartLineRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		line, err := svc.AddLine(r.Context(), caller, caller.UserID, cart.AddLineInput{
			ProductID: body.ProductID,
			Quantity:  body.Quantity,
			Variants:  body.Variants,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, line)
	}
}

func CartUpdateQuantity(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "cart")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		lineID, ok := pathUUID(w, r, logg, "itemId", "itemId")
		if !ok {
			return
		}

		var body updateCartQuantityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		line, err := svc.UpdateQuantity(r.Context(), caller, lineID, body.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, line)
	}
}

func CartUpdateVariants(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "cart")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		lineID, ok := pathUUID(w, r, logg, "itemId", "itemId")
		if !ok {
			return
		}

		var body updateCartVariantsRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		line, err := svc.UpdateVariants(r.Context(), caller, lineID, body.Variants)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, line)
	}
}

func CartRemoveLine(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "cart")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		lineID, ok := pathUUID(w, r, logg, "itemId", "itemId")
		if !ok {
			return
		}
		if err := svc.RemoveLine(r.Context(), caller, lineID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, http.StatusOK, "Item removed from cart", nil)
	}
}

// CartRemoveProduct drops every line for a product.
func CartRemoveProduct(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "cart")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		productID, ok := pathUUID(w, r, logg, "productId", "productId")
		if !ok {
			return
		}
		if err := svc.RemoveProduct(r.Context(), caller, caller.UserID, productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, http.StatusOK, "Product removed from cart", nil)
	}
}

func CartClear(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "cart")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		if err := svc.Clear(r.Context(), caller, caller.UserID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, http.StatusOK, "Cart cleared", nil)
	}
}

// CartValidate repairs stale lines and reports what changed.
func CartValidate(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "cart")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		result, err := svc.Validate(r.Context(), caller, caller.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func CartSummary(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "cart")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		summary, err := svc.Summarize(r.Context(), caller, caller.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
