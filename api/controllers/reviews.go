package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/reviews"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type reviewRequest struct {
	Rating  int    `json:"rating" validate:"gte=1,lte=5"`
	Title   string `json:"title" validate:"required,max=100"`
	Comment string `json:"comment" validate:"required,max=2000"`
}

func (b reviewRequest) input() reviews.Input {
	return reviews.Input{
		Rating:  b.Rating,
		Title:   validators.SanitizeString(b.Title, 100),
		Comment: validators.SanitizeString(b.Comment, 2000),
	}
}

type moderateReviewRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

// ReviewListForProduct is public and serves approved reviews only.
func ReviewListForProduct(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "review")
			return
		}
		productID, ok := pathUUID(w, r, logg, "productId", "product_id")
		if !ok {
			return
		}
		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListForProduct(r.Context(), productID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func ReviewListAll(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "review")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		productID, ok := pathUUID(w, r, logg, "productId", "product_id")
		if !ok {
			return
		}
		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListAll(r.Context(), caller, productID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func ReviewSubmit(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "review")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		productID, ok := pathUUID(w, r, logg, "productId", "product_id")
		if !ok {
			return
		}
		var body reviewRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		review, err := svc.Submit(r.Context(), caller, productID, body.input())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, review)
	}
}

func ReviewUpdate(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "review")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, logg, "reviewId", "review_id")
		if !ok {
			return
		}
		var body reviewRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		review, err := svc.Update(r.Context(), caller, id, body.input())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, review)
	}
}

func ReviewDelete(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "review")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, logg, "reviewId", "review_id")
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), caller, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, http.StatusOK, "Review deleted", nil)
	}
}

// ReviewModerate hides or republishes a review.
func ReviewModerate(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "review")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, logg, "reviewId", "review_id")
		if !ok {
			return
		}
		var body moderateReviewRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		review, err := svc.Moderate(r.Context(), caller, id, *body.Approved)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, review)
	}
}
