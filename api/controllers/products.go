package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultFeaturedLimit = 8

type createProductRequest struct {
	SKU           string          `json:"sku" validate:"required,max=64"`
	Name          string          `json:"name" validate:"required,max=255"`
	Description   *string         `json:"description,omitempty"`
	Category      string          `json:"category" validate:"required,max=100"`
	Brand         *string         `json:"brand,omitempty" validate:"omitempty,max=100"`
	MainImage     *string         `json:"main_image,omitempty" validate:"omitempty,url"`
	Images        []string        `json:"images,omitempty" validate:"omitempty,max=20,dive,url"`
	Tags          []string        `json:"tags,omitempty" validate:"omitempty,max=30,dive,max=50"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity" validate:"gte=0"`
	IsActive      *bool           `json:"is_active,omitempty"`
	IsFeatured    bool            `json:"is_featured"`
}

type updateProductRequest struct {
	SKU           *string          `json:"sku,omitempty" validate:"omitempty,max=64"`
	Name          *string          `json:"name,omitempty" validate:"omitempty,max=255"`
	Description   *string          `json:"description,omitempty"`
	Category      *string          `json:"category,omitempty" validate:"omitempty,max=100"`
	Brand         *string          `json:"brand,omitempty" validate:"omitempty,max=100"`
	MainImage     *string          `json:"main_image,omitempty" validate:"omitempty,url"`
	Images        *[]string        `json:"images,omitempty" validate:"omitempty,max=20,dive,url"`
	Tags          *[]string        `json:"tags,omitempty" validate:"omitempty,max=30,dive,max=50"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	StockQuantity *int             `json:"stock_quantity,omitempty" validate:"omitempty,gte=0"`
	IsActive      *bool            `json:"is_active,omitempty"`
	IsFeatured    *bool            `json:"is_featured,omitempty"`
}

// ProductList serves the public catalog browse endpoint.
func ProductList(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return listProducts(svc, logg, false)
}

// AdminProductList includes inactive products.
func AdminProductList(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return listProducts(svc, logg, true)
}

func listProducts(svc product.Service, logg *logger.Logger, includeInactive bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "product")
			return
		}

		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := parseProductFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters.IncludeInactive = includeInactive

		page, err := svc.ListProducts(r.Context(), filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// ProductGet returns one product and counts the view.
func ProductGet(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "product")
			return
		}
		productID, ok := pathUUID(w, r, logg, "productId", "productId")
		if !ok {
			return
		}

		dto, err := svc.GetProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.RecordView(r.Context(), productID); err != nil {
			if logg != nil {
				logg.Error(logg.WithField(r.Context(), "product_id", productID.String()), "record product view failed", err)
			}
		} else {
			dto.ViewCount++
		}
		responses.WriteSuccess(w, dto)
	}
}

func ProductFeatured(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "product")
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultFeaturedLimit, 1, 50)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := svc.FeaturedProducts(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

func AdminProductCreate(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "product")
			return
		}

		var body createProductRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		active := true
		if body.IsActive != nil {
			active = *body.IsActive
		}
		dto, err := svc.CreateProduct(r.Context(), product.CreateProductInput{
			SKU:           body.SKU,
			Name:          body.Name,
			Description:   body.Description,
			Category:      body.Category,
			Brand:         body.Brand,
			MainImage:     body.MainImage,
			Images:        body.Images,
			Tags:          body.Tags,
			Price:         body.Price,
			StockQuantity: body.StockQuantity,
			IsActive:      active,
			IsFeatured:    body.IsFeatured,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

func AdminProductUpdate(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "product")
			return
		}
		productID, ok := pathUUID(w, r, logg, "productId", "productId")
		if !ok {
			return
		}

		var body updateProductRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.UpdateProduct(r.Context(), productID, product.UpdateProductInput{
			SKU:           body.SKU,
			Name:          body.Name,
			Description:   body.Description,
			Category:      body.Category,
			Brand:         body.Brand,
			MainImage:     body.MainImage,
			Images:        body.Images,
			Tags:          body.Tags,
			Price:         body.Price,
			StockQuantity: body.StockQuantity,
			IsActive:      body.IsActive,
			IsFeatured:    body.IsFeatured,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// AdminProductDelete deactivates the product.
func AdminProductDelete(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "product")
			return
		}
		productID, ok := pathUUID(w, r, logg, "productId", "productId")
		if !ok {
			return
		}
		if err := svc.DeleteProduct(r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, http.StatusOK, "Product deleted", nil)
	}
}

func parseProductFilters(r *http.Request) (product.ListFilters, error) {
	query := r.URL.Query()
	filters := product.ListFilters{
		Category:    validators.SanitizeString(query.Get("category"), 100),
		Brand:       validators.SanitizeString(query.Get("brand"), 100),
		Query:       validators.SanitizeString(query.Get("q"), 200),
		InStockOnly: strings.EqualFold(query.Get("inStock"), "true"),
	}

	var err error
	if filters.MinPrice, err = parsePrice(query.Get("minPrice"), "minPrice"); err != nil {
		return filters, err
	}
	if filters.MaxPrice, err = parsePrice(query.Get("maxPrice"), "maxPrice"); err != nil {
		return filters, err
	}
	if filters.MinPrice != nil && filters.MaxPrice != nil && filters.MinPrice.GreaterThan(*filters.MaxPrice) {
		return filters, pkgerrors.New(pkgerrors.CodeValidation, "minPrice cannot exceed maxPrice")
	}
	return filters, nil
}

func parsePrice(raw, field string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil || value.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid price filter").
			WithDetails(map[string]any{"field": field})
	}
	return &value, nil
}
