package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/access"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubCartService struct {
	cart.Service
	line      *cart.LineDTO
	summary   *cart.Summary
	err       error
	gotUserID uuid.UUID
	gotInput  cart.AddLineInput
	gotLineID uuid.UUID
	gotQty    int
	cleared   bool
}

func (s *stubCartService) AddLine(ctx context.Context, caller access.Caller, userID uuid.UUID, input cart.AddLineInput) (*cart.LineDTO, error) {
	s.gotUserID, s.gotInput = userID, input
	return s.line, s.err
}

func (s *stubCartService) UpdateQuantity(ctx context.Context, caller access.Caller, lineID uuid.UUID, qty int) (*cart.LineDTO, error) {
	s.gotLineID, s.gotQty = lineID, qty
	return s.line, s.err
}

func (s *stubCartService) Clear(ctx context.Context, caller access.Caller, userID uuid.UUID) error {
	s.gotUserID = userID
	s.cleared = true
	return s.err
}

func (s *stubCartService) Summarize(ctx context.Context, caller access.Caller, userID uuid.UUID) (*cart.Summary, error) {
	s.gotUserID = userID
	return s.summary, s.err
}

func TestCartAddLine(t *testing.T) {
	caller := userCaller()
	productID := uuid.New()
	svc := &stubCartService{line: &cart.LineDTO{ID: uuid.New(), ProductID: productID, Quantity: 2}}
	body := `{"product_id":"` + productID.String() + `","quantity":2,"selected_variants":{"size":"M"}}`

	rec := serve(CartAddLine(svc, nil), asCaller(newRequest(http.MethodPost, "/api/v1/cart/items", body), caller))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, caller.UserID, svc.gotUserID)
	assert.Equal(t, productID, svc.gotInput.ProductID)
	assert.Equal(t, map[string]string{"size": "M"}, svc.gotInput.Variants)
}

func TestCartAddLineRejectsZeroQuantity(t *testing.T) {
	svc := &stubCartService{}
	body := `{"product_id":"` + uuid.NewString() + `","quantity":0}`

	rec := serve(CartAddLine(svc, nil), asCaller(newRequest(http.MethodPost, "/api/v1/cart/items", body), userCaller()))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, uuid.Nil, svc.gotUserID)
}

func TestCartAddLineInsufficientStock(t *testing.T) {
	svc := &stubCartService{err: pkgerrors.New(pkgerrors.CodeInsufficientStock, "only 1 left in stock")}
	body := `{"product_id":"` + uuid.NewString() + `","quantity":5}`

	rec := serve(CartAddLine(svc, nil), asCaller(newRequest(http.MethodPost, "/api/v1/cart/items", body), userCaller()))

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCartUpdateQuantity(t *testing.T) {
	lineID := uuid.New()
	svc := &stubCartService{line: &cart.LineDTO{ID: lineID, Quantity: 3}}
	req := withURLParams(newRequest(http.MethodPut, "/", `{"quantity":3}`), "itemId", lineID.String())

	rec := serve(CartUpdateQuantity(svc, nil), asCaller(req, userCaller()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, lineID, svc.gotLineID)
	assert.Equal(t, 3, svc.gotQty)
}

func TestCartClear(t *testing.T) {
	caller := userCaller()
	svc := &stubCartService{}

	rec := serve(CartClear(svc, nil), asCaller(newRequest(http.MethodDelete, "/api/v1/cart", ""), caller))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.cleared)
	assert.Equal(t, caller.UserID, svc.gotUserID)
}

func TestCartSummary(t *testing.T) {
	svc := &stubCartService{summary: &cart.Summary{ItemCount: 2, TotalQuantity: 3, TotalAmount: decimal.RequireFromString("59.97")}}

	rec := serve(CartSummary(svc, nil), asCaller(newRequest(http.MethodGet, "/api/v1/cart/summary", ""), userCaller()))

	require.Equal(t, http.StatusOK, rec.Code)
	var got cart.Summary
	decodeData(t, rec, &got)
	assert.Equal(t, 3, got.TotalQuantity)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("59.97")))
}

func TestCartRequiresCaller(t *testing.T) {
	rec := serve(CartList(&stubCartService{}, nil), newRequest(http.MethodGet, "/api/v1/cart", ""))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
