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
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type stubPaymentService struct {
	payments.Service
	payment      *payments.PaymentDTO
	err          error
	gotOrderID   uuid.UUID
	gotMethod    enums.PaymentMethod
	gotCurrency  string
	gotReference string
	gotCreds     payments.Credentials
	gotAmount    decimal.Decimal
	gotFilters   payments.ListFilters
}

func (s *stubPaymentService) Create(ctx context.Context, caller access.Caller, orderID uuid.UUID, method enums.PaymentMethod, currency string) (*payments.PaymentDTO, error) {
	s.gotOrderID, s.gotMethod, s.gotCurrency = orderID, method, currency
	return s.payment, s.err
}

func (s *stubPaymentService) Process(ctx context.Context, caller access.Caller, reference string, creds payments.Credentials) (*payments.PaymentDTO, error) {
	s.gotReference, s.gotCreds = reference, creds
	return s.payment, s.err
}

func (s *stubPaymentService) Refund(ctx context.Context, caller access.Caller, reference string, amount decimal.Decimal, reason string) (*payments.PaymentDTO, error) {
	s.gotReference, s.gotAmount = reference, amount
	return s.payment, s.err
}

func (s *stubPaymentService) List(ctx context.Context, caller access.Caller, filters payments.ListFilters, params pagination.Params) (*pagination.Page[payments.PaymentDTO], error) {
	s.gotFilters = filters
	return &pagination.Page[payments.PaymentDTO]{}, s.err
}

func TestPaymentCreateParsesMethod(t *testing.T) {
	orderID := uuid.New()
	svc := &stubPaymentService{payment: &payments.PaymentDTO{Reference: "PAY-1", Status: enums.PaymentStatusPending}}
	body := `{"order_id":"` + orderID.String() + `","method":"card","currency":"usd"}`

	rec := serve(PaymentCreate(svc, nil), asCaller(newRequest(http.MethodPost, "/api/v1/payments", body), userCaller()))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, orderID, svc.gotOrderID)
	assert.Equal(t, enums.PaymentMethodCard, svc.gotMethod)
	assert.Equal(t, "usd", svc.gotCurrency)
}

func TestPaymentCreateUnknownMethod(t *testing.T) {
	svc := &stubPaymentService{}
	body := `{"order_id":"` + uuid.NewString() + `","method":"BARTER"}`

	rec := serve(PaymentCreate(svc, nil), asCaller(newRequest(http.MethodPost, "/api/v1/payments", body), userCaller()))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, uuid.Nil, svc.gotOrderID)
}

func TestPaymentProcessReadsReference(t *testing.T) {
	svc := &stubPaymentService{payment: &payments.PaymentDTO{Reference: "PAY-1", Status: enums.PaymentStatusFailed}}
	req := withURLParams(newRequest(http.MethodPost, "/", `{"card_number":"4111111111111111","cvv":"123"}`), "reference", "PAY-1")

	rec := serve(PaymentProcess(svc, nil), asCaller(req, userCaller()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "PAY-1", svc.gotReference)
	assert.Equal(t, "4111111111111111", svc.gotCreds.CardNumber)
	var got payments.PaymentDTO
	decodeData(t, rec, &got)
	assert.Equal(t, enums.PaymentStatusFailed, got.Status)
}

func TestAdminPaymentRefundAmount(t *testing.T) {
	svc := &stubPaymentService{payment: &payments.PaymentDTO{Reference: "PAY-1", Status: enums.PaymentStatusPartiallyRefunded}}
	req := withURLParams(newRequest(http.MethodPost, "/", `{"amount":"25.00","reason":"damaged"}`), "reference", "PAY-1")

	rec := serve(AdminPaymentRefund(svc, nil), asCaller(req, adminCaller()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, svc.gotAmount.Equal(decimal.NewFromInt(25)))
}

func TestAdminPaymentRefundOverRefundable(t *testing.T) {
	svc := &stubPaymentService{err: pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds refundable amount")}
	req := withURLParams(newRequest(http.MethodPost, "/", `{"amount":1000,"reason":"oops"}`), "reference", "PAY-1")

	rec := serve(AdminPaymentRefund(svc, nil), asCaller(req, adminCaller()))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "refund exceeds refundable amount", decodeEnvelope(t, rec).Error.Message)
}

func TestPaymentListFilters(t *testing.T) {
	svc := &stubPaymentService{}
	req := newRequest(http.MethodGet, "/api/v1/payments?status=completed&method=UPI", "")

	rec := serve(PaymentList(svc, nil), asCaller(req, userCaller()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, svc.gotFilters.Status)
	assert.Equal(t, enums.PaymentStatusCompleted, *svc.gotFilters.Status)
	require.NotNil(t, svc.gotFilters.Method)
	assert.Equal(t, enums.PaymentMethodUPI, *svc.gotFilters.Method)
}

func TestPaymentListBadStatus(t *testing.T) {
	req := newRequest(http.MethodGet, "/api/v1/payments?status=LOST", "")

	rec := serve(PaymentList(&stubPaymentService{}, nil), asCaller(req, userCaller()))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "status", decodeEnvelope(t, rec).Error.Details["field"])
}
