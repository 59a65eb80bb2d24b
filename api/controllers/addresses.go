package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/addresses"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type addressRequest struct {
	Type        string  `json:"type,omitempty" validate:"omitempty,oneof=HOME WORK OTHER"`
	IsDefault   bool    `json:"is_default"`
	FullName    string  `json:"full_name" validate:"required,max=100"`
	Street      string  `json:"street" validate:"required,max=200"`
	Apartment   *string `json:"apartment,omitempty" validate:"omitempty,max=100"`
	City        string  `json:"city" validate:"required,max=100"`
	State       string  `json:"state" validate:"required,max=100"`
	ZipCode     string  `json:"zip_code" validate:"required,zip"`
	Country     string  `json:"country" validate:"required,max=100"`
	PhoneNumber *string `json:"phone_number,omitempty" validate:"omitempty,phone"`
}

func (b addressRequest) input() addresses.Input {
	return addresses.Input{
		Type:        enums.AddressType(b.Type),
		IsDefault:   b.IsDefault,
		FullName:    b.FullName,
		Street:      b.Street,
		Apartment:   b.Apartment,
		City:        b.City,
		State:       b.State,
		ZipCode:     b.ZipCode,
		Country:     b.Country,
		PhoneNumber: b.PhoneNumber,
	}
}

// AddressList returns the caller's address book, default first.
func AddressList(svc addresses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "address")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		list, err := svc.List(r.Context(), caller, caller.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func AddressGet(svc addresses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "address")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, logg, "addressId", "address_id")
		if !ok {
			return
		}
		address, err := svc.Get(r.Context(), caller, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, address)
	}
}

func AddressCreate(svc addresses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "address")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		var body addressRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		address, err := svc.Create(r.Context(), caller, caller.UserID, body.input())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, address)
	}
}

func AddressUpdate(svc addresses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "address")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, logg, "addressId", "address_id")
		if !ok {
			return
		}
		var body addressRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		address, err := svc.Update(r.Context(), caller, id, body.input())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, address)
	}
}

func AddressDelete(svc addresses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "address")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, logg, "addressId", "address_id")
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), caller, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, http.StatusOK, "Address deleted", nil)
	}
}

// AddressSetDefault makes one entry the caller's default address.
func AddressSetDefault(svc addresses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "address")
			return
		}
		caller, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, logg, "addressId", "address_id")
		if !ok {
			return
		}
		address, err := svc.SetDefault(r.Context(), caller, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, address)
	}
}
