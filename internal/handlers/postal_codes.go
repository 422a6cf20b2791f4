package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vitrine-field/api/internal/platform/httpx"
	"github.com/vitrine-field/api/internal/services"
)

// PostalCodeHandlers exposes CEP lookup for address forms.
type PostalCodeHandlers struct {
	postalCodes services.PostalCodeService
}

// NewPostalCodeHandlers constructs postal code handlers.
func NewPostalCodeHandlers(postalCodes services.PostalCodeService) *PostalCodeHandlers {
	return &PostalCodeHandlers{postalCodes: postalCodes}
}

// Routes registers the lookup endpoint.
func (h *PostalCodeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{cep}", h.lookup)
}

type postalAddressResponse struct {
	PostalCode   string `json:"postal_code"`
	Street       string `json:"street"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
}

func (h *PostalCodeHandlers) lookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.postalCodes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("postal_code_unavailable", "postal code lookup unavailable", http.StatusServiceUnavailable))
		return
	}

	address, err := h.postalCodes.Lookup(ctx, chi.URLParam(r, "cep"))
	switch {
	case err == nil:
	case errors.Is(err, services.ErrInvalidPostalCode):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_postal_code", "invalid postal code", http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrPostalCodeNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("postal_code_not_found", "postal code not found", http.StatusNotFound))
		return
	default:
		httpx.WriteError(ctx, w, httpx.NewError("postal_code_unavailable", "postal code lookup unavailable", http.StatusServiceUnavailable))
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=86400")
	writeJSONResponse(w, http.StatusOK, postalAddressResponse{
		PostalCode:   address.PostalCode,
		Street:       address.Street,
		Complement:   address.Complement,
		Neighborhood: address.Neighborhood,
		City:         address.City,
		State:        address.State,
	})
}
