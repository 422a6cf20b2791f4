package services

import (
	"errors"

	"github.com/vitrine-field/api/internal/repositories"
)

var (
	// ErrPricingInvalidInput signals a missing tenant or product identifier.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrProductNotFound indicates the product does not exist for the tenant.
	ErrProductNotFound = errors.New("pricing: product not found")
	// ErrPricingUnavailable indicates the catalog or promotion store could not be read.
	ErrPricingUnavailable = errors.New("pricing: unavailable")

	// ErrShippingInvalidInput signals a malformed shipping calculation request.
	ErrShippingInvalidInput = errors.New("shipping: invalid input")
	// ErrShippingUnavailable indicates shipping methods could not be loaded.
	ErrShippingUnavailable = errors.New("shipping: unavailable")

	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutShippingUnavailable indicates the selected shipping method cannot be used.
	ErrCheckoutShippingUnavailable = errors.New("checkout: shipping method unavailable")
	// ErrCheckoutMerchantNotConnected indicates the tenant has not linked a payment account.
	ErrCheckoutMerchantNotConnected = errors.New("checkout: merchant payment account not connected")
	// ErrCheckoutPaymentFailed indicates the PSP session could not be created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
	// ErrOrderNotFound indicates the order does not exist for the tenant.
	ErrOrderNotFound = errors.New("checkout: order not found")

	// ErrInvalidPostalCode indicates the CEP is not eight digits.
	ErrInvalidPostalCode = errors.New("invalid postal code")
	// ErrPostalCodeNotFound indicates the lookup service does not know the CEP.
	ErrPostalCodeNotFound = errors.New("postal code not found")
	// ErrPostalCodeUnavailable indicates the lookup service failed after retries.
	ErrPostalCodeUnavailable = errors.New("postal code lookup unavailable")

	// ErrTenantNotFound indicates the tenant does not exist.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrConnectInvalidState indicates the OAuth state is missing, forged, or expired.
	ErrConnectInvalidState = errors.New("stripe connect: invalid state")
	// ErrConnectUnavailable indicates the Connect flow could not be completed.
	ErrConnectUnavailable = errors.New("stripe connect: unavailable")
)

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
