package shipping

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/vitrine-field/api/internal/domain"
)

// GuaranteedDeliveryLabel is shown for express methods configured with a guaranteed label.
const GuaranteedDeliveryLabel = "guaranteed delivery"

const maxLabelLength = 120

var labelPolicy = bluemonday.StrictPolicy()

// DeliveryDaysLabel renders "1 day" or "N days".
func DeliveryDaysLabel(days int) string {
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func expressDeliveryLabel(method domain.ShippingMethod) string {
	if method.DeliveryLabelType == domain.DeliveryLabelGuaranteed {
		return GuaranteedDeliveryLabel
	}
	if method.DeliveryDays != nil {
		return DeliveryDaysLabel(*method.DeliveryDays)
	}
	return ""
}

// sanitizeLabel strips markup from carrier supplied text before it reaches the storefront.
// Entity-encoded markup is decoded first so it is stripped too; the result stays HTML-escaped.
func sanitizeLabel(label string) string {
	cleaned := labelPolicy.Sanitize(html.UnescapeString(label))
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if runes := []rune(cleaned); len(runes) > maxLabelLength {
		cleaned = trimPartialEntity(string(runes[:maxLabelLength]))
	}
	return cleaned
}

// trimPartialEntity drops a character reference cut off by truncation.
func trimPartialEntity(s string) string {
	amp := strings.LastIndexByte(s, '&')
	if amp >= 0 && !strings.Contains(s[amp:], ";") {
		return strings.TrimSpace(s[:amp])
	}
	return s
}
