package shipping

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeLabelStripsEncodedMarkup(t *testing.T) {
	assert.Equal(t, "x", sanitizeLabel("&lt;b&gt;x&lt;/b&gt;"))
	assert.Equal(t, "Rápido", sanitizeLabel("&lt;script&gt;alert(1)&lt;/script&gt;Rápido"))
	assert.NotContains(t, sanitizeLabel("&lt;img src=x onerror=alert(1)&gt;Hoje"), "<")
}

func TestSanitizeLabelKeepsTextEscaped(t *testing.T) {
	assert.Equal(t, "Entrega &amp; cia", sanitizeLabel("Entrega & cia"))
	assert.Equal(t, "Entrega &amp; cia", sanitizeLabel("Entrega &amp; cia"))
}

func TestSanitizeLabelTruncationDropsPartialEntity(t *testing.T) {
	label := sanitizeLabel(strings.Repeat("a", maxLabelLength-2) + " & b")
	assert.Equal(t, strings.Repeat("a", maxLabelLength-2), label)
}
