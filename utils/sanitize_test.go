package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "Jane Doe", SanitizeText("  <b>Jane</b> Doe "))
	assert.Equal(t, "Smith & Sons", SanitizeText("Smith & Sons"))
	assert.Equal(t, "", SanitizeText(`<script>alert(1)</script>`))
}

func TestSanitizeTextEscapedMarkup(t *testing.T) {
	for _, in := range []string{
		"&lt;script&gt;alert(1)&lt;/script&gt;",
		"Jane &lt;img src=x onerror=alert(1)&gt;",
		"&amp;lt;b&amp;gt;bold&amp;lt;/b&amp;gt;",
		"&#60;svg onload=alert(1)&#62;",
		"a < b > c",
	} {
		out := SanitizeText(in)
		assert.NotContains(t, out, "<", in)
		assert.NotContains(t, out, ">", in)
	}
	assert.Equal(t, "Jane", SanitizeText("Jane &lt;img src=x onerror=alert(1)&gt;"))
}
