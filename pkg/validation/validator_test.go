package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type planInput struct {
	Name     string `json:"name" validate:"required,secure_string"`
	Currency string `json:"currency" validate:"currency_code"`
	Slug     string `json:"slug" validate:"omitempty,slug"`
}

func TestValidateStruct_CustomTags(t *testing.T) {
	v := NewValidator(nil)

	require.NoError(t, v.ValidateStruct(planInput{Name: "Gold", Currency: "USD", Slug: "gold-plan"}))

	err := v.ValidateStruct(planInput{Name: "<script>x</script>", Currency: "usd", Slug: "Gold Plan"})
	require.Error(t, err)
	for _, field := range []string{"name", "currency", "slug"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestSanitizeHTML_DropsScripts(t *testing.T) {
	out := SanitizeHTML(`<p onclick="x()">Hello <b>there</b><script>alert(1)</script></p>`)
	assert.Equal(t, "<p>Hello <b>there</b></p>", out)
}

func TestSanitizeText_StripsMarkup(t *testing.T) {
	assert.Equal(t, "Hello there", SanitizeText("<i>Hello</i> there "))
}

func TestSanitizeMap_Recurses(t *testing.T) {
	m := map[string]interface{}{
		"subject": "<script>x</script>Offer",
		"body": map[string]interface{}{
			"html": `<a href="javascript:alert(1)">click</a>`,
		},
		"tags":  []interface{}{"<img src=x onerror=y>"},
		"count": 3.0,
	}
	SanitizeMap(m)

	assert.Equal(t, "Offer", m["subject"])
	assert.NotContains(t, m["body"].(map[string]interface{})["html"], "javascript")
	assert.NotContains(t, m["tags"].([]interface{})[0], "onerror")
	assert.Equal(t, 3.0, m["count"])
	assert.True(t, ContainsXSS("<script>"))
}
