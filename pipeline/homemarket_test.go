package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHomeMarketMatch(t *testing.T) {
	h, err := NewHomeMarket(DefaultHomeMarketConfig())
	require.NoError(t, err)

	tests := []struct {
		name    string
		country string
		website string
		matched string
		ok      bool
	}{
		{"country code", "TR", "acme.com", "", true},
		{"country code lower case", "tr", "", "", true},
		{"commercial domain", "", "acme.com.tr", "acme.com.tr", true},
		{"subdomain", "None", "https://shop.acme.com.tr/about", "shop.acme.com.tr", true},
		{"ct domain", "", "kibris.ct.tr", "kibris.ct.tr", true},
		{"other country", "DE", "acme.de", "", false},
		{"gov domain is not commercial", "", "acme.gov.tr", "", false},
		{"longer tld after com", "", "https://acme.com.travel", "", false},
		{"longer tld with path", "", "https://acme.com.trade/x", "", false},
		{"port after domain", "", "https://acme.com.tr:8443/", "acme.com.tr", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, ok := h.Match(tt.country, tt.website)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.matched, matched)
		})
	}
}

func TestHomeMarketInvalidPattern(t *testing.T) {
	_, err := NewHomeMarket(HomeMarketConfig{Country: "TR", DomainPattern: "("})
	assert.Error(t, err)
}

func TestNilHomeMarketMatchesNothing(t *testing.T) {
	var h *HomeMarket
	_, ok := h.Match("TR", "acme.com.tr")
	assert.False(t, ok)
}
