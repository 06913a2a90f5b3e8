package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultHomeDomainPattern matches Turkish commercial domains such as
// acme.com.tr or shop.acme.com.tr.
const DefaultHomeDomainPattern = `(?i)(?:[\w-]+\.)?[\w-]+\.(?:com|ct)\.tr\b`

type HomeMarketConfig struct {
	Country       string `yaml:"country"`
	DomainPattern string `yaml:"domain_pattern"`
}

func DefaultHomeMarketConfig() HomeMarketConfig {
	return HomeMarketConfig{Country: "TR", DomainPattern: DefaultHomeDomainPattern}
}

// HomeMarket flags posts of local interest by country code or website domain.
type HomeMarket struct {
	country string
	domain  *regexp.Regexp
}

func NewHomeMarket(cfg HomeMarketConfig) (*HomeMarket, error) {
	h := &HomeMarket{country: strings.ToUpper(strings.TrimSpace(cfg.Country))}
	if cfg.DomainPattern != "" {
		re, err := regexp.Compile(cfg.DomainPattern)
		if err != nil {
			return nil, fmt.Errorf("compile home market domain pattern: %w", err)
		}
		h.domain = re
	}
	return h, nil
}

// Match reports whether a post belongs to the home market. matched is the
// domain found in website when the country did not already decide it.
func (h *HomeMarket) Match(country, website string) (matched string, ok bool) {
	if h == nil {
		return "", false
	}
	if h.country != "" && strings.EqualFold(country, h.country) {
		return "", true
	}
	if h.domain != nil && website != "" {
		if m := h.domain.FindString(website); m != "" {
			return m, true
		}
	}
	return "", false
}
