// Package classifier derives sector and impact enrichment for a disclosure
// from keyword tables. It holds no state beyond its tables and never fails.
package classifier

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ransomwatch/models"
)

// Input is the part of a post the classifier reads.
type Input struct {
	Title       string
	Website     string
	Description string
	Country     string
}

type Classifier struct {
	sectors   []sectorRule
	sizes     []sizeRule
	impacts   []impactRule
	dataTypes []dataTypeRule
	profiles  map[models.CompanySize]sizeProfile
}

func New() *Classifier {
	return &Classifier{
		sectors:   sectorRules,
		sizes:     sizeRules,
		impacts:   impactRules,
		dataTypes: dataTypeRules,
		profiles:  sizeProfiles,
	}
}

// Classify returns the full enrichment for a post.
func (c *Classifier) Classify(in Input) models.Enrichment {
	title := cleanField(in.Title)
	website := cleanField(in.Website)
	description := cleanField(in.Description)

	company := CompanyName(title, website)
	sector := c.DetectSector(company, website, description)
	size := c.DetectCompanySize(company, website, description)
	profile := c.profiles[size]

	return models.Enrichment{
		CompanyName:      company,
		Sector:           sector,
		CompanySize:      size,
		ImpactLevel:      c.DetectImpactLevel(title, description),
		DataTypeLeaked:   c.DetectDataType(title, description),
		EmployeeCount:    profile.employeeCount,
		RevenueRange:     profile.revenueRange,
		IndustryCategory: sector,
	}
}

// DetectSector scores every sector by the number of its keywords found in the
// text and returns the best one. Ties go to the sector listed first; no match
// at all is SectorOther.
func (c *Classifier) DetectSector(companyName, website, description string) models.Sector {
	text := joinLower(companyName, website, description)

	best, bestScore := models.SectorOther, 0
	for _, rule := range c.sectors {
		score := 0
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = rule.sector, score
		}
	}
	return best
}

// DetectCompanySize returns the first bucket with any matching keyword.
// Unlike DetectSector this is first-match, not best-score; the difference is
// kept from the original heuristic on purpose.
func (c *Classifier) DetectCompanySize(companyName, website, description string) models.CompanySize {
	text := joinLower(companyName, website, description)
	for _, rule := range c.sizes {
		if containsAny(text, rule.keywords) {
			return rule.size
		}
	}
	return models.SizeMedium
}

// DetectImpactLevel is first-match over the impact table, defaulting to medium.
func (c *Classifier) DetectImpactLevel(title, description string) models.ImpactLevel {
	text := joinLower(title, description)
	for _, rule := range c.impacts {
		if containsAny(text, rule.keywords) {
			return rule.level
		}
	}
	return models.ImpactMedium
}

// DetectDataType is first-match over the data type table, defaulting to general.
func (c *Classifier) DetectDataType(title, description string) models.DataType {
	text := joinLower(title, description)
	for _, rule := range c.dataTypes {
		if containsAny(text, rule.keywords) {
			return rule.dataType
		}
	}
	return models.DataGeneral
}

// CompanyName prefers the registrable domain label of website ("acme" for
// https://shop.acme.com.tr) and falls back to the first title token that is
// not a stopword.
func CompanyName(title, website string) string {
	caser := cases.Title(language.Und)

	if label := domainLabel(cleanField(website)); label != "" {
		return caser.String(label)
	}

	title = cleanField(title)
	for _, tok := range strings.Fields(title) {
		word := strings.ToLower(strings.Trim(tok, ".,:;!?-_()[]\"'"))
		if word == "" {
			continue
		}
		if _, stop := titleStopwords[word]; stop {
			continue
		}
		return caser.String(tok)
	}
	return title
}

func domainLabel(website string) string {
	if website == "" {
		return ""
	}
	raw := website
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return ""
	}

	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		registrable = host
	}
	label, _, _ := strings.Cut(registrable, ".")
	return label
}

// cleanField treats the feed's "None" placeholder as empty.
func cleanField(s string) string {
	s = strings.TrimSpace(s)
	if s == "None" || s == "null" {
		return ""
	}
	return s
}

func joinLower(parts ...string) string {
	return strings.ToLower(strings.Join(parts, " "))
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
