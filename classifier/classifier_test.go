package classifier

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ransomwatch/models"
)

func TestDetectSector(t *testing.T) {
	c := New()

	tests := []struct {
		name        string
		company     string
		website     string
		description string
		want        models.Sector
	}{
		{"empty input", "", "", "", models.SectorOther},
		{"no keywords", "Zyx", "", "qqq", models.SectorOther},
		{"finance wins on score", "Bank", "", "credit card payment", models.SectorFinance},
		{"turkish keywords", "", "", "hastane ve klinik", models.SectorHealth},
		{"tie goes to first registered", "", "", "hospital school", models.SectorHealth},
		{"tie order independent of text order", "", "", "school hospital", models.SectorHealth},
		{"case insensitive", "", "", "UNIVERSITY COLLEGE", models.SectorEducation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.DetectSector(tt.company, tt.website, tt.description))
		})
	}
}

func TestFirstMatchLookups(t *testing.T) {
	c := New()

	// "small" sits in the first size bucket, so it beats later buckets even
	// when they have more hits.
	assert.Equal(t, models.SizeSmall, c.DetectCompanySize("", "", "small global enterprise corporate"))
	assert.Equal(t, models.SizeLarge, c.DetectCompanySize("", "", "global enterprise"))
	assert.Equal(t, models.SizeMedium, c.DetectCompanySize("", "", ""))

	assert.Equal(t, models.ImpactLow, c.DetectImpactLevel("critical", "minor"))
	assert.Equal(t, models.ImpactCritical, c.DetectImpactLevel("Kritik sızıntı", ""))
	assert.Equal(t, models.ImpactMedium, c.DetectImpactLevel("", ""))

	assert.Equal(t, models.DataFinancial, c.DetectDataType("customer bank records", ""))
	assert.Equal(t, models.DataGeneral, c.DetectDataType("", ""))
}

func TestCompanyName(t *testing.T) {
	tests := []struct {
		title   string
		website string
		want    string
	}{
		{"Acme Corp Breach", "https://acme.com.tr", "Acme"},
		{"whatever", "https://shop.acme.co.uk/path?q=1", "Acme"},
		{"whatever", "www.globex.com", "Globex"},
		{"Data Breach globex Inc", "", "Globex"},
		{"data leak", "None", "data leak"},
		{"None", "None", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.title+"|"+tt.website, func(t *testing.T) {
			assert.Equal(t, tt.want, CompanyName(tt.title, tt.website))
		})
	}
}

func TestClassify(t *testing.T) {
	c := New()

	got := c.Classify(Input{
		Title:       "Small Clinic data leak",
		Website:     "https://smallclinic.example",
		Description: "patient records",
		Country:     "TR",
	})

	assert.Equal(t, models.SectorHealth, got.Sector)
	assert.Equal(t, models.SectorHealth, got.IndustryCategory)
	assert.Equal(t, models.SizeSmall, got.CompanySize)
	assert.Equal(t, "0-1M", got.RevenueRange)
	assert.Equal(t, 50, got.EmployeeCount)
	assert.Equal(t, models.DataHealth, got.DataTypeLeaked)
	assert.Equal(t, "Smallclinic", got.CompanyName)
}

func TestClassifyDefaults(t *testing.T) {
	got := New().Classify(Input{})

	assert.Equal(t, models.SectorOther, got.Sector)
	assert.Equal(t, models.SizeMedium, got.CompanySize)
	assert.Equal(t, models.ImpactMedium, got.ImpactLevel)
	assert.Equal(t, models.DataGeneral, got.DataTypeLeaked)
	assert.Equal(t, "1M-10M", got.RevenueRange)
	assert.Equal(t, 500, got.EmployeeCount)
}

func FuzzClassifyIsTotal(f *testing.F) {
	for _, seed := range []string{"", "None", "http://", "://", "\x00\xff", "İSTANBUL Üniversitesi", "a.b.c.d.e"} {
		f.Add(seed, seed, seed)
	}
	c := New()

	f.Fuzz(func(t *testing.T, title, website, description string) {
		got := c.Classify(Input{Title: title, Website: website, Description: description})
		require.True(t, slices.Contains(models.Sectors, got.Sector), "sector %q outside the closed set", got.Sector)
		require.NotEqual(t, models.SizeUnknown, got.CompanySize)
		require.NotEqual(t, models.ImpactUnknown, got.ImpactLevel)
		require.NotEqual(t, models.DataUnknown, got.DataTypeLeaked)
	})
}
