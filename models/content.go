package models

import (
	"strings"
	"time"
)

// Post is one leak-site disclosure as stored in the posts table.
type Post struct {
	ID          int64     `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	ThreatActor string    `json:"threat_actor" db:"threat_actor"`
	Description string    `json:"description" db:"description"`
	Discovered  string    `json:"discovered" db:"discovered"`
	Published   string    `json:"published" db:"published"`
	LeakURL     string    `json:"leak_url" db:"leak_url"`
	Country     string    `json:"country" db:"country"`
	Activity    string    `json:"activity" db:"activity"`
	Website     string    `json:"website" db:"website"`
	Duplicates  string    `json:"duplicates" db:"duplicates"`
	Screenshot  string    `json:"screenshot" db:"screenshot"`
	HackDate    time.Time `json:"hack_date" db:"hack_date"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	Enrichment
}

// Enrichment holds the classifier-derived fields of a post.
type Enrichment struct {
	CompanyName      string      `json:"company_name" db:"company_name"`
	Sector           Sector      `json:"sector" db:"sector"`
	CompanySize      CompanySize `json:"company_size" db:"company_size"`
	ImpactLevel      ImpactLevel `json:"impact_level" db:"impact_level"`
	DataTypeLeaked   DataType    `json:"data_type_leaked" db:"data_type_leaked"`
	EmployeeCount    int         `json:"employee_count" db:"employee_count"`
	RevenueRange     string      `json:"revenue_range" db:"revenue_range"`
	IndustryCategory Sector      `json:"industry_category" db:"industry_category"`
}

// PostKey is the natural key of a disclosure. Two posts with equal keys are
// the same disclosure.
type PostKey struct {
	Title      string
	Discovered string
	Published  string
	Website    string
	Country    string
}

func (p *Post) Key() PostKey {
	return PostKey{
		Title:      p.Title,
		Discovered: p.Discovered,
		Published:  p.Published,
		Website:    p.Website,
		Country:    p.Country,
	}
}

// String joins the key fields with a unit separator; used for bolt keys and
// in-process locks.
func (k PostKey) String() string {
	return strings.Join([]string{k.Title, k.Discovered, k.Published, k.Website, k.Country}, "\x1f")
}

// HackedCompany is the enrichment projection of a post, one row per post.
type HackedCompany struct {
	ID               int64       `json:"id" db:"id"`
	PostID           int64       `json:"post_id" db:"post_id"`
	CompanyName      string      `json:"company_name" db:"company_name"`
	CountryCode      string      `json:"country_code" db:"country_code"`
	Sector           Sector      `json:"sector" db:"sector"`
	CompanySize      CompanySize `json:"company_size" db:"company_size"`
	HackDate         time.Time   `json:"hack_date" db:"hack_date"`
	ThreatActor      string      `json:"threat_actor" db:"threat_actor"`
	DataTypeLeaked   DataType    `json:"data_type_leaked" db:"data_type_leaked"`
	ImpactLevel      ImpactLevel `json:"impact_level" db:"impact_level"`
	CompanyWebsite   string      `json:"company_website" db:"company_website"`
	RevenueRange     string      `json:"revenue_range" db:"revenue_range"`
	EmployeeCount    int         `json:"employee_count" db:"employee_count"`
	IndustryCategory Sector      `json:"industry_category" db:"industry_category"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}

// UnknownCountry is stored in hacked_companies when the feed gave no country.
const UnknownCountry = "Unknown"

// NewHackedCompany projects an enriched post. The post must already carry its ID.
func NewHackedCompany(p *Post) *HackedCompany {
	country := p.Country
	if country == "" {
		country = UnknownCountry
	}
	actor := p.ThreatActor
	if actor == "" {
		actor = "Unknown"
	}
	return &HackedCompany{
		PostID:           p.ID,
		CompanyName:      p.CompanyName,
		CountryCode:      country,
		Sector:           p.Sector,
		CompanySize:      p.CompanySize,
		HackDate:         p.HackDate,
		ThreatActor:      actor,
		DataTypeLeaked:   p.DataTypeLeaked,
		ImpactLevel:      p.ImpactLevel,
		CompanyWebsite:   p.Website,
		RevenueRange:     p.RevenueRange,
		EmployeeCount:    p.EmployeeCount,
		IndustryCategory: p.IndustryCategory,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}
