package models

// Bucket is one row of a grouped count.
type Bucket struct {
	Label string `json:"label" db:"label"`
	Count int    `json:"count" db:"count"`
}

// Summary is the aggregate view the dashboard and the daily report read.
type Summary struct {
	TotalPosts        int      `json:"total_posts"`
	UniqueCompanies   int      `json:"unique_companies"`
	TotalGroups       int      `json:"total_groups"`
	TotalWallets      int      `json:"total_wallets"`
	TotalTransactions int      `json:"total_transactions"`
	BalanceChanges    int      `json:"balance_changes"`
	TopSectors        []Bucket `json:"top_sectors"`
	TopCountries      []Bucket `json:"top_countries"`
	TopThreatActors   []Bucket `json:"top_threat_actors"`
	ImpactLevels      []Bucket `json:"impact_levels"`
}

// PostFilter narrows ListPosts. Zero values match everything.
type PostFilter struct {
	Sector      Sector
	Country     string
	ThreatActor string
	Limit       int
}
