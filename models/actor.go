package models

import "time"

// Group is a ransomware/extortion group from the groups feed. The JSON blobs
// are stored as the feed sent them.
type Group struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	URL       string    `json:"url" db:"url"`
	Meta      string    `json:"meta" db:"meta"`
	Locations string    `json:"locations" db:"locations"`
	Profile   string    `json:"profile" db:"profile"`
	Tools     string    `json:"tools" db:"tools"`
	TTPs      string    `json:"ttps" db:"ttps"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type GroupKey struct {
	Name string
	URL  string
}

func (g *Group) Key() GroupKey {
	return GroupKey{Name: g.Name, URL: g.URL}
}

func (k GroupKey) String() string {
	return k.Name + "\x1f" + k.URL
}
