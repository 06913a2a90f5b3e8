package reports

import (
	"encoding/json"
	"time"

	"ransomwatch/models"
)

// SummaryReport is the document behind the daily summary and the stats command.
type SummaryReport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Summary     *models.Summary `json:"summary"`
}

func GenerateJSON(summary *models.Summary, generatedAt time.Time) ([]byte, error) {
	return json.MarshalIndent(SummaryReport{GeneratedAt: generatedAt.UTC(), Summary: summary}, "", "  ")
}

// SummaryEvent wraps store statistics as a daily summary notification.
func SummaryEvent(summary *models.Summary, now time.Time) Event {
	return Event{Kind: KindDailySummary, Time: now, Summary: summary}
}
