package pipeline

import (
	"context"
	"fmt"

	"ransomwatch/models"
)

type pendingEnrichment struct {
	post       *models.Post
	enrichment models.Enrichment
}

// Reenrich runs the classifier over every stored post and writes the
// enrichment back where it changed. Screenshots and core fields are untouched.
func (e *Engine) Reenrich(ctx context.Context) (Stats, error) {
	var stats Stats
	var pending []pendingEnrichment

	// Updates are applied after the walk; bolt cannot write inside a read
	// transaction.
	err := e.store.WalkPosts(ctx, func(p *models.Post) error {
		stats.Seen++
		enrichment := e.classify(p)
		if enrichment == p.Enrichment {
			stats.Unchanged++
			return nil
		}
		pending = append(pending, pendingEnrichment{post: p, enrichment: enrichment})
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("walking posts: %w", err)
	}

	for _, u := range pending {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := e.store.UpdateEnrichment(ctx, u.post.ID, u.enrichment, u.post.HackDate, e.now()); err != nil {
			e.logger.Error().Err(err).Int64("id", u.post.ID).Msg("Failed to update enrichment")
			stats.Failed++
			continue
		}
		stats.Updated++
	}

	e.logger.Info().
		Int("seen", stats.Seen).
		Int("updated", stats.Updated).
		Int("failed", stats.Failed).
		Msg("Re-enrichment finished")
	e.record("enrichment", Stats{Updated: stats.Updated, Failed: stats.Failed})
	return stats, nil
}
