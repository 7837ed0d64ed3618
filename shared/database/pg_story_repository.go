package database

import (
	"context"
	"errors"
	"fmt"

	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var _ interfaces.StoryRepository = (*pgStoryRepository)(nil)

type pgStoryRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

func NewPgStoryRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.StoryRepository {
	return &pgStoryRepository{
		db:     db,
		logger: logger.Named("PgStoryRepo"),
	}
}

// tags is selected in its text form, which pq.StringArray parses.
const getStoryByIDQuery = `
SELECT id, title, description, author_id, public, tags::text AS tags, updated_at
FROM stories
WHERE id = $1`

func (r *pgStoryRepository) GetByID(ctx context.Context, storyID string) (*models.StoryInfo, error) {
	var story models.StoryInfo
	if err := pgxscan.Get(ctx, r.db, &story, getStoryByIDQuery, storyID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get story", zap.String("storyID", storyID), zap.Error(err))
		return nil, fmt.Errorf("failed to get story: %w", err)
	}
	return &story, nil
}
