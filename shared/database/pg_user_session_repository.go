package database

import (
	"context"
	"fmt"

	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"go.uber.org/zap"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ interfaces.UserSessionRepository = (*pgUserSessionRepository)(nil)

type pgUserSessionRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

func NewPgUserSessionRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.UserSessionRepository {
	return &pgUserSessionRepository{
		db:     db,
		logger: logger.Named("PgUserSessionRepo"),
	}
}

// An empty character_id never overwrites a known one.
const upsertUserGameSessionQuery = `
INSERT INTO user_game_sessions (user_id, session_id, character_id, session_name, first_joined_at, last_joined_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (user_id, session_id) DO UPDATE SET
    character_id   = COALESCE(NULLIF(EXCLUDED.character_id, ''), user_game_sessions.character_id),
    session_name   = EXCLUDED.session_name,
    last_joined_at = EXCLUDED.last_joined_at`

const listUserGameSessionsQuery = `
SELECT user_id, session_id, character_id, session_name, first_joined_at, last_joined_at
FROM user_game_sessions
WHERE user_id = $1
ORDER BY last_joined_at DESC`

const deleteUserGameSessionQuery = `
DELETE FROM user_game_sessions
WHERE user_id = $1 AND session_id = $2`

func (r *pgUserSessionRepository) Upsert(ctx context.Context, record models.UserGameSession) error {
	logFields := []zap.Field{zap.String("userID", record.UserID), zap.String("sessionID", record.SessionID)}
	_, err := r.db.Exec(ctx, upsertUserGameSessionQuery,
		record.UserID,
		record.SessionID,
		record.CharacterID,
		record.SessionName,
		record.LastJoinedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert user game session", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to upsert user game session: %w", err)
	}
	r.logger.Debug("User game session upserted", logFields...)
	return nil
}

func (r *pgUserSessionRepository) ListByUser(ctx context.Context, userID string) ([]models.UserGameSession, error) {
	records := []models.UserGameSession{}
	if err := pgxscan.Select(ctx, r.db, &records, listUserGameSessionsQuery, userID); err != nil {
		r.logger.Error("Failed to list user game sessions", zap.String("userID", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list user game sessions: %w", err)
	}
	return records, nil
}

func (r *pgUserSessionRepository) Delete(ctx context.Context, userID, sessionID string) error {
	tag, err := r.db.Exec(ctx, deleteUserGameSessionQuery, userID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete user game session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
