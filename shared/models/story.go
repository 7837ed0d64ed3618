package models

import (
	"time"

	"github.com/lib/pq"
)

// StoryInfo is a published story of the catalog.
type StoryInfo struct {
	ID          string         `json:"id" db:"id"`
	Title       string         `json:"title" db:"title"`
	Description string         `json:"description" db:"description"`
	AuthorID    string         `json:"authorId" db:"author_id"`
	Public      bool           `json:"public" db:"public"`
	Tags        pq.StringArray `json:"tags" db:"tags"`
	UpdatedAt   time.Time      `json:"updatedAt" db:"updated_at"`
}
