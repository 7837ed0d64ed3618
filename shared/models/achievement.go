package models

import "time"

// Achievement belongs to a story and is triggered by an "achievement:<id>" tag.
type Achievement struct {
	ID          string `json:"id" db:"id"`
	StoryID     string `json:"storyId" db:"story_id"`
	Title       string `json:"title" db:"title"`
	Description string `json:"description" db:"description"`
	Public      bool   `json:"public" db:"public"`
}

// UserAchievement records an award.
type UserAchievement struct {
	UserID        string    `json:"userId" db:"user_id"`
	AchievementID string    `json:"achievementId" db:"achievement_id"`
	StoryID       string    `json:"storyId" db:"story_id"`
	Title         string    `json:"title" db:"title"`
	AwardedAt     time.Time `json:"awardedAt" db:"awarded_at"`
}
