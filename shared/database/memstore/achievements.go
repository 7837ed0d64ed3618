package memstore

import (
	"context"
	"sync"
	"time"

	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"
)

var (
	_ interfaces.AchievementRepository = (*Catalog)(nil)
	_ interfaces.StoryRepository       = (*Catalog)(nil)
)

// Catalog holds stories, their achievements and user awards.
type Catalog struct {
	mu           sync.Mutex
	stories      map[string]models.StoryInfo
	achievements map[string]models.Achievement
	awards       map[string]models.UserAchievement
}

func NewCatalog() *Catalog {
	return &Catalog{
		stories:      make(map[string]models.StoryInfo),
		achievements: make(map[string]models.Achievement),
		awards:       make(map[string]models.UserAchievement),
	}
}

func awardKey(achievementID, userID string) string { return achievementID + "|" + userID }

func (c *Catalog) AddStory(story models.StoryInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stories[story.ID] = story
}

func (c *Catalog) AddAchievement(a models.Achievement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.achievements[a.ID] = a
}

func (c *Catalog) GetByID(_ context.Context, storyID string) (*models.StoryInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stories[storyID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &s, nil
}

func (c *Catalog) Get(_ context.Context, storyID, achievementID string) (*models.Achievement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.achievements[achievementID]
	if !ok || a.StoryID != storyID {
		return nil, models.ErrNotFound
	}
	return &a, nil
}

func (c *Catalog) Award(_ context.Context, achievementID, storyID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := awardKey(achievementID, userID)
	if _, ok := c.awards[key]; ok {
		return nil
	}
	c.awards[key] = models.UserAchievement{
		UserID:        userID,
		AchievementID: achievementID,
		StoryID:       storyID,
		Title:         c.achievements[achievementID].Title,
		AwardedAt:     time.Now(),
	}
	return nil
}

func (c *Catalog) HasAward(_ context.Context, achievementID, userID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.awards[awardKey(achievementID, userID)]
	return ok, nil
}

func (c *Catalog) ListByUser(_ context.Context, userID string) ([]models.UserAchievement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []models.UserAchievement{}
	for _, a := range c.awards {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}
