package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"storyroom-server/internal/narrative"
	"storyroom-server/shared/constants"
	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const achievementTagPrefix = "achievement:"

// Shared variables set on every story when the game starts.
const (
	VarPlayerCount = "NB_PLAYERS"
	VarRealNames   = "REAL_NAMES"
)

// NarrativeBridge drives the narrative engine on behalf of sessions. The
// engine itself is stateless between calls: every call restores it from the
// session's EngineState.
type NarrativeBridge struct {
	engine       narrative.Engine
	source       interfaces.StorySource
	achievements interfaces.AchievementRepository
	fanout       *Fanout
	publisher    interfaces.PushEventPublisher
	logger       *zap.Logger

	mu      sync.RWMutex
	sources map[string][]byte
}

// NewNarrativeBridge builds the bridge. publisher may be nil, push
// notifications are skipped then.
func NewNarrativeBridge(
	engine narrative.Engine,
	source interfaces.StorySource,
	achievements interfaces.AchievementRepository,
	fanout *Fanout,
	publisher interfaces.PushEventPublisher,
	logger *zap.Logger,
) *NarrativeBridge {
	return &NarrativeBridge{
		engine:       engine,
		source:       source,
		achievements: achievements,
		fanout:       fanout,
		publisher:    publisher,
		logger:       logger.Named("NarrativeBridge"),
		sources:      make(map[string][]byte),
	}
}

func (b *NarrativeBridge) load(ctx context.Context, storyID string) ([]byte, error) {
	b.mu.RLock()
	src, ok := b.sources[storyID]
	b.mu.RUnlock()
	if ok {
		return src, nil
	}
	src, err := b.source.Load(ctx, storyID)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.sources[storyID] = src
	b.mu.Unlock()
	return src, nil
}

// Initialize compiles the story and captures its metadata and initial state.
func (b *NarrativeBridge) Initialize(ctx context.Context, storyID string) (*models.NarrativeState, error) {
	src, err := b.load(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load story %s: %w", storyID, err)
	}
	story, err := b.engine.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("failed to compile story %s: %w", storyID, err)
	}
	data, err := story.SaveState()
	if err != nil {
		return nil, fmt.Errorf("failed to save story state: %w", err)
	}
	meta := narrative.Metadata(storyID, story.GlobalTags())
	b.logger.Info("Story initialized",
		zap.String("storyID", storyID),
		zap.String("gameMode", meta.GameMode),
		zap.Int("roles", len(meta.Roles)),
	)
	return &models.NarrativeState{
		StoryID:  storyID,
		Metadata: meta,
		Engine:   models.EngineState{Engine: b.engine.ID(), Data: data},
	}, nil
}

func (b *NarrativeBridge) restore(ctx context.Context, state *models.NarrativeState) (narrative.Story, error) {
	if state == nil {
		return nil, fmt.Errorf("%w: session has no story", models.ErrInvalid)
	}
	if state.Engine.Engine != b.engine.ID() {
		return nil, fmt.Errorf("%w: got %q, want %q", models.ErrEngineMismatch, state.Engine.Engine, b.engine.ID())
	}
	src, err := b.load(ctx, state.StoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load story %s: %w", state.StoryID, err)
	}
	story, err := b.engine.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("failed to compile story %s: %w", state.StoryID, err)
	}
	if err := story.LoadState(state.Engine.Data); err != nil {
		return nil, fmt.Errorf("failed to restore story state: %w", err)
	}
	return story, nil
}

func (b *NarrativeBridge) store(state *models.NarrativeState, story narrative.Story) error {
	data, err := story.SaveState()
	if err != nil {
		return fmt.Errorf("failed to save story state: %w", err)
	}
	state.Engine = models.EngineState{Engine: b.engine.ID(), Data: data}
	return nil
}

// SetSharedVariable sets an engine variable on the saved state.
func (b *NarrativeBridge) SetSharedVariable(ctx context.Context, state *models.NarrativeState, name string, value interface{}) error {
	story, err := b.restore(ctx, state)
	if err != nil {
		return err
	}
	if err := story.SetVariable(name, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", name, err)
	}
	return b.store(state, story)
}

// Advance runs the story to its next decision point or its end. The pending
// choices are kept on state for players that rejoin later.
func (b *NarrativeBridge) Advance(ctx context.Context, state *models.NarrativeState) (models.Continuation, error) {
	story, err := b.restore(ctx, state)
	if err != nil {
		return models.Continuation{}, err
	}
	cont := models.Continuation{Lines: []models.Line{}, Choices: []models.Choice{}}
	for story.CanContinue() {
		text, err := story.Continue()
		if err != nil {
			return models.Continuation{}, fmt.Errorf("failed to continue story: %w", err)
		}
		cont.Lines = append(cont.Lines, models.Line{Text: text, Tags: story.CurrentTags()})
	}
	if err := story.Err(); err != nil {
		return models.Continuation{}, fmt.Errorf("story %s failed: %w", state.StoryID, err)
	}
	for _, c := range story.CurrentChoices() {
		cont.Choices = append(cont.Choices, models.Choice{Text: c.Text, Tags: c.Tags, Index: c.Index})
	}
	if err := b.store(state, story); err != nil {
		return models.Continuation{}, err
	}
	state.Choices = cont.Choices
	return cont, nil
}

// ChooseOption continues until choices exist, then picks index.
func (b *NarrativeBridge) ChooseOption(ctx context.Context, state *models.NarrativeState, index int) error {
	story, err := b.restore(ctx, state)
	if err != nil {
		return err
	}
	for story.CanContinue() {
		if _, err := story.Continue(); err != nil {
			return fmt.Errorf("failed to continue story: %w", err)
		}
	}
	if err := story.ChooseChoiceIndex(index); err != nil {
		if errors.Is(err, narrative.ErrChoiceOutOfRange) {
			return fmt.Errorf("%w: %v", models.ErrInvalid, err)
		}
		return fmt.Errorf("failed to choose option %d: %w", index, err)
	}
	if err := b.store(state, story); err != nil {
		return err
	}
	state.Choices = nil
	return nil
}

// AchievementIDs extracts "achievement:<id>" tags, in order and without duplicates.
func AchievementIDs(lines []models.Line) []string {
	var ids []string
	seen := map[string]bool{}
	for _, l := range lines {
		for _, tag := range l.Tags {
			id, ok := strings.CutPrefix(strings.TrimSpace(tag), achievementTagPrefix)
			id = strings.TrimSpace(id)
			if !ok || id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// AwardAchievements grants every achievement tagged in lines to every player.
// Each (player, achievement) pair is tried once, concurrently; a failure is
// logged and counted and never affects the others. It returns what each user
// newly earned.
func (b *NarrativeBridge) AwardAchievements(ctx context.Context, storyID string, lines []models.Line, players []models.PlayerSlot) map[string][]models.Achievement {
	ids := AchievementIDs(lines)
	earned := make(map[string][]models.Achievement)
	if len(ids) == 0 {
		return earned
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, p := range players {
		if p.UserID == "" {
			continue
		}
		for _, id := range ids {
			g.Go(func() error {
				a, ok := b.award(ctx, storyID, id, p.UserID)
				if ok {
					mu.Lock()
					earned[p.UserID] = append(earned[p.UserID], *a)
					mu.Unlock()
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	for _, p := range players {
		list := earned[p.UserID]
		if len(list) == 0 {
			continue
		}
		if p.Connected() {
			event := models.NewEvent(constants.WSEventEarnAchievements, models.AchievementsEarned{Achievements: list})
			if err := b.fanout.SendOne(ctx, p.ConnectionID, event); err != nil {
				b.logger.Debug("Achievement notice not delivered", zap.String("userID", p.UserID), zap.Error(err))
			}
		}
		b.notify(ctx, p.UserID, list)
	}
	return earned
}

func (b *NarrativeBridge) award(ctx context.Context, storyID, achievementID, userID string) (*models.Achievement, bool) {
	log := b.logger.With(
		zap.String("storyID", storyID),
		zap.String("achievementID", achievementID),
		zap.String("userID", userID),
	)
	has, err := b.achievements.HasAward(ctx, achievementID, userID)
	if err != nil {
		log.Error("Failed to check achievement", zap.Error(err))
		achievementAwardsTotal.WithLabelValues("failed").Inc()
		return nil, false
	}
	if has {
		achievementAwardsTotal.WithLabelValues("skipped").Inc()
		return nil, false
	}
	a, err := b.achievements.Get(ctx, storyID, achievementID)
	if err != nil {
		log.Warn("Tagged achievement is not in the catalog", zap.Error(err))
		achievementAwardsTotal.WithLabelValues("failed").Inc()
		return nil, false
	}
	if err := b.achievements.Award(ctx, achievementID, storyID, userID); err != nil {
		log.Error("Failed to award achievement", zap.Error(err))
		achievementAwardsTotal.WithLabelValues("failed").Inc()
		return nil, false
	}
	achievementAwardsTotal.WithLabelValues("awarded").Inc()
	log.Info("Achievement awarded")
	return a, true
}

func (b *NarrativeBridge) notify(ctx context.Context, userID string, earned []models.Achievement) {
	if b.publisher == nil {
		return
	}
	for _, a := range earned {
		payload := models.PushNotificationPayload{
			UserID: userID,
			Notification: models.PushNotification{
				Title: "Succès débloqué",
				Body:  a.Title,
			},
			Data: map[string]string{
				"eventType":     constants.PushEventTypeAchievementEarned,
				"achievementId": a.ID,
				"storyId":       a.StoryID,
			},
		}
		if err := b.publisher.PublishPushNotification(ctx, payload); err != nil {
			b.logger.Warn("Failed to publish achievement notification",
				zap.String("userID", userID),
				zap.String("achievementID", a.ID),
				zap.Error(err),
			)
		}
	}
}
