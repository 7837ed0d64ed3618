package constants

// Push notification kinds published to the notification queue.
const (
	PushEventTypeAchievementEarned = "achievement_earned"
)
