package models

// PushNotificationPayload is published to the push notification queue.
type PushNotificationPayload struct {
	UserID       string            `json:"user_id"`
	Notification PushNotification  `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

// PushNotification is what the device displays.
type PushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ClientUpdate is published by other services to reach a user's live connection.
type ClientUpdate struct {
	UserID  string      `json:"user_id"`
	Action  string      `json:"action"`
	Payload interface{} `json:"payload,omitempty"`
}
