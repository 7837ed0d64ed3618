package constants

// Inbound websocket actions.
const (
	WSActionCreateGameRoom   = "create-game-room"
	WSActionListGameRooms    = "list-game-rooms"
	WSActionRequestJoinRoom  = "request-join-room"
	WSActionRespondJoinRoom  = "respond-join-room"
	WSActionInviteToRoom     = "invite-to-room"
	WSActionLeaveGameRoom    = "leave-game-room"
	WSActionStartGame        = "start-game"
	WSActionVoteStory        = "vote-story"
	WSActionPlayerReady      = "player-ready"
	WSActionGameChoice       = "game-choice"
	WSActionGameJoinBack     = "game-join-back"
	WSActionSessionBroadcast = "session-broadcast"
	WSActionAbandonSession   = "abandon-session"
)

// Outbound websocket events.
const (
	WSEventUpdateGameRooms  = "update-game-rooms"
	WSEventGameRooms        = "game-rooms"
	WSEventRequestJoinRoom  = "request-join-room"
	WSEventRespondJoinRoom  = "respond-join-room"
	WSEventRoomInvite       = "room-invite"
	WSEventStartGame        = "start-game"
	WSEventStartStory       = "start-story"
	WSEventVoteStory        = "vote-story"
	WSEventPlayerReady      = "player-ready"
	WSEventGameRunning      = "game-running"
	WSEventGameContinue     = "game-continue"
	WSEventGameChoice       = "game-choice"
	WSEventGameEnded        = "game-ended"
	WSEventEarnAchievements = "earn-achievements"
	WSEventJoinRunningGame  = "join-running-game"
	WSEventUpdatePlayer     = "update-player"
	WSEventPlayerJoinLeft   = "player-join-left"
	WSEventSessionBroadcast = "session-broadcast"
	WSEventSessionAbandoned = "session-abandoned"
	WSEventClientUpdate     = "client-update"
	WSEventError            = "error"
)
