package domain

import "strings"

const (
	RoleMember = "MEMBER"
	RoleAdmin  = "ADMIN"
)

// Impact event types.
const (
	EventTypeHeart = "heart"
	EventTypeGems  = "gems"
)

const (
	MissionStatusUpcoming = "upcoming"
	MissionStatusActive   = "active"
	MissionStatusSuccess  = "success"
)

// Pub/sub topics. Chat topics are one per club: chat:{clubId}.
const (
	TopicChatPrefix      = "chat:"
	TopicMissionProgress = "mission:progress"
	TopicUserGems        = "user:gems"
)

// Socket events sent to clients.
const (
	SocketEventClubMessage     = "club:message"
	SocketEventMissionProgress = "mission:progress"
	SocketEventUserGems        = "user:gems"
	SocketEventError           = "error"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
	MaxMessageRunes = 4000
)

func ChatTopic(clubID string) string { return TopicChatPrefix + clubID }

// ClubFromTopic returns the club id of a chat topic.
func ClubFromTopic(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, TopicChatPrefix)
	return id, ok && id != ""
}

// Envelope is the frame published on the bus and written verbatim to sockets.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}
