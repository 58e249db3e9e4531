package models

import "time"

type EventType string

const (
	EventLobbyMatched  EventType = "lobby.matched"
	EventLobbyReady    EventType = "lobby.ready"
	EventLobbyDeclined EventType = "lobby.declined"
	EventGameUpdated   EventType = "game.updated"
	EventSetFinished   EventType = "set.finished"
	EventSetCancelled  EventType = "set.cancelled"
)

// Event a committed state transition pushed to connected adapters.
type Event struct {
	Type      EventType `json:"type"`
	GuildID   string    `json:"guildId"`
	LobbyID   string    `json:"lobbyId,omitempty"`
	GameSetID string    `json:"gameSetId,omitempty"`
	GameID    string    `json:"gameId,omitempty"`
	PlayerIDs []string  `json:"playerIds,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
