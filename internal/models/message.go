package models

import "time"

type MessageType string

const (
	MessageLobbyTier           MessageType = "LOBBY_TIER"
	MessageLobbyPlayer         MessageType = "LOBBY_PLAYER"
	MessageGuildTierSearch     MessageType = "GUILD_TIER_SEARCH"
	MessageGameCharacterSelect MessageType = "GAME_CHARACTER_SELECT"
	MessageLobbyPlayerAFK      MessageType = "LOBBY_PLAYER_AFK"
	MessageLobbyPlayerGuild    MessageType = "LOBBY_PLAYER_GUILD"
)

// Message a platform message the adapter sent and may have to delete later.
type Message struct {
	ID        string      `json:"id" db:"id"`
	GuildID   string      `json:"guildId" db:"guild_id"`
	ChannelID string      `json:"channelId" db:"channel_id"`
	Type      MessageType `json:"type" db:"type"`
	PlayerID  *string     `json:"playerId,omitempty" db:"player_id"`
	LobbyID   *string     `json:"lobbyId,omitempty" db:"lobby_id"`
	TierID    *string     `json:"tierId,omitempty" db:"tier_id"`
	GameID    *string     `json:"gameId,omitempty" db:"game_id"`
	CreatedAt time.Time   `json:"createdAt" db:"created_at"`
}

// ExclusionEntry "will not be matched with" record until ExpiresAt.
type ExclusionEntry struct {
	PlayerID         string    `json:"playerId"`
	ExcludedPlayerID string    `json:"excludedPlayerId"`
	ExpiresAt        time.Time `json:"expiresAt"`
}
