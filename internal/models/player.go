package models

import "time"

// Player internal identity. ExternalID is the chat platform id, never interpreted by the engine.
type Player struct {
	ID         string    `json:"id" db:"id"`
	ExternalID string    `json:"externalId" db:"external_id"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// Guild a community players search in.
type Guild struct {
	ID         string    `json:"id" db:"id"`
	ExternalID string    `json:"externalId" db:"external_id"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// PlayerProfile per (player, guild) capabilities used by the eligibility rules.
type PlayerProfile struct {
	PlayerID   string `json:"playerId" db:"player_id"`
	GuildID    string `json:"guildId" db:"guild_id"`
	Cable      bool   `json:"cable" db:"cable"`
	YuzuHost   bool   `json:"yuzuHost" db:"yuzu_host"`
	YuzuClient bool   `json:"yuzuClient" db:"yuzu_client"`
}

// HasYuzu reports whether the player can take part in cross-platform matches at all.
func (p PlayerProfile) HasYuzu() bool {
	return p.YuzuHost || p.YuzuClient
}

type UpdateProfileRequest struct {
	Cable      bool `json:"cable"`
	YuzuHost   bool `json:"yuzuHost"`
	YuzuClient bool `json:"yuzuClient"`
}
