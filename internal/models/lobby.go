package models

import "time"

type LobbyStatus string

const (
	LobbyStatusSearching    LobbyStatus = "SEARCHING"
	LobbyStatusWaiting      LobbyStatus = "WAITING"
	LobbyStatusConfirmation LobbyStatus = "CONFIRMATION"
	LobbyStatusAccepted     LobbyStatus = "ACCEPTED"
	LobbyStatusPlaying      LobbyStatus = "PLAYING"
	LobbyStatusAFK          LobbyStatus = "AFK"
)

type LobbyMode string

const (
	LobbyModeFriendlies LobbyMode = "FRIENDLIES"
	LobbyModeRanked     LobbyMode = "RANKED"
)

// Lobby at most one per player (CreatedBy).
type Lobby struct {
	ID             string      `json:"id" db:"id"`
	GuildID        string      `json:"guildId" db:"guild_id"`
	CreatedBy      string      `json:"createdBy" db:"created_by"`
	Status         LobbyStatus `json:"status" db:"status"`
	Mode           LobbyMode   `json:"mode" db:"mode"`
	Ranked         bool        `json:"ranked" db:"ranked"`
	Bonus          bool        `json:"bonus" db:"bonus"`
	TextChannelID  *string     `json:"textChannelId,omitempty" db:"text_channel_id"`
	VoiceChannelID *string     `json:"voiceChannelId,omitempty" db:"voice_channel_id"`
	CreatedAt      time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time   `json:"updatedAt" db:"updated_at"`
}

// LobbyPlayer participant row of a lobby.
type LobbyPlayer struct {
	LobbyID    string      `json:"lobbyId" db:"lobby_id"`
	PlayerID   string      `json:"playerId" db:"player_id"`
	Status     LobbyStatus `json:"status" db:"status"`
	NewSetBo3  bool        `json:"newSetBo3" db:"new_set_bo3"`
	NewSetBo5  bool        `json:"newSetBo5" db:"new_set_bo5"`
	CancelSet  bool        `json:"cancelSet" db:"cancel_set"`
	AcceptedAt *time.Time  `json:"acceptedAt,omitempty" db:"accepted_at"`
	CreatedAt  time.Time   `json:"createdAt" db:"created_at"`
}

// ClearVotes resets the transient vote flags.
func (lp *LobbyPlayer) ClearVotes() {
	lp.NewSetBo3 = false
	lp.NewSetBo5 = false
	lp.CancelSet = false
}

// LobbyTier a search target: the lobby is searching this tier.
type LobbyTier struct {
	LobbyID   string    `json:"lobbyId" db:"lobby_id"`
	TierID    string    `json:"tierId" db:"tier_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// SearchCandidate a searching lobby sharing a tier with the caller.
type SearchCandidate struct {
	Lobby    Lobby     `json:"lobby"`
	PlayerID string    `json:"playerId"`
	TierID   string    `json:"tierId"`
	Weight   *int      `json:"weight,omitempty"`
	Since    time.Time `json:"since"`
}
