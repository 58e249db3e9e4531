package models

import "time"

// GameSet best-of-N between the players of a lobby.
type GameSet struct {
	ID          string     `json:"id" db:"id"`
	GuildID     string     `json:"guildId" db:"guild_id"`
	LobbyID     *string    `json:"lobbyId,omitempty" db:"lobby_id"`
	FirstTo     int        `json:"firstTo" db:"first_to"`
	Ranked      bool       `json:"ranked" db:"ranked"`
	Bonus       bool       `json:"bonus" db:"bonus"`
	WinnerID    *string    `json:"winnerId,omitempty" db:"winner_id"`
	IsSurrender bool       `json:"isSurrender" db:"is_surrender"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty" db:"finished_at"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
}

// Finished reports whether a winner was recorded.
func (s GameSet) Finished() bool {
	return s.WinnerID != nil
}

type Game struct {
	ID        string    `json:"id" db:"id"`
	GameSetID string    `json:"gameSetId" db:"gameset_id"`
	Num       int       `json:"num" db:"num"`
	StageID   *string   `json:"stageId,omitempty" db:"stage_id"`
	WinnerID  *string   `json:"winnerId,omitempty" db:"winner_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Vote a player's claim about a game result.
type Vote string

const (
	VoteUndecided Vote = "UNDECIDED"
	VoteWin       Vote = "VOTED_WIN"
	VoteLoss      Vote = "VOTED_LOSS"
)

type GamePlayer struct {
	GameID      string  `json:"gameId" db:"game_id"`
	PlayerID    string  `json:"playerId" db:"player_id"`
	CharacterID *string `json:"characterId,omitempty" db:"character_id"`
	Picked      bool    `json:"picked" db:"picked"`
	BanTurn     bool    `json:"banTurn" db:"ban_turn"`
	Winner      Vote    `json:"winner" db:"winner"`
}

// StageBan append-only strike log.
type StageBan struct {
	GameID    string    `json:"gameId" db:"game_id"`
	PlayerID  string    `json:"playerId" db:"player_id"`
	StageID   string    `json:"stageId" db:"stage_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// SetHistory a finished ranked set seen from one player.
type SetHistory struct {
	GameSetID  string    `json:"gameSetId"`
	OpponentID string    `json:"opponentId"`
	Won        bool      `json:"won"`
	FinishedAt time.Time `json:"finishedAt"`
}
