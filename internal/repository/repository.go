package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rl-arena/ladder-backend/internal/models"
)

// ErrDuplicate a unique constraint rejected the write (e.g. a second lobby for the same player).
var ErrDuplicate = errors.New("duplicate row")

// Store runs units of work atomically. fn's error (or panic) rolls the whole unit back and is
// returned unmodified.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx repositories bound to one open transaction. Lookups return (nil, nil) for absent rows.
type Tx interface {
	Players() PlayerRepository
	Tiers() TierRepository
	Stages() StageRepository
	Ratings() RatingRepository
	Lobbies() LobbyRepository
	Sets() GameSetRepository
	Games() GameRepository
	Messages() MessageRepository
}

type PlayerRepository interface {
	FindOrCreatePlayer(ctx context.Context, externalID string) (*models.Player, error)
	FindOrCreateGuild(ctx context.Context, externalID string) (*models.Guild, error)
	FindProfile(ctx context.Context, playerID, guildID string) (*models.PlayerProfile, error)
	UpsertProfile(ctx context.Context, profile *models.PlayerProfile) error
}

type TierRepository interface {
	FindByID(ctx context.Context, id string) (*models.Tier, error)
	ListByGuild(ctx context.Context, guildID string) ([]models.Tier, error)
	Upsert(ctx context.Context, tier *models.Tier) error
}

type StageRepository interface {
	List(ctx context.Context) ([]models.Stage, error)
}

type RatingRepository interface {
	Find(ctx context.Context, playerID, guildID string) (*models.Rating, error)
	Upsert(ctx context.Context, rating *models.Rating) error
}

type LobbyRepository interface {
	// Create fails with ErrDuplicate when the creator already owns a lobby.
	Create(ctx context.Context, lobby *models.Lobby) error
	FindByID(ctx context.Context, id string) (*models.Lobby, error)
	FindByCreator(ctx context.Context, playerID string) (*models.Lobby, error)
	// FindByPlayer lobby in one of statuses where the player has a participant row.
	FindByPlayer(ctx context.Context, playerID string, statuses ...models.LobbyStatus) (*models.Lobby, error)
	// Lock re-reads the lobbies and holds row locks until the transaction ends. Missing ids are skipped.
	Lock(ctx context.Context, ids ...string) ([]models.Lobby, error)
	Update(ctx context.Context, lobby *models.Lobby) error
	// Delete cascades to participants, search targets and lobby messages, and detaches game sets.
	Delete(ctx context.Context, id string) error
	ListByStatus(ctx context.Context, status models.LobbyStatus, updatedBefore time.Time) ([]models.Lobby, error)

	ListPlayers(ctx context.Context, lobbyID string) ([]models.LobbyPlayer, error)
	FindPlayer(ctx context.Context, lobbyID, playerID string) (*models.LobbyPlayer, error)
	AddPlayer(ctx context.Context, player *models.LobbyPlayer) error
	UpdatePlayer(ctx context.Context, player *models.LobbyPlayer) error
	RemoveOtherPlayers(ctx context.Context, lobbyID, keepPlayerID string) error

	ListTiers(ctx context.Context, lobbyID string) ([]models.LobbyTier, error)
	AddTier(ctx context.Context, target *models.LobbyTier) error
	RemoveTier(ctx context.Context, lobbyID, tierID string) error
	RemoveTiers(ctx context.Context, lobbyID string) error

	// FindCandidates searching lobbies of the guild sharing one of tierIDs, strongest shared tier first,
	// then oldest search target.
	FindCandidates(ctx context.Context, guildID, excludeLobbyID string, tierIDs []string) ([]models.SearchCandidate, error)
	// FindRankedCandidates searching ranked lobbies of the guild, oldest first.
	FindRankedCandidates(ctx context.Context, guildID, excludeLobbyID string) ([]models.Lobby, error)
}

type GameSetRepository interface {
	Create(ctx context.Context, set *models.GameSet) error
	FindByID(ctx context.Context, id string) (*models.GameSet, error)
	// FindActiveByLobby set of the lobby without a winner.
	FindActiveByLobby(ctx context.Context, lobbyID string) (*models.GameSet, error)
	// FindLastByLobby most recently created set of the lobby.
	FindLastByLobby(ctx context.Context, lobbyID string) (*models.GameSet, error)
	// FindLastFinishedByLobby most recently finished set of the lobby.
	FindLastFinishedByLobby(ctx context.Context, lobbyID string) (*models.GameSet, error)
	Update(ctx context.Context, set *models.GameSet) error
	// Delete cascades to games.
	Delete(ctx context.Context, id string) error
	DetachLobby(ctx context.Context, lobbyID string) error
	ListUnfinished(ctx context.Context, createdBefore time.Time) ([]models.GameSet, error)
	// RankedHistory finished ranked sets of the player, newest first.
	RankedHistory(ctx context.Context, playerID, guildID string, since *time.Time, limit int) ([]models.SetHistory, error)
	CountRankedBetween(ctx context.Context, guildID, playerA, playerB string, since time.Time) (int, error)
}

type GameRepository interface {
	Create(ctx context.Context, game *models.Game) error
	// FindCurrent highest numbered game of the set.
	FindCurrent(ctx context.Context, setID string) (*models.Game, error)
	FindByNum(ctx context.Context, setID string, num int) (*models.Game, error)
	ListBySet(ctx context.Context, setID string) ([]models.Game, error)
	Update(ctx context.Context, game *models.Game) error
	// Delete cascades to game players, stage bans and game messages.
	Delete(ctx context.Context, id string) error

	ListPlayers(ctx context.Context, gameID string) ([]models.GamePlayer, error)
	AddPlayer(ctx context.Context, player *models.GamePlayer) error
	UpdatePlayer(ctx context.Context, player *models.GamePlayer) error

	ListBans(ctx context.Context, gameID string) ([]models.StageBan, error)
	AddBan(ctx context.Context, ban *models.StageBan) error
}

type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	ListByLobby(ctx context.Context, lobbyID string) ([]models.Message, error)
	ListByPlayer(ctx context.Context, playerID string, types ...models.MessageType) ([]models.Message, error)
	ListByGame(ctx context.Context, gameID string, playerID string, types ...models.MessageType) ([]models.Message, error)
	Delete(ctx context.Context, ids ...string) error
}
