package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/repository"
)

// SetState a set with its current game.
type SetState struct {
	Set       models.GameSet      `json:"set"`
	Game      *models.Game        `json:"game,omitempty"`
	Players   []models.GamePlayer `json:"players"`
	Bans      []models.StageBan   `json:"bans"`
	Available []models.Stage      `json:"available"`
	Wins      map[string]int      `json:"wins"`
}

// SetResult outcome of a set or game action.
type SetResult struct {
	State    *SetState        `json:"state,omitempty"`
	Conflict bool             `json:"conflict"`
	Finished bool             `json:"finished"`
	Ratings  []RatingChange   `json:"ratings,omitempty"`
	Messages []models.Message `json:"messages,omitempty"`
}

type CancelResult struct {
	Set       models.GameSet `json:"set"`
	Cancelled bool           `json:"cancelled"`
	Pending   []string       `json:"pending,omitempty"`
}

type RematchResult struct {
	Started bool      `json:"started"`
	State   *SetState `json:"state,omitempty"`
	Pending []string  `json:"pending,omitempty"`
}

// SetService best-of-N sets: strikes, picks, result votes, surrender, remake and rematches.
type SetService struct {
	*core
	ratings *RatingService
}

func newSetService(c *core, ratings *RatingService) *SetService {
	return &SetService{core: c, ratings: ratings}
}

// play the caller's active set and current game, loaded under the lobby row lock.
type play struct {
	lobby   models.Lobby
	set     models.GameSet
	game    models.Game
	players []models.GamePlayer
	me      int
}

func (p *play) opp() int {
	return 1 - p.me
}

func (p *play) ids() []string {
	return []string{p.players[0].PlayerID, p.players[1].PlayerID}
}

// playingLobby the PLAYING lobby of guildID the player takes part in, row-locked.
func playingLobby(ctx context.Context, tx repository.Tx, guildID, playerID string) (*models.Lobby, error) {
	lobby, err := tx.Lobbies().FindByPlayer(ctx, playerID, models.LobbyStatusPlaying)
	if err != nil {
		return nil, fmt.Errorf("failed to find lobby: %w", err)
	}
	if lobby == nil || lobby.GuildID != guildID {
		return nil, notFound("lobby", "playing "+playerID)
	}
	locked, err := tx.Lobbies().Lock(ctx, lobby.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock lobby: %w", err)
	}
	if len(locked) == 0 || locked[0].Status != models.LobbyStatusPlaying {
		return nil, notFound("lobby", "playing "+playerID)
	}
	return &locked[0], nil
}

// activeSet the unfinished set of the lobby; AlreadyFinished when only finished sets exist.
func activeSet(ctx context.Context, tx repository.Tx, lobbyID string) (*models.GameSet, error) {
	set, err := tx.Sets().FindActiveByLobby(ctx, lobbyID)
	if err != nil {
		return nil, fmt.Errorf("failed to find active set: %w", err)
	}
	if set != nil {
		return set, nil
	}
	last, err := tx.Sets().FindLastByLobby(ctx, lobbyID)
	if err != nil {
		return nil, fmt.Errorf("failed to find last set: %w", err)
	}
	if last != nil && last.Finished() {
		return nil, ErrAlreadyFinished
	}
	return nil, notFound("set", lobbyID)
}

func (s *SetService) current(ctx context.Context, tx repository.Tx, guildID, playerID string) (*play, error) {
	lobby, err := playingLobby(ctx, tx, guildID, playerID)
	if err != nil {
		return nil, err
	}
	set, err := activeSet(ctx, tx, lobby.ID)
	if err != nil {
		return nil, err
	}
	game, err := tx.Games().FindCurrent(ctx, set.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find current game: %w", err)
	}
	if game == nil {
		return nil, notFound("game", set.ID)
	}
	players, err := tx.Games().ListPlayers(ctx, game.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list game players: %w", err)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].PlayerID < players[j].PlayerID })

	p := &play{lobby: *lobby, set: *set, game: *game, players: players, me: -1}
	for i, gp := range players {
		if gp.PlayerID == playerID {
			p.me = i
		}
	}
	if p.me < 0 || len(players) != 2 {
		return nil, notFound("game player", playerID)
	}
	return p, nil
}

func (s *SetService) savePlayers(ctx context.Context, tx repository.Tx, players []models.GamePlayer) error {
	for i := range players {
		if err := tx.Games().UpdatePlayer(ctx, &players[i]); err != nil {
			return fmt.Errorf("failed to update game player: %w", err)
		}
	}
	return nil
}

// sortedLobbyPlayers participants ordered by join time.
func sortedLobbyPlayers(ctx context.Context, tx repository.Tx, lobbyID string) ([]models.LobbyPlayer, error) {
	players, err := tx.Lobbies().ListPlayers(ctx, lobbyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lobby players: %w", err)
	}
	sort.SliceStable(players, func(i, j int) bool { return players[i].CreatedAt.Before(players[j].CreatedAt) })
	return players, nil
}

func clearVotes(ctx context.Context, tx repository.Tx, lobbyID string) error {
	players, err := tx.Lobbies().ListPlayers(ctx, lobbyID)
	if err != nil {
		return fmt.Errorf("failed to list lobby players: %w", err)
	}
	for _, lp := range players {
		lp.ClearVotes()
		if err := tx.Lobbies().UpdatePlayer(ctx, &lp); err != nil {
			return fmt.Errorf("failed to update lobby player: %w", err)
		}
	}
	return nil
}

// StartSet opens a best-of-bestOf set in a PLAYING lobby.
func (s *SetService) StartSet(ctx context.Context, guildID, lobbyID string, bestOf int) (*SetState, error) {
	var state *SetState
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		lobby, err := lockLobby(ctx, tx, guildID, lobbyID)
		if err != nil {
			return err
		}
		set, err := s.startSet(ctx, tx, *lobby, bestOf)
		if err != nil {
			return err
		}
		state, err = s.loadState(ctx, tx, *set)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publishGame(ctx, state)
	return state, nil
}

func (s *SetService) startSet(ctx context.Context, tx repository.Tx, lobby models.Lobby, bestOf int) (*models.GameSet, error) {
	if bestOf < 1 || bestOf > 9 || bestOf%2 == 0 {
		return nil, invalidAction(fmt.Sprintf("best of %d is not an odd number between 1 and 9", bestOf))
	}
	if lobby.Status != models.LobbyStatusPlaying {
		return nil, cannotSearch(lobby.Status, "start set")
	}
	active, err := tx.Sets().FindActiveByLobby(ctx, lobby.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find active set: %w", err)
	}
	if active != nil {
		return nil, invalidAction("a set is already in progress")
	}
	lobbyPlayers, err := sortedLobbyPlayers(ctx, tx, lobby.ID)
	if err != nil {
		return nil, err
	}
	if len(lobbyPlayers) != 2 {
		return nil, invalidAction("a set needs exactly two players")
	}
	ids := playerIDs(lobbyPlayers)

	previous, err := tx.Sets().FindLastByLobby(ctx, lobby.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find last set: %w", err)
	}
	striker, err := s.firstStriker(ctx, tx, previous, ids)
	if err != nil {
		return nil, err
	}

	ranked, err := s.rankedAllowed(ctx, tx, lobby, ids)
	if err != nil {
		return nil, err
	}

	lobbyID := lobby.ID
	set := &models.GameSet{
		GuildID: lobby.GuildID,
		LobbyID: &lobbyID,
		FirstTo: firstTo(bestOf),
		Ranked:  ranked,
		Bonus:   ranked && lobby.Bonus,
	}
	if err := tx.Sets().Create(ctx, set); err != nil {
		return nil, fmt.Errorf("failed to create set: %w", err)
	}
	if _, err := s.createGame(ctx, tx, set.ID, 1, striker, ids, nil); err != nil {
		return nil, err
	}
	if err := clearVotes(ctx, tx, lobby.ID); err != nil {
		return nil, err
	}

	s.logger.Info("Set started",
		zap.String("setId", set.ID),
		zap.String("lobbyId", lobby.ID),
		zap.Int("firstTo", set.FirstTo),
		zap.Bool("ranked", set.Ranked))
	return set, nil
}

// rankedAllowed a ranked lobby plays ranked sets until the pair reached the daily limit, then friendlies.
func (s *SetService) rankedAllowed(ctx context.Context, tx repository.Tx, lobby models.Lobby, ids []string) (bool, error) {
	if lobby.Mode != models.LobbyModeRanked {
		return false, nil
	}
	played, err := tx.Sets().CountRankedBetween(ctx, lobby.GuildID, ids[0], ids[1], startOfDay(s.now()))
	if err != nil {
		return false, fmt.Errorf("failed to count ranked sets: %w", err)
	}
	if played >= s.opts.RankedDailySetLimit {
		s.logger.Info("Daily ranked limit reached, set is unranked",
			zap.String("lobbyId", lobby.ID),
			zap.Int("played", played))
		return false, nil
	}
	return true, nil
}

// firstStriker the loser of the previous set's last game, or a random participant.
func (s *SetService) firstStriker(ctx context.Context, tx repository.Tx, previous *models.GameSet, ids []string) (string, error) {
	if previous != nil && previous.Finished() {
		last, err := tx.Games().FindCurrent(ctx, previous.ID)
		if err != nil {
			return "", fmt.Errorf("failed to find last game: %w", err)
		}
		if last != nil && last.WinnerID != nil {
			for _, id := range ids {
				if id != *last.WinnerID {
					return id, nil
				}
			}
		}
	}
	return ids[s.opts.Random(len(ids))], nil
}

// createGame game num with striker holding the first turn. characters carries picks forward.
func (s *SetService) createGame(ctx context.Context, tx repository.Tx, setID string, num int, striker string, ids []string, characters map[string]*string) (*models.Game, error) {
	game := &models.Game{GameSetID: setID, Num: num}

	stages, err := tx.Stages().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	if pool := stagePool(stages, num); num == 1 && len(pool) == 1 {
		game.StageID = &pool[0].ID
		striker = ""
	}

	if err := tx.Games().Create(ctx, game); err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}
	for _, id := range ids {
		if err := tx.Games().AddPlayer(ctx, &models.GamePlayer{
			GameID:      game.ID,
			PlayerID:    id,
			CharacterID: characters[id],
			BanTurn:     id == striker,
			Winner:      models.VoteUndecided,
		}); err != nil {
			return nil, fmt.Errorf("failed to add game player: %w", err)
		}
	}
	return game, nil
}

// gameOneCharacters characters picked in game 1 of the set.
func (s *SetService) gameOneCharacters(ctx context.Context, tx repository.Tx, setID string) (map[string]*string, error) {
	first, err := tx.Games().FindByNum(ctx, setID, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to find game 1: %w", err)
	}
	if first == nil {
		return nil, nil
	}
	players, err := tx.Games().ListPlayers(ctx, first.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list game players: %w", err)
	}
	characters := make(map[string]*string, len(players))
	for _, gp := range players {
		characters[gp.PlayerID] = gp.CharacterID
	}
	return characters, nil
}

func (s *SetService) loadState(ctx context.Context, tx repository.Tx, set models.GameSet) (*SetState, error) {
	games, err := tx.Games().ListBySet(ctx, set.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	state := &SetState{Set: set, Wins: winsByPlayer(games)}
	if len(games) == 0 {
		return state, nil
	}
	game := games[len(games)-1]
	state.Game = &game

	if state.Players, err = tx.Games().ListPlayers(ctx, game.ID); err != nil {
		return nil, fmt.Errorf("failed to list game players: %w", err)
	}
	sort.Slice(state.Players, func(i, j int) bool { return state.Players[i].PlayerID < state.Players[j].PlayerID })
	if state.Bans, err = tx.Games().ListBans(ctx, game.ID); err != nil {
		return nil, fmt.Errorf("failed to list stage bans: %w", err)
	}
	if game.StageID == nil {
		stages, err := tx.Stages().List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list stages: %w", err)
		}
		state.Available = available(stagePool(stages, game.Num), state.Bans)
	}
	return state, nil
}

// State the set currently played by the player.
func (s *SetService) State(ctx context.Context, guildID, playerID string) (*SetState, error) {
	var state *SetState
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		lobby, err := playingLobby(ctx, tx, guildID, playerID)
		if err != nil {
			return err
		}
		set, err := tx.Sets().FindLastByLobby(ctx, lobby.ID)
		if err != nil {
			return fmt.Errorf("failed to find last set: %w", err)
		}
		if set == nil {
			return notFound("set", lobby.ID)
		}
		state, err = s.loadState(ctx, tx, *set)
		return err
	})
	return state, err
}

// gameAction runs fn on the caller's current game and returns the refreshed state.
func (s *SetService) gameAction(ctx context.Context, guildID, playerID string, fn func(ctx context.Context, tx repository.Tx, p *play, result *SetResult) error) (*SetResult, error) {
	result := &SetResult{}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		*result = SetResult{}
		p, err := s.current(ctx, tx, guildID, playerID)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, p, result); err != nil {
			return err
		}
		set, err := tx.Sets().FindByID(ctx, p.set.ID)
		if err != nil {
			return fmt.Errorf("failed to reload set: %w", err)
		}
		result.State, err = s.loadState(ctx, tx, *set)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Finished {
		s.publish(ctx, models.Event{
			Type:      models.EventSetFinished,
			GuildID:   result.State.Set.GuildID,
			LobbyID:   deref(result.State.Set.LobbyID),
			GameSetID: result.State.Set.ID,
		})
	} else {
		s.publishGame(ctx, result.State)
	}
	return result, nil
}

func (s *SetService) publishGame(ctx context.Context, state *SetState) {
	event := models.Event{
		Type:      models.EventGameUpdated,
		GuildID:   state.Set.GuildID,
		LobbyID:   deref(state.Set.LobbyID),
		GameSetID: state.Set.ID,
	}
	if state.Game != nil {
		event.GameID = state.Game.ID
	}
	s.publish(ctx, event)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Ban strikes stageID for the current game.
func (s *SetService) Ban(ctx context.Context, guildID, playerID, stageID string) (*SetResult, error) {
	return s.gameAction(ctx, guildID, playerID, func(ctx context.Context, tx repository.Tx, p *play, _ *SetResult) error {
		if p.game.StageID != nil {
			return invalidAction("stage already selected")
		}
		if !p.players[p.me].BanTurn {
			return invalidAction("not your turn to strike")
		}
		bans, err := tx.Games().ListBans(ctx, p.game.ID)
		if err != nil {
			return fmt.Errorf("failed to list stage bans: %w", err)
		}
		if p.game.Num > 1 && len(bans) >= counterpickBans {
			return invalidAction("strikes are over, pick a stage")
		}
		stages, err := tx.Stages().List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list stages: %w", err)
		}
		pool := stagePool(stages, p.game.Num)
		if !containsStage(available(pool, bans), stageID) {
			return invalidAction("stage " + stageID + " is not available")
		}

		ban := models.StageBan{GameID: p.game.ID, PlayerID: playerID, StageID: stageID}
		if err := tx.Games().AddBan(ctx, &ban); err != nil {
			return fmt.Errorf("failed to add stage ban: %w", err)
		}
		bans = append(bans, ban)

		outcome := nextStrike(p.game.Num, len(bans), available(pool, bans))
		switch {
		case outcome.AutoStage != "":
			p.game.StageID = &outcome.AutoStage
			if err := tx.Games().Update(ctx, &p.game); err != nil {
				return fmt.Errorf("failed to update game: %w", err)
			}
			for i := range p.players {
				p.players[i].BanTurn = false
			}
		case outcome.FlipTurn:
			p.players[p.me].BanTurn = false
			p.players[p.opp()].BanTurn = true
		}
		return s.savePlayers(ctx, tx, p.players)
	})
}

// PickStage counterpick after the winner's strikes (games 2 and later).
func (s *SetService) PickStage(ctx context.Context, guildID, playerID, stageID string) (*SetResult, error) {
	return s.gameAction(ctx, guildID, playerID, func(ctx context.Context, tx repository.Tx, p *play, _ *SetResult) error {
		if p.game.StageID != nil {
			return invalidAction("stage already selected")
		}
		if p.game.Num == 1 {
			return invalidAction("game 1 stage is decided by strikes")
		}
		bans, err := tx.Games().ListBans(ctx, p.game.ID)
		if err != nil {
			return fmt.Errorf("failed to list stage bans: %w", err)
		}
		if len(bans) < counterpickBans {
			return invalidAction("strikes are not over")
		}
		if !p.players[p.me].BanTurn {
			return invalidAction("not your turn to pick")
		}
		stages, err := tx.Stages().List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list stages: %w", err)
		}
		if !containsStage(available(stagePool(stages, p.game.Num), bans), stageID) {
			return invalidAction("stage " + stageID + " is not available")
		}

		p.game.StageID = &stageID
		if err := tx.Games().Update(ctx, &p.game); err != nil {
			return fmt.Errorf("failed to update game: %w", err)
		}
		for i := range p.players {
			p.players[i].BanTurn = false
		}
		return s.savePlayers(ctx, tx, p.players)
	})
}

// PickCharacter blind pick: the opponent's pick stays hidden until both committed.
func (s *SetService) PickCharacter(ctx context.Context, guildID, playerID, characterID string) (*SetResult, error) {
	return s.gameAction(ctx, guildID, playerID, func(ctx context.Context, tx repository.Tx, p *play, result *SetResult) error {
		if p.game.StageID == nil {
			return invalidAction("stage not selected")
		}
		me, opp := &p.players[p.me], p.players[p.opp()]
		if me.Picked && p.set.Ranked {
			return invalidAction("character already picked")
		}
		if p.game.Num > 1 && !opp.Picked {
			prompts, err := tx.Messages().ListByGame(ctx, p.game.ID, opp.PlayerID, models.MessageGameCharacterSelect)
			if err != nil {
				return fmt.Errorf("failed to list pick prompts: %w", err)
			}
			if len(prompts) > 0 {
				return invalidAction("waiting for the opponent's pick")
			}
		}

		me.CharacterID = &characterID
		me.Picked = true
		if err := tx.Games().UpdatePlayer(ctx, me); err != nil {
			return fmt.Errorf("failed to update game player: %w", err)
		}

		prompts, err := tx.Messages().ListByGame(ctx, p.game.ID, playerID, models.MessageGameCharacterSelect)
		if err != nil {
			return fmt.Errorf("failed to list pick prompts: %w", err)
		}
		result.Messages, err = takeMessages(ctx, tx, prompts)
		return err
	})
}

// VoteWinner records the player's claim for game num (0: current game).
func (s *SetService) VoteWinner(ctx context.Context, guildID, playerID string, num int, won bool) (*SetResult, error) {
	return s.gameAction(ctx, guildID, playerID, func(ctx context.Context, tx repository.Tx, p *play, result *SetResult) error {
		if num > 0 && num != p.game.Num {
			game, err := tx.Games().FindByNum(ctx, p.set.ID, num)
			if err != nil {
				return fmt.Errorf("failed to find game: %w", err)
			}
			if game == nil {
				return notFound("game", fmt.Sprintf("%s #%d", p.set.ID, num))
			}
			if game.WinnerID != nil {
				return ErrAlreadyWinner
			}
		}
		if p.game.WinnerID != nil {
			return ErrAlreadyWinner
		}
		if p.game.StageID == nil || p.players[0].CharacterID == nil || p.players[1].CharacterID == nil {
			return invalidAction("game is not ready for a result")
		}

		me := &p.players[p.me]
		me.Winner = models.VoteLoss
		if won {
			me.Winner = models.VoteWin
		}
		if err := tx.Games().UpdatePlayer(ctx, me); err != nil {
			return fmt.Errorf("failed to update game player: %w", err)
		}

		winnerID, conflict := calculateWinner(p.players)
		result.Conflict = conflict
		if winnerID == "" {
			return nil
		}
		return s.applyGameWinner(ctx, tx, p, winnerID, false, result)
	})
}

// applyGameWinner closes the current game. The set finishes on firstTo wins or surrender, otherwise
// the next game starts with the winner striking.
func (s *SetService) applyGameWinner(ctx context.Context, tx repository.Tx, p *play, winnerID string, surrender bool, result *SetResult) error {
	p.game.WinnerID = &winnerID
	if err := tx.Games().Update(ctx, &p.game); err != nil {
		return fmt.Errorf("failed to update game: %w", err)
	}
	loserID := ""
	for i := range p.players {
		gp := &p.players[i]
		if gp.PlayerID == winnerID {
			continue
		}
		loserID = gp.PlayerID
		if gp.Winner == models.VoteUndecided || surrender {
			gp.Winner = models.VoteLoss
		}
	}
	if err := s.savePlayers(ctx, tx, p.players); err != nil {
		return err
	}

	games, err := tx.Games().ListBySet(ctx, p.set.ID)
	if err != nil {
		return fmt.Errorf("failed to list games: %w", err)
	}
	if surrender || winsByPlayer(games)[winnerID] >= p.set.FirstTo {
		result.Finished = true
		result.Ratings, err = s.finishSet(ctx, tx, p, winnerID, loserID, surrender)
		return err
	}

	characters, err := s.gameOneCharacters(ctx, tx, p.set.ID)
	if err != nil {
		return err
	}
	_, err = s.createGame(ctx, tx, p.set.ID, p.game.Num+1, winnerID, p.ids(), characters)
	return err
}

func (s *SetService) finishSet(ctx context.Context, tx repository.Tx, p *play, winnerID, loserID string, surrender bool) ([]RatingChange, error) {
	now := s.now()
	p.set.WinnerID = &winnerID
	p.set.FinishedAt = &now
	p.set.IsSurrender = surrender
	if err := tx.Sets().Update(ctx, &p.set); err != nil {
		return nil, fmt.Errorf("failed to finish set: %w", err)
	}
	if err := clearVotes(ctx, tx, p.lobby.ID); err != nil {
		return nil, err
	}

	s.logger.Info("Set finished",
		zap.String("setId", p.set.ID),
		zap.String("winnerId", winnerID),
		zap.Bool("surrender", surrender))

	if !p.set.Ranked {
		return nil, nil
	}
	return s.ratings.applySetResult(ctx, tx, p.set, winnerID, loserID)
}

// Surrender the player concedes the current game and the set.
func (s *SetService) Surrender(ctx context.Context, guildID, playerID string) (*SetResult, error) {
	return s.gameAction(ctx, guildID, playerID, func(ctx context.Context, tx repository.Tx, p *play, result *SetResult) error {
		return s.applyGameWinner(ctx, tx, p, p.players[p.opp()].PlayerID, true, result)
	})
}

// ForceSurrender moderation: playerID is made to concede.
func (s *SetService) ForceSurrender(ctx context.Context, guildID, playerID string) (*SetResult, error) {
	s.logger.Info("Forced surrender", zap.String("playerId", playerID))
	return s.Surrender(ctx, guildID, playerID)
}

// Remake recreates the current game from scratch. Players, carried characters and the striker rule stay.
func (s *SetService) Remake(ctx context.Context, guildID, playerID string) (*SetResult, error) {
	return s.gameAction(ctx, guildID, playerID, func(ctx context.Context, tx repository.Tx, p *play, result *SetResult) error {
		messages, err := tx.Messages().ListByGame(ctx, p.game.ID, "")
		if err != nil {
			return fmt.Errorf("failed to list game messages: %w", err)
		}
		if result.Messages, err = takeMessages(ctx, tx, messages); err != nil {
			return err
		}
		if err := tx.Games().Delete(ctx, p.game.ID); err != nil {
			return fmt.Errorf("failed to delete game: %w", err)
		}

		ids := p.ids()
		var striker string
		var characters map[string]*string
		if p.game.Num == 1 {
			previous, err := tx.Sets().FindLastFinishedByLobby(ctx, p.lobby.ID)
			if err != nil {
				return fmt.Errorf("failed to find previous set: %w", err)
			}
			if striker, err = s.firstStriker(ctx, tx, previous, ids); err != nil {
				return err
			}
		} else {
			previous, err := tx.Games().FindByNum(ctx, p.set.ID, p.game.Num-1)
			if err != nil {
				return fmt.Errorf("failed to find previous game: %w", err)
			}
			if previous != nil && previous.WinnerID != nil {
				striker = *previous.WinnerID
			}
			if characters, err = s.gameOneCharacters(ctx, tx, p.set.ID); err != nil {
				return err
			}
		}
		_, err = s.createGame(ctx, tx, p.set.ID, p.game.Num, striker, ids, characters)
		return err
	})
}

// VoteCancelSet the set is cancelled once every participant voted for it.
func (s *SetService) VoteCancelSet(ctx context.Context, guildID, playerID string) (*CancelResult, error) {
	var result *CancelResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		lobby, err := playingLobby(ctx, tx, guildID, playerID)
		if err != nil {
			return err
		}
		set, err := activeSet(ctx, tx, lobby.ID)
		if err != nil {
			return err
		}
		result = &CancelResult{Set: *set}

		lp, err := tx.Lobbies().FindPlayer(ctx, lobby.ID, playerID)
		if err != nil {
			return fmt.Errorf("failed to find lobby player: %w", err)
		}
		if lp == nil {
			return notFound("lobby player", playerID)
		}
		lp.CancelSet = true
		if err := tx.Lobbies().UpdatePlayer(ctx, lp); err != nil {
			return fmt.Errorf("failed to update lobby player: %w", err)
		}

		players, err := tx.Lobbies().ListPlayers(ctx, lobby.ID)
		if err != nil {
			return fmt.Errorf("failed to list lobby players: %w", err)
		}
		for _, p := range players {
			if !p.CancelSet {
				result.Pending = append(result.Pending, p.PlayerID)
			}
		}
		if len(result.Pending) > 0 {
			return nil
		}

		result.Cancelled = true
		if err := tx.Sets().Delete(ctx, set.ID); err != nil {
			return fmt.Errorf("failed to cancel set: %w", err)
		}
		return clearVotes(ctx, tx, lobby.ID)
	})
	if err != nil {
		return nil, err
	}
	if result.Cancelled {
		s.publishCancelled(ctx, result.Set)
	}
	return result, nil
}

func (s *SetService) publishCancelled(ctx context.Context, set models.GameSet) {
	s.logger.Info("Set cancelled", zap.String("setId", set.ID))
	s.publish(ctx, models.Event{
		Type:      models.EventSetCancelled,
		GuildID:   set.GuildID,
		LobbyID:   deref(set.LobbyID),
		GameSetID: set.ID,
	})
}

// CancelSet removes an unfinished set without votes (scheduler, moderation).
func (s *SetService) CancelSet(ctx context.Context, guildID, setID string) (*models.GameSet, error) {
	var set *models.GameSet
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		found, err := tx.Sets().FindByID(ctx, setID)
		if err != nil {
			return fmt.Errorf("failed to find set: %w", err)
		}
		if found == nil || found.GuildID != guildID {
			return notFound("set", setID)
		}
		set, err = s.cancelSet(ctx, tx, setID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publishCancelled(ctx, *set)
	return set, nil
}

func (s *SetService) cancelSet(ctx context.Context, tx repository.Tx, setID string) (*models.GameSet, error) {
	set, err := tx.Sets().FindByID(ctx, setID)
	if err != nil {
		return nil, fmt.Errorf("failed to find set: %w", err)
	}
	if set == nil {
		return nil, notFound("set", setID)
	}
	if set.Finished() {
		return nil, ErrAlreadyFinished
	}
	if err := tx.Sets().Delete(ctx, setID); err != nil {
		return nil, fmt.Errorf("failed to cancel set: %w", err)
	}
	if set.LobbyID != nil {
		if err := clearVotes(ctx, tx, *set.LobbyID); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// CancelStaleSets cancels every unfinished set created more than olderThan ago.
func (s *SetService) CancelStaleSets(ctx context.Context, olderThan time.Duration) ([]models.GameSet, error) {
	var cancelled []models.GameSet
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		cancelled = nil
		stale, err := tx.Sets().ListUnfinished(ctx, s.now().Add(-olderThan))
		if err != nil {
			return fmt.Errorf("failed to list unfinished sets: %w", err)
		}
		for _, set := range stale {
			if _, err := s.cancelSet(ctx, tx, set.ID); err != nil {
				return err
			}
			cancelled = append(cancelled, set)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, set := range cancelled {
		s.publishCancelled(ctx, set)
	}
	return cancelled, nil
}

// VoteRematch after a finished set: a new set starts once every participant voted the same bestOf.
func (s *SetService) VoteRematch(ctx context.Context, guildID, playerID string, bestOf int) (*RematchResult, error) {
	if bestOf != 3 && bestOf != 5 {
		return nil, invalidAction(fmt.Sprintf("rematch must be best of 3 or 5, got %d", bestOf))
	}
	var result *RematchResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		lobby, err := playingLobby(ctx, tx, guildID, playerID)
		if err != nil {
			return err
		}
		_, err = activeSet(ctx, tx, lobby.ID)
		switch {
		case err == nil:
			return invalidAction("a set is in progress")
		case errors.Is(err, ErrNotFound):
			return invalidAction("no finished set to rematch")
		case !errors.Is(err, ErrAlreadyFinished):
			return err
		}

		lp, err := tx.Lobbies().FindPlayer(ctx, lobby.ID, playerID)
		if err != nil {
			return fmt.Errorf("failed to find lobby player: %w", err)
		}
		if lp == nil {
			return notFound("lobby player", playerID)
		}
		lp.NewSetBo3 = bestOf == 3
		lp.NewSetBo5 = bestOf == 5
		if err := tx.Lobbies().UpdatePlayer(ctx, lp); err != nil {
			return fmt.Errorf("failed to update lobby player: %w", err)
		}

		players, err := tx.Lobbies().ListPlayers(ctx, lobby.ID)
		if err != nil {
			return fmt.Errorf("failed to list lobby players: %w", err)
		}
		result = &RematchResult{}
		for _, p := range players {
			agreed := (bestOf == 3 && p.NewSetBo3) || (bestOf == 5 && p.NewSetBo5)
			if !agreed {
				result.Pending = append(result.Pending, p.PlayerID)
			}
		}
		if len(result.Pending) > 0 {
			return nil
		}

		set, err := s.startSet(ctx, tx, *lobby, bestOf)
		if err != nil {
			return err
		}
		result.Started = true
		result.State, err = s.loadState(ctx, tx, *set)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Started {
		s.publishGame(ctx, result.State)
	}
	return result, nil
}
