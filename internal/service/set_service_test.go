package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl-arena/ladder-backend/internal/models"
)

func (f *fixture) gameMessage(id, gameID, playerID string) {
	msg := &models.Message{
		ID:        id,
		GuildID:   testGuild,
		ChannelID: "dm-" + playerID,
		Type:      models.MessageGameCharacterSelect,
		PlayerID:  strPtr(playerID),
		GameID:    strPtr(gameID),
	}
	require.NoError(f.t, f.engine.Lobbies.RegisterMessage(f.ctx, msg))
}

func banTurn(state *SetState) string {
	for _, p := range state.Players {
		if p.BanTurn {
			return p.PlayerID
		}
	}
	return ""
}

func characterOf(state *SetState, playerID string) string {
	for _, p := range state.Players {
		if p.PlayerID == playerID && p.CharacterID != nil {
			return *p.CharacterID
		}
	}
	return ""
}

func TestSetService_StartSet(t *testing.T) {
	f := newFixture(t)
	lobbyID := f.playing("alice", "bob", SearchTarget{TierID: "open"})

	_, err := f.engine.Sets.StartSet(f.ctx, testGuild, lobbyID, 4)
	assert.ErrorIs(t, err, ErrInvalidAction)

	state, err := f.engine.Sets.StartSet(f.ctx, testGuild, lobbyID, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Set.FirstTo)
	assert.False(t, state.Set.Ranked)
	require.NotNil(t, state.Game)
	assert.Equal(t, 1, state.Game.Num)
	assert.Nil(t, state.Game.StageID)
	assert.Len(t, state.Available, len(starterIDs))
	assert.Equal(t, "alice", banTurn(state))

	_, err = f.engine.Sets.StartSet(f.ctx, testGuild, lobbyID, 3)
	assert.ErrorIs(t, err, ErrInvalidAction, "one set at a time")
}

func TestSetService_GameOneStrikes(t *testing.T) {
	f := newFixture(t)
	lobbyID := f.playing("alice", "bob", SearchTarget{TierID: "open"})
	_, err := f.engine.Sets.StartSet(f.ctx, testGuild, lobbyID, 3)
	require.NoError(t, err)
	sets := f.engine.Sets

	_, err = sets.Ban(f.ctx, testGuild, "bob", starterIDs[0])
	assert.ErrorIs(t, err, ErrInvalidAction, "not bob's turn")
	_, err = sets.Ban(f.ctx, testGuild, "alice", "lylat")
	assert.ErrorIs(t, err, ErrInvalidAction, "counterpick stages are not struck in game 1")

	order := []string{"alice", "bob", "bob", "alice", "alice", "bob", "bob"}
	nextTurn := []string{"bob", "bob", "alice", "alice", "bob", "bob", ""}
	for i, player := range order {
		res, err := sets.Ban(f.ctx, testGuild, player, starterIDs[i])
		require.NoError(t, err, "ban %d", i+1)
		assert.Equal(t, nextTurn[i], banTurn(res.State), "turn after ban %d", i+1)
	}

	state := f.state("alice")
	require.NotNil(t, state.Game.StageID)
	assert.Equal(t, starterIDs[7], *state.Game.StageID)
	assert.Len(t, state.Bans, 7)
	assert.Empty(t, state.Available)

	_, err = sets.Ban(f.ctx, testGuild, "alice", starterIDs[7])
	assert.ErrorIs(t, err, ErrInvalidAction)
	_, err = sets.VoteWinner(f.ctx, testGuild, "alice", 0, true)
	assert.ErrorIs(t, err, ErrInvalidAction, "characters are not picked yet")
}

func TestSetService_CounterpickAndCharacters(t *testing.T) {
	f := newFixture(t)
	lobbyID := f.playing("alice", "bob", SearchTarget{TierID: "open"})
	_, err := f.engine.Sets.StartSet(f.ctx, testGuild, lobbyID, 3)
	require.NoError(t, err)
	sets := f.engine.Sets

	res := f.winGame("alice", "bob", "alice")
	require.False(t, res.Finished)
	state := res.State
	assert.Equal(t, 2, state.Game.Num)
	assert.Equal(t, 1, state.Wins["alice"])
	assert.Equal(t, "alice", banTurn(state), "the winner strikes first")
	assert.Equal(t, "fox", characterOf(state, "alice"), "game 1 characters carry over")
	assert.Equal(t, "falco", characterOf(state, "bob"))
	assert.Len(t, state.Available, len(starterIDs)+2)

	_, err = sets.VoteWinner(f.ctx, testGuild, "bob", 1, true)
	assert.ErrorIs(t, err, ErrAlreadyWinner)

	_, err = sets.PickStage(f.ctx, testGuild, "bob", "lylat")
	assert.ErrorIs(t, err, ErrInvalidAction, "strikes are not over")
	for _, stage := range []string{"battlefield", "small-battlefield", "final-destination"} {
		_, err := sets.Ban(f.ctx, testGuild, "alice", stage)
		require.NoError(t, err)
	}
	_, err = sets.Ban(f.ctx, testGuild, "alice", "smashville")
	assert.ErrorIs(t, err, ErrInvalidAction)
	_, err = sets.PickStage(f.ctx, testGuild, "alice", "smashville")
	assert.ErrorIs(t, err, ErrInvalidAction, "the loser picks")
	_, err = sets.PickStage(f.ctx, testGuild, "bob", "battlefield")
	assert.ErrorIs(t, err, ErrInvalidAction, "struck stage")

	res, err = sets.PickStage(f.ctx, testGuild, "bob", "lylat")
	require.NoError(t, err)
	assert.Equal(t, "lylat", *res.State.Game.StageID)
	assert.Empty(t, banTurn(res.State))

	gameID := res.State.Game.ID
	f.gameMessage("pick-alice", gameID, "alice")
	_, err = sets.PickCharacter(f.ctx, testGuild, "bob", "marth")
	assert.ErrorIs(t, err, ErrInvalidAction, "the winner picks first")

	res, err = sets.PickCharacter(f.ctx, testGuild, "alice", "pikachu")
	require.NoError(t, err)
	assert.Equal(t, []string{"pick-alice"}, messageIDs(res.Messages))

	res, err = sets.PickCharacter(f.ctx, testGuild, "bob", "marth")
	require.NoError(t, err)
	assert.Equal(t, "pikachu", characterOf(res.State, "alice"))
	assert.Equal(t, "marth", characterOf(res.State, "bob"))
}

func TestSetService_ConflictingVotes(t *testing.T) {
	f := newFixture(t)
	lobbyID := f.playing("alice", "bob", SearchTarget{TierID: "open"})
	_, err := f.engine.Sets.StartSet(f.ctx, testGuild, lobbyID, 1)
	require.NoError(t, err)
	f.strikeGame1("alice", "bob")
	for player, character := range map[string]string{"alice": "fox", "bob": "falco"} {
		_, err := f.engine.Sets.PickCharacter(f.ctx, testGuild, player, character)
		require.NoError(t, err)
	}

	res, err := f.engine.Sets.VoteWinner(f.ctx, testGuild, "alice", 0, false)
	require.NoError(t, err)
	assert.False(t, res.Conflict)
	res, err = f.engine.Sets.VoteWinner(f.ctx, testGuild, "bob", 0, false)
	require.NoError(t, err)
	assert.True(t, res.Conflict)
	assert.Nil(t, res.State.Game.WinnerID)

	res, err = f.engine.Sets.VoteWinner(f.ctx, testGuild, "bob", 0, true)
	require.NoError(t, err)
	assert.False(t, res.Conflict)
	require.True(t, res.Finished)
	assert.Equal(t, "bob", *res.State.Set.WinnerID)
	assert.Empty(t, res.Ratings, "friendlies are unrated")
}

func TestSetService_SurrenderWhileLeading(t *testing.T) {
	f := newFixture(t)
	lobbyID := f.playing("alice", "bob", SearchTarget{TierID: "open"})
	_, err := f.engine.Sets.StartSet(f.ctx, testGuild, lobbyID, 3)
	require.NoError(t, err)
	f.winGame("alice", "bob", "alice")

	res, err := f.engine.Sets.Surrender(f.ctx, testGuild, "bob")
	require.NoError(t, err)
	require.True(t, res.Finished)
	set := res.State.Set
	assert.Equal(t, "alice", *set.WinnerID)
	assert.True(t, set.IsSurrender)
	require.NotNil(t, set.FinishedAt)
	assert.True(t, f.now.Equal(*set.FinishedAt))
	assert.Equal(t, 2, res.State.Wins["alice"])

	_, err = f.engine.Sets.Surrender(f.ctx, testGuild, "alice")
	assert.ErrorIs(t, err, ErrAlreadyFinished)
}

func TestSetService_RematchAfterTwoZero(t *testing.T) {
	f := newFixture(t)
	lobbyID := f.playing("alice", "bob", SearchTarget{TierID: "open"})
	_, err := f.engine.Sets.StartSet(f.ctx, testGuild, lobbyID, 3)
	require.NoError(t, err)
	sets := f.engine.Sets

	_, err = sets.VoteRematch(f.ctx, testGuild, "alice", 3)
	assert.ErrorIs(t, err, ErrInvalidAction, "set still running")

	f.winGame("alice", "bob", "alice")
	res := f.winGame("alice", "bob", "alice")
	require.True(t, res.Finished)
	assert.Equal(t, "alice", *res.State.Set.WinnerID)
	assert.False(t, res.State.Set.IsSurrender)

	_, err = sets.VoteWinner(f.ctx, testGuild, "bob", 0, true)
	assert.ErrorIs(t, err, ErrAlreadyFinished)
	_, err = sets.VoteRematch(f.ctx, testGuild, "alice", 1)
	assert.ErrorIs(t, err, ErrInvalidAction)

	rematch, err := sets.VoteRematch(f.ctx, testGuild, "alice", 3)
	require.NoError(t, err)
	assert.False(t, rematch.Started)
	assert.Equal(t, []string{"bob"}, rematch.Pending)

	rematch, err = sets.VoteRematch(f.ctx, testGuild, "bob", 5)
	require.NoError(t, err)
	assert.False(t, rematch.Started)
	assert.Equal(t, []string{"alice"}, rematch.Pending)

	rematch, err = sets.VoteRematch(f.ctx, testGuild, "alice", 5)
	require.NoError(t, err)
	require.True(t, rematch.Started)
	assert.Equal(t, 3, rematch.State.Set.FirstTo)
	assert.Equal(t, "bob", banTurn(rematch.State), "the loser of the last set strikes first")
	assert.Empty(t, rematch.State.Wins)
}

func TestSetService_VoteCancelSet(t *testing.T) {
	f := newFixture(t)
	lobbyID := f.playing("alice", "bob", SearchTarget{TierID: "open"})
	_, err := f.engine.Sets.StartSet(f.ctx, testGuild, lobbyID, 3)
	require.NoError(t, err)

	res, err := f.engine.Sets.VoteCancelSet(f.ctx, testGuild, "alice")
	require.NoError(t, err)
	assert.False(t, res.Cancelled)
	assert.Equal(t, []string{"bob"}, res.Pending)

	res, err = f.engine.Sets.VoteCancelSet(f.ctx, testGuild, "bob")
	require.NoError(t, err)
	assert.True(t, res.Cancelled)

	_, err = f.engine.Sets.State(f.ctx, testGuild, "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	// votes were cleared with the set
	_, err = f.engine.Sets.StartSet(f.ctx, testGuild, lobbyID, 1)
	require.NoError(t, err)
	res, err = f.engine.Sets.VoteCancelSet(f.ctx, testGuild, "bob")
	require.NoError(t, err)
	assert.False(t, res.Cancelled)

	f.winGame("alice", "bob", "alice")
	_, err = f.engine.Sets.VoteCancelSet(f.ctx, testGuild, "alice")
	assert.ErrorIs(t, err, ErrAlreadyFinished)
	_, err = f.engine.Sets.CancelSet(f.ctx, testGuild, res.Set.ID)
	assert.ErrorIs(t, err, ErrAlreadyFinished)
}

func TestSetService_CancelStaleSets(t *testing.T) {
	f := newFixture(t)
	lobbyID := f.playing("alice", "bob", SearchTarget{TierID: "open"})
	state, err := f.engine.Sets.StartSet(f.ctx, testGuild, lobbyID, 3)
	require.NoError(t, err)

	cancelled, err := f.engine.Sets.CancelStaleSets(f.ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, cancelled)

	f.advance(2 * time.Hour)
	cancelled, err = f.engine.Sets.CancelStaleSets(f.ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, state.Set.ID, cancelled[0].ID)

	_, err = f.engine.Sets.CancelSet(f.ctx, testGuild, state.Set.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetService_Remake(t *testing.T) {
	f := newFixture(t)
	lobbyID := f.playing("alice", "bob", SearchTarget{TierID: "open"})
	_, err := f.engine.Sets.StartSet(f.ctx, testGuild, lobbyID, 3)
	require.NoError(t, err)
	sets := f.engine.Sets

	_, err = sets.Ban(f.ctx, testGuild, "alice", starterIDs[0])
	require.NoError(t, err)
	f.gameMessage("prompt", f.state("alice").Game.ID, "bob")

	res, err := sets.Remake(f.ctx, testGuild, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"prompt"}, messageIDs(res.Messages))
	assert.Equal(t, 1, res.State.Game.Num)
	assert.Empty(t, res.State.Bans)
	assert.Equal(t, "alice", banTurn(res.State))

	f.winGame("bob", "alice", "alice")
	f.counterpick("bob", "alice")
	res, err = sets.Remake(f.ctx, testGuild, "alice")
	require.NoError(t, err)
	state := res.State
	assert.Equal(t, 2, state.Game.Num)
	assert.Nil(t, state.Game.StageID)
	assert.Empty(t, state.Bans)
	assert.Equal(t, "bob", banTurn(state), "the previous game's winner strikes again")
	assert.Equal(t, "fox", characterOf(state, "bob"))
	assert.Equal(t, 1, state.Wins["bob"])
}

func (f *fixture) rematch(bestOf int, players ...string) *SetState {
	var res *RematchResult
	for _, p := range players {
		var err error
		res, err = f.engine.Sets.VoteRematch(f.ctx, testGuild, p, bestOf)
		require.NoError(f.t, err)
	}
	require.True(f.t, res.Started)
	return res.State
}

func TestSetService_RemakeFirstGameOfRematch(t *testing.T) {
	f := newFixture(t)
	lobbyID := f.playing("alice", "bob", SearchTarget{TierID: "open"})
	_, err := f.engine.Sets.StartSet(f.ctx, testGuild, lobbyID, 1)
	require.NoError(t, err)
	require.True(t, f.winGame("alice", "bob", "alice").Finished)

	state := f.rematch(3, "alice", "bob")
	require.Equal(t, "bob", banTurn(state))
	_, err = f.engine.Sets.Ban(f.ctx, testGuild, "bob", starterIDs[0])
	require.NoError(t, err)

	res, err := f.engine.Sets.Remake(f.ctx, testGuild, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, res.State.Game.Num)
	assert.Empty(t, res.State.Bans)
	assert.Equal(t, "bob", banTurn(res.State), "the loser of the last set keeps the first strike")
}

func TestSetService_RematchPastDailyLimitIsUnranked(t *testing.T) {
	f := newFixture(t)
	for _, p := range []string{"alice", "bob"} {
		f.rating(p, "tier-3", 1700)
		f.profile(p, true, false, false)
	}
	lobbyID := f.playing("alice", "bob", SearchTarget{Ranked: true})
	state, err := f.engine.Sets.StartSet(f.ctx, testGuild, lobbyID, 1)
	require.NoError(t, err)
	require.True(t, state.Set.Ranked)
	require.True(t, f.winGame("alice", "bob", "alice").Finished)

	f.advance(time.Minute)
	state = f.rematch(3, "alice", "bob")
	assert.True(t, state.Set.Ranked)
	require.False(t, f.winGame("alice", "bob", "bob").Finished)
	require.True(t, f.winGame("alice", "bob", "bob").Finished)

	f.advance(time.Minute)
	state = f.rematch(3, "alice", "bob")
	assert.False(t, state.Set.Ranked, "a third ranked set between the pair today")
	assert.False(t, state.Set.Bonus)
	require.False(t, f.winGame("bob", "alice", "bob").Finished)
	res := f.winGame("bob", "alice", "bob")
	require.True(t, res.Finished)
	assert.False(t, res.State.Set.Ranked)
}
