package service

import (
	"go.uber.org/zap"

	"github.com/rl-arena/ladder-backend/internal/repository"
)

// Engine every engine service over one store.
type Engine struct {
	Players      *PlayerService
	Lobbies      *LobbyService
	Matchmaking  *MatchmakingService
	Confirmation *ConfirmationService
	Sets         *SetService
	Ratings      *RatingService
}

// NewEngine ledger, locker and events may be nil: an in-memory ledger, an in-process guild lock and no
// event delivery are used instead.
func NewEngine(
	store repository.Store,
	ledger ExclusionLedger,
	locker Locker,
	events Publisher,
	opts Options,
	logger *zap.Logger,
) *Engine {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if ledger == nil {
		ledger = NewMemoryExclusionLedger(opts.Now)
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	if events == nil {
		events = nopPublisher{}
	}

	c := &core{
		store:  store,
		ledger: ledger,
		locker: locker,
		events: events,
		opts:   opts,
		logger: logger,
	}
	lobbies := newLobbyService(c)
	matchmaking := newMatchmakingService(c, lobbies)
	confirmation := newConfirmationService(c, lobbies, matchmaking)
	lobbies.confirmation = confirmation
	ratings := newRatingService(c, NewELOService())
	return &Engine{
		Players:      newPlayerService(c),
		Lobbies:      lobbies,
		Matchmaking:  matchmaking,
		Confirmation: confirmation,
		Sets:         newSetService(c, ratings),
		Ratings:      ratings,
	}
}
