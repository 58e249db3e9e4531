package service

import (
	"errors"
	"fmt"

	"github.com/rl-arena/ladder-backend/internal/models"
)

// Kind closed set of expected failures returned to the caller.
type Kind string

const (
	KindNotFound         Kind = "NOT_FOUND"
	KindAlreadySearching Kind = "ALREADY_SEARCHING"
	KindNotSearching     Kind = "NOT_SEARCHING"
	KindCannotSearch     Kind = "CANNOT_SEARCH"
	KindAlreadyAccepted  Kind = "ALREADY_ACCEPTED"
	KindAlreadyFinished  Kind = "ALREADY_FINISHED"
	KindAlreadyWinner    Kind = "ALREADY_WINNER"
	KindTooNoob          Kind = "TOO_NOOB"
	KindNoCable          Kind = "NO_CABLE"
	KindNoYuzu           Kind = "NO_YUZU"
	KindIncompatibleYuzu Kind = "INCOMPATIBLE_YUZU"
	KindSamePlayer       Kind = "SAME_PLAYER"
	KindRejectedPlayer   Kind = "REJECTED_PLAYER"
	KindInvalidAction    Kind = "INVALID_ACTION"
)

// Error a domain failure. Fields other than Kind are context for the presentation layer.
type Error struct {
	Kind    Kind               `json:"kind"`
	Entity  string             `json:"entity,omitempty"`
	Context string             `json:"context,omitempty"`
	Status  models.LobbyStatus `json:"status,omitempty"`
	Action  string             `json:"action,omitempty"`
	TierID  string             `json:"tierId,omitempty"`
	Detail  string             `json:"detail,omitempty"`
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("%s not found (%s)", e.Entity, e.Context)
	case KindCannotSearch:
		return fmt.Sprintf("cannot %s while lobby is %s", e.Action, e.Status)
	case KindTooNoob, KindNoYuzu, KindIncompatibleYuzu:
		if e.TierID != "" {
			return fmt.Sprintf("%s: tier %s", kindText[e.Kind], e.TierID)
		}
	case KindInvalidAction:
		return "invalid action: " + e.Detail
	}
	return kindText[e.Kind]
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works on contextual errors.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var kindText = map[Kind]string{
	KindNotFound:         "not found",
	KindAlreadySearching: "already searching",
	KindNotSearching:     "not searching",
	KindCannotSearch:     "cannot search",
	KindAlreadyAccepted:  "already accepted",
	KindAlreadyFinished:  "already finished",
	KindAlreadyWinner:    "game already has a winner",
	KindTooNoob:          "tier is above the player's reach",
	KindNoCable:          "wired connection required",
	KindNoYuzu:           "no yuzu capability",
	KindIncompatibleYuzu: "incompatible yuzu roles",
	KindSamePlayer:       "cannot match a player against itself",
	KindRejectedPlayer:   "player is excluded from matching",
	KindInvalidAction:    "invalid action",
}

// Sentinels for errors.Is.
var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrAlreadySearching = &Error{Kind: KindAlreadySearching}
	ErrNotSearching     = &Error{Kind: KindNotSearching}
	ErrCannotSearch     = &Error{Kind: KindCannotSearch}
	ErrAlreadyAccepted  = &Error{Kind: KindAlreadyAccepted}
	ErrAlreadyFinished  = &Error{Kind: KindAlreadyFinished}
	ErrAlreadyWinner    = &Error{Kind: KindAlreadyWinner}
	ErrTooNoob          = &Error{Kind: KindTooNoob}
	ErrNoCable          = &Error{Kind: KindNoCable}
	ErrNoYuzu           = &Error{Kind: KindNoYuzu}
	ErrIncompatibleYuzu = &Error{Kind: KindIncompatibleYuzu}
	ErrSamePlayer       = &Error{Kind: KindSamePlayer}
	ErrRejectedPlayer   = &Error{Kind: KindRejectedPlayer}
	ErrInvalidAction    = &Error{Kind: KindInvalidAction}
)

func notFound(entity, context string) error {
	return &Error{Kind: KindNotFound, Entity: entity, Context: context}
}

func cannotSearch(status models.LobbyStatus, action string) error {
	return &Error{Kind: KindCannotSearch, Status: status, Action: action}
}

func invalidAction(detail string) error {
	return &Error{Kind: KindInvalidAction, Detail: detail}
}

func tierError(kind Kind, tierID string) error {
	return &Error{Kind: kind, TierID: tierID}
}

// IsDomainError reports whether err is an expected, typed failure that must not be logged as a fault.
func IsDomainError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
