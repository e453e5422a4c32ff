package game

import (
	"errors"
	"fmt"
)

// Kind is a stable error identifier carried to clients verbatim.
type Kind string

const (
	KindInvalidGameCode        Kind = "InvalidGameCode"
	KindInvalidPlayerID        Kind = "InvalidPlayerId"
	KindInvalidCard            Kind = "InvalidCard"
	KindInvalidCardType        Kind = "InvalidCardType"
	KindGameNotFound           Kind = "GameNotFound"
	KindSessionFull            Kind = "SessionFull"
	KindPlayerAlreadyInSession Kind = "PlayerAlreadyInSession"
	KindPlayerNotInSession     Kind = "PlayerNotInSession"
	KindWrongState             Kind = "WrongState"
	KindNotYourTurn            Kind = "NotYourTurn"
	KindDeckEmpty              Kind = "DeckEmpty"
	KindNotHost                Kind = "NotHost"
	KindSavedCardNotFound      Kind = "SavedCardNotFound"
	KindSaveCapacity           Kind = "SaveCapacity"
	KindNoVenganzaAvailable    Kind = "NoVenganzaAvailable"
	KindInvalidTargetPlayer    Kind = "InvalidTargetPlayer"
	KindInvalidRules           Kind = "InvalidRules"
	KindCodeTaken              Kind = "CodeTaken"
	KindCodeSpaceExhausted     Kind = "CodeSpaceExhausted"
	KindCapacityExceeded       Kind = "CapacityExceeded"
	KindCancelled              Kind = "Cancelled"
	KindInternal               Kind = "Internal"
)

// Error is a domain error with a wire-stable kind and a human message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// E builds a domain error.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the stable kind from err. Anything that is not a domain
// error maps to Internal so details never leak to clients.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
