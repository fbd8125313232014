package event

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePolicyCreated
	EventTypePremiumPaid
	EventTypePolicyCanceled
	EventTypePolicyExpired
	EventTypePremiumAdjusted
	EventTypeClaimPaid
	EventTypeFlashClaimPaid
	EventTypeLoyaltyRewardClaimed
	EventTypePoolFunded
	EventTypeLPWithdraw
	EventTypeClaimSubmitted
	EventTypeClaimVoted
	EventTypeClaimPaidViaVote
	EventTypeClaimRejected
	EventTypeParamUpdated
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Stable idempotency key from the caller
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Policy context (nullable for pool-level and admin events)
	PolicyID *uuid.UUID

	// Engine clock read for the operation (NOT wall-clock at persist time)
	Timestamp time.Time

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement.
// Payloads carry the resulting state values, so recovery replay is a pure
// application of recorded facts with no re-validation.
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// PolicyID returns the policy context (nil for pool/admin events)
	PolicyID() *uuid.UUID
}

func (et EventType) String() string {
	switch et {
	case EventTypePolicyCreated:
		return "PolicyCreated"
	case EventTypePremiumPaid:
		return "PremiumPaid"
	case EventTypePolicyCanceled:
		return "PolicyCanceled"
	case EventTypePolicyExpired:
		return "PolicyExpired"
	case EventTypePremiumAdjusted:
		return "PremiumAdjusted"
	case EventTypeClaimPaid:
		return "ClaimPaid"
	case EventTypeFlashClaimPaid:
		return "FlashClaimPaid"
	case EventTypeLoyaltyRewardClaimed:
		return "LoyaltyRewardClaimed"
	case EventTypePoolFunded:
		return "PoolFunded"
	case EventTypeLPWithdraw:
		return "LPWithdraw"
	case EventTypeClaimSubmitted:
		return "ClaimSubmitted"
	case EventTypeClaimVoted:
		return "ClaimVoted"
	case EventTypeClaimPaidViaVote:
		return "ClaimPaidViaVote"
	case EventTypeClaimRejected:
		return "ClaimRejected"
	case EventTypeParamUpdated:
		return "ParamUpdated"
	default:
		return "Unknown"
	}
}

// ParseEventType maps the wire name back to the discriminator.
func ParseEventType(name string) EventType {
	switch name {
	case "PolicyCreated":
		return EventTypePolicyCreated
	case "PremiumPaid":
		return EventTypePremiumPaid
	case "PolicyCanceled":
		return EventTypePolicyCanceled
	case "PolicyExpired":
		return EventTypePolicyExpired
	case "PremiumAdjusted":
		return EventTypePremiumAdjusted
	case "ClaimPaid":
		return EventTypeClaimPaid
	case "FlashClaimPaid":
		return EventTypeFlashClaimPaid
	case "LoyaltyRewardClaimed":
		return EventTypeLoyaltyRewardClaimed
	case "PoolFunded":
		return EventTypePoolFunded
	case "LPWithdraw":
		return EventTypeLPWithdraw
	case "ClaimSubmitted":
		return EventTypeClaimSubmitted
	case "ClaimVoted":
		return EventTypeClaimVoted
	case "ClaimPaidViaVote":
		return EventTypeClaimPaidViaVote
	case "ClaimRejected":
		return EventTypeClaimRejected
	case "ParamUpdated":
		return EventTypeParamUpdated
	default:
		return EventTypeUnknown
	}
}
