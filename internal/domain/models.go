package domain

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// House is the application's own pseudo-account. It has no stored balance and
// acts as an unlimited source and sink for fees, escrow and forfeitures.
// It is persisted as NULL in the transactions log.
var House = uuid.Nil

// IsHouse reports whether id refers to the house.
func IsHouse(id uuid.UUID) bool { return id == House }

// SystemActor authors announcements. It is not an account and never holds
// Talents. Its feed rows are stored with a NULL author.
var SystemActor = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// CompareIDs orders account ids for deterministic lock acquisition.
func CompareIDs(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) }

type LifecycleState string

const (
	StateActive       LifecycleState = "active"
	StateComa         LifecycleState = "coma"
	StateSelfKilled   LifecycleState = "self_killed"
	StateGhostDeleted LifecycleState = "ghost_deleted"
)

type ComaReason string

const (
	ComaChoice ComaReason = "Choice"
	ComaQuest  ComaReason = "Quest"
)

func (r ComaReason) Valid() bool { return r == ComaChoice || r == ComaQuest }

type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Privileged reports whether the role may run moderator-gated operations.
func (r Role) Privileged() bool { return r == RoleModerator || r == RoleAdmin }

// Account is one user's economy and lifecycle record.
// Balance is never negative and at most one of COMA/SelfKilled holds at once;
// both are enforced by the store and the service, not by this struct.
type Account struct {
	ID       uuid.UUID      `json:"id"`
	Username string         `json:"username"`
	Balance  int64          `json:"balance"`
	State    LifecycleState `json:"state"`
	Verified bool           `json:"verified"`
	Role     Role           `json:"role"`

	ComaReason       ComaReason `json:"coma_reason,omitempty"`
	ComaEnteredAt    *time.Time `json:"coma_entered_at,omitempty"`
	ComaExitedAt     *time.Time `json:"coma_exited_at,omitempty"`
	ComaRefills      int        `json:"coma_refills"`
	RefillsUpdatedAt time.Time  `json:"coma_refills_updated_at"`

	DeactivatedAt    *time.Time `json:"deactivated_at,omitempty"`
	ShrineMessage    string     `json:"shrine_message,omitempty"`
	ShrineLink       string     `json:"-"`
	LastShrineEditAt *time.Time `json:"last_shrine_edit_at,omitempty"`
	LastPostAt       *time.Time `json:"last_post_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (a *Account) InComa() bool    { return a.State == StateComa }
func (a *Account) IsGhost() bool   { return a.State == StateSelfKilled }
func (a *Account) IsDeleted() bool { return a.State == StateGhostDeleted }

func (a *Account) DisplayName() string {
	if a.Username == "" {
		return "UNKNOWN"
	}
	return a.Username
}

// TransactionKind is the closed set of balance-affecting actions.
type TransactionKind string

const (
	KindPostCost           TransactionKind = "post_cost"
	KindComaEntry          TransactionKind = "coma_entry"
	KindComaRefillPurchase TransactionKind = "coma_refill_purchase"
	KindFourthWallBreak    TransactionKind = "fourth_wall_break"
	KindCPR                TransactionKind = "cpr"
	KindGift               TransactionKind = "gift"
	KindFine               TransactionKind = "fine"
	KindDonation           TransactionKind = "donation"
	KindPurchaseCredit     TransactionKind = "purchase_credit"
	KindProfileReveal      TransactionKind = "profile_reveal"
	KindGigPost            TransactionKind = "gig_post"
	KindShrineEdit         TransactionKind = "shrine_edit"
	KindForfeit            TransactionKind = "forfeit"
)

var transactionKinds = map[TransactionKind]struct{}{
	KindPostCost: {}, KindComaEntry: {}, KindComaRefillPurchase: {}, KindFourthWallBreak: {},
	KindCPR: {}, KindGift: {}, KindFine: {}, KindDonation: {}, KindPurchaseCredit: {},
	KindProfileReveal: {}, KindGigPost: {}, KindShrineEdit: {}, KindForfeit: {},
}

func (k TransactionKind) Valid() bool {
	_, ok := transactionKinds[k]
	return ok
}

// Transaction is one append-only entry of the Talent log.
// From or To equal to House means the house side of the movement.
type Transaction struct {
	ID          int64           `json:"id"`
	From        uuid.UUID       `json:"from_account_id"`
	To          uuid.UUID       `json:"to_account_id"`
	Amount      int64           `json:"amount"`
	Kind        TransactionKind `json:"kind"`
	Reason      string          `json:"reason"`
	ExternalRef string          `json:"external_ref,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Rescue is one CPR log entry. Batch is floor(prior rescues of the ghost / 13).
type Rescue struct {
	GhostID      uuid.UUID  `json:"ghost_id"`
	RescuerID    uuid.UUID  `json:"rescuer_id"`
	Batch        int64      `json:"batch_number"`
	ShrineViewed bool       `json:"shrine_link_viewed"`
	ViewedAt     *time.Time `json:"shrine_link_viewed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type BreakStatus string

const (
	BreakPending  BreakStatus = "pending"
	BreakAccepted BreakStatus = "accepted"
	BreakRejected BreakStatus = "rejected"
)

// BreakRequest is an escrowed request to reach an account in COMA.
type BreakRequest struct {
	ID          uuid.UUID   `json:"id"`
	ComaID      uuid.UUID   `json:"coma_account_id"`
	RequesterID uuid.UUID   `json:"requester_id"`
	Message     string      `json:"message"`
	Status      BreakStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	RespondedAt *time.Time  `json:"responded_at,omitempty"`
}

type FeedKind string

const (
	FeedText   FeedKind = "text"
	FeedSystem FeedKind = "system"
)

// FeedMessage is a wall post. System posts carry the SystemActor author.
type FeedMessage struct {
	ID        int64     `json:"id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Kind      FeedKind  `json:"kind"`
	Whisper   bool      `json:"whisper"`
	Permanent bool      `json:"permanent"`
	CreatedAt time.Time `json:"created_at"`
}

type DirectMessage struct {
	ID          int64     `json:"id"`
	SenderID    uuid.UUID `json:"sender_id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Content     string    `json:"content"`
	Whisper     bool      `json:"whisper"`
	CreatedAt   time.Time `json:"created_at"`
}

type Gig struct {
	ID          uuid.UUID  `json:"id"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Reward      int64      `json:"talent_reward"`
	Completed   bool       `json:"is_completed"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Reveal records that a viewer paid to see another account's picture.
type Reveal struct {
	ViewerID   uuid.UUID `json:"viewer_id"`
	ViewedID   uuid.UUID `json:"viewed_id"`
	PictureURL string    `json:"picture_url"`
	RevealedAt time.Time `json:"revealed_at"`
}

// IdempotencyPayload stores the response state for exact-once delivery.
type IdempotencyPayload struct {
	Key            string          `json:"key"`
	RequestHash    string          `json:"request_hash"`
	Status         string          `json:"status"`
	ResponseBody   json.RawMessage `json:"response_body,omitempty"`
	ResponseStatus int             `json:"response_status,omitempty"`
}

const (
	IdempotencyInProgress = "in_progress"
	IdempotencyCompleted  = "completed"
)
