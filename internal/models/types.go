package models

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/punchamoorthee/protocol6713/internal/domain"
)

var validate = validator.New()

// Validate checks the struct tags of a request payload.
func Validate(v any) error {
	return validate.Struct(v)
}

// CreateAccountRequest is sent by the identity provider's registration hook.
type CreateAccountRequest struct {
	Username       string      `json:"username" validate:"required,min=3,max=32,excludesall= /"`
	Verified       bool        `json:"verified"`
	Role           domain.Role `json:"role" validate:"omitempty,oneof=user moderator admin"`
	InitialBalance int64       `json:"initial_balance" validate:"gte=0"`
}

// TransferRequest is the payload from the client.
type TransferRequest struct {
	FromAccountID uuid.UUID              `json:"from_account_id"`
	ToAccountID   uuid.UUID              `json:"to_account_id"`
	Amount        int64                  `json:"amount" validate:"gt=0"`
	Kind          domain.TransactionKind `json:"kind" validate:"required"`
	Reason        string                 `json:"reason" validate:"max=500"`
}

// TransferResponse is the canonical response structure.
type TransferResponse struct {
	Transaction    domain.Transaction `json:"transaction"`
	NewFromBalance int64              `json:"new_from_balance"`
	NewToBalance   int64              `json:"new_to_balance"`
}

type BalanceResponse struct {
	AccountID uuid.UUID `json:"account_id"`
	Balance   int64     `json:"balance"`
}

type EnterComaRequest struct {
	Reason domain.ComaReason `json:"reason" validate:"required,oneof=Choice Quest"`
}

type EnterComaResponse struct {
	RefillsRemaining int   `json:"refills_remaining"`
	TalentBalance    int64 `json:"talent_balance"`
	UsedRefill       bool  `json:"used_refill"`
}

type ComaStatusResponse struct {
	InComa                 bool              `json:"in_coma"`
	Reason                 domain.ComaReason `json:"reason,omitempty"`
	Refills                int               `json:"refills"`
	Balance                int64             `json:"balance"`
	CooldownHoursRemaining float64           `json:"cooldown_hours_remaining"`
	CanEnter               bool              `json:"can_enter"`
}

type SelfKillRequest struct {
	ShrineMessage string `json:"shrine_message" validate:"max=500"`
	ShrineLink    string `json:"shrine_link" validate:"omitempty,url"`
}

type SelfKillStatusResponse struct {
	IsLocked         bool    `json:"is_locked"`
	HoursRemaining   float64 `json:"hours_remaining"`
	EligibleForPurge bool    `json:"eligible_for_purge"`
}

type PurgeResult struct {
	Purged    []uuid.UUID `json:"purged"`
	Forfeited int64       `json:"forfeited"`
}

type GiveCPRRequest struct {
	GhostID uuid.UUID `json:"ghost_id" validate:"required"`
}

type GiveCPRResponse struct {
	DisplayCount       int64 `json:"display_count"`
	// BatchNumber is the ghost's current batch after this rescue, so the
	// rescue that completes a batch already reports the next one.
	BatchNumber        int64 `json:"batch_number"`
	RemainingBalance   int64 `json:"remaining_balance"`
	RevelationComplete bool  `json:"revelation_complete"`
}

type CPRStatusResponse struct {
	Count           int64  `json:"count"`
	BatchNumber     int64  `json:"batch_number"`
	TotalRescues    int64  `json:"total_rescues"`
	CanAccessShrine bool   `json:"can_access_shrine"`
	AccessibleBatch *int64 `json:"accessible_batch,omitempty"`
	ShrineLink      string `json:"shrine_link,omitempty"`
}

type MarkShrineViewedRequest struct {
	Batch int64 `json:"batch" validate:"gte=0"`
}

type BreakRequestPayload struct {
	ComaAccountID uuid.UUID `json:"coma_account_id" validate:"required"`
	Message       string    `json:"message" validate:"required,max=1000"`
}

type BreakRequestResponse struct {
	RequestID        uuid.UUID `json:"request_id"`
	RemainingBalance int64     `json:"remaining_balance"`
}

type RespondBreakRequest struct {
	Action string `json:"action" validate:"required,oneof=accept reject"`
}

type RespondBreakResponse struct {
	Action          string `json:"action"`
	TalentsReceived *int64 `json:"talents_received,omitempty"`
}

type GiftRequest struct {
	ToAccountID uuid.UUID `json:"to_account_id" validate:"required"`
	Amount      int64     `json:"amount" validate:"oneof=1 5 10"`
}

type DonateRequest struct {
	AnnouncementID string `json:"announcement_id" validate:"required,max=128"`
	Amount         int64  `json:"amount" validate:"gt=0"`
}

// PurchaseCreditRequest is the payment processor's "credit N units" webhook.
type PurchaseCreditRequest struct {
	AccountID  uuid.UUID `json:"account_id" validate:"required"`
	PaymentRef string    `json:"payment_ref" validate:"required,max=255"`
	Talents    int64     `json:"talents" validate:"gt=0"`
}

type ModerateBalanceRequest struct {
	TargetID uuid.UUID `json:"target_user_id" validate:"required"`
	Delta    int64     `json:"amount" validate:"ne=0"`
	Reason   string    `json:"reason" validate:"max=500"`
}

type ModerateBalanceResponse struct {
	OldBalance int64 `json:"old_balance"`
	NewBalance int64 `json:"new_balance"`
}

type RevealRequest struct {
	ViewedID   uuid.UUID `json:"viewed_user_id" validate:"required"`
	PictureURL string    `json:"picture_url" validate:"required,url"`
}

type RevealResponse struct {
	PictureURL       string `json:"picture_url"`
	Charged          bool   `json:"charged"`
	RemainingBalance int64  `json:"remaining_balance"`
}

type PostGigRequest struct {
	Title       string `json:"title" validate:"required,max=120"`
	Description string `json:"description" validate:"max=2000"`
	Reward      int64  `json:"talent_reward" validate:"gte=0"`
}

type PostGigResponse struct {
	Gig              domain.Gig `json:"gig"`
	RemainingBalance int64      `json:"remaining_balance"`
}

type EditShrineRequest struct {
	ShrineLink    string `json:"shrine_link" validate:"omitempty,url"`
	ShrineMessage string `json:"shrine_message" validate:"max=500"`
}

type EditShrineResponse struct {
	Cost             int64     `json:"cost"`
	RemainingBalance int64     `json:"remaining_balance"`
	NextFreeEditAt   time.Time `json:"next_free_edit_at"`
}

type ShrineCostResponse struct {
	Cost int64 `json:"cost"`
	Free bool  `json:"free"`
}

type PostMessageRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

type PostCooldownResponse struct {
	CanPost          bool    `json:"can_post"`
	SecondsRemaining float64 `json:"seconds_remaining"`
}

type DirectMessageRequest struct {
	RecipientID uuid.UUID `json:"recipient_id" validate:"required"`
	Content     string    `json:"content" validate:"required,max=2000"`
}

// IdempotencyRecord holds the state of a request key.
type IdempotencyRecord struct {
	Key            string
	RequestHash    string
	Status         string
	ResponseBody   json.RawMessage
	ResponseStatus int
}
