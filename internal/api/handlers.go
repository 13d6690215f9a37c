package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/punchamoorthee/protocol6713/internal/domain"
	"github.com/punchamoorthee/protocol6713/internal/models"
)

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", "error", err)
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateAccountHandler is the identity provider's registration hook.
func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccountRequest
	if !decode(w, r, &req) {
		return
	}
	acct, err := h.service.CreateAccount(r.Context(), req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/accounts/"+acct.ID.String())
	respondWithJSON(w, http.StatusCreated, acct)
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	acct, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, acct)
}

func (h *Handler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	bal, err := h.service.Balance(r.Context(), id)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.BalanceResponse{AccountID: id, Balance: bal})
}

func (h *Handler) GetTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	txs, err := h.service.Transactions(r.Context(), id, queryInt(r, "limit"))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, txs)
}

// CreateTransferHandler moves Talents out of the caller's account. The
// Idempotency-Key header is required; a replayed key returns the stored
// response without moving Talents again.
func (h *Handler) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		respondWithError(w, http.StatusBadRequest, "Missing Idempotency-Key header")
		return
	}

	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Stream read error")
		return
	}
	r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	hash := sha256.Sum256(bodyBytes)
	reqHash := hex.EncodeToString(hash[:])

	var req models.TransferRequest
	if !decode(w, r, &req) {
		return
	}
	if req.FromAccountID != from {
		respondWithError(w, http.StatusForbidden, "Transfers must originate from the caller's account")
		return
	}
	// Every other kind is recorded by the operation that charges it.
	if req.Kind != domain.KindGift {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Transfer kind must be %q", domain.KindGift))
		return
	}

	resp, existing, err := h.service.TransferIdempotent(r.Context(), req, from.String()+":"+idempotencyKey, reqHash)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	if existing != nil {
		respondWithRecord(w, existing)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/accounts/%s/transactions", from))
	respondWithJSON(w, http.StatusCreated, resp)
}

func (h *Handler) EnterComaHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.EnterComaRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.service.EnterComa(r.Context(), id, req.Reason)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) ExitComaHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.service.ExitComa(r.Context(), id); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) ComaStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	resp, err := h.service.ComaStatus(r.Context(), id)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) SelfKillHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.SelfKillRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.SelfKill(r.Context(), id, req.ShrineMessage, req.ShrineLink); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) SelfKillStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	resp, err := h.service.SelfKillStatus(r.Context(), id)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) GiveCPRHandler(w http.ResponseWriter, r *http.Request) {
	rescuer, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.GiveCPRRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.service.GiveCPR(r.Context(), req.GhostID, rescuer)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// CPRStatusHandler reports a ghost's batch progress. The shrine fields are
// filled in for the caller when an identity header is present.
func (h *Handler) CPRStatusHandler(w http.ResponseWriter, r *http.Request) {
	ghost, ok := pathID(w, r)
	if !ok {
		return
	}
	rescuer := uuid.Nil
	if r.Header.Get(AccountHeader) != "" {
		if rescuer, ok = caller(w, r); !ok {
			return
		}
	}
	resp, err := h.service.CPRStatus(r.Context(), ghost, rescuer)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) MarkShrineViewedHandler(w http.ResponseWriter, r *http.Request) {
	rescuer, ok := caller(w, r)
	if !ok {
		return
	}
	ghost, ok := pathID(w, r)
	if !ok {
		return
	}
	var req models.MarkShrineViewedRequest
	if !decode(w, r, &req) {
		return
	}
	link, err := h.service.MarkShrineViewed(r.Context(), ghost, rescuer, req.Batch)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"shrine_link": link})
}

func (h *Handler) RequestBreakHandler(w http.ResponseWriter, r *http.Request) {
	requester, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.BreakRequestPayload
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.service.RequestBreak(r.Context(), requester, req.ComaAccountID, req.Message)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, resp)
}

func (h *Handler) PendingBreaksHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	pending, err := h.service.PendingBreaks(r.Context(), id)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, pending)
}

func (h *Handler) RespondBreakHandler(w http.ResponseWriter, r *http.Request) {
	responder, ok := caller(w, r)
	if !ok {
		return
	}
	requestID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req models.RespondBreakRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.service.RespondBreak(r.Context(), responder, requestID, req.Action)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) FeedHandler(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.service.Feed(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, msgs)
}

func (h *Handler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	author, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.PostMessageRequest
	if !decode(w, r, &req) {
		return
	}
	msg, err := h.service.PostMessage(r.Context(), author, req.Content)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, msg)
}

func (h *Handler) PostCooldownHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	resp, err := h.service.PostCooldown(r.Context(), id)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) DirectMessageHandler(w http.ResponseWriter, r *http.Request) {
	sender, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.DirectMessageRequest
	if !decode(w, r, &req) {
		return
	}
	dm, err := h.service.SendDirectMessage(r.Context(), sender, req.RecipientID, req.Content)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, dm)
}

func (h *Handler) GiftHandler(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.GiftRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.service.Gift(r.Context(), from, req.ToAccountID, req.Amount)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, resp)
}

func (h *Handler) DonateHandler(w http.ResponseWriter, r *http.Request) {
	donor, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.DonateRequest
	if !decode(w, r, &req) {
		return
	}
	bal, err := h.service.Donate(r.Context(), donor, req.AnnouncementID, req.Amount)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, models.BalanceResponse{AccountID: donor, Balance: bal})
}

// CreditPurchaseHandler receives the payment processor's credit callback.
// Replays of the same payment reference return the original response.
func (h *Handler) CreditPurchaseHandler(w http.ResponseWriter, r *http.Request) {
	var req models.PurchaseCreditRequest
	if !decode(w, r, &req) {
		return
	}
	resp, existing, err := h.service.CreditPurchase(r.Context(), req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	if existing != nil {
		respondWithRecord(w, existing)
		return
	}
	respondWithJSON(w, http.StatusCreated, resp)
}

func (h *Handler) ModerateBalanceHandler(w http.ResponseWriter, r *http.Request) {
	mod, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.ModerateBalanceRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.service.ModerateBalance(r.Context(), mod, req.TargetID, req.Delta, req.Reason)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) RevealHandler(w http.ResponseWriter, r *http.Request) {
	viewer, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.RevealRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.service.RevealProfilePicture(r.Context(), viewer, req.ViewedID, req.PictureURL)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) PostGigHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.PostGigRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.service.PostGig(r.Context(), owner, req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, resp)
}

func (h *Handler) CompleteGigHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	gigID, ok := pathID(w, r)
	if !ok {
		return
	}
	gig, err := h.service.CompleteGig(r.Context(), owner, gigID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, gig)
}

func (h *Handler) EditShrineHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.EditShrineRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.service.EditShrine(r.Context(), id, req.ShrineLink, req.ShrineMessage)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) ShrineCostHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	resp, err := h.service.ShrineEditCost(r.Context(), id)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// queryInt returns the named query parameter, or 0 when absent or malformed.
func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}
