package api

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/punchamoorthee/protocol6713/internal/models"
	"github.com/punchamoorthee/protocol6713/internal/service"
	"github.com/punchamoorthee/protocol6713/internal/store"
)

// AccountHeader carries the caller identity set by the upstream identity provider.
const AccountHeader = "X-Account-ID"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talent_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "talent_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	store         store.Store
	service       *service.Service
	logger        *slog.Logger
	webhookSecret []byte
}

// NewHandler builds the HTTP layer. webhookSecret keys the signature check on
// the account registration and purchase hooks; when empty those routes refuse
// every call.
func NewHandler(s store.Store, svc *service.Service, logger *slog.Logger, webhookSecret string) *Handler {
	return &Handler{store: s, service: svc, logger: logger, webhookSecret: []byte(webhookSecret)}
}

// Router wires every endpoint onto a gorilla/mux router.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(instrument)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/accounts", h.signed(h.CreateAccountHandler)).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{id}", h.GetAccountHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}/balance", h.GetBalanceHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}/transactions", h.GetTransactionsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/transfers", h.CreateTransferHandler).Methods(http.MethodPost)

	v1.HandleFunc("/coma/enter", h.EnterComaHandler).Methods(http.MethodPost)
	v1.HandleFunc("/coma/exit", h.ExitComaHandler).Methods(http.MethodPost)
	v1.HandleFunc("/coma/status", h.ComaStatusHandler).Methods(http.MethodGet)

	v1.HandleFunc("/self-kill", h.SelfKillHandler).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{id}/self-kill", h.SelfKillStatusHandler).Methods(http.MethodGet)

	v1.HandleFunc("/cpr", h.GiveCPRHandler).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{id}/cpr", h.CPRStatusHandler).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}/shrine/view", h.MarkShrineViewedHandler).Methods(http.MethodPost)

	v1.HandleFunc("/fourth-wall", h.RequestBreakHandler).Methods(http.MethodPost)
	v1.HandleFunc("/fourth-wall", h.PendingBreaksHandler).Methods(http.MethodGet)
	v1.HandleFunc("/fourth-wall/{id}/respond", h.RespondBreakHandler).Methods(http.MethodPost)

	v1.HandleFunc("/wall", h.FeedHandler).Methods(http.MethodGet)
	v1.HandleFunc("/wall", h.PostMessageHandler).Methods(http.MethodPost)
	v1.HandleFunc("/wall/cooldown", h.PostCooldownHandler).Methods(http.MethodGet)
	v1.HandleFunc("/messages", h.DirectMessageHandler).Methods(http.MethodPost)

	v1.HandleFunc("/gifts", h.GiftHandler).Methods(http.MethodPost)
	v1.HandleFunc("/donations", h.DonateHandler).Methods(http.MethodPost)
	v1.HandleFunc("/purchases", h.signed(h.CreditPurchaseHandler)).Methods(http.MethodPost)
	v1.HandleFunc("/moderation/balance", h.ModerateBalanceHandler).Methods(http.MethodPost)
	v1.HandleFunc("/reveals", h.RevealHandler).Methods(http.MethodPost)
	v1.HandleFunc("/gigs", h.PostGigHandler).Methods(http.MethodPost)
	v1.HandleFunc("/gigs/{id}/complete", h.CompleteGigHandler).Methods(http.MethodPost)
	v1.HandleFunc("/shrine", h.EditShrineHandler).Methods(http.MethodPut)
	v1.HandleFunc("/shrine/cost", h.ShrineCostHandler).Methods(http.MethodGet)

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request counts and latency per route template.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		timer.ObserveDuration()
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

// caller reads the authenticated account id. It writes 401 and returns false
// when the header is missing or malformed.
func caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get(AccountHeader)
	if raw == "" {
		respondWithError(w, http.StatusUnauthorized, "Missing "+AccountHeader+" header")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		respondWithError(w, http.StatusUnauthorized, "Invalid "+AccountHeader+" header")
		return uuid.Nil, false
	}
	return id, true
}

// pathID parses the {id} route variable, writing 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed id")
		return uuid.Nil, false
	}
	return id, true
}

// decode parses and validates a JSON body, writing 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return false
	}
	if err := models.Validate(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

type errorResponse struct {
	Error                  string  `json:"error"`
	Code                   string  `json:"code,omitempty"`
	Balance                *int64  `json:"balance,omitempty"`
	Required               int64   `json:"required,omitempty"`
	CooldownHoursRemaining float64 `json:"cooldown_hours_remaining,omitempty"`
	RetryAfterSeconds      int64   `json:"retry_after_seconds,omitempty"`
}

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindInvalidArgument:
		return http.StatusBadRequest
	case service.KindUnauthorized, service.KindInsufficientBalance, service.KindInsufficientResources:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalidStateTransition, service.KindConflict:
		return http.StatusConflict
	case service.KindCooldownActive:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondWithServiceError maps a service failure onto a status and body.
// Infrastructure faults never leak their message.
func (h *Handler) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := service.AsError(err)
	if !ok {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	body := errorResponse{
		Error:    e.Error(),
		Code:     e.Kind.String(),
		Balance:  e.Balance,
		Required: e.Required,
	}
	if e.CooldownRemaining > 0 {
		secs := int64(math.Ceil(e.CooldownRemaining.Seconds()))
		body.CooldownHoursRemaining = e.CooldownRemaining.Hours()
		body.RetryAfterSeconds = secs
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	respondWithJSON(w, statusFor(e.Kind), body)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, errorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondWithRecord(w http.ResponseWriter, rec *models.IdempotencyRecord) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(rec.ResponseStatus)
	w.Write(rec.ResponseBody)
}
