package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/payment"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/session"
)

type StartTransactionRequest struct {
	OrderID           *string         `json:"order_id,omitempty" validate:"omitempty,uuid"`
	TransactionID     string          `json:"transaction_id" validate:"required"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency" validate:"omitempty,len=3"`
	PaymentMethodCode string          `json:"payment_method_code" validate:"required"`
	PhoneNumber       string          `json:"phone_number"`
}

// callbackEnvelope is the part of a provider callback the reconciler reads.
// The whole body is stored untouched next to it.
type callbackEnvelope struct {
	TransactionID        string  `json:"transaction_id"`
	Status               string  `json:"status"`
	VerificationStatus   *string `json:"verification_status"`
	ReceiptNumber        string  `json:"receipt_number"`
	TransactionReference string  `json:"transaction_reference"`
}

type CallbackResponse struct {
	Received bool            `json:"received"`
	Outcome  payment.Outcome `json:"outcome"`
}

type VerifyTransactionRequest struct {
	VerificationStatus string `json:"verification_status" validate:"required,oneof=pending verified rejected"`
	Notes              string `json:"notes" validate:"max=2000"`
}

type PaymentHandler struct {
	service  payment.Service
	validate *validator.Validate
}

func NewPaymentHandler(service payment.Service) *PaymentHandler {
	return &PaymentHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *PaymentHandler) RegisterRoutes(router chi.Router) {
	router.Post("/payments", h.handleStartTransaction)
	router.Post("/payments/callback", h.handleCallback)
}

func (h *PaymentHandler) RegisterAdminRoutes(router chi.Router) {
	router.Get("/payments", h.handleListTransactions)
	router.Get("/payments/review", h.handleListNeedsReview)
	router.Post("/payments/{id}/verify", h.handleVerify)
}

func (h *PaymentHandler) handleStartTransaction(w http.ResponseWriter, r *http.Request) {
	var req StartTransactionRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	orderID, err := optionalUUID(req.OrderID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid order_id")
		return
	}

	tx, err := h.service.StartTransaction(r.Context(), payment.NewTransaction{
		OrderID:           orderID,
		TransactionID:     req.TransactionID,
		Amount:            req.Amount,
		Currency:          req.Currency,
		PaymentMethodCode: req.PaymentMethodCode,
		PhoneNumber:       req.PhoneNumber,
	})
	if err != nil {
		log.Error().Err(err).Str("transaction_id", req.TransactionID).Msg("Failed to start payment transaction via service")
		respondWithServiceError(w, err, "Failed to start payment")
		return
	}

	respondWithJSON(w, http.StatusCreated, tx)
}

// handleCallback answers 200 once the delivery is recorded, replays included,
// so the provider stops retrying. Only storage failures return 5xx.
func (h *PaymentHandler) handleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read payment callback body")
		respondWithError(w, http.StatusBadRequest, "Invalid callback body")
		return
	}

	var env callbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		log.Warn().Err(err).Int("bytes", len(body)).Msg("Payment callback body is not a JSON object")
	}
	if env.TransactionID == "" {
		env.TransactionID = r.URL.Query().Get("transaction_id")
	}

	result, err := h.service.RecordCallback(r.Context(), payment.Callback{
		TransactionID:        env.TransactionID,
		Status:               env.Status,
		VerificationStatus:   env.VerificationStatus,
		ReceiptNumber:        env.ReceiptNumber,
		TransactionReference: env.TransactionReference,
		RawPayload:           body,
	})
	if err != nil {
		if errors.Is(err, payment.ErrMissingTransactionID) {
			respondWithError(w, http.StatusBadRequest, "transaction_id is required")
			return
		}
		log.Error().Err(err).Str("transaction_id", env.TransactionID).Msg("Failed to record payment callback")
		respondWithError(w, http.StatusInternalServerError, "Failed to record callback")
		return
	}

	respondWithJSON(w, http.StatusOK, CallbackResponse{Received: true, Outcome: result.Outcome})
}

func (h *PaymentHandler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := payment.Filter{}
	if v := q.Get("status"); v != "" {
		if filter.Status = payment.ParseTransactionStatus(v); filter.Status == payment.StatusUnknown {
			respondWithError(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
	}
	if v := q.Get("verification_status"); v != "" {
		if filter.Verification = payment.ParseVerificationStatus(v); filter.Verification == payment.VerificationUnknown {
			respondWithError(w, http.StatusBadRequest, "Invalid verification_status filter")
			return
		}
	}
	filter.Limit, filter.Offset = pagination(r)

	txs, err := h.service.ListTransactions(r.Context(), session.FromContext(r.Context()), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list payment transactions via service")
		respondWithServiceError(w, err, "Failed to list payments")
		return
	}

	respondWithJSON(w, http.StatusOK, txs)
}

func (h *PaymentHandler) handleListNeedsReview(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.ListNeedsReview(r.Context(), session.FromContext(r.Context()))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list payments needing review via service")
		respondWithServiceError(w, err, "Failed to list payments")
		return
	}

	respondWithJSON(w, http.StatusOK, txs)
}

func (h *PaymentHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req VerifyTransactionRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	auth := session.FromContext(r.Context())
	tx, err := h.service.Verify(r.Context(), auth, id, payment.ParseVerificationStatus(req.VerificationStatus), req.Notes)
	if err != nil {
		log.Error().Err(err).Stringer("payment_id", id).Msg("Failed to verify payment via service")
		respondWithServiceError(w, err, "Failed to verify payment")
		return
	}

	respondWithJSON(w, http.StatusOK, tx)
}
