package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/session"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/support"
)

const streamHeartbeat = 15 * time.Second

type CreateTicketRequest struct {
	UserID   *string `json:"user_id,omitempty" validate:"omitempty,uuid"`
	Email    string  `json:"email" validate:"required,email"`
	Subject  string  `json:"subject" validate:"required,max=200"`
	Category string  `json:"category" validate:"max=50"`
	Priority string  `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Message  string  `json:"message" validate:"required"`
}

type PostMessageRequest struct {
	Message string `json:"message" validate:"required"`
}

type UpdateTicketStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=open in-progress resolved closed"`
}

type AssignTicketRequest struct {
	AdminID *string `json:"admin_id" validate:"omitempty,uuid"`
}

type SupportHandler struct {
	service  support.Service
	validate *validator.Validate
}

func NewSupportHandler(service support.Service) *SupportHandler {
	return &SupportHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *SupportHandler) RegisterRoutes(router chi.Router) {
	router.Post("/tickets", h.handleCreateTicket)
	router.Get("/tickets", h.handleListTickets)
	router.Get("/tickets/{id}", h.handleGetTicket)
	router.Get("/tickets/{id}/messages", h.handleListMessages)
	router.Post("/tickets/{id}/messages", h.handlePostMessage(support.SenderUser))
	router.Get("/tickets/{id}/stream", h.handleStream)
}

func (h *SupportHandler) RegisterAdminRoutes(router chi.Router) {
	router.Patch("/tickets/{id}/status", h.handleUpdateStatus)
	router.Post("/tickets/{id}/assign", h.handleAssign)
	router.Post("/tickets/{id}/messages", h.handlePostMessage(support.SenderAdmin))
}

func (h *SupportHandler) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req CreateTicketRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	userID, err := optionalUUID(req.UserID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid user_id")
		return
	}

	ticket, err := h.service.CreateTicket(r.Context(), support.NewTicket{
		UserID:   userID,
		Email:    req.Email,
		Subject:  req.Subject,
		Category: req.Category,
		Priority: req.Priority,
		Message:  req.Message,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create ticket via service")
		respondWithServiceError(w, err, "Failed to create ticket")
		return
	}

	respondWithJSON(w, http.StatusCreated, ticket)
}

func (h *SupportHandler) handleListTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := support.TicketFilter{}
	if v := q.Get("status"); v != "" {
		if filter.Status = support.ParseTicketStatus(v); filter.Status == support.StatusUnknown {
			respondWithError(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
	}
	if v := q.Get("user_id"); v != "" {
		id, err := uuid.FromString(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid user_id")
			return
		}
		filter.UserID = &id
	}
	filter.Limit, filter.Offset = pagination(r)

	tickets, err := h.service.ListTickets(r.Context(), session.FromContext(r.Context()), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list tickets via service")
		respondWithServiceError(w, err, "Failed to list tickets")
		return
	}

	respondWithJSON(w, http.StatusOK, tickets)
}

func (h *SupportHandler) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	ticket, err := h.service.GetTicket(r.Context(), ticketID)
	if err != nil {
		log.Error().Err(err).Stringer("ticket_id", ticketID).Msg("Failed to get ticket via service")
		respondWithServiceError(w, err, "Failed to get ticket")
		return
	}

	respondWithJSON(w, http.StatusOK, ticket)
}

func (h *SupportHandler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	messages, err := h.service.Messages(r.Context(), ticketID)
	if err != nil {
		log.Error().Err(err).Stringer("ticket_id", ticketID).Msg("Failed to list messages via service")
		respondWithServiceError(w, err, "Failed to list messages")
		return
	}

	respondWithJSON(w, http.StatusOK, messages)
}

func (h *SupportHandler) handlePostMessage(sender support.SenderType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticketID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req PostMessageRequest
		if !decodeAndValidate(w, r, h.validate, &req) {
			return
		}

		msg, err := h.service.PostMessage(r.Context(), session.FromContext(r.Context()), ticketID, sender, req.Message)
		if err != nil {
			log.Error().Err(err).Stringer("ticket_id", ticketID).Str("sender_type", string(sender)).Msg("Failed to post message via service")
			respondWithServiceError(w, err, "Failed to send message")
			return
		}

		respondWithJSON(w, http.StatusCreated, msg)
	}
}

func (h *SupportHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req UpdateTicketStatusRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	ticket, err := h.service.UpdateStatus(r.Context(), session.FromContext(r.Context()), ticketID, support.ParseTicketStatus(req.Status))
	if err != nil {
		log.Error().Err(err).Stringer("ticket_id", ticketID).Str("status", req.Status).Msg("Failed to update ticket status via service")
		respondWithServiceError(w, err, "Failed to update ticket status")
		return
	}

	respondWithJSON(w, http.StatusOK, ticket)
}

func (h *SupportHandler) handleAssign(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req AssignTicketRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	adminID, err := optionalUUID(req.AdminID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid admin_id")
		return
	}

	ticket, err := h.service.Assign(r.Context(), session.FromContext(r.Context()), ticketID, adminID)
	if err != nil {
		log.Error().Err(err).Stringer("ticket_id", ticketID).Msg("Failed to assign ticket via service")
		respondWithServiceError(w, err, "Failed to assign ticket")
		return
	}

	respondWithJSON(w, http.StatusOK, ticket)
}

// handleStream serves the conversation as Server-Sent Events: the stored
// history first, then every new message until the client goes away.
func (h *SupportHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	ctx := r.Context()
	if _, err := h.service.GetTicket(ctx, ticketID); err != nil {
		respondWithServiceError(w, err, "Failed to open ticket stream")
		return
	}

	// subscribe before reading history so nothing falls between the two
	sub, err := h.service.Subscribe(ctx, ticketID)
	if err != nil {
		log.Error().Err(err).Stringer("ticket_id", ticketID).Msg("Failed to subscribe to ticket")
		respondWithError(w, http.StatusInternalServerError, "Failed to open ticket stream")
		return
	}
	defer sub.Close()

	history, err := h.service.Messages(ctx, ticketID)
	if err != nil {
		log.Error().Err(err).Stringer("ticket_id", ticketID).Msg("Failed to load ticket history for stream")
		respondWithError(w, http.StatusInternalServerError, "Failed to open ticket stream")
		return
	}

	// the stream outlives the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	seen := make(map[uuid.UUID]struct{}, len(history))
	for _, m := range history {
		seen[m.ID] = struct{}{}
	}
	if err := writeEvent(w, "history", history); err != nil {
		return
	}
	flusher.Flush()

	log.Debug().Stringer("ticket_id", ticketID).Int("history", len(history)).Msg("Ticket stream opened")

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Stringer("ticket_id", ticketID).Msg("Ticket stream closed by client")
			return
		case <-sub.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			var m support.Message
			if err := json.Unmarshal(ev.Data, &m); err != nil {
				log.Warn().Err(err).Stringer("ticket_id", ticketID).Msg("Dropping undecodable ticket event")
				continue
			}
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			if err := writeEvent(w, "message", m); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event", name).Msg("Failed to encode stream event")
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
