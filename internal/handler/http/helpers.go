package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/admin"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/payment"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/session"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/support"
)

const maxBodyBytes = 1 << 20

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

// respondWithError sends {"error": message}.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, payment.ErrTransactionNotFound),
		errors.Is(err, support.ErrTicketNotFound),
		errors.Is(err, support.ErrAdminNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, admin.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, payment.ErrDuplicateTransaction),
		errors.Is(err, admin.ErrEmailExists):
		return http.StatusConflict
	case errors.Is(err, order.ErrInvalidStatusTransition),
		errors.Is(err, payment.ErrIllegalVerification):
		return http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, order.ErrInvalidItem),
		errors.Is(err, order.ErrInvalidAmount),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, payment.ErrMissingTransactionID),
		errors.Is(err, payment.ErrInvalidAmount),
		errors.Is(err, payment.ErrMissingMethod),
		errors.Is(err, support.ErrMissingField),
		errors.Is(err, support.ErrInvalidEmail),
		errors.Is(err, support.ErrInvalidPriority),
		errors.Is(err, support.ErrInvalidStatus),
		errors.Is(err, support.ErrInvalidSender),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidProduct),
		errors.Is(err, admin.ErrEmptyPassword):
		return http.StatusBadRequest
	case errors.Is(err, admin.ErrInvalidCredentials),
		errors.Is(err, session.ErrInvalidSession):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondWithServiceError maps err to a status. Server errors get the
// generic fallback message; client errors keep their own text.
func respondWithServiceError(w http.ResponseWriter, err error, fallback string) {
	code := mapErrorToStatusCode(err)
	if code >= http.StatusInternalServerError {
		respondWithError(w, code, fallback)
		return
	}
	respondWithError(w, code, clientMessage(err))
}

func clientMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), "service: ")
	if msg == "" {
		return http.StatusText(mapErrorToStatusCode(err))
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			details[field] = fmt.Sprintf("Field '%s' is required", field)
		case "email":
			details[field] = fmt.Sprintf("Field '%s' must be a valid email address", field)
		case "uuid", "uuid4":
			details[field] = fmt.Sprintf("Field '%s' must be a valid UUID", field)
		case "min":
			if fe.Kind().String() == "string" {
				details[field] = fmt.Sprintf("Field '%s' must be at least %s characters long", field, fe.Param())
			} else {
				details[field] = fmt.Sprintf("Field '%s' must contain at least %s entries", field, fe.Param())
			}
		case "max":
			details[field] = fmt.Sprintf("Field '%s' must be at most %s characters long", field, fe.Param())
		case "gt":
			details[field] = fmt.Sprintf("Field '%s' must be greater than %s", field, fe.Param())
		case "oneof":
			details[field] = fmt.Sprintf("Field '%s' must be one of: %s", field, fe.Param())
		case "len":
			details[field] = fmt.Sprintf("Field '%s' must be exactly %s characters long", field, fe.Param())
		default:
			details[field] = fmt.Sprintf("Field '%s' is invalid", field)
		}
	}
	return details
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes the error response itself and reports whether the handler may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		log.Warn().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload %v", err))
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:   "Validation failed",
				Details: formatValidationErrors(validationErrors),
			})
		} else {
			log.Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		}
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.FromString(raw)
	if err != nil {
		log.Warn().Err(err).Str(name, raw).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s parameter", name))
		return uuid.Nil, false
	}
	return id, true
}

func optionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.FromString(*raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// pagination reads limit and offset query values, ignoring malformed ones.
func pagination(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
