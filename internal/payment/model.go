package payment

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus is what the payment provider reported.
type TransactionStatus string

const (
	StatusPending TransactionStatus = "pending"
	StatusSuccess TransactionStatus = "success"
	StatusFailed  TransactionStatus = "failed"
	StatusUnknown TransactionStatus = "unknown"
)

func (s TransactionStatus) String() string {
	return string(s)
}

func ParseTransactionStatus(s string) TransactionStatus {
	switch st := TransactionStatus(s); st {
	case StatusPending, StatusSuccess, StatusFailed:
		return st
	default:
		return StatusUnknown
	}
}

// VerificationStatus is the admin-controlled audit flag. It is independent of
// the provider status.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
	VerificationUnknown  VerificationStatus = "unknown"
)

func (v VerificationStatus) String() string {
	return string(v)
}

func ParseVerificationStatus(s string) VerificationStatus {
	switch v := VerificationStatus(s); v {
	case VerificationPending, VerificationVerified, VerificationRejected:
		return v
	default:
		return VerificationUnknown
	}
}

// Legal reports whether a transaction may hold this (status, verification)
// pair. Only a provider-successful payment can be verified; any payment may
// await review or be rejected.
func Legal(status TransactionStatus, verification VerificationStatus) bool {
	switch verification {
	case VerificationPending, VerificationRejected:
		return status != StatusUnknown
	case VerificationVerified:
		return status == StatusSuccess
	default:
		return false
	}
}

type Transaction struct {
	ID                   uuid.UUID          `json:"id"`
	OrderID              *uuid.UUID         `json:"order_id,omitempty"`
	TransactionID        string             `json:"transaction_id"`
	Amount               decimal.Decimal    `json:"amount"`
	Currency             string             `json:"currency"`
	PaymentMethodCode    string             `json:"payment_method_code"`
	PhoneNumber          string             `json:"phone_number,omitempty"`
	Status               TransactionStatus  `json:"status"`
	VerificationStatus   VerificationStatus `json:"verification_status"`
	ReceiptNumber        string             `json:"receipt_number,omitempty"`
	TransactionReference string             `json:"transaction_reference,omitempty"`
	CallbackData         json.RawMessage    `json:"callback_data,omitempty"`
	CallbackHistory      json.RawMessage    `json:"callback_history,omitempty"`
	NeedsReview          bool               `json:"needs_review"`
	ProcessedAt          *time.Time         `json:"processed_at,omitempty"`
	VerifiedBy           *uuid.UUID         `json:"verified_by,omitempty"`
	VerifiedAt           *time.Time         `json:"verified_at,omitempty"`
	VerificationNotes    string             `json:"verification_notes,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

type NewTransaction struct {
	OrderID           *uuid.UUID
	TransactionID     string
	Amount            decimal.Decimal
	Currency          string
	PaymentMethodCode string
	PhoneNumber       string
}

// Callback is one delivery from the provider. RawPayload is stored verbatim.
type Callback struct {
	TransactionID        string
	Status               string
	VerificationStatus   *string
	ReceiptNumber        string
	TransactionReference string
	RawPayload           json.RawMessage
}

// Outcome classifies what RecordCallback did with a delivery.
type Outcome string

const (
	OutcomeApplied            Outcome = "applied"
	OutcomeDuplicate          Outcome = "duplicate"
	OutcomeNeedsReview        Outcome = "needs_review"
	OutcomeUnknownTransaction Outcome = "unknown_transaction"
)

type CallbackResult struct {
	Transaction *Transaction `json:"transaction"`
	Outcome     Outcome      `json:"outcome"`
	// OrderMarkedPaid is set when this delivery moved the linked order to paid.
	OrderMarkedPaid bool `json:"order_marked_paid"`
}

func (r CallbackResult) Applied() bool {
	return r.Outcome == OutcomeApplied
}

// Resolution is the change a callback makes to a stored transaction.
type Resolution struct {
	Status       TransactionStatus
	Verification VerificationStatus
	NeedsReview  bool
	// MarkProcessed is false when the callback could not be understood, so a
	// later valid delivery may still apply.
	MarkProcessed bool
}

// Resolve decides how cb changes current. It has no side effects.
func Resolve(current *Transaction, cb Callback) Resolution {
	status := ParseTransactionStatus(cb.Status)
	if status == StatusUnknown {
		return Resolution{
			Status:       current.Status,
			Verification: current.VerificationStatus,
			NeedsReview:  true,
		}
	}

	res := Resolution{
		Status:        status,
		Verification:  current.VerificationStatus,
		MarkProcessed: true,
	}

	if cb.VerificationStatus != nil {
		override := ParseVerificationStatus(*cb.VerificationStatus)
		if Legal(status, override) {
			res.Verification = override
		} else {
			res.NeedsReview = true
		}
	}

	if !Legal(res.Status, res.Verification) {
		res.Verification = VerificationPending
		res.NeedsReview = true
	}

	return res
}

type Filter struct {
	Status       TransactionStatus
	Verification VerificationStatus
	Limit        int
	Offset       int
}
