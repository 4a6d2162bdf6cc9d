package reservation

import "time"

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusConverted Status = "CONVERTED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

func (s Status) Terminal() bool {
	return s != StatusActive
}

// Holder identifies who owns a reservation: a signed-in user, or a guest
// session when UserID is empty.
type Holder struct {
	SessionID string `json:"sessionId,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

func (h Holder) IsZero() bool {
	return h.SessionID == "" && h.UserID == ""
}

// Owns reports whether h may act on r. A reservation made by a user belongs
// to that user only; a guest reservation belongs to its session.
func (h Holder) Owns(r Reservation) bool {
	if r.UserID != "" {
		return h.UserID == r.UserID
	}
	return h.SessionID != "" && h.SessionID == r.SessionID
}

type Reservation struct {
	ID        string    `json:"id"`
	VariantID string    `json:"variantId"`
	Quantity  int       `json:"quantity"`
	SessionID string    `json:"sessionId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r Reservation) Holder() Holder {
	return Holder{SessionID: r.SessionID, UserID: r.UserID}
}

// ConversionResult reports the outcome for one id of a batch conversion.
type ConversionResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}
