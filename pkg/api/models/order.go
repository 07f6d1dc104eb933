// Package models defines the HTTP API request and response shapes.
package models

import (
	"encoding/base64"
	"time"

	"github.com/gateline/gateline/pkg/order"
)

// PurchaseResponse is returned when a purchase saga completes successfully.
type PurchaseResponse struct {
	Order             *order.Order     `json:"order"`
	LineItems         []order.LineItem `json:"line_items"`
	Tickets           []TicketArtifact `json:"tickets"`
	EmailSent         bool             `json:"email_sent"`
	WaitlistConverted bool             `json:"waitlist_converted"`
	SagaID            string           `json:"saga_id"`
	DurationMS        int64            `json:"duration_ms"`
}

// TicketArtifact is the per-ticket delivery payload: signed token plus the
// QR image as base64-encoded PNG.
type TicketArtifact struct {
	TicketID   string `json:"ticket_id"`
	TypeName   string `json:"type_name"`
	HolderName string `json:"holder_name"`
	Token      string `json:"token"`
	QRPNG      string `json:"qr_png,omitempty"`
}

// NewPurchaseResponse projects a workflow result into the API shape.
func NewPurchaseResponse(res order.Result) PurchaseResponse {
	tickets := make([]TicketArtifact, 0, len(res.TicketPayloads))
	for _, p := range res.TicketPayloads {
		artifact := TicketArtifact{
			TicketID:   p.TicketID,
			TypeName:   p.TypeName,
			HolderName: p.HolderName,
			Token:      p.Token,
		}
		if len(p.QRPNG) > 0 {
			artifact.QRPNG = base64.StdEncoding.EncodeToString(p.QRPNG)
		}
		tickets = append(tickets, artifact)
	}

	return PurchaseResponse{
		Order:             res.Order,
		LineItems:         res.LineItems,
		Tickets:           tickets,
		EmailSent:         res.EmailSent,
		WaitlistConverted: res.WaitlistConverted,
		SagaID:            res.SagaID,
		DurationMS:        res.Duration.Milliseconds(),
	}
}

// OrderListResponse is a paginated list of orders.
type OrderListResponse struct {
	Items  []*order.Order `json:"items"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// TicketListResponse lists the tickets issued for one order.
type TicketListResponse struct {
	OrderID string          `json:"order_id"`
	Items   []*order.Ticket `json:"items"`
}

// EventListResponse is a paginated list of catalog events.
type EventListResponse struct {
	Items  []*order.Event `json:"items"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// WaitlistJoinRequest registers an email on an event's waitlist.
type WaitlistJoinRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// WaitlistEntryResponse is one waitlist registration row.
type WaitlistEntryResponse struct {
	EventID     string     `json:"event_id"`
	Email       string     `json:"email"`
	Status      string     `json:"status"`
	JoinedAt    time.Time  `json:"joined_at"`
	ConvertedAt *time.Time `json:"converted_at,omitempty"`
}
