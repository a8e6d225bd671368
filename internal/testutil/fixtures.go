package testutil

import (
	"fmt"
	"time"

	"github.com/Veraticus/transitfix/internal/model"
)

// MessageLayout is how Sierra renders the check-in time in a status message.
const MessageLayout = "Mon Jan 02 2006 3:04PM"

// StatusMessage renders an in-transit status message for a check-in at t.
func StatusMessage(t time.Time, origin, destination string) string {
	return fmt.Sprintf("%s: IN TRANSIT from %s to %s", t.Format(MessageLayout), origin, destination)
}

// CandidateBuilder builds record store rows that qualify as anomalies
// unless a With* call says otherwise.
type CandidateBuilder struct {
	row         model.CandidateRow
	checkinAt   time.Time
	origin      string
	destination string
	message     string
}

// NewCandidate starts a qualifying row checked in at checkinAt by origin.
func NewCandidate(barcode string, checkinAt time.Time, origin string) *CandidateBuilder {
	checkout := checkinAt.Add(-2 * time.Hour)
	return &CandidateBuilder{
		row: model.CandidateRow{
			Barcode:               barcode,
			ItemStatus:            model.InTransitStatus,
			HasOpenCheckout:       true,
			CheckoutAt:            &checkout,
			CheckoutStatGroup:     7,
			CheckoutStatGroupName: "Circ desk",
		},
		checkinAt:   checkinAt,
		origin:      origin,
		destination: "Main Library",
	}
}

// WithStatus overrides the item status code.
func (b *CandidateBuilder) WithStatus(status string) *CandidateBuilder {
	b.row.ItemStatus = status
	return b
}

// WithoutCheckout removes the open checkout.
func (b *CandidateBuilder) WithoutCheckout() *CandidateBuilder {
	b.row.HasOpenCheckout = false
	b.row.CheckoutAt = nil
	return b
}

// WithHold marks the item as fulfilling a hold.
func (b *CandidateBuilder) WithHold() *CandidateBuilder {
	b.row.FulfillingHold = true
	return b
}

// WithDestination sets the destination named in the message.
func (b *CandidateBuilder) WithDestination(destination string) *CandidateBuilder {
	b.destination = destination
	return b
}

// WithMessage replaces the rendered status message verbatim.
func (b *CandidateBuilder) WithMessage(message string) *CandidateBuilder {
	b.message = message
	return b
}

// Build returns the row.
func (b *CandidateBuilder) Build() model.CandidateRow {
	row := b.row
	row.Message = b.message
	if row.Message == "" {
		row.Message = StatusMessage(b.checkinAt, b.origin, b.destination)
	}
	return row
}

// Snapshot bundles rows with an identity directory of name to stat group.
func Snapshot(identities map[string]int, rows ...model.CandidateRow) *model.Snapshot {
	dir := make(map[string]model.Identity, len(identities))
	for name, group := range identities {
		dir[name] = model.Identity{Name: name, StatGroup: group}
	}
	return &model.Snapshot{Identities: dir, Candidates: rows}
}
