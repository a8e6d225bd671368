// Package model defines the core domain models used throughout the application.
package model

import "time"

// InTransitStatus is the Sierra item status code for "in transit".
const InTransitStatus = "t"

// CandidateRow is one row returned by the record store: an item that may be
// stuck between a failed check-in and an open checkout.
type CandidateRow struct {
	CheckoutAt            *time.Time
	Barcode               string
	ItemStatus            string
	CheckoutStatGroupName string
	Message               string
	CheckoutStatGroup     int
	HasOpenCheckout       bool
	FulfillingHold        bool
}

// Identity is an entry of the catalog's login directory. Origin locations in
// status messages are matched against Name.
type Identity struct {
	Name      string
	StatGroup int
}

// Snapshot is everything the detector needs from a single read of the record store.
type Snapshot struct {
	Identities map[string]Identity
	Candidates []CandidateRow
}

// AnomalyRecord describes one item that is simultaneously checked out and in transit.
type AnomalyRecord struct {
	CheckinAttemptedAt    time.Time
	CheckoutAt            time.Time
	Barcode               string
	Username              string
	CheckoutStatGroupName string
	RawStatusMessage      string
	OriginLocation        string
	DestinationLocation   string
	CheckinStatGroup      int
	CheckoutStatGroup     int
	FulfillingHold        bool
}

// ExclusionReason explains why a candidate row did not become an anomaly.
type ExclusionReason string

// Exclusion reasons.
const (
	ExcludedNotInTransit     ExclusionReason = "not_in_transit"
	ExcludedNoCheckout       ExclusionReason = "no_open_checkout"
	ExcludedMissingBarcode   ExclusionReason = "missing_barcode"
	ExcludedUnparseable      ExclusionReason = "unparseable_message"
	ExcludedGracePeriod      ExclusionReason = "within_grace_period"
	ExcludedUnresolvedOrigin ExclusionReason = "unresolved_origin"
	ExcludedDuplicate        ExclusionReason = "duplicate_barcode"
)

// Exclusion records a candidate row that was dropped during detection.
type Exclusion struct {
	Barcode string
	Reason  ExclusionReason
	Detail  string
}

// Detection is the result of one detection pass.
type Detection struct {
	Anomalies  []AnomalyRecord
	Exclusions []Exclusion
}
