// Package transit parses the free-text status message Sierra attaches to an
// item when a check-in puts it in transit.
//
// The message has the shape
//
//	<weekday> <month> <day> <year> <hour>:<minute><AM|PM>: IN TRANSIT ... from <origin> to <destination>
//
// and is broken into three capture points: the header timestamp (everything
// before ": IN"), the origin (between "from " and the next " to") and the
// destination (everything after the last "to ").
package transit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Marker is the case-sensitive text that identifies an in-transit message.
const Marker = "IN TRANSIT"

const (
	headerSep  = ": IN"
	originTok  = "from "
	originEnd  = " to"
	destTok    = "to "
	timeLayout = "Mon Jan _2 2006 3:04PM"
)

// Parse errors.
var (
	ErrNoMarker      = errors.New("message does not contain in-transit marker")
	ErrNoHeader      = errors.New("message has no timestamp header")
	ErrBadTimestamp  = errors.New("timestamp does not match calendar format")
	ErrNoOrigin      = errors.New("origin location not found")
	ErrNoDestination = errors.New("destination location not found")
)

// Field names a capture point of the grammar.
type Field string

// Capture points.
const (
	FieldMarker      Field = "marker"
	FieldTimestamp   Field = "timestamp"
	FieldOrigin      Field = "origin"
	FieldDestination Field = "destination"
)

// ParseError reports which capture point of a message could not be recovered.
type ParseError struct {
	Err   error
	Field Field
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s of %q: %v", e.Field, e.Input, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Message holds the structured facts extracted from a status message.
type Message struct {
	CheckinAt   time.Time
	Raw         string
	Origin      string
	Destination string
}

// Parse extracts the check-in timestamp, origin and destination from raw.
// Timestamps carry no zone in the message and are interpreted in loc; a nil
// loc means time.Local.
func Parse(raw string, loc *time.Location) (Message, error) {
	if loc == nil {
		loc = time.Local
	}
	if !strings.Contains(raw, Marker) {
		return Message{}, &ParseError{Field: FieldMarker, Input: raw, Err: ErrNoMarker}
	}

	header, _, found := strings.Cut(raw, headerSep)
	if !found {
		return Message{}, &ParseError{Field: FieldTimestamp, Input: raw, Err: ErrNoHeader}
	}
	checkinAt, err := ParseTimestamp(header, loc)
	if err != nil {
		return Message{}, &ParseError{Field: FieldTimestamp, Input: header, Err: err}
	}

	origin, err := origin(raw)
	if err != nil {
		return Message{}, &ParseError{Field: FieldOrigin, Input: raw, Err: err}
	}

	destination, err := destination(raw)
	if err != nil {
		return Message{}, &ParseError{Field: FieldDestination, Input: raw, Err: err}
	}

	return Message{
		Raw:         raw,
		CheckinAt:   checkinAt,
		Origin:      origin,
		Destination: destination,
	}, nil
}

// ParseTimestamp parses a header of the form "Mon Jan 05 2024 10:15AM".
// Runs of whitespace between the five tokens are collapsed, and the
// meridiem is accepted in either case.
func ParseTimestamp(header string, loc *time.Location) (time.Time, error) {
	tokens := strings.Fields(header)
	if len(tokens) != 5 {
		return time.Time{}, fmt.Errorf("%w: want 5 tokens, got %d", ErrBadTimestamp, len(tokens))
	}
	tokens[4] = strings.ToUpper(tokens[4])

	t, err := time.ParseInLocation(timeLayout, strings.Join(tokens, " "), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrBadTimestamp, err)
	}
	return t, nil
}

func origin(raw string) (string, error) {
	_, rest, found := strings.Cut(raw, originTok)
	if !found {
		return "", ErrNoOrigin
	}
	// Text after a second "from " is not part of the first capture.
	rest, _, _ = strings.Cut(rest, originTok)
	value, _, found := strings.Cut(rest, originEnd)
	if !found {
		return "", ErrNoOrigin
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ErrNoOrigin
	}
	return value, nil
}

func destination(raw string) (string, error) {
	i := strings.LastIndex(raw, destTok)
	if i < 0 {
		return "", ErrNoDestination
	}
	value := strings.TrimSpace(raw[i+len(destTok):])
	if value == "" {
		return "", ErrNoDestination
	}
	return value, nil
}
