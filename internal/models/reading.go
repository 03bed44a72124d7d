package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/septivank/water-meter-agent/tools/timeparser"
)

// ReadingStatus is the approval state of a submitted reading
type ReadingStatus string

const (
	StatusPending     ReadingStatus = "pending"
	StatusReSubmitted ReadingStatus = "re_submitted"
	StatusApproved    ReadingStatus = "approved"
	StatusRejected    ReadingStatus = "rejected"
)

// UnmarshalJSON accepts any casing the backend sends ("PENDING", "Re_Submitted", ...)
func (s *ReadingStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseReadingStatus(raw)
	return nil
}

func ParseReadingStatus(raw string) ReadingStatus {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	if normalized == "resubmitted" {
		normalized = string(StatusReSubmitted)
	}
	return ReadingStatus(normalized)
}

// AwaitingReview reports whether the reading still blocks new submissions for its meter
func (s ReadingStatus) AwaitingReview() bool {
	return s == StatusPending || s == StatusReSubmitted
}

// AccessReason records whether the agent could read the meter
type AccessReason string

const (
	AccessReasonAccessed   AccessReason = "Accessed"
	AccessReasonDoorClosed AccessReason = "Door_Closed"
)

// ID is an opaque backend identifier; numeric identifiers are kept as their decimal text
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// MeterReading is a reading as returned by the backend
type MeterReading struct {
	ID               ID                  `json:"id"`
	MeterID          ID                  `json:"meterId"`
	ReadingDate      string              `json:"readingDate"`
	CurrentIndex     decimal.NullDecimal `json:"currentIndex"`
	PreviousIndex    decimal.Decimal     `json:"previousIndex"`
	Consumption      decimal.Decimal     `json:"consumption"`
	Status           ReadingStatus       `json:"status"`
	AccessReason     AccessReason        `json:"accessReason,omitempty"`
	EvidencePhotoURL string              `json:"evidencePhotoUrl,omitempty"`
	PhotoURLs        []string            `json:"photoUrls,omitempty"`
	Longitude        *float64            `json:"longitude,omitempty"`
	Latitude         *float64            `json:"latitude,omitempty"`
	Comments         string              `json:"comments,omitempty"`
}

// ReadAt parses the reading date, interpreting offset-less values in loc
func (r MeterReading) ReadAt(loc *time.Location) (time.Time, error) {
	return timeparser.ParseReadingDate(r.ReadingDate, loc)
}

// LastIndex is the index the meter showed after this reading
func (r MeterReading) LastIndex() decimal.Decimal {
	if r.CurrentIndex.Valid {
		return r.CurrentIndex.Decimal
	}
	return r.PreviousIndex
}

// Location is a geolocation captured at submission time
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SubmissionPayload is the normalized body of POST /meter-readings/new
type SubmissionPayload struct {
	MeterID       ID
	ReadingDate   string
	CurrentIndex  decimal.Decimal
	PreviousIndex decimal.Decimal
	Consumption   decimal.Decimal
	AccessReason  AccessReason
	Location      *Location
	Comments      string
	PhotoPath     string
}
