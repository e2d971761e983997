package model

import (
	"strings"
	"time"
)

// DateLayout is the only date precision the courier manifest accepts.
const DateLayout = "2006-01-02"

// SystemActor is recorded on history entries produced by automated triggers.
const SystemActor = "System"

// ShipmentRecord is the per-order AWB state. An empty AWBNumber means NoAwb.
type ShipmentRecord struct {
	OrderID        string    `json:"order_id" db:"order_id"`
	AWBNumber      string    `json:"awb_number,omitempty" db:"awb_number"`
	AWBStatus      string    `json:"awb_status,omitempty" db:"awb_status"`
	GenerationDate string    `json:"awb_generation_date,omitempty" db:"awb_generation_date"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

func (r ShipmentRecord) HasAWB() bool {
	return r.AWBNumber != ""
}

type ActionKind string

const (
	ActionAttemptCreate  ActionKind = "attempt_create"
	ActionCreated        ActionKind = "created"
	ActionDeletionMarker ActionKind = "deletion_marker"
	ActionErrorCreate    ActionKind = "error_create"
	ActionErrorDownload  ActionKind = "error_download"
	ActionErrorSync      ActionKind = "error_sync"
	ActionDownloaded     ActionKind = "downloaded"
	ActionVerified       ActionKind = "verified"
	ActionRestored       ActionKind = "restored"
)

// IsCreation reports whether the entry put an AWB on the order.
func (k ActionKind) IsCreation() bool {
	return k == ActionCreated || k == ActionRestored
}

func (k ActionKind) IsDeletion() bool {
	return k == ActionDeletionMarker
}

// HistoryEntry is one immutable line of the per-order audit log.
type HistoryEntry struct {
	Timestamp      int64      `json:"timestamp" dynamodbav:"timestamp"`
	Actor          string     `json:"actor" dynamodbav:"actor"`
	Action         ActionKind `json:"action" dynamodbav:"action"`
	Reason         string     `json:"reason,omitempty" dynamodbav:"reason,omitempty"`
	OrderStatus    string     `json:"order_status" dynamodbav:"order_status"`
	Details        string     `json:"details" dynamodbav:"details"`
	AWBNumber      string     `json:"awb_number,omitempty" dynamodbav:"awb_number,omitempty"`
	GenerationDate string     `json:"generation_date,omitempty" dynamodbav:"generation_date,omitempty"`
}

// CourierDate floors t to a calendar day in the courier's timezone.
func CourierDate(t time.Time, offset time.Duration) string {
	return t.UTC().Add(offset).Format(DateLayout)
}

// NormalizeDate accepts a date or a full timestamp and keeps the day part.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Format(DateLayout)
		}
		return s[:len(DateLayout)]
	}
	return s
}

func trimSpace(s string) string {
	return strings.TrimSpace(s)
}
