package model

import "time"

type GenerateOutcome string

const (
	GenerateAlreadyExists   GenerateOutcome = "already_exists"
	GenerateCreated         GenerateOutcome = "created"
	GenerateRestored        GenerateOutcome = "restored"
	GenerateQueued          GenerateOutcome = "queued"
	GenerateInProgress      GenerateOutcome = "in_progress"
	GenerateValidationError GenerateOutcome = "validation_error"
	GenerateBlocked         GenerateOutcome = "blocked"
)

type GenerateResult struct {
	Outcome GenerateOutcome `json:"outcome"`
	AWB     string          `json:"awb,omitempty"`
	Status  string          `json:"status,omitempty"`
	Fields  []string        `json:"fields,omitempty"`
}

type SyncOutcome string

const (
	SyncUpdated SyncOutcome = "updated"
	SyncDeleted SyncOutcome = "deleted_and_regenerable"
	SyncNoAWB   SyncOutcome = "no_awb"
	SyncSkipped SyncOutcome = "skipped"
)

type SyncResult struct {
	Outcome SyncOutcome `json:"outcome"`
	AWB     string      `json:"awb,omitempty"`
	Status  string      `json:"status,omitempty"`
}

type DeleteOutcome string

const (
	DeleteKept    DeleteOutcome = "kept"
	DeleteDeleted DeleteOutcome = "deleted"
	DeleteNoAWB   DeleteOutcome = "no_awb"
)

type RestoreOutcome string

const (
	RestoreHasAWB RestoreOutcome = "has_awb"
	RestoreNoAWB  RestoreOutcome = "no_awb"
)

type RestoreResult struct {
	Outcome RestoreOutcome `json:"outcome"`
	AWB     string         `json:"awb,omitempty"`
	Date    string         `json:"date,omitempty"`
}

type BulkResult struct {
	Generated int `json:"generated"`
	Errors    int `json:"errors"`
}

type SweepResult struct {
	Checked int `json:"checked"`
	Deleted int `json:"deleted"`
	Errors  int `json:"errors"`
}

// HealthReport backs the operator health screen.
type HealthReport struct {
	CourierReachable bool           `json:"courier_reachable"`
	CourierError     string         `json:"courier_error,omitempty"`
	RecentWithAWB    int            `json:"recent_with_awb"`
	WithSyncedStatus int            `json:"with_synced_status"`
	WithoutAWB       []OrderSummary `json:"recent_without_awb"`
}

type OrderSummary struct {
	ID     string  `json:"id"`
	Date   string  `json:"date"`
	Status string  `json:"status"`
	Total  float64 `json:"total"`
}

// LifecycleEvent is published whenever an order's AWB changes.
type LifecycleEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OrderID    string    `json:"order_id"`
	AWB        string    `json:"awb"`
	Date       string    `json:"date,omitempty"`
	Status     string    `json:"status,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
}
