package model

import "time"

// Appointment statuses. Pending, approved and completed appointments occupy
// their interval for conflict purposes; rejected and cancelled free it.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	KindInPerson = "in-person"
	KindVirtual  = "virtual"
)

// AllowedDurations is the enumerated set of appointment lengths in minutes.
var AllowedDurations = []int{30, 60, 90, 120}

// ActiveStatuses are the statuses that block overlapping bookings.
var ActiveStatuses = []string{StatusPending, StatusApproved, StatusCompleted}

func IsActiveStatus(status string) bool {
	for _, s := range ActiveStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func IsAllowedDuration(mins int) bool {
	for _, d := range AllowedDurations {
		if d == mins {
			return true
		}
	}
	return false
}

func IsKnownKind(kind string) bool {
	return kind == KindInPerson || kind == KindVirtual
}

type Appointment struct {
	ID              string
	RequesterID     string
	Kind            string
	StartAt         time.Time
	DurationMinutes int
	Purpose         string
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a Appointment) EndAt() time.Time {
	return a.StartAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// AvailableDate is an explicit staff-set availability record for one
// calendar day. At most one record exists per date.
type AvailableDate struct {
	Date        time.Time
	IsAvailable bool
	SetBy       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DateKey is the canonical wire format for calendar days.
const DateKey = "2006-01-02"
