package types

import (
	"time"
)

// Zone is a physical room or area within the studio where classes are held.
type Zone struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	MaxCapacity int       `json:"max_capacity" db:"max_capacity"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Instructor represents a member of staff who teaches classes.
type Instructor struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Specialty string    `json:"specialty,omitempty" db:"specialty"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Plan is a purchasable membership template: a class allowance consumed over a
// validity window.
type Plan struct {
	ID             string    `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	ClassAllowance int       `json:"class_allowance" db:"class_allowance"`
	ValidityDays   int       `json:"validity_days" db:"validity_days"`
	PriceCents     int64     `json:"price_cents" db:"price_cents"`
	Active         bool      `json:"active" db:"active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Student is a member who holds subscriptions and reserves class seats.
type Student struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Class is a time-boxed session taught by one instructor in one zone.
// StartsAt/EndsAt are UTC instants; the class's calendar date is StartsAt
// truncated to day. Overlap is half-open interval overlap on [StartsAt, EndsAt).
type Class struct {
	ID            string      `json:"id" db:"id"`
	Title         string      `json:"title" db:"title"`
	InstructorID  string      `json:"instructor_id" db:"instructor_id"`
	ZoneID        string      `json:"zone_id" db:"zone_id"`
	StartsAt      time.Time   `json:"starts_at" db:"starts_at"`
	EndsAt        time.Time   `json:"ends_at" db:"ends_at"`
	CapacityLimit int         `json:"capacity_limit" db:"capacity_limit"`
	Status        ClassStatus `json:"status" db:"status"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`

	// Hydrated field (counted from reservations, not stored on the row).
	ConfirmedCount int `json:"confirmed_count" db:"-"`
}

// Overlaps reports whether two classes occupy overlapping time intervals.
// Intervals are half-open, so back-to-back classes do not overlap.
func (c *Class) Overlaps(other *Class) bool {
	return c.StartsAt.Before(other.EndsAt) && other.StartsAt.Before(c.EndsAt)
}

// SeatsRemaining returns the number of unclaimed seats given the hydrated
// confirmed count.
func (c *Class) SeatsRemaining() int {
	return c.CapacityLimit - c.ConfirmedCount
}

// Subscription is a student's purchased instance of a plan: a decrementing
// class allowance valid until ExpiresAt. At most one subscription per student
// is active at any time.
type Subscription struct {
	ID               string             `json:"id" db:"id"`
	StudentID        string             `json:"student_id" db:"student_id"`
	PlanID           string             `json:"plan_id" db:"plan_id"`
	ClassesRemaining int                `json:"classes_remaining" db:"classes_remaining"`
	StartsAt         time.Time          `json:"starts_at" db:"starts_at"`
	ExpiresAt        time.Time          `json:"expires_at" db:"expires_at"`
	Status           SubscriptionStatus `json:"status" db:"status"`
	CreatedAt        time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" db:"updated_at"`
}

// IsUsable reports whether the subscription can cover a new reservation at
// the given instant.
func (s *Subscription) IsUsable(now time.Time) bool {
	return s.Status == SubscriptionStatusActive &&
		s.ClassesRemaining > 0 &&
		now.Before(s.ExpiresAt)
}

// Reservation is a student's claimed seat in a class, paid for with one unit
// of subscription allowance. SubscriptionID records which subscription the
// unit was drawn from so cancellation can restore it to the right ledger.
type Reservation struct {
	ID                 string            `json:"id" db:"id"`
	ClassID            string            `json:"class_id" db:"class_id"`
	StudentID          string            `json:"student_id" db:"student_id"`
	SubscriptionID     string            `json:"subscription_id" db:"subscription_id"`
	Status             ReservationStatus `json:"status" db:"status"`
	ReservedAt         time.Time         `json:"reserved_at" db:"reserved_at"`
	CancelledAt        *time.Time        `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancellationReason *string           `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt          time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at" db:"updated_at"`
}
