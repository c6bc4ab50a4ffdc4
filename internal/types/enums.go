package types

// ClassStatus represents the lifecycle state of a scheduled class.
type ClassStatus string

const (
	ClassStatusScheduled ClassStatus = "scheduled"
	ClassStatusOngoing   ClassStatus = "ongoing"
	ClassStatusCompleted ClassStatus = "completed"
	ClassStatusCancelled ClassStatus = "cancelled"
)

// classTransitions lists the allowed forward transitions for classes.
// Time progression moves scheduled→ongoing→completed; cancellation is
// terminal and only reachable before the class completes.
var classTransitions = map[ClassStatus][]ClassStatus{
	ClassStatusScheduled: {ClassStatusOngoing, ClassStatusCancelled},
	ClassStatusOngoing:   {ClassStatusCompleted, ClassStatusCancelled},
	ClassStatusCompleted: {},
	ClassStatusCancelled: {},
}

// CanTransitionTo reports whether a class may move from its current
// status to the target status.
func (s ClassStatus) CanTransitionTo(target ClassStatus) bool {
	for _, allowed := range classTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsValid reports whether the value is a known class status.
func (s ClassStatus) IsValid() bool {
	switch s {
	case ClassStatusScheduled, ClassStatusOngoing, ClassStatusCompleted, ClassStatusCancelled:
		return true
	}
	return false
}

// SubscriptionStatus represents the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// subscriptionTransitions lists the allowed transitions for subscriptions.
// expired→active covers allowance restoration after a cancellation refunds
// a class to a subscription that ran down to zero but is still inside its
// expiry window.
var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusActive:    {SubscriptionStatusExpired, SubscriptionStatusCancelled},
	SubscriptionStatusExpired:   {SubscriptionStatusActive},
	SubscriptionStatusCancelled: {},
}

// CanTransitionTo reports whether a subscription may move from its
// current status to the target status.
func (s SubscriptionStatus) CanTransitionTo(target SubscriptionStatus) bool {
	for _, allowed := range subscriptionTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsValid reports whether the value is a known subscription status.
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusExpired, SubscriptionStatusCancelled:
		return true
	}
	return false
}

// ReservationStatus represents the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusCompleted ReservationStatus = "completed"
	ReservationStatusNoShow    ReservationStatus = "no_show"
)

// reservationTransitions lists the allowed transitions for reservations.
// All three terminal states are only reachable from confirmed.
var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusConfirmed: {ReservationStatusCancelled, ReservationStatusCompleted, ReservationStatusNoShow},
	ReservationStatusCancelled: {},
	ReservationStatusCompleted: {},
	ReservationStatusNoShow:    {},
}

// CanTransitionTo reports whether a reservation may move from its
// current status to the target status.
func (s ReservationStatus) CanTransitionTo(target ReservationStatus) bool {
	for _, allowed := range reservationTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsValid reports whether the value is a known reservation status.
func (s ReservationStatus) IsValid() bool {
	switch s {
	case ReservationStatusConfirmed, ReservationStatusCancelled, ReservationStatusCompleted, ReservationStatusNoShow:
		return true
	}
	return false
}
