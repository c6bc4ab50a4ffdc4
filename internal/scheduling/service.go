// Package scheduling implements the class scheduler: creation, rescheduling,
// and cancellation of classes under the studio's capacity and overlap rules.
//
// The rules enforced here:
//   - A class must fit the policy duration bounds and start in the future.
//   - An instructor teaches at most one class at a time.
//   - A zone hosts at most one class at a time.
//   - A class's capacity never exceeds its zone's physical capacity and never
//     drops below the number of seats already confirmed.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"studiobook/internal/config"
	"studiobook/internal/db"
	"studiobook/internal/types"
)

// ClassStore defines the class data access needed by the scheduler.
type ClassStore interface {
	Create(ctx context.Context, class *types.Class) error
	GetByID(ctx context.Context, id string) (*types.Class, error)
	Update(ctx context.Context, class *types.Class) error
	UpdateStatus(ctx context.Context, id string, from, to types.ClassStatus) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, params db.ListClassesParams) ([]*types.Class, types.PageInfo, error)
	CountConfirmed(ctx context.Context, classID string) (int, error)
	HasInstructorOverlap(ctx context.Context, instructorID string, startsAt, endsAt time.Time, excludeID string) (bool, error)
	HasZoneOverlap(ctx context.Context, zoneID string, startsAt, endsAt time.Time, excludeID string) (bool, error)

	// MarkOngoing and MarkCompleted bulk-progress class statuses by clock,
	// returning the number of rows affected.
	MarkOngoing(ctx context.Context, now time.Time) (int, error)
	MarkCompleted(ctx context.Context, now time.Time) (int, error)
}

// ZoneStore defines the zone lookups needed by the scheduler.
type ZoneStore interface {
	GetByID(ctx context.Context, id string) (*types.Zone, error)
}

// InstructorStore defines the instructor lookups needed by the scheduler.
type InstructorStore interface {
	GetByID(ctx context.Context, id string) (*types.Instructor, error)
}

// Service is the class scheduler.
type Service struct {
	classes     ClassStore
	zones       ZoneStore
	instructors InstructorStore
	policy      config.PolicyConfig
	clock       types.Clock
	logger      *slog.Logger
}

// NewService creates a class scheduler.
func NewService(classes ClassStore, zones ZoneStore, instructors InstructorStore, policy config.PolicyConfig, clock types.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		classes:     classes,
		zones:       zones,
		instructors: instructors,
		policy:      policy,
		clock:       clock,
		logger:      logger,
	}
}

// CreateClassParams carries the fields for scheduling a new class.
type CreateClassParams struct {
	Title         string
	InstructorID  string
	ZoneID        string
	StartsAt      time.Time
	EndsAt        time.Time
	CapacityLimit int
}

// CreateClass schedules a new class after validating the time window,
// capacity, and both overlap rules.
func (s *Service) CreateClass(ctx context.Context, params CreateClassParams) (*types.Class, error) {
	if err := s.validateWindow(params.StartsAt, params.EndsAt); err != nil {
		return nil, err
	}

	instructor, err := s.instructors.GetByID(ctx, params.InstructorID)
	if err != nil {
		return nil, err
	}
	if !instructor.Active {
		return nil, types.NewAppError(types.ErrCodeNotFoundInstructor, "instructor is no longer active", nil)
	}

	zone, err := s.zones.GetByID(ctx, params.ZoneID)
	if err != nil {
		return nil, err
	}
	if !zone.Active {
		return nil, types.NewAppError(types.ErrCodeNotFoundZone, "zone is no longer active", nil)
	}

	if err := s.validateCapacity(params.CapacityLimit, zone, 0); err != nil {
		return nil, err
	}

	if err := s.checkOverlaps(ctx, params.InstructorID, params.ZoneID, params.StartsAt, params.EndsAt, ""); err != nil {
		return nil, err
	}

	class := &types.Class{
		ID:            "cls_" + uuid.New().String(),
		Title:         params.Title,
		InstructorID:  params.InstructorID,
		ZoneID:        params.ZoneID,
		StartsAt:      params.StartsAt.UTC(),
		EndsAt:        params.EndsAt.UTC(),
		CapacityLimit: params.CapacityLimit,
		Status:        types.ClassStatusScheduled,
	}
	if err := s.classes.Create(ctx, class); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "class scheduled",
		slog.String("class_id", class.ID),
		slog.String("instructor_id", class.InstructorID),
		slog.String("zone_id", class.ZoneID),
		slog.Time("starts_at", class.StartsAt),
	)
	return class, nil
}

// UpdateClassParams carries the optional fields for rescheduling a class.
// Nil pointers leave the current value unchanged.
type UpdateClassParams struct {
	Title         *string
	InstructorID  *string
	ZoneID        *string
	StartsAt      *time.Time
	EndsAt        *time.Time
	CapacityLimit *int
}

// UpdateClass reschedules a class. The merged result of current and updated
// fields is validated as a whole: time window, overlap rules with the class
// itself excluded, and capacity against both the zone's limit and the seats
// already confirmed.
func (s *Service) UpdateClass(ctx context.Context, id string, params UpdateClassParams) (*types.Class, error) {
	class, err := s.classes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if class.Status != types.ClassStatusScheduled {
		return nil, types.NewAppError(types.ErrCodeConflictInvalidTransition,
			fmt.Sprintf("only scheduled classes can be modified; class is %s", class.Status), nil)
	}

	if params.Title != nil {
		class.Title = *params.Title
	}
	if params.InstructorID != nil {
		class.InstructorID = *params.InstructorID
	}
	if params.ZoneID != nil {
		class.ZoneID = *params.ZoneID
	}
	if params.StartsAt != nil {
		class.StartsAt = params.StartsAt.UTC()
	}
	if params.EndsAt != nil {
		class.EndsAt = params.EndsAt.UTC()
	}
	if params.CapacityLimit != nil {
		class.CapacityLimit = *params.CapacityLimit
	}

	if err := s.validateWindow(class.StartsAt, class.EndsAt); err != nil {
		return nil, err
	}

	if params.InstructorID != nil {
		instructor, err := s.instructors.GetByID(ctx, class.InstructorID)
		if err != nil {
			return nil, err
		}
		if !instructor.Active {
			return nil, types.NewAppError(types.ErrCodeNotFoundInstructor, "instructor is no longer active", nil)
		}
	}

	zone, err := s.zones.GetByID(ctx, class.ZoneID)
	if err != nil {
		return nil, err
	}
	if params.ZoneID != nil && !zone.Active {
		return nil, types.NewAppError(types.ErrCodeNotFoundZone, "zone is no longer active", nil)
	}

	confirmed, err := s.classes.CountConfirmed(ctx, class.ID)
	if err != nil {
		return nil, err
	}
	if err := s.validateCapacity(class.CapacityLimit, zone, confirmed); err != nil {
		return nil, err
	}

	if err := s.checkOverlaps(ctx, class.InstructorID, class.ZoneID, class.StartsAt, class.EndsAt, class.ID); err != nil {
		return nil, err
	}

	if err := s.classes.Update(ctx, class); err != nil {
		return nil, err
	}
	class.ConfirmedCount = confirmed

	s.logger.InfoContext(ctx, "class updated", slog.String("class_id", class.ID))
	return class, nil
}

// GetClass fetches a class by ID.
func (s *Service) GetClass(ctx context.Context, id string) (*types.Class, error) {
	return s.classes.GetByID(ctx, id)
}

// ListClasses returns classes matching the filters with cursor pagination.
func (s *Service) ListClasses(ctx context.Context, params db.ListClassesParams) ([]*types.Class, types.PageInfo, error) {
	return s.classes.List(ctx, params)
}

// DeleteClass removes a class. When confirmed reservations exist the class is
// soft-cancelled so reservation history stays intact; otherwise the row is
// deleted outright.
func (s *Service) DeleteClass(ctx context.Context, id string) error {
	class, err := s.classes.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if class.ConfirmedCount > 0 {
		if !class.Status.CanTransitionTo(types.ClassStatusCancelled) {
			return types.NewAppError(types.ErrCodeConflictInvalidTransition,
				fmt.Sprintf("class in status %s cannot be cancelled", class.Status), nil)
		}
		if err := s.classes.UpdateStatus(ctx, id, class.Status, types.ClassStatusCancelled); err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "class soft-cancelled",
			slog.String("class_id", id),
			slog.Int("confirmed_reservations", class.ConfirmedCount),
		)
		return nil
	}

	if err := s.classes.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "class deleted", slog.String("class_id", id))
	return nil
}

// CancelClass soft-cancels a class regardless of its reservation count.
// Existing confirmed reservations stay attached for the cancellation flow to
// refund.
func (s *Service) CancelClass(ctx context.Context, id string) error {
	class, err := s.classes.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !class.Status.CanTransitionTo(types.ClassStatusCancelled) {
		return types.NewAppError(types.ErrCodeConflictInvalidTransition,
			fmt.Sprintf("class in status %s cannot be cancelled", class.Status), nil)
	}
	return s.classes.UpdateStatus(ctx, id, class.Status, types.ClassStatusCancelled)
}

// HasScheduleConflict reports whether the instructor has a non-cancelled
// class overlapping the window, excluding excludeClassID when non-empty.
func (s *Service) HasScheduleConflict(ctx context.Context, instructorID string, startsAt, endsAt time.Time, excludeClassID string) (bool, error) {
	return s.classes.HasInstructorOverlap(ctx, instructorID, startsAt, endsAt, excludeClassID)
}

// HasZoneConflict reports whether the zone has a non-cancelled class
// overlapping the window, excluding excludeClassID when non-empty.
func (s *Service) HasZoneConflict(ctx context.Context, zoneID string, startsAt, endsAt time.Time, excludeClassID string) (bool, error) {
	return s.classes.HasZoneOverlap(ctx, zoneID, startsAt, endsAt, excludeClassID)
}

// ProgressClassStatuses advances class statuses by clock: scheduled classes
// whose start has passed become ongoing, and classes whose end has passed
// become completed. Invoked by the maintenance sweep. Returns the number of
// classes progressed.
func (s *Service) ProgressClassStatuses(ctx context.Context, now time.Time) (int, error) {
	completed, err := s.classes.MarkCompleted(ctx, now)
	if err != nil {
		return 0, err
	}
	ongoing, err := s.classes.MarkOngoing(ctx, now)
	if err != nil {
		return completed, err
	}
	if completed+ongoing > 0 {
		s.logger.InfoContext(ctx, "class statuses progressed",
			slog.Int("marked_ongoing", ongoing),
			slog.Int("marked_completed", completed),
		)
	}
	return completed + ongoing, nil
}

func (s *Service) validateWindow(startsAt, endsAt time.Time) error {
	if startsAt.IsZero() || endsAt.IsZero() {
		return types.NewAppError(types.ErrCodeValidationMissingField, "starts_at and ends_at are required", nil)
	}
	if !endsAt.After(startsAt) {
		return types.NewAppError(types.ErrCodeValidationTimeRange, "ends_at must be after starts_at", nil)
	}
	duration := endsAt.Sub(startsAt)
	if duration < s.policy.MinClassDuration || duration > s.policy.MaxClassDuration {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationDuration,
			"class duration is outside the allowed range", nil,
			map[string]any{
				"min": s.policy.MinClassDuration.String(),
				"max": s.policy.MaxClassDuration.String(),
			})
	}
	if !startsAt.After(s.clock.Now()) {
		return types.NewAppError(types.ErrCodeValidationDateInPast, "class must start in the future", nil)
	}
	return nil
}

func (s *Service) validateCapacity(capacity int, zone *types.Zone, confirmed int) error {
	if capacity <= 0 {
		return types.NewAppError(types.ErrCodeValidationCapacity, "capacity_limit must be positive", nil)
	}
	if capacity > zone.MaxCapacity {
		return types.NewAppErrorWithDetails(types.ErrCodeConflictZoneCapacity,
			"capacity_limit exceeds zone capacity", nil,
			map[string]any{"zone_max_capacity": zone.MaxCapacity})
	}
	if capacity < confirmed {
		return types.NewAppErrorWithDetails(types.ErrCodeConflictCapacityBelowBooked,
			"capacity_limit is below the number of confirmed reservations", nil,
			map[string]any{"confirmed_reservations": confirmed})
	}
	return nil
}

func (s *Service) checkOverlaps(ctx context.Context, instructorID, zoneID string, startsAt, endsAt time.Time, excludeID string) error {
	conflict, err := s.classes.HasInstructorOverlap(ctx, instructorID, startsAt, endsAt, excludeID)
	if err != nil {
		return err
	}
	if conflict {
		return types.NewAppError(types.ErrCodeConflictScheduleOverlap,
			"instructor already teaches an overlapping class", nil)
	}

	conflict, err = s.classes.HasZoneOverlap(ctx, zoneID, startsAt, endsAt, excludeID)
	if err != nil {
		return err
	}
	if conflict {
		return types.NewAppError(types.ErrCodeConflictZoneOverlap,
			"zone already hosts an overlapping class", nil)
	}
	return nil
}
