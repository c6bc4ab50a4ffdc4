package reservations

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobook/internal/config"
	"studiobook/internal/types"
)

// fakeStore is an in-memory EngineDB. Transactions are emulated with a
// single mutex held from BeginTx to Commit/Rollback, which serializes
// booking decisions exactly like the row locks do in PostgreSQL.
type fakeStore struct {
	mu           sync.Mutex
	students     map[string]*types.Student
	classes      map[string]*types.Class
	subs         map[string]*types.Subscription
	reservations map[string]*types.Reservation
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		students:     make(map[string]*types.Student),
		classes:      make(map[string]*types.Class),
		subs:         make(map[string]*types.Subscription),
		reservations: make(map[string]*types.Reservation),
	}
}

func (s *fakeStore) confirmedCount(classID string) int {
	n := 0
	for _, r := range s.reservations {
		if r.ClassID == classID && r.Status == types.ReservationStatusConfirmed {
			n++
		}
	}
	return n
}

func (s *fakeStore) BeginTx(ctx context.Context) (EngineTx, error) {
	s.mu.Lock()
	return &fakeTx{store: s}, nil
}

func (s *fakeStore) GetClass(ctx context.Context, id string) (*types.Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getClassLocked(id)
}

func (s *fakeStore) getClassLocked(id string) (*types.Class, error) {
	c, ok := s.classes[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundClass, "class not found", nil)
	}
	cp := *c
	cp.ConfirmedCount = s.confirmedCount(id)
	return &cp, nil
}

func (s *fakeStore) GetStudent(ctx context.Context, id string) (*types.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundStudent, "student not found", nil)
	}
	cp := *st
	return &cp, nil
}

func (s *fakeStore) GetReservation(ctx context.Context, id string) (*types.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getReservationLocked(id)
}

func (s *fakeStore) getReservationLocked(id string) (*types.Reservation, error) {
	r, ok := s.reservations[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundReservation, "reservation not found", nil)
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) GetActiveSubscription(ctx context.Context, studentID string, now time.Time) (*types.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getActiveSubscriptionLocked(studentID, now)
}

func (s *fakeStore) getActiveSubscriptionLocked(studentID string, now time.Time) (*types.Subscription, error) {
	for _, sub := range s.subs {
		if sub.StudentID == studentID && sub.Status == types.SubscriptionStatusActive && now.Before(sub.ExpiresAt) {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "no active subscription", nil)
}

func (s *fakeStore) HasActiveReservation(ctx context.Context, classID, studentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasActiveReservationLocked(classID, studentID), nil
}

func (s *fakeStore) hasActiveReservationLocked(classID, studentID string) bool {
	for _, r := range s.reservations {
		if r.ClassID == classID && r.StudentID == studentID && r.Status != types.ReservationStatusCancelled {
			return true
		}
	}
	return false
}

func (s *fakeStore) ListReservationsByStudent(ctx context.Context, studentID string) ([]*types.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Reservation
	for _, r := range s.reservations {
		if r.StudentID == studentID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) ListReservationsByClass(ctx context.Context, classID string) ([]*types.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Reservation
	for _, r := range s.reservations {
		if r.ClassID == classID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) ListConfirmedEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*types.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Reservation
	for _, r := range s.reservations {
		if r.Status != types.ReservationStatusConfirmed {
			continue
		}
		class, ok := s.classes[r.ClassID]
		if !ok || !class.EndsAt.Before(cutoff) {
			continue
		}
		cp := *r
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) CompleteReservation(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundReservation, "reservation not found", nil)
	}
	if r.Status != types.ReservationStatusConfirmed {
		return types.NewAppError(types.ErrCodeConflictInvalidTransition, "not confirmed", nil)
	}
	r.Status = types.ReservationStatusCompleted
	r.CompletedAt = &now
	return nil
}

// fakeTx executes against the store while the store mutex is held. Rows
// inserted during the transaction are discarded again on Rollback, so a
// failed booking leaves no trace, as in the real database.
type fakeTx struct {
	store   *fakeStore
	created []string
	done    bool
}

func (t *fakeTx) release() {
	if !t.done {
		t.done = true
		t.store.mu.Unlock()
	}
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.created = nil
	t.release()
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	for _, id := range t.created {
		delete(t.store.reservations, id)
	}
	t.created = nil
	t.release()
	return nil
}

func (t *fakeTx) LockClass(ctx context.Context, id string) (*types.Class, error) {
	return t.store.getClassLocked(id)
}

func (t *fakeTx) LockActiveSubscription(ctx context.Context, studentID string, now time.Time) (*types.Subscription, error) {
	return t.store.getActiveSubscriptionLocked(studentID, now)
}

func (t *fakeTx) LockReservation(ctx context.Context, id string) (*types.Reservation, error) {
	return t.store.getReservationLocked(id)
}

func (t *fakeTx) GetClass(ctx context.Context, id string) (*types.Class, error) {
	return t.store.getClassLocked(id)
}

func (t *fakeTx) HasActiveReservation(ctx context.Context, classID, studentID string) (bool, error) {
	return t.store.hasActiveReservationLocked(classID, studentID), nil
}

func (t *fakeTx) CreateReservation(ctx context.Context, res *types.Reservation) error {
	cp := *res
	t.store.reservations[res.ID] = &cp
	t.created = append(t.created, res.ID)
	return nil
}

func (t *fakeTx) CancelReservation(ctx context.Context, id, reason string, now time.Time) error {
	r := t.store.reservations[id]
	if r == nil || r.Status != types.ReservationStatusConfirmed {
		return types.NewAppError(types.ErrCodeConflictInvalidTransition, "not confirmed", nil)
	}
	r.Status = types.ReservationStatusCancelled
	r.CancelledAt = &now
	if reason != "" {
		r.CancellationReason = &reason
	}
	return nil
}

func (t *fakeTx) CompleteReservation(ctx context.Context, id string, now time.Time) error {
	r := t.store.reservations[id]
	if r == nil || r.Status != types.ReservationStatusConfirmed {
		return types.NewAppError(types.ErrCodeConflictInvalidTransition, "not confirmed", nil)
	}
	r.Status = types.ReservationStatusCompleted
	r.CompletedAt = &now
	return nil
}

func (t *fakeTx) MarkNoShow(ctx context.Context, id string, now time.Time) error {
	r := t.store.reservations[id]
	if r == nil || r.Status != types.ReservationStatusConfirmed {
		return types.NewAppError(types.ErrCodeConflictInvalidTransition, "not confirmed", nil)
	}
	r.Status = types.ReservationStatusNoShow
	r.CompletedAt = &now
	return nil
}

func (t *fakeTx) DecrementAllowance(ctx context.Context, subscriptionID string) error {
	sub := t.store.subs[subscriptionID]
	if sub == nil || sub.ClassesRemaining <= 0 {
		return types.NewAppError(types.ErrCodeConflictAllowanceExhausted, "no classes remaining", nil)
	}
	sub.ClassesRemaining--
	if sub.ClassesRemaining == 0 {
		sub.Status = types.SubscriptionStatusExpired
	}
	return nil
}

func (t *fakeTx) RestoreAllowance(ctx context.Context, subscriptionID string, now time.Time) error {
	sub := t.store.subs[subscriptionID]
	if sub == nil || sub.Status == types.SubscriptionStatusCancelled {
		return types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not restorable", nil)
	}
	sub.ClassesRemaining++
	if sub.Status == types.SubscriptionStatusExpired && now.Before(sub.ExpiresAt) {
		sub.Status = types.SubscriptionStatusActive
	}
	return nil
}

// --- Fixtures ---

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func testPolicy() config.PolicyConfig {
	return config.PolicyConfig{
		MinClassDuration:   30 * time.Minute,
		MaxClassDuration:   3 * time.Hour,
		CancellationWindow: 2 * time.Hour,
		ReservationRetries: 3,
	}
}

func newTestEngine(store *fakeStore) *Engine {
	return NewEngine(store, testPolicy(), types.FixedClock{T: testNow}, nil)
}

func seedStudent(store *fakeStore, id string) {
	store.students[id] = &types.Student{ID: id, Name: "Student " + id, Active: true}
}

func seedClass(store *fakeStore, id string, capacity int, startsIn time.Duration) {
	store.classes[id] = &types.Class{
		ID:            id,
		Title:         "Yoga",
		InstructorID:  "inst_1",
		ZoneID:        "zone_1",
		StartsAt:      testNow.Add(startsIn),
		EndsAt:        testNow.Add(startsIn + time.Hour),
		CapacityLimit: capacity,
		Status:        types.ClassStatusScheduled,
	}
}

func seedSubscription(store *fakeStore, id, studentID string, remaining int) {
	store.subs[id] = &types.Subscription{
		ID:               id,
		StudentID:        studentID,
		PlanID:           "plan_1",
		ClassesRemaining: remaining,
		StartsAt:         testNow.AddDate(0, 0, -5),
		ExpiresAt:        testNow.AddDate(0, 0, 25),
		Status:           types.SubscriptionStatusActive,
	}
}

func appCode(t *testing.T, err error) types.ErrorCode {
	t.Helper()
	require.Error(t, err)
	appErr, ok := err.(*types.AppError)
	require.True(t, ok, "expected *types.AppError, got %T: %v", err, err)
	return appErr.Code
}

// --- CreateReservation ---

func TestCreateReservation_Success(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedClass(store, "cls_1", 10, 24*time.Hour)
	seedSubscription(store, "sub_1", "stu_1", 5)

	engine := newTestEngine(store)
	res, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	require.NoError(t, err)

	assert.Equal(t, types.ReservationStatusConfirmed, res.Status)
	assert.Equal(t, "sub_1", res.SubscriptionID)
	assert.Equal(t, testNow, res.ReservedAt)
	assert.Equal(t, 4, store.subs["sub_1"].ClassesRemaining)
	assert.Equal(t, 1, store.confirmedCount("cls_1"))
}

func TestCreateReservation_LastCreditExpiresSubscription(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedClass(store, "cls_1", 10, 24*time.Hour)
	seedSubscription(store, "sub_1", "stu_1", 1)

	engine := newTestEngine(store)
	_, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	require.NoError(t, err)

	assert.Equal(t, 0, store.subs["sub_1"].ClassesRemaining)
	assert.Equal(t, types.SubscriptionStatusExpired, store.subs["sub_1"].Status)
}

func TestCreateReservation_ClassFull(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedStudent(store, "stu_2")
	seedClass(store, "cls_1", 1, 24*time.Hour)
	seedSubscription(store, "sub_1", "stu_1", 5)
	seedSubscription(store, "sub_2", "stu_2", 5)

	engine := newTestEngine(store)
	_, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	require.NoError(t, err)

	_, err = engine.CreateReservation(context.Background(), "stu_2", "cls_1")
	assert.Equal(t, types.ErrCodeConflictCapacityExceeded, appCode(t, err))
	assert.Equal(t, 5, store.subs["sub_2"].ClassesRemaining, "losing booking must not consume allowance")
}

func TestCreateReservation_Duplicate(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedClass(store, "cls_1", 10, 24*time.Hour)
	seedSubscription(store, "sub_1", "stu_1", 5)

	engine := newTestEngine(store)
	_, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	require.NoError(t, err)

	_, err = engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	assert.Equal(t, types.ErrCodeConflictDuplicateReservation, appCode(t, err))
	assert.Equal(t, 4, store.subs["sub_1"].ClassesRemaining)
}

func TestCreateReservation_RebookAfterCancelAllowed(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedClass(store, "cls_1", 10, 24*time.Hour)
	seedSubscription(store, "sub_1", "stu_1", 5)

	engine := newTestEngine(store)
	res, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	require.NoError(t, err)
	require.NoError(t, engine.CancelReservation(context.Background(), res.ID, ""))

	res2, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	require.NoError(t, err)
	assert.NotEqual(t, res.ID, res2.ID)
	assert.Equal(t, 4, store.subs["sub_1"].ClassesRemaining)
}

func TestCreateReservation_NoSubscription(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedClass(store, "cls_1", 10, 24*time.Hour)

	engine := newTestEngine(store)
	_, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	assert.Equal(t, types.ErrCodeConflictNoActiveSubscription, appCode(t, err))
}

func TestCreateReservation_ExpiredSubscription(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedClass(store, "cls_1", 10, 24*time.Hour)
	seedSubscription(store, "sub_1", "stu_1", 5)
	store.subs["sub_1"].ExpiresAt = testNow.Add(-time.Hour)

	engine := newTestEngine(store)
	_, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	assert.Equal(t, types.ErrCodeConflictNoActiveSubscription, appCode(t, err))
}

func TestCreateReservation_ClassNotOpen(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedClass(store, "cls_1", 10, 24*time.Hour)
	seedSubscription(store, "sub_1", "stu_1", 5)
	store.classes["cls_1"].Status = types.ClassStatusCancelled

	engine := newTestEngine(store)
	_, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	assert.Equal(t, types.ErrCodeConflictClassNotOpen, appCode(t, err))
}

func TestCreateReservation_ClassAlreadyStarted(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedClass(store, "cls_1", 10, -10*time.Minute)
	seedSubscription(store, "sub_1", "stu_1", 5)

	engine := newTestEngine(store)
	_, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	assert.Equal(t, types.ErrCodeConflictClassNotOpen, appCode(t, err))
}

func TestCreateReservation_InactiveStudent(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	store.students["stu_1"].Active = false
	seedClass(store, "cls_1", 10, 24*time.Hour)
	seedSubscription(store, "sub_1", "stu_1", 5)

	engine := newTestEngine(store)
	_, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	assert.Equal(t, types.ErrCodeNotFoundStudent, appCode(t, err))
}

func TestCreateReservation_ConcurrentLastSeat(t *testing.T) {
	store := newFakeStore()
	seedClass(store, "cls_1", 1, 24*time.Hour)

	const students = 8
	ids := make([]string, students)
	for i := 0; i < students; i++ {
		id := "stu_" + string(rune('a'+i))
		ids[i] = id
		seedStudent(store, id)
		seedSubscription(store, "sub_"+id, id, 3)
	}

	engine := newTestEngine(store)

	var wg sync.WaitGroup
	errs := make([]error, students)
	for i := 0; i < students; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.CreateReservation(context.Background(), ids[i], "cls_1")
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.Equal(t, types.ErrCodeConflictCapacityExceeded, appCode(t, err))
		assert.Equal(t, 3, store.subs["sub_"+ids[i]].ClassesRemaining)
	}
	assert.Equal(t, 1, winners, "exactly one booking may claim the last seat")
	assert.Equal(t, 1, store.confirmedCount("cls_1"))
}

func TestCreateReservation_ConcurrentLastCredit(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedSubscription(store, "sub_1", "stu_1", 1)

	const classes = 8
	ids := make([]string, classes)
	for i := 0; i < classes; i++ {
		id := "cls_" + string(rune('a'+i))
		ids[i] = id
		seedClass(store, id, 10, 24*time.Hour)
	}

	engine := newTestEngine(store)

	var wg sync.WaitGroup
	errs := make([]error, classes)
	for i := 0; i < classes; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.CreateReservation(context.Background(), "stu_1", ids[i])
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		// The winning decrement empties the allowance and flips the
		// subscription to expired, so later attempts find no active one.
		assert.Equal(t, types.ErrCodeConflictNoActiveSubscription, appCode(t, err))
	}
	assert.Equal(t, 1, winners, "exactly one booking may consume the last credit")
	assert.Equal(t, 0, store.subs["sub_1"].ClassesRemaining)
	assert.Equal(t, types.SubscriptionStatusExpired, store.subs["sub_1"].Status)

	confirmed := 0
	for _, id := range ids {
		confirmed += store.confirmedCount(id)
	}
	assert.Equal(t, 1, confirmed, "losing attempts must leave no reservation rows behind")
}

func TestCreateReservation_ExhaustedAllowanceLeavesNoRow(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedClass(store, "cls_1", 10, 24*time.Hour)
	seedSubscription(store, "sub_1", "stu_1", 0)

	engine := newTestEngine(store)
	_, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	assert.Equal(t, types.ErrCodeConflictAllowanceExhausted, appCode(t, err))
	assert.Equal(t, 0, store.confirmedCount("cls_1"),
		"aborted booking must roll its reservation row back")
}

// --- CancelReservation ---

func TestCancelReservation_RestoresAllowance(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedClass(store, "cls_1", 10, 24*time.Hour)
	seedSubscription(store, "sub_1", "stu_1", 5)

	engine := newTestEngine(store)
	res, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	require.NoError(t, err)
	require.Equal(t, 4, store.subs["sub_1"].ClassesRemaining)

	require.NoError(t, engine.CancelReservation(context.Background(), res.ID, ""))

	assert.Equal(t, 5, store.subs["sub_1"].ClassesRemaining)
	assert.Equal(t, types.ReservationStatusCancelled, store.reservations[res.ID].Status)
	require.NotNil(t, store.reservations[res.ID].CancelledAt)
}

func TestCancelReservation_ReactivatesExpiredSubscription(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedClass(store, "cls_1", 10, 24*time.Hour)
	seedSubscription(store, "sub_1", "stu_1", 1)

	engine := newTestEngine(store)
	res, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusExpired, store.subs["sub_1"].Status)

	require.NoError(t, engine.CancelReservation(context.Background(), res.ID, ""))

	assert.Equal(t, 1, store.subs["sub_1"].ClassesRemaining)
	assert.Equal(t, types.SubscriptionStatusActive, store.subs["sub_1"].Status)
}

func TestCancelReservation_DeadlinePassed(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedClass(store, "cls_1", 10, 24*time.Hour)
	seedSubscription(store, "sub_1", "stu_1", 5)

	engine := newTestEngine(store)
	res, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	require.NoError(t, err)

	// Move the class inside the 2h cancellation window.
	store.classes["cls_1"].StartsAt = testNow.Add(90 * time.Minute)

	err = engine.CancelReservation(context.Background(), res.ID, "")
	assert.Equal(t, types.ErrCodeConflictDeadlinePassed, appCode(t, err))
	assert.Equal(t, 4, store.subs["sub_1"].ClassesRemaining, "failed cancel must not restore allowance")
}

func TestCancelReservation_DeadlineWaivedWhenClassCancelled(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedClass(store, "cls_1", 10, 24*time.Hour)
	seedSubscription(store, "sub_1", "stu_1", 5)

	engine := newTestEngine(store)
	res, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	require.NoError(t, err)

	store.classes["cls_1"].StartsAt = testNow.Add(30 * time.Minute)
	store.classes["cls_1"].Status = types.ClassStatusCancelled

	require.NoError(t, engine.CancelReservation(context.Background(), res.ID, ""))
	assert.Equal(t, 5, store.subs["sub_1"].ClassesRemaining)
}

func TestCancelReservation_AlreadyCancelled(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedClass(store, "cls_1", 10, 24*time.Hour)
	seedSubscription(store, "sub_1", "stu_1", 5)

	engine := newTestEngine(store)
	res, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	require.NoError(t, err)
	require.NoError(t, engine.CancelReservation(context.Background(), res.ID, ""))

	err = engine.CancelReservation(context.Background(), res.ID, "")
	assert.Equal(t, types.ErrCodeConflictInvalidTransition, appCode(t, err))
	assert.Equal(t, 5, store.subs["sub_1"].ClassesRemaining, "double cancel must not restore twice")
}

func TestCancelReservation_StoresReason(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedClass(store, "cls_1", 10, 24*time.Hour)
	seedSubscription(store, "sub_1", "stu_1", 5)

	engine := newTestEngine(store)
	res, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	require.NoError(t, err)

	require.NoError(t, engine.CancelReservation(context.Background(), res.ID, "schedule conflict"))

	stored := store.reservations[res.ID]
	require.NotNil(t, stored.CancellationReason)
	assert.Equal(t, "schedule conflict", *stored.CancellationReason)

	// Cancelling without a reason keeps the field unset.
	res2, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	require.NoError(t, err)
	require.NoError(t, engine.CancelReservation(context.Background(), res2.ID, ""))
	assert.Nil(t, store.reservations[res2.ID].CancellationReason)
}

// --- Attendance ---

func TestCompleteReservation_BeforeClassStarts(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedClass(store, "cls_1", 10, 24*time.Hour)
	seedSubscription(store, "sub_1", "stu_1", 5)

	engine := newTestEngine(store)
	res, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	require.NoError(t, err)

	err = engine.CompleteReservation(context.Background(), res.ID)
	assert.Equal(t, types.ErrCodeConflictInvalidTransition, appCode(t, err))
}

func TestMarkNoShow_AfterClassStarts(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedClass(store, "cls_1", 10, 24*time.Hour)
	seedSubscription(store, "sub_1", "stu_1", 5)

	engine := newTestEngine(store)
	res, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	require.NoError(t, err)

	store.classes["cls_1"].StartsAt = testNow.Add(-time.Hour)
	store.classes["cls_1"].EndsAt = testNow.Add(-10 * time.Minute)

	require.NoError(t, engine.MarkNoShow(context.Background(), res.ID))
	assert.Equal(t, types.ReservationStatusNoShow, store.reservations[res.ID].Status)
	assert.Equal(t, 4, store.subs["sub_1"].ClassesRemaining, "no-show keeps the credit consumed")
}

// --- CanReserve ---

func TestCanReserve_ReportsBlockingReason(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedClass(store, "cls_1", 10, 24*time.Hour)

	engine := newTestEngine(store)
	err := engine.CanReserve(context.Background(), "stu_1", "cls_1")
	assert.Equal(t, types.ErrCodeConflictNoActiveSubscription, appCode(t, err))

	seedSubscription(store, "sub_1", "stu_1", 5)
	assert.NoError(t, engine.CanReserve(context.Background(), "stu_1", "cls_1"))
}

func TestCanReserve_FullClass(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedStudent(store, "stu_2")
	seedClass(store, "cls_1", 1, 24*time.Hour)
	seedSubscription(store, "sub_1", "stu_1", 5)
	seedSubscription(store, "sub_2", "stu_2", 5)

	engine := newTestEngine(store)
	_, err := engine.CreateReservation(context.Background(), "stu_1", "cls_1")
	require.NoError(t, err)

	err = engine.CanReserve(context.Background(), "stu_2", "cls_1")
	assert.Equal(t, types.ErrCodeConflictCapacityExceeded, appCode(t, err))
}

// --- Sweep ---

func TestProcessCompletedReservations_CompletesPriorDays(t *testing.T) {
	store := newFakeStore()
	seedStudent(store, "stu_1")
	seedStudent(store, "stu_2")
	seedSubscription(store, "sub_1", "stu_1", 5)
	seedSubscription(store, "sub_2", "stu_2", 5)

	// Class that ended yesterday: eligible.
	store.classes["cls_old"] = &types.Class{
		ID: "cls_old", Status: types.ClassStatusCompleted,
		StartsAt: testNow.AddDate(0, 0, -1).Add(-time.Hour),
		EndsAt:   testNow.AddDate(0, 0, -1),
	}
	// Class that ended earlier today: staff still have the no-show window.
	store.classes["cls_today"] = &types.Class{
		ID: "cls_today", Status: types.ClassStatusCompleted,
		StartsAt: testNow.Add(-2 * time.Hour),
		EndsAt:   testNow.Add(-time.Hour),
	}
	store.reservations["res_old"] = &types.Reservation{
		ID: "res_old", ClassID: "cls_old", StudentID: "stu_1",
		SubscriptionID: "sub_1", Status: types.ReservationStatusConfirmed,
	}
	store.reservations["res_today"] = &types.Reservation{
		ID: "res_today", ClassID: "cls_today", StudentID: "stu_2",
		SubscriptionID: "sub_2", Status: types.ReservationStatusConfirmed,
	}

	engine := newTestEngine(store)
	processed, err := engine.ProcessCompletedReservations(context.Background(), testNow)
	require.NoError(t, err)

	assert.Equal(t, 1, processed)
	assert.Equal(t, types.ReservationStatusCompleted, store.reservations["res_old"].Status)
	assert.Equal(t, types.ReservationStatusConfirmed, store.reservations["res_today"].Status)
}
