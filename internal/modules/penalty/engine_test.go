package penalty

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"communityboard/internal/database"
	"communityboard/internal/domain"
	"communityboard/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu        sync.Mutex
	suspended []time.Time
	released  int
}

func (n *recordingNotifier) Suspended(_ domain.Principal, until time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.suspended = append(n.suspended, until)
}

func (n *recordingNotifier) Released(domain.Principal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.released++
}

type testEnv struct {
	db       *gorm.DB
	engine   *Engine
	clock    *fakeClock
	notifier *recordingNotifier
	logs     *repository.AbuseLogRepository
}

func setupEngine(t *testing.T, threshold int, duration time.Duration) *testEnv {
	t.Helper()
	log, _ := test.NewNullLogger()
	dsn := fmt.Sprintf("file:penalty_test_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Connect(dsn, log)
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	clock := newFakeClock()
	notifier := &recordingNotifier{}
	logs := repository.NewAbuseLogRepository(db, 10*time.Second)
	engine := NewEngine(repository.NewPenaltyRepository(db, 10*time.Second), logs, Options{
		Threshold: threshold,
		Duration:  duration,
		Now:       clock.Now,
		Logger:    log,
		Notifier:  notifier,
	})
	return &testEnv{db: db, engine: engine, clock: clock, notifier: notifier, logs: logs}
}

var alice = domain.Principal{ExternalID: "alice", InternalID: 1, DisplayName: "Alice"}

func currentEnd(t *testing.T, env *testEnv, p domain.Principal) time.Time {
	t.Helper()
	var limit domain.UserLimit
	require.NoError(t, env.db.Where("user_id = ?", p.InternalID).First(&limit).Error)
	require.NotNil(t, limit.EndDate)
	return *limit.EndDate
}

func TestApplyPenalty_WindowOpensOnEveryNthCall(t *testing.T) {
	env := setupEngine(t, 5, 3*time.Minute)
	ctx := context.Background()

	var fifth time.Time
	for i := 1; i <= 5; i++ {
		res, err := env.engine.ApplyPenalty(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, i, res.Count)
		if i < 5 {
			assert.Nil(t, res.Window)
		}
		fifth = env.clock.Now()
		env.clock.Advance(time.Second)
	}

	firstEnd := currentEnd(t, env, alice)
	assert.True(t, firstEnd.Equal(fifth.Add(3*time.Minute)))
	assert.True(t, firstEnd.After(env.clock.Now()))

	for i := 6; i <= 9; i++ {
		res, err := env.engine.ApplyPenalty(ctx, alice)
		require.NoError(t, err)
		assert.Nil(t, res.Window)
		assert.True(t, currentEnd(t, env, alice).Equal(firstEnd), "call %d must not move the window", i)
		env.clock.Advance(time.Second)
	}

	res, err := env.engine.ApplyPenalty(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Count)
	require.NotNil(t, res.Window)
	assert.True(t, currentEnd(t, env, alice).After(firstEnd))
	assert.Len(t, env.notifier.suspended, 2)
}

func TestApplyPenalty_ThresholdIsInjectable(t *testing.T) {
	env := setupEngine(t, 3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := env.engine.ApplyPenalty(ctx, alice)
		require.NoError(t, err)
	}
	assert.NoError(t, env.engine.CheckAndGate(ctx, alice))

	res, err := env.engine.ApplyPenalty(ctx, alice)
	require.NoError(t, err)
	require.NotNil(t, res.Window)
	assert.True(t, res.Window.EndDate.Equal(env.clock.Now().Add(time.Hour)))
	assert.ErrorIs(t, env.engine.CheckAndGate(ctx, alice), ErrSuspended)
}

func TestCheckAndGate_SuspendThenAutoRelease(t *testing.T) {
	env := setupEngine(t, 5, 3*time.Minute)
	ctx := context.Background()

	// alice: five abusive posts one second apart
	var fifth time.Time
	for i := 0; i < 5; i++ {
		if i > 0 {
			env.clock.Advance(time.Second)
		}
		fifth = env.clock.Now()
		_, err := env.engine.ApplyPenalty(ctx, alice)
		require.NoError(t, err)
	}

	err := env.engine.CheckAndGate(ctx, alice)
	var suspended *SuspendedError
	require.ErrorAs(t, err, &suspended)
	assert.True(t, suspended.Until.Equal(fifth.Add(3*time.Minute)))

	// the end instant itself still blocks
	env.clock.Advance(suspended.Until.Sub(env.clock.Now()))
	assert.ErrorIs(t, env.engine.CheckAndGate(ctx, alice), ErrSuspended)

	env.clock.Advance(time.Second)
	require.NoError(t, env.engine.CheckAndGate(ctx, alice))
	require.NoError(t, env.engine.CheckAndGate(ctx, alice))
	assert.Equal(t, 1, env.notifier.released)

	info, err := env.engine.GetLimitInfo(ctx, alice)
	require.NoError(t, err)
	assert.True(t, info.Allowed)
	assert.Nil(t, info.StartDate)
	assert.Nil(t, info.EndDate)

	var limit domain.UserLimit
	require.NoError(t, env.db.Where("user_id = ?", alice.InternalID).First(&limit).Error)
	assert.True(t, limit.Allowed)
	assert.Nil(t, limit.EndDate)
}

func TestCheckAndGate_NoWindow(t *testing.T) {
	env := setupEngine(t, 5, time.Minute)

	assert.NoError(t, env.engine.CheckAndGate(context.Background(), alice))

	allowed, until, err := env.engine.Status(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Nil(t, until)
}

func TestStatus_LapsedWindowReportsAllowed(t *testing.T) {
	env := setupEngine(t, 1, time.Minute)
	ctx := context.Background()

	_, err := env.engine.ApplyPenalty(ctx, alice)
	require.NoError(t, err)

	allowed, until, err := env.engine.Status(ctx, alice)
	require.NoError(t, err)
	assert.False(t, allowed)
	require.NotNil(t, until)

	env.clock.Advance(2 * time.Minute)
	allowed, until, err = env.engine.Status(ctx, alice)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Nil(t, until)
}

func TestApplyPenalty_ConcurrentCallsCountEveryPenalty(t *testing.T) {
	env := setupEngine(t, 5, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.ApplyPenalty(ctx, alice)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := env.engine.GetPenaltyCount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 10, count)
	assert.Len(t, env.notifier.suspended, 2, "exactly the 5th and 10th increments open a window")
}

func TestGetLimitInfo_GroupsFullBatches(t *testing.T) {
	env := setupEngine(t, 5, 3*time.Minute)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := env.engine.RecordAbuse(ctx, alice, &domain.AbuseLog{
			OriginalText:  fmt.Sprintf("bad %d", i),
			RewrittenText: "***",
		})
		require.NoError(t, err)
		env.clock.Advance(time.Second)
	}

	info, err := env.engine.GetLimitInfo(ctx, alice)
	require.NoError(t, err)
	assert.False(t, info.Allowed)
	require.Len(t, info.Groups, 2)

	first, second := info.Groups[0], info.Groups[1]
	assert.Len(t, first.Logs, 5)
	assert.Equal(t, "bad 0", first.Logs[0].OriginalText)
	assert.False(t, first.Active)
	assert.True(t, first.EndDate.Equal(first.StartDate.Add(3*time.Minute)))

	assert.Equal(t, "bad 5", second.Logs[0].OriginalText)
	assert.True(t, second.Active)
	require.NotNil(t, info.EndDate)
	assert.True(t, second.EndDate.Equal(*info.EndDate))
}

func TestGroupLogs(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	logs := make([]domain.AbuseLog, 7)
	for i := range logs {
		logs[i] = domain.AbuseLog{ID: int64(i + 1), DetectedAt: base.Add(time.Duration(i) * time.Minute)}
	}

	assert.Empty(t, groupLogs(logs[:4], 5, time.Hour, nil))

	groups := groupLogs(logs, 3, time.Hour, nil)
	require.Len(t, groups, 2)
	assert.Equal(t, int64(3), groups[0].Logs[2].ID)
	assert.True(t, groups[0].StartDate.Equal(base.Add(2*time.Minute)))
	assert.True(t, groups[1].EndDate.Equal(base.Add(5*time.Minute+time.Hour)))
	assert.False(t, groups[1].Active)
}

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Increment(ctx context.Context, userID int64, now time.Time, entry *domain.AbuseLog, suspend func(int) *domain.UserLimit) (int, *domain.UserLimit, error) {
	args := m.Called(ctx, userID, now, entry, suspend)
	return args.Int(0), nil, args.Error(2)
}

func (m *mockRepo) GetCount(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockRepo) TotalCount(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRepo) GetLimit(ctx context.Context, userID int64) (*domain.UserLimit, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserLimit), args.Error(1)
}

func (m *mockRepo) ReleaseIfLapsed(ctx context.Context, userID int64, now time.Time) (bool, error) {
	args := m.Called(ctx, userID, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) ReleaseAllLapsed(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func TestEngine_StoreUnavailablePropagates(t *testing.T) {
	repo := new(mockRepo)
	unavailable := fmt.Errorf("%w: timeout", repository.ErrStoreUnavailable)
	repo.On("GetLimit", mock.Anything, alice.InternalID).Return(nil, unavailable)
	repo.On("Increment", mock.Anything, alice.InternalID, mock.Anything, mock.Anything, mock.Anything).Return(0, nil, unavailable)

	log, _ := test.NewNullLogger()
	engine := NewEngine(repo, nil, Options{Logger: log})

	assert.ErrorIs(t, engine.CheckAndGate(context.Background(), alice), repository.ErrStoreUnavailable)
	_, err := engine.ApplyPenalty(context.Background(), alice)
	assert.ErrorIs(t, err, repository.ErrStoreUnavailable)
	repo.AssertExpectations(t)
}

func TestRecordAbuse_StoresLogWithPenalty(t *testing.T) {
	env := setupEngine(t, 5, 3*time.Minute)
	ctx := context.Background()

	entry := &domain.AbuseLog{UserID: 99, OriginalText: "bad", RewrittenText: "***"}
	res, err := env.engine.RecordAbuse(ctx, alice, entry)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, alice.InternalID, entry.UserID, "owner comes from the principal")
	assert.True(t, entry.DetectedAt.Equal(env.clock.Now()))

	logs, err := env.logs.ListByUser(ctx, alice.InternalID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	_, err = env.engine.RecordAbuse(ctx, alice, nil)
	assert.Error(t, err)
}

func TestRecordAbuse_FailedPenaltyLeavesNoLog(t *testing.T) {
	env := setupEngine(t, 1, time.Minute)
	ctx := context.Background()

	// With threshold 1 every penalty writes a window; removing its table
	// makes the first attempt fail after the log insert.
	require.NoError(t, env.db.Migrator().DropTable(&domain.UserLimit{}))

	entry := &domain.AbuseLog{OriginalText: "bad", RewrittenText: "***"}
	_, err := env.engine.RecordAbuse(ctx, alice, entry)
	require.Error(t, err)

	logs, err := env.logs.ListByUser(ctx, alice.InternalID)
	require.NoError(t, err)
	assert.Empty(t, logs)
	count, err := env.engine.GetPenaltyCount(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, env.notifier.suspended)

	require.NoError(t, env.db.AutoMigrate(&domain.UserLimit{}))
	res, err := env.engine.RecordAbuse(ctx, alice, entry)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	require.NotNil(t, res.Window)

	logs, err = env.logs.ListByUser(ctx, alice.InternalID)
	require.NoError(t, err)
	assert.Len(t, logs, 1, "a retry leaves exactly one log per penalty")
}

func TestReleaseLapsed_SweepsEndedWindowsOnly(t *testing.T) {
	env := setupEngine(t, 1, time.Minute)
	ctx := context.Background()
	bob := domain.Principal{ExternalID: "bob", InternalID: 2}

	_, err := env.engine.ApplyPenalty(ctx, alice)
	require.NoError(t, err)
	env.clock.Advance(30 * time.Second)
	_, err = env.engine.ApplyPenalty(ctx, bob)
	require.NoError(t, err)

	env.clock.Advance(45 * time.Second)
	n, err := env.engine.ReleaseLapsed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.NoError(t, env.engine.CheckAndGate(ctx, alice))
	assert.ErrorIs(t, env.engine.CheckAndGate(ctx, bob), ErrSuspended)

	n, err = env.engine.ReleaseLapsed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSuspendedError(t *testing.T) {
	until := time.Date(2024, 5, 1, 12, 3, 0, 0, time.UTC)
	err := fmt.Errorf("gate: %w", &SuspendedError{Until: until})

	assert.ErrorIs(t, err, ErrSuspended)
	assert.Contains(t, err.Error(), "2024-05-01T12:03:00Z")
}
