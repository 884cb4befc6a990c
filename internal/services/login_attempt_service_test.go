package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igrus/authd/internal/models"
)

func newLoginAttemptServiceForTest(repo *MockLoginAttemptRepository) *LoginAttemptService {
	logger, audit := newTestLogger()
	return NewLoginAttemptService(repo, 5, 30*time.Minute, logger, audit)
}

func TestLoginAttemptCheck_NoHistory(t *testing.T) {
	svc := newLoginAttemptServiceForTest(&MockLoginAttemptRepository{})
	assert.NoError(t, svc.Check(context.Background(), "12230001"))
}

func TestLoginAttemptCheck_Locked(t *testing.T) {
	until := time.Now().Add(10 * time.Minute)
	repo := &MockLoginAttemptRepository{
		GetFunc: func(ctx context.Context, studentID string) (*models.LoginAttempt, error) {
			return &models.LoginAttempt{StudentID: studentID, AttemptCount: 5, LockedUntil: &until}, nil
		},
	}
	svc := newLoginAttemptServiceForTest(repo)

	err := svc.Check(context.Background(), "12230001")
	assert.ErrorIs(t, err, models.ErrAccountLocked)
}

func TestLoginAttemptCheck_LockoutExpired(t *testing.T) {
	until := time.Now().Add(-1 * time.Minute)
	repo := &MockLoginAttemptRepository{
		GetFunc: func(ctx context.Context, studentID string) (*models.LoginAttempt, error) {
			return &models.LoginAttempt{StudentID: studentID, AttemptCount: 5, LockedUntil: &until}, nil
		},
	}
	svc := newLoginAttemptServiceForTest(repo)

	assert.NoError(t, svc.Check(context.Background(), "12230001"))
}

func TestLoginAttemptRecordFailure_BelowThreshold(t *testing.T) {
	lockoutSet := false
	repo := &MockLoginAttemptRepository{
		IncrementFunc: func(ctx context.Context, studentID string, at time.Time) (int, error) {
			return 4, nil
		},
		SetLockoutFunc: func(ctx context.Context, studentID string, until time.Time) error {
			lockoutSet = true
			return nil
		},
	}
	svc := newLoginAttemptServiceForTest(repo)

	require.NoError(t, svc.RecordFailure(context.Background(), "12230001"))
	assert.False(t, lockoutSet)
}

func TestLoginAttemptRecordFailure_ThresholdLocks(t *testing.T) {
	var lockedUntil time.Time
	repo := &MockLoginAttemptRepository{
		IncrementFunc: func(ctx context.Context, studentID string, at time.Time) (int, error) {
			return 5, nil
		},
		SetLockoutFunc: func(ctx context.Context, studentID string, until time.Time) error {
			lockedUntil = until
			return nil
		},
	}
	svc := newLoginAttemptServiceForTest(repo)

	require.NoError(t, svc.RecordFailure(context.Background(), "12230001"))
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), lockedUntil, 2*time.Second)
}

// A counter left over from an expired lockout re-locks on the very next
// failure; expiry alone never clears it.
func TestLoginAttemptRecordFailure_RetainedCountRelocks(t *testing.T) {
	lockoutSet := false
	repo := &MockLoginAttemptRepository{
		IncrementFunc: func(ctx context.Context, studentID string, at time.Time) (int, error) {
			return 6, nil
		},
		SetLockoutFunc: func(ctx context.Context, studentID string, until time.Time) error {
			lockoutSet = true
			return nil
		},
	}
	svc := newLoginAttemptServiceForTest(repo)

	require.NoError(t, svc.RecordFailure(context.Background(), "12230001"))
	assert.True(t, lockoutSet)
}

func TestLoginAttemptRecordSuccess_Resets(t *testing.T) {
	resetCalled := false
	repo := &MockLoginAttemptRepository{
		ResetFunc: func(ctx context.Context, studentID string) error {
			resetCalled = true
			return nil
		},
	}
	svc := newLoginAttemptServiceForTest(repo)

	require.NoError(t, svc.RecordSuccess(context.Background(), "12230001"))
	assert.True(t, resetCalled)
}
