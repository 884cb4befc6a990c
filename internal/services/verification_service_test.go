package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igrus/authd/internal/models"
)

func newVerificationServiceForTest(verifications *MockEmailVerificationRepository, users *MockUserRepository, sender *MockEmailSender) *VerificationService {
	logger, audit := newTestLogger()
	return NewVerificationService(verifications, users, sender, 10*time.Minute, 5, 5*time.Minute, logger, audit)
}

func pendingVerification(code string) *models.EmailVerification {
	return &models.EmailVerification{
		ID:        "v-1",
		Email:     "a@inha.edu",
		Code:      code,
		ExpiresAt: time.Now().Add(5 * time.Minute),
		CreatedAt: time.Now().Add(-6 * time.Minute),
	}
}

func TestIssue_StoresAndSendsCode(t *testing.T) {
	var storedCode, sentCode string
	verifications := &MockEmailVerificationRepository{
		CreateFunc: func(ctx context.Context, v *models.EmailVerification) (*models.EmailVerification, error) {
			storedCode = v.Code
			return v, nil
		},
	}
	sender := &MockEmailSender{
		SendVerificationCodeFunc: func(ctx context.Context, email, code string, expiresAt time.Time) error {
			sentCode = code
			return nil
		},
	}
	svc := newVerificationServiceForTest(verifications, &MockUserRepository{}, sender)

	require.NoError(t, svc.Issue(context.Background(), "a@inha.edu"))
	assert.Len(t, storedCode, 6)
	assert.Equal(t, storedCode, sentCode)
}

func TestVerify_Success_ActivatesPendingUser(t *testing.T) {
	markedVerified := false
	var newStatus models.UserStatus

	verifications := &MockEmailVerificationRepository{
		GetLatestUnverifiedFunc: func(ctx context.Context, email string) (*models.EmailVerification, error) {
			return pendingVerification("123456"), nil
		},
		MarkVerifiedFunc: func(ctx context.Context, id string) error {
			markedVerified = true
			return nil
		},
	}
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return &models.User{ID: "user-1", Email: email, Status: models.StatusPendingVerification}, nil
		},
		UpdateStatusFunc: func(ctx context.Context, id string, status models.UserStatus) error {
			newStatus = status
			return nil
		},
	}
	svc := newVerificationServiceForTest(verifications, users, &MockEmailSender{})

	require.NoError(t, svc.Verify(context.Background(), "a@inha.edu", "123456"))
	assert.True(t, markedVerified)
	assert.Equal(t, models.StatusActive, newStatus)
}

func TestVerify_WrongCode_IncrementsAttempts(t *testing.T) {
	incremented := false
	verifications := &MockEmailVerificationRepository{
		GetLatestUnverifiedFunc: func(ctx context.Context, email string) (*models.EmailVerification, error) {
			return pendingVerification("123456"), nil
		},
		IncrementAttemptsFunc: func(ctx context.Context, id string) error {
			incremented = true
			return nil
		},
	}
	svc := newVerificationServiceForTest(verifications, &MockUserRepository{}, &MockEmailSender{})

	err := svc.Verify(context.Background(), "a@inha.edu", "654321")
	assert.ErrorIs(t, err, models.ErrVerificationCodeInvalid)
	assert.True(t, incremented, "failed attempts must be counted")
}

func TestVerify_Expired(t *testing.T) {
	verifications := &MockEmailVerificationRepository{
		GetLatestUnverifiedFunc: func(ctx context.Context, email string) (*models.EmailVerification, error) {
			v := pendingVerification("123456")
			v.ExpiresAt = time.Now().Add(-time.Second)
			return v, nil
		},
	}
	svc := newVerificationServiceForTest(verifications, &MockUserRepository{}, &MockEmailSender{})

	err := svc.Verify(context.Background(), "a@inha.edu", "123456")
	assert.ErrorIs(t, err, models.ErrVerificationCodeExpired)
}

func TestVerify_AttemptsExceeded(t *testing.T) {
	verifications := &MockEmailVerificationRepository{
		GetLatestUnverifiedFunc: func(ctx context.Context, email string) (*models.EmailVerification, error) {
			v := pendingVerification("123456")
			v.Attempts = 5
			return v, nil
		},
	}
	svc := newVerificationServiceForTest(verifications, &MockUserRepository{}, &MockEmailSender{})

	// Even the correct code is rejected once the attempt budget is spent.
	err := svc.Verify(context.Background(), "a@inha.edu", "123456")
	assert.ErrorIs(t, err, models.ErrVerificationAttemptsExceeded)
}

func TestVerify_NoPendingCode(t *testing.T) {
	svc := newVerificationServiceForTest(&MockEmailVerificationRepository{}, &MockUserRepository{}, &MockEmailSender{})

	err := svc.Verify(context.Background(), "a@inha.edu", "123456")
	assert.ErrorIs(t, err, models.ErrVerificationCodeInvalid)
}

func TestResend_CooldownActive(t *testing.T) {
	verifications := &MockEmailVerificationRepository{
		GetLatestUnverifiedFunc: func(ctx context.Context, email string) (*models.EmailVerification, error) {
			v := pendingVerification("123456")
			v.CreatedAt = time.Now().Add(-time.Minute)
			return v, nil
		},
	}
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return &models.User{ID: "user-1", Status: models.StatusPendingVerification}, nil
		},
	}
	svc := newVerificationServiceForTest(verifications, users, &MockEmailSender{})

	err := svc.Resend(context.Background(), "a@inha.edu")
	assert.ErrorIs(t, err, models.ErrVerificationResendRateLimited)
}

func TestResend_CooldownElapsed(t *testing.T) {
	sent := false
	verifications := &MockEmailVerificationRepository{
		GetLatestUnverifiedFunc: func(ctx context.Context, email string) (*models.EmailVerification, error) {
			return pendingVerification("123456"), nil
		},
	}
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return &models.User{ID: "user-1", Status: models.StatusPendingVerification}, nil
		},
	}
	sender := &MockEmailSender{
		SendVerificationCodeFunc: func(ctx context.Context, email, code string, expiresAt time.Time) error {
			sent = true
			return nil
		},
	}
	svc := newVerificationServiceForTest(verifications, users, sender)

	require.NoError(t, svc.Resend(context.Background(), "a@inha.edu"))
	assert.True(t, sent)
}

func TestResend_AlreadyVerified(t *testing.T) {
	users := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return &models.User{ID: "user-1", Status: models.StatusActive}, nil
		},
	}
	svc := newVerificationServiceForTest(&MockEmailVerificationRepository{}, users, &MockEmailSender{})

	err := svc.Resend(context.Background(), "a@inha.edu")
	assert.ErrorIs(t, err, models.ErrEmailAlreadyVerified)
}

func TestGenerateCode_Format(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9')
		}
	}
}
