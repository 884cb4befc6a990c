package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igrus/authd/internal/models"
)

func loginAs(t *testing.T, ts *TestServer, studentID, password string) string {
	t.Helper()
	resp, err := ts.Request("POST", "/auth/login", map[string]string{
		"student_id": studentID,
		"password":   password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	accessToken, _, err := ExtractTokensFromResponse(resp)
	require.NoError(t, err)
	return accessToken
}

func seedAssociate(t *testing.T, ctx context.Context) *models.User {
	t.Helper()
	studentID, email, password := TestStudent()
	user, err := SeedUser(ctx, testDB.Pool, studentID, email, password, models.StatusActive)
	require.NoError(t, err)
	_, err = testDB.Pool.Exec(ctx, `UPDATE users SET role = 'associate' WHERE id = $1`, user.ID)
	require.NoError(t, err)
	user.Role = models.RoleAssociate
	return user
}

func TestAdminApprovalFlow(t *testing.T) {
	ts := freshServer(t)
	ctx := context.Background()

	opStudentID, opEmail, opPassword := TestStudent()
	_, err := SeedOperator(ctx, testDB.Pool, opStudentID, opEmail, opPassword)
	require.NoError(t, err)
	associate := seedAssociate(t, ctx)

	opToken := loginAs(t, ts, opStudentID, opPassword)

	// The associate shows up in the pending list.
	resp, err := ts.RequestWithAuth("GET", "/admin/associates", opToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending []struct {
		ID        string `json:"id"`
		StudentID string `json:"student_id"`
		Role      string `json:"role"`
	}
	require.NoError(t, ParseJSONResponse(resp, &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, associate.ID, pending[0].ID)
	assert.Equal(t, "associate", pending[0].Role)

	resp, err = ts.RequestWithAuth("POST", "/admin/associates/"+associate.ID+"/approve", opToken, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Promotion took: role updated, approval stamped, list drained.
	var role string
	var approvedBy *string
	err = testDB.Pool.QueryRow(ctx, `
		SELECT u.role, c.approved_by
		FROM users u
		JOIN password_credentials c ON c.user_id = u.id
		WHERE u.id = $1
	`, associate.ID).Scan(&role, &approvedBy)
	require.NoError(t, err)
	assert.Equal(t, "member", role)
	require.NotNil(t, approvedBy)

	resp, err = ts.RequestWithAuth("GET", "/admin/associates", opToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pending = nil
	require.NoError(t, ParseJSONResponse(resp, &pending))
	assert.Empty(t, pending)

	// Approving twice is a conflict.
	resp, err = ts.RequestWithAuth("POST", "/admin/associates/"+associate.ID+"/approve", opToken, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAdminRoutesRequireOperatorRole(t *testing.T) {
	ts := freshServer(t)
	ctx := context.Background()

	studentID, email, password := TestStudent()
	_, err := SeedUser(ctx, testDB.Pool, studentID, email, password, models.StatusActive)
	require.NoError(t, err)

	memberToken := loginAs(t, ts, studentID, password)

	resp, err := ts.RequestWithAuth("GET", "/admin/associates", memberToken, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSuspendBlocksLoginUntilUnsuspended(t *testing.T) {
	ts := freshServer(t)
	ctx := context.Background()

	opStudentID, opEmail, opPassword := TestStudent()
	_, err := SeedOperator(ctx, testDB.Pool, opStudentID, opEmail, opPassword)
	require.NoError(t, err)

	studentID, email, password := TestStudent()
	target, err := SeedUser(ctx, testDB.Pool, studentID, email, password, models.StatusActive)
	require.NoError(t, err)

	opToken := loginAs(t, ts, opStudentID, opPassword)

	resp, err := ts.RequestWithAuth("POST", "/admin/users/"+target.ID+"/suspend", opToken, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = ts.Request("POST", "/auth/login", map[string]string{
		"student_id": studentID,
		"password":   password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	code, err := GetErrorCode(resp)
	require.NoError(t, err)
	assert.Equal(t, "forbidden", code)

	resp, err = ts.RequestWithAuth("POST", "/admin/users/"+target.ID+"/unsuspend", opToken, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = ts.Request("POST", "/auth/login", map[string]string{
		"student_id": studentID,
		"password":   password,
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
