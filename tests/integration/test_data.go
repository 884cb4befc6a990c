package integration

import (
	"fmt"
	"sync/atomic"
	"time"
)

var studentSeq atomic.Int64

// TestStudent generates unique signup data. Student IDs are 8 digits; the
// counter keeps parallel tests from colliding within the same second.
func TestStudent() (studentID, email, password string) {
	n := studentSeq.Add(1)
	studentID = fmt.Sprintf("23%06d", n%1000000)
	email = fmt.Sprintf("test-%d-%d@example.com", time.Now().Unix(), n)
	password = "CorrectHorse9!"
	return
}

// SignupBody builds a signup request payload for the generated identity.
func SignupBody(studentID, email, password string) map[string]interface{} {
	return map[string]interface{}{
		"student_id":      studentID,
		"name":            "Integration Tester",
		"email":           email,
		"password":        password,
		"policy_version":  "2026-01",
		"agreed_to_terms": true,
	}
}
