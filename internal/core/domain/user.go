package domain

type Role string

const (
	RoleStudent  Role = "student"
	RoleLecturer Role = "lecturer"
)

// User is the acting identity as supplied by the identity service.
// This service never creates or mutates users; it only reads the claims
// the auth middleware extracted from the access token.
type User struct {
	ID              string `json:"id"`
	Role            Role   `json:"role"`
	Email           string `json:"email,omitempty"`
	AdmissionNumber string `json:"admission_number,omitempty"` // students only
	Department      string `json:"department,omitempty"`       // lecturers only
}
