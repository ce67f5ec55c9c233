package domain

import (
	"strings"
	"time"
)

// Unit is a course with a single lecturer slot and a student roster.
// LecturerID is empty while the slot is unclaimed. RestrictedTo holds
// admission-number prefixes; an empty list means the unit is open to any
// student. InvitedLecturers is advisory only: it widens lecturer discovery
// but never gates the slot claim itself.
type Unit struct {
	ID               string    `json:"id"`
	Code             string    `json:"code"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	University       string    `json:"university"`
	Time             string    `json:"time"`
	Date             string    `json:"date"`
	Venue            string    `json:"venue,omitempty"`
	LecturerID       string    `json:"lecturer_id"`
	CreatedBy        string    `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	RestrictedTo     []string  `json:"restricted_to,omitempty"`
	Students         []string  `json:"students"`
	InvitedLecturers []string  `json:"invited_lecturers,omitempty"`
}

// UnitCreateSpec is the caller-supplied shape for creating a unit.
type UnitCreateSpec struct {
	Code             string   `json:"code"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	University       string   `json:"university"`
	Time             string   `json:"time"`
	Date             string   `json:"date"`
	Venue            string   `json:"venue,omitempty"`
	RestrictedTo     []string `json:"restricted_to,omitempty"`
	InvitedLecturers []string `json:"invited_lecturers,omitempty"`
}

// AvailableUnit is the discovery projection: a unit the user could join,
// annotated with whether the admission-number restriction locks it for them.
type AvailableUnit struct {
	Unit
	IsRestricted bool `json:"is_restricted"`
}

func (u *Unit) Restricted() bool {
	return len(u.RestrictedTo) > 0
}

// AdmitsAdmissionNumber reports whether the admission number passes the
// unit's restriction list. Matching is a case-sensitive prefix comparison;
// a missing admission number never passes a non-empty restriction list.
func (u *Unit) AdmitsAdmissionNumber(admissionNumber string) bool {
	if !u.Restricted() {
		return true
	}
	if admissionNumber == "" {
		return false
	}
	for _, prefix := range u.RestrictedTo {
		if strings.HasPrefix(admissionNumber, prefix) {
			return true
		}
	}
	return false
}

// RestrictedFor reports whether the unit should be shown as locked to the
// given user in discovery listings.
func (u *Unit) RestrictedFor(user User) bool {
	return user.Role == RoleStudent && u.Restricted() && !u.AdmitsAdmissionNumber(user.AdmissionNumber)
}

func (u *Unit) HasStudent(userID string) bool {
	for _, id := range u.Students {
		if id == userID {
			return true
		}
	}
	return false
}

func (u *Unit) HasInvitedLecturer(email string) bool {
	if email == "" {
		return false
	}
	for _, invited := range u.InvitedLecturers {
		if invited == email {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate a unit without aliasing
// the slices of the original.
func (u *Unit) Clone() *Unit {
	c := *u
	c.RestrictedTo = append([]string(nil), u.RestrictedTo...)
	c.Students = append([]string(nil), u.Students...)
	c.InvitedLecturers = append([]string(nil), u.InvitedLecturers...)
	return &c
}
