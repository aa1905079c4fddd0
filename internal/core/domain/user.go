package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

const (
	RoleAdmin      = "admin"
	RoleDoctor     = "doctor"
	RolePatient    = "patient"
	RoleAccounting = "accounting"
	RolePharmacy   = "pharmacy"
	RoleNurse      = "nurse"
)

// User models the authenticated actor as the client sees it. Role always holds
// a mapped front-end role tag, never the raw backend identifier.
type User struct {
	ID          FlexID   `json:"id,omitempty"`
	Name        string   `json:"name"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// Clone returns a deep copy so callers can hand out users without aliasing
// the session's internal state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	if u.Permissions != nil {
		clone.Permissions = append([]string(nil), u.Permissions...)
	}
	return &clone
}

// RoleMap translates raw backend role identifiers into front-end role tags.
// It is a partial function with an identity fallback: unknown identifiers pass
// through lower-cased unchanged.
type RoleMap map[string]string

// DefaultRoleMap mirrors the identifiers the hospital backend currently emits.
func DefaultRoleMap() RoleMap {
	return RoleMap{
		"quantri":  RoleAdmin,
		"admin":    RoleAdmin,
		"bacsi":    RoleDoctor,
		"benhnhan": RolePatient,
		"ketoan":   RoleAccounting,
		"duocsi":   RolePharmacy,
		"yta":      RoleNurse,
	}
}

// Map resolves a raw role identifier. Empty input maps to empty output.
func (m RoleMap) Map(raw string) string {
	if raw == "" {
		return ""
	}
	if mapped, ok := m[raw]; ok {
		return mapped
	}
	lowered := strings.ToLower(raw)
	if mapped, ok := m[lowered]; ok {
		return mapped
	}
	return lowered
}

// FlexID tolerates the backend's loosely-typed identifiers: some endpoints
// emit numeric ids, others hex object ids. Canonical integers re-marshal as
// JSON numbers so persisted records round-trip byte-for-byte.
type FlexID string

func (id FlexID) String() string { return string(id) }

func (id *FlexID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		*id = ""
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*id = FlexID(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*id = FlexID(num.String())
	return nil
}

func (id FlexID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}
