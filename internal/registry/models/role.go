package models

import "certify/pkg/domain"

// Role is the effective role of an address, used for client gating.
type Role string

const (
	RoleAuthority   Role = "authority"
	RoleParticipant Role = "participant"
	RoleBody        Role = "body"
	RoleCandidate   Role = "candidate"
	RoleNone        Role = "none"
)

// RoleInfo is a resolved role. BodyStatus is set for body and candidate roles.
type RoleInfo struct {
	Address    domain.Address `json:"address"`
	Role       Role           `json:"role"`
	BodyStatus BodyStatus     `json:"body_status,omitempty"`
}

// RoleFacts is the registry state ResolveRole needs for one address, read
// from a single snapshot.
type RoleFacts struct {
	Authority   *Authority
	Participant *Participant
	Body        *Body
}

// ResolveRole applies the fixed precedence: authority, then registered
// participant, then body (verified bodies are active, pending and rejected
// ones are candidates), then none.
func ResolveRole(address domain.Address, facts RoleFacts) RoleInfo {
	info := RoleInfo{Address: address, Role: RoleNone}
	switch {
	case facts.Authority != nil && facts.Authority.Address == address:
		info.Role = RoleAuthority
	case facts.Participant != nil && facts.Participant.Registered:
		info.Role = RoleParticipant
	case facts.Body != nil:
		info.BodyStatus = facts.Body.Status
		if facts.Body.IsVerified() {
			info.Role = RoleBody
		} else {
			info.Role = RoleCandidate
		}
	}
	return info
}
