package domain

type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// RoleFor maps the concurrent session count after admission to a role.
func RoleFor(count int) Role {
	if count <= 1 {
		return RoleInitiator
	}
	return RoleResponder
}

// Member represents a participant's meta for the lifetime of one connection.
// Nothing here survives a reconnect.
type Member struct {
	// Participant is the client-supplied tag, used for logs only.
	Participant string
	Role        Role
}

func NewMember(participant string) *Member {
	return &Member{Participant: participant}
}
