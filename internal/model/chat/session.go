package chat

import "time"

// Role 描述参与者在房间中的身份。
type Role string

const (
	RoleSelf  Role = "self"
	RoleOther Role = "other"
	RoleHost  Role = "host"
)

// Participant is fixed for the lifetime of one room.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

// Session captures one live chat room. Only a derived summary record outlives it.
type Session struct {
	ID               string        `json:"id"`
	Participants     []Participant `json:"participants"`
	Topic            string        `json:"topic,omitempty"`
	StartTime        time.Time     `json:"startTime"`
	EndTime          *time.Time    `json:"endTime,omitempty"`
	RecordingEnabled bool          `json:"recordingEnabled"`
	RecordingPath    string        `json:"recordingPath,omitempty"`
}

// Host returns the AI host participant.
func (s Session) Host() (Participant, bool) {
	return s.firstWithRole(RoleHost)
}

// Self returns the local human participant.
func (s Session) Self() (Participant, bool) {
	return s.firstWithRole(RoleSelf)
}

// Other returns the remote conversational partner.
func (s Session) Other() (Participant, bool) {
	return s.firstWithRole(RoleOther)
}

func (s Session) firstWithRole(role Role) (Participant, bool) {
	for _, p := range s.Participants {
		if p.Role == role {
			return p, true
		}
	}
	return Participant{}, false
}

// Ended reports whether the room has been closed.
func (s Session) Ended() bool {
	return s.EndTime != nil
}
