package messagedata

import (
	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/protocol"
)

type CreateMeeting struct {
	ID       identity.Base64URLData `json:"id"`
	Name     string                 `json:"name"`
	Creation int64                  `json:"creation"`
	Location string                 `json:"location,omitempty"`
	Start    int64                  `json:"start"`
	End      int64                  `json:"end,omitempty"`
}

func NewCreateMeeting(laoID identity.Base64URLData, name string, creation, start, end int64, location string) *CreateMeeting {
	return &CreateMeeting{
		ID:       MeetingID(laoID, creation, name),
		Name:     name,
		Creation: creation,
		Location: location,
		Start:    start,
		End:      end,
	}
}

func (*CreateMeeting) Object() string { return ObjectMeeting }
func (*CreateMeeting) Action() string { return ActionCreate }

func (c *CreateMeeting) Verify(laoID identity.Base64URLData) error {
	if err := checkMeetingTimes(c.Name, c.Creation, c.Start, c.End); err != nil {
		return err
	}
	return checkID("meeting id", c.ID, MeetingID(laoID, c.Creation, c.Name))
}

type StateMeeting struct {
	ID                     identity.Base64URLData      `json:"id"`
	Name                   string                      `json:"name"`
	Creation               int64                       `json:"creation"`
	LastModified           int64                       `json:"last_modified"`
	Location               string                      `json:"location,omitempty"`
	Start                  int64                       `json:"start"`
	End                    int64                       `json:"end,omitempty"`
	ModificationID         identity.MessageID          `json:"modification_id"`
	ModificationSignatures []protocol.WitnessSignature `json:"modification_signatures"`
}

func (*StateMeeting) Object() string { return ObjectMeeting }
func (*StateMeeting) Action() string { return ActionState }

func (s *StateMeeting) Verify(identity.Base64URLData) error {
	if err := checkMeetingTimes(s.Name, s.Creation, s.Start, s.End); err != nil {
		return err
	}
	if s.LastModified < s.Creation {
		return malformed("last_modified %d before creation %d", s.LastModified, s.Creation)
	}
	if len(s.ModificationID) == 0 {
		return malformed("modification_id is empty")
	}
	// the name may have changed since creation, so the id is checked
	// against the stored meeting instead
	return nil
}

func checkMeetingTimes(name string, creation, start, end int64) error {
	if name == "" {
		return malformed("meeting name is empty")
	}
	if start < creation {
		return malformed("meeting starts at %d before its creation %d", start, creation)
	}
	if end != 0 && end < start {
		return malformed("meeting ends at %d before it starts at %d", end, start)
	}
	return nil
}
