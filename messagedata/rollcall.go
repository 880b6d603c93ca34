package messagedata

import "github.com/luca-patrignani/popcore/identity"

type CreateRollCall struct {
	ID            identity.Base64URLData `json:"id"`
	Name          string                 `json:"name"`
	Creation      int64                  `json:"creation"`
	ProposedStart int64                  `json:"proposed_start"`
	ProposedEnd   int64                  `json:"proposed_end"`
	Location      string                 `json:"location"`
	Description   string                 `json:"description,omitempty"`
}

func NewCreateRollCall(laoID identity.Base64URLData, name string, creation, start, end int64, location, description string) *CreateRollCall {
	return &CreateRollCall{
		ID:            RollCallID(laoID, creation, name),
		Name:          name,
		Creation:      creation,
		ProposedStart: start,
		ProposedEnd:   end,
		Location:      location,
		Description:   description,
	}
}

func (*CreateRollCall) Object() string { return ObjectRollCall }
func (*CreateRollCall) Action() string { return ActionCreate }

func (c *CreateRollCall) Verify(laoID identity.Base64URLData) error {
	if c.Name == "" {
		return malformed("roll call name is empty")
	}
	if c.ProposedStart < c.Creation {
		return malformed("roll call proposed start %d before creation %d", c.ProposedStart, c.Creation)
	}
	if c.ProposedEnd < c.ProposedStart {
		return malformed("roll call proposed end %d before proposed start %d", c.ProposedEnd, c.ProposedStart)
	}
	return checkID("roll call id", c.ID, RollCallID(laoID, c.Creation, c.Name))
}

// OpenRollCall is used for both open and reopen; Opens names the id the
// transition follows: the roll call id for the first opening, the update id
// of the last close for a reopening.
type OpenRollCall struct {
	UpdateID identity.Base64URLData `json:"update_id"`
	Opens    identity.Base64URLData `json:"opens"`
	OpenedAt int64                  `json:"opened_at"`

	action string
}

func NewOpenRollCall(laoID, opens identity.Base64URLData, openedAt int64) *OpenRollCall {
	return &OpenRollCall{
		UpdateID: RollCallUpdateID(laoID, opens, openedAt),
		Opens:    opens,
		OpenedAt: openedAt,
		action:   ActionOpen,
	}
}

func NewReopenRollCall(laoID, opens identity.Base64URLData, openedAt int64) *OpenRollCall {
	o := NewOpenRollCall(laoID, opens, openedAt)
	o.action = ActionReopen
	return o
}

func (*OpenRollCall) Object() string { return ObjectRollCall }

func (o *OpenRollCall) Action() string {
	if o.action == "" {
		return ActionOpen
	}
	return o.action
}

// IsReopen reports whether the message reopens a closed roll call.
func (o *OpenRollCall) IsReopen() bool { return o.action == ActionReopen }

func (o *OpenRollCall) Verify(laoID identity.Base64URLData) error {
	if len(o.Opens) == 0 {
		return malformed("opens is empty")
	}
	return checkID("roll call update id", o.UpdateID, RollCallUpdateID(laoID, o.Opens, o.OpenedAt))
}

type CloseRollCall struct {
	UpdateID  identity.Base64URLData `json:"update_id"`
	Closes    identity.Base64URLData `json:"closes"`
	ClosedAt  int64                  `json:"closed_at"`
	Attendees []identity.PublicKey   `json:"attendees"`
}

func NewCloseRollCall(laoID, closes identity.Base64URLData, closedAt int64, attendees []identity.PublicKey) *CloseRollCall {
	if attendees == nil {
		attendees = []identity.PublicKey{}
	}
	return &CloseRollCall{
		UpdateID:  RollCallUpdateID(laoID, closes, closedAt),
		Closes:    closes,
		ClosedAt:  closedAt,
		Attendees: attendees,
	}
}

func (*CloseRollCall) Object() string { return ObjectRollCall }
func (*CloseRollCall) Action() string { return ActionClose }

func (c *CloseRollCall) Verify(laoID identity.Base64URLData) error {
	if len(c.Closes) == 0 {
		return malformed("closes is empty")
	}
	seen := make(map[string]bool, len(c.Attendees))
	for _, a := range c.Attendees {
		if seen[a.String()] {
			return malformed("attendee %s listed twice", a)
		}
		seen[a.String()] = true
	}
	return checkID("roll call update id", c.UpdateID, RollCallUpdateID(laoID, c.Closes, c.ClosedAt))
}
