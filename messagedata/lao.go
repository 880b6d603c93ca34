package messagedata

import (
	"github.com/luca-patrignani/popcore/identity"
	"github.com/luca-patrignani/popcore/protocol"
)

// CreateLao creates a LAO; it is published on the root channel.
type CreateLao struct {
	ID        identity.Base64URLData `json:"id"`
	Name      string                 `json:"name"`
	Creation  int64                  `json:"creation"`
	Organizer identity.PublicKey     `json:"organizer"`
	Witnesses []identity.PublicKey   `json:"witnesses"`
}

func NewCreateLao(organizer identity.PublicKey, name string, creation int64, witnesses []identity.PublicKey) *CreateLao {
	if witnesses == nil {
		witnesses = []identity.PublicKey{}
	}
	return &CreateLao{
		ID:        LaoID(organizer, creation, name),
		Name:      name,
		Creation:  creation,
		Organizer: organizer,
		Witnesses: witnesses,
	}
}

func (*CreateLao) Object() string { return ObjectLao }
func (*CreateLao) Action() string { return ActionCreate }

// Verify checks the id against the organizer, creation and name. laoID may
// be empty since the LAO does not exist yet.
func (c *CreateLao) Verify(laoID identity.Base64URLData) error {
	if c.Name == "" {
		return malformed("lao name is empty")
	}
	if c.Creation <= 0 {
		return malformed("lao creation %d is not positive", c.Creation)
	}
	if len(c.Organizer) == 0 {
		return malformed("lao organizer is empty")
	}
	if err := checkID("lao id", c.ID, LaoID(c.Organizer, c.Creation, c.Name)); err != nil {
		return err
	}
	if len(laoID) > 0 {
		return checkID("lao channel", laoID, c.ID)
	}
	return nil
}

// UpdateLao proposes new LAO properties. Its id is
// Hash(organizer, creation, name) with the proposed name; organizer and
// creation come from the stored LAO, so the domain checks it.
type UpdateLao struct {
	ID           identity.Base64URLData `json:"id"`
	Name         string                 `json:"name"`
	LastModified int64                  `json:"last_modified"`
	Witnesses    []identity.PublicKey   `json:"witnesses"`
}

func (*UpdateLao) Object() string { return ObjectLao }
func (*UpdateLao) Action() string { return ActionUpdateProperties }

func (u *UpdateLao) Verify(identity.Base64URLData) error {
	if u.Name == "" {
		return malformed("lao name is empty")
	}
	if u.LastModified <= 0 {
		return malformed("last_modified %d is not positive", u.LastModified)
	}
	return nil
}

// StateLao confirms a modification proposed by an UpdateLao message, with
// the witness signatures collected over the proposal's message id.
type StateLao struct {
	ID                     identity.Base64URLData      `json:"id"`
	Name                   string                      `json:"name"`
	Creation               int64                       `json:"creation"`
	LastModified           int64                       `json:"last_modified"`
	Organizer              identity.PublicKey          `json:"organizer"`
	Witnesses              []identity.PublicKey        `json:"witnesses"`
	ModificationID         identity.MessageID          `json:"modification_id"`
	ModificationSignatures []protocol.WitnessSignature `json:"modification_signatures"`
}

func (*StateLao) Object() string { return ObjectLao }
func (*StateLao) Action() string { return ActionState }

func (s *StateLao) Verify(laoID identity.Base64URLData) error {
	if s.Name == "" {
		return malformed("lao name is empty")
	}
	if s.LastModified < s.Creation {
		return malformed("last_modified %d before creation %d", s.LastModified, s.Creation)
	}
	if len(s.ModificationID) == 0 {
		return malformed("modification_id is empty")
	}
	return checkID("lao state id", s.ID, laoID)
}
