package messagedata

import (
	"sort"
	"strconv"
	"strings"

	"github.com/luca-patrignani/popcore/identity"
)

// LaoID = Hash(organizer, creation, name).
func LaoID(organizer identity.PublicKey, creation int64, name string) identity.Base64URLData {
	return identity.Hash(organizer, creation, name)
}

// MeetingID = Hash("M", laoID, creation, name).
func MeetingID(laoID identity.Base64URLData, creation int64, name string) identity.Base64URLData {
	return identity.Hash("M", laoID, creation, name)
}

// RollCallID = Hash("R", laoID, creation, name).
func RollCallID(laoID identity.Base64URLData, creation int64, name string) identity.Base64URLData {
	return identity.Hash("R", laoID, creation, name)
}

// RollCallUpdateID = Hash("R", laoID, previous, at), where previous is the
// id the transition opens or closes.
func RollCallUpdateID(laoID, previous identity.Base64URLData, at int64) identity.Base64URLData {
	return identity.Hash("R", laoID, previous, at)
}

// ElectionID = Hash("Election", laoID, createdAt, name).
func ElectionID(laoID identity.Base64URLData, createdAt int64, name string) identity.Base64URLData {
	return identity.Hash("Election", laoID, createdAt, name)
}

// QuestionID = Hash("Question", electionID, question).
func QuestionID(electionID identity.Base64URLData, question string) identity.Base64URLData {
	return identity.Hash("Question", electionID, question)
}

// ElectionVoteID = Hash("Vote", electionID, questionID, v) where v is the
// write-in text when write-in is enabled and the rendered index list
// otherwise. The ignored argument never influences the id.
func ElectionVoteID(electionID, questionID identity.Base64URLData, indexes []int, writeIn string, writeInEnabled bool) identity.Base64URLData {
	if writeInEnabled {
		return identity.Hash("Vote", electionID, questionID, writeIn)
	}
	return identity.Hash("Vote", electionID, questionID, FormatIndexes(indexes))
}

// EncryptedVoteID = Hash("Vote", electionID, questionID, ciphertext).
func EncryptedVoteID(electionID, questionID identity.Base64URLData, ciphertext string) identity.Base64URLData {
	return identity.Hash("Vote", electionID, questionID, ciphertext)
}

// FormatIndexes renders an index list as "[0, 2, 5]".
func FormatIndexes(indexes []int) string {
	parts := make([]string, len(indexes))
	for i, idx := range indexes {
		parts[i] = strconv.Itoa(idx)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// RegisteredVotes hashes the ids of the votes retained in a ballot box,
// sorted by their base64url form.
func RegisteredVotes(voteIDs []identity.Base64URLData) identity.Base64URLData {
	sorted := make([]string, len(voteIDs))
	for i, id := range voteIDs {
		sorted[i] = id.String()
	}
	sort.Strings(sorted)
	parts := make([]any, len(sorted))
	for i, s := range sorted {
		parts[i] = s
	}
	return identity.Hash(parts...)
}

// ConsensusInstanceID = Hash("consensus", type, id, property).
func ConsensusInstanceID(key ConsensusKey) identity.Base64URLData {
	return identity.Hash("consensus", key.Type, key.ID, key.Property)
}
