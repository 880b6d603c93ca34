package protocol

import (
	"fmt"
	"strings"
)

// Root is the root channel, where LAO creations are published.
const Root = "/root"

const (
	ConsensusSegment = "consensus"
	SocialSegment    = "social"
	CoinSegment      = "coin"
)

// LaoChannel returns /root/<laoID>.
func LaoChannel(laoID string) string {
	return Root + "/" + laoID
}

// SubChannel appends segments to the LAO channel.
func SubChannel(laoID string, segments ...string) string {
	return LaoChannel(laoID) + "/" + strings.Join(segments, "/")
}

// Channel is a parsed channel path.
type Channel struct {
	LaoID    string
	Segments []string
}

func (c Channel) String() string {
	if c.LaoID == "" {
		return Root
	}
	if len(c.Segments) == 0 {
		return LaoChannel(c.LaoID)
	}
	return SubChannel(c.LaoID, c.Segments...)
}

// IsRoot reports whether c is the root channel.
func (c Channel) IsRoot() bool { return c.LaoID == "" }

// ParseChannel validates /root[/<laoId>[/<segment>...]]. Segments must be
// non-empty printable ASCII without spaces.
func ParseChannel(ch string) (Channel, error) {
	if ch == Root {
		return Channel{}, nil
	}
	if !strings.HasPrefix(ch, Root+"/") {
		return Channel{}, fmt.Errorf("%w: channel %q does not start with %s", ErrMalformed, ch, Root)
	}
	parts := strings.Split(strings.TrimPrefix(ch, Root+"/"), "/")
	for _, p := range parts {
		if p == "" {
			return Channel{}, fmt.Errorf("%w: channel %q has an empty segment", ErrMalformed, ch)
		}
		for i := 0; i < len(p); i++ {
			if p[i] <= ' ' || p[i] > '~' {
				return Channel{}, fmt.Errorf("%w: channel %q has a non ASCII segment", ErrMalformed, ch)
			}
		}
	}
	return Channel{LaoID: parts[0], Segments: parts[1:]}, nil
}
