package main

import (
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/luca-patrignani/popcore/domain"
	"github.com/luca-patrignani/popcore/messagedata"
)

func printState(s domain.Snapshot) {
	if err := pterm.DefaultPanel.WithPanels(statePanels(s)).Render(); err != nil {
		pterm.Error.Println(err.Error())
	}
}

func statePanels(s domain.Snapshot) [][]pterm.Panel {
	rows := [][]pterm.Panel{{{Data: laoInfo(s)}}}
	var events []pterm.Panel
	for _, rc := range s.RollCalls {
		events = append(events, pterm.Panel{Data: rollCallInfo(rc)})
	}
	for _, m := range s.Meetings {
		events = append(events, pterm.Panel{Data: meetingInfo(m)})
	}
	if len(events) > 0 {
		rows = append(rows, events)
	}
	var elections []pterm.Panel
	for _, e := range s.Elections {
		elections = append(elections, pterm.Panel{Data: electionInfo(e)})
	}
	if len(elections) > 0 {
		rows = append(rows, elections)
	}
	if len(s.Consensus) > 0 {
		rows = append(rows, []pterm.Panel{{Data: consensusInfo(s.Consensus)}})
	}
	if len(s.Transactions) > 0 {
		rows = append(rows, []pterm.Panel{{Data: coinInfo(s.Transactions)}})
	}
	return rows
}

func coinInfo(txs []domain.CoinTransaction) string {
	var minted, moved int64
	for _, tx := range txs {
		for _, out := range tx.Outputs {
			if tx.Coinbase {
				minted += out.Value
			} else {
				moved += out.Value
			}
		}
	}
	return box().WithTitle(pterm.LightMagenta("|Coin|")).WithTitleTopLeft().
		Sprintf("Transactions: %d\nMinted: %d\nTransferred: %d\n", len(txs), minted, moved)
}

func box() *pterm.BoxPrinter {
	return pterm.DefaultBox.WithLeftPadding(4).WithRightPadding(4).WithTopPadding(1).WithBottomPadding(1)
}

func laoInfo(s domain.Snapshot) string {
	if s.Lao == nil {
		return box().WithTitle(pterm.LightYellow("|LAO|")).WithTitleTopCenter().
			Sprintf("waiting for %s", s.LaoID)
	}
	l := s.Lao
	info := pterm.Sprintfln("Organizer: %s", l.Organizer)
	info += pterm.Sprintfln("Witnesses: %d", len(l.Witnesses))
	info += pterm.Sprintfln("Created: %s", formatTime(l.Creation))
	info += pterm.Sprintf("Messages: %d applied, %d pending", s.Applied, s.Pending)
	return box().WithTitle(pterm.LightCyan(l.Name)).WithTitleTopCenter().Sprint(info)
}

func rollCallInfo(rc domain.RollCall) string {
	var state string
	switch rc.State {
	case domain.RollCallOpened:
		state = pterm.LightGreen(string(rc.State))
	case domain.RollCallClosed:
		state = pterm.LightRed(string(rc.State))
	default:
		state = pterm.LightYellow(string(rc.State))
	}
	return box().WithTitle(rc.Name).WithTitleTopLeft().
		Sprintf("%s\nLocation: %s\nAttendees: %d\n", state, rc.Location, len(rc.Attendees))
}

func meetingInfo(m domain.Meeting) string {
	info := pterm.Sprintfln("Starts: %s", formatTime(m.Start))
	if m.Location != "" {
		info += pterm.Sprintfln("Location: %s", m.Location)
	}
	return box().WithTitle(m.Name).WithTitleTopLeft().Sprint(info)
}

func electionInfo(e domain.Election) string {
	info := pterm.Sprintfln("%s (%s)", e.State, strings.ToLower(e.Version))
	info += pterm.Sprintfln("Voters: %d", e.Voters)
	results := e.Results
	if len(results) == 0 {
		results = e.Tally
	}
	for _, q := range e.Questions {
		info += pterm.Sprintfln("%s", pterm.LightCyan(q.Question))
		counts := resultFor(results, q)
		for i, option := range q.BallotOptions {
			if counts != nil {
				info += pterm.Sprintfln("  %s: %d", option, counts[i])
			} else {
				info += pterm.Sprintfln("  %s", option)
			}
		}
	}
	return box().WithTitle(e.Name).WithTitleTopLeft().Sprint(info)
}

// resultFor returns the count of each ballot option of q, nil without a
// result for q.
func resultFor(results []messagedata.QuestionResult, q messagedata.Question) []int {
	for _, r := range results {
		if !r.ID.Equal(q.ID) {
			continue
		}
		counts := make([]int, len(q.BallotOptions))
		for _, c := range r.Result {
			for i, option := range q.BallotOptions {
				if option == c.BallotOption {
					counts[i] = c.Count
				}
			}
		}
		return counts
	}
	return nil
}

func consensusInfo(views []domain.ConsensusView) string {
	info := ""
	for _, v := range views {
		status := pterm.LightYellow("pending")
		switch {
		case v.Learned:
			status = pterm.LightGreen("learned")
		case v.Accepted:
			status = pterm.LightGreen("accepted")
		}
		info += pterm.Sprintfln("%s.%s = %s: %s (%d/%d)",
			v.Key.Type, v.Key.Property, v.Value, status, v.Accepts, len(v.Acceptors))
	}
	return box().WithTitle(pterm.LightYellow("|CONSENSUS|")).WithTitleTopCenter().Sprint(info)
}

func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}
