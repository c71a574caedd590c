package audit

import (
	"stationscience.dev/internal/sim/contracts/lifecycle"
	"stationscience.dev/internal/sim/contracts/objective"
	"stationscience.dev/internal/sim/progression"
)

const (
	EventOffer    = "CONTRACT_OFFER"
	EventAccept   = "CONTRACT_ACCEPT"
	EventDecline  = "CONTRACT_DECLINE"
	EventCancel   = "CONTRACT_CANCEL"
	EventStage    = "CONTRACT_STAGE"
	EventComplete = "CONTRACT_COMPLETE"
	EventFail     = "CONTRACT_FAIL"
	EventWithdraw = "CONTRACT_WITHDRAW"
	EventRuined   = "EXPERIMENT_RUINED"
)

// Entry is one audit record ready for the audit log.
type Entry struct {
	EventType string
	Actor     string
	Reason    string
	Fields    map[string]any
}

func BuildOfferFields(c *lifecycle.Contract) map[string]any {
	return map[string]any{
		"contract_id":     c.ID,
		"experiment_type": c.Payload.ID,
		"target_body":     c.Location.ID,
		"value":           c.Value,
		"prestige":        c.Prestige,
		"first_time":      c.FirstTime,
		"rewards":         c.Rewards,
		"expires_at":      c.ExpiresAt,
	}
}

func payoutFields(d progression.Delta) map[string]any {
	return map[string]any{
		"funds":      d.Funds,
		"science":    d.Science,
		"reputation": d.Reputation,
		"xp":         d.XP,
	}
}

func stageList(tr []objective.Transition) []map[string]any {
	if len(tr) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(tr))
	for _, t := range tr {
		out = append(out, map[string]any{"stage": t.Stage.String(), "at": t.At})
	}
	return out
}

// BuildOutcome maps a lifecycle outcome to its audit entry. ok is false for
// outcomes that are not audited.
func BuildOutcome(o lifecycle.Outcome) (Entry, bool) {
	if o.Contract == nil {
		return Entry{}, false
	}
	c := o.Contract
	fields := map[string]any{
		"contract_id":     c.ID,
		"experiment_type": c.Payload.ID,
		"target_body":     c.Location.ID,
		"from":            string(o.From),
		"to":              string(o.To),
	}
	if !o.Payout.IsZero() {
		fields["payout"] = payoutFields(o.Payout)
	}
	if st := stageList(o.Transitions); st != nil {
		fields["stages"] = st
	}

	e := Entry{Actor: "PLAYER", Reason: o.Reason, Fields: fields}
	switch o.To {
	case lifecycle.StateActive:
		if o.From == lifecycle.StateOffered {
			e.EventType = EventAccept
			fields["deadline_at"] = c.DeadlineAt
		} else {
			e.EventType = EventStage
			e.Actor = "STATION"
		}
	case lifecycle.StateDeclined:
		e.EventType = EventDecline
	case lifecycle.StateCancelled:
		e.EventType = EventCancel
	case lifecycle.StateCompleted:
		e.EventType = EventComplete
		e.Actor = "STATION"
	case lifecycle.StateFailed:
		e.EventType = EventFail
		e.Actor = "STATION"
	case lifecycle.StateWithdrawn:
		e.EventType = EventWithdraw
		e.Actor = "STATION"
	default:
		return Entry{}, false
	}
	return e, true
}

func BuildRuinedFields(vesselID, partID, experimentType, lastSubject, subject string) map[string]any {
	return map[string]any{
		"vessel_id":       vesselID,
		"part_id":         partID,
		"experiment_type": experimentType,
		"last_subject":    lastSubject,
		"subject":         subject,
	}
}
