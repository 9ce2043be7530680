package engine

import "spot-matching/internal/matching"

func cloneCommandExecResult(in *CommandExecResult) *CommandExecResult {
	if in == nil {
		return nil
	}

	var clonedResult any
	switch r := in.Result.(type) {
	case *matching.CommandResult:
		clonedResult = cloneCommandResult(r)
	case *matching.Order:
		clonedResult = r.Clone()
	case *matching.BookSnapshotEvent:
		clonedResult = cloneBookSnapshot(r)
	default:
		clonedResult = in.Result
	}

	return &CommandExecResult{
		Result:    clonedResult,
		ErrorCode: in.ErrorCode,
		Err:       in.Err,
	}
}

func cloneCommandResult(in *matching.CommandResult) *matching.CommandResult {
	if in == nil {
		return nil
	}

	out := &matching.CommandResult{
		Order:  in.Order.Clone(),
		Trades: append([]matching.Trade(nil), in.Trades...),
		Events: make([]matching.Event, 0, len(in.Events)),
	}

	for _, evt := range in.Events {
		out.Events = append(out.Events, cloneEvent(evt))
	}

	return out
}

func cloneBookSnapshot(in *matching.BookSnapshotEvent) *matching.BookSnapshotEvent {
	if in == nil {
		return nil
	}

	cp := *in
	cp.Depth.Bids = append([]matching.LevelDepth(nil), in.Depth.Bids...)
	cp.Depth.Asks = append([]matching.LevelDepth(nil), in.Depth.Asks...)
	return &cp
}

func cloneEvent(evt matching.Event) matching.Event {
	switch e := evt.(type) {
	case *matching.OrderAcceptedEvent:
		if e == nil {
			return nil
		}
		cp := *e
		return &cp
	case *matching.OrderRejectedEvent:
		if e == nil {
			return nil
		}
		cp := *e
		return &cp
	case *matching.OrderFillEvent:
		if e == nil {
			return nil
		}
		cp := *e
		return &cp
	case *matching.OrderCancelledEvent:
		if e == nil {
			return nil
		}
		cp := *e
		return &cp
	case *matching.TradeExecutedEvent:
		if e == nil {
			return nil
		}
		cp := *e
		return &cp
	case *matching.BookDeltaEvent:
		if e == nil {
			return nil
		}
		cp := *e
		return &cp
	case *matching.BookSnapshotEvent:
		return cloneBookSnapshot(e)
	default:
		return evt
	}
}
