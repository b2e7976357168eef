package engine

type PositionSide int

const (
	SideFlat PositionSide = iota
	SideLong
	SideShort
)

func (s PositionSide) String() string {
	switch s {
	case SideLong:
		return "LONG"
	case SideShort:
		return "SHORT"
	}
	return "FLAT"
}

// Position is the signed holding for one symbol. Mutated only by fills.
type Position struct {
	Symbol   string       `json:"symbol"`
	Side     PositionSide `json:"side"`
	Quantity float64      `json:"quantity"`
	AvgPrice float64      `json:"avg_price"`
}

// FillOutcome describes what a fill did to the position. A fill that
// crosses zero is modeled as close-then-open: ClosedQty is realized at the
// old average price and OpenedQty re-opens on the other side at the fill
// price, never a blended average.
type FillOutcome struct {
	ClosedQty   float64
	RealizedPnL float64
	OpenedQty   float64
	Flipped     bool
}

// ApplyFill updates the position with an executed fill.
func (p *Position) ApplyFill(side TradeSide, price, qty float64) FillOutcome {
	if qty <= 0 {
		return FillOutcome{}
	}
	var out FillOutcome

	reducing := (side == TradeSideBuy && p.Side == SideShort) ||
		(side == TradeSideSell && p.Side == SideLong)

	if reducing {
		closed := qty
		if closed > p.Quantity {
			closed = p.Quantity
		}
		if p.Side == SideLong {
			out.RealizedPnL = (price - p.AvgPrice) * closed
		} else {
			out.RealizedPnL = (p.AvgPrice - price) * closed
		}
		out.ClosedQty = closed
		remaining := qty - closed
		p.Quantity -= closed
		if p.Quantity == 0 {
			p.Side = SideFlat
			p.AvgPrice = 0
		}
		if remaining > 0 {
			// flip: re-open opposite side at the fill price
			out.Flipped = true
			out.OpenedQty = remaining
			if side == TradeSideBuy {
				p.Side = SideLong
			} else {
				p.Side = SideShort
			}
			p.Quantity = remaining
			p.AvgPrice = price
		}
		return out
	}

	// Adding to an existing position or opening from flat.
	newQty := p.Quantity + qty
	if newQty > 0 {
		p.AvgPrice = (p.AvgPrice*p.Quantity + price*qty) / newQty
	}
	p.Quantity = newQty
	if side == TradeSideBuy {
		p.Side = SideLong
	} else {
		p.Side = SideShort
	}
	out.OpenedQty = qty
	return out
}

// MarkValue is the signed mark-to-market value of the position at price.
// Shorts carry a negative value: entry proceeds already sit in cash, the
// position itself is the buy-back liability.
func (p *Position) MarkValue(price float64) float64 {
	switch p.Side {
	case SideLong:
		return p.Quantity * price
	case SideShort:
		return -p.Quantity * price
	}
	return 0
}

// Trade pairs an entry fill with its eventual exit. PnL is net of both
// fills' commissions and computed only on exit.
type Trade struct {
	Symbol   string       `json:"symbol"`
	Side     PositionSide `json:"side"`
	Entry    Fill         `json:"entry"`
	Exit     *Fill        `json:"exit,omitempty"`
	Quantity float64      `json:"quantity"`
	PnL      float64      `json:"pnl"`
	Closed   bool         `json:"closed"`
}

// Return is the trade's fractional return on entry notional.
func (t *Trade) Return() float64 {
	notional := t.Entry.Price * t.Quantity
	if !t.Closed || notional == 0 {
		return 0
	}
	return t.PnL / notional
}
