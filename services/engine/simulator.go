package engine

// Execution simulator: one order in, one fill (or rejection) out. Owns the
// cumulative-volume counter used for commission tier lookups; the counter
// is scoped to one simulator instance and never shared across runs.

type TradeSide int

const (
	TradeSideBuy TradeSide = iota
	TradeSideSell
)

func (s TradeSide) String() string {
	if s == TradeSideBuy {
		return "BUY"
	}
	return "SELL"
}

type OrderKind int

const (
	OrderMarket OrderKind = iota
	OrderLimit
)

// Order is created by the orchestrator from a strategy decision and
// consumed exactly once by the simulator.
type Order struct {
	Symbol   string    `json:"symbol"`
	Side     TradeSide `json:"side"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
	Kind     OrderKind `json:"kind"`
}

// RejectReason is a non-fatal, per-order rejection. Empty means filled.
type RejectReason string

const (
	RejectNone        RejectReason = ""
	RejectBadPrice    RejectReason = "non-positive price"
	RejectBadQuantity RejectReason = "non-positive quantity"
	RejectNoLiquidity RejectReason = "size exceeds largest liquidity tier"
	RejectNoBarVolume RejectReason = "no bar volume available"
)

// Fill is the realized execution of an order.
type Fill struct {
	Timestamp  uint64    `json:"timestamp"`
	Side       TradeSide `json:"side"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	Commission float64   `json:"commission"`
	Slippage   float64   `json:"slippage"`
	Impact     float64   `json:"impact"`
	Partial    bool      `json:"partial,omitempty"`
}

type Simulator struct {
	cfg       *SimulationConfig
	costs     CostModel
	cumVolume float64 // notional traded this run, drives tier lookups
}

func NewSimulator(cfg *SimulationConfig) *Simulator {
	return &Simulator{cfg: cfg, costs: NewCostModel(cfg)}
}

// CumulativeVolume exposes the tier state for reporting.
func (s *Simulator) CumulativeVolume() float64 { return s.cumVolume }

// Simulate executes the order against the market context. A non-empty
// RejectReason means no fill was produced; the run continues.
func (s *Simulator) Simulate(order Order, mc MarketContext) (Fill, RejectReason) {
	if order.Price <= 0 || order.Price != order.Price {
		return Fill{}, RejectBadPrice
	}
	if order.Quantity <= 0 || order.Quantity != order.Quantity {
		return Fill{}, RejectBadQuantity
	}
	if order.Quantity > s.cfg.MaxOrderQty {
		return Fill{}, RejectNoLiquidity
	}

	qty := order.Quantity
	partial := false
	if s.cfg.PartialFills.Enabled {
		avail := mc.Bar.Volume * s.cfg.PartialFills.MaxBarVolumeFrac
		if avail <= 0 {
			return Fill{}, RejectNoBarVolume
		}
		if qty > avail {
			qty = avail
			partial = true
		}
	}

	impact := s.costs.Impact(qty, mc)
	slip := s.costs.SlippageRate(mc)

	// Both costs move the price against the trade direction.
	var price float64
	if order.Side == TradeSideBuy {
		price = order.Price * (1 + impact + slip)
	} else {
		price = order.Price * (1 - impact - slip)
	}

	commission := s.costs.Commission(price, qty, s.cumVolume)
	s.cumVolume += price * qty

	return Fill{
		Timestamp:  mc.Bar.Timestamp,
		Side:       order.Side,
		Price:      price,
		Quantity:   qty,
		Commission: commission,
		Slippage:   order.Price * slip * qty,
		Impact:     order.Price * impact * qty,
		Partial:    partial,
	}, RejectNone
}
