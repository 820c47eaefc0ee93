package engine

// Demand is the exogenous appetite for new industrial output.
type Demand struct {
	Light    float64 `json:"light"`
	Heavy    float64 `json:"heavy"`
	HighTech float64 `json:"high_tech"`
}

// ExternalDemand returns outside-world demand at the given day. The market
// model is a fixed stand-in until trade is simulated.
func ExternalDemand(days float64) Demand {
	return Demand{Light: 40, Heavy: 20, HighTech: 5}
}
