package ledger

// StockStatus is the 3-state readout shown next to a quantity. The
// thresholds are presentation heuristics, configurable rather than
// invariants of the ledger.
type StockStatus string

const (
	StockStatusOut      StockStatus = "out_of_stock"
	StockStatusLow      StockStatus = "low_stock"
	StockStatusAdequate StockStatus = "adequate"
)

// StockStatusFor classifies an on-hand quantity. A location below its
// required quantity, or below the global low threshold, reads as low.
func StockStatusFor(qty, required, lowThreshold int64) StockStatus {
	if qty <= 0 {
		return StockStatusOut
	}
	if qty < lowThreshold || (required > 0 && qty < required) {
		return StockStatusLow
	}
	return StockStatusAdequate
}
