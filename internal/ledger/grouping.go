package ledger

import (
	"sort"
	"time"

	"inventory-service/internal/model"
)

// Group is one display event: transactions of the same type, submitted by
// the same actor inside one grouping window. A drop-off of ten items reads
// as one event, not ten.
type Group struct {
	Type         model.TransactionType `json:"transaction_type"`
	SubmittedBy  uint                  `json:"submitted_by"`
	CreatedAt    time.Time             `json:"created_at"`
	Transactions []model.Transaction   `json:"transactions"`
}

type groupKey struct {
	txType      model.TransactionType
	submittedBy uint
	bucket      int64
}

// GroupTransactions collapses a flat transaction sequence into display
// groups keyed by (type, time bucket, actor). It is a pure function: the
// same transaction set yields the same groups regardless of input order,
// because the input is sorted by (created_at, sequence) descending before
// grouping. Groups are ordered newest first; each group's CreatedAt is the
// earliest timestamp among its members.
func GroupTransactions(txs []model.Transaction, window time.Duration) []Group {
	if window <= 0 {
		window = defaultGroupingWindow
	}

	ordered := make([]model.Transaction, len(txs))
	copy(ordered, txs)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
		}
		return ordered[i].ID > ordered[j].ID
	})

	groups := make([]Group, 0)
	index := make(map[groupKey]int)
	for _, tx := range ordered {
		key := groupKey{
			txType:      tx.Type,
			submittedBy: tx.SubmittedBy,
			bucket:      tx.CreatedAt.UnixNano() / int64(window),
		}
		i, ok := index[key]
		if !ok {
			index[key] = len(groups)
			groups = append(groups, Group{
				Type:         tx.Type,
				SubmittedBy:  tx.SubmittedBy,
				CreatedAt:    tx.CreatedAt,
				Transactions: []model.Transaction{tx},
			})
			continue
		}
		groups[i].Transactions = append(groups[i].Transactions, tx)
		// Members arrive newest first, so the last appended is the
		// earliest seen so far.
		groups[i].CreatedAt = tx.CreatedAt
	}
	return groups
}

// ApplyFilter narrows an in-memory transaction slice the same way the store
// filters history reads. It is used to filter before grouping.
func ApplyFilter(txs []model.Transaction, f Filter) []model.Transaction {
	out := make([]model.Transaction, 0, len(txs))
	for _, tx := range txs {
		if len(f.Types) > 0 && !containsType(f.Types, tx.Type) {
			continue
		}
		if len(f.ItemStatuses) > 0 && !containsStatus(f.ItemStatuses, tx.ItemStatus) {
			continue
		}
		if f.From != nil && tx.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && tx.CreatedAt.After(*f.To) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func containsType(types []model.TransactionType, t model.TransactionType) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

func containsStatus(statuses []model.ItemStatus, s model.ItemStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}
