package orchestrator

import (
	"math/big"

	"ghostswap/pkg/wallet"
)

// tokenBalance sums unspent token records per chain token id.
func tokenBalance(records []wallet.Record) map[string]*big.Int {
	balances := make(map[string]*big.Int)
	for _, r := range records {
		if r.IsSpent() || r.Name() != wallet.RecordToken {
			continue
		}
		tokenID, ok := r.Field("token_id")
		if !ok {
			continue
		}
		amount, err := r.Amount("amount")
		if err != nil {
			continue
		}
		if _, ok := balances[tokenID]; !ok {
			balances[tokenID] = new(big.Int)
		}
		balances[tokenID].Add(balances[tokenID], amount)
	}
	return balances
}

// selectToken picks the smallest unspent token record holding at least need.
// It also returns the largest single record balance seen.
func selectToken(records []wallet.Record, chainTokenID string, need *big.Int) (wallet.Record, *big.Int, bool) {
	var (
		best       wallet.Record
		bestAmount *big.Int
		largest    = new(big.Int)
	)

	for _, r := range records {
		if r.IsSpent() || r.Name() != wallet.RecordToken {
			continue
		}
		if tokenID, _ := r.Field("token_id"); tokenID != chainTokenID {
			continue
		}
		amount, err := r.Amount("amount")
		if err != nil {
			continue
		}
		if amount.Cmp(largest) > 0 {
			largest = amount
		}
		if amount.Cmp(need) < 0 {
			continue
		}
		if bestAmount == nil || amount.Cmp(bestAmount) < 0 {
			best, bestAmount = r, amount
		}
	}
	return best, largest, bestAmount != nil
}

// findByOrder returns the unspent record of the given type for an order id.
func findByOrder(records []wallet.Record, name, orderID string) (wallet.Record, bool) {
	for _, r := range records {
		if r.IsSpent() || r.Name() != name {
			continue
		}
		if id, _ := r.Field("order_id"); id == orderID {
			return r, true
		}
	}
	return nil, false
}
