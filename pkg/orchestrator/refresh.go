package orchestrator

import (
	"context"

	"ghostswap/pkg/types"
	"ghostswap/pkg/wallet"
)

const refreshAttempts = 2

// refreshRecord waits for the offer record re-issued by a ticket and attaches
// its plaintext to the stored offer. It makes at most refreshAttempts tries
// with a fixed delay and gives up quietly.
func (o *Orchestrator) refreshRecord(offerID, orderID, previous string) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		logger := o.log.WithField("offer", offerID)
		for attempt := 1; attempt <= refreshAttempts; attempt++ {
			select {
			case <-o.ctx.Done():
				return
			case <-o.clock.After(o.cfg.RefreshDelay):
			}

			plaintext, err := o.latestOfferPlaintext(o.ctx, orderID, previous)
			if err != nil {
				logger.WithError(err).Debugf("record refresh attempt %d failed", attempt)
				continue
			}
			if plaintext == "" {
				logger.Debugf("record refresh attempt %d: offer record not updated yet", attempt)
				continue
			}

			if err := o.store.AttachRecordPlaintext(offerID, plaintext); err != nil {
				logger.WithError(err).Warn("failed to store refreshed offer record")
				return
			}
			logger.Info("offer record refreshed, link can be regenerated")
			return
		}
		logger.Warn("offer record not refreshed; regenerate the link once the ticket confirms")
	}()
}

func (o *Orchestrator) latestOfferPlaintext(ctx context.Context, orderID, previous string) (string, error) {
	records, err := o.wallet.RequestRecords(ctx, wallet.ProgramID, true)
	if err != nil {
		return "", err
	}
	for _, r := range records {
		if r.IsSpent() || r.Name() != wallet.RecordOffer {
			continue
		}
		if id, _ := r.Field("order_id"); id != orderID {
			continue
		}
		if plaintext := r.Plaintext(); plaintext != "" && plaintext != previous {
			return plaintext, nil
		}
	}
	return "", nil
}

// SyncTransactions asks the wallet for the status of pending log entries and
// returns how many changed. Wallets without status support change nothing.
func (o *Orchestrator) SyncTransactions(ctx context.Context) (int, error) {
	checker, ok := o.wallet.(wallet.StatusChecker)
	if !ok {
		return 0, nil
	}

	updated := 0
	for _, tx := range o.store.Transactions() {
		if tx.Status != types.TxPending {
			continue
		}
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		status, err := checker.TransactionStatus(ctx, tx.ID)
		if err != nil {
			o.log.WithError(err).WithField("tx", tx.ID).Debug("transaction status unavailable")
			continue
		}
		if status == "" || status == types.TxPending {
			continue
		}
		if err := o.store.UpdateTransactionStatus(tx.ID, status); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}
