package rules

import (
	"budgee-automation/src/models"
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ReapplyResult summarises a bulk re-run of rules over existing transactions.
type ReapplyResult struct {
	Transactions int `json:"transactions"`
	Matched      int `json:"matched"`
	Failed       int `json:"failed"`
}

// Reapply dispatches on_transaction_update for each transaction with at most
// concurrency events in flight. Each event is still dispatched on its own.
func Reapply(ctx context.Context, d *Dispatcher, userID int64, txnIDs []int64, concurrency int) (ReapplyResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	var matched, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range txnIDs {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			logs, err := d.Dispatch(gctx, Event{
				Type:          models.TriggerTransactionUpdate,
				UserID:        userID,
				TransactionID: id,
			})
			if err != nil {
				failed.Add(1)
				log.Error().Err(err).Int64("transaction_id", id).Msg("Failed to reapply rules to transaction")
				return nil
			}
			for _, entry := range logs {
				if entry.Status != models.StatusSkipped {
					matched.Add(1)
				}
			}
			return nil
		})
	}
	err := g.Wait()

	return ReapplyResult{
		Transactions: len(txnIDs),
		Matched:      int(matched.Load()),
		Failed:       int(failed.Load()),
	}, err
}
