package reward

import (
	"context"

	"github.com/pitodoapp/core/pkg/wallet"
)

// walletPayouts pays PITD rewards through the wallet ledger service.
type walletPayouts struct {
	ledger *wallet.Service
}

// NewWalletPayouts adapts the wallet ledger to the Payouts contract.
func NewWalletPayouts(ledger *wallet.Service) Payouts {
	return &walletPayouts{ledger: ledger}
}

func (payouts *walletPayouts) PayReward(ctx context.Context, userID string, amount int64, spinID string, idempotencyKey string) error {
	ledgerUserID, err := wallet.NewUserID(userID)
	if err != nil {
		return err
	}
	ledgerAmount, err := wallet.NewPositiveAmount(amount)
	if err != nil {
		return err
	}
	ledgerKey, err := wallet.NewIdempotencyKey(idempotencyKey)
	if err != nil {
		return err
	}
	metadata, err := wallet.NewMetadataJSON("")
	if err != nil {
		return err
	}
	reference := &wallet.Reference{ID: spinID, Type: "spin"}
	_, err = payouts.ledger.Credit(ctx, ledgerUserID, ledgerAmount, wallet.TransactionReward, reference, "lucky spin payout", ledgerKey, metadata)
	return err
}
