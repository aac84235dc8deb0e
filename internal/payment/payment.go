// Package payment is the boundary between the external Pi payment provider
// and the PITD wallet ledger. Payment initiation and approval never move
// wallet funds; only the provider's completion callback does, exactly once
// per payment id.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pitodoapp/core/pkg/wallet"
	"go.uber.org/zap"
)

// Direction says which way value moves when the payment completes.
type Direction string

const (
	// DirectionUserToApp: the user paid Pi in, the wallet is credited.
	DirectionUserToApp Direction = "user_to_app"
	// DirectionAppToUser: a withdrawal, the wallet is debited.
	DirectionAppToUser Direction = "app_to_user"
)

const paymentKeyPrefix = "pi:"

var (
	ErrInvalidPaymentID = errors.New("payment: invalid payment id")
	ErrInvalidDirection = errors.New("payment: invalid direction")
)

// ParseDirection validates a wire-format direction.
func ParseDirection(raw string) (Direction, error) {
	switch Direction(raw) {
	case DirectionUserToApp, DirectionAppToUser:
		return Direction(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, raw)
	}
}

// Completion reports the ledger outcome of a completed payment.
type Completion struct {
	PaymentID string
	Direction Direction
	Receipt   wallet.Receipt
}

// Service applies provider callbacks to the wallet ledger.
type Service struct {
	ledger *wallet.Service
	logger *zap.Logger
}

// NewService wires a payment Service.
func NewService(ledger *wallet.Service, logger *zap.Logger) (*Service, error) {
	if ledger == nil {
		return nil, errors.New("payment: ledger dependency is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{ledger: ledger, logger: logger}, nil
}

// Approve acknowledges the provider's approval callback. It records intent
// only; the wallet stays untouched until completion.
func (service *Service) Approve(ctx context.Context, paymentID string, userID string, amount int64, direction Direction) error {
	if strings.TrimSpace(paymentID) == "" {
		return ErrInvalidPaymentID
	}
	if _, err := wallet.NewUserID(userID); err != nil {
		return err
	}
	if _, err := wallet.NewPositiveAmount(amount); err != nil {
		return err
	}
	if _, err := ParseDirection(string(direction)); err != nil {
		return err
	}
	service.logger.Info("payment approved",
		zap.String("payment_id", paymentID),
		zap.String("user_id", userID),
		zap.Int64("amount", amount),
		zap.String("direction", string(direction)),
	)
	return nil
}

// CompletePayment settles a payment against the wallet exactly once. The
// ledger idempotency key is derived from the payment id, so the provider can
// retry the callback without double-settling.
func (service *Service) CompletePayment(ctx context.Context, paymentID string, userID string, amount int64, direction Direction) (Completion, error) {
	if strings.TrimSpace(paymentID) == "" {
		return Completion{}, ErrInvalidPaymentID
	}
	ledgerUserID, err := wallet.NewUserID(userID)
	if err != nil {
		return Completion{}, err
	}
	ledgerAmount, err := wallet.NewPositiveAmount(amount)
	if err != nil {
		return Completion{}, err
	}
	key, err := wallet.NewIdempotencyKey(paymentKeyPrefix + paymentID)
	if err != nil {
		return Completion{}, err
	}
	metadata, err := wallet.NewMetadataJSON(fmt.Sprintf(`{"payment_id":%q}`, paymentID))
	if err != nil {
		return Completion{}, err
	}
	reference := &wallet.Reference{ID: paymentID, Type: "pi_payment"}

	var receipt wallet.Receipt
	switch direction {
	case DirectionUserToApp:
		receipt, err = service.ledger.Credit(ctx, ledgerUserID, ledgerAmount, wallet.TransactionDeposit, reference, "pi payment deposit", key, metadata)
	case DirectionAppToUser:
		receipt, err = service.ledger.Debit(ctx, ledgerUserID, ledgerAmount, wallet.TransactionWithdrawal, reference, "pi payment withdrawal", key, metadata)
	default:
		return Completion{}, fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}
	if err != nil {
		return Completion{}, err
	}
	service.logger.Info("payment completed",
		zap.String("payment_id", paymentID),
		zap.String("user_id", userID),
		zap.Int64("amount", amount),
		zap.String("direction", string(direction)),
		zap.Bool("replayed", receipt.Replayed),
	)
	return Completion{PaymentID: paymentID, Direction: direction, Receipt: receipt}, nil
}
