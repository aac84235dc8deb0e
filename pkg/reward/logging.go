package reward

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing reward operation.
type OperationLog struct {
	Operation      string
	UserID         UserID
	RewardID       string
	EventID        string
	IdempotencyKey IdempotencyKey
	Status         string
	Error          error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithMaxSpinsPerDay overrides the daily spin quota.
func WithMaxSpinsPerDay(limit int64) ServiceOption {
	return func(service *Service) {
		if limit > 0 {
			service.maxSpinsPerDay = limit
		}
	}
}

// WithPayouts wires the wallet-backed payer for PITD rewards.
func WithPayouts(payouts Payouts) ServiceOption {
	return func(service *Service) {
		service.payouts = payouts
	}
}
