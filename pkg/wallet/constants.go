package wallet

import "time"

const (
	operationCredit      = "credit"
	operationDebit       = "debit"
	operationTransfer    = "transfer"
	operationHold        = "hold"
	operationReleaseHold = "release_hold"

	operationStatusOK       = "ok"
	operationStatusError    = "error"
	operationStatusReplayed = "replayed"

	walletAddressPrefix       = "PITD-"
	walletAddressSuffixLength = 16

	defaultRetryAttempts = 3
	initialRetryBackoff  = 50 * time.Millisecond

	defaultListLimit = 50
	maxListLimit     = 200

	idempotencyKeyDelimiter = ":"
	idempotencySuffixOut    = "out"
	idempotencySuffixIn     = "in"

	referenceTypeTransfer = "transfer"
)
