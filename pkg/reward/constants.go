package reward

const (
	operationSpin     = "spin"
	operationClaim    = "claim"
	operationRegister = "register"
	operationDraw     = "draw"

	operationStatusOK       = "ok"
	operationStatusError    = "error"
	operationStatusReplayed = "replayed"

	defaultMaxSpinsPerDay = 1

	payoutKeyPrefix = "spin:"

	secondsPerDay = 86400
)
