package x402

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrPaymentRequired is returned by the payer client when a resource
	// responds 402 and automatic payment is disabled or exhausted.
	ErrPaymentRequired = errors.New("payment required")

	// ErrNoAcceptedMethods means a 402 response carried an empty accepts
	// array, leaving the payer nothing to pay with.
	ErrNoAcceptedMethods = errors.New("no accepted payment methods")

	// ErrNoMatchingRequirements means none of the 402 response's accepted
	// payment options use a scheme and network the payer supports.
	ErrNoMatchingRequirements = errors.New("no matching payment requirements")

	// ErrSettlementFailed wraps a facilitator settlement that came back
	// unsuccessful.
	ErrSettlementFailed = errors.New("settlement failed")

	// ErrMissingConfig is returned when a binary starts without a
	// credential it cannot run without.
	ErrMissingConfig = errors.New("missing required configuration")
)

// IsTimeout reports whether err stems from a deadline, either the request
// context's or the transport's.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
