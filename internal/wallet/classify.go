package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/privcaster/privcaster/internal/errs"
)

// feeFailures are substrings wallets use when they cannot pay a fee.
var feeFailures = []string{"no records for fee", "invalid_params", "insufficient"}

// Classify tags fee-payment failures with errs.ErrInsufficientFunds so
// callers can show a funding hint instead of a generic failure.
func Classify(err error) error {
	if err == nil || errors.Is(err, errs.ErrInsufficientFunds) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, s := range feeFailures {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %w", errs.ErrInsufficientFunds, err)
		}
	}
	return err
}
