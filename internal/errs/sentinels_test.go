package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestUserMessage(t *testing.T) {
	t.Parallel()

	if got := UserMessage(nil); got != "" {
		t.Fatalf("nil err: %q", got)
	}

	funds := UserMessage(fmt.Errorf("%w: No records for fee", ErrInsufficientFunds))
	if !strings.Contains(funds, FaucetURL) {
		t.Fatalf("insufficient funds message must point at faucet: %q", funds)
	}

	generic := UserMessage(errors.New("boom"))
	if strings.Contains(generic, FaucetURL) || !strings.Contains(generic, "boom") {
		t.Fatalf("generic message: %q", generic)
	}

	v := UserMessage(fmt.Errorf("%w: non-positive tip amount", ErrValidation))
	if v != "Invalid input: non-positive tip amount" {
		t.Fatalf("validation message: %q", v)
	}

	if !strings.Contains(UserMessage(ErrNotConnected), "connect") {
		t.Fatalf("not connected message")
	}
}
