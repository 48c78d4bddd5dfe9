package wallet

import (
	"errors"
	"fmt"
	"strings"
)

// Kind buckets wallet failures into the cases the UI handles differently.
type Kind int

const (
	KindUnknown Kind = iota
	KindUserDeclined
	KindWrongNetwork
	KindInsufficientFunds
	KindRPC
)

// Error is a classified wallet failure. All wallet operations return *Error so
// callers can switch on Kind instead of matching provider strings.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("wallet: %s: %v", e.Kind.label(), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (k Kind) label() string {
	switch k {
	case KindUserDeclined:
		return "user declined"
	case KindWrongNetwork:
		return "wrong network"
	case KindInsufficientFunds:
		return "insufficient funds"
	case KindRPC:
		return "rpc error"
	}
	return "unknown"
}

// UserMessage is a short, actionable message safe to show directly to the
// user. Raw provider errors never reach the chat.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindUserDeclined:
		return "Transaction was declined in your wallet. You can retry when ready."
	case KindWrongNetwork:
		return "Your wallet is on the wrong network. Switch networks and retry."
	case KindInsufficientFunds:
		return "Insufficient funds to cover this transaction and gas."
	case KindRPC:
		return "The network RPC is unavailable right now. Please retry shortly."
	}
	return "Something went wrong submitting the transaction. Please retry."
}

// Classify wraps a raw provider error as a *Error, bucketing it by the error
// text RPC nodes and signers actually produce. Already-classified errors pass
// through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var we *Error
	if errors.As(err, &we) {
		return we
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "user rejected"),
		strings.Contains(msg, "user denied"),
		strings.Contains(msg, "rejected by user"):
		return &Error{Kind: KindUserDeclined, Err: err}
	case strings.Contains(msg, "insufficient funds"),
		strings.Contains(msg, "insufficient balance"),
		strings.Contains(msg, "gas required exceeds"):
		return &Error{Kind: KindInsufficientFunds, Err: err}
	case strings.Contains(msg, "wrong network"),
		strings.Contains(msg, "chain mismatch"),
		strings.Contains(msg, "unsupported chain"):
		return &Error{Kind: KindWrongNetwork, Err: err}
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"):
		return &Error{Kind: KindRPC, Err: err}
	}
	return &Error{Kind: KindUnknown, Err: err}
}
