package wallet

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want Kind
	}{
		{"user rejected the request", KindUserDeclined},
		{"MetaMask Tx Signature: User denied transaction signature", KindUserDeclined},
		{"transaction rejected by user", KindUserDeclined},
		{"insufficient funds for gas * price + value", KindInsufficientFunds},
		{"insufficient balance for transfer", KindInsufficientFunds},
		{"gas required exceeds allowance", KindInsufficientFunds},
		{"wrong network selected", KindWrongNetwork},
		{"chain mismatch: expected 137", KindWrongNetwork},
		{"unsupported chain id", KindWrongNetwork},
		{"dial tcp: connection refused", KindRPC},
		{"context deadline exceeded: timeout", KindRPC},
		{"502 Bad Gateway", KindRPC},
		{"something completely different", KindUnknown},
	}

	for _, tt := range tests {
		got := Classify(errors.New(tt.msg))
		if got.Kind != tt.want {
			t.Errorf("Classify(%q).Kind = %v, want %v", tt.msg, got.Kind, tt.want)
		}
	}
}

func TestClassifyNil(t *testing.T) {
	if got := Classify(nil); got != nil {
		t.Errorf("Classify(nil) = %v, want nil", got)
	}
}

// An already-classified error keeps its kind even when re-wrapped.
func TestClassifyPassthrough(t *testing.T) {
	orig := &Error{Kind: KindUserDeclined, Err: errors.New("user pressed cancel")}
	wrapped := fmt.Errorf("sending approval: %w", orig)

	got := Classify(wrapped)
	if got != orig {
		t.Errorf("Classify(wrapped) = %v, want the original *Error", got)
	}
}

func TestUserMessage(t *testing.T) {
	for _, k := range []Kind{KindUnknown, KindUserDeclined, KindWrongNetwork, KindInsufficientFunds, KindRPC} {
		e := &Error{Kind: k, Err: errors.New("raw provider text")}
		msg := e.UserMessage()
		if msg == "" {
			t.Errorf("UserMessage for kind %v is empty", k)
		}
	}
}
