// Package parser extracts swap parameters from free-text chat messages.
//
// This is best-effort pattern matching over natural language. It returns an
// optional result, ok=false on anything it can't confidently read, and its
// failure modes never reach the execution engine.
package parser

import (
	"regexp"
	"strings"
)

// Request is the structured result of a recognized swap command.
type Request struct {
	Amount      string // decimal string as typed, e.g. "1.5"
	SourceToken string // upper-cased symbol
	DestToken   string // upper-cased symbol
	ChainName   string // optional "on <chain>" suffix, as typed
}

// Pattern: [swap] <amount> <token> to|for <token> [on <chain>]
var swapPattern = regexp.MustCompile(`^(?:SWAP\s+)?(\d+(?:\.\d+)?)\s+([A-Z0-9]{2,10})\s+(?:TO|FOR)\s+([A-Z0-9]{2,10})(?:\s+ON\s+([A-Z ]+?))?$`)

// Parse recognizes commands like "swap 10 USDC to ETH on polygon". It reports
// ok=false for anything else; there is no error to propagate.
func Parse(text string) (*Request, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(text))
	normalized = strings.Join(strings.Fields(normalized), " ")

	matches := swapPattern.FindStringSubmatch(normalized)
	if matches == nil {
		return nil, false
	}

	req := &Request{
		Amount:      matches[1],
		SourceToken: matches[2],
		DestToken:   matches[3],
		ChainName:   strings.TrimSpace(matches[4]),
	}
	if req.SourceToken == req.DestToken {
		return nil, false
	}
	return req, true
}
