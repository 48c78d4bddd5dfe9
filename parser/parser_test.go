package parser

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		text  string
		want  Request
		match bool
	}{
		{"swap 10 USDC to ETH", Request{Amount: "10", SourceToken: "USDC", DestToken: "ETH"}, true},
		{"10 USDC to ETH", Request{Amount: "10", SourceToken: "USDC", DestToken: "ETH"}, true},
		{"swap 1.5 eth for usdc", Request{Amount: "1.5", SourceToken: "ETH", DestToken: "USDC"}, true},
		{"swap 10 USDC to ETH on polygon", Request{Amount: "10", SourceToken: "USDC", DestToken: "ETH", ChainName: "POLYGON"}, true},
		{"  swap   0.25 WETH   for DAI on arbitrum  ", Request{Amount: "0.25", SourceToken: "WETH", DestToken: "DAI", ChainName: "ARBITRUM"}, true},
		{"swap 10 USDC to USDC", Request{}, false}, // same token both sides
		{"hello there", Request{}, false},
		{"swap USDC to ETH", Request{}, false}, // no amount
		{"swap 10 U to ETH", Request{}, false}, // symbol too short
		{"", Request{}, false},
	}

	for _, tt := range tests {
		got, ok := Parse(tt.text)
		if ok != tt.match {
			t.Errorf("Parse(%q) ok = %v, want %v", tt.text, ok, tt.match)
			continue
		}
		if !ok {
			continue
		}
		if *got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.text, *got, tt.want)
		}
	}
}
