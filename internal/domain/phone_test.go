package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "local format", input: "0712345678", want: "254712345678"},
		{name: "international format", input: "254712345678", want: "254712345678"},
		{name: "plus prefix", input: "+254712345678", want: "254712345678"},
		{name: "bare nine digits", input: "712345678", want: "254712345678"},
		{name: "spaces and hyphens", input: "0712 345-678", want: "254712345678"},
		{name: "parentheses", input: "(0712) 345678", want: "254712345678"},
		{name: "landline style zero one", input: "0112345678", want: "254112345678"},
		{name: "empty", input: "", want: ""},
		{name: "garbage passes through", input: "12345", want: "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.input))
		})
	}
}

func TestValidPhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "safaricom", input: "254712345678", want: true},
		{name: "airtel", input: "254733345678", want: true},
		{name: "normalizes junk before matching", input: "+254 712 345 678", want: true},
		{name: "local format not normalized", input: "0712345678", want: false},
		{name: "too short", input: "25471234567", want: false},
		{name: "too long", input: "2547123456789", want: false},
		{name: "wrong country code", input: "255712345678", want: false},
		{name: "letters", input: "2547abc45678", want: false},
		{name: "empty", input: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidPhone(tt.input))
		})
	}
}
