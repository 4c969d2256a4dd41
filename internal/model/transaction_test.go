package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCheckAmount(t *testing.T) {
	cases := []struct {
		amount string
		ok     bool
	}{
		{"100.50", true},
		{"0.000000000000000001", true},
		{"1.500000000000000000000", true}, // trailing zeros beyond the scale are exact
		{"99999999999999999999.999999999999999999", true},
		{"0.0000000000000000001", false},
		{"1.0000000000000000001", false},
		{"100000000000000000000", false},
		{"-100000000000000000000", false},
	}
	for _, c := range cases {
		err := CheckAmount(decimal.RequireFromString(c.amount))
		if c.ok {
			assert.NoError(t, err, c.amount)
		} else {
			assert.ErrorIs(t, err, ErrAmountOutOfRange, c.amount)
		}
	}
}
