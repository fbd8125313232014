package math

import (
	"math/big"
	"sync"
)

// BpsDenominator is the basis-point scale: 10000 bps == 100%.
const BpsDenominator = 10_000

// Uint128 is a pooled big.Int for intermediate calculations
var uint128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getUint128() *big.Int {
	return uint128Pool.Get().(*big.Int)
}

func putUint128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	uint128Pool.Put(v)
}

// MulDiv computes a * b / c with a 128-bit intermediate so the product
// cannot overflow, flooring the quotient. Fails with ErrDivideByZero when
// c == 0 and ErrOverflow when the floored quotient does not fit in uint64.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrDivideByZero
	}

	product := getUint128()
	product.Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))

	quotient := getUint128()
	quotient.Div(product, new(big.Int).SetUint64(c))

	if !quotient.IsUint64() {
		putUint128(product)
		putUint128(quotient)
		return 0, ErrOverflow
	}

	result := quotient.Uint64()
	putUint128(product)
	putUint128(quotient)

	return result, nil
}

// Bps computes amount * bps / 10000, flooring. Used for protocol fees and
// loyalty rewards.
func Bps(amount uint64, bps uint32) (uint64, error) {
	return MulDiv(amount, uint64(bps), BpsDenominator)
}
