// Package math implements the Q64.96 fixed-point kernel used by the Marginly pool.
//
// Every value is a *uint256.Int. Products are computed with a 512-bit intermediate and
// truncated exactly like the contract does, so previews never drift from on-chain results.
// Functions never mutate their arguments.
package math

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Q96Resolution is the number of fractional bits of an X96 value.
const Q96Resolution = 96

var (
	// Q96 is the X96 representation of 1.
	Q96 = new(uint256.Int).Lsh(uint256.NewInt(1), Q96Resolution)

	// MaxUint256 is 2^256-1.
	MaxUint256 = new(uint256.Int).SetAllOne()
)

var (
	// ErrDivisionByZero usually means a degenerate or already liquidated position.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrOutOfRange means a result is negative or does not fit 256 bits,
	// typically because coefficients and balances are out of sync.
	ErrOutOfRange = errors.New("value out of range")

	// ErrNegative is the out-of-range case where a subtraction would go below zero.
	// Overflow past 2^256-1 never matches it.
	ErrNegative = fmt.Errorf("%w: negative result", ErrOutOfRange)
)

// ArithmeticError annotates a kernel failure with the operation that raised it.
type ArithmeticError struct {
	Op  string
	Err error
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("fp96 %s: %v", e.Op, e.Err)
}

func (e *ArithmeticError) Unwrap() error {
	return e.Err
}

func divByZero(op string) error {
	return &ArithmeticError{Op: op, Err: ErrDivisionByZero}
}

func outOfRange(op string) error {
	return &ArithmeticError{Op: op, Err: ErrOutOfRange}
}

// Mul returns a * bX96 / 2^96, truncating.
func Mul(a, bX96 *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulDivOverflow(a, bX96, Q96)
	if overflow {
		return nil, outOfRange("mul")
	}
	return z, nil
}

// Div returns a * 2^96 / bX96, truncating.
func Div(a, bX96 *uint256.Int) (*uint256.Int, error) {
	if bX96.IsZero() {
		return nil, divByZero("div")
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, Q96, bX96)
	if overflow {
		return nil, outOfRange("div")
	}
	return z, nil
}

// MulDiv returns a * b / d with a full-width intermediate product.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, divByZero("muldiv")
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, outOfRange("muldiv")
	}
	return z, nil
}

// Quo is plain truncating integer division.
func Quo(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, divByZero("quo")
	}
	return new(uint256.Int).Div(a, b), nil
}

// MulInt is checked integer multiplication.
func MulInt(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, outOfRange("mulint")
	}
	return z, nil
}

// Add is checked addition.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, outOfRange("add")
	}
	return z, nil
}

// Sub is checked subtraction; a < b is an error, never a wrap.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, &ArithmeticError{Op: "sub", Err: ErrNegative}
	}
	return z, nil
}

// FromInt returns the X96 representation of the integer v.
func FromInt(v uint64) *uint256.Int {
	return new(uint256.Int).Lsh(uint256.NewInt(v), Q96Resolution)
}

// maxPow10 is the largest n with 10^n < 2^256.
const maxPow10 = 77

// Pow10 returns 10^n.
func Pow10(n uint) (*uint256.Int, error) {
	if n > maxPow10 {
		return nil, outOfRange("pow10")
	}
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n))), nil
}
