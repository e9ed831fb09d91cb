// Package numeric implements the typed monetary quantities the trading core
// passes between components: native-chain amounts, token amounts, exchange
// rates and token prices. Every quantity carries its unit at the type level
// so a decimals or native/token mixup is a compile error, not a production
// incident.
package numeric

import (
	"errors"
	"fmt"
	"math/big"
)

// NativeDecimals is the number of smallest-unit decimals the host chain's
// native token uses.
const NativeDecimals = 24

// ErrDomain is returned for arithmetic that has no sensible result: division
// by zero, negative amounts, or decimals out of [0, 24].
var ErrDomain = errors.New("numeric: domain error")

func domainErrf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDomain, fmt.Sprintf(format, args...))
}

var (
	pow10cache = map[int]*big.Int{}
)

func pow10(n int) *big.Int {
	if v, ok := pow10cache[n]; ok {
		return v
	}
	v := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	pow10cache[n] = v
	return v
}

// NativeAmount is the smallest-unit integer amount of the native chain token.
type NativeAmount struct {
	v *big.Int
}

// NewNativeAmount validates and wraps a smallest-unit native amount.
func NewNativeAmount(v *big.Int) (NativeAmount, error) {
	if v == nil {
		return NativeAmount{}, domainErrf("nil native amount")
	}
	if v.Sign() < 0 {
		return NativeAmount{}, domainErrf("negative native amount %s", v.String())
	}
	return NativeAmount{v: new(big.Int).Set(v)}, nil
}

// ZeroNativeAmount returns the zero native amount.
func ZeroNativeAmount() NativeAmount { return NativeAmount{v: big.NewInt(0)} }

// Int returns the underlying smallest-unit integer. Callers must not mutate it.
func (n NativeAmount) Int() *big.Int {
	if n.v == nil {
		return big.NewInt(0)
	}
	return n.v
}

func (n NativeAmount) IsZero() bool { return n.Int().Sign() == 0 }

func (n NativeAmount) Add(o NativeAmount) NativeAmount {
	return NativeAmount{v: new(big.Int).Add(n.Int(), o.Int())}
}

// Sub returns n-o, erroring if the result would be negative.
func (n NativeAmount) Sub(o NativeAmount) (NativeAmount, error) {
	r := new(big.Int).Sub(n.Int(), o.Int())
	if r.Sign() < 0 {
		return NativeAmount{}, domainErrf("subtraction underflow: %s - %s", n.Int(), o.Int())
	}
	return NativeAmount{v: r}, nil
}

func (n NativeAmount) Cmp(o NativeAmount) int { return n.Int().Cmp(o.Int()) }

func (n NativeAmount) String() string { return n.Int().String() }

// ToValue converts a smallest-unit native amount into whole-unit NativeValue.
func (n NativeAmount) ToValue() NativeValue {
	r := new(big.Rat).SetFrac(n.Int(), pow10(NativeDecimals))
	return NativeValue{r: r}
}

// NativeValue is a decimal value expressed in whole native-token units.
type NativeValue struct {
	r *big.Rat
}

func NewNativeValue(r *big.Rat) (NativeValue, error) {
	if r == nil {
		return NativeValue{}, domainErrf("nil native value")
	}
	if r.Sign() < 0 {
		return NativeValue{}, domainErrf("negative native value")
	}
	return NativeValue{r: new(big.Rat).Set(r)}, nil
}

func NativeValueFromFloat(f float64) (NativeValue, error) {
	if f < 0 {
		return NativeValue{}, domainErrf("negative native value %f", f)
	}
	r := new(big.Rat).SetFloat64(f)
	if r == nil {
		return NativeValue{}, domainErrf("non-finite native value %f", f)
	}
	return NativeValue{r: r}, nil
}

func ZeroNativeValue() NativeValue { return NativeValue{r: new(big.Rat)} }

func (v NativeValue) Rat() *big.Rat {
	if v.r == nil {
		return new(big.Rat)
	}
	return v.r
}

func (v NativeValue) IsZero() bool { return v.Rat().Sign() == 0 }

func (v NativeValue) Add(o NativeValue) NativeValue {
	return NativeValue{r: new(big.Rat).Add(v.Rat(), o.Rat())}
}

func (v NativeValue) Sub(o NativeValue) (NativeValue, error) {
	r := new(big.Rat).Sub(v.Rat(), o.Rat())
	if r.Sign() < 0 {
		return NativeValue{}, domainErrf("subtraction underflow")
	}
	return NativeValue{r: r}, nil
}

func (v NativeValue) Cmp(o NativeValue) int { return v.Rat().Cmp(o.Rat()) }

// MulFloat scales a NativeValue by a plain float multiplier (used by the
// optimizer's f64 weights when converting back to decimal money amounts).
func (v NativeValue) MulFloat(f float64) NativeValue {
	scaled := new(big.Rat).SetFloat64(f)
	if scaled == nil {
		scaled = new(big.Rat)
	}
	return NativeValue{r: new(big.Rat).Mul(v.Rat(), scaled)}
}

func (v NativeValue) Float64() float64 {
	f, _ := v.Rat().Float64()
	return f
}

// ToAmount converts a whole-unit NativeValue into its smallest-unit NativeAmount.
func (v NativeValue) ToAmount() NativeAmount {
	scaled := new(big.Rat).Mul(v.Rat(), new(big.Rat).SetInt(pow10(NativeDecimals)))
	i := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	return NativeAmount{v: i}
}

func (v NativeValue) String() string { return v.Rat().FloatString(NativeDecimals) }

// TokenAmount is the smallest-unit integer amount of an arbitrary token with
// its own decimals.
type TokenAmount struct {
	v        *big.Int
	decimals int
}

func NewTokenAmount(v *big.Int, decimals int) (TokenAmount, error) {
	if v == nil {
		return TokenAmount{}, domainErrf("nil token amount")
	}
	if decimals < 0 || decimals > 24 {
		return TokenAmount{}, domainErrf("decimals out of range: %d", decimals)
	}
	if v.Sign() < 0 {
		return TokenAmount{}, domainErrf("negative token amount %s", v.String())
	}
	return TokenAmount{v: new(big.Int).Set(v), decimals: decimals}, nil
}

func ZeroTokenAmount(decimals int) TokenAmount {
	return TokenAmount{v: big.NewInt(0), decimals: decimals}
}

func (t TokenAmount) Int() *big.Int {
	if t.v == nil {
		return big.NewInt(0)
	}
	return t.v
}

func (t TokenAmount) Decimals() int { return t.decimals }

func (t TokenAmount) IsZero() bool { return t.Int().Sign() == 0 }

func (t TokenAmount) Add(o TokenAmount) (TokenAmount, error) {
	if t.decimals != o.decimals {
		return TokenAmount{}, domainErrf("decimals mismatch: %d vs %d", t.decimals, o.decimals)
	}
	return TokenAmount{v: new(big.Int).Add(t.Int(), o.Int()), decimals: t.decimals}, nil
}

func (t TokenAmount) Cmp(o TokenAmount) int { return t.Int().Cmp(o.Int()) }

func (t TokenAmount) String() string { return t.Int().String() }

// Div divides a TokenAmount by an ExchangeRate (base smallest-units per 1
// native) to produce the NativeValue spent/received, per the invariant
// TokenAmount / ExchangeRate = NativeValue.
func (t TokenAmount) Div(r ExchangeRate) (NativeValue, error) {
	if r.IsZero() {
		return NativeValue{}, domainErrf("division by zero exchange rate")
	}
	num := new(big.Rat).SetFrac(t.Int(), pow10(t.decimals))
	return NativeValue{r: new(big.Rat).Quo(num, r.Rat())}, nil
}

// ExchangeRate is the ratio of smallest-units-of-base per 1 native-token,
// stored as an arbitrary-precision rational.
type ExchangeRate struct {
	r        *big.Rat
	decimals int
}

func NewExchangeRate(r *big.Rat, decimals int) (ExchangeRate, error) {
	if r == nil {
		return ExchangeRate{}, domainErrf("nil exchange rate")
	}
	if r.Sign() <= 0 {
		return ExchangeRate{}, domainErrf("non-positive exchange rate")
	}
	if decimals < 0 || decimals > 24 {
		return ExchangeRate{}, domainErrf("decimals out of range: %d", decimals)
	}
	return ExchangeRate{r: new(big.Rat).Set(r), decimals: decimals}, nil
}

// ExchangeRateFromAmounts computes base-smallest-units-per-native from a
// simulated swap: output (base token) divided by input (native value).
func ExchangeRateFromAmounts(out TokenAmount, in NativeValue) (ExchangeRate, error) {
	if in.IsZero() {
		return ExchangeRate{}, domainErrf("division by zero native input")
	}
	outRat := new(big.Rat).SetFrac(out.Int(), pow10(out.decimals))
	return NewExchangeRate(new(big.Rat).Quo(outRat, in.Rat()), out.decimals)
}

func (e ExchangeRate) Rat() *big.Rat {
	if e.r == nil {
		return new(big.Rat)
	}
	return e.r
}

func (e ExchangeRate) Decimals() int { return e.decimals }

func (e ExchangeRate) IsZero() bool { return e.Rat().Sign() == 0 }

// Mul implements ExchangeRate x NativeValue = TokenAmount.
func (e ExchangeRate) Mul(v NativeValue) TokenAmount {
	scaled := new(big.Rat).Mul(e.Rat(), v.Rat())
	scaled.Mul(scaled, new(big.Rat).SetInt(pow10(e.decimals)))
	i := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	return TokenAmount{v: i, decimals: e.decimals}
}

// ToPrice normalizes an ExchangeRate into a native-per-token TokenPrice
// (1 / rate, decimals-adjusted).
func (e ExchangeRate) ToPrice() (TokenPrice, error) {
	if e.IsZero() {
		return TokenPrice{}, domainErrf("division by zero exchange rate")
	}
	perSmallestUnit := new(big.Rat).Inv(e.Rat())
	return TokenPrice{r: perSmallestUnit, decimals: e.decimals}, nil
}

func (e ExchangeRate) String() string { return e.Rat().FloatString(e.decimals) }

// TokenPrice is native-per-token, i.e. 1/ExchangeRate, normalized.
type TokenPrice struct {
	r        *big.Rat
	decimals int
}

func NewTokenPrice(r *big.Rat, decimals int) (TokenPrice, error) {
	if r == nil {
		return TokenPrice{}, domainErrf("nil token price")
	}
	if r.Sign() <= 0 {
		return TokenPrice{}, domainErrf("non-positive token price")
	}
	return TokenPrice{r: new(big.Rat).Set(r), decimals: decimals}, nil
}

func (p TokenPrice) Rat() *big.Rat {
	if p.r == nil {
		return new(big.Rat)
	}
	return p.r
}

func (p TokenPrice) Float64() float64 {
	f, _ := p.Rat().Float64()
	return f
}

// ToRate is the inverse of ExchangeRate.ToPrice, completing the round-trip
// price -> rate -> price required by the spec.
func (p TokenPrice) ToRate() (ExchangeRate, error) {
	if p.Rat().Sign() <= 0 {
		return ExchangeRate{}, domainErrf("non-positive token price")
	}
	return NewExchangeRate(new(big.Rat).Inv(p.Rat()), p.decimals)
}

// ExpectedReturn computes (predicted - current) / current for a price
// expressed native-per-token, handling sign correctly regardless of whether
// the caller passes prices or rates so long as both sides share the same
// orientation.
func (p TokenPrice) ExpectedReturn(predicted TokenPrice) (float64, error) {
	if p.Rat().Sign() <= 0 {
		return 0, domainErrf("non-positive current price")
	}
	diff := new(big.Rat).Sub(predicted.Rat(), p.Rat())
	ratio := new(big.Rat).Quo(diff, p.Rat())
	f, _ := ratio.Float64()
	return f, nil
}
