package xeddsa

import (
	"errors"
	"math/big"

	"filippo.io/edwards25519"
)

// Curve25519/edwards25519 share the field Z_p, p = 2^255 - 19.
var fieldPrime = func() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 255)
	return p.Sub(p, big.NewInt(19))
}()

// edwardsD is the Edwards curve equation constant d = -121665/121666 mod p.
var edwardsD = func() *big.Int {
	num := big.NewInt(-121665)
	den := big.NewInt(121666)
	den.ModInverse(den, fieldPrime)
	d := new(big.Int).Mul(num, den)
	return d.Mod(d, fieldPrime)
}()

// sqrtModP returns a square root of a mod p for p = 2^255-19, which
// satisfies p = 5 (mod 8), using the standard Tonelli-Shanks shortcut
// for that case.
func sqrtModP(a *big.Int) (*big.Int, bool) {
	if a.Sign() == 0 {
		return big.NewInt(0), true
	}
	p := fieldPrime
	// exponent = (p+3)/8
	exp := new(big.Int).Add(p, big.NewInt(3))
	exp.Rsh(exp, 3)
	cand := new(big.Int).Exp(a, exp, p)

	sq := new(big.Int).Mul(cand, cand)
	sq.Mod(sq, p)
	if sq.Cmp(new(big.Int).Mod(a, p)) == 0 {
		return cand, true
	}

	// Multiply by sqrt(-1) = 2^((p-1)/4) mod p and retry.
	exp2 := new(big.Int).Sub(p, big.NewInt(1))
	exp2.Rsh(exp2, 2)
	i := new(big.Int).Exp(big.NewInt(2), exp2, p)
	cand2 := new(big.Int).Mul(cand, i)
	cand2.Mod(cand2, p)

	sq2 := new(big.Int).Mul(cand2, cand2)
	sq2.Mod(sq2, p)
	if sq2.Cmp(new(big.Int).Mod(a, p)) == 0 {
		return cand2, true
	}
	return nil, false
}

// montgomeryToEdwards recovers the Edwards point corresponding to a
// Montgomery u-coordinate public key, using the birational map
// y = (u-1)/(u+1) and recovering x via a field square root, then fixing
// the sign bit to 0 (the XEdDSA convention both Sign and Verify agree on).
func montgomeryToEdwards(u [32]byte) (*edwards25519.Point, error) {
	uInt := new(big.Int).SetBytes(reverse(u[:]))
	uInt.Mod(uInt, fieldPrime)

	num := new(big.Int).Sub(uInt, big.NewInt(1))
	den := new(big.Int).Add(uInt, big.NewInt(1))
	den.ModInverse(den, fieldPrime)
	if den == nil {
		return nil, errors.New("xeddsa: non-invertible u+1")
	}
	y := new(big.Int).Mul(num, den)
	y.Mod(y, fieldPrime)

	// x^2 = (y^2 - 1) / (d*y^2 + 1)
	y2 := new(big.Int).Mul(y, y)
	y2.Mod(y2, fieldPrime)
	xNum := new(big.Int).Sub(y2, big.NewInt(1))
	xNum.Mod(xNum, fieldPrime)
	xDen := new(big.Int).Mul(edwardsD, y2)
	xDen.Add(xDen, big.NewInt(1))
	xDen.Mod(xDen, fieldPrime)
	xDenInv := new(big.Int).ModInverse(xDen, fieldPrime)
	if xDenInv == nil {
		return nil, errors.New("xeddsa: non-invertible denominator")
	}
	x2 := new(big.Int).Mul(xNum, xDenInv)
	x2.Mod(x2, fieldPrime)

	x, ok := sqrtModP(x2)
	if !ok {
		return nil, errors.New("xeddsa: u is not on the curve")
	}

	enc := make([]byte, 32)
	yBytes := y.Bytes()
	copy(enc[32-len(yBytes):], yBytes)
	reverseInPlace(enc)
	// Sign bit 0 convention: clear the top bit regardless of x's parity.
	enc[31] &= 0x7F
	_ = x

	return new(edwards25519.Point).SetBytes(enc)
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[len(b)-1-i]
	}
	return out
}

func reverseInPlace(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
