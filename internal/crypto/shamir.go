package crypto

import (
	"errors"
	"fmt"

	"github.com/hashicorp/vault/shamir"
)

var ErrThresholdTooLarge = errors.New("shamir: threshold exceeds number of shares")

// SplitSecret splits plaintext into numShares GF(256) Shamir shares, any
// threshold of which suffice to reconstruct it. The math itself is out
// of scope (spec §1) — this wires hashicorp/vault/shamir, the
// byte-oriented implementation the vault-domain cluster of the pack
// actually ships (see DESIGN.md).
//
// hashicorp/vault/shamir requires threshold >= 2; a single-member vault
// (SharedSecretConfig.Threshold == 1) has no polynomial to build, so that
// degenerate case is handled directly: every "share" is just the
// plaintext itself, since any one of them already reconstructs it.
func SplitSecret(plaintext []byte, numShares, threshold int) ([][]byte, error) {
	if threshold > numShares {
		return nil, ErrThresholdTooLarge
	}
	if threshold < 2 {
		shares := make([][]byte, numShares)
		for i := range shares {
			shares[i] = append([]byte(nil), plaintext...)
		}
		return shares, nil
	}
	shares, err := shamir.Split(plaintext, numShares, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split secret: %w", err)
	}
	return shares, nil
}

// CombineShares reassembles the original plaintext from >= threshold
// shares produced by SplitSecret. A single share is the degenerate
// threshold-1 case (see SplitSecret) and is returned as-is; two or more
// are run through hashicorp/vault/shamir's Lagrange interpolation.
func CombineShares(shares [][]byte) ([]byte, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("no shares to combine")
	}
	if len(shares) == 1 {
		return append([]byte(nil), shares[0]...), nil
	}
	plaintext, err := shamir.Combine(shares)
	if err != nil {
		return nil, fmt.Errorf("failed to combine shares: %w", err)
	}
	return plaintext, nil
}
