// Package secret implements C5, the shared-secret workflow: splitting a
// password across a vault's members with Shamir's secret sharing, and
// recovering it by collecting a threshold of shares back.
package secret

// SharedSecretConfig chooses how a secret is split across a vault's
// current membership (§4.5).
type SharedSecretConfig struct {
	NumberOfShares int
	Threshold      int
}

// NewSharedSecretConfig derives config from the vault's member count M:
// number_of_shares = M, threshold = max(1, ceil(M/2)).
func NewSharedSecretConfig(numMembers int) SharedSecretConfig {
	threshold := (numMembers + 1) / 2
	if threshold < 1 {
		threshold = 1
	}
	return SharedSecretConfig{NumberOfShares: numMembers, Threshold: threshold}
}
