// Package model holds the event-sourced data model shared by every
// meta-secret component: identifiers, object descriptors, chain events,
// and the aggregated vault/secret views derived from them.
package model

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// DeviceId is the deterministic, URL-safe base64 encoding of the SHA-256
// hash of a device's Ed25519 verifying key. Two keys produce the same id
// iff they are the same key.
type DeviceId string

// DeriveDeviceId computes the DeviceId for a given Ed25519 public key.
func DeriveDeviceId(pubKey ed25519.PublicKey) DeviceId {
	sum := sha256.Sum256(pubKey)
	return DeviceId(base64.RawURLEncoding.EncodeToString(sum[:]))
}

// VaultName is a user-chosen, case-sensitive UTF-8 identifier for a vault.
type VaultName string

// UserId identifies a device's membership intent within one vault.
type UserId struct {
	VaultName VaultName `json:"vault_name"`
	DeviceId  DeviceId  `json:"device_id"`
}

func (u UserId) String() string {
	return fmt.Sprintf("%s/%s", u.VaultName, u.DeviceId)
}

// MetaPasswordId names a meta password deterministically from its
// human-chosen name and a random salt, per spec §3.1.
type MetaPasswordId struct {
	Id   string `json:"id"`
	Salt string `json:"salt"`
	Name string `json:"name"`
}

const metaPassSaltAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewMetaPasswordId generates a fresh 8-char alphanumeric salt and derives
// the deterministic id from name+salt.
func NewMetaPasswordId(name string) (MetaPasswordId, error) {
	salt, err := randomAlphanumeric(8)
	if err != nil {
		return MetaPasswordId{}, fmt.Errorf("failed to generate meta password salt: %w", err)
	}
	return MetaPasswordIdFromSalt(name, salt), nil
}

// MetaPasswordIdFromSalt reconstructs the deterministic id from a known
// (name, salt) pair — used on replay and in tests.
func MetaPasswordIdFromSalt(name, salt string) MetaPasswordId {
	return MetaPasswordId{
		Id:   uuidFromString(name + "-" + salt),
		Salt: salt,
		Name: name,
	}
}

func randomAlphanumeric(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = metaPassSaltAlphabet[int(b)%len(metaPassSaltAlphabet)]
	}
	return string(out), nil
}

// uuidFromString derives a deterministic id from s the way §3.1
// specifies: a base64url encoding of a name-derived UUID, not the
// canonical hyphenated-hex string form.
func uuidFromString(s string) string {
	u := uuid.NewSHA1(uuid.NameSpaceOID, []byte(s))
	return base64.RawURLEncoding.EncodeToString(u[:])
}

// ClaimId is 48 bits of randomness, URL-safe base64 encoded.
type ClaimId string

// NewClaimId mints a fresh random claim id.
func NewClaimId() (ClaimId, error) {
	buf := make([]byte, 6) // 48 bits
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate claim id: %w", err)
	}
	return ClaimId(base64.RawURLEncoding.EncodeToString(buf)), nil
}

// ObjectType tags the category of object an ArtifactId's FQDN belongs to.
type ObjectType string

const (
	ObjDeviceCreds        ObjectType = "DeviceCreds"
	ObjUserCreds          ObjectType = "UserCreds"
	ObjVault              ObjectType = "Vault"
	ObjVaultLog           ObjectType = "VaultLog"
	ObjVaultStatus        ObjectType = "VaultStatus"
	ObjDeviceLog          ObjectType = "DeviceLog"
	ObjSsLog              ObjectType = "SsLog"
	ObjSsDeviceLog        ObjectType = "SsDeviceLog"
	ObjSsWorkflowDistrib  ObjectType = "SsWorkflowDistribution"
	ObjSsWorkflowRecovery ObjectType = "SsWorkflowRecovery"
	ObjGlobalIndex        ObjectType = "GlobalIndex"
)

// FQDN identifies an object's chain independent of where it is in that
// chain: the (type, instance) pair is stable, the counter is not.
type FQDN struct {
	ObjType     ObjectType `json:"obj_type"`
	ObjInstance string     `json:"obj_instance"`
}

func (f FQDN) String() string {
	return string(f.ObjType) + ":" + f.ObjInstance
}

// ArtifactId is the key under which one event is stored: a chain
// identity plus the position along that chain.
type ArtifactId struct {
	Fqdn    FQDN   `json:"fqdn"`
	Counter uint64 `json:"counter"`
}

func (a ArtifactId) String() string {
	return fmt.Sprintf("%s#%d", a.Fqdn.String(), a.Counter)
}

// Next returns the ArtifactId for the following slot on the same chain.
func (a ArtifactId) Next() ArtifactId {
	return ArtifactId{Fqdn: a.Fqdn, Counter: a.Counter + 1}
}

// Chain phase markers, §3.2.
const (
	CounterUnit    uint64 = 0
	CounterGenesis uint64 = 1
	// CounterArtifact marks the first ordinary update; anything >= this
	// value is an Artifact-phase event.
	CounterArtifact uint64 = 2
)

// UnitId builds the counter-0 ArtifactId for a chain.
func UnitId(objType ObjectType, instance string) ArtifactId {
	return ArtifactId{Fqdn: FQDN{ObjType: objType, ObjInstance: instance}, Counter: CounterUnit}
}

// SsDistributionId keys one share transfer: the secret it belongs to and
// the device that is meant to receive it. Sender disambiguates Recovery
// transfers, where several different responders can all address the
// same requester for the same secret at once; Distribution never needs
// it (only one device ever splits a given secret) and leaves it empty.
type SsDistributionId struct {
	PassId   MetaPasswordId `json:"pass_id"`
	Sender   DeviceId       `json:"sender,omitempty"`
	Receiver DeviceId       `json:"receiver"`
}

func (d SsDistributionId) String() string {
	return fmt.Sprintf("%s:%s->%s", d.PassId.Id, d.Sender, d.Receiver)
}
