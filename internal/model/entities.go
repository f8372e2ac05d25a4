package model

// DeviceKeys is the public fingerprint of a device's key material.
type DeviceKeys struct {
	DsaPk       []byte `json:"dsa_pk"`       // ed25519 verifying key
	TransportPk []byte `json:"transport_pk"` // X25519 box public key
}

// DeviceData is a device's shareable public identity.
type DeviceData struct {
	DeviceId   DeviceId   `json:"device_id"`
	DeviceName string     `json:"device_name"`
	Keys       DeviceKeys `json:"keys"`
}

// DeviceSecretBox holds a device's private key material, sealed at rest.
type DeviceSecretBox struct {
	DsaSkSealed       []byte `json:"dsa_sk_sealed"`
	TransportSkSealed []byte `json:"transport_sk_sealed"`
}

// DeviceCreds never leaves the device it was generated on.
type DeviceCreds struct {
	Device    DeviceData      `json:"device"`
	SecretBox DeviceSecretBox `json:"secret_box"`
}

// UserCreds binds a device's credentials to one vault name.
type UserCreds struct {
	VaultName   VaultName   `json:"vault_name"`
	DeviceCreds DeviceCreds `json:"device_creds"`
}

// UserData is a device's identity as seen inside one vault.
type UserData struct {
	VaultName VaultName  `json:"vault_name"`
	Device    DeviceData `json:"device"`
}

// MembershipStatus is the sub-state of a non-member user.
type MembershipStatus string

const (
	StatusNonMember MembershipStatus = "NonMember"
	StatusPending   MembershipStatus = "Pending"
	StatusDeclined  MembershipStatus = "Declined"
)

// UserMembership is the closed sum Outsider{status} | Member{user_data}.
// Kind discriminates; exactly one of the two payload fields is
// meaningful for a given Kind.
type UserMembership struct {
	Kind           MembershipKind   `json:"kind"`
	OutsiderStatus MembershipStatus `json:"outsider_status,omitempty"`
	Member         *UserData        `json:"member,omitempty"`
}

// MembershipKind discriminates UserMembership's two variants.
type MembershipKind string

const (
	MembershipOutsider MembershipKind = "Outsider"
	MembershipMember   MembershipKind = "Member"
)

// Outsider constructs a non-member membership value.
func Outsider(status MembershipStatus) UserMembership {
	return UserMembership{Kind: MembershipOutsider, OutsiderStatus: status}
}

// Member constructs a member membership value.
func Member(user UserData) UserMembership {
	u := user
	return UserMembership{Kind: MembershipMember, Member: &u}
}

// IsMember reports whether this membership value represents a current
// vault member.
func (m UserMembership) IsMember() bool {
	return m.Kind == MembershipMember && m.Member != nil
}

// VaultData is the aggregated, current-state view of a vault: its
// membership map and the set of meta passwords it has registered.
// Invariant: every membership's device_id matches its map key.
type VaultData struct {
	VaultName VaultName                  `json:"vault_name"`
	Users     map[DeviceId]UserMembership `json:"users"`
	Secrets   map[string]MetaPasswordId   `json:"secrets"` // keyed by MetaPasswordId.Id
}

// NewVaultData builds an empty aggregate for a fresh vault.
func NewVaultData(name VaultName) VaultData {
	return VaultData{
		VaultName: name,
		Users:     make(map[DeviceId]UserMembership),
		Secrets:   make(map[string]MetaPasswordId),
	}
}

// Clone performs a deep-enough copy for the aggregate to be mutated
// without affecting the caller's snapshot (§4.3: the aggregate mutates
// an in-memory copy).
func (v VaultData) Clone() VaultData {
	out := NewVaultData(v.VaultName)
	for k, m := range v.Users {
		out.Users[k] = m
	}
	for k, s := range v.Secrets {
		out.Secrets[k] = s
	}
	return out
}

// Members returns the device ids that are current Members.
func (v VaultData) Members() []DeviceId {
	var out []DeviceId
	for id, m := range v.Users {
		if m.IsMember() {
			out = append(out, id)
		}
	}
	return out
}

// IsMember reports whether the given device is a current Member.
func (v VaultData) IsMember(id DeviceId) bool {
	m, ok := v.Users[id]
	return ok && m.IsMember()
}

// VaultStatusKind discriminates the three VaultStatus variants.
type VaultStatusKind string

const (
	VaultStatusNotExists VaultStatusKind = "NotExists"
	VaultStatusOutsider  VaultStatusKind = "Outsider"
	VaultStatusMember    VaultStatusKind = "Member"
)

// VaultStatus is the per-user derived view of VaultData: what does this
// vault look like from this particular user's perspective.
type VaultStatus struct {
	Kind   VaultStatusKind `json:"kind"`
	UserId UserId          `json:"user_id"`
	Vault  *VaultData      `json:"vault,omitempty"`
}

// DeriveVaultStatus looks up a user inside a VaultData, producing the
// status that §3.3 describes. vault == nil means the vault itself does
// not exist yet.
func DeriveVaultStatus(vault *VaultData, user UserId) VaultStatus {
	if vault == nil {
		return VaultStatus{Kind: VaultStatusNotExists, UserId: user}
	}
	membership, ok := vault.Users[user.DeviceId]
	if !ok || !membership.IsMember() {
		return VaultStatus{Kind: VaultStatusOutsider, UserId: user, Vault: vault}
	}
	return VaultStatus{Kind: VaultStatusMember, UserId: user, Vault: vault}
}
