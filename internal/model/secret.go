package model

// DistributionType discriminates an SsClaim's purpose: splitting a new
// secret across members, or recovering one already split.
type DistributionType string

const (
	DistributionSplit   DistributionType = "Split"
	DistributionRecover DistributionType = "Recover"
)

// ClaimStatus is one receiver's progress through a claim's lifecycle,
// §4.5's state machine: Created -> Sent(receiver) -> Delivered(receiver).
type ClaimStatus string

const (
	ClaimPending   ClaimStatus = "Pending"
	ClaimSent      ClaimStatus = "Sent"
	ClaimDelivered ClaimStatus = "Delivered"
)

// Advance reports whether moving from s to next is a legal forward
// transition (§8: "status monotonically advances").
func (s ClaimStatus) Advance(next ClaimStatus) bool {
	order := map[ClaimStatus]int{ClaimPending: 0, ClaimSent: 1, ClaimDelivered: 2}
	cur, ok1 := order[s]
	nxt, ok2 := order[next]
	return ok1 && ok2 && nxt > cur
}

// SsClaim is the server's ledger row for one share-transfer workflow.
type SsClaim struct {
	Id               ClaimId                `json:"id"`
	VaultName        VaultName              `json:"vault_name"`
	PassId           MetaPasswordId         `json:"pass_id"`
	Sender           DeviceId               `json:"sender"`
	DistributionType DistributionType       `json:"distribution_type"`
	Receivers        []DeviceId             `json:"receivers"`
	Status           map[DeviceId]ClaimStatus `json:"status"`
}

// NewSsClaim builds a fresh claim with every receiver Pending.
func NewSsClaim(id ClaimId, vault VaultName, pass MetaPasswordId, sender DeviceId, kind DistributionType, receivers []DeviceId) SsClaim {
	status := make(map[DeviceId]ClaimStatus, len(receivers))
	for _, r := range receivers {
		status[r] = ClaimPending
	}
	return SsClaim{
		Id:               id,
		VaultName:        vault,
		PassId:           pass,
		Sender:           sender,
		DistributionType: kind,
		Receivers:        receivers,
		Status:           status,
	}
}

// AllDelivered reports whether every receiver has reached Delivered —
// the condition under which a Split claim is removed (Invariant 5).
func (c SsClaim) AllDelivered() bool {
	for _, r := range c.Receivers {
		if c.Status[r] != ClaimDelivered {
			return false
		}
	}
	return true
}

// SsLogData is the server's cluster-wide ledger of active claims for one
// vault.
type SsLogData struct {
	VaultName VaultName          `json:"vault_name"`
	Claims    map[ClaimId]SsClaim `json:"claims"`
}

// NewSsLogData builds an empty ledger.
func NewSsLogData(vault VaultName) SsLogData {
	return SsLogData{VaultName: vault, Claims: make(map[ClaimId]SsClaim)}
}

// Channel binds a ciphertext to the (sender, receiver) key pair that
// produced it — either party can decrypt, but nobody else (Invariant 4).
type Channel struct {
	SenderPk   []byte `json:"sender_pk"`
	ReceiverPk []byte `json:"receiver_pk"`
}

// SameKeys reports whether the channel is a loopback channel (sender and
// receiver are the same public key).
func (c Channel) SameKeys() bool {
	if len(c.SenderPk) != len(c.ReceiverPk) {
		return false
	}
	for i := range c.SenderPk {
		if c.SenderPk[i] != c.ReceiverPk[i] {
			return false
		}
	}
	return true
}

// AeadAuthData is the non-secret metadata bound into the ciphertext tag.
type AeadAuthData struct {
	AssociatedData []byte  `json:"associated_data,omitempty"`
	Channel        Channel `json:"channel"`
	Nonce          []byte  `json:"nonce"`
}

// AeadCipherText is the only ciphertext shape the server ever stores.
type AeadCipherText struct {
	Msg      []byte       `json:"msg"`
	AuthData AeadAuthData `json:"auth_data"`
}

// DeviceLinkKind discriminates a CipherShare's routing: to the sender
// itself (Loopback) or to a distinct peer (P2P).
type DeviceLinkKind string

const (
	LinkLoopback DeviceLinkKind = "Loopback"
	LinkP2P      DeviceLinkKind = "P2P"
)

// DeviceLink describes who a CipherShare is addressed to.
type DeviceLink struct {
	Kind     DeviceLinkKind `json:"kind"`
	Device   DeviceId       `json:"device,omitempty"`   // Loopback
	Sender   DeviceId       `json:"sender,omitempty"`   // P2P
	Receiver DeviceId       `json:"receiver,omitempty"` // P2P
}

// Loopback builds a device_link for a share a device holds for itself.
func Loopback(d DeviceId) DeviceLink {
	return DeviceLink{Kind: LinkLoopback, Device: d}
}

// P2P builds a device_link for a share travelling between two devices.
func P2P(sender, receiver DeviceId) DeviceLink {
	return DeviceLink{Kind: LinkP2P, Sender: sender, Receiver: receiver}
}

// CipherShare is one encrypted Shamir share plus its routing metadata.
type CipherShare struct {
	DeviceLink DeviceLink     `json:"device_link"`
	Share      AeadCipherText `json:"share"`
}
