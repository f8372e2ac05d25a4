package secret

import (
	"fmt"

	"github.com/metasecret/metasecret/internal/crypto"
	"github.com/metasecret/metasecret/internal/model"
	"github.com/metasecret/metasecret/internal/objects"
)

// Workflow drives C5 on a single device: it reads the device's own
// credentials and the vault's current membership to split or recover a
// secret, writing the SsDeviceLog/SsWorkflow/DeviceLog events the sync
// gateway (C4) later relays.
type Workflow struct {
	vault  *objects.PersistentVault
	shared *objects.PersistentSharedSecret
	creds  *objects.PersistentCredentials
}

// NewWorkflow builds a C5 driver over the given chain accessors.
func NewWorkflow(vault *objects.PersistentVault, shared *objects.PersistentSharedSecret, creds *objects.PersistentCredentials) *Workflow {
	return &Workflow{vault: vault, shared: shared, creds: creds}
}

// Split implements §4.5 Split: splits plaintext into shares across the
// vault's current members and stages one SsWorkflow::Distribution event
// per member (including a loopback share for the initiating device).
func (w *Workflow) Split(device model.DeviceCreds, userCreds model.UserCreds, passwordName, plaintext string) (model.SsClaim, error) {
	vault, ok, err := w.vault.FindVault(userCreds.VaultName)
	if err != nil {
		return model.SsClaim{}, err
	}
	if !ok {
		return model.SsClaim{}, fmt.Errorf("vault %q does not exist", userCreds.VaultName)
	}

	senderId := device.Device.DeviceId
	if !vault.IsMember(senderId) {
		return model.SsClaim{}, fmt.Errorf("device %q is not a member of vault %q", senderId, userCreds.VaultName)
	}

	members := vault.Members()
	cfg := NewSharedSecretConfig(len(members))

	passId, err := model.NewMetaPasswordId(passwordName)
	if err != nil {
		return model.SsClaim{}, err
	}

	shares, err := crypto.SplitSecret([]byte(plaintext), cfg.NumberOfShares, cfg.Threshold)
	if err != nil {
		return model.SsClaim{}, fmt.Errorf("failed to split secret: %w", err)
	}

	_, senderTransportPriv, err := w.creds.UnsealDeviceKeys(device)
	if err != nil {
		return model.SsClaim{}, fmt.Errorf("failed to unseal sender transport key: %w", err)
	}
	senderPub := bytesToKey32(device.Device.Keys.TransportPk)
	senderPriv := &senderTransportPriv

	for i, receiverId := range members {
		receiverMembership := vault.Users[receiverId]
		if !receiverMembership.IsMember() {
			continue
		}
		receiverPub := bytesToKey32(receiverMembership.Member.Device.Keys.TransportPk)

		ct, err := crypto.SealChannel(shares[i], []byte(passId.Id), senderPub, senderPriv, receiverPub)
		if err != nil {
			return model.SsClaim{}, fmt.Errorf("failed to seal share for %q: %w", receiverId, err)
		}

		link := model.P2P(senderId, receiverId)
		if receiverId == senderId {
			link = model.Loopback(senderId)
		}
		cipherShare := model.CipherShare{DeviceLink: link, Share: ct}

		distId := model.SsDistributionId{PassId: passId, Receiver: receiverId}
		if _, err := w.shared.SaveWorkflow(model.WorkflowDistribution, distId, cipherShare); err != nil {
			return model.SsClaim{}, fmt.Errorf("failed to stage distribution share for %q: %w", receiverId, err)
		}
	}

	claimId, err := model.NewClaimId()
	if err != nil {
		return model.SsClaim{}, err
	}
	claim := model.NewSsClaim(claimId, userCreds.VaultName, passId, senderId, model.DistributionSplit, members)
	if _, err := w.shared.AppendSsDeviceLogClaim(senderId, claim); err != nil {
		return model.SsClaim{}, fmt.Errorf("failed to record claim: %w", err)
	}

	if _, err := w.vault.AppendDeviceLog(model.UserId{VaultName: userCreds.VaultName, DeviceId: senderId}, model.DeviceLogPayload{
		Op:         model.DeviceLogAddMetaPass,
		Sender:     senderId,
		MetaPassId: &passId,
	}); err != nil {
		return model.SsClaim{}, fmt.Errorf("failed to record add_meta_pass intent: %w", err)
	}

	return claim, nil
}

// Recover implements §4.5 Recover step 1-2: a member requests the other
// members re-encrypt their share of passId back to it.
func (w *Workflow) Recover(device model.DeviceCreds, vaultName model.VaultName, passId model.MetaPasswordId) (model.SsClaim, error) {
	vault, ok, err := w.vault.FindVault(vaultName)
	if err != nil {
		return model.SsClaim{}, err
	}
	if !ok {
		return model.SsClaim{}, fmt.Errorf("vault %q does not exist", vaultName)
	}

	requesterId := device.Device.DeviceId
	if !vault.IsMember(requesterId) {
		return model.SsClaim{}, fmt.Errorf("device %q is not a member of vault %q", requesterId, vaultName)
	}

	var others []model.DeviceId
	for _, m := range vault.Members() {
		if m != requesterId {
			others = append(others, m)
		}
	}

	claimId, err := model.NewClaimId()
	if err != nil {
		return model.SsClaim{}, err
	}
	claim := model.NewSsClaim(claimId, vaultName, passId, requesterId, model.DistributionRecover, others)
	if _, err := w.shared.AppendSsDeviceLogClaim(requesterId, claim); err != nil {
		return model.SsClaim{}, fmt.Errorf("failed to record recovery claim: %w", err)
	}
	return claim, nil
}

// RespondToRecovery implements §4.5 Recover step 4: a member that holds
// the requested loopback share re-encrypts it to the requester and
// stages the SsWorkflow::Recovery event for relay.
func (w *Workflow) RespondToRecovery(device model.DeviceCreds, passId model.MetaPasswordId, requester model.DeviceId, requesterTransportPk []byte) error {
	selfId := device.Device.DeviceId
	loopback := model.SsDistributionId{PassId: passId, Receiver: selfId}

	existing, ok, err := w.shared.FindWorkflow(model.WorkflowDistribution, loopback)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no locally held share for %q", passId.Id)
	}

	_, selfTransportPriv, err := w.creds.UnsealDeviceKeys(device)
	if err != nil {
		return fmt.Errorf("failed to unseal transport key: %w", err)
	}
	selfPub := bytesToKey32(device.Device.Keys.TransportPk)
	selfPriv := &selfTransportPriv

	plainShare, err := crypto.OpenChannel(existing.Share.Share, selfPub, selfPriv)
	if err != nil {
		return fmt.Errorf("failed to open locally held share: %w", err)
	}

	requesterPub := bytesToKey32(requesterTransportPk)
	ct, err := crypto.SealChannel(plainShare, []byte(passId.Id), selfPub, selfPriv, requesterPub)
	if err != nil {
		return fmt.Errorf("failed to reseal share for requester: %w", err)
	}

	distId := model.SsDistributionId{PassId: passId, Sender: selfId, Receiver: requester}
	cipherShare := model.CipherShare{DeviceLink: model.P2P(selfId, requester), Share: ct}
	if _, err := w.shared.SaveWorkflow(model.WorkflowRecovery, distId, cipherShare); err != nil {
		return fmt.Errorf("failed to stage recovery share: %w", err)
	}
	return nil
}

// Combine gathers recovery shares for passId addressed to requester and
// reassembles the plaintext once at least the configured threshold has
// arrived (§4.5 step 5). senders names who was asked to respond; each
// gets its own SsDistributionId slot so independent responses never
// collide.
func (w *Workflow) Combine(device model.DeviceCreds, passId model.MetaPasswordId, senders []model.DeviceId) (string, error) {
	selfId := device.Device.DeviceId
	selfPub := bytesToKey32(device.Device.Keys.TransportPk)
	_, selfTransportPriv, err := w.creds.UnsealDeviceKeys(device)
	if err != nil {
		return "", fmt.Errorf("failed to unseal transport key: %w", err)
	}
	selfPriv := &selfTransportPriv

	var shares [][]byte
	for _, sender := range senders {
		distId := model.SsDistributionId{PassId: passId, Sender: sender, Receiver: selfId}
		wf, ok, err := w.shared.FindWorkflow(model.WorkflowRecovery, distId)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		plain, err := crypto.OpenChannel(wf.Share.Share, selfPub, selfPriv)
		if err != nil {
			return "", fmt.Errorf("failed to open recovery share: %w", err)
		}
		shares = append(shares, plain)
	}

	cfg := NewSharedSecretConfig(len(senders) + 1) // +1: the requester itself holds a share too
	if len(shares) < cfg.Threshold {
		return "", fmt.Errorf("only %d of required %d recovery shares have arrived for %q", len(shares), cfg.Threshold, passId.Id)
	}

	combined, err := crypto.CombineShares(shares)
	if err != nil {
		return "", fmt.Errorf("failed to combine shares: %w", err)
	}
	return string(combined), nil
}

func bytesToKey32(b []byte) *[32]byte {
	var k [32]byte
	copy(k[:], b)
	return &k
}
