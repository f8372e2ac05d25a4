// Package app wires the lower layers (store, objects, vaultaction,
// sync, secret) into the façade cmd/ and tests drive: device bootstrap
// lifecycle and the high-level operations each CLI command maps onto.
package app

import (
	"github.com/metasecret/metasecret/internal/model"
	"github.com/metasecret/metasecret/internal/objects"
)

// DeviceState is the explicit bootstrap state machine the distilled
// spec only implies via §4.4 step 1-2's "abort if no device creds" /
// "nothing to sync" checks (SPEC_FULL.md §5, grounded on
// original_source/core/src/node/app/app_state_manager.rs's
// Empty|Init|Registered MetaClient variants).
type DeviceState string

const (
	// StateNoCreds: the device has never been initialized.
	StateNoCreds DeviceState = "NoCreds"
	// StateDeviceCreated: device creds exist, but the device hasn't
	// joined a vault yet.
	StateDeviceCreated DeviceState = "DeviceCreated"
	// StateUserCreated: user creds exist (vault name chosen) but the
	// server hasn't yet confirmed membership.
	StateUserCreated DeviceState = "UserCreated"
	// StateOutsider: the device is known to the vault but not a member
	// (Pending or Declined).
	StateOutsider DeviceState = "Outsider"
	// StateMember: the device is a confirmed vault member.
	StateMember DeviceState = "Member"
)

// Determine inspects local credentials and vault state to report where
// in the bootstrap lifecycle this device currently sits — used by the
// CLI's `info` command. internal/sync sits below internal/app in the
// import graph, so Gateway.SyncOnce cannot call Determine directly; its
// own step 1-2 "abort if no device/user creds" checks reimplement the
// same NoCreds/DeviceCreated tests inline instead.
func Determine(creds *objects.PersistentCredentials, vault *objects.PersistentVault) (DeviceState, error) {
	deviceCreds, ok, err := creds.FindDeviceCreds()
	if err != nil {
		return "", err
	}
	if !ok {
		return StateNoCreds, nil
	}

	userCreds, ok, err := creds.FindUserCreds()
	if err != nil {
		return "", err
	}
	if !ok {
		return StateDeviceCreated, nil
	}

	user := model.UserId{VaultName: userCreds.VaultName, DeviceId: deviceCreds.Device.DeviceId}
	status, ok, err := vault.FindVaultStatus(user)
	if err != nil {
		return "", err
	}
	if !ok {
		return StateUserCreated, nil
	}

	switch status.Kind {
	case model.VaultStatusMember:
		return StateMember, nil
	default:
		return StateOutsider, nil
	}
}
