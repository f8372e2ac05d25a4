package objects

import (
	"fmt"

	"github.com/metasecret/metasecret/internal/crypto"
	"github.com/metasecret/metasecret/internal/model"
)

// PersistentCredentials manages the local-only, single-event
// DeviceCreds/UserCreds chains, sealing private key material under the
// master key supplied at startup (§4.2).
type PersistentCredentials struct {
	obj       *PersistentObject
	masterKey []byte
}

// NewPersistentCredentials builds a credentials accessor. masterKey
// wraps the device's secret box at rest; it is never itself persisted
// (§5 resource policy).
func NewPersistentCredentials(obj *PersistentObject, masterKey []byte) *PersistentCredentials {
	return &PersistentCredentials{obj: obj, masterKey: masterKey}
}

const credsInstance = "index"

// GetOrGenerateDeviceCreds is idempotent: if device creds already exist,
// they are returned as-is; otherwise fresh Ed25519+X25519 keypairs are
// generated, sealed under the master key, appended, and returned.
func (p *PersistentCredentials) GetOrGenerateDeviceCreds(deviceName string) (model.DeviceCreds, error) {
	if existing, ok, err := p.findDeviceCreds(); err != nil {
		return model.DeviceCreds{}, err
	} else if ok {
		return existing, nil
	}

	dsaPub, dsaPriv, err := crypto.GenerateSignKeyPair()
	if err != nil {
		return model.DeviceCreds{}, err
	}
	transportPub, transportPriv, err := crypto.GenerateBoxKeyPair()
	if err != nil {
		return model.DeviceCreds{}, err
	}

	secretBox, err := crypto.SealDeviceSecretBox(p.masterKey, dsaPriv, transportPriv)
	if err != nil {
		return model.DeviceCreds{}, err
	}

	creds := model.DeviceCreds{
		Device: model.DeviceData{
			DeviceId:   model.DeriveDeviceId(dsaPub),
			DeviceName: deviceName,
			Keys: model.DeviceKeys{
				DsaPk:       dsaPub,
				TransportPk: transportPub[:],
			},
		},
		SecretBox: secretBox,
	}

	event := model.NewDeviceCredsEvent(creds)
	if _, err := p.obj.Store.Save(event); err != nil {
		return model.DeviceCreds{}, fmt.Errorf("failed to persist device creds: %w", err)
	}
	return creds, nil
}

// FindDeviceCreds returns the device's credentials without generating
// them — used by callers (the sync gateway) that must distinguish "not
// yet initialized" from "initialized" rather than create on demand.
func (p *PersistentCredentials) FindDeviceCreds() (model.DeviceCreds, bool, error) {
	return p.findDeviceCreds()
}

// FindUserCreds returns the device's user credentials for the vault it
// has joined, if any.
func (p *PersistentCredentials) FindUserCreds() (model.UserCreds, bool, error) {
	event, ok, err := p.obj.FindTailEvent(model.ObjUserCreds, credsInstance)
	if err != nil || !ok {
		return model.UserCreds{}, false, err
	}
	if event.UserCreds == nil {
		return model.UserCreds{}, false, fmt.Errorf("user creds event missing payload")
	}
	return event.UserCreds.Creds, true, nil
}

func (p *PersistentCredentials) findDeviceCreds() (model.DeviceCreds, bool, error) {
	event, ok, err := p.obj.FindTailEvent(model.ObjDeviceCreds, credsInstance)
	if err != nil || !ok {
		return model.DeviceCreds{}, false, err
	}
	if event.DeviceCreds == nil {
		return model.DeviceCreds{}, false, fmt.Errorf("device creds event missing payload")
	}
	return event.DeviceCreds.Creds, true, nil
}

// GetOrGenerateUserCreds is idempotent over (vaultName, deviceCreds): if
// user creds already exist for this vault they are returned unchanged,
// otherwise fresh ones are minted from the device creds.
func (p *PersistentCredentials) GetOrGenerateUserCreds(vaultName model.VaultName, deviceCreds model.DeviceCreds) (model.UserCreds, error) {
	event, ok, err := p.obj.FindTailEvent(model.ObjUserCreds, credsInstance)
	if err != nil {
		return model.UserCreds{}, err
	}
	if ok {
		if event.UserCreds == nil {
			return model.UserCreds{}, fmt.Errorf("user creds event missing payload")
		}
		return event.UserCreds.Creds, nil
	}

	creds := model.UserCreds{VaultName: vaultName, DeviceCreds: deviceCreds}
	if _, err := p.obj.Store.Save(model.NewUserCredsEvent(creds)); err != nil {
		return model.UserCreds{}, fmt.Errorf("failed to persist user creds: %w", err)
	}
	return creds, nil
}

// UnsealDeviceKeys decrypts a device's private key material for use in
// one logical operation (§5: credentials held in memory only as long as
// needed).
func (p *PersistentCredentials) UnsealDeviceKeys(creds model.DeviceCreds) (dsaPriv []byte, transportPriv [32]byte, err error) {
	return crypto.OpenDeviceSecretBox(p.masterKey, creds.SecretBox)
}
