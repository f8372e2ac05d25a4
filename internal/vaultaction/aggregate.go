package vaultaction

import "github.com/metasecret/metasecret/internal/model"

// ApplyVaultAggregate is the pure function (VaultData, []VaultActionEvent)
// -> VaultData' from spec §4.3. It never touches external state: every
// input it needs is a parameter, so it is safe to re-run deterministically
// on replay (§5: "pure aggregate computations do not suspend").
func ApplyVaultAggregate(data model.VaultData, events []VaultActionEvent) model.VaultData {
	out := data.Clone()

	for _, e := range events {
		// Every mutating action kind (§4.3 step 1) is gated here, once,
		// instead of duplicating the same membership check per case.
		if e.isMutation() && !out.IsMember(e.Sender) {
			continue // silent drop, §7
		}

		switch e.Kind {
		case InitCreateVault:
			// Idempotent: only seeds the owner if the vault has no
			// members yet (§4.3: "the vault always has >= 1 Member
			// once past Genesis").
			if len(out.Users) == 0 {
				out.Users[e.Owner.Device.DeviceId] = model.Member(e.Owner)
			}

		case RequestJoinCluster:
			// Not gated on membership — a prospective member, by
			// definition, isn't one yet. But a repeat request from a
			// device that is already a Member is a no-op (§8
			// idempotence, S6): re-signing-up never demotes a Member
			// back to Pending.
			if cur, ok := out.Users[e.Candidate.Device.DeviceId]; ok && cur.IsMember() {
				continue
			}
			out.Users[e.Candidate.Device.DeviceId] = model.Outsider(model.StatusPending)

		case UpdateAddToPending:
			// An explicit admin action: unconditionally forces the
			// candidate back to Pending, even if currently a Member.
			out.Users[e.Candidate.Device.DeviceId] = model.Outsider(model.StatusPending)

		case RequestAddMetaPass, UpdateAddMetaPass:
			out.Secrets[e.MetaPassId.Id] = e.MetaPassId

		case UpdateMembership:
			out.Users[e.Target] = e.Update
		}
	}

	return out
}
