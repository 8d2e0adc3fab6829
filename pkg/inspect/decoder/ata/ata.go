// Package ata decodes associated token account program instructions.
package ata

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/code-payments/tx-inspector/pkg/inspect"
	"github.com/code-payments/tx-inspector/pkg/solana"
)

const programName = "Associated Token Program"

// Command identifies an associated token program instruction. Empty
// instruction data is the original create form.
type Command byte

const (
	CommandCreate Command = iota
	CommandCreateIdempotent
	CommandRecoverNested
)

// Decoder decodes associated token account instructions.
type Decoder struct{}

func New() *Decoder {
	return &Decoder{}
}

// Register installs the decoder on a registry.
func Register(r *inspect.Registry) {
	r.Register(inspect.AssociatedTokenProgram, programName, New())
}

func (d *Decoder) DecodeInstruction(ixn inspect.Instruction) (inspect.Intent, error) {
	command := CommandCreate
	if len(ixn.Data) > 0 {
		command = Command(ixn.Data[0])
	}

	switch command {
	case CommandCreate, CommandCreateIdempotent:
		return d.decodeCreate(ixn, command == CommandCreateIdempotent)
	case CommandRecoverNested:
		return d.decodeRecoverNested(ixn)
	}
	return inspect.Intent{}, inspect.ErrUnknownInstruction
}

func (d *Decoder) intent(ixn inspect.Instruction, method string) inspect.Intent {
	return inspect.Intent{
		Index:       ixn.Index,
		ProgramID:   inspect.AssociatedTokenProgram,
		ProgramName: programName,
		Method:      method,
		Accounts:    ixn.Accounts,
		Args:        make(map[string]string),
	}
}

func (d *Decoder) decodeCreate(ixn inspect.Instruction, idempotent bool) (inspect.Intent, error) {
	method := "create"
	if idempotent {
		method = "createIdempotent"
	}

	intent := d.intent(ixn, method)
	intent.Accounts = ixn.LabelRoles("payer", "associatedAccount", "owner", "mint", "systemProgram", "tokenProgram")

	owner, ok := ixn.Account(2)
	if !ok {
		intent.Partial = true
		intent.Risk = inspect.RiskMedium
		intent.Warnings = append(intent.Warnings, "Associated account owner is missing")
		intent.Summary = "Partially decoded associated account creation"
		return intent, nil
	}
	mint, ok := ixn.Account(3)
	if !ok {
		intent.Partial = true
		intent.Risk = inspect.RiskMedium
		intent.Warnings = append(intent.Warnings, "Associated account mint is missing")
		intent.Summary = "Partially decoded associated account creation"
		return intent, nil
	}

	intent.Summary = fmt.Sprintf("Create associated token account for %s (mint %s)", owner.DisplayName(), mint.DisplayName())
	intent.Risk = inspect.RiskLow

	if associated, ok := ixn.Account(1); ok {
		if tokenProgram, ok := ixn.Account(5); ok {
			if expected, ok := deriveAssociatedAccount(owner, tokenProgram, mint); ok && expected != associated.Address {
				intent.Risk = inspect.RiskHigh
				intent.Warnings = append(intent.Warnings, fmt.Sprintf(
					"Account %s does not match the associated account derived for owner %s and mint %s",
					associated.DisplayName(), owner.DisplayName(), mint.DisplayName()))
			}
		}
	}

	return intent, nil
}

// deriveAssociatedAccount recomputes the canonical associated account
// address for (owner, token program, mint). Verification is skipped when
// any participant is unresolved or not a valid key.
func deriveAssociatedAccount(owner, tokenProgram, mint inspect.AccountRole) (string, bool) {
	ownerKey, ok := keyFromRole(owner)
	if !ok {
		return "", false
	}
	programKey, ok := keyFromRole(tokenProgram)
	if !ok {
		return "", false
	}
	mintKey, ok := keyFromRole(mint)
	if !ok {
		return "", false
	}

	derived, err := solana.FindProgramAddress(
		solana.MustPublicKeyFromBase58(inspect.AssociatedTokenProgram),
		ownerKey,
		programKey,
		mintKey,
	)
	if err != nil || len(derived) != ed25519.PublicKeySize {
		return "", false
	}
	return base58.Encode(derived), true
}

func keyFromRole(role inspect.AccountRole) (ed25519.PublicKey, bool) {
	if role.Unresolved {
		return nil, false
	}
	raw, err := base58.Decode(role.Address)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, false
	}
	return raw, true
}

func (d *Decoder) decodeRecoverNested(ixn inspect.Instruction) (inspect.Intent, error) {
	intent := d.intent(ixn, "recoverNested")
	intent.Accounts = ixn.LabelRoles("nestedAccount", "nestedMint", "destination", "ownerAccount", "ownerMint", "owner", "tokenProgram")

	destination, ok := ixn.Account(2)
	if !ok {
		intent.Partial = true
		intent.Risk = inspect.RiskMedium
		intent.Warnings = append(intent.Warnings, "Recovery destination account is missing")
		intent.Summary = "Partially decoded nested account recovery"
		return intent, nil
	}

	intent.Summary = fmt.Sprintf("Recover nested associated account to %s", destination.DisplayName())
	intent.Risk = inspect.RiskMedium
	return intent, nil
}
