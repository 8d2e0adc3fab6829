// Package system decodes native system program instructions: lamport
// transfers, account creation, and nonce lifecycle.
package system

import (
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/tx-inspector/pkg/inspect"
	"github.com/code-payments/tx-inspector/pkg/solana/wire"
)

// Command identifies a system program instruction. The wire discriminator
// is a 4-byte little-endian value.
//
// Reference: https://github.com/solana-labs/solana/blob/master/sdk/program/src/system_instruction.rs
type Command uint32

const (
	CommandCreateAccount Command = iota
	CommandAssign
	CommandTransfer
	CommandCreateAccountWithSeed
	CommandAdvanceNonceAccount
	CommandWithdrawNonceAccount
	CommandInitializeNonceAccount
	CommandAuthorizeNonceAccount
	CommandAllocate
	CommandAllocateWithSeed
	CommandAssignWithSeed
	CommandTransferWithSeed
)

const solDecimals = 9

// Risk thresholds for native transfers, in lamports.
const (
	highValueThreshold   = 10 * inspect.LamportsPerSol
	mediumValueThreshold = inspect.LamportsPerSol / 10
)

type handlerFunc func(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error)

// Decoder decodes system program instructions into intents.
type Decoder struct {
	handlers map[Command]handlerFunc
}

// New returns a system program decoder.
func New() *Decoder {
	d := &Decoder{}
	d.handlers = map[Command]handlerFunc{
		CommandCreateAccount:          d.decodeCreateAccount,
		CommandAssign:                 d.decodeAssign,
		CommandTransfer:               d.decodeTransfer,
		CommandCreateAccountWithSeed:  d.decodeCreateAccountWithSeed,
		CommandAdvanceNonceAccount:    d.decodeAdvanceNonce,
		CommandWithdrawNonceAccount:   d.decodeWithdrawNonce,
		CommandInitializeNonceAccount: d.decodeInitializeNonce,
		CommandAuthorizeNonceAccount:  d.decodeAuthorizeNonce,
		CommandAllocate:               d.decodeAllocate,
		CommandAllocateWithSeed:       d.decodeAllocateWithSeed,
		CommandAssignWithSeed:         d.decodeAssignWithSeed,
		CommandTransferWithSeed:       d.decodeTransferWithSeed,
	}
	return d
}

// Register installs the decoder on a registry.
func Register(r *inspect.Registry) {
	r.Register(inspect.SystemProgram, "System Program", New())
}

func (d *Decoder) DecodeInstruction(ixn inspect.Instruction) (inspect.Intent, error) {
	r := wire.NewReader(ixn.Data)
	command, err := r.ReadUint32()
	if err != nil {
		return inspect.Intent{}, errors.Wrap(inspect.ErrUnknownInstruction, "data too short for discriminator")
	}

	handler, ok := d.handlers[Command(command)]
	if !ok {
		return inspect.Intent{}, inspect.ErrUnknownInstruction
	}
	return handler(ixn, r)
}

func (d *Decoder) intent(ixn inspect.Instruction, method string) inspect.Intent {
	return inspect.Intent{
		Index:       ixn.Index,
		ProgramID:   inspect.SystemProgram,
		ProgramName: "System Program",
		Method:      method,
		Accounts:    ixn.Accounts,
		Args:        make(map[string]string),
	}
}

// partial degrades an intent whose payload or account list is too short.
func partial(intent inspect.Intent, reason string) (inspect.Intent, error) {
	intent.Partial = true
	intent.Risk = intent.Risk.Max(inspect.RiskMedium)
	intent.Warnings = append(intent.Warnings, reason)
	if intent.Summary == "" {
		intent.Summary = "Partially decoded " + intent.Method + " instruction"
	}
	return intent, nil
}

func transferRisk(lamports uint64) inspect.RiskLevel {
	switch {
	case lamports > highValueThreshold:
		return inspect.RiskHigh
	case lamports > mediumValueThreshold:
		return inspect.RiskMedium
	default:
		return inspect.RiskLow
	}
}

func (d *Decoder) decodeTransfer(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, inspect.MethodTransfer)
	intent.Accounts = ixn.LabelRoles("source", "destination")

	lamports, err := r.ReadUint64()
	if err != nil {
		return partial(intent, "Transfer amount could not be read")
	}
	destination, ok := ixn.Account(1)
	if !ok {
		return partial(intent, "Transfer destination account is missing")
	}

	sol := inspect.FormatUnits(lamports, solDecimals)
	intent.Args["lamports"] = fmt.Sprintf("%d", lamports)
	intent.Args["amount"] = sol + " SOL"
	intent.Summary = fmt.Sprintf("Transfer %s SOL to %s", sol, destination.DisplayName())
	intent.Risk = transferRisk(lamports)
	return intent, nil
}

func (d *Decoder) decodeTransferWithSeed(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, inspect.MethodTransferWithSeed)
	intent.Accounts = ixn.LabelRoles("source", "baseAccount", "destination")

	lamports, err := r.ReadUint64()
	if err != nil {
		return partial(intent, "Transfer amount could not be read")
	}
	seed, err := readString(r)
	if err != nil {
		return partial(intent, "Transfer seed could not be read")
	}
	owner, err := r.ReadKey()
	if err != nil {
		return partial(intent, "Transfer owner could not be read")
	}
	destination, ok := ixn.Account(2)
	if !ok {
		return partial(intent, "Transfer destination account is missing")
	}

	sol := inspect.FormatUnits(lamports, solDecimals)
	intent.Args["lamports"] = fmt.Sprintf("%d", lamports)
	intent.Args["amount"] = sol + " SOL"
	intent.Args["seed"] = seed
	intent.Args["owner"] = base58.Encode(owner)
	intent.Summary = fmt.Sprintf("Transfer %s SOL to %s (seed-derived source)", sol, destination.DisplayName())
	intent.Risk = transferRisk(lamports)
	return intent, nil
}

func (d *Decoder) decodeCreateAccount(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, "createAccount")
	intent.Accounts = ixn.LabelRoles("funder", "newAccount")

	lamports, err := r.ReadUint64()
	if err != nil {
		return partial(intent, "Account funding amount could not be read")
	}
	space, err := r.ReadUint64()
	if err != nil {
		return partial(intent, "Account size could not be read")
	}
	owner, err := r.ReadKey()
	if err != nil {
		return partial(intent, "Account owner could not be read")
	}
	newAccount, ok := ixn.Account(1)
	if !ok {
		return partial(intent, "New account is missing")
	}

	sol := inspect.FormatUnits(lamports, solDecimals)
	intent.Args["lamports"] = fmt.Sprintf("%d", lamports)
	intent.Args["space"] = fmt.Sprintf("%d", space)
	intent.Args["owner"] = base58.Encode(owner)
	intent.Summary = fmt.Sprintf("Create account %s funded with %s SOL", newAccount.DisplayName(), sol)
	intent.Risk = inspect.RiskLow
	return intent, nil
}

func (d *Decoder) decodeCreateAccountWithSeed(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, "createAccountWithSeed")
	intent.Accounts = ixn.LabelRoles("funder", "newAccount")

	base, err := r.ReadKey()
	if err != nil {
		return partial(intent, "Base key could not be read")
	}
	seed, err := readString(r)
	if err != nil {
		return partial(intent, "Seed could not be read")
	}
	lamports, err := r.ReadUint64()
	if err != nil {
		return partial(intent, "Account funding amount could not be read")
	}
	space, err := r.ReadUint64()
	if err != nil {
		return partial(intent, "Account size could not be read")
	}
	owner, err := r.ReadKey()
	if err != nil {
		return partial(intent, "Account owner could not be read")
	}
	newAccount, ok := ixn.Account(1)
	if !ok {
		return partial(intent, "New account is missing")
	}

	sol := inspect.FormatUnits(lamports, solDecimals)
	intent.Args["base"] = base58.Encode(base)
	intent.Args["seed"] = seed
	intent.Args["lamports"] = fmt.Sprintf("%d", lamports)
	intent.Args["space"] = fmt.Sprintf("%d", space)
	intent.Args["owner"] = base58.Encode(owner)
	intent.Summary = fmt.Sprintf("Create seed-derived account %s funded with %s SOL", newAccount.DisplayName(), sol)
	intent.Risk = inspect.RiskLow
	return intent, nil
}

func (d *Decoder) decodeAssign(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, "assign")
	intent.Accounts = ixn.LabelRoles("account")

	owner, err := r.ReadKey()
	if err != nil {
		return partial(intent, "New owner could not be read")
	}
	account, ok := ixn.Account(0)
	if !ok {
		return partial(intent, "Assigned account is missing")
	}

	intent.Args["owner"] = base58.Encode(owner)
	intent.Summary = fmt.Sprintf("Assign account %s to program %s", account.DisplayName(), inspect.AbbreviateAddress(base58.Encode(owner)))
	intent.Risk = inspect.RiskHigh
	intent.Warnings = append(intent.Warnings, "Account ownership is transferred to another program")
	return intent, nil
}

func (d *Decoder) decodeAssignWithSeed(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, "assignWithSeed")
	intent.Accounts = ixn.LabelRoles("account", "baseAccount")

	base, err := r.ReadKey()
	if err != nil {
		return partial(intent, "Base key could not be read")
	}
	seed, err := readString(r)
	if err != nil {
		return partial(intent, "Seed could not be read")
	}
	owner, err := r.ReadKey()
	if err != nil {
		return partial(intent, "New owner could not be read")
	}
	account, ok := ixn.Account(0)
	if !ok {
		return partial(intent, "Assigned account is missing")
	}

	intent.Args["base"] = base58.Encode(base)
	intent.Args["seed"] = seed
	intent.Args["owner"] = base58.Encode(owner)
	intent.Summary = fmt.Sprintf("Assign seed-derived account %s to program %s", account.DisplayName(), inspect.AbbreviateAddress(base58.Encode(owner)))
	intent.Risk = inspect.RiskHigh
	intent.Warnings = append(intent.Warnings, "Account ownership is transferred to another program")
	return intent, nil
}

func (d *Decoder) decodeAllocate(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, "allocate")
	intent.Accounts = ixn.LabelRoles("account")

	space, err := r.ReadUint64()
	if err != nil {
		return partial(intent, "Allocation size could not be read")
	}
	account, ok := ixn.Account(0)
	if !ok {
		return partial(intent, "Allocated account is missing")
	}

	intent.Args["space"] = fmt.Sprintf("%d", space)
	intent.Summary = fmt.Sprintf("Allocate %d bytes for account %s", space, account.DisplayName())
	intent.Risk = inspect.RiskLow
	return intent, nil
}

func (d *Decoder) decodeAllocateWithSeed(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, "allocateWithSeed")
	intent.Accounts = ixn.LabelRoles("account", "baseAccount")

	base, err := r.ReadKey()
	if err != nil {
		return partial(intent, "Base key could not be read")
	}
	seed, err := readString(r)
	if err != nil {
		return partial(intent, "Seed could not be read")
	}
	space, err := r.ReadUint64()
	if err != nil {
		return partial(intent, "Allocation size could not be read")
	}
	owner, err := r.ReadKey()
	if err != nil {
		return partial(intent, "Account owner could not be read")
	}
	account, ok := ixn.Account(0)
	if !ok {
		return partial(intent, "Allocated account is missing")
	}

	intent.Args["base"] = base58.Encode(base)
	intent.Args["seed"] = seed
	intent.Args["space"] = fmt.Sprintf("%d", space)
	intent.Args["owner"] = base58.Encode(owner)
	intent.Summary = fmt.Sprintf("Allocate %d bytes for seed-derived account %s", space, account.DisplayName())
	intent.Risk = inspect.RiskLow
	return intent, nil
}

func (d *Decoder) decodeAdvanceNonce(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, "advanceNonceAccount")
	intent.Accounts = ixn.LabelRoles("nonceAccount", "recentBlockhashes", "nonceAuthority")

	nonce, ok := ixn.Account(0)
	if !ok {
		return partial(intent, "Nonce account is missing")
	}

	intent.Summary = fmt.Sprintf("Advance durable nonce %s", nonce.DisplayName())
	intent.Risk = inspect.RiskInfo
	return intent, nil
}

func (d *Decoder) decodeWithdrawNonce(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, "withdrawNonceAccount")
	intent.Accounts = ixn.LabelRoles("nonceAccount", "destination", "recentBlockhashes", "rent", "nonceAuthority")

	lamports, err := r.ReadUint64()
	if err != nil {
		return partial(intent, "Withdraw amount could not be read")
	}
	destination, ok := ixn.Account(1)
	if !ok {
		return partial(intent, "Withdraw destination account is missing")
	}

	sol := inspect.FormatUnits(lamports, solDecimals)
	intent.Args["lamports"] = fmt.Sprintf("%d", lamports)
	intent.Args["amount"] = sol + " SOL"
	intent.Summary = fmt.Sprintf("Withdraw %s SOL from nonce account to %s", sol, destination.DisplayName())
	intent.Risk = transferRisk(lamports)
	return intent, nil
}

func (d *Decoder) decodeInitializeNonce(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, "initializeNonceAccount")
	intent.Accounts = ixn.LabelRoles("nonceAccount", "recentBlockhashes", "rent")

	authority, err := r.ReadKey()
	if err != nil {
		return partial(intent, "Nonce authority could not be read")
	}
	nonce, ok := ixn.Account(0)
	if !ok {
		return partial(intent, "Nonce account is missing")
	}

	intent.Args["authority"] = base58.Encode(authority)
	intent.Summary = fmt.Sprintf("Initialize durable nonce %s", nonce.DisplayName())
	intent.Risk = inspect.RiskLow
	return intent, nil
}

func (d *Decoder) decodeAuthorizeNonce(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, "authorizeNonceAccount")
	intent.Accounts = ixn.LabelRoles("nonceAccount", "nonceAuthority")

	authority, err := r.ReadKey()
	if err != nil {
		return partial(intent, "New nonce authority could not be read")
	}
	nonce, ok := ixn.Account(0)
	if !ok {
		return partial(intent, "Nonce account is missing")
	}

	intent.Args["newAuthority"] = base58.Encode(authority)
	intent.Summary = fmt.Sprintf("Change authority of nonce account %s", nonce.DisplayName())
	intent.Risk = inspect.RiskHigh
	intent.Warnings = append(intent.Warnings, "Nonce account authority is being changed")
	return intent, nil
}

// readString reads the borsh-style string layout the system program uses:
// a u64 byte length followed by UTF-8 bytes.
func readString(r *wire.Reader) (string, error) {
	length, err := r.ReadUint64()
	if err != nil {
		return "", err
	}
	if length > uint64(r.Remaining()) {
		return "", errors.Errorf("string length %d exceeds remaining %d", length, r.Remaining())
	}
	raw, err := r.ReadBytes(int(length))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
