// Package token decodes SPL token program instructions. The decoder is
// parameterized by program identity so the token-2022 decoder can reuse
// the shared instruction set.
package token

import (
	"fmt"
	"math"

	"github.com/mr-tron/base58"

	"github.com/code-payments/tx-inspector/pkg/inspect"
	"github.com/code-payments/tx-inspector/pkg/solana/wire"
)

// Command identifies a token program instruction by its single-byte
// discriminator.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/master/token/program/src/instruction.rs
type Command byte

const (
	CommandInitializeMint Command = iota
	CommandInitializeAccount
	CommandInitializeMultisig
	CommandTransfer
	CommandApprove
	CommandRevoke
	CommandSetAuthority
	CommandMintTo
	CommandBurn
	CommandCloseAccount
	CommandFreezeAccount
	CommandThawAccount
	CommandTransferChecked
	CommandApproveChecked
	CommandMintToChecked
	CommandBurnChecked
	CommandInitializeAccount2
	CommandSyncNative
	CommandInitializeAccount3
	CommandInitializeMultisig2
	CommandInitializeMint2
	CommandGetAccountDataSize
	CommandInitializeImmutableOwner
	CommandAmountToUiAmount
	CommandUiAmountToAmount
)

// AuthorityType identifies which authority a setAuthority instruction
// changes.
type AuthorityType byte

const (
	AuthorityMintTokens AuthorityType = iota
	AuthorityFreezeAccount
	AuthorityAccountHolder
	AuthorityCloseAccount
)

func (t AuthorityType) String() string {
	switch t {
	case AuthorityMintTokens:
		return "mint tokens"
	case AuthorityFreezeAccount:
		return "freeze account"
	case AuthorityAccountHolder:
		return "account holder"
	case AuthorityCloseAccount:
		return "close account"
	}
	return fmt.Sprintf("unknown (%d)", byte(t))
}

type handlerFunc func(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error)

// Decoder decodes the shared SPL token instruction set for a specific
// token program deployment.
type Decoder struct {
	programID   string
	programName string
	handlers    map[Command]handlerFunc
}

// New returns a decoder for the classic token program.
func New() *Decoder {
	return NewForProgram(inspect.TokenProgram, "Token Program")
}

// NewForProgram returns a decoder bound to the given program identity.
// Used by the token-2022 decoder for the shared instruction set.
func NewForProgram(programID, programName string) *Decoder {
	d := &Decoder{
		programID:   programID,
		programName: programName,
	}
	d.handlers = map[Command]handlerFunc{
		CommandInitializeMint:           d.decodeInitializeMint,
		CommandInitializeMint2:          d.decodeInitializeMint,
		CommandInitializeAccount:        d.decodeInitializeAccount,
		CommandInitializeAccount2:       d.decodeInitializeAccountWithOwnerArg,
		CommandInitializeAccount3:       d.decodeInitializeAccountWithOwnerArg,
		CommandInitializeMultisig:       d.decodeInitializeMultisig,
		CommandInitializeMultisig2:      d.decodeInitializeMultisig,
		CommandTransfer:                 d.decodeTransfer,
		CommandApprove:                  d.decodeApprove,
		CommandRevoke:                   d.decodeRevoke,
		CommandSetAuthority:             d.decodeSetAuthority,
		CommandMintTo:                   d.decodeMintTo,
		CommandBurn:                     d.decodeBurn,
		CommandCloseAccount:             d.decodeCloseAccount,
		CommandFreezeAccount:            d.decodeFreezeAccount,
		CommandThawAccount:              d.decodeThawAccount,
		CommandTransferChecked:          d.decodeTransferChecked,
		CommandApproveChecked:           d.decodeApproveChecked,
		CommandMintToChecked:            d.decodeMintToChecked,
		CommandBurnChecked:              d.decodeBurnChecked,
		CommandSyncNative:               d.decodeSyncNative,
		CommandInitializeImmutableOwner: d.decodeInitializeImmutableOwner,
	}
	return d
}

// Register installs the decoder on a registry.
func Register(r *inspect.Registry) {
	r.Register(inspect.TokenProgram, "Token Program", New())
}

func (d *Decoder) DecodeInstruction(ixn inspect.Instruction) (inspect.Intent, error) {
	r := wire.NewReader(ixn.Data)
	command, err := r.ReadUint8()
	if err != nil {
		return inspect.Intent{}, inspect.ErrUnknownInstruction
	}

	handler, ok := d.handlers[Command(command)]
	if !ok {
		return inspect.Intent{}, inspect.ErrUnknownInstruction
	}
	return handler(ixn, r)
}

// Intent seeds an intent with the decoder's program identity. Exported
// for the token-2022 extension handlers.
func (d *Decoder) Intent(ixn inspect.Instruction, method string) inspect.Intent {
	return inspect.Intent{
		Index:       ixn.Index,
		ProgramID:   d.programID,
		ProgramName: d.programName,
		Method:      method,
		Accounts:    ixn.Accounts,
		Args:        make(map[string]string),
	}
}

// Partial degrades an intent whose payload or account list is too short.
func Partial(intent inspect.Intent, reason string) (inspect.Intent, error) {
	intent.Partial = true
	intent.Risk = intent.Risk.Max(inspect.RiskMedium)
	intent.Warnings = append(intent.Warnings, reason)
	if intent.Summary == "" {
		intent.Summary = "Partially decoded " + intent.Method + " instruction"
	}
	return intent, nil
}

// FormatAmount renders a token amount, humanized when the mint's decimals
// are known.
func FormatAmount(ixn inspect.Instruction, mint string, amount uint64) string {
	if decimals, ok := ixn.TokenDecimals[mint]; ok {
		return inspect.FormatUnits(amount, decimals)
	}
	return fmt.Sprintf("%d (raw)", amount)
}

func (d *Decoder) decodeInitializeMint(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.Intent(ixn, "initializeMint")
	intent.Accounts = ixn.LabelRoles("mint")

	decimals, err := r.ReadUint8()
	if err != nil {
		return Partial(intent, "Mint decimals could not be read")
	}
	mintAuthority, err := r.ReadKey()
	if err != nil {
		return Partial(intent, "Mint authority could not be read")
	}
	mint, ok := ixn.Account(0)
	if !ok {
		return Partial(intent, "Mint account is missing")
	}

	intent.Args["decimals"] = fmt.Sprintf("%d", decimals)
	intent.Args["mintAuthority"] = base58.Encode(mintAuthority)

	// Optional freeze authority: COption tag byte then key.
	if tag, err := r.ReadUint8(); err == nil && tag == 1 {
		if freezeAuthority, err := r.ReadKey(); err == nil {
			intent.Args["freezeAuthority"] = base58.Encode(freezeAuthority)
		}
	}

	intent.Summary = fmt.Sprintf("Initialize mint %s with %d decimals", mint.DisplayName(), decimals)
	intent.Risk = inspect.RiskLow
	return intent, nil
}

func (d *Decoder) decodeInitializeAccount(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.Intent(ixn, "initializeAccount")
	intent.Accounts = ixn.LabelRoles("account", "mint", "owner")

	account, ok := ixn.Account(0)
	if !ok {
		return Partial(intent, "Token account is missing")
	}
	mint, ok := ixn.Account(1)
	if !ok {
		return Partial(intent, "Mint account is missing")
	}

	intent.Summary = fmt.Sprintf("Initialize token account %s for mint %s", account.DisplayName(), mint.DisplayName())
	intent.Risk = inspect.RiskLow
	return intent, nil
}

func (d *Decoder) decodeInitializeAccountWithOwnerArg(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.Intent(ixn, "initializeAccount")
	intent.Accounts = ixn.LabelRoles("account", "mint")

	owner, err := r.ReadKey()
	if err != nil {
		return Partial(intent, "Account owner could not be read")
	}
	account, ok := ixn.Account(0)
	if !ok {
		return Partial(intent, "Token account is missing")
	}
	mint, ok := ixn.Account(1)
	if !ok {
		return Partial(intent, "Mint account is missing")
	}

	intent.Args["owner"] = base58.Encode(owner)
	intent.Summary = fmt.Sprintf("Initialize token account %s for mint %s", account.DisplayName(), mint.DisplayName())
	intent.Risk = inspect.RiskLow
	return intent, nil
}

func (d *Decoder) decodeInitializeMultisig(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.Intent(ixn, "initializeMultisig")
	intent.Accounts = ixn.LabelRoles("multisig")

	m, err := r.ReadUint8()
	if err != nil {
		return Partial(intent, "Multisig threshold could not be read")
	}
	multisig, ok := ixn.Account(0)
	if !ok {
		return Partial(intent, "Multisig account is missing")
	}

	intent.Args["requiredSigners"] = fmt.Sprintf("%d", m)
	intent.Summary = fmt.Sprintf("Initialize multisig %s requiring %d signers", multisig.DisplayName(), m)
	intent.Risk = inspect.RiskLow
	return intent, nil
}

func (d *Decoder) decodeTransfer(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.Intent(ixn, inspect.MethodTransfer)
	intent.Accounts = ixn.LabelRoles("source", "destination", "owner")

	amount, err := r.ReadUint64()
	if err != nil {
		return Partial(intent, "Transfer amount could not be read")
	}
	destination, ok := ixn.Account(1)
	if !ok {
		return Partial(intent, "Transfer destination account is missing")
	}

	intent.Args["amount"] = fmt.Sprintf("%d", amount)
	intent.Summary = fmt.Sprintf("Transfer %d token units to %s", amount, destination.DisplayName())
	intent.Risk = inspect.RiskLow
	return intent, nil
}

func (d *Decoder) decodeTransferChecked(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.Intent(ixn, inspect.MethodTransfer)
	intent.Accounts = ixn.LabelRoles("source", "mint", "destination", "owner")

	amount, err := r.ReadUint64()
	if err != nil {
		return Partial(intent, "Transfer amount could not be read")
	}
	decimals, err := r.ReadUint8()
	if err != nil {
		return Partial(intent, "Transfer decimals could not be read")
	}
	mint, ok := ixn.Account(1)
	if !ok {
		return Partial(intent, "Mint account is missing")
	}
	destination, ok := ixn.Account(2)
	if !ok {
		return Partial(intent, "Transfer destination account is missing")
	}

	humanized := inspect.FormatUnits(amount, decimals)
	intent.Args["amount"] = fmt.Sprintf("%d", amount)
	intent.Args["uiAmount"] = humanized
	intent.Args["decimals"] = fmt.Sprintf("%d", decimals)
	intent.Summary = fmt.Sprintf("Transfer %s of mint %s to %s", humanized, mint.DisplayName(), destination.DisplayName())
	intent.Risk = inspect.RiskLow
	return intent, nil
}

func (d *Decoder) decodeApprove(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.Intent(ixn, inspect.MethodApprove)
	intent.Accounts = ixn.LabelRoles("source", "delegate", "owner")

	amount, err := r.ReadUint64()
	if err != nil {
		return Partial(intent, "Approval amount could not be read")
	}
	delegate, ok := ixn.Account(1)
	if !ok {
		return Partial(intent, "Delegate account is missing")
	}

	return d.finishApprove(intent, delegate, amount, fmt.Sprintf("%d token units", amount)), nil
}

func (d *Decoder) decodeApproveChecked(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.Intent(ixn, inspect.MethodApproveChecked)
	intent.Accounts = ixn.LabelRoles("source", "mint", "delegate", "owner")

	amount, err := r.ReadUint64()
	if err != nil {
		return Partial(intent, "Approval amount could not be read")
	}
	decimals, err := r.ReadUint8()
	if err != nil {
		return Partial(intent, "Approval decimals could not be read")
	}
	delegate, ok := ixn.Account(2)
	if !ok {
		return Partial(intent, "Delegate account is missing")
	}

	intent.Args["decimals"] = fmt.Sprintf("%d", decimals)
	return d.finishApprove(intent, delegate, amount, inspect.FormatUnits(amount, decimals)+" tokens"), nil
}

func (d *Decoder) finishApprove(intent inspect.Intent, delegate inspect.AccountRole, amount uint64, display string) inspect.Intent {
	intent.Args["amount"] = fmt.Sprintf("%d", amount)

	if amount == math.MaxUint64 {
		intent.Summary = fmt.Sprintf("Approve UNLIMITED spending by %s", delegate.DisplayName())
		intent.Risk = inspect.RiskCritical
		intent.Warnings = append(intent.Warnings,
			fmt.Sprintf("UNLIMITED token approval: delegate %s can spend the account's entire balance", delegate.DisplayName()))
		return intent
	}

	intent.Summary = fmt.Sprintf("Approve %s for spending by %s", display, delegate.DisplayName())
	intent.Risk = inspect.RiskHigh
	intent.Warnings = append(intent.Warnings,
		fmt.Sprintf("Delegate %s gains spending rights over the token account", delegate.DisplayName()))
	return intent
}

func (d *Decoder) decodeRevoke(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.Intent(ixn, "revoke")
	intent.Accounts = ixn.LabelRoles("source", "owner")

	source, ok := ixn.Account(0)
	if !ok {
		return Partial(intent, "Token account is missing")
	}

	intent.Summary = fmt.Sprintf("Revoke delegate on %s", source.DisplayName())
	intent.Risk = inspect.RiskLow
	return intent, nil
}

func (d *Decoder) decodeSetAuthority(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.Intent(ixn, inspect.MethodSetAuthority)
	intent.Accounts = ixn.LabelRoles("target", "currentAuthority")

	authorityType, err := r.ReadUint8()
	if err != nil {
		return Partial(intent, "Authority type could not be read")
	}
	tag, err := r.ReadUint8()
	if err != nil {
		return Partial(intent, "Authority option tag could not be read")
	}
	target, ok := ixn.Account(0)
	if !ok {
		return Partial(intent, "Target account is missing")
	}

	kind := AuthorityType(authorityType)
	intent.Args["authorityType"] = kind.String()

	if tag == 0 {
		intent.Args["newAuthority"] = "none"
		intent.Summary = fmt.Sprintf("Remove %s authority on %s", kind, target.DisplayName())
		intent.Risk = inspect.RiskCritical
		intent.Warnings = append(intent.Warnings,
			fmt.Sprintf("The %s authority is being permanently removed; this cannot be undone", kind))
		return intent, nil
	}

	newAuthority, err := r.ReadKey()
	if err != nil {
		return Partial(intent, "New authority could not be read")
	}

	intent.Args["newAuthority"] = base58.Encode(newAuthority)
	intent.Summary = fmt.Sprintf("Change %s authority on %s to %s",
		kind, target.DisplayName(), inspect.AbbreviateAddress(base58.Encode(newAuthority)))
	intent.Risk = inspect.RiskHigh
	intent.Warnings = append(intent.Warnings,
		fmt.Sprintf("The %s authority is being transferred", kind))
	return intent, nil
}

func (d *Decoder) decodeMintTo(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.Intent(ixn, "mintTo")
	intent.Accounts = ixn.LabelRoles("mint", "destination", "mintAuthority")

	amount, err := r.ReadUint64()
	if err != nil {
		return Partial(intent, "Mint amount could not be read")
	}
	mint, ok := ixn.Account(0)
	if !ok {
		return Partial(intent, "Mint account is missing")
	}
	destination, ok := ixn.Account(1)
	if !ok {
		return Partial(intent, "Destination account is missing")
	}

	display := FormatAmount(ixn, mint.Address, amount)
	intent.Args["amount"] = fmt.Sprintf("%d", amount)
	intent.Summary = fmt.Sprintf("Mint %s of %s to %s", display, mint.DisplayName(), destination.DisplayName())
	intent.Risk = inspect.RiskHigh
	intent.Warnings = append(intent.Warnings, "New tokens are being minted, inflating the supply")
	return intent, nil
}

func (d *Decoder) decodeMintToChecked(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.Intent(ixn, "mintTo")
	intent.Accounts = ixn.LabelRoles("mint", "destination", "mintAuthority")

	amount, err := r.ReadUint64()
	if err != nil {
		return Partial(intent, "Mint amount could not be read")
	}
	decimals, err := r.ReadUint8()
	if err != nil {
		return Partial(intent, "Mint decimals could not be read")
	}
	mint, ok := ixn.Account(0)
	if !ok {
		return Partial(intent, "Mint account is missing")
	}
	destination, ok := ixn.Account(1)
	if !ok {
		return Partial(intent, "Destination account is missing")
	}

	humanized := inspect.FormatUnits(amount, decimals)
	intent.Args["amount"] = fmt.Sprintf("%d", amount)
	intent.Args["uiAmount"] = humanized
	intent.Summary = fmt.Sprintf("Mint %s of %s to %s", humanized, mint.DisplayName(), destination.DisplayName())
	intent.Risk = inspect.RiskHigh
	intent.Warnings = append(intent.Warnings, "New tokens are being minted, inflating the supply")
	return intent, nil
}

func (d *Decoder) decodeBurn(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.Intent(ixn, inspect.MethodBurn)
	intent.Accounts = ixn.LabelRoles("source", "mint", "owner")

	amount, err := r.ReadUint64()
	if err != nil {
		return Partial(intent, "Burn amount could not be read")
	}
	mint, ok := ixn.Account(1)
	if !ok {
		return Partial(intent, "Mint account is missing")
	}

	display := FormatAmount(ixn, mint.Address, amount)
	intent.Args["amount"] = fmt.Sprintf("%d", amount)
	intent.Summary = fmt.Sprintf("Burn %s of %s", display, mint.DisplayName())
	intent.Risk = inspect.RiskHigh
	intent.Warnings = append(intent.Warnings, "Tokens are permanently destroyed")
	return intent, nil
}

func (d *Decoder) decodeBurnChecked(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.Intent(ixn, inspect.MethodBurnChecked)
	intent.Accounts = ixn.LabelRoles("source", "mint", "owner")

	amount, err := r.ReadUint64()
	if err != nil {
		return Partial(intent, "Burn amount could not be read")
	}
	decimals, err := r.ReadUint8()
	if err != nil {
		return Partial(intent, "Burn decimals could not be read")
	}
	mint, ok := ixn.Account(1)
	if !ok {
		return Partial(intent, "Mint account is missing")
	}

	humanized := inspect.FormatUnits(amount, decimals)
	intent.Args["amount"] = fmt.Sprintf("%d", amount)
	intent.Args["uiAmount"] = humanized
	intent.Summary = fmt.Sprintf("Burn %s of %s", humanized, mint.DisplayName())
	intent.Risk = inspect.RiskHigh
	intent.Warnings = append(intent.Warnings, "Tokens are permanently destroyed")
	return intent, nil
}

func (d *Decoder) decodeCloseAccount(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.Intent(ixn, "closeAccount")
	intent.Accounts = ixn.LabelRoles("account", "destination", "owner")

	account, ok := ixn.Account(0)
	if !ok {
		return Partial(intent, "Closed account is missing")
	}
	destination, ok := ixn.Account(1)
	if !ok {
		return Partial(intent, "Lamport destination account is missing")
	}

	intent.Summary = fmt.Sprintf("Close token account %s, reclaiming rent to %s", account.DisplayName(), destination.DisplayName())
	intent.Risk = inspect.RiskMedium
	return intent, nil
}

func (d *Decoder) decodeFreezeAccount(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.Intent(ixn, "freezeAccount")
	intent.Accounts = ixn.LabelRoles("account", "mint", "freezeAuthority")

	account, ok := ixn.Account(0)
	if !ok {
		return Partial(intent, "Frozen account is missing")
	}

	intent.Summary = fmt.Sprintf("Freeze token account %s", account.DisplayName())
	intent.Risk = inspect.RiskHigh
	intent.Warnings = append(intent.Warnings, "The token account is frozen and cannot transact until thawed")
	return intent, nil
}

func (d *Decoder) decodeThawAccount(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.Intent(ixn, "thawAccount")
	intent.Accounts = ixn.LabelRoles("account", "mint", "freezeAuthority")

	account, ok := ixn.Account(0)
	if !ok {
		return Partial(intent, "Thawed account is missing")
	}

	intent.Summary = fmt.Sprintf("Thaw token account %s", account.DisplayName())
	intent.Risk = inspect.RiskLow
	return intent, nil
}

func (d *Decoder) decodeSyncNative(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.Intent(ixn, "syncNative")
	intent.Accounts = ixn.LabelRoles("account")

	account, ok := ixn.Account(0)
	if !ok {
		return Partial(intent, "Wrapped SOL account is missing")
	}

	intent.Summary = fmt.Sprintf("Sync wrapped SOL balance of %s", account.DisplayName())
	intent.Risk = inspect.RiskInfo
	return intent, nil
}

func (d *Decoder) decodeInitializeImmutableOwner(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.Intent(ixn, "initializeImmutableOwner")
	intent.Accounts = ixn.LabelRoles("account")

	account, ok := ixn.Account(0)
	if !ok {
		return Partial(intent, "Token account is missing")
	}

	intent.Summary = fmt.Sprintf("Make owner of %s immutable", account.DisplayName())
	intent.Risk = inspect.RiskInfo
	return intent, nil
}
