// Package token2022 decodes token-2022 program instructions: the shared
// SPL token instruction set plus the extension families (transfer fees,
// confidential transfers, permanent delegates, transfer hooks, and the
// various mint/account state extensions).
package token2022

import (
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/code-payments/tx-inspector/pkg/inspect"
	"github.com/code-payments/tx-inspector/pkg/inspect/decoder/token"
	"github.com/code-payments/tx-inspector/pkg/solana/wire"
)

const programName = "Token-2022 Program"

// Command identifies a token-2022 instruction. Values below
// CommandInitializeMintCloseAuthority are the shared SPL token set.
type Command byte

const (
	CommandInitializeMintCloseAuthority Command = iota + 25
	CommandTransferFeeExtension
	CommandConfidentialTransferExtension
	CommandDefaultAccountStateExtension
	CommandReallocate
	CommandMemoTransferExtension
	_
	CommandInitializeNonTransferableMint
	CommandInterestBearingMintExtension
	CommandCpiGuardExtension
	CommandInitializePermanentDelegate
	CommandTransferHookExtension
	CommandConfidentialTransferFeeExtension
	CommandWithdrawExcessLamports
	CommandMetadataPointerExtension
	CommandGroupPointerExtension
)

// Transfer fee extension sub-instructions, identified by a secondary
// single-byte discriminator.
type TransferFeeCommand byte

const (
	TransferFeeInitializeConfig TransferFeeCommand = iota
	TransferFeeTransferCheckedWithFee
	TransferFeeWithdrawFromMint
	TransferFeeWithdrawFromAccounts
	TransferFeeHarvestToMint
	TransferFeeSetFee
)

type handlerFunc func(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error)

// Decoder decodes token-2022 instructions, delegating the shared
// instruction set to the base token decoder.
type Decoder struct {
	base     *token.Decoder
	handlers map[Command]handlerFunc
}

// New returns a token-2022 decoder.
func New() *Decoder {
	d := &Decoder{
		base: token.NewForProgram(inspect.Token2022Program, programName),
	}
	d.handlers = map[Command]handlerFunc{
		CommandInitializeMintCloseAuthority:     d.decodeInitializeMintCloseAuthority,
		CommandTransferFeeExtension:             d.decodeTransferFeeExtension,
		CommandConfidentialTransferExtension:    d.decodeConfidentialTransfer,
		CommandDefaultAccountStateExtension:     d.decodeDefaultAccountState,
		CommandReallocate:                       d.decodeReallocate,
		CommandMemoTransferExtension:            d.decodeMemoTransfer,
		CommandInitializeNonTransferableMint:    d.decodeInitializeNonTransferableMint,
		CommandInterestBearingMintExtension:     d.decodeInterestBearing,
		CommandCpiGuardExtension:                d.decodeCpiGuard,
		CommandInitializePermanentDelegate:      d.decodeInitializePermanentDelegate,
		CommandTransferHookExtension:            d.decodeTransferHook,
		CommandConfidentialTransferFeeExtension: d.decodeConfidentialTransferFee,
		CommandWithdrawExcessLamports:           d.decodeWithdrawExcessLamports,
		CommandMetadataPointerExtension:         d.decodeMetadataPointer,
		CommandGroupPointerExtension:            d.decodeGroupPointer,
	}
	return d
}

// Register installs the decoder on a registry.
func Register(r *inspect.Registry) {
	r.Register(inspect.Token2022Program, programName, New())
}

func (d *Decoder) DecodeInstruction(ixn inspect.Instruction) (inspect.Intent, error) {
	r := wire.NewReader(ixn.Data)
	command, err := r.ReadUint8()
	if err != nil {
		return inspect.Intent{}, inspect.ErrUnknownInstruction
	}

	if handler, ok := d.handlers[Command(command)]; ok {
		return handler(ixn, r)
	}
	return d.base.DecodeInstruction(ixn)
}

func (d *Decoder) decodeInitializeMintCloseAuthority(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.base.Intent(ixn, "initializeMintCloseAuthority")
	intent.Accounts = ixn.LabelRoles("mint")

	mint, ok := ixn.Account(0)
	if !ok {
		return token.Partial(intent, "Mint account is missing")
	}

	if tag, err := r.ReadUint8(); err == nil && tag == 1 {
		if authority, err := r.ReadKey(); err == nil {
			intent.Args["closeAuthority"] = base58.Encode(authority)
		}
	}

	intent.Summary = fmt.Sprintf("Set a close authority on mint %s", mint.DisplayName())
	intent.Risk = inspect.RiskMedium
	intent.Warnings = append(intent.Warnings, "The close authority can close this mint")
	return intent, nil
}

func (d *Decoder) decodeTransferFeeExtension(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	sub, err := r.ReadUint8()
	if err != nil {
		intent := d.base.Intent(ixn, "transferFeeExtension")
		return token.Partial(intent, "Transfer fee sub-instruction could not be read")
	}

	switch TransferFeeCommand(sub) {
	case TransferFeeInitializeConfig:
		return d.decodeInitializeTransferFeeConfig(ixn, r)
	case TransferFeeTransferCheckedWithFee:
		return d.decodeTransferCheckedWithFee(ixn, r)
	case TransferFeeSetFee:
		return d.decodeSetTransferFee(ixn, r)
	case TransferFeeWithdrawFromMint, TransferFeeWithdrawFromAccounts, TransferFeeHarvestToMint:
		intent := d.base.Intent(ixn, "transferFeeCollection")
		target, ok := ixn.Account(0)
		if !ok {
			return token.Partial(intent, "Fee collection target account is missing")
		}
		intent.Summary = fmt.Sprintf("Collect withheld transfer fees from %s", target.DisplayName())
		intent.Risk = inspect.RiskLow
		return intent, nil
	}

	intent := d.base.Intent(ixn, "transferFeeExtension")
	return token.Partial(intent, fmt.Sprintf("Unrecognized transfer fee sub-instruction %d", sub))
}

func (d *Decoder) decodeInitializeTransferFeeConfig(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.base.Intent(ixn, "initializeTransferFeeConfig")
	intent.Accounts = ixn.LabelRoles("mint")

	mint, ok := ixn.Account(0)
	if !ok {
		return token.Partial(intent, "Mint account is missing")
	}

	// Two optional COption keys precede the fee parameters.
	for _, name := range []string{"transferFeeConfigAuthority", "withdrawWithheldAuthority"} {
		tag, err := r.ReadUint8()
		if err != nil {
			return token.Partial(intent, "Fee config authorities could not be read")
		}
		if tag == 1 {
			authority, err := r.ReadKey()
			if err != nil {
				return token.Partial(intent, "Fee config authorities could not be read")
			}
			intent.Args[name] = base58.Encode(authority)
		}
	}

	basisPoints, err := r.ReadUint16()
	if err != nil {
		return token.Partial(intent, "Fee basis points could not be read")
	}
	maxFee, err := r.ReadUint64()
	if err != nil {
		return token.Partial(intent, "Maximum fee could not be read")
	}

	intent.Args["feeBasisPoints"] = fmt.Sprintf("%d", basisPoints)
	intent.Args["maxFee"] = fmt.Sprintf("%d", maxFee)
	intent.Summary = fmt.Sprintf("Configure a %d bps transfer fee on mint %s", basisPoints, mint.DisplayName())
	intent.Risk = inspect.RiskMedium
	intent.Warnings = append(intent.Warnings,
		fmt.Sprintf("Every transfer of this token is taxed %d basis points", basisPoints))
	return intent, nil
}

func (d *Decoder) decodeTransferCheckedWithFee(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.base.Intent(ixn, inspect.MethodTransfer)
	intent.Accounts = ixn.LabelRoles("source", "mint", "destination", "owner")

	amount, err := r.ReadUint64()
	if err != nil {
		return token.Partial(intent, "Transfer amount could not be read")
	}
	decimals, err := r.ReadUint8()
	if err != nil {
		return token.Partial(intent, "Transfer decimals could not be read")
	}
	fee, err := r.ReadUint64()
	if err != nil {
		return token.Partial(intent, "Transfer fee could not be read")
	}
	mint, ok := ixn.Account(1)
	if !ok {
		return token.Partial(intent, "Mint account is missing")
	}
	destination, ok := ixn.Account(2)
	if !ok {
		return token.Partial(intent, "Transfer destination account is missing")
	}

	humanized := inspect.FormatUnits(amount, decimals)
	intent.Args["amount"] = fmt.Sprintf("%d", amount)
	intent.Args["uiAmount"] = humanized
	intent.Args["fee"] = inspect.FormatUnits(fee, decimals)
	intent.Summary = fmt.Sprintf("Transfer %s of mint %s to %s (fee %s)",
		humanized, mint.DisplayName(), destination.DisplayName(), inspect.FormatUnits(fee, decimals))
	intent.Risk = inspect.RiskLow
	return intent, nil
}

func (d *Decoder) decodeSetTransferFee(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.base.Intent(ixn, "setTransferFee")
	intent.Accounts = ixn.LabelRoles("mint", "feeAuthority")

	mint, ok := ixn.Account(0)
	if !ok {
		return token.Partial(intent, "Mint account is missing")
	}
	basisPoints, err := r.ReadUint16()
	if err != nil {
		return token.Partial(intent, "Fee basis points could not be read")
	}
	maxFee, err := r.ReadUint64()
	if err != nil {
		return token.Partial(intent, "Maximum fee could not be read")
	}

	intent.Args["feeBasisPoints"] = fmt.Sprintf("%d", basisPoints)
	intent.Args["maxFee"] = fmt.Sprintf("%d", maxFee)
	intent.Summary = fmt.Sprintf("Change transfer fee on mint %s to %d bps", mint.DisplayName(), basisPoints)
	intent.Risk = inspect.RiskHigh
	intent.Warnings = append(intent.Warnings, "The transfer fee charged on this token is being changed")
	return intent, nil
}

func (d *Decoder) decodeConfidentialTransfer(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.base.Intent(ixn, "confidentialTransfer")

	target, ok := ixn.Account(0)
	if !ok {
		return token.Partial(intent, "Confidential transfer target account is missing")
	}

	intent.Summary = fmt.Sprintf("Confidential transfer operation on %s", target.DisplayName())
	intent.Risk = inspect.RiskMedium
	intent.Warnings = append(intent.Warnings, "Confidential transfer amounts are encrypted and cannot be audited here")
	return intent, nil
}

func (d *Decoder) decodeDefaultAccountState(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.base.Intent(ixn, "defaultAccountState")
	intent.Accounts = ixn.LabelRoles("mint")

	mint, ok := ixn.Account(0)
	if !ok {
		return token.Partial(intent, "Mint account is missing")
	}

	// Sub-instruction (initialize/update) then the account state byte.
	if _, err := r.ReadUint8(); err != nil {
		return token.Partial(intent, "Default state sub-instruction could not be read")
	}
	state, err := r.ReadUint8()
	if err != nil {
		return token.Partial(intent, "Default account state could not be read")
	}

	// AccountState: 0 uninitialized, 1 initialized, 2 frozen.
	if state == 2 {
		intent.Args["defaultState"] = "frozen"
		intent.Summary = fmt.Sprintf("New accounts for mint %s default to frozen", mint.DisplayName())
		intent.Risk = inspect.RiskHigh
		intent.Warnings = append(intent.Warnings, "Token accounts for this mint start frozen and need issuer approval to transact")
		return intent, nil
	}

	intent.Args["defaultState"] = "initialized"
	intent.Summary = fmt.Sprintf("Set default account state for mint %s", mint.DisplayName())
	intent.Risk = inspect.RiskLow
	return intent, nil
}

func (d *Decoder) decodeReallocate(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.base.Intent(ixn, "reallocate")
	intent.Accounts = ixn.LabelRoles("account", "payer", "systemProgram", "owner")

	account, ok := ixn.Account(0)
	if !ok {
		return token.Partial(intent, "Reallocated account is missing")
	}

	intent.Summary = fmt.Sprintf("Reallocate token account %s for new extensions", account.DisplayName())
	intent.Risk = inspect.RiskLow
	return intent, nil
}

func (d *Decoder) decodeMemoTransfer(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.base.Intent(ixn, "memoTransfer")
	intent.Accounts = ixn.LabelRoles("account", "owner")

	account, ok := ixn.Account(0)
	if !ok {
		return token.Partial(intent, "Token account is missing")
	}

	intent.Summary = fmt.Sprintf("Toggle required transfer memos on %s", account.DisplayName())
	intent.Risk = inspect.RiskInfo
	return intent, nil
}

func (d *Decoder) decodeInitializeNonTransferableMint(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.base.Intent(ixn, "initializeNonTransferableMint")
	intent.Accounts = ixn.LabelRoles("mint")

	mint, ok := ixn.Account(0)
	if !ok {
		return token.Partial(intent, "Mint account is missing")
	}

	intent.Summary = fmt.Sprintf("Initialize non-transferable (soulbound) mint %s", mint.DisplayName())
	intent.Risk = inspect.RiskHigh
	intent.Warnings = append(intent.Warnings,
		"Tokens of this mint are soulbound: they can never be transferred, and this is irreversible")
	return intent, nil
}

func (d *Decoder) decodeInterestBearing(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.base.Intent(ixn, "interestBearingMint")
	intent.Accounts = ixn.LabelRoles("mint")

	mint, ok := ixn.Account(0)
	if !ok {
		return token.Partial(intent, "Mint account is missing")
	}

	intent.Summary = fmt.Sprintf("Configure interest rate on mint %s", mint.DisplayName())
	intent.Risk = inspect.RiskMedium
	return intent, nil
}

func (d *Decoder) decodeCpiGuard(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.base.Intent(ixn, "cpiGuard")
	intent.Accounts = ixn.LabelRoles("account", "owner")

	account, ok := ixn.Account(0)
	if !ok {
		return token.Partial(intent, "Token account is missing")
	}

	intent.Summary = fmt.Sprintf("Toggle CPI guard on %s", account.DisplayName())
	intent.Risk = inspect.RiskLow
	return intent, nil
}

func (d *Decoder) decodeInitializePermanentDelegate(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.base.Intent(ixn, "initializePermanentDelegate")
	intent.Accounts = ixn.LabelRoles("mint")

	mint, ok := ixn.Account(0)
	if !ok {
		return token.Partial(intent, "Mint account is missing")
	}
	delegate, err := r.ReadKey()
	if err != nil {
		return token.Partial(intent, "Permanent delegate could not be read")
	}

	intent.Args["delegate"] = base58.Encode(delegate)
	intent.Summary = fmt.Sprintf("Initialize permanent delegate on mint %s", mint.DisplayName())
	intent.Risk = inspect.RiskCritical
	intent.Warnings = append(intent.Warnings,
		fmt.Sprintf("Permanent delegate %s can transfer or burn ANY holder's tokens of this mint, forever",
			inspect.AbbreviateAddress(base58.Encode(delegate))))
	return intent, nil
}

func (d *Decoder) decodeTransferHook(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.base.Intent(ixn, "transferHook")
	intent.Accounts = ixn.LabelRoles("mint")

	mint, ok := ixn.Account(0)
	if !ok {
		return token.Partial(intent, "Mint account is missing")
	}

	// Sub-instruction byte, then authority and hook program id for the
	// initialize case.
	if _, err := r.ReadUint8(); err == nil {
		if _, err := r.ReadKey(); err == nil {
			if hookProgram, err := r.ReadKey(); err == nil {
				intent.Args["hookProgram"] = base58.Encode(hookProgram)
			}
		}
	}

	intent.Summary = fmt.Sprintf("Configure transfer hook on mint %s", mint.DisplayName())
	intent.Risk = inspect.RiskHigh
	intent.Warnings = append(intent.Warnings, "A custom program runs on every transfer of this token")
	return intent, nil
}

func (d *Decoder) decodeConfidentialTransferFee(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.base.Intent(ixn, "confidentialTransferFee")

	target, ok := ixn.Account(0)
	if !ok {
		return token.Partial(intent, "Confidential fee target account is missing")
	}

	intent.Summary = fmt.Sprintf("Confidential transfer fee operation on %s", target.DisplayName())
	intent.Risk = inspect.RiskMedium
	intent.Warnings = append(intent.Warnings, "Confidential transfer amounts are encrypted and cannot be audited here")
	return intent, nil
}

func (d *Decoder) decodeWithdrawExcessLamports(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.base.Intent(ixn, "withdrawExcessLamports")
	intent.Accounts = ixn.LabelRoles("source", "destination", "authority")

	destination, ok := ixn.Account(1)
	if !ok {
		return token.Partial(intent, "Withdraw destination account is missing")
	}

	intent.Summary = fmt.Sprintf("Withdraw excess lamports to %s", destination.DisplayName())
	intent.Risk = inspect.RiskMedium
	return intent, nil
}

func (d *Decoder) decodeMetadataPointer(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.base.Intent(ixn, "metadataPointer")
	intent.Accounts = ixn.LabelRoles("mint")

	mint, ok := ixn.Account(0)
	if !ok {
		return token.Partial(intent, "Mint account is missing")
	}

	intent.Summary = fmt.Sprintf("Configure metadata pointer on mint %s", mint.DisplayName())
	intent.Risk = inspect.RiskInfo
	return intent, nil
}

func (d *Decoder) decodeGroupPointer(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.base.Intent(ixn, "groupPointer")
	intent.Accounts = ixn.LabelRoles("mint")

	mint, ok := ixn.Account(0)
	if !ok {
		return token.Partial(intent, "Mint account is missing")
	}

	intent.Summary = fmt.Sprintf("Configure group pointer on mint %s", mint.DisplayName())
	intent.Risk = inspect.RiskInfo
	return intent, nil
}
