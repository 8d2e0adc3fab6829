// Package stake decodes stake program instructions covering delegation
// lifecycle, authority changes, and withdrawals.
package stake

import (
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/code-payments/tx-inspector/pkg/inspect"
	"github.com/code-payments/tx-inspector/pkg/solana/wire"
)

const programName = "Stake Program"

const solDecimals = 9

// Command identifies a stake program instruction. The wire discriminator
// is a 4-byte little-endian value.
type Command uint32

const (
	CommandInitialize Command = iota
	CommandAuthorize
	CommandDelegateStake
	CommandSplit
	CommandWithdraw
	CommandDeactivate
	CommandSetLockup
	CommandMerge
	CommandAuthorizeWithSeed
)

// StakeAuthorize selects which stake authority an authorize instruction
// targets.
type StakeAuthorize uint32

const (
	AuthorizeStaker StakeAuthorize = iota
	AuthorizeWithdrawer
)

func (a StakeAuthorize) String() string {
	switch a {
	case AuthorizeStaker:
		return "staker"
	case AuthorizeWithdrawer:
		return "withdrawer"
	}
	return fmt.Sprintf("unknown (%d)", uint32(a))
}

type handlerFunc func(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error)

// Decoder decodes stake program instructions.
type Decoder struct {
	handlers map[Command]handlerFunc
}

func New() *Decoder {
	d := &Decoder{}
	d.handlers = map[Command]handlerFunc{
		CommandInitialize:        d.decodeInitialize,
		CommandAuthorize:         d.decodeAuthorize,
		CommandDelegateStake:     d.decodeDelegate,
		CommandSplit:             d.decodeSplit,
		CommandWithdraw:          d.decodeWithdraw,
		CommandDeactivate:        d.decodeDeactivate,
		CommandSetLockup:         d.decodeSetLockup,
		CommandMerge:             d.decodeMerge,
		CommandAuthorizeWithSeed: d.decodeAuthorizeWithSeed,
	}
	return d
}

// Register installs the decoder on a registry.
func Register(r *inspect.Registry) {
	r.Register(inspect.StakeProgram, programName, New())
}

func (d *Decoder) DecodeInstruction(ixn inspect.Instruction) (inspect.Intent, error) {
	r := wire.NewReader(ixn.Data)
	command, err := r.ReadUint32()
	if err != nil {
		return inspect.Intent{}, inspect.ErrUnknownInstruction
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
		ProgramID:   inspect.StakeProgram,
		ProgramName: programName,
		Method:      method,
		Accounts:    ixn.Accounts,
		Args:        make(map[string]string),
	}
}

func partial(intent inspect.Intent, reason string) (inspect.Intent, error) {
	intent.Partial = true
	intent.Risk = intent.Risk.Max(inspect.RiskMedium)
	intent.Warnings = append(intent.Warnings, reason)
	if intent.Summary == "" {
		intent.Summary = "Partially decoded " + intent.Method + " instruction"
	}
	return intent, nil
}

func (d *Decoder) decodeInitialize(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, "initialize")
	intent.Accounts = ixn.LabelRoles("stakeAccount", "rent")

	staker, err := r.ReadKey()
	if err != nil {
		return partial(intent, "Stake authorities could not be read")
	}
	withdrawer, err := r.ReadKey()
	if err != nil {
		return partial(intent, "Stake authorities could not be read")
	}
	stakeAccount, ok := ixn.Account(0)
	if !ok {
		return partial(intent, "Stake account is missing")
	}

	intent.Args["staker"] = base58.Encode(staker)
	intent.Args["withdrawer"] = base58.Encode(withdrawer)
	intent.Summary = fmt.Sprintf("Initialize stake account %s", stakeAccount.DisplayName())
	intent.Risk = inspect.RiskLow
	return intent, nil
}

func (d *Decoder) decodeAuthorize(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, inspect.MethodAuthorize)
	intent.Accounts = ixn.LabelRoles("stakeAccount", "clock", "currentAuthority")

	newAuthority, err := r.ReadKey()
	if err != nil {
		return partial(intent, "New stake authority could not be read")
	}
	kind, err := r.ReadUint32()
	if err != nil {
		return partial(intent, "Stake authority type could not be read")
	}
	stakeAccount, ok := ixn.Account(0)
	if !ok {
		return partial(intent, "Stake account is missing")
	}

	intent.Args["newAuthority"] = base58.Encode(newAuthority)
	intent.Args["authorityType"] = StakeAuthorize(kind).String()
	intent.Summary = fmt.Sprintf("Change %s authority of stake account %s",
		StakeAuthorize(kind), stakeAccount.DisplayName())
	intent.Risk = inspect.RiskHigh
	intent.Warnings = append(intent.Warnings, "Stake account authority is being changed")
	return intent, nil
}

func (d *Decoder) decodeAuthorizeWithSeed(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, inspect.MethodAuthorize)
	intent.Accounts = ixn.LabelRoles("stakeAccount", "baseAccount", "clock")

	newAuthority, err := r.ReadKey()
	if err != nil {
		return partial(intent, "New stake authority could not be read")
	}
	kind, err := r.ReadUint32()
	if err != nil {
		return partial(intent, "Stake authority type could not be read")
	}
	stakeAccount, ok := ixn.Account(0)
	if !ok {
		return partial(intent, "Stake account is missing")
	}

	intent.Args["newAuthority"] = base58.Encode(newAuthority)
	intent.Args["authorityType"] = StakeAuthorize(kind).String()
	intent.Summary = fmt.Sprintf("Change %s authority of stake account %s (seed-derived)",
		StakeAuthorize(kind), stakeAccount.DisplayName())
	intent.Risk = inspect.RiskHigh
	intent.Warnings = append(intent.Warnings, "Stake account authority is being changed")
	return intent, nil
}

func (d *Decoder) decodeDelegate(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, "delegateStake")
	intent.Accounts = ixn.LabelRoles("stakeAccount", "voteAccount", "clock", "stakeHistory", "stakeConfig", "stakeAuthority")

	stakeAccount, ok := ixn.Account(0)
	if !ok {
		return partial(intent, "Stake account is missing")
	}
	voteAccount, ok := ixn.Account(1)
	if !ok {
		return partial(intent, "Vote account is missing")
	}

	intent.Summary = fmt.Sprintf("Delegate stake account %s to validator %s",
		stakeAccount.DisplayName(), voteAccount.DisplayName())
	intent.Risk = inspect.RiskMedium
	return intent, nil
}

func (d *Decoder) decodeSplit(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, "split")
	intent.Accounts = ixn.LabelRoles("stakeAccount", "splitAccount", "stakeAuthority")

	lamports, err := r.ReadUint64()
	if err != nil {
		return partial(intent, "Split amount could not be read")
	}
	splitAccount, ok := ixn.Account(1)
	if !ok {
		return partial(intent, "Split destination account is missing")
	}

	sol := inspect.FormatUnits(lamports, solDecimals)
	intent.Args["lamports"] = fmt.Sprintf("%d", lamports)
	intent.Args["amount"] = sol + " SOL"
	intent.Summary = fmt.Sprintf("Split %s SOL of stake into %s", sol, splitAccount.DisplayName())
	intent.Risk = inspect.RiskMedium
	return intent, nil
}

func (d *Decoder) decodeWithdraw(ixn inspect.Instruction, r *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, "withdraw")
	intent.Accounts = ixn.LabelRoles("stakeAccount", "destination", "clock", "stakeHistory", "withdrawAuthority")

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
	intent.Summary = fmt.Sprintf("Withdraw %s SOL from stake account to %s", sol, destination.DisplayName())
	intent.Risk = inspect.RiskMedium
	return intent, nil
}

func (d *Decoder) decodeDeactivate(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, "deactivate")
	intent.Accounts = ixn.LabelRoles("stakeAccount", "clock", "stakeAuthority")

	stakeAccount, ok := ixn.Account(0)
	if !ok {
		return partial(intent, "Stake account is missing")
	}

	intent.Summary = fmt.Sprintf("Deactivate stake account %s", stakeAccount.DisplayName())
	intent.Risk = inspect.RiskLow
	return intent, nil
}

func (d *Decoder) decodeSetLockup(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, "setLockup")
	intent.Accounts = ixn.LabelRoles("stakeAccount", "lockupAuthority")

	stakeAccount, ok := ixn.Account(0)
	if !ok {
		return partial(intent, "Stake account is missing")
	}

	intent.Summary = fmt.Sprintf("Change lockup of stake account %s", stakeAccount.DisplayName())
	intent.Risk = inspect.RiskMedium
	intent.Warnings = append(intent.Warnings, "Stake withdrawal lockup is being changed")
	return intent, nil
}

func (d *Decoder) decodeMerge(ixn inspect.Instruction, _ *wire.Reader) (inspect.Intent, error) {
	intent := d.intent(ixn, "merge")
	intent.Accounts = ixn.LabelRoles("destinationStake", "sourceStake", "clock", "stakeHistory", "stakeAuthority")

	destination, ok := ixn.Account(0)
	if !ok {
		return partial(intent, "Destination stake account is missing")
	}
	source, ok := ixn.Account(1)
	if !ok {
		return partial(intent, "Source stake account is missing")
	}

	intent.Summary = fmt.Sprintf("Merge stake account %s into %s", source.DisplayName(), destination.DisplayName())
	intent.Risk = inspect.RiskLow
	return intent, nil
}
