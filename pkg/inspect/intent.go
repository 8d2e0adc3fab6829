package inspect

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// AccountRole describes one account's participation in one instruction.
// Values are never modified after construction.
type AccountRole struct {
	// Address is the base58 form of the account's public key. Unresolved
	// lookup table references render as "lut:<table>:<index>" instead.
	Address string

	// Role is a decoder-assigned label ("source", "authority", ...).
	Role string

	Signer   bool
	Writable bool

	// KnownName is the display name from the registry's name table, if the
	// address is recognized (e.g. "System Program").
	KnownName string

	// Unresolved marks an account referenced through an address lookup
	// table whose contents weren't supplied. The address is a tag, not a
	// real key.
	Unresolved bool
}

// DisplayName returns the known name when available, otherwise the
// abbreviated address.
func (a AccountRole) DisplayName() string {
	if a.KnownName != "" {
		return a.KnownName
	}
	return AbbreviateAddress(a.Address)
}

// Intent is the structured, human-auditable reconstruction of a single
// instruction's effect. Intents are built once and never mutated; a
// re-decode produces a replacement value.
type Intent struct {
	// Index is the instruction's position within the transaction.
	Index int

	ProgramID   string
	ProgramName string

	// Method is the machine-readable operation name, e.g. "transfer".
	Method string

	// Summary is a one-line human description.
	Summary string

	// Accounts preserves the instruction's wire order.
	Accounts []AccountRole

	// Args maps decoded argument names to display values. Amounts are
	// humanized where decimals are known; undecodable payloads fall back
	// to hex.
	Args map[string]string

	Risk     RiskLevel
	Warnings []string

	// Partial marks an intent whose payload could not be fully decoded.
	Partial bool
}

// Instruction is the decode input: a single instruction already split out
// of its transaction, with account references resolved into wire order.
type Instruction struct {
	ProgramID string
	Accounts  []AccountRole
	Data      []byte
	Index     int

	// TokenDecimals maps mint address to decimals, supplied by the caller.
	// Decoders use it to add human-scaled amounts; it is never fetched.
	TokenDecimals map[string]uint8
}

// Account returns the i'th account, reporting whether it exists. Decoders
// must use this instead of indexing so short account lists degrade to
// partial intents.
func (in Instruction) Account(i int) (AccountRole, bool) {
	if i < 0 || i >= len(in.Accounts) {
		return AccountRole{}, false
	}
	return in.Accounts[i], true
}

// LabelRoles copies the instruction's accounts and assigns role labels
// positionally. Extra accounts keep an empty role.
func (in Instruction) LabelRoles(roles ...string) []AccountRole {
	out := make([]AccountRole, len(in.Accounts))
	copy(out, in.Accounts)
	for i := range out {
		if i < len(roles) {
			out[i].Role = roles[i]
		}
	}
	return out
}

// AbbreviateAddress shortens a base58 address for display.
func AbbreviateAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:4] + "…" + address[len(address)-4:]
}

// FormatUnits renders a raw integer amount scaled by the given number of
// decimals, keeping four fractional digits.
func FormatUnits(raw uint64, decimals uint8) string {
	if decimals == 0 {
		return strconv.FormatUint(raw, 10)
	}

	divisor := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		divisor *= 10
	}

	whole := raw / divisor
	frac := raw % divisor

	// Scale the fractional part to four digits.
	fracStr := fmt.Sprintf("%0*d", decimals, frac)
	if len(fracStr) > 4 {
		fracStr = fracStr[:4]
	} else {
		fracStr += strings.Repeat("0", 4-len(fracStr))
	}

	return fmt.Sprintf("%d.%s", whole, fracStr)
}

// HexArg renders raw bytes as a hex string for args that couldn't be
// decoded structurally.
func HexArg(data []byte) string {
	return "0x" + hex.EncodeToString(data)
}
