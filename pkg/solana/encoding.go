package solana

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/tx-inspector/pkg/solana/shortvec"
	"github.com/code-payments/tx-inspector/pkg/solana/wire"
)

func (t Transaction) Marshal() []byte {
	b := bytes.NewBuffer(nil)

	// Signatures
	_, _ = shortvec.EncodeLen(b, len(t.Signatures))
	for _, s := range t.Signatures {
		_, _ = b.Write(s[:])
	}

	// Message
	_, _ = b.Write(t.Message.Marshal())

	return b.Bytes()
}

func (t *Transaction) Unmarshal(b []byte) error {
	r := wire.NewReader(b)

	sigLen, err := r.ReadShortVecLen()
	if err != nil {
		return errors.Wrap(err, "failed to read signature length")
	}

	t.Signatures = make([]Signature, sigLen)
	for i := 0; i < sigLen; i++ {
		sig, err := r.ReadBytes(ed25519.SignatureSize)
		if err != nil {
			return errors.Wrapf(err, "failed to read signature at %d", i)
		}
		copy(t.Signatures[i][:], sig)
	}

	return (&t.Message).unmarshal(r)
}

func (m Message) Marshal() []byte {
	switch m.Version {
	case MessageVersionLegacy:
		return m.marshalLegacy()
	case MessageVersion0:
		return m.marshalV0()
	default:
		panic("unsupported message version")
	}
}

func (m Message) marshalLegacy() []byte {
	b := bytes.NewBuffer(nil)

	// Header
	_ = b.WriteByte(m.Header.NumSignatures)
	_ = b.WriteByte(m.Header.NumReadonlySigned)
	_ = b.WriteByte(m.Header.NumReadOnly)

	// Accounts
	_, _ = shortvec.EncodeLen(b, len(m.Accounts))
	for _, a := range m.Accounts {
		_, _ = b.Write(a)
	}

	// Recent Blockhash
	_, _ = b.Write(m.RecentBlockhash[:])

	// Instructions
	_, _ = shortvec.EncodeLen(b, len(m.Instructions))
	for _, i := range m.Instructions {
		_ = b.WriteByte(i.ProgramIndex)

		// Accounts
		_, _ = shortvec.EncodeLen(b, len(i.Accounts))
		_, _ = b.Write(i.Accounts)

		// Data
		_, _ = shortvec.EncodeLen(b, len(i.Data))
		_, _ = b.Write(i.Data)
	}

	return b.Bytes()
}

func (m Message) marshalV0() []byte {
	b := bytes.NewBuffer(nil)

	// Version Number
	_ = b.WriteByte(byte(m.Version-1) | versionFlag)

	// Header
	_ = b.WriteByte(m.Header.NumSignatures)
	_ = b.WriteByte(m.Header.NumReadonlySigned)
	_ = b.WriteByte(m.Header.NumReadOnly)

	// Accounts
	_, _ = shortvec.EncodeLen(b, len(m.Accounts))
	for _, a := range m.Accounts {
		_, _ = b.Write(a)
	}

	// Recent Blockhash
	_, _ = b.Write(m.RecentBlockhash[:])

	// Instructions
	_, _ = shortvec.EncodeLen(b, len(m.Instructions))
	for _, i := range m.Instructions {
		_ = b.WriteByte(i.ProgramIndex)

		// Accounts
		_, _ = shortvec.EncodeLen(b, len(i.Accounts))
		_, _ = b.Write(i.Accounts)

		// Data
		_, _ = shortvec.EncodeLen(b, len(i.Data))
		_, _ = b.Write(i.Data)
	}

	_, _ = shortvec.EncodeLen(b, len(m.AddressTableLookups))
	for _, addressTableLookup := range m.AddressTableLookups {
		_, _ = b.Write(addressTableLookup.PublicKey)

		_, _ = shortvec.EncodeLen(b, len(addressTableLookup.WritableIndexes))
		_, _ = b.Write(addressTableLookup.WritableIndexes)

		_, _ = shortvec.EncodeLen(b, len(addressTableLookup.ReadonlyIndexes))
		_, _ = b.Write(addressTableLookup.ReadonlyIndexes)
	}

	return b.Bytes()
}

func (m *Message) Unmarshal(b []byte) error {
	return m.unmarshal(wire.NewReader(b))
}

func (m *Message) unmarshal(r *wire.Reader) (err error) {
	// Version marker. Legacy messages start directly with the header, whose
	// first byte (the number of required signatures) never has the top bit
	// set in practice.
	prefix, err := r.ReadUint8()
	if err != nil {
		return errors.Wrap(err, "failed to read message prefix")
	}

	if prefix&versionFlag != 0 {
		version := prefix & (versionFlag - 1)
		if version != 0 {
			return errors.Wrapf(ErrUnsupportedVersion, "version %d", version)
		}
		m.Version = MessageVersion0

		if m.Header.NumSignatures, err = r.ReadUint8(); err != nil {
			return errors.Wrap(err, "failed to read num signatures")
		}
	} else {
		m.Version = MessageVersionLegacy
		m.Header.NumSignatures = prefix
	}

	// Header
	if m.Header.NumReadonlySigned, err = r.ReadUint8(); err != nil {
		return errors.Wrap(err, "failed to read num readonly signatures")
	}
	if m.Header.NumReadOnly, err = r.ReadUint8(); err != nil {
		return errors.Wrap(err, "failed to read num readonly")
	}

	// Accounts
	accountLen, err := r.ReadShortVecLen()
	if err != nil {
		return errors.Wrap(err, "failed to read account len")
	}
	m.Accounts = make([]ed25519.PublicKey, accountLen)
	for i := 0; i < accountLen; i++ {
		if m.Accounts[i], err = r.ReadKey(); err != nil {
			return errors.Wrapf(err, "failed to read account at index %d", i)
		}
	}

	// Recent block hash
	bh, err := r.ReadBytes(len(m.RecentBlockhash))
	if err != nil {
		return errors.Wrap(err, "failed to read recent block hash")
	}
	copy(m.RecentBlockhash[:], bh)

	// Instructions
	instructionLen, err := r.ReadShortVecLen()
	if err != nil {
		return errors.Wrap(err, "failed to read instruction len")
	}
	m.Instructions = make([]CompiledInstruction, instructionLen)
	for i := 0; i < instructionLen; i++ {
		var c CompiledInstruction

		// Program Index
		if c.ProgramIndex, err = r.ReadUint8(); err != nil {
			return errors.Wrapf(err, "failed to read instruction[%d] program index", i)
		}
		if int(c.ProgramIndex) >= len(m.Accounts) {
			return errors.Errorf("program index out of range: %d:%d", i, c.ProgramIndex)
		}

		// Account Indexes
		accountLen, err := r.ReadShortVecLen()
		if err != nil {
			return errors.Wrapf(err, "failed to read instruction[%d] account len", i)
		}
		accounts, err := r.ReadBytes(accountLen)
		if err != nil {
			return errors.Wrapf(err, "failed to read instruction[%d] accounts", i)
		}
		c.Accounts = make([]byte, accountLen)
		copy(c.Accounts, accounts)

		// Account indices may extend past the static key list only when the
		// message can load accounts through lookup tables. The referenced
		// addresses stay unresolved; callers flag them rather than guess.
		if m.Version == MessageVersionLegacy {
			for _, index := range c.Accounts {
				if int(index) >= len(m.Accounts) {
					return errors.Errorf("account index out of range: %d:%d", i, index)
				}
			}
		}

		// Data
		dataLen, err := r.ReadShortVecLen()
		if err != nil {
			return errors.Wrapf(err, "failed to read instruction[%d] data len", i)
		}
		data, err := r.ReadBytes(dataLen)
		if err != nil {
			return errors.Wrapf(err, "failed to read instruction[%d] data", i)
		}
		c.Data = make([]byte, dataLen)
		copy(c.Data, data)

		m.Instructions[i] = c
	}

	if m.Version == MessageVersionLegacy {
		return nil
	}

	// Address table lookups
	lookupLen, err := r.ReadShortVecLen()
	if err != nil {
		return errors.Wrap(err, "failed to read address table lookup len")
	}
	m.AddressTableLookups = make([]MessageAddressTableLookup, lookupLen)
	for i := 0; i < lookupLen; i++ {
		var l MessageAddressTableLookup

		if l.PublicKey, err = r.ReadKey(); err != nil {
			return errors.Wrapf(err, "failed to read lookup[%d] table address", i)
		}

		writableLen, err := r.ReadShortVecLen()
		if err != nil {
			return errors.Wrapf(err, "failed to read lookup[%d] writable len", i)
		}
		writable, err := r.ReadBytes(writableLen)
		if err != nil {
			return errors.Wrapf(err, "failed to read lookup[%d] writable indexes", i)
		}
		l.WritableIndexes = make([]byte, writableLen)
		copy(l.WritableIndexes, writable)

		readonlyLen, err := r.ReadShortVecLen()
		if err != nil {
			return errors.Wrapf(err, "failed to read lookup[%d] readonly len", i)
		}
		readonly, err := r.ReadBytes(readonlyLen)
		if err != nil {
			return errors.Wrapf(err, "failed to read lookup[%d] readonly indexes", i)
		}
		l.ReadonlyIndexes = make([]byte, readonlyLen)
		copy(l.ReadonlyIndexes, readonly)

		m.AddressTableLookups[i] = l
	}

	return nil
}
