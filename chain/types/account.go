// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package types

// ActiveKeyEntry is one historical entry in an account's active-key
// rotation; AddressToAccount indexes every entry ever registered, not just
// the current one, so a signature from a revoked key is still attributable.
type ActiveKeyEntry struct {
	Address     Address
	ValidFromBlock uint64
}

// DelegateInfo is non-nil on an AccountRecord that has registered as a
// delegate candidate, grounded on original_source's account_record's
// delegate_info member. VotesFor/VotesAgainst/PayBalance mirror
// delegate_stats exactly (spec.md §3): net_votes is derived, never stored,
// so it can never drift from its components.
type DelegateInfo struct {
	VotesFor        int64
	VotesAgainst    int64
	PayBalance      int64
	LastBlockNum    uint64
	// SecretHashCommit is the ripemd160 commitment the delegate must reveal
	// the preimage of the next time it signs, per spec.md §4.6.
	SecretHashCommit [20]byte
	BlocksProduced   uint64
	BlocksMissed     uint64
}

// AccountRecord is the entity of spec.md §3 "account": a registered name
// plus its owning key, active-key history, and optional delegate standing.
type AccountRecord struct {
	ID               AccountID
	Name             string
	OwnerAddress     Address
	ActiveKeys       []ActiveKeyEntry
	RegistrationBlock uint64
	LastUpdateBlock  uint64
	Delegate         *DelegateInfo
}

func (a AccountRecord) IsNull() bool { return a.Name == "" }

func (a AccountRecord) IsDelegate() bool { return a.Delegate != nil }

// NetVotes returns the delegate's net vote weight (votes_for - votes_against
// per spec.md §3), or 0 for a non-delegate.
func (a AccountRecord) NetVotes() int64 {
	if a.Delegate == nil {
		return 0
	}
	return a.Delegate.VotesFor - a.Delegate.VotesAgainst
}

func (a AccountRecord) Encode() []byte {
	e := newEncoder()
	e.putUint64(uint64(a.ID))
	e.putString(a.Name)
	e.buf = append(e.buf, a.OwnerAddress[:]...)
	e.putUint64(uint64(len(a.ActiveKeys)))
	for _, k := range a.ActiveKeys {
		e.buf = append(e.buf, k.Address[:]...)
		e.putUint64(k.ValidFromBlock)
	}
	e.putUint64(a.RegistrationBlock)
	e.putUint64(a.LastUpdateBlock)
	e.putBool(a.Delegate != nil)
	if a.Delegate != nil {
		d := a.Delegate
		e.putInt64(d.VotesFor)
		e.putInt64(d.VotesAgainst)
		e.putInt64(d.PayBalance)
		e.putUint64(d.LastBlockNum)
		e.buf = append(e.buf, d.SecretHashCommit[:]...)
		e.putUint64(d.BlocksProduced)
		e.putUint64(d.BlocksMissed)
	}
	return e.bytes()
}

func DecodeAccountRecord(b []byte) (AccountRecord, error) {
	d := newDecoder(b)
	var a AccountRecord

	id, err := d.getUint64()
	if err != nil {
		return AccountRecord{}, err
	}
	a.ID = AccountID(id)

	name, err := d.getString()
	if err != nil {
		return AccountRecord{}, err
	}
	a.Name = name

	if d.remaining() < len(a.OwnerAddress) {
		return AccountRecord{}, ErrShortBuffer
	}
	copy(a.OwnerAddress[:], d.buf[d.pos:d.pos+len(a.OwnerAddress)])
	d.pos += len(a.OwnerAddress)

	n, err := d.getUint64()
	if err != nil {
		return AccountRecord{}, err
	}
	a.ActiveKeys = make([]ActiveKeyEntry, n)
	for i := range a.ActiveKeys {
		if d.remaining() < len(a.ActiveKeys[i].Address) {
			return AccountRecord{}, ErrShortBuffer
		}
		copy(a.ActiveKeys[i].Address[:], d.buf[d.pos:d.pos+len(a.ActiveKeys[i].Address)])
		d.pos += len(a.ActiveKeys[i].Address)
		vb, err := d.getUint64()
		if err != nil {
			return AccountRecord{}, err
		}
		a.ActiveKeys[i].ValidFromBlock = vb
	}

	reg, err := d.getUint64()
	if err != nil {
		return AccountRecord{}, err
	}
	a.RegistrationBlock = reg

	last, err := d.getUint64()
	if err != nil {
		return AccountRecord{}, err
	}
	a.LastUpdateBlock = last

	hasDelegate, err := d.getBool()
	if err != nil {
		return AccountRecord{}, err
	}
	if hasDelegate {
		var del DelegateInfo
		votesFor, err := d.getInt64()
		if err != nil {
			return AccountRecord{}, err
		}
		del.VotesFor = votesFor

		votesAgainst, err := d.getInt64()
		if err != nil {
			return AccountRecord{}, err
		}
		del.VotesAgainst = votesAgainst

		payBalance, err := d.getInt64()
		if err != nil {
			return AccountRecord{}, err
		}
		del.PayBalance = payBalance

		lastBlock, err := d.getUint64()
		if err != nil {
			return AccountRecord{}, err
		}
		del.LastBlockNum = lastBlock

		if d.remaining() < len(del.SecretHashCommit) {
			return AccountRecord{}, ErrShortBuffer
		}
		copy(del.SecretHashCommit[:], d.buf[d.pos:d.pos+len(del.SecretHashCommit)])
		d.pos += len(del.SecretHashCommit)

		produced, err := d.getUint64()
		if err != nil {
			return AccountRecord{}, err
		}
		del.BlocksProduced = produced

		missed, err := d.getUint64()
		if err != nil {
			return AccountRecord{}, err
		}
		del.BlocksMissed = missed

		a.Delegate = &del
	}

	if err := d.done(); err != nil {
		return AccountRecord{}, err
	}
	return a, nil
}
