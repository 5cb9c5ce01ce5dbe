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

import "encoding/binary"

// ProposalRecord is a delegate-submitted proposal awaiting a vote, grounded
// on original_source's proposal_record.
type ProposalRecord struct {
	ID          ProposalID
	SubmittingAccount AccountID
	SubmittedBlock uint64
	ExpirationBlock uint64
	Subject     string
	Body        string
	RatifiedBlock uint64
}

func (p ProposalRecord) IsNull() bool { return p.Subject == "" }

// ProposalVoteKey is the composite (proposal_id, delegate_id) key of
// kv.ProposalVote.
type ProposalVoteKey struct {
	Proposal ProposalID
	Delegate AccountID
}

func (k ProposalVoteKey) Bytes() []byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], uint64(k.Proposal))
	binary.BigEndian.PutUint64(b[8:16], uint64(k.Delegate))
	return b[:]
}

// ProposalVote is the value at ProposalVoteKey: whether the delegate voted
// to ratify, and when.
type ProposalVote struct {
	Key      ProposalVoteKey
	Ratify   bool
	VoteBlock uint64
}

func (p ProposalRecord) Encode() []byte {
	e := newEncoder()
	e.putUint64(uint64(p.ID))
	e.putUint64(uint64(p.SubmittingAccount))
	e.putUint64(p.SubmittedBlock)
	e.putUint64(p.ExpirationBlock)
	e.putString(p.Subject)
	e.putString(p.Body)
	e.putUint64(p.RatifiedBlock)
	return e.bytes()
}

func DecodeProposalRecord(b []byte) (ProposalRecord, error) {
	d := newDecoder(b)
	var p ProposalRecord
	var err error

	var id, account uint64
	if id, err = d.getUint64(); err != nil {
		return ProposalRecord{}, err
	}
	p.ID = ProposalID(id)
	if account, err = d.getUint64(); err != nil {
		return ProposalRecord{}, err
	}
	p.SubmittingAccount = AccountID(account)
	if p.SubmittedBlock, err = d.getUint64(); err != nil {
		return ProposalRecord{}, err
	}
	if p.ExpirationBlock, err = d.getUint64(); err != nil {
		return ProposalRecord{}, err
	}
	if p.Subject, err = d.getString(); err != nil {
		return ProposalRecord{}, err
	}
	if p.Body, err = d.getString(); err != nil {
		return ProposalRecord{}, err
	}
	if p.RatifiedBlock, err = d.getUint64(); err != nil {
		return ProposalRecord{}, err
	}
	if err := d.done(); err != nil {
		return ProposalRecord{}, err
	}
	return p, nil
}

func (v ProposalVote) Encode() []byte {
	e := newEncoder()
	e.putUint64(uint64(v.Key.Proposal))
	e.putUint64(uint64(v.Key.Delegate))
	e.putBool(v.Ratify)
	e.putUint64(v.VoteBlock)
	return e.bytes()
}

func DecodeProposalVote(b []byte) (ProposalVote, error) {
	d := newDecoder(b)
	var v ProposalVote
	var err error

	var proposal, delegate uint64
	if proposal, err = d.getUint64(); err != nil {
		return ProposalVote{}, err
	}
	if delegate, err = d.getUint64(); err != nil {
		return ProposalVote{}, err
	}
	v.Key = ProposalVoteKey{Proposal: ProposalID(proposal), Delegate: AccountID(delegate)}
	if v.Ratify, err = d.getBool(); err != nil {
		return ProposalVote{}, err
	}
	if v.VoteBlock, err = d.getUint64(); err != nil {
		return ProposalVote{}, err
	}
	if err := d.done(); err != nil {
		return ProposalVote{}, err
	}
	return v, nil
}
