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

import "github.com/erigontech/dpos-engine/chainhash"

// BlockHeader carries every field spec.md §4.6 verifies or derives. Secret
// is the delegate's reveal for the slot this block claims, checked against
// the commitment recorded when the delegate's previous slot was produced
// (original_source: chain_database.cpp, update_delegate_production_info).
type BlockHeader struct {
	BlockNum          uint64
	Previous          BlockID
	Timestamp         int64
	SigningDelegateID AccountID
	// Secret is the preimage of the commitment this delegate published the
	// last time it signed a block; ripemd160(Secret) must equal that
	// commitment, or the block is rejected with a ConsensusViolation. A
	// delegate's first block has no prior commitment and is not checked.
	Secret         chainhash.Hash160
	NextSecretHash chainhash.Hash160
	TransactionDigest chainhash.Hash256
	FeeRate        int64
	DelegatePayRate uint32
	Signature      []byte
}

// FullBlock is a header plus the ordered transactions it carries. The
// concrete transaction wire format is out of scope (spec.md §1 Non-goals);
// engine code treats a transaction as a RawTransaction: an id, a declared
// total fee, and the ops chain/evaluator needs to apply it.
type FullBlock struct {
	Header       BlockHeader
	Transactions []RawTransaction
}

// RawTransaction is the minimal shape the pipeline (C6) and pool (C8) need:
// an id for dedup/fee-ranking, the fee it pays, and the ops evaluator applies.
type RawTransaction struct {
	ID       chainhash.Hash256
	TotalFee int64
	Ops      []Operation
}

// Operation is the tagged-variant contract chain/evaluator dispatches on.
// Concrete operation payloads live in chain/evaluator; types only needs the
// tag to serialize the envelope deterministically.
type Operation struct {
	Tag     uint8
	Payload []byte
}

// TransactionLocation records where a transaction was included, for the
// ProcessedTransactionID index (spec.md §8 scenario 6, is_known_transaction).
type TransactionLocation struct {
	BlockNum      uint64
	TransactionIdx uint32
}

func (h BlockHeader) Encode() []byte {
	e := newEncoder()
	e.putUint64(h.BlockNum)
	e.buf = append(e.buf, h.Previous[:]...)
	e.putInt64(h.Timestamp)
	e.putUint64(uint64(h.SigningDelegateID))
	e.buf = append(e.buf, h.Secret[:]...)
	e.buf = append(e.buf, h.NextSecretHash[:]...)
	e.buf = append(e.buf, h.TransactionDigest[:]...)
	e.putInt64(h.FeeRate)
	e.putUint64(uint64(h.DelegatePayRate))
	e.putBytes(h.Signature)
	return e.bytes()
}

// ID hashes the header with sha256, used as the block's identity — the
// signature is part of the hashed payload, matching original_source's
// treatment of the signed block header as the canonical id source.
func (h BlockHeader) ID() BlockID {
	return BlockID(chainhash.SHA256(h.Encode()))
}

func (l TransactionLocation) Encode() []byte {
	e := newEncoder()
	e.putUint64(l.BlockNum)
	e.putUint64(uint64(l.TransactionIdx))
	return e.bytes()
}

func DecodeTransactionLocation(b []byte) (TransactionLocation, error) {
	d := newDecoder(b)
	blockNum, err := d.getUint64()
	if err != nil {
		return TransactionLocation{}, err
	}
	idx, err := d.getUint64()
	if err != nil {
		return TransactionLocation{}, err
	}
	if err := d.done(); err != nil {
		return TransactionLocation{}, err
	}
	return TransactionLocation{BlockNum: blockNum, TransactionIdx: uint32(idx)}, nil
}

func (op Operation) encodeInto(e *encoder) {
	e.putByte(op.Tag)
	e.putBytes(op.Payload)
}

func decodeOperation(d *decoder) (Operation, error) {
	tag, err := d.getByte()
	if err != nil {
		return Operation{}, err
	}
	payload, err := d.getBytes()
	if err != nil {
		return Operation{}, err
	}
	return Operation{Tag: tag, Payload: payload}, nil
}

func (t RawTransaction) Encode() []byte {
	e := newEncoder()
	e.buf = append(e.buf, t.ID[:]...)
	e.putInt64(t.TotalFee)
	e.putUint64(uint64(len(t.Ops)))
	for _, op := range t.Ops {
		op.encodeInto(e)
	}
	return e.bytes()
}

func decodeRawTransaction(d *decoder) (RawTransaction, error) {
	var t RawTransaction
	if d.remaining() < len(t.ID) {
		return RawTransaction{}, ErrShortBuffer
	}
	copy(t.ID[:], d.buf[d.pos:d.pos+len(t.ID)])
	d.pos += len(t.ID)

	fee, err := d.getInt64()
	if err != nil {
		return RawTransaction{}, err
	}
	t.TotalFee = fee

	n, err := d.getUint64()
	if err != nil {
		return RawTransaction{}, err
	}
	t.Ops = make([]Operation, n)
	for i := range t.Ops {
		op, err := decodeOperation(d)
		if err != nil {
			return RawTransaction{}, err
		}
		t.Ops[i] = op
	}
	return t, nil
}

func DecodeRawTransaction(b []byte) (RawTransaction, error) {
	d := newDecoder(b)
	t, err := decodeRawTransaction(d)
	if err != nil {
		return RawTransaction{}, err
	}
	if err := d.done(); err != nil {
		return RawTransaction{}, err
	}
	return t, nil
}

// Encode serializes the full block: header then each transaction. This is
// the representation stored under kv.BlockIDToBlock; it is not a consensus
// wire format (transaction encoding is an external collaborator's concern
// per spec.md §1), only this engine's own persistence layout.
func (b FullBlock) Encode() []byte {
	e := newEncoder()
	e.buf = append(e.buf, b.Header.Encode()...)
	e.putUint64(uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		e.putBytes(tx.Encode())
	}
	return e.bytes()
}

func decodeBlockHeader(d *decoder) (BlockHeader, error) {
	var h BlockHeader
	blockNum, err := d.getUint64()
	if err != nil {
		return BlockHeader{}, err
	}
	h.BlockNum = blockNum

	if d.remaining() < len(h.Previous) {
		return BlockHeader{}, ErrShortBuffer
	}
	copy(h.Previous[:], d.buf[d.pos:d.pos+len(h.Previous)])
	d.pos += len(h.Previous)

	ts, err := d.getInt64()
	if err != nil {
		return BlockHeader{}, err
	}
	h.Timestamp = ts

	signer, err := d.getUint64()
	if err != nil {
		return BlockHeader{}, err
	}
	h.SigningDelegateID = AccountID(signer)

	if d.remaining() < len(h.Secret) {
		return BlockHeader{}, ErrShortBuffer
	}
	copy(h.Secret[:], d.buf[d.pos:d.pos+len(h.Secret)])
	d.pos += len(h.Secret)

	if d.remaining() < len(h.NextSecretHash) {
		return BlockHeader{}, ErrShortBuffer
	}
	copy(h.NextSecretHash[:], d.buf[d.pos:d.pos+len(h.NextSecretHash)])
	d.pos += len(h.NextSecretHash)

	if d.remaining() < len(h.TransactionDigest) {
		return BlockHeader{}, ErrShortBuffer
	}
	copy(h.TransactionDigest[:], d.buf[d.pos:d.pos+len(h.TransactionDigest)])
	d.pos += len(h.TransactionDigest)

	feeRate, err := d.getInt64()
	if err != nil {
		return BlockHeader{}, err
	}
	h.FeeRate = feeRate

	payRate, err := d.getUint64()
	if err != nil {
		return BlockHeader{}, err
	}
	h.DelegatePayRate = uint32(payRate)

	sig, err := d.getBytes()
	if err != nil {
		return BlockHeader{}, err
	}
	h.Signature = sig
	return h, nil
}

func DecodeFullBlock(b []byte) (FullBlock, error) {
	d := newDecoder(b)
	header, err := decodeBlockHeader(d)
	if err != nil {
		return FullBlock{}, err
	}
	n, err := d.getUint64()
	if err != nil {
		return FullBlock{}, err
	}
	txs := make([]RawTransaction, n)
	for i := range txs {
		raw, err := d.getBytes()
		if err != nil {
			return FullBlock{}, err
		}
		tx, err := DecodeRawTransaction(raw)
		if err != nil {
			return FullBlock{}, err
		}
		txs[i] = tx
	}
	if err := d.done(); err != nil {
		return FullBlock{}, err
	}
	return FullBlock{Header: header, Transactions: txs}, nil
}
