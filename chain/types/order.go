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

// MarketIndexKey is the composite (price-ratio, owner-balance) sort key the
// Ask/Bid/Short tables use, grounded on original_source's market_index_key:
// orders are scanned best-price-first, ties broken by BalanceID.
type MarketIndexKey struct {
	// PriceRatio is a fixed-point numerator/denominator pair encoded so that
	// byte-lexicographic order equals price order for the order's side.
	PriceRatio uint64
	Owner      BalanceID
}

func (k MarketIndexKey) Bytes() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], k.PriceRatio)
	out := make([]byte, 0, 8+len(k.Owner))
	out = append(out, b[:]...)
	out = append(out, k.Owner[:]...)
	return out
}

// AskRecord is a standing offer to sell QuantityAsset for PriceAsset at or
// above the given ratio, grounded on original_source's market_order /
// ask_record.
type AskRecord struct {
	Index        MarketIndexKey
	QuantityAssetID AssetID
	PriceAssetID    AssetID
	Balance      BalanceID
}

// BidRecord mirrors AskRecord for the buy side.
type BidRecord struct {
	Index           MarketIndexKey
	QuantityAssetID AssetID
	PriceAssetID    AssetID
	Balance         BalanceID
}

// ShortRecord is a short-sale order against CollateralAssetID, grounded on
// original_source's short_record; interest accrues against Collateral per
// block via the margin-call mechanism, out of scope for this engine's
// evaluator but preserved as a storable record.
type ShortRecord struct {
	Index            MarketIndexKey
	QuantityAssetID  AssetID
	CollateralAssetID AssetID
	Balance          BalanceID
}

// CollateralRecord backs an open short position.
type CollateralRecord struct {
	Balance       BalanceID
	ShortBalance  BalanceID
	CoverPrice    uint64
}

func (a AskRecord) Encode() []byte  { return encodeOrder(a.Index, a.QuantityAssetID, a.PriceAssetID, a.Balance) }
func (b BidRecord) Encode() []byte  { return encodeOrder(b.Index, b.QuantityAssetID, b.PriceAssetID, b.Balance) }
func (s ShortRecord) Encode() []byte {
	return encodeOrder(s.Index, s.QuantityAssetID, s.CollateralAssetID, s.Balance)
}

func encodeOrder(idx MarketIndexKey, qty, price AssetID, balance BalanceID) []byte {
	e := newEncoder()
	e.putUint64(idx.PriceRatio)
	e.buf = append(e.buf, idx.Owner[:]...)
	e.putUint64(uint64(qty))
	e.putUint64(uint64(price))
	e.buf = append(e.buf, balance[:]...)
	return e.bytes()
}

func decodeOrder(b []byte) (MarketIndexKey, AssetID, AssetID, BalanceID, error) {
	d := newDecoder(b)
	var idx MarketIndexKey
	var zero BalanceID

	ratio, err := d.getUint64()
	if err != nil {
		return idx, 0, 0, zero, err
	}
	idx.PriceRatio = ratio

	if d.remaining() < len(idx.Owner) {
		return idx, 0, 0, zero, ErrShortBuffer
	}
	copy(idx.Owner[:], d.buf[d.pos:d.pos+len(idx.Owner)])
	d.pos += len(idx.Owner)

	qty, err := d.getUint64()
	if err != nil {
		return idx, 0, 0, zero, err
	}
	price, err := d.getUint64()
	if err != nil {
		return idx, 0, 0, zero, err
	}

	var balance BalanceID
	if d.remaining() < len(balance) {
		return idx, 0, 0, zero, ErrShortBuffer
	}
	copy(balance[:], d.buf[d.pos:d.pos+len(balance)])
	d.pos += len(balance)

	if err := d.done(); err != nil {
		return idx, 0, 0, zero, err
	}
	return idx, AssetID(qty), AssetID(price), balance, nil
}

func DecodeAskRecord(b []byte) (AskRecord, error) {
	idx, qty, price, balance, err := decodeOrder(b)
	if err != nil {
		return AskRecord{}, err
	}
	return AskRecord{Index: idx, QuantityAssetID: qty, PriceAssetID: price, Balance: balance}, nil
}

func DecodeBidRecord(b []byte) (BidRecord, error) {
	idx, qty, price, balance, err := decodeOrder(b)
	if err != nil {
		return BidRecord{}, err
	}
	return BidRecord{Index: idx, QuantityAssetID: qty, PriceAssetID: price, Balance: balance}, nil
}

func DecodeShortRecord(b []byte) (ShortRecord, error) {
	idx, qty, collateral, balance, err := decodeOrder(b)
	if err != nil {
		return ShortRecord{}, err
	}
	return ShortRecord{Index: idx, QuantityAssetID: qty, CollateralAssetID: collateral, Balance: balance}, nil
}

func (c CollateralRecord) Encode() []byte {
	e := newEncoder()
	e.buf = append(e.buf, c.Balance[:]...)
	e.buf = append(e.buf, c.ShortBalance[:]...)
	e.putUint64(c.CoverPrice)
	return e.bytes()
}

func DecodeCollateralRecord(b []byte) (CollateralRecord, error) {
	d := newDecoder(b)
	var c CollateralRecord
	if d.remaining() < len(c.Balance) {
		return CollateralRecord{}, ErrShortBuffer
	}
	copy(c.Balance[:], d.buf[d.pos:d.pos+len(c.Balance)])
	d.pos += len(c.Balance)

	if d.remaining() < len(c.ShortBalance) {
		return CollateralRecord{}, ErrShortBuffer
	}
	copy(c.ShortBalance[:], d.buf[d.pos:d.pos+len(c.ShortBalance)])
	d.pos += len(c.ShortBalance)

	price, err := d.getUint64()
	if err != nil {
		return CollateralRecord{}, err
	}
	c.CoverPrice = price

	if err := d.done(); err != nil {
		return CollateralRecord{}, err
	}
	return c, nil
}
