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

// AssetRecord is the entity of spec.md §3 "asset", grounded on
// original_source's asset_record. Asset 0 is the base network asset created
// at genesis with MaximumShareSupply == chainconfig.InitialShares and
// CurrentShareSupply equal to the shares genesis actually issued (at most
// InitialShares).
type AssetRecord struct {
	ID                 AssetID
	Symbol             string
	Name               string
	Description        string
	IssuerAccountID    AccountID
	CurrentShareSupply int64
	MaximumShareSupply int64
	CollectedFees      int64
}

func (a AssetRecord) IsNull() bool { return a.Symbol == "" }

func (a AssetRecord) Encode() []byte {
	e := newEncoder()
	e.putUint64(uint64(a.ID))
	e.putString(a.Symbol)
	e.putString(a.Name)
	e.putString(a.Description)
	e.putUint64(uint64(a.IssuerAccountID))
	e.putInt64(a.CurrentShareSupply)
	e.putInt64(a.MaximumShareSupply)
	e.putInt64(a.CollectedFees)
	return e.bytes()
}

func DecodeAssetRecord(b []byte) (AssetRecord, error) {
	d := newDecoder(b)
	var a AssetRecord
	var err error

	var id uint64
	if id, err = d.getUint64(); err != nil {
		return AssetRecord{}, err
	}
	a.ID = AssetID(id)

	if a.Symbol, err = d.getString(); err != nil {
		return AssetRecord{}, err
	}
	if a.Name, err = d.getString(); err != nil {
		return AssetRecord{}, err
	}
	if a.Description, err = d.getString(); err != nil {
		return AssetRecord{}, err
	}

	var issuer uint64
	if issuer, err = d.getUint64(); err != nil {
		return AssetRecord{}, err
	}
	a.IssuerAccountID = AccountID(issuer)

	if a.CurrentShareSupply, err = d.getInt64(); err != nil {
		return AssetRecord{}, err
	}
	if a.MaximumShareSupply, err = d.getInt64(); err != nil {
		return AssetRecord{}, err
	}
	if a.CollectedFees, err = d.getInt64(); err != nil {
		return AssetRecord{}, err
	}
	if err := d.done(); err != nil {
		return AssetRecord{}, err
	}
	return a, nil
}
