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

package engine

import "github.com/erigontech/dpos-engine/chainconfig"

// emaShift sets the EMA weight shared by nextFee and nextDelegatePay: a new
// sample moves the rate 1/16th of the way from the previous rate toward the
// instantaneous value, damping block-to-block noise while still tracking
// sustained load. The weight is not named by spec.md beyond "deterministic EMA-style function"; this
// engine fixes them as a consensus-critical constant alongside
// chainconfig's others.
const emaShift = 4 // 1/16th

// nextFee computes the next block's fee_rate from the previous head's rate
// and the size of the block being applied/produced, biasing upward for
// blocks near chainconfig.MaxBlockSize and downward for small ones.
// Grounded on original_source's update_fee_rate EMA over recent block
// sizes.
func nextFee(prevRate int64, serializedSize int) int64 {
	target := int64(chainconfig.CeilDiv(serializedSize*1024, chainconfig.MaxBlockSize))
	if prevRate == 0 {
		return target
	}
	return prevRate + (target-prevRate)>>emaShift
}

// nextDelegatePay computes the next block's delegate_pay_rate from the
// previous rate and the fees collected in the block being produced, the
// same EMA shape as nextFee. Grounded on original_source's
// update_delegate_pay_rate.
func nextDelegatePay(prevRate int64, totalFees int64) int64 {
	if prevRate == 0 {
		return totalFees
	}
	return prevRate + (totalFees-prevRate)>>emaShift
}
