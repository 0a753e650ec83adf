package state

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/rlp"

	"patronledger/core/types"
	"patronledger/native/rewards"
)

// Key layout. Pool identifiers are caller-chosen strings; the fixed-length hex
// participant suffix keeps share keys unambiguous.
func poolKey(id string) []byte {
	return []byte("rewards/pool/" + id)
}

func shareKey(poolID string, participant [20]byte) []byte {
	return []byte("rewards/share/" + poolID + "/" + hex.EncodeToString(participant[:]))
}

func groupKey(id string) []byte {
	return []byte("rewards/group/" + id)
}

func treasuryKey(id string) []byte {
	return []byte("rewards/treasury/" + id)
}

func settlementsKey(groupID string) []byte {
	return []byte("rewards/settlements/" + groupID)
}

func accountKey(addr []byte) []byte {
	return []byte("accounts/" + hex.EncodeToString(addr))
}

// RewardPoolGet loads a pool record.
func (tx *Tx) RewardPoolGet(id string) (*rewards.Pool, bool, error) {
	data, ok, err := tx.get(poolKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	var record poolRecord
	if err := rlp.DecodeBytes(data, &record); err != nil {
		return nil, false, err
	}
	return record.toPool(), true, nil
}

// RewardPoolPut stores a pool record.
func (tx *Tx) RewardPoolPut(pool *rewards.Pool) error {
	data, err := rlp.EncodeToBytes(toPoolRecord(pool))
	if err != nil {
		return err
	}
	return tx.put(poolKey(pool.ID), data)
}

// RewardShareGet loads a participant's share in a pool.
func (tx *Tx) RewardShareGet(poolID string, participant [20]byte) (*rewards.Share, bool, error) {
	data, ok, err := tx.get(shareKey(poolID, participant))
	if err != nil || !ok {
		return nil, false, err
	}
	var record shareRecord
	if err := rlp.DecodeBytes(data, &record); err != nil {
		return nil, false, err
	}
	return record.toShare(), true, nil
}

// RewardSharePut stores a share record.
func (tx *Tx) RewardSharePut(share *rewards.Share) error {
	data, err := rlp.EncodeToBytes(toShareRecord(share))
	if err != nil {
		return err
	}
	return tx.put(shareKey(share.PoolID, share.Participant), data)
}

// RewardShareDelete removes a share record once its weight reaches zero.
func (tx *Tx) RewardShareDelete(poolID string, participant [20]byte) error {
	return tx.delete(shareKey(poolID, participant))
}

// RewardEpochGroupGet loads an epoch group.
func (tx *Tx) RewardEpochGroupGet(id string) (*rewards.EpochGroup, bool, error) {
	data, ok, err := tx.get(groupKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	var record groupRecord
	if err := rlp.DecodeBytes(data, &record); err != nil {
		return nil, false, err
	}
	return record.toGroup(), true, nil
}

// RewardEpochGroupPut stores an epoch group.
func (tx *Tx) RewardEpochGroupPut(group *rewards.EpochGroup) error {
	data, err := rlp.EncodeToBytes(toGroupRecord(group))
	if err != nil {
		return err
	}
	return tx.put(groupKey(group.ID), data)
}

// RewardTreasuryGet loads a treasury record.
func (tx *Tx) RewardTreasuryGet(id string) (*rewards.Treasury, bool, error) {
	data, ok, err := tx.get(treasuryKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	var record treasuryRecord
	if err := rlp.DecodeBytes(data, &record); err != nil {
		return nil, false, err
	}
	return record.toTreasury(), true, nil
}

// RewardTreasuryPut stores a treasury record.
func (tx *Tx) RewardTreasuryPut(treasury *rewards.Treasury) error {
	data, err := rlp.EncodeToBytes(toTreasuryRecord(treasury))
	if err != nil {
		return err
	}
	return tx.put(treasuryKey(treasury.ID), data)
}

// RewardSettlementsGet loads the retained settlement history for a group.
func (tx *Tx) RewardSettlementsGet(groupID string) ([]*rewards.Settlement, error) {
	data, ok, err := tx.get(settlementsKey(groupID))
	if err != nil || !ok {
		return nil, err
	}
	var records []settlementRecord
	if err := rlp.DecodeBytes(data, &records); err != nil {
		return nil, err
	}
	settlements := make([]*rewards.Settlement, len(records))
	for i, record := range records {
		settlements[i] = record.toSettlement()
	}
	return settlements, nil
}

// RewardSettlementsPut stores the settlement history for a group.
func (tx *Tx) RewardSettlementsPut(groupID string, settlements []*rewards.Settlement) error {
	records := make([]settlementRecord, len(settlements))
	for i, settlement := range settlements {
		records[i] = toSettlementRecord(settlement)
	}
	data, err := rlp.EncodeToBytes(records)
	if err != nil {
		return err
	}
	return tx.put(settlementsKey(groupID), data)
}

// GetAccount loads the account for the address, returning nil when absent so
// callers can normalise.
func (tx *Tx) GetAccount(addr []byte) (*types.Account, error) {
	data, ok, err := tx.get(accountKey(addr))
	if err != nil || !ok {
		return nil, err
	}
	var record accountRecord
	if err := rlp.DecodeBytes(data, &record); err != nil {
		return nil, err
	}
	return record.toAccount(), nil
}

// PutAccount stores the account for the address.
func (tx *Tx) PutAccount(addr []byte, account *types.Account) error {
	data, err := rlp.EncodeToBytes(toAccountRecord(account))
	if err != nil {
		return err
	}
	return tx.put(accountKey(addr), data)
}
