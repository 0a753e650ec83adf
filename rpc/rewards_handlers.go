package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"patronledger/core/types"
	"patronledger/native/rewards"
)

type rewardsDepositParams struct {
	From   string `json:"from"`
	Pool   string `json:"pool"`
	Amount string `json:"amount"`
}

type rewardsClaimParams struct {
	Pool        string `json:"pool"`
	Participant string `json:"participant"`
}

type rewardsPendingParams struct {
	Pool        string `json:"pool"`
	Participant string `json:"participant"`
}

type rewardsWeightChangeParams struct {
	Participant string   `json:"participant"`
	Pools       []string `json:"pools"`
	Delta       string   `json:"delta"`
	Forfeit     bool     `json:"forfeit,omitempty"`
}

type rewardsFundTreasuryParams struct {
	From            string `json:"from"`
	Amount          string `json:"amount"`
	DurationSeconds int64  `json:"durationSeconds"`
}

type rewardsPoolParams struct {
	Pool string `json:"pool"`
}

type rewardsBalanceParams struct {
	Address string `json:"address"`
}

type rewardsSettlementsParams struct {
	Limit int `json:"limit,omitempty"`
}

type rewardsClaimResult struct {
	Pool        string `json:"pool"`
	Participant string `json:"participant"`
	Amount      string `json:"amount"`
}

type rewardsPendingResult struct {
	Pool        string `json:"pool"`
	Participant string `json:"participant"`
	Pending     string `json:"pending"`
}

type rewardsPoolResult struct {
	ID             string `json:"id"`
	TotalWeight    string `json:"totalWeight"`
	TotalDeposited string `json:"totalDeposited"`
	TotalClaimed   string `json:"totalClaimed"`
	RewardPerShare string `json:"rewardPerShare"`
	Undistributed  string `json:"undistributed"`
	CreatedAt      int64  `json:"createdAt"`
}

type rewardsShareResult struct {
	Pool        string `json:"pool"`
	Participant string `json:"participant"`
	Weight      string `json:"weight"`
	Debt        string `json:"debt"`
	JoinedAt    int64  `json:"joinedAt"`
	LastClaimAt int64  `json:"lastClaimAt,omitempty"`
}

type rewardsSettleResult struct {
	Settled bool `json:"settled"`
}

type rewardsFoldResult struct {
	Pool   string `json:"pool"`
	Amount string `json:"amount"`
}

type rewardsSettlementResult struct {
	ID        string              `json:"id"`
	Group     string              `json:"group"`
	Epoch     uint64              `json:"epoch"`
	SettledAt int64               `json:"settledAt"`
	Withdrawn string              `json:"withdrawn"`
	Retained  string              `json:"retained"`
	Folds     []rewardsFoldResult `json:"folds"`
}

type rewardsEpochResult struct {
	Group              string `json:"group"`
	EpochDuration      int64  `json:"epochDuration"`
	LastDistributionAt int64  `json:"lastDistributionAt"`
	EpochsSettled      uint64 `json:"epochsSettled"`
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount is required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amount must be a base-10 integer")
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

func parseDelta(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("delta is required")
	}
	delta, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("delta must be a base-10 integer")
	}
	if delta.Sign() == 0 {
		return nil, fmt.Errorf("delta must be non-zero")
	}
	return delta, nil
}

// engineErrorCode distinguishes caller mistakes from server faults so clients
// can retry appropriately.
func engineErrorCode(err error) (int, int) {
	switch {
	case errors.Is(err, rewards.ErrInvalidPoolID),
		errors.Is(err, rewards.ErrInvalidAmount),
		errors.Is(err, rewards.ErrInvalidWeight),
		errors.Is(err, rewards.ErrPoolNotFound),
		errors.Is(err, rewards.ErrGroupNotFound),
		errors.Is(err, rewards.ErrStaleWeightChange),
		errors.Is(err, rewards.ErrPartialReconciliation),
		errors.Is(err, rewards.ErrInsufficientFunds),
		errors.Is(err, rewards.ErrSplitOverflow):
		return http.StatusBadRequest, codeInvalidParams
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

func writeEngineError(w http.ResponseWriter, id interface{}, context string, err error) {
	status, code := engineErrorCode(err)
	writeError(w, status, id, code, context, err.Error())
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func formatPool(pool *rewards.Pool) rewardsPoolResult {
	return rewardsPoolResult{
		ID:             pool.ID,
		TotalWeight:    bigString(pool.TotalWeight),
		TotalDeposited: bigString(pool.TotalDeposited),
		TotalClaimed:   bigString(pool.TotalClaimed),
		RewardPerShare: bigString(pool.RewardPerShare),
		Undistributed:  bigString(pool.Undistributed),
		CreatedAt:      pool.CreatedAt,
	}
}

func (s *Server) handleRewardsDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rewardsDepositParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	from, err := types.ParseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid from address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.Deposit(from, params.Pool, amount); err != nil {
		writeEngineError(w, req.ID, "failed to deposit", err)
		return
	}
	pool, err := s.node.Pool(params.Pool)
	if err != nil {
		writeEngineError(w, req.ID, "failed to load pool", err)
		return
	}
	writeResult(w, req.ID, formatPool(pool))
}

func (s *Server) handleRewardsClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rewardsClaimParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	participant, err := types.ParseAddress(params.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid participant address", err.Error())
		return
	}
	amount, err := s.node.Claim(params.Pool, participant)
	if err != nil {
		writeEngineError(w, req.ID, "failed to claim", err)
		return
	}
	writeResult(w, req.ID, rewardsClaimResult{
		Pool:        params.Pool,
		Participant: participant.String(),
		Amount:      bigString(amount),
	})
}

func (s *Server) handleRewardsWeightChange(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rewardsWeightChangeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	participant, err := types.ParseAddress(params.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid participant address", err.Error())
		return
	}
	if len(params.Pools) == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "at least one pool is required", nil)
		return
	}
	delta, err := parseDelta(params.Delta)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.WeightChange(participant, params.Pools, delta, params.Forfeit); err != nil {
		writeEngineError(w, req.ID, "failed to apply weight change", err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"participant": participant.String(),
		"pools":       params.Pools,
		"delta":       delta.String(),
	})
}

func (s *Server) handleRewardsFundTreasury(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rewardsFundTreasuryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	from, err := types.ParseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid from address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.DurationSeconds < 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "durationSeconds must not be negative", nil)
		return
	}
	if err := s.node.FundTreasury(from, amount, params.DurationSeconds); err != nil {
		writeEngineError(w, req.ID, "failed to fund treasury", err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"from":            from.String(),
		"amount":          amount.String(),
		"durationSeconds": params.DurationSeconds,
	})
}

func (s *Server) handleRewardsSettle(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	settled, err := s.node.Settle()
	if err != nil {
		writeEngineError(w, req.ID, "failed to settle", err)
		return
	}
	writeResult(w, req.ID, rewardsSettleResult{Settled: settled})
}

func (s *Server) handleRewardsPending(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rewardsPendingParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	participant, err := types.ParseAddress(params.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid participant address", err.Error())
		return
	}
	pending, err := s.node.Pending(params.Pool, participant)
	if err != nil {
		writeEngineError(w, req.ID, "failed to load pending", err)
		return
	}
	writeResult(w, req.ID, rewardsPendingResult{
		Pool:        params.Pool,
		Participant: participant.String(),
		Pending:     bigString(pending),
	})
}

func (s *Server) handleRewardsPreview(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rewardsPendingParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	participant, err := types.ParseAddress(params.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid participant address", err.Error())
		return
	}
	pending, err := s.node.PreviewPending(params.Pool, participant)
	if err != nil {
		writeEngineError(w, req.ID, "failed to preview pending", err)
		return
	}
	writeResult(w, req.ID, rewardsPendingResult{
		Pool:        params.Pool,
		Participant: participant.String(),
		Pending:     bigString(pending),
	})
}

func (s *Server) handleRewardsPool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rewardsPoolParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	pool, err := s.node.Pool(params.Pool)
	if err != nil {
		writeEngineError(w, req.ID, "failed to load pool", err)
		return
	}
	writeResult(w, req.ID, formatPool(pool))
}

func (s *Server) handleRewardsShare(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rewardsPendingParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	participant, err := types.ParseAddress(params.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid participant address", err.Error())
		return
	}
	share, ok, err := s.node.Share(params.Pool, participant)
	if err != nil {
		writeEngineError(w, req.ID, "failed to load share", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeInvalidParams, "no share record", nil)
		return
	}
	writeResult(w, req.ID, rewardsShareResult{
		Pool:        share.PoolID,
		Participant: participant.String(),
		Weight:      bigString(share.Weight),
		Debt:        bigString(share.Debt),
		JoinedAt:    share.JoinedAt,
		LastClaimAt: share.LastClaimAt,
	})
}

func (s *Server) handleRewardsBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rewardsBalanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	addr, err := types.ParseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		writeEngineError(w, req.ID, "failed to load balance", err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"address": addr.String(),
		"balance": bigString(balance),
	})
}

func (s *Server) handleRewardsSettlements(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	limit := 0
	if len(req.Params) == 1 {
		var params rewardsSettlementsParams
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
			return
		}
		limit = params.Limit
	}
	settlements, err := s.node.Settlements(limit)
	if err != nil {
		writeEngineError(w, req.ID, "failed to load settlements", err)
		return
	}
	results := make([]rewardsSettlementResult, len(settlements))
	for i, settlement := range settlements {
		folds := make([]rewardsFoldResult, len(settlement.Folds))
		for j, fold := range settlement.Folds {
			folds[j] = rewardsFoldResult{Pool: fold.PoolID, Amount: bigString(fold.Amount)}
		}
		results[i] = rewardsSettlementResult{
			ID:        settlement.ID,
			Group:     settlement.GroupID,
			Epoch:     settlement.Epoch,
			SettledAt: settlement.SettledAt,
			Withdrawn: bigString(settlement.Withdrawn),
			Retained:  bigString(settlement.Retained),
			Folds:     folds,
		}
	}
	writeResult(w, req.ID, results)
}

func (s *Server) handleRewardsEpoch(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	group, err := s.node.EpochGroup()
	if err != nil {
		writeEngineError(w, req.ID, "failed to load epoch group", err)
		return
	}
	writeResult(w, req.ID, rewardsEpochResult{
		Group:              group.ID,
		EpochDuration:      group.EpochDuration,
		LastDistributionAt: group.LastDistributionAt,
		EpochsSettled:      group.EpochsSettled,
	})
}
