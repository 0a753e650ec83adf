package rewards

import "math/big"

// TreasuryBridge exposes the time-released payment mechanism feeding a pool
// group. Available reports the balance releasable right now; Withdraw moves it
// into the settlement-ready balance and returns the moved amount. Both follow
// the release schedule of the underlying escrow, capped at its total deposits.
type TreasuryBridge interface {
	Available(now int64) (*big.Int, error)
	Withdraw(now int64) (*big.Int, error)
}

// Stream is a single linear time-release escrow entry. Value unlocks
// proportionally to elapsed time over DurationSeconds; a zero duration unlocks
// immediately.
type Stream struct {
	Total           *big.Int `json:"total"`
	StartAt         int64    `json:"startAt"`
	DurationSeconds int64    `json:"durationSeconds"`
}

// Treasury accumulates release streams for one epoch group. DepositedTotal and
// WithdrawnTotal only grow; the currently available balance is derived from the
// per-stream release schedule.
type Treasury struct {
	ID             string   `json:"id"`
	DepositedTotal *big.Int `json:"depositedTotal"`
	WithdrawnTotal *big.Int `json:"withdrawnTotal"`
	Streams        []Stream `json:"streams"`
}

// NewTreasury constructs an empty treasury for the supplied group.
func NewTreasury(id string) *Treasury {
	return &Treasury{
		ID:             id,
		DepositedTotal: big.NewInt(0),
		WithdrawnTotal: big.NewInt(0),
	}
}

// Clone returns a deep copy of the treasury.
func (t *Treasury) Clone() *Treasury {
	if t == nil {
		return nil
	}
	clone := *t
	clone.DepositedTotal = copyBigInt(t.DepositedTotal)
	clone.WithdrawnTotal = copyBigInt(t.WithdrawnTotal)
	clone.Streams = make([]Stream, len(t.Streams))
	for i, stream := range t.Streams {
		clone.Streams[i] = Stream{
			Total:           copyBigInt(stream.Total),
			StartAt:         stream.StartAt,
			DurationSeconds: stream.DurationSeconds,
		}
	}
	return &clone
}

func (t *Treasury) normalize() {
	t.DepositedTotal = normalizeBig(t.DepositedTotal)
	t.WithdrawnTotal = normalizeBig(t.WithdrawnTotal)
}

// AddStream registers a new release stream and grows the deposited total.
func (t *Treasury) AddStream(total *big.Int, startAt, durationSeconds int64) error {
	if total == nil || total.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	t.normalize()
	t.DepositedTotal = new(big.Int).Add(t.DepositedTotal, total)
	t.Streams = append(t.Streams, Stream{
		Total:           new(big.Int).Set(total),
		StartAt:         startAt,
		DurationSeconds: durationSeconds,
	})
	return nil
}

// Released returns the cumulative value unlocked across all streams at now.
func (t *Treasury) Released(now int64) *big.Int {
	released := big.NewInt(0)
	if t == nil {
		return released
	}
	for _, stream := range t.Streams {
		if stream.Total == nil || stream.Total.Sign() <= 0 {
			continue
		}
		elapsed := now - stream.StartAt
		if elapsed <= 0 {
			continue
		}
		if stream.DurationSeconds <= 0 || elapsed >= stream.DurationSeconds {
			released.Add(released, stream.Total)
			continue
		}
		unlocked := new(big.Int).Mul(stream.Total, big.NewInt(elapsed))
		unlocked.Quo(unlocked, big.NewInt(stream.DurationSeconds))
		released.Add(released, unlocked)
	}
	return released
}

// Available returns the released value not yet withdrawn.
func (t *Treasury) Available(now int64) *big.Int {
	if t == nil {
		return big.NewInt(0)
	}
	t.normalize()
	available := t.Released(now)
	available.Sub(available, t.WithdrawnTotal)
	if available.Sign() < 0 {
		return big.NewInt(0)
	}
	return available
}

type treasuryState interface {
	RewardTreasuryGet(id string) (*Treasury, bool, error)
	RewardTreasuryPut(treasury *Treasury) error
}

// StreamTreasury adapts a persisted Treasury record to the TreasuryBridge
// interface. All reads and writes go through the enclosing state transaction,
// so a withdraw observed by one settlement cannot be re-folded by a concurrent
// one.
type StreamTreasury struct {
	state treasuryState
	id    string
}

// NewStreamTreasury binds a bridge to the treasury record with the given id.
func NewStreamTreasury(state treasuryState, id string) *StreamTreasury {
	return &StreamTreasury{state: state, id: id}
}

func (s *StreamTreasury) load() (*Treasury, error) {
	if s == nil || s.state == nil {
		return nil, ErrNilState
	}
	treasury, ok, err := s.state.RewardTreasuryGet(s.id)
	if err != nil {
		return nil, err
	}
	if !ok || treasury == nil {
		treasury = NewTreasury(s.id)
	}
	return treasury, nil
}

// Available implements TreasuryBridge.
func (s *StreamTreasury) Available(now int64) (*big.Int, error) {
	treasury, err := s.load()
	if err != nil {
		return nil, err
	}
	return treasury.Available(now), nil
}

// Withdraw implements TreasuryBridge.
func (s *StreamTreasury) Withdraw(now int64) (*big.Int, error) {
	treasury, err := s.load()
	if err != nil {
		return nil, err
	}
	amount := treasury.Available(now)
	if amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	treasury.WithdrawnTotal = new(big.Int).Add(treasury.WithdrawnTotal, amount)
	if err := s.state.RewardTreasuryPut(treasury); err != nil {
		return nil, err
	}
	return amount, nil
}

// Fund registers a new release stream on the persisted treasury record.
func (s *StreamTreasury) Fund(total *big.Int, startAt, durationSeconds int64) error {
	treasury, err := s.load()
	if err != nil {
		return err
	}
	if err := treasury.AddStream(total, startAt, durationSeconds); err != nil {
		return err
	}
	return s.state.RewardTreasuryPut(treasury)
}
