package solver

import (
	"math"
	"sort"
	"sync"

	"github.com/lox/cfrsolve/sdk/game"
)

// InfoSet accumulates regrets and strategy mass for one information set.
// Values are kept in slices indexed like Actions to avoid map churn during
// traversals.
type InfoSet struct {
	ID          string
	Index       int
	Player      game.Player
	Actions     []game.Action
	RegretSum   []float64
	StrategySum []float64
	// WeightSum is the per-action denominator of the average strategy under
	// exponential weighting. It is nil for every other averaging mode.
	WeightSum []float64

	mu      sync.Mutex
	current []float64
	epoch   int64

	// instant and reach collect one pass worth of regret and own reach for
	// exponential weighting until the pass is folded in.
	instant  []float64
	reach    float64
	observed bool
}

func newInfoSet(id string, index int, player game.Player, actions []game.Action, weighted bool) *InfoSet {
	n := len(actions)
	e := &InfoSet{
		ID:          id,
		Index:       index,
		Player:      player,
		Actions:     append([]game.Action(nil), actions...),
		RegretSum:   make([]float64, n),
		StrategySum: make([]float64, n),
		epoch:       -1,
	}
	if weighted {
		e.WeightSum = make([]float64, n)
	}
	return e
}

// strategyAt returns the regret-matching strategy for the given epoch. It is
// computed from the regrets on the first request of each epoch and reused for
// the rest of it, so updates made during a pass never leak into strategies
// read later in the same pass. The returned slice must not be modified.
func (e *InfoSet) strategyAt(epoch int64) []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || e.epoch != epoch {
		e.current = RegretMatching(e.RegretSum, e.current)
		e.epoch = epoch
	}
	return e.current
}

// Strategy returns the current regret-matching distribution for the node.
func (e *InfoSet) Strategy() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return RegretMatching(e.RegretSum, nil)
}

// AverageStrategy returns the normalised average strategy for the node.
func (e *InfoSet) AverageStrategy() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.WeightSum == nil {
		return normalise(e.StrategySum)
	}
	ratio := make([]float64, len(e.StrategySum))
	for i, w := range e.WeightSum {
		if w > 0 {
			ratio[i] = e.StrategySum[i] / w
		}
	}
	return normalise(ratio)
}

// observe adds one history's instantaneous regrets to the pending pass totals
// and records the owner's reach, which perfect recall makes identical for
// every history in the set.
func (e *InfoSet) observe(regret []float64, reach float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.instant) != len(regret) {
		e.instant = make([]float64, len(regret))
	}
	for i, r := range regret {
		e.instant[i] += r
	}
	e.reach = reach
	e.observed = true
}

// foldExponential applies the pending instantaneous regrets weighted by
// L1(a) = exp(r(a) - mean(r)) and adds the L1 weighted strategy of the pass
// to the average numerator and denominator. Negative instantaneous regrets
// are limited to beta before weighting.
func (e *InfoSet) foldExponential(beta float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.observed {
		return nil
	}
	if e.WeightSum == nil {
		e.WeightSum = make([]float64, len(e.Actions))
	}
	strategy := e.current
	if strategy == nil {
		strategy = RegretMatching(e.RegretSum, nil)
	}

	mean := 0.0
	for _, r := range e.instant {
		mean += r
	}
	mean /= float64(len(e.instant))

	for i, r := range e.instant {
		l1 := math.Exp(r - mean)
		if r >= 0 {
			e.RegretSum[i] += l1 * r
		} else {
			e.RegretSum[i] += l1 * max(r, beta)
		}
		e.StrategySum[i] += l1 * e.reach * strategy[i]
		e.WeightSum[i] += l1 * e.reach
		e.instant[i] = 0
	}
	e.reach = 0
	e.observed = false
	return e.checkFinite()
}

// accumulate adds regret and strategy-mass increments. A nil regret slice
// leaves regrets untouched.
func (e *InfoSet) accumulate(regret, mass []float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range regret {
		e.RegretSum[i] += r
	}
	for i, m := range mass {
		e.StrategySum[i] += m
	}
	return e.checkFinite()
}

// discount scales positive regrets, negative regrets and strategy mass.
func (e *InfoSet) discount(positive, negative, mass float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.RegretSum {
		if r > 0 {
			e.RegretSum[i] = r * positive
		} else {
			e.RegretSum[i] = r * negative
		}
	}
	for i := range e.StrategySum {
		e.StrategySum[i] *= mass
	}
	return e.checkFinite()
}

func (e *InfoSet) clampRegrets() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clampNegative(e.RegretSum)
}

func (e *InfoSet) checkFinite() error {
	for i, r := range e.RegretSum {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return unstable(e.ID, "regret for action %q is %v", e.Actions[i], r)
		}
	}
	for i, m := range e.StrategySum {
		if math.IsNaN(m) || math.IsInf(m, 0) {
			return unstable(e.ID, "strategy mass for action %q is %v", e.Actions[i], m)
		}
	}
	for i, w := range e.WeightSum {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return unstable(e.ID, "strategy weight for action %q is %v", e.Actions[i], w)
		}
	}
	return nil
}

func (e *InfoSet) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.RegretSum {
		e.RegretSum[i] = 0
		e.StrategySum[i] = 0
	}
	for i := range e.WeightSum {
		e.WeightSum[i] = 0
	}
	e.instant = nil
	e.reach = 0
	e.observed = false
	e.current = nil
	e.epoch = -1
}

func (e *InfoSet) sameActions(actions []game.Action) bool {
	if len(actions) != len(e.Actions) {
		return false
	}
	for i, a := range actions {
		if e.Actions[i] != a {
			return false
		}
	}
	return true
}

const infoSetShardCount = 64
const infoSetShardMask = infoSetShardCount - 1

type infoSetShard struct {
	mu      sync.RWMutex
	entries map[string]*InfoSet
}

// InfoSetTable maps information-set identifiers to their accumulators. Lookups
// go through sharded maps so parallel workers can share the table; entries
// also live in an arena that assigns each a stable index in creation order.
type InfoSetTable struct {
	shards  [infoSetShardCount]infoSetShard
	arenaMu sync.RWMutex
	arena   []*InfoSet
	// weighted entries carry a WeightSum denominator.
	weighted bool
}

// NewInfoSetTable returns an empty table ready for use.
func NewInfoSetTable() *InfoSetTable {
	table := &InfoSetTable{}
	for i := 0; i < infoSetShardCount; i++ {
		table.shards[i].entries = make(map[string]*InfoSet)
	}
	return table
}

// GetOrCreate returns the entry for id, creating zero-initialised accumulators
// on first access. Later accesses must present the same owner and the same
// ordered action set, otherwise ErrContractViolation is returned.
func (t *InfoSetTable) GetOrCreate(id string, player game.Player, actions []game.Action) (*InfoSet, error) {
	shard := t.shardFor(id)

	shard.mu.RLock()
	entry, ok := shard.entries[id]
	shard.mu.RUnlock()
	if ok {
		return entry, verifyEntry(entry, player, actions)
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if entry, ok = shard.entries[id]; ok {
		return entry, verifyEntry(entry, player, actions)
	}

	t.arenaMu.Lock()
	entry = newInfoSet(id, len(t.arena), player, actions, t.weighted)
	t.arena = append(t.arena, entry)
	t.arenaMu.Unlock()

	shard.entries[id] = entry
	return entry, nil
}

func verifyEntry(entry *InfoSet, player game.Player, actions []game.Action) error {
	if entry.Player != player {
		return violation(entry.ID, nil, "infoset owned by %s queried for %s", entry.Player, player)
	}
	if !entry.sameActions(actions) {
		return violation(entry.ID, nil, "action set %v differs from recorded %v", actions, entry.Actions)
	}
	return nil
}

// Lookup returns the entry for id without creating it.
func (t *InfoSetTable) Lookup(id string) (*InfoSet, bool) {
	shard := t.shardFor(id)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	entry, ok := shard.entries[id]
	return entry, ok
}

// At returns the entry with the given arena index.
func (t *InfoSetTable) At(index int) *InfoSet {
	t.arenaMu.RLock()
	defer t.arenaMu.RUnlock()
	return t.arena[index]
}

// Size returns the number of info sets tracked.
func (t *InfoSetTable) Size() int {
	t.arenaMu.RLock()
	defer t.arenaMu.RUnlock()
	return len(t.arena)
}

// Entries returns the entries in creation order.
func (t *InfoSetTable) Entries() []*InfoSet {
	t.arenaMu.RLock()
	defer t.arenaMu.RUnlock()
	return append([]*InfoSet(nil), t.arena...)
}

// Sorted returns the entries ordered by identifier, which is stable across runs
// regardless of the order information sets were discovered in.
func (t *InfoSetTable) Sorted() []*InfoSet {
	out := t.Entries()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reset zeroes every regret and accumulator while keeping the entries.
func (t *InfoSetTable) Reset() {
	for _, e := range t.Entries() {
		e.reset()
	}
}

func (t *InfoSetTable) discount(positive, negative, mass float64) error {
	for _, e := range t.Entries() {
		if err := e.discount(positive, negative, mass); err != nil {
			return err
		}
	}
	return nil
}

// clampRegrets zeroes the negative cumulative regrets of every information set
// owned by player.
func (t *InfoSetTable) clampRegrets(player game.Player) {
	for _, e := range t.Entries() {
		if e.Player == player {
			e.clampRegrets()
		}
	}
}

// foldExponential folds the pending pass of every information set owned by
// player into its accumulators.
func (t *InfoSetTable) foldExponential(player game.Player, beta float64) error {
	for _, e := range t.Entries() {
		if e.Player != player {
			continue
		}
		if err := e.foldExponential(beta); err != nil {
			return err
		}
	}
	return nil
}

// insert adds a fully populated entry, used when restoring checkpoints.
func (t *InfoSetTable) insert(entry *InfoSet) {
	shard := t.shardFor(entry.ID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	t.arenaMu.Lock()
	entry.Index = len(t.arena)
	t.arena = append(t.arena, entry)
	t.arenaMu.Unlock()
	shard.entries[entry.ID] = entry
}

func (t *InfoSetTable) shardFor(key string) *infoSetShard {
	h := hashKey(key)
	return &t.shards[h&infoSetShardMask]
}

func hashKey(key string) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619
	var hash uint32 = offset32
	for i := 0; i < len(key); i++ {
		hash ^= uint32(key[i])
		hash *= prime32
	}
	return hash
}
