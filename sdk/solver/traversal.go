package solver

import (
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lox/cfrsolve/sdk/game"
)

// TraversalStats captures instrumentation metrics for one iteration.
type TraversalStats struct {
	NodesVisited  int64         `json:"nodes_visited"`
	TerminalNodes int64         `json:"terminal_nodes"`
	ChanceNodes   int64         `json:"chance_nodes"`
	DecisionNodes int64         `json:"decision_nodes"`
	MaxDepth      int           `json:"max_depth"`
	IterationTime time.Duration `json:"iteration_time"`
}

func (s *TraversalStats) merge(o TraversalStats) {
	s.NodesVisited += o.NodesVisited
	s.TerminalNodes += o.TerminalNodes
	s.ChanceNodes += o.ChanceNodes
	s.DecisionNodes += o.DecisionNodes
	if o.MaxDepth > s.MaxDepth {
		s.MaxDepth = o.MaxDepth
	}
}

type nodeKind uint8

const (
	nodeTerminal nodeKind = iota
	nodeChance
	nodeDecision
)

// node is one frame of the explicit traversal stack.
type node struct {
	kind    nodeKind
	history game.History
	reach   Reach
	depth   int
	value   float64

	info    *InfoSet
	player  game.Player
	actions []game.Action
	// probs holds the chance distribution or the acting player's strategy.
	probs  []float64
	values []float64
	next   int
}

func (n *node) actor() game.Player {
	if n.kind == nodeChance {
		return game.Chance
	}
	return n.player
}

// sink receives the accumulator increments produced at decision nodes.
type sink interface {
	apply(info *InfoSet, regret, mass []float64) error
	// observe records instantaneous regrets that are folded in after the pass.
	observe(info *InfoSet, regret []float64, reach float64)
}

// tableSink writes increments straight into the shared table.
type tableSink struct{}

func (tableSink) apply(info *InfoSet, regret, mass []float64) error {
	return info.accumulate(regret, mass)
}

func (tableSink) observe(info *InfoSet, regret []float64, reach float64) {
	info.observe(regret, reach)
}

// deltaSink buffers a worker's increments so they can be merged into the
// table in a fixed order once every worker has finished.
type deltaSink struct {
	order  []*InfoSet
	deltas map[*InfoSet]*delta
}

type delta struct {
	regret    []float64
	mass      []float64
	hasRegret bool

	instant  []float64
	reach    float64
	observed bool
}

func newDeltaSink() *deltaSink {
	return &deltaSink{deltas: make(map[*InfoSet]*delta)}
}

func (s *deltaSink) entry(info *InfoSet) *delta {
	d, ok := s.deltas[info]
	if !ok {
		n := len(info.Actions)
		d = &delta{regret: make([]float64, n), mass: make([]float64, n)}
		s.deltas[info] = d
		s.order = append(s.order, info)
	}
	return d
}

func (s *deltaSink) observe(info *InfoSet, regret []float64, reach float64) {
	d := s.entry(info)
	if d.instant == nil {
		d.instant = make([]float64, len(regret))
	}
	for i, r := range regret {
		d.instant[i] += r
	}
	d.reach = reach
	d.observed = true
}

func (s *deltaSink) apply(info *InfoSet, regret, mass []float64) error {
	d := s.entry(info)
	if regret != nil {
		d.hasRegret = true
		for i, r := range regret {
			d.regret[i] += r
		}
	}
	for i, m := range mass {
		d.mass[i] += m
	}
	return nil
}

func (s *deltaSink) flush() error {
	for _, info := range s.order {
		d := s.deltas[info]
		if d.observed {
			info.observe(d.instant, d.reach)
		}
		var regret []float64
		if d.hasRegret {
			regret = d.regret
		}
		if err := info.accumulate(regret, d.mass); err != nil {
			return err
		}
	}
	return nil
}

// passParams describes one traversal for one (player, iteration) pair.
type passParams struct {
	updating game.Player
	epoch    int64
	// weight scales the average-strategy increments of this pass.
	weight  float64
	workers int
	// exponential defers the updating player's increments to the fold that
	// follows the pass and skips every other average-strategy increment.
	exponential bool
}

// traverser walks the game tree depth first with an explicit stack, so the
// native call stack stays flat no matter how deep the game is.
type traverser struct {
	check   *contractChecker
	table   *InfoSetTable
	players int
	params  passParams
	sink    sink
	stats   TraversalStats

	stack     []node
	regretBuf []float64
	massBuf   []float64
}

func newTraverser(check *contractChecker, table *InfoSetTable, params passParams, s sink) *traverser {
	return &traverser{
		check:   check,
		table:   table,
		players: check.players,
		params:  params,
		sink:    s,
	}
}

// expand queries the game about h and builds its frame. Terminal frames carry
// the updating player's utility; the others carry their child distribution.
func (t *traverser) expand(h game.History, reach Reach, depth int) (node, error) {
	t.stats.NodesVisited++
	if depth > t.stats.MaxDepth {
		t.stats.MaxDepth = depth
	}

	n := node{history: h, reach: reach, depth: depth}
	g := t.check.game
	switch {
	case g.IsTerminal(h):
		t.stats.TerminalNodes++
		u, err := t.check.utility(h, t.params.updating)
		n.kind = nodeTerminal
		n.value = u
		return n, err

	case g.IsChance(h):
		t.stats.ChanceNodes++
		outcomes, err := t.check.chanceOutcomes(h)
		if err != nil {
			return n, err
		}
		n.kind = nodeChance
		n.actions = make([]game.Action, len(outcomes))
		n.probs = make([]float64, len(outcomes))
		for i, o := range outcomes {
			n.actions[i] = o.Action
			n.probs[i] = o.Probability
		}
		return n, nil

	default:
		t.stats.DecisionNodes++
		p, err := t.check.actingPlayer(h)
		if err != nil {
			return n, err
		}
		actions, err := t.check.legalActions(h)
		if err != nil {
			return n, err
		}
		id := g.InfoSetID(h, p)
		info, err := t.table.GetOrCreate(id, p, actions)
		if err != nil {
			return n, withHistory(err, h)
		}
		n.kind = nodeDecision
		n.info = info
		n.player = p
		n.actions = info.Actions
		n.probs = info.strategyAt(t.params.epoch)
		return n, nil
	}
}

// push places n on the stack, recycling the value buffer of a frame that
// previously occupied the slot.
func (t *traverser) push(n node) {
	k := len(t.stack)
	if k < cap(t.stack) {
		n.values = resize(t.stack[:k+1][k].values, len(n.actions))
	} else {
		n.values = make([]float64, len(n.actions))
	}
	t.stack = append(t.stack, n)
}

// run evaluates the subtree rooted at h and returns its value for the
// updating player.
func (t *traverser) run(h game.History, reach Reach, depth int) (float64, error) {
	root, err := t.expand(h, reach, depth)
	if err != nil {
		return 0, err
	}
	if root.kind == nodeTerminal {
		return root.value, nil
	}

	t.stack = t.stack[:0]
	t.push(root)
	for {
		top := &t.stack[len(t.stack)-1]
		if top.next < len(top.actions) {
			i := top.next
			top.next++
			child, err := t.expand(
				top.history.Extend(top.actions[i]),
				top.reach.Scale(top.actor(), top.probs[i]),
				top.depth+1,
			)
			if err != nil {
				return 0, err
			}
			if child.kind == nodeTerminal {
				top.values[i] = child.value
				continue
			}
			t.push(child)
			continue
		}

		v, err := t.finish(top)
		if err != nil {
			return 0, err
		}
		t.stack = t.stack[:len(t.stack)-1]
		if len(t.stack) == 0 {
			return v, nil
		}
		parent := &t.stack[len(t.stack)-1]
		parent.values[parent.next-1] = v
	}
}

// finish combines child values once every child of n has been evaluated and,
// at decision nodes, emits the regret and average-strategy increments.
func (t *traverser) finish(n *node) (float64, error) {
	v := 0.0
	for i, p := range n.probs {
		v += p * n.values[i]
	}
	if n.kind == nodeChance {
		return v, nil
	}

	var regret []float64
	if n.player == t.params.updating {
		cf := n.reach.Excluding(t.params.updating, t.players)
		t.regretBuf = resize(t.regretBuf, len(n.values))
		regret = t.regretBuf
		for i, cv := range n.values {
			regret[i] = cf * (cv - v)
		}
	}
	if t.params.exponential {
		if regret != nil {
			t.sink.observe(n.info, regret, n.reach.Of(n.player))
		}
		return v, nil
	}

	own := n.reach.Of(n.player) * t.params.weight
	t.massBuf = resize(t.massBuf, len(n.probs))
	for i, p := range n.probs {
		t.massBuf[i] = own * p
	}

	if err := t.sink.apply(n.info, regret, t.massBuf); err != nil {
		return 0, withHistory(err, n.history)
	}
	return v, nil
}

// runPass performs one complete traversal for params.updating and returns the
// root value for that player. With more than one worker the root's children
// are split into contiguous chunks evaluated concurrently; each worker buffers
// its increments and the buffers are merged in chunk order afterwards.
func runPass(check *contractChecker, table *InfoSetTable, params passParams) (float64, TraversalStats, error) {
	lead := newTraverser(check, table, params, tableSink{})
	if params.workers <= 1 {
		v, err := lead.run(game.Root(), rootReach(), 0)
		return v, lead.stats, err
	}

	root, err := lead.expand(game.Root(), rootReach(), 0)
	if err != nil {
		return 0, lead.stats, err
	}
	if root.kind == nodeTerminal {
		return root.value, lead.stats, nil
	}

	root.values = make([]float64, len(root.actions))
	chunks := splitRange(len(root.actions), params.workers)
	sinks := make([]*deltaSink, len(chunks))
	stats := make([]TraversalStats, len(chunks))

	var g errgroup.Group
	for w, ch := range chunks {
		sinks[w] = newDeltaSink()
		g.Go(func() error {
			worker := newTraverser(check, table, params, sinks[w])
			defer func() { stats[w] = worker.stats }()
			for i := ch[0]; i < ch[1]; i++ {
				v, err := worker.run(
					root.history.Extend(root.actions[i]),
					root.reach.Scale(root.actor(), root.probs[i]),
					1,
				)
				if err != nil {
					return err
				}
				root.values[i] = v
			}
			return nil
		})
	}
	waitErr := g.Wait()

	total := lead.stats
	for _, s := range stats {
		total.merge(s)
	}
	if waitErr != nil {
		return 0, total, waitErr
	}

	for _, s := range sinks {
		if err := s.flush(); err != nil {
			return 0, total, err
		}
	}
	root.next = len(root.actions)
	v, err := lead.finish(&root)
	return v, total, err
}

// splitRange divides [0,n) into at most parts contiguous, non-empty chunks.
func splitRange(n, parts int) [][2]int {
	if parts > n {
		parts = n
	}
	out := make([][2]int, 0, parts)
	size, extra := n/parts, n%parts
	lo := 0
	for i := 0; i < parts; i++ {
		hi := lo + size
		if i < extra {
			hi++
		}
		out = append(out, [2]int{lo, hi})
		lo = hi
	}
	return out
}

func resize(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}

func withHistory(err error, h game.History) error {
	var te *TraversalError
	if errors.As(err, &te) && te.History == nil {
		te.History = h
	}
	return err
}
