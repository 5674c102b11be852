// Package graph implements the custom/graph-built strategy DSL (spec.md
// §4.2's "graph-built or custom" catalog entry): a DAG of typed nodes that
// compiles to the same signal.Generator interface the hand-coded strategies
// implement, so the simulator and optimizers never know whether a Kind came
// from Go code or from a graph.
//
// Every node produces one of two port types — a float64 series or a bool
// series — and is evaluated once per Generate call, in topological order,
// over the whole series at once. A node never reads another node's output
// past its own index, so the no-look-ahead invariant (spec.md §8 property 9)
// holds as long as every node implementation only looks backward.
package graph

import (
	"fmt"

	"github.com/chidi150c/stratester/bar"
	"github.com/chidi150c/stratester/errs"
	"github.com/chidi150c/stratester/indicator"
	"github.com/chidi150c/stratester/signal"
)

// PortKind distinguishes the two value shapes a node can produce.
type PortKind int

const (
	PortFloat PortKind = iota
	PortBool
)

// NodeType names the operation a Node performs.
type NodeType string

const (
	NodePrice      NodeType = "price"       // Params["field_code"]: PriceField code for open/high/low/close/volume
	NodeConst      NodeType = "const"       // Params["value"]
	NodeSMA        NodeType = "sma"         // Params["period"]; Inputs[0] float
	NodeEMA        NodeType = "ema"         // Params["period"]; Inputs[0] float
	NodeRSI        NodeType = "rsi"         // Params["period"]; Inputs[0] float
	NodeCrossAbove NodeType = "cross_above" // Inputs[0], Inputs[1] float -> bool
	NodeCrossBelow NodeType = "cross_below" // Inputs[0], Inputs[1] float -> bool
	NodeGT         NodeType = "gt"          // Inputs[0] > Inputs[1], float -> bool
	NodeLT         NodeType = "lt"          // Inputs[0] < Inputs[1], float -> bool
	NodeAnd        NodeType = "and"         // Inputs[0] && Inputs[1], bool -> bool
	NodeOr         NodeType = "or"          // Inputs[0] || Inputs[1], bool -> bool
	NodeNot        NodeType = "not"         // !Inputs[0], bool -> bool
)

// Node is one vertex of the graph. ID must be unique within a Graph; Inputs
// names the IDs this node reads from, in positional order.
type Node struct {
	ID     string
	Type   NodeType
	Inputs []string
	Params map[string]float64
}

// Graph is a strategy expressed as a DAG of Nodes plus the node IDs whose
// output feeds each of the four signal streams. Output IDs for the short
// side may be empty, matching signal.Result's "absent stream is all-false"
// convention.
type Graph struct {
	Nodes          []Node
	LongEntryNode  string
	LongExitNode   string
	ShortEntryNode string
	ShortExitNode  string
}

func (g Graph) nodeByID() (map[string]Node, error) {
	m := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := m[n.ID]; dup {
			return nil, errs.NewConfigError("graph: duplicate node id %q", n.ID)
		}
		m[n.ID] = n
	}
	return m, nil
}

// Compile builds a signal.Generator from a fixed Graph, validating it once
// up front (cycle/reference checks) so Generate can assume the graph is
// well-formed.
func Compile(kind signal.Kind, g Graph) (signal.Generator, error) {
	byID, err := g.nodeByID()
	if err != nil {
		return nil, err
	}
	order, err := orderFor(g, byID)
	if err != nil {
		return nil, err
	}
	for _, required := range []string{g.LongEntryNode, g.LongExitNode} {
		if required == "" {
			return nil, errs.NewConfigError("graph: long_entry and long_exit output nodes are required")
		}
		if _, ok := byID[required]; !ok {
			return nil, errs.NewConfigError("graph: output node %q not found", required)
		}
	}
	return &compiled{kind: kind, graph: g, byID: byID, order: order}, nil
}

// orderFor computes a deterministic topological order over the nodes
// declared in g.Nodes, visiting them in declaration order so two
// structurally identical graphs always evaluate identically.
func orderFor(g Graph, byID map[string]Node) ([]string, error) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(byID))
	order := make([]string, 0, len(byID))

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return errs.NewConfigError("graph: cycle detected at node %q", id)
		}
		n, ok := byID[id]
		if !ok {
			return errs.NewConfigError("graph: reference to unknown node %q", id)
		}
		color[id] = gray
		for _, dep := range n.Inputs {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		order = append(order, id)
		return nil
	}

	for _, n := range g.Nodes {
		if err := visit(n.ID); err != nil {
			return nil, err
		}
	}
	return order, nil
}

type compiled struct {
	kind  signal.Kind
	graph Graph
	byID  map[string]Node
	order []string
}

func (c *compiled) Kind() signal.Kind { return c.kind }

func (c *compiled) Validate(p signal.Params) error {
	for _, n := range c.graph.Nodes {
		if n.Type == NodeSMA || n.Type == NodeEMA || n.Type == NodeRSI {
			if int(n.Params["period"]) <= 0 {
				return errs.NewConfigError("graph: node %q period must be > 0", n.ID)
			}
		}
	}
	return nil
}

// value holds one node's evaluated output; exactly one of float/boole is
// set, selected by kind.
type value struct {
	kind  PortKind
	float []float64
	boole []bool
}

func (c *compiled) Generate(series bar.Series, p signal.Params) (signal.Result, error) {
	if err := c.Validate(p); err != nil {
		return signal.Result{}, err
	}
	closes := series.Closes()
	highs, lows, _ := series.HighsLowsCloses()
	n := len(closes)

	values := make(map[string]value, len(c.byID))

	opens := make([]float64, n)
	volumes := make([]float64, n)
	for i, cd := range series.Candles {
		opens[i] = cd.Open
		volumes[i] = cd.Volume
	}

	for _, id := range c.order {
		node := c.byID[id]
		v, err := c.eval(node, values, opens, highs, lows, closes, volumes, n)
		if err != nil {
			return signal.Result{}, err
		}
		values[id] = v
	}

	res := signal.Result{}
	if v, ok := values[c.graph.LongEntryNode]; ok {
		res.LongEntries = v.boole
	}
	if v, ok := values[c.graph.LongExitNode]; ok {
		res.LongExits = v.boole
	}
	if c.graph.ShortEntryNode != "" {
		if v, ok := values[c.graph.ShortEntryNode]; ok {
			res.ShortEntries = v.boole
		}
	}
	if c.graph.ShortExitNode != "" {
		if v, ok := values[c.graph.ShortExitNode]; ok {
			res.ShortExits = v.boole
		}
	}
	return res, nil
}

func (c *compiled) eval(node Node, values map[string]value, opens, highs, lows, closes, volumes []float64, n int) (value, error) {
	floatIn := func(i int) []float64 {
		return values[node.Inputs[i]].float
	}
	boolIn := func(i int) []bool {
		return values[node.Inputs[i]].boole
	}

	switch node.Type {
	case NodePrice:
		field, _ := node.Params["field_code"]
		switch int(field) {
		case fieldOpen:
			return value{kind: PortFloat, float: opens}, nil
		case fieldHigh:
			return value{kind: PortFloat, float: highs}, nil
		case fieldLow:
			return value{kind: PortFloat, float: lows}, nil
		case fieldVolume:
			return value{kind: PortFloat, float: volumes}, nil
		default:
			return value{kind: PortFloat, float: closes}, nil
		}
	case NodeConst:
		out := make([]float64, n)
		v := node.Params["value"]
		for i := range out {
			out[i] = v
		}
		return value{kind: PortFloat, float: out}, nil
	case NodeSMA:
		period := int(node.Params["period"])
		return value{kind: PortFloat, float: indicator.SMA(floatIn(0), period)}, nil
	case NodeEMA:
		period := int(node.Params["period"])
		return value{kind: PortFloat, float: indicator.EMA(floatIn(0), period)}, nil
	case NodeRSI:
		period := int(node.Params["period"])
		return value{kind: PortFloat, float: indicator.RSI(floatIn(0), period)}, nil
	case NodeCrossAbove:
		return value{kind: PortBool, boole: indicator.CrossAbove(floatIn(0), floatIn(1))}, nil
	case NodeCrossBelow:
		return value{kind: PortBool, boole: indicator.CrossBelow(floatIn(0), floatIn(1))}, nil
	case NodeGT:
		a, b := floatIn(0), floatIn(1)
		out := make([]bool, len(a))
		for i := range out {
			out[i] = a[i] > b[i]
		}
		return value{kind: PortBool, boole: out}, nil
	case NodeLT:
		a, b := floatIn(0), floatIn(1)
		out := make([]bool, len(a))
		for i := range out {
			out[i] = a[i] < b[i]
		}
		return value{kind: PortBool, boole: out}, nil
	case NodeAnd:
		a, b := boolIn(0), boolIn(1)
		out := make([]bool, len(a))
		for i := range out {
			out[i] = a[i] && b[i]
		}
		return value{kind: PortBool, boole: out}, nil
	case NodeOr:
		a, b := boolIn(0), boolIn(1)
		out := make([]bool, len(a))
		for i := range out {
			out[i] = a[i] || b[i]
		}
		return value{kind: PortBool, boole: out}, nil
	case NodeNot:
		a := boolIn(0)
		out := make([]bool, len(a))
		for i := range out {
			out[i] = !a[i]
		}
		return value{kind: PortBool, boole: out}, nil
	default:
		return value{}, errs.NewConfigError("graph: unknown node type %q", node.Type)
	}
}

const (
	fieldClose = iota
	fieldOpen
	fieldHigh
	fieldLow
	fieldVolume
)

// PriceField maps the human-facing field name used when building a Graph
// (open/high/low/close/volume) to the internal code NodePrice expects under
// Params["field_code"].
func PriceField(field string) (float64, error) {
	switch field {
	case "open":
		return fieldOpen, nil
	case "high":
		return fieldHigh, nil
	case "low":
		return fieldLow, nil
	case "close":
		return fieldClose, nil
	case "volume":
		return fieldVolume, nil
	default:
		return 0, fmt.Errorf("graph: unknown price field %q", field)
	}
}
