package symbolic

import (
	"math/rand"
)

const (
	leafChance     = 0.3
	termLeafChance = 0.75
	unaryChance    = 0.25
)

// randomConstant draws a leaf constant from a small symmetric range. Large
// magnitudes rarely survive selection and blow up the fitness early on.
func randomConstant(rng *rand.Rand) float64 {
	return rng.Float64()*10 - 5
}

func appendLeaf(nodes []node, rng *rand.Rand, nCols int) []node {
	if nCols > 0 && rng.Float64() < termLeafChance {
		return append(nodes, node{op: opTerm, arg: int32(rng.Intn(nCols))})
	}
	return append(nodes, node{op: opConst, val: randomConstant(rng)})
}

// growInto appends a random subtree of at most budget nodes in postfix
// order and returns the extended arena. A binary operator needs two operand
// subtrees plus itself, so a budget of two can only yield a unary or a leaf.
func growInto(nodes []node, rng *rand.Rand, nCols, budget int, unaries []opCode) []node {
	if budget <= 1 || rng.Float64() < leafChance {
		return appendLeaf(nodes, rng, nCols)
	}
	if len(unaries) > 0 && (budget == 2 || rng.Float64() < unaryChance) {
		nodes = growInto(nodes, rng, nCols, budget-1, unaries)
		return append(nodes, node{op: unaries[rng.Intn(len(unaries))]})
	}
	if budget == 2 {
		return appendLeaf(nodes, rng, nCols)
	}
	before := len(nodes)
	nodes = growInto(nodes, rng, nCols, (budget-1)/2, unaries)
	used := len(nodes) - before
	nodes = growInto(nodes, rng, nCols, budget-1-used, unaries)
	return append(nodes, node{op: binaryOps[rng.Intn(len(binaryOps))]})
}

func randomProgram(rng *rand.Rand, nCols, maxNodes int, unaries []opCode) program {
	return program{nodes: growInto(nil, rng, nCols, maxNodes, unaries)}
}

// pointMutate swaps a single node for another of the same arity. The arena
// stays valid because the shape is untouched.
func pointMutate(p program, rng *rand.Rand, nCols int, unaries []opCode) program {
	out := p.clone()
	i := rng.Intn(len(out.nodes))
	switch arity(out.nodes[i].op) {
	case 0:
		if nCols > 0 && rng.Float64() < termLeafChance {
			out.nodes[i] = node{op: opTerm, arg: int32(rng.Intn(nCols))}
		} else {
			out.nodes[i] = node{op: opConst, val: randomConstant(rng)}
		}
	case 1:
		if len(unaries) > 0 {
			out.nodes[i] = node{op: unaries[rng.Intn(len(unaries))]}
		}
	default:
		out.nodes[i] = node{op: binaryOps[rng.Intn(len(binaryOps))]}
	}
	return out
}

// jitterConstants perturbs one constant leaf, scaled to its magnitude so
// small coefficients are refined rather than lost.
func jitterConstants(p program, rng *rand.Rand) program {
	out := p.clone()
	var consts []int
	for i, nd := range out.nodes {
		if nd.op == opConst {
			consts = append(consts, i)
		}
	}
	if len(consts) == 0 {
		return out
	}
	i := consts[rng.Intn(len(consts))]
	v := out.nodes[i].val
	out.nodes[i].val = v + rng.NormFloat64()*0.1*(1+absFloat(v))
	return out
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// subtreeMutate replaces a random subtree with a freshly grown one, keeping
// the program within maxNodes.
func subtreeMutate(p program, rng *rand.Rand, nCols, maxNodes int, unaries []opCode) program {
	end := rng.Intn(len(p.nodes))
	start := p.subtreeStart(end)
	budget := maxNodes - (len(p.nodes) - (end - start + 1))
	if budget < 1 {
		return p.clone()
	}
	repl := growInto(nil, rng, nCols, budget, unaries)
	nodes := make([]node, 0, len(p.nodes)-(end-start+1)+len(repl))
	nodes = append(nodes, p.nodes[:start]...)
	nodes = append(nodes, repl...)
	nodes = append(nodes, p.nodes[end+1:]...)
	return program{nodes: nodes}
}

// crossover grafts a random subtree of b into a random site of a. When the
// child would exceed maxNodes the first parent is passed through unchanged.
func crossover(a, b program, rng *rand.Rand, maxNodes int) program {
	aEnd := rng.Intn(len(a.nodes))
	aStart := a.subtreeStart(aEnd)
	bEnd := rng.Intn(len(b.nodes))
	bStart := b.subtreeStart(bEnd)
	childLen := len(a.nodes) - (aEnd - aStart + 1) + (bEnd - bStart + 1)
	if childLen > maxNodes {
		return a.clone()
	}
	nodes := make([]node, 0, childLen)
	nodes = append(nodes, a.nodes[:aStart]...)
	nodes = append(nodes, b.nodes[bStart:bEnd+1]...)
	nodes = append(nodes, a.nodes[aEnd+1:]...)
	return program{nodes: nodes}
}

// tournament returns the index of the fittest program among k random picks.
// Ties keep the earliest pick so the result depends only on the RNG stream.
func tournament(rng *rand.Rand, fitness []float64, k int) int {
	best := rng.Intn(len(fitness))
	for i := 1; i < k; i++ {
		c := rng.Intn(len(fitness))
		if fitness[c] < fitness[best] {
			best = c
		}
	}
	return best
}
