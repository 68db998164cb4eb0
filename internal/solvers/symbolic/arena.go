// Package symbolic searches for closed-form expressions by evolving
// expression trees over the library terms. Programs are flat arenas of nodes
// in reverse-Polish order: children always precede their parent, every
// subtree is a contiguous slice, and cloning is a slice copy, so mutation
// and crossover splice index ranges without aliasing.
package symbolic

import (
	"math"
	"strconv"
)

type opCode uint8

const (
	opTerm opCode = iota
	opConst
	opAdd
	opSub
	opMul
	opDiv
	opSin
	opCos
	opExp
	opLog
	opSqrt
	opNeg
)

// node is one arena slot. Leaves push a value; operators pop their operands.
type node struct {
	op  opCode
	arg int32   // column index for opTerm leaves
	val float64 // constant for opConst leaves
}

// program is one expression in reverse-Polish order.
type program struct {
	nodes []node
}

func arity(op opCode) int {
	switch op {
	case opTerm, opConst:
		return 0
	case opSin, opCos, opExp, opLog, opSqrt, opNeg:
		return 1
	default:
		return 2
	}
}

var unaryByName = map[string]opCode{
	"sin":  opSin,
	"cos":  opCos,
	"exp":  opExp,
	"log":  opLog,
	"sqrt": opSqrt,
	"neg":  opNeg,
}

var binaryOps = []opCode{opAdd, opSub, opMul, opDiv}

func (p program) clone() program {
	return program{nodes: append([]node(nil), p.nodes...)}
}

func (p program) size() int { return len(p.nodes) }

// subtreeStart returns the index where the subtree rooted at node i begins.
// Scanning backwards, each node supplies one value and consumes its arity,
// so the span closes when the running requirement hits zero.
func (p program) subtreeStart(i int) int {
	required := 1
	for j := i; j >= 0; j-- {
		required += arity(p.nodes[j].op) - 1
		if required == 0 {
			return j
		}
	}
	return 0
}

// eval computes the program over all rows at once. Leaves materialize full
// column vectors; operators fold them in place. The second return is false
// when the result contains a non-finite value, which the search scores as
// unusable.
func (p program) eval(columns [][]float64, rows int) ([]float64, bool) {
	stack := make([][]float64, 0, 8)
	for _, nd := range p.nodes {
		switch arity(nd.op) {
		case 0:
			v := make([]float64, rows)
			if nd.op == opTerm {
				copy(v, columns[nd.arg])
			} else {
				for i := range v {
					v[i] = nd.val
				}
			}
			stack = append(stack, v)
		case 1:
			a := stack[len(stack)-1]
			for i := range a {
				a[i] = applyUnary(nd.op, a[i])
			}
		default:
			if len(stack) < 2 {
				return nil, false
			}
			b := stack[len(stack)-1]
			a := stack[len(stack)-2]
			stack = stack[:len(stack)-1]
			for i := range a {
				a[i] = applyBinary(nd.op, a[i], b[i])
			}
		}
	}
	if len(stack) != 1 {
		return nil, false
	}
	out := stack[0]
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
	}
	return out, true
}

func applyUnary(op opCode, a float64) float64 {
	switch op {
	case opSin:
		return math.Sin(a)
	case opCos:
		return math.Cos(a)
	case opExp:
		return math.Exp(a)
	case opLog:
		return math.Log(a)
	case opSqrt:
		return math.Sqrt(a)
	case opNeg:
		return -a
	default:
		return math.NaN()
	}
}

func applyBinary(op opCode, a, b float64) float64 {
	switch op {
	case opAdd:
		return a + b
	case opSub:
		return a - b
	case opMul:
		return a * b
	case opDiv:
		return a / b
	default:
		return math.NaN()
	}
}

// render converts the program to an infix string using the given column
// names for term leaves.
func (p program) render(names []string) string {
	stack := make([]string, 0, 8)
	for _, nd := range p.nodes {
		switch nd.op {
		case opTerm:
			stack = append(stack, names[nd.arg])
		case opConst:
			stack = append(stack, strconv.FormatFloat(nd.val, 'g', 4, 64))
		case opAdd, opSub, opMul, opDiv:
			if len(stack) < 2 {
				return "<invalid>"
			}
			b := stack[len(stack)-1]
			a := stack[len(stack)-2]
			stack = stack[:len(stack)-2]
			stack = append(stack, "("+a+" "+binarySymbol(nd.op)+" "+b+")")
		case opNeg:
			a := stack[len(stack)-1]
			stack[len(stack)-1] = "-(" + a + ")"
		default:
			a := stack[len(stack)-1]
			stack[len(stack)-1] = unaryName(nd.op) + "(" + a + ")"
		}
	}
	if len(stack) != 1 {
		return "<invalid>"
	}
	return stack[0]
}

func binarySymbol(op opCode) string {
	switch op {
	case opAdd:
		return "+"
	case opSub:
		return "-"
	case opMul:
		return "*"
	default:
		return "/"
	}
}

func unaryName(op opCode) string {
	for name, code := range unaryByName {
		if code == op {
			return name
		}
	}
	return "?"
}

// referencedTerms returns the distinct column indices the program reads.
func (p program) referencedTerms() []int32 {
	seen := make(map[int32]struct{})
	var out []int32
	for _, nd := range p.nodes {
		if nd.op == opTerm {
			if _, ok := seen[nd.arg]; !ok {
				seen[nd.arg] = struct{}{}
				out = append(out, nd.arg)
			}
		}
	}
	return out
}
