package netsim

import (
	"fmt"
	"math/bits"
)

// value is a ground FIRRTL value: width bits of two's complement, read
// as signed or unsigned.
type value struct {
	bits   uint64
	width  int
	signed bool
}

func mask(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(width) - 1
}

func mk(x int64, width int, signed bool) value {
	return value{bits: uint64(x) & mask(width), width: width, signed: signed}
}

// int returns v as an integer, sign-extended when v is signed.
func (v value) int() int64 {
	if !v.signed || v.width == 0 || v.width >= 64 {
		return int64(v.bits)
	}
	shift := uint(64 - v.width)
	return int64(v.bits<<shift) >> shift
}

func (v value) truth() bool { return v.bits != 0 }

// fit converts v to the ground type t the way a connect does.
func fit(v value, t *Type) value {
	if t == nil || t.Kind == Clock {
		return v
	}
	return mk(v.int(), t.Width, t.Signed)
}

func boolean(b bool) value {
	if b {
		return value{bits: 1, width: 1}
	}
	return value{width: 1}
}

// widthOf returns the width of the narrowest unsigned literal holding x.
func widthOf(x uint64) int {
	return max(bits.Len64(x), 1)
}

// arity lists the operand and parameter counts of each primitive.
var arity = map[string][2]int{
	"add": {2, 0}, "sub": {2, 0}, "mul": {2, 0}, "div": {2, 0}, "rem": {2, 0},
	"lt": {2, 0}, "leq": {2, 0}, "gt": {2, 0}, "geq": {2, 0}, "eq": {2, 0}, "neq": {2, 0},
	"and": {2, 0}, "or": {2, 0}, "xor": {2, 0}, "cat": {2, 0}, "dshl": {2, 0}, "dshr": {2, 0},
	"not": {1, 0}, "andr": {1, 0}, "orr": {1, 0}, "xorr": {1, 0}, "neg": {1, 0}, "cvt": {1, 0},
	"asUInt": {1, 0}, "asSInt": {1, 0},
	"bits": {1, 2}, "head": {1, 1}, "tail": {1, 1}, "shl": {1, 1}, "shr": {1, 1}, "pad": {1, 1},
	"mux": {3, 0}, "validif": {2, 0},
}

// apply evaluates primitive op over args and the integer parameters.
func apply(op string, args []value, consts []int) (value, error) {
	want, ok := arity[op]
	if !ok {
		return value{}, fmt.Errorf("unsupported primitive %s", op)
	}
	if len(args) != want[0] || len(consts) != want[1] {
		return value{}, fmt.Errorf("%s takes %d arguments and %d parameters", op, want[0], want[1])
	}
	a := args[0]
	var b value
	if len(args) > 1 {
		b = args[1]
	}
	w := max(a.width, b.width)
	switch op {
	case "add":
		return mk(a.int()+b.int(), w+1, a.signed), nil
	case "sub":
		return mk(a.int()-b.int(), w+1, a.signed), nil
	case "mul":
		return mk(a.int()*b.int(), a.width+b.width, a.signed), nil
	case "div":
		if b.int() == 0 {
			return mk(0, a.width, a.signed), nil
		}
		return mk(a.int()/b.int(), a.width+btoi(a.signed), a.signed), nil
	case "rem":
		if b.int() == 0 {
			return mk(0, min(a.width, b.width), a.signed), nil
		}
		return mk(a.int()%b.int(), min(a.width, b.width), a.signed), nil
	case "lt":
		return boolean(less(a, b)), nil
	case "leq":
		return boolean(!less(b, a)), nil
	case "gt":
		return boolean(less(b, a)), nil
	case "geq":
		return boolean(!less(a, b)), nil
	case "eq":
		return boolean(a.int() == b.int()), nil
	case "neq":
		return boolean(a.int() != b.int()), nil
	case "and":
		return mk(a.int()&b.int(), w, false), nil
	case "or":
		return mk(a.int()|b.int(), w, false), nil
	case "xor":
		return mk(a.int()^b.int(), w, false), nil
	case "cat":
		return value{bits: (a.bits<<uint(b.width) | b.bits) & mask(a.width+b.width), width: a.width + b.width}, nil
	case "dshl":
		return mk(a.int()<<b.bits, a.width+(1<<uint(b.width))-1, a.signed), nil
	case "dshr":
		return mk(a.int()>>b.bits, a.width, a.signed), nil
	case "not":
		return value{bits: ^a.bits & mask(a.width), width: a.width}, nil
	case "andr":
		return boolean(a.bits == mask(a.width)), nil
	case "orr":
		return boolean(a.bits != 0), nil
	case "xorr":
		return boolean(bits.OnesCount64(a.bits)%2 == 1), nil
	case "neg":
		return mk(-a.int(), a.width+1, true), nil
	case "cvt":
		if a.signed {
			return a, nil
		}
		return mk(a.int(), a.width+1, true), nil
	case "asUInt":
		return value{bits: a.bits, width: a.width}, nil
	case "asSInt":
		return value{bits: a.bits, width: a.width, signed: true}, nil
	case "bits":
		hi, lo := consts[0], consts[1]
		if lo < 0 || hi < lo || hi >= a.width {
			return value{}, fmt.Errorf("bits(%d, %d) of a %d-bit value", hi, lo, a.width)
		}
		return value{bits: a.bits >> uint(lo) & mask(hi-lo+1), width: hi - lo + 1}, nil
	case "head":
		n := consts[0]
		if n < 1 || n > a.width {
			return value{}, fmt.Errorf("head(%d) of a %d-bit value", n, a.width)
		}
		return value{bits: a.bits >> uint(a.width-n), width: n}, nil
	case "tail":
		n := consts[0]
		if n < 0 || n >= a.width {
			return value{}, fmt.Errorf("tail(%d) of a %d-bit value", n, a.width)
		}
		return value{bits: a.bits & mask(a.width-n), width: a.width - n}, nil
	case "shl":
		return mk(a.int()<<uint(consts[0]), a.width+consts[0], a.signed), nil
	case "shr":
		return mk(a.int()>>uint(consts[0]), max(a.width-consts[0], 1), a.signed), nil
	case "pad":
		return mk(a.int(), max(a.width, consts[0]), a.signed), nil
	case "mux":
		c := args[0]
		w := max(args[1].width, args[2].width)
		if c.truth() {
			return mk(args[1].int(), w, args[1].signed), nil
		}
		return mk(args[2].int(), w, args[2].signed), nil
	case "validif":
		return b, nil
	}
	return value{}, fmt.Errorf("unsupported primitive %s", op)
}

func less(a, b value) bool {
	if a.signed || b.signed {
		return a.int() < b.int()
	}
	return a.bits < b.bits
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
