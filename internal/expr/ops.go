package expr

import "sync"

// UnaryFunc computes a unary operator over a known operand.
type UnaryFunc func(v Value) Value

// BinaryFunc computes a binary operator over known operands.
type BinaryFunc func(l, r Value) Value

var (
	opsMu     sync.RWMutex
	unaryOps  = map[string]UnaryFunc{}
	binaryOps = map[string]BinaryFunc{}
)

// RegisterUnary installs or replaces a unary operator.
func RegisterUnary(name string, fn UnaryFunc) {
	opsMu.Lock()
	defer opsMu.Unlock()
	unaryOps[name] = fn
}

// RegisterBinary installs or replaces a binary operator.
func RegisterBinary(name string, fn BinaryFunc) {
	opsMu.Lock()
	defer opsMu.Unlock()
	binaryOps[name] = fn
}

// HasOperator reports whether an operator of the given arity is registered.
func HasOperator(name string, arity int) bool {
	opsMu.RLock()
	defer opsMu.RUnlock()
	switch arity {
	case 1:
		_, ok := unaryOps[name]
		return ok
	case 2:
		_, ok := binaryOps[name]
		return ok
	}
	return false
}

func lookupUnary(name string) (UnaryFunc, bool) {
	opsMu.RLock()
	defer opsMu.RUnlock()
	fn, ok := unaryOps[name]
	return fn, ok
}

func lookupBinary(name string) (BinaryFunc, bool) {
	opsMu.RLock()
	defer opsMu.RUnlock()
	fn, ok := binaryOps[name]
	return fn, ok
}

func init() {
	RegisterBinary("add", func(l, r Value) Value {
		if a, b, ok := ints(l, r); ok {
			return a + b
		}
		if a, ok := l.(Tuple); ok {
			if b, ok := r.(Tuple); ok {
				out := make(Tuple, 0, len(a)+len(b))
				return append(append(out, a...), b...)
			}
		}
		return Undefined{}
	})
	RegisterBinary("sub", intOp(func(a, b Int) Value { return a - b }))
	RegisterBinary("mul", intOp(func(a, b Int) Value { return a * b }))
	RegisterBinary("div", intOp(func(a, b Int) Value {
		if b == 0 {
			return Undefined{}
		}
		return a / b
	}))
	RegisterBinary("mod", intOp(func(a, b Int) Value {
		if b == 0 {
			return Undefined{}
		}
		return a % b
	}))
	RegisterBinary("gt", intOp(func(a, b Int) Value { return Bool(a > b) }))
	RegisterBinary("lt", intOp(func(a, b Int) Value { return Bool(a < b) }))
	RegisterBinary("geq", intOp(func(a, b Int) Value { return Bool(a >= b) }))
	RegisterBinary("leq", intOp(func(a, b Int) Value { return Bool(a <= b) }))
	RegisterBinary("and", boolOp(func(a, b Bool) Value { return a && b }))
	RegisterBinary("or", boolOp(func(a, b Bool) Value { return a || b }))
	RegisterBinary("eq", func(l, r Value) Value {
		if !l.FullyDefined(nil) || !r.FullyDefined(nil) {
			return Undefined{}
		}
		return Bool(l.Equal(r))
	})
	RegisterBinary("neq", func(l, r Value) Value {
		if !l.FullyDefined(nil) || !r.FullyDefined(nil) {
			return Undefined{}
		}
		return Bool(!l.Equal(r))
	})
	RegisterBinary("idx", func(l, r Value) Value {
		t, ok := l.(Tuple)
		i, ok2 := r.(Int)
		if !ok || !ok2 || i < 0 || int(i) >= len(t) {
			return Undefined{}
		}
		return t[i]
	})

	RegisterUnary("neg", func(v Value) Value {
		if i, ok := v.(Int); ok {
			return -i
		}
		return Undefined{}
	})
	RegisterUnary("not", func(v Value) Value {
		if b, ok := v.(Bool); ok {
			return !b
		}
		return Undefined{}
	})
	RegisterUnary("len", func(v Value) Value {
		if t, ok := v.(Tuple); ok {
			return Int(len(t))
		}
		return Undefined{}
	})
}

func ints(l, r Value) (Int, Int, bool) {
	a, ok := l.(Int)
	if !ok {
		return 0, 0, false
	}
	b, ok := r.(Int)
	return a, b, ok
}

func intOp(fn func(a, b Int) Value) BinaryFunc {
	return func(l, r Value) Value {
		a, b, ok := ints(l, r)
		if !ok {
			return Undefined{}
		}
		return fn(a, b)
	}
}

func boolOp(fn func(a, b Bool) Value) BinaryFunc {
	return func(l, r Value) Value {
		a, ok := l.(Bool)
		b, ok2 := r.(Bool)
		if !ok || !ok2 {
			return Undefined{}
		}
		return fn(a, b)
	}
}
