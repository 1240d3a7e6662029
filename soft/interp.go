package soft

import (
	"math"
	"math/bits"

	"github.com/gogpu/naga/ir"
	"github.com/pkg/errors"
)

// value is an interpreter value. s holds scalar, vector and column-major
// matrix components; fields holds struct members and array elements. ptr is
// set for pointer values only.
type value struct {
	s      []float64
	fields []value
	ptr    *pointer
}

func scalar(x float64) value { return value{s: []float64{x}} }

func boolean(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (v value) clone() value {
	out := value{ptr: v.ptr}
	if v.s != nil {
		out.s = append([]float64(nil), v.s...)
	}
	if v.fields != nil {
		out.fields = make([]value, len(v.fields))
		for i := range v.fields {
			out.fields[i] = v.fields[i].clone()
		}
	}
	return out
}

// pointer addresses all of target when lo < 0, else target.s[lo:hi].
type pointer struct {
	target *value
	lo, hi int
}

func (p *pointer) load() value {
	if p.lo < 0 {
		return p.target.clone()
	}
	return value{s: append([]float64(nil), p.target.s[p.lo:p.hi]...)}
}

func (p *pointer) store(v value) {
	if p.lo < 0 {
		*p.target = v.clone()
		return
	}
	copy(p.target.s[p.lo:p.hi], v.s)
}

const (
	stepBudget = 1 << 22
	maxDepth   = 64
)

var errUnsupported = errors.New("unsupported by the software rasterizer")

// machine runs entry points of one module. Private globals are reset for
// every invocation.
type machine struct {
	m       *ir.Module
	globals []value
	steps   int
	depth   int
}

func newMachine(m *ir.Module) *machine {
	return &machine{m: m, globals: make([]value, len(m.GlobalVariables))}
}

func (mc *machine) reset() {
	mc.steps = 0
	for i, g := range mc.m.GlobalVariables {
		switch {
		case g.Init != nil:
			mc.globals[i] = mc.constant(*g.Init)
		case g.Space == ir.SpacePrivate || g.Space == ir.SpaceWorkGroup:
			mc.globals[i] = mc.zero(mc.inner(g.Type))
		}
	}
}

func (mc *machine) inner(h ir.TypeHandle) ir.TypeInner { return mc.m.Types[h].Inner }

func (mc *machine) zero(inner ir.TypeInner) value {
	switch t := inner.(type) {
	case ir.ScalarType, ir.AtomicType:
		return value{s: make([]float64, 1)}
	case ir.VectorType:
		return value{s: make([]float64, t.Size)}
	case ir.MatrixType:
		return value{s: make([]float64, int(t.Columns)*int(t.Rows))}
	case ir.ArrayType:
		n := 0
		if t.Size.Constant != nil {
			n = int(*t.Size.Constant)
		}
		f := make([]value, n)
		for i := range f {
			f[i] = mc.zero(mc.inner(t.Base))
		}
		return value{fields: f}
	case ir.StructType:
		f := make([]value, len(t.Members))
		for i, mem := range t.Members {
			f[i] = mc.zero(mc.inner(mem.Type))
		}
		return value{fields: f}
	}
	return value{}
}

func (mc *machine) constant(h ir.ConstantHandle) value {
	c := mc.m.Constants[h]
	switch v := c.Value.(type) {
	case ir.ScalarValue:
		width := 4
		if st, ok := mc.inner(c.Type).(ir.ScalarType); ok {
			width = int(st.Width)
		}
		return scalar(fromBits(v.Bits, v.Kind, width))
	case ir.CompositeValue:
		parts := make([]value, len(v.Components))
		for i, ch := range v.Components {
			parts[i] = mc.constant(ch)
		}
		return compose(mc.inner(c.Type), parts)
	}
	return value{}
}

func fromBits(b uint64, kind ir.ScalarKind, width int) float64 {
	switch kind {
	case ir.ScalarFloat:
		if width == 8 {
			return math.Float64frombits(b)
		}
		return float64(math.Float32frombits(uint32(b)))
	case ir.ScalarSint:
		if width == 8 {
			return float64(int64(b))
		}
		return float64(int32(uint32(b)))
	case ir.ScalarUint:
		if width == 8 {
			return float64(b)
		}
		return float64(uint32(b))
	case ir.ScalarBool:
		return boolean(b != 0)
	}
	return 0
}

// compose flattens vector and matrix parts into components and keeps struct
// and array parts as fields.
func compose(inner ir.TypeInner, parts []value) value {
	switch inner.(type) {
	case ir.VectorType, ir.MatrixType, ir.ScalarType:
		var s []float64
		for _, p := range parts {
			s = append(s, p.s...)
		}
		return value{s: s}
	}
	f := make([]value, len(parts))
	for i, p := range parts {
		f[i] = p.clone()
	}
	return value{fields: f}
}

func kindOf(inner ir.TypeInner) ir.ScalarKind {
	switch t := inner.(type) {
	case ir.ScalarType:
		return t.Kind
	case ir.VectorType:
		return t.Scalar.Kind
	case ir.MatrixType:
		return t.Scalar.Kind
	case ir.AtomicType:
		return t.Scalar.Kind
	}
	return ir.ScalarFloat
}

type flow int

const (
	flowNext flow = iota
	flowBreak
	flowContinue
	flowReturn
	flowKill
)

type frame struct {
	mc     *machine
	fn     *ir.Function
	args   []value
	locals []value
	exprs  []value
	done   []bool
	calls  map[ir.ExpressionHandle]value
	ret    value
}

// call runs function fh. A flowKill result means the invocation discarded.
func (mc *machine) call(fh ir.FunctionHandle, args []value) (value, flow, error) {
	if mc.depth >= maxDepth {
		return value{}, flowNext, errors.New("call depth exceeded")
	}
	mc.depth++
	defer func() { mc.depth-- }()

	fn := &mc.m.Functions[fh]
	f := &frame{
		mc:     mc,
		fn:     fn,
		args:   args,
		locals: make([]value, len(fn.LocalVars)),
		exprs:  make([]value, len(fn.Expressions)),
		done:   make([]bool, len(fn.Expressions)),
	}
	for i, lv := range fn.LocalVars {
		f.locals[i] = mc.zero(mc.inner(lv.Type))
	}
	for i, lv := range fn.LocalVars {
		if lv.Init == nil {
			continue
		}
		v, err := f.eval(*lv.Init)
		if err != nil {
			return value{}, flowNext, err
		}
		f.locals[i] = v.clone()
	}
	fl, err := f.block(fn.Body)
	if err != nil {
		return value{}, flowNext, errors.Wrapf(err, "function %s", fn.Name)
	}
	return f.ret, fl, nil
}

func (f *frame) typeOf(h ir.ExpressionHandle) ir.TypeInner {
	var res ir.TypeResolution
	if int(h) < len(f.fn.ExpressionTypes) {
		res = f.fn.ExpressionTypes[h]
	}
	if res.Handle == nil && res.Value == nil {
		r, err := ir.ResolveExpressionType(f.mc.m, f.fn, h)
		if err != nil {
			return nil
		}
		res = r
	}
	inner := res.Value
	if res.Handle != nil {
		inner = f.mc.inner(*res.Handle)
	}
	if p, ok := inner.(ir.PointerType); ok {
		inner = f.mc.inner(p.Base)
	}
	return inner
}

func (f *frame) eval(h ir.ExpressionHandle) (value, error) {
	if f.done[h] {
		return f.exprs[h], nil
	}
	v, err := f.compute(h)
	if err != nil {
		return value{}, err
	}
	f.exprs[h] = v
	f.done[h] = true
	return v, nil
}

func (f *frame) evalAll(hs ...ir.ExpressionHandle) ([]value, error) {
	out := make([]value, len(hs))
	for i, h := range hs {
		v, err := f.eval(h)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *frame) compute(h ir.ExpressionHandle) (value, error) {
	switch e := f.fn.Expressions[h].Kind.(type) {
	case ir.Literal:
		return literal(e.Value)
	case ir.ExprConstant:
		return f.mc.constant(e.Constant), nil
	case ir.ExprZeroValue:
		return f.mc.zero(f.mc.inner(e.Type)), nil
	case ir.ExprCompose:
		parts, err := f.evalAll(e.Components...)
		if err != nil {
			return value{}, err
		}
		return compose(f.mc.inner(e.Type), parts), nil
	case ir.ExprAccess:
		vs, err := f.evalAll(e.Base, e.Index)
		if err != nil {
			return value{}, err
		}
		return f.access(e.Base, vs[0], int(vs[1].s[0]))
	case ir.ExprAccessIndex:
		base, err := f.eval(e.Base)
		if err != nil {
			return value{}, err
		}
		return f.access(e.Base, base, int(e.Index))
	case ir.ExprSplat:
		v, err := f.eval(e.Value)
		if err != nil {
			return value{}, err
		}
		s := make([]float64, e.Size)
		for i := range s {
			s[i] = v.s[0]
		}
		return value{s: s}, nil
	case ir.ExprSwizzle:
		v, err := f.eval(e.Vector)
		if err != nil {
			return value{}, err
		}
		s := make([]float64, e.Size)
		for i := range s {
			s[i] = v.s[e.Pattern[i]]
		}
		return value{s: s}, nil
	case ir.ExprFunctionArgument:
		return f.args[e.Index], nil
	case ir.ExprGlobalVariable:
		g := f.mc.m.GlobalVariables[e.Variable]
		if g.Space != ir.SpacePrivate && g.Space != ir.SpaceWorkGroup && g.Init == nil {
			return value{}, errors.Wrapf(errUnsupported, "resource binding %s", g.Name)
		}
		return value{ptr: &pointer{target: &f.mc.globals[e.Variable], lo: -1}}, nil
	case ir.ExprLocalVariable:
		return value{ptr: &pointer{target: &f.locals[e.Variable], lo: -1}}, nil
	case ir.ExprLoad:
		p, err := f.eval(e.Pointer)
		if err != nil {
			return value{}, err
		}
		if p.ptr == nil {
			return p, nil
		}
		return p.ptr.load(), nil
	case ir.ExprUnary:
		return f.unary(e)
	case ir.ExprBinary:
		return f.binary(e)
	case ir.ExprSelect:
		vs, err := f.evalAll(e.Condition, e.Accept, e.Reject)
		if err != nil {
			return value{}, err
		}
		cond, acc, rej := vs[0], vs[1], vs[2]
		if len(cond.s) == 1 {
			if cond.s[0] != 0 {
				return acc, nil
			}
			return rej, nil
		}
		s := make([]float64, len(acc.s))
		for i := range s {
			s[i] = rej.s[i]
			if cond.s[i] != 0 {
				s[i] = acc.s[i]
			}
		}
		return value{s: s}, nil
	case ir.ExprRelational:
		v, err := f.eval(e.Argument)
		if err != nil {
			return value{}, err
		}
		return relational(e.Fun, v)
	case ir.ExprMath:
		return f.math(e)
	case ir.ExprAs:
		v, err := f.eval(e.Expr)
		if err != nil {
			return value{}, err
		}
		return convert(v, kindOf(f.typeOf(e.Expr)), e.Kind, e.Convert), nil
	case ir.ExprDerivative:
		v, err := f.eval(e.Expr)
		if err != nil {
			return value{}, err
		}
		return value{s: make([]float64, len(v.s))}, nil
	case ir.ExprCallResult:
		if v, ok := f.calls[h]; ok {
			return v, nil
		}
		return value{}, errors.New("call result read before the call")
	}
	return value{}, errors.Wrapf(errUnsupported, "expression %T", f.fn.Expressions[h].Kind)
}

func literal(l ir.LiteralValue) (value, error) {
	switch v := l.(type) {
	case ir.LiteralF32:
		return scalar(float64(v)), nil
	case ir.LiteralF64:
		return scalar(float64(v)), nil
	case ir.LiteralU32:
		return scalar(float64(v)), nil
	case ir.LiteralI32:
		return scalar(float64(v)), nil
	case ir.LiteralU64:
		return scalar(float64(v)), nil
	case ir.LiteralI64:
		return scalar(float64(v)), nil
	case ir.LiteralBool:
		return scalar(boolean(bool(v))), nil
	case ir.LiteralAbstractInt:
		return scalar(float64(v)), nil
	case ir.LiteralAbstractFloat:
		return scalar(float64(v)), nil
	}
	return value{}, errors.Wrapf(errUnsupported, "literal %T", l)
}

// access indexes a vector, matrix column, struct member or array element,
// through a pointer or by value.
func (f *frame) access(baseH ir.ExpressionHandle, base value, i int) (value, error) {
	width := 1
	if m, ok := f.typeOf(baseH).(ir.MatrixType); ok {
		width = int(m.Rows)
	}
	if p := base.ptr; p != nil {
		if p.lo < 0 && p.target.fields != nil {
			if i < 0 || i >= len(p.target.fields) {
				return value{}, errors.Errorf("index %d out of bounds", i)
			}
			return value{ptr: &pointer{target: &p.target.fields[i], lo: -1}}, nil
		}
		lo := 0
		if p.lo >= 0 {
			lo = p.lo
		}
		lo += i * width
		if i < 0 || lo+width > len(p.target.s) {
			return value{}, errors.Errorf("index %d out of bounds", i)
		}
		return value{ptr: &pointer{target: p.target, lo: lo, hi: lo + width}}, nil
	}
	if base.fields != nil {
		if i < 0 || i >= len(base.fields) {
			return value{}, errors.Errorf("index %d out of bounds", i)
		}
		return base.fields[i], nil
	}
	if i < 0 || (i+1)*width > len(base.s) {
		return value{}, errors.Errorf("index %d out of bounds", i)
	}
	return value{s: append([]float64(nil), base.s[i*width:(i+1)*width]...)}, nil
}

func f32(x float64) float64 { return float64(float32(x)) }

func (f *frame) unary(e ir.ExprUnary) (value, error) {
	v, err := f.eval(e.Expr)
	if err != nil {
		return value{}, err
	}
	kind := kindOf(f.typeOf(e.Expr))
	s := make([]float64, len(v.s))
	for i, x := range v.s {
		switch e.Op {
		case ir.UnaryNegate:
			switch kind {
			case ir.ScalarSint:
				s[i] = float64(-int32(x))
			default:
				s[i] = -x
			}
		case ir.UnaryLogicalNot:
			s[i] = boolean(x == 0)
		case ir.UnaryBitwiseNot:
			if kind == ir.ScalarSint {
				s[i] = float64(^int32(x))
			} else {
				s[i] = float64(^uint32(x))
			}
		}
	}
	return value{s: s}, nil
}

func (f *frame) binary(e ir.ExprBinary) (value, error) {
	vs, err := f.evalAll(e.Left, e.Right)
	if err != nil {
		return value{}, err
	}
	l, r := vs[0], vs[1]
	lt, rt := f.typeOf(e.Left), f.typeOf(e.Right)
	if e.Op == ir.BinaryMultiply {
		lm, lIsMat := lt.(ir.MatrixType)
		rm, rIsMat := rt.(ir.MatrixType)
		_, lIsVec := lt.(ir.VectorType)
		_, rIsVec := rt.(ir.VectorType)
		switch {
		case lIsMat && rIsMat:
			return matMul(l.s, int(lm.Rows), int(lm.Columns), r.s, int(rm.Columns)), nil
		case lIsMat && rIsVec:
			return matMul(l.s, int(lm.Rows), int(lm.Columns), r.s, 1), nil
		case lIsVec && rIsMat:
			// v * M is M^T * v.
			out := make([]float64, rm.Columns)
			rows := int(rm.Rows)
			for c := range out {
				for k := 0; k < rows; k++ {
					out[c] += l.s[k] * r.s[c*rows+k]
				}
				out[c] = f32(out[c])
			}
			return value{s: out}, nil
		}
	}
	kind := kindOf(lt)
	n := len(l.s)
	if len(r.s) > n {
		n = len(r.s)
	}
	s := make([]float64, n)
	for i := range s {
		a, b := l.s[0], r.s[0]
		if len(l.s) > 1 {
			a = l.s[i]
		}
		if len(r.s) > 1 {
			b = r.s[i]
		}
		s[i] = binop(e.Op, kind, a, b)
	}
	return value{s: s}, nil
}

// matMul multiplies a rows x inner column-major matrix by an inner x cols one.
func matMul(a []float64, rows, inner int, b []float64, cols int) value {
	out := make([]float64, rows*cols)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			var sum float64
			for k := 0; k < inner; k++ {
				sum += a[k*rows+r] * b[c*inner+k]
			}
			out[c*rows+r] = f32(sum)
		}
	}
	return value{s: out}
}

func binop(op ir.BinaryOperator, kind ir.ScalarKind, a, b float64) float64 {
	switch op {
	case ir.BinaryEqual:
		return boolean(a == b)
	case ir.BinaryNotEqual:
		return boolean(a != b)
	case ir.BinaryLess:
		return boolean(a < b)
	case ir.BinaryLessEqual:
		return boolean(a <= b)
	case ir.BinaryGreater:
		return boolean(a > b)
	case ir.BinaryGreaterEqual:
		return boolean(a >= b)
	case ir.BinaryLogicalAnd:
		return boolean(a != 0 && b != 0)
	case ir.BinaryLogicalOr:
		return boolean(a != 0 || b != 0)
	}
	switch kind {
	case ir.ScalarSint:
		return float64(sintOp(op, int32(a), int32(b)))
	case ir.ScalarUint:
		return float64(uintOp(op, uint32(a), uint32(b)))
	case ir.ScalarBool:
		switch op {
		case ir.BinaryAnd:
			return boolean(a != 0 && b != 0)
		case ir.BinaryInclusiveOr:
			return boolean(a != 0 || b != 0)
		case ir.BinaryExclusiveOr:
			return boolean((a != 0) != (b != 0))
		}
		return 0
	}
	switch op {
	case ir.BinaryAdd:
		return f32(a + b)
	case ir.BinarySubtract:
		return f32(a - b)
	case ir.BinaryMultiply:
		return f32(a * b)
	case ir.BinaryDivide:
		return f32(a / b)
	case ir.BinaryModulo:
		return f32(math.Mod(a, b))
	}
	return 0
}

func sintOp(op ir.BinaryOperator, a, b int32) int32 {
	switch op {
	case ir.BinaryAdd:
		return a + b
	case ir.BinarySubtract:
		return a - b
	case ir.BinaryMultiply:
		return a * b
	case ir.BinaryDivide:
		if b == 0 || (a == math.MinInt32 && b == -1) {
			return a
		}
		return a / b
	case ir.BinaryModulo:
		if b == 0 || (a == math.MinInt32 && b == -1) {
			return 0
		}
		return a % b
	case ir.BinaryAnd:
		return a & b
	case ir.BinaryExclusiveOr:
		return a ^ b
	case ir.BinaryInclusiveOr:
		return a | b
	case ir.BinaryShiftLeft:
		return a << (uint32(b) & 31)
	case ir.BinaryShiftRight:
		return a >> (uint32(b) & 31)
	}
	return 0
}

func uintOp(op ir.BinaryOperator, a, b uint32) uint32 {
	switch op {
	case ir.BinaryAdd:
		return a + b
	case ir.BinarySubtract:
		return a - b
	case ir.BinaryMultiply:
		return a * b
	case ir.BinaryDivide:
		if b == 0 {
			return a
		}
		return a / b
	case ir.BinaryModulo:
		if b == 0 {
			return 0
		}
		return a % b
	case ir.BinaryAnd:
		return a & b
	case ir.BinaryExclusiveOr:
		return a ^ b
	case ir.BinaryInclusiveOr:
		return a | b
	case ir.BinaryShiftLeft:
		return a << (b & 31)
	case ir.BinaryShiftRight:
		return a >> (b & 31)
	}
	return 0
}

func relational(fun ir.RelationalFunction, v value) (value, error) {
	switch fun {
	case ir.RelationalAll:
		for _, x := range v.s {
			if x == 0 {
				return scalar(0), nil
			}
		}
		return scalar(1), nil
	case ir.RelationalAny:
		for _, x := range v.s {
			if x != 0 {
				return scalar(1), nil
			}
		}
		return scalar(0), nil
	case ir.RelationalIsNan, ir.RelationalIsInf:
		s := make([]float64, len(v.s))
		for i, x := range v.s {
			if fun == ir.RelationalIsNan {
				s[i] = boolean(math.IsNaN(x))
			} else {
				s[i] = boolean(math.IsInf(x, 0))
			}
		}
		return value{s: s}, nil
	}
	return value{}, errors.Wrapf(errUnsupported, "relational function %d", fun)
}

func convert(v value, from, to ir.ScalarKind, width *uint8) value {
	s := make([]float64, len(v.s))
	for i, x := range v.s {
		if width == nil {
			s[i] = bitcast(x, from, to)
			continue
		}
		switch to {
		case ir.ScalarFloat:
			s[i] = f32(x)
		case ir.ScalarSint:
			s[i] = math.Trunc(math.Max(math.MinInt32, math.Min(math.MaxInt32, x)))
		case ir.ScalarUint:
			s[i] = math.Trunc(math.Max(0, math.Min(math.MaxUint32, x)))
		case ir.ScalarBool:
			s[i] = boolean(x != 0)
		}
	}
	return value{s: s}
}

func bitcast(x float64, from, to ir.ScalarKind) float64 {
	var raw uint32
	switch from {
	case ir.ScalarFloat:
		raw = math.Float32bits(float32(x))
	case ir.ScalarSint:
		raw = uint32(int32(x))
	default:
		raw = uint32(x)
	}
	switch to {
	case ir.ScalarFloat:
		return float64(math.Float32frombits(raw))
	case ir.ScalarSint:
		return float64(int32(raw))
	}
	return float64(raw)
}

var unaryMath = map[ir.MathFunction]func(float64) float64{
	ir.MathCos:         math.Cos,
	ir.MathCosh:        math.Cosh,
	ir.MathSin:         math.Sin,
	ir.MathSinh:        math.Sinh,
	ir.MathTan:         math.Tan,
	ir.MathTanh:        math.Tanh,
	ir.MathAcos:        math.Acos,
	ir.MathAsin:        math.Asin,
	ir.MathAtan:        math.Atan,
	ir.MathAsinh:       math.Asinh,
	ir.MathAcosh:       math.Acosh,
	ir.MathAtanh:       math.Atanh,
	ir.MathCeil:        math.Ceil,
	ir.MathFloor:       math.Floor,
	ir.MathRound:       math.RoundToEven,
	ir.MathTrunc:       math.Trunc,
	ir.MathExp:         math.Exp,
	ir.MathExp2:        math.Exp2,
	ir.MathLog:         math.Log,
	ir.MathLog2:        math.Log2,
	ir.MathSqrt:        math.Sqrt,
	ir.MathRadians:     radians,
	ir.MathDegrees:     degrees,
	ir.MathFract:       fract,
	ir.MathInverseSqrt: inverseSqrt,
	ir.MathSaturate:    saturate,
	ir.MathSign:        sign,
}

func radians(x float64) float64     { return x * math.Pi / 180 }
func degrees(x float64) float64     { return x * 180 / math.Pi }
func fract(x float64) float64       { return x - math.Floor(x) }
func inverseSqrt(x float64) float64 { return 1 / math.Sqrt(x) }
func saturate(x float64) float64    { return math.Max(0, math.Min(1, x)) }

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

func (f *frame) math(e ir.ExprMath) (value, error) {
	handles := []ir.ExpressionHandle{e.Arg}
	for _, h := range []*ir.ExpressionHandle{e.Arg1, e.Arg2, e.Arg3} {
		if h != nil {
			handles = append(handles, *h)
		}
	}
	args, err := f.evalAll(handles...)
	if err != nil {
		return value{}, err
	}
	a := args[0]
	kind := kindOf(f.typeOf(e.Arg))
	arg := func(n int, i int) float64 {
		s := args[n].s
		if len(s) == 1 {
			return s[0]
		}
		return s[i]
	}
	each := func(fn func(i int) float64) value {
		s := make([]float64, len(a.s))
		for i := range s {
			s[i] = fn(i)
			if kind == ir.ScalarFloat {
				s[i] = f32(s[i])
			}
		}
		return value{s: s}
	}

	if fn, ok := unaryMath[e.Fun]; ok {
		return each(func(i int) float64 { return fn(a.s[i]) }), nil
	}
	switch e.Fun {
	case ir.MathAbs:
		return each(func(i int) float64 {
			if kind == ir.ScalarSint {
				return float64(int32(math.Abs(a.s[i])))
			}
			return math.Abs(a.s[i])
		}), nil
	case ir.MathMin:
		return each(func(i int) float64 { return math.Min(a.s[i], arg(1, i)) }), nil
	case ir.MathMax:
		return each(func(i int) float64 { return math.Max(a.s[i], arg(1, i)) }), nil
	case ir.MathClamp:
		return each(func(i int) float64 { return math.Min(math.Max(a.s[i], arg(1, i)), arg(2, i)) }), nil
	case ir.MathAtan2:
		return each(func(i int) float64 { return math.Atan2(a.s[i], arg(1, i)) }), nil
	case ir.MathPow:
		return each(func(i int) float64 { return math.Pow(a.s[i], arg(1, i)) }), nil
	case ir.MathStep:
		// step(edge, x)
		return each(func(i int) float64 { return boolean(arg(1, i) >= a.s[i]) }), nil
	case ir.MathSmoothStep:
		return value{s: smoothstep(a, args[1], args[2])}, nil
	case ir.MathMix:
		return each(func(i int) float64 {
			t := arg(2, i)
			return a.s[i]*(1-t) + arg(1, i)*t
		}), nil
	case ir.MathFma:
		return each(func(i int) float64 { return a.s[i]*arg(1, i) + arg(2, i) }), nil
	case ir.MathDot:
		var sum float64
		for i := range a.s {
			sum += a.s[i] * args[1].s[i]
		}
		if kind == ir.ScalarFloat {
			sum = f32(sum)
		}
		return scalar(sum), nil
	case ir.MathLength:
		return scalar(f32(norm(a.s))), nil
	case ir.MathDistance:
		d := make([]float64, len(a.s))
		for i := range d {
			d[i] = a.s[i] - args[1].s[i]
		}
		return scalar(f32(norm(d))), nil
	case ir.MathNormalize:
		n := norm(a.s)
		return each(func(i int) float64 { return a.s[i] / n }), nil
	case ir.MathCross:
		b := args[1].s
		return value{s: []float64{
			f32(a.s[1]*b[2] - a.s[2]*b[1]),
			f32(a.s[2]*b[0] - a.s[0]*b[2]),
			f32(a.s[0]*b[1] - a.s[1]*b[0]),
		}}, nil
	case ir.MathTranspose:
		m, ok := f.typeOf(e.Arg).(ir.MatrixType)
		if !ok {
			break
		}
		rows, cols := int(m.Rows), int(m.Columns)
		out := make([]float64, len(a.s))
		for c := 0; c < cols; c++ {
			for r := 0; r < rows; r++ {
				out[r*cols+c] = a.s[c*rows+r]
			}
		}
		return value{s: out}, nil
	case ir.MathCountOneBits:
		return each(func(i int) float64 { return float64(bits.OnesCount32(uint32(a.s[i]))) }), nil
	case ir.MathReverseBits:
		return each(func(i int) float64 { return bitcast(float64(bits.Reverse32(uint32(a.s[i]))), ir.ScalarUint, kind) }), nil
	case ir.MathCountLeadingZeros:
		return each(func(i int) float64 { return float64(bits.LeadingZeros32(uint32(a.s[i]))) }), nil
	case ir.MathCountTrailingZeros:
		return each(func(i int) float64 { return float64(bits.TrailingZeros32(uint32(a.s[i]))) }), nil
	}
	return value{}, errors.Wrapf(errUnsupported, "math function %d", e.Fun)
}

func norm(s []float64) float64 {
	var sum float64
	for _, x := range s {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func smoothstep(lo, hi, x value) []float64 {
	pick := func(v value, i int) float64 {
		if len(v.s) == 1 {
			return v.s[0]
		}
		return v.s[i]
	}
	out := make([]float64, len(x.s))
	for i := range out {
		l, h := pick(lo, i), pick(hi, i)
		t := math.Max(0, math.Min(1, (x.s[i]-l)/(h-l)))
		out[i] = f32(t * t * (3 - 2*t))
	}
	return out
}

func (f *frame) block(b ir.Block) (flow, error) {
	for _, st := range b {
		fl, err := f.stmt(st)
		if err != nil || fl != flowNext {
			return fl, err
		}
	}
	return flowNext, nil
}

func (f *frame) tick() error {
	f.mc.steps++
	if f.mc.steps > stepBudget {
		return errors.New("shader exceeded its step budget")
	}
	return nil
}

func (f *frame) stmt(st ir.Statement) (flow, error) {
	if err := f.tick(); err != nil {
		return flowNext, err
	}
	switch s := st.Kind.(type) {
	case ir.StmtEmit:
		for h := s.Range.Start; h < s.Range.End; h++ {
			f.done[h] = false
		}
		for h := s.Range.Start; h < s.Range.End; h++ {
			if _, err := f.eval(h); err != nil {
				return flowNext, err
			}
		}
	case ir.StmtBlock:
		return f.block(s.Block)
	case ir.StmtIf:
		c, err := f.eval(s.Condition)
		if err != nil {
			return flowNext, err
		}
		if c.s[0] != 0 {
			return f.block(s.Accept)
		}
		return f.block(s.Reject)
	case ir.StmtSwitch:
		return f.switchStmt(s)
	case ir.StmtLoop:
		return f.loop(s)
	case ir.StmtBreak:
		return flowBreak, nil
	case ir.StmtContinue:
		return flowContinue, nil
	case ir.StmtReturn:
		if s.Value != nil {
			v, err := f.eval(*s.Value)
			if err != nil {
				return flowNext, err
			}
			if v.ptr != nil {
				v = v.ptr.load()
			}
			f.ret = v.clone()
		}
		return flowReturn, nil
	case ir.StmtKill:
		return flowKill, nil
	case ir.StmtStore:
		vs, err := f.evalAll(s.Pointer, s.Value)
		if err != nil {
			return flowNext, err
		}
		if vs[0].ptr == nil {
			return flowNext, errors.New("store through a non-pointer")
		}
		vs[0].ptr.store(vs[1])
	case ir.StmtCall:
		args, err := f.evalAll(s.Arguments...)
		if err != nil {
			return flowNext, err
		}
		ret, fl, err := f.mc.call(s.Function, args)
		if err != nil {
			return flowNext, err
		}
		if fl == flowKill {
			return flowKill, nil
		}
		if s.Result != nil {
			if f.calls == nil {
				f.calls = map[ir.ExpressionHandle]value{}
			}
			f.calls[*s.Result] = ret
			f.done[*s.Result] = false
		}
	case ir.StmtBarrier:
	default:
		return flowNext, errors.Wrapf(errUnsupported, "statement %T", st.Kind)
	}
	return flowNext, nil
}

func (f *frame) switchStmt(s ir.StmtSwitch) (flow, error) {
	sel, err := f.eval(s.Selector)
	if err != nil {
		return flowNext, err
	}
	x := int64(sel.s[0])
	start := -1
	for i, c := range s.Cases {
		switch v := c.Value.(type) {
		case ir.SwitchValueI32:
			if int64(v) == x {
				start = i
			}
		case ir.SwitchValueU32:
			if int64(v) == x {
				start = i
			}
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		for i, c := range s.Cases {
			if _, ok := c.Value.(ir.SwitchValueDefault); ok {
				start = i
				break
			}
		}
	}
	if start < 0 {
		return flowNext, nil
	}
	for i := start; i < len(s.Cases); i++ {
		fl, err := f.block(s.Cases[i].Body)
		if err != nil {
			return flowNext, err
		}
		switch fl {
		case flowBreak:
			return flowNext, nil
		case flowNext:
			if !s.Cases[i].FallThrough {
				return flowNext, nil
			}
		default:
			return fl, nil
		}
	}
	return flowNext, nil
}

func (f *frame) loop(s ir.StmtLoop) (flow, error) {
	for {
		if err := f.tick(); err != nil {
			return flowNext, err
		}
		fl, err := f.block(s.Body)
		if err != nil {
			return flowNext, err
		}
		switch fl {
		case flowBreak:
			return flowNext, nil
		case flowReturn, flowKill:
			return fl, nil
		}
		fl, err = f.block(s.Continuing)
		if err != nil {
			return flowNext, err
		}
		if fl == flowReturn || fl == flowKill {
			return fl, nil
		}
		if s.BreakIf != nil {
			c, err := f.eval(*s.BreakIf)
			if err != nil {
				return flowNext, err
			}
			if c.s[0] != 0 {
				return flowNext, nil
			}
		}
	}
}
