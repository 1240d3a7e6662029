package soft

import (
	"github.com/gogpu/naga/ir"
	"github.com/pkg/errors"
)

// attr is one located stage input or output.
type attr struct {
	v      []float64
	flat   bool
	linear bool
}

// stageIO carries the values crossing a pipeline stage boundary.
type stageIO struct {
	position      [4]float64
	frontFacing   bool
	vertexIndex   uint32
	instanceIndex uint32
	loc           map[uint32]attr
}

// invoke runs entry point ep with stage inputs in. A discarded invocation
// reports killed and no outputs.
func (mc *machine) invoke(ep *ir.EntryPoint, in *stageIO) (out *stageIO, killed bool, err error) {
	mc.reset()
	fn := &mc.m.Functions[ep.Function]
	args := make([]value, len(fn.Arguments))
	for i, a := range fn.Arguments {
		if a.Binding != nil {
			args[i] = mc.bindIn(*a.Binding, a.Type, in)
			continue
		}
		st, ok := mc.inner(a.Type).(ir.StructType)
		if !ok {
			return nil, false, errors.Errorf("entry point %s: argument %s has no binding", ep.Name, a.Name)
		}
		fields := make([]value, len(st.Members))
		for j, mem := range st.Members {
			if mem.Binding == nil {
				return nil, false, errors.Errorf("entry point %s: member %s has no binding", ep.Name, mem.Name)
			}
			fields[j] = mc.bindIn(*mem.Binding, mem.Type, in)
		}
		args[i] = value{fields: fields}
	}

	ret, fl, err := mc.call(ep.Function, args)
	if err != nil {
		return nil, false, errors.Wrapf(err, "entry point %s", ep.Name)
	}
	if fl == flowKill {
		return nil, true, nil
	}
	out = &stageIO{loc: map[uint32]attr{}}
	if r := fn.Result; r != nil {
		if r.Binding != nil {
			mc.bindOut(*r.Binding, r.Type, ret, out)
		} else if st, ok := mc.inner(r.Type).(ir.StructType); ok {
			for j, mem := range st.Members {
				if mem.Binding != nil && j < len(ret.fields) {
					mc.bindOut(*mem.Binding, mem.Type, ret.fields[j], out)
				}
			}
		}
	}
	return out, false, nil
}

func (mc *machine) bindIn(b ir.Binding, ty ir.TypeHandle, in *stageIO) value {
	v := mc.zero(mc.inner(ty))
	switch b := b.(type) {
	case ir.BuiltinBinding:
		switch b.Builtin {
		case ir.BuiltinPosition:
			copy(v.s, in.position[:])
		case ir.BuiltinVertexIndex:
			v.s[0] = float64(in.vertexIndex)
		case ir.BuiltinInstanceIndex:
			v.s[0] = float64(in.instanceIndex)
		case ir.BuiltinFrontFacing:
			v.s[0] = boolean(in.frontFacing)
		}
	case ir.LocationBinding:
		src := in.loc[b.Location].v
		for i := range v.s {
			switch {
			case i < len(src):
				v.s[i] = src[i]
			case i == 3:
				v.s[i] = 1
			}
		}
	}
	return v
}

func (mc *machine) bindOut(b ir.Binding, ty ir.TypeHandle, v value, out *stageIO) {
	switch b := b.(type) {
	case ir.BuiltinBinding:
		if b.Builtin == ir.BuiltinPosition {
			copy(out.position[:], v.s)
		}
	case ir.LocationBinding:
		a := attr{v: append([]float64(nil), v.s...)}
		a.flat = kindOf(mc.inner(ty)) != ir.ScalarFloat
		if ip := b.Interpolation; ip != nil {
			a.flat = a.flat || ip.Kind == ir.InterpolationFlat
			a.linear = ip.Kind == ir.InterpolationLinear
		}
		out.loc[b.Location] = a
	}
}
