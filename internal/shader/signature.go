package shader

import (
	"fmt"

	"github.com/andewx/diesel/driver"
	"github.com/gogpu/naga/ir"
	"github.com/pkg/errors"
)

// SignatureSemantic is the semantic every @location input is exposed under.
const SignatureSemantic = "TEXCOORD"

// SignatureElement is one user input of an entry point. Index is the
// @location number and also the TEXCOORD semantic index.
type SignatureElement struct {
	Semantic   string
	Index      uint32
	Components int
	Kind       driver.ComponentKind
}

func (e SignatureElement) String() string {
	return fmt.Sprintf("%s%d", e.Semantic, e.Index)
}

// Signature lists the inputs an entry point reads, in declaration order.
type Signature []SignatureElement

// InputSignature reflects the @location inputs of ep. Builtins such as
// vertex_index are system values and do not appear.
func InputSignature(m *ir.Module, ep *ir.EntryPoint) (Signature, error) {
	fn := &m.Functions[ep.Function]
	var sig Signature
	for _, arg := range fn.Arguments {
		if arg.Binding != nil {
			el, ok, err := signatureElement(m, *arg.Binding, arg.Type, arg.Name)
			if err != nil {
				return nil, err
			}
			if ok {
				sig = append(sig, el)
			}
			continue
		}
		st, isStruct := m.Types[arg.Type].Inner.(ir.StructType)
		if !isStruct {
			return nil, errors.Errorf("entry point %s: argument %s has no binding", ep.Name, arg.Name)
		}
		for _, member := range st.Members {
			if member.Binding == nil {
				return nil, errors.Errorf("entry point %s: member %s has no binding", ep.Name, member.Name)
			}
			el, ok, err := signatureElement(m, *member.Binding, member.Type, member.Name)
			if err != nil {
				return nil, err
			}
			if ok {
				sig = append(sig, el)
			}
		}
	}
	return sig, nil
}

func signatureElement(m *ir.Module, b ir.Binding, ty ir.TypeHandle, name string) (SignatureElement, bool, error) {
	loc, ok := b.(ir.LocationBinding)
	if !ok {
		return SignatureElement{}, false, nil
	}
	comps, kind, err := TypeShape(m.Types[ty].Inner)
	if err != nil {
		return SignatureElement{}, false, errors.Wrapf(err, "input %s", name)
	}
	return SignatureElement{
		Semantic:   SignatureSemantic,
		Index:      loc.Location,
		Components: comps,
		Kind:       kind,
	}, true, nil
}

// TypeShape returns the component count and kind of a scalar or vector type.
func TypeShape(inner ir.TypeInner) (int, driver.ComponentKind, error) {
	switch t := inner.(type) {
	case ir.ScalarType:
		return 1, scalarKind(t.Kind), nil
	case ir.VectorType:
		return int(t.Size), scalarKind(t.Scalar.Kind), nil
	}
	return 0, driver.ComponentUnknown, errors.Errorf("unsupported input type %T", inner)
}

func scalarKind(k ir.ScalarKind) driver.ComponentKind {
	switch k {
	case ir.ScalarFloat:
		return driver.ComponentFloat
	case ir.ScalarUint:
		return driver.ComponentUint
	case ir.ScalarSint:
		return driver.ComponentSint
	}
	return driver.ComponentUnknown
}
