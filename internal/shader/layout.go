package shader

import (
	"fmt"
	"strings"

	"github.com/andewx/diesel/driver"
)

// LayoutError reports an input layout that does not fit a signature.
type LayoutError struct {
	Element string
	Reason  string
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("input layout: %s: %s", e.Element, e.Reason)
}

// Feeds reports whether desc supplies sig. TEXCOORDn feeds @location(n), and
// POSITION0 also feeds @location(0).
func Feeds(desc driver.InputElementDesc, sig SignatureElement) bool {
	name := strings.ToUpper(desc.SemanticName)
	if name == strings.ToUpper(sig.Semantic) && desc.SemanticIndex == sig.Index {
		return true
	}
	return name == "POSITION" && desc.SemanticIndex == 0 && sig.Index == 0
}

// Match returns the index of the element feeding sig.
func Match(elements []driver.InputElementDesc, sig SignatureElement) (int, bool) {
	for i, desc := range elements {
		if Feeds(desc, sig) {
			return i, true
		}
	}
	return -1, false
}

// ValidateLayout checks elements against the input signature of the bytecode
// the layout is created with, or later drawn with. Elements the signature does
// not read are allowed.
func ValidateLayout(elements []driver.InputElementDesc, sig Signature) error {
	seen := make(map[string]bool, len(elements))
	for _, desc := range elements {
		label := fmt.Sprintf("%s%d", desc.SemanticName, desc.SemanticIndex)
		if desc.SemanticName == "" {
			return &LayoutError{Element: label, Reason: "empty semantic name"}
		}
		key := strings.ToUpper(label)
		if seen[key] {
			return &LayoutError{Element: label, Reason: "duplicate semantic"}
		}
		seen[key] = true
		if desc.Format.Size() == 0 {
			return &LayoutError{Element: label, Reason: "unsupported format " + desc.Format.String()}
		}
		if desc.InputSlotClass == driver.InputPerInstanceData && desc.InstanceDataStepRate == 0 {
			return &LayoutError{Element: label, Reason: "per-instance element with zero step rate"}
		}
	}
	for _, el := range sig {
		i, ok := Match(elements, el)
		if !ok {
			return &LayoutError{Element: el.String(), Reason: "no input element feeds this shader input"}
		}
		if kind := elements[i].Format.Kind(); kind != el.Kind {
			return &LayoutError{
				Element: el.String(),
				Reason:  fmt.Sprintf("format %s does not match the shader input type", elements[i].Format),
			}
		}
	}
	return nil
}

// ResolveOffsets returns the byte offset of every element within its slot,
// expanding AppendAlignedElement.
func ResolveOffsets(elements []driver.InputElementDesc) []uint32 {
	next := map[uint32]uint32{}
	offsets := make([]uint32, len(elements))
	for i, desc := range elements {
		off := desc.AlignedByteOffset
		if off == driver.AppendAlignedElement {
			off = next[desc.InputSlot]
		}
		offsets[i] = off
		next[desc.InputSlot] = off + uint32(desc.Format.Size())
	}
	return offsets
}
