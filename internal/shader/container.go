package shader

import (
	"bytes"
	"encoding/binary"

	"github.com/andewx/diesel/driver"
	"github.com/pkg/errors"
)

// Bytecode is the compiled form handed to CreateVertexShader,
// CreatePixelShader and CreateInputLayout.
//
// Layout, little endian:
//
//	"DSBC" version:u32 chunks:u32
//	{ tag:[4]byte size:u32 payload padded to 4 }*
//
// Chunks are ENTR (stage, profile, entry point), WGSL (source), ISGN (input
// signature) and, when requested, SPRV (SPIR-V words).
type Bytecode struct {
	Profile Profile
	Entry   string
	Source  string
	Inputs  Signature
	SPIRV   []byte
}

const (
	containerMagic   = "DSBC"
	containerVersion = 1
)

var (
	tagEntry     = [4]byte{'E', 'N', 'T', 'R'}
	tagSource    = [4]byte{'W', 'G', 'S', 'L'}
	tagSignature = [4]byte{'I', 'S', 'G', 'N'}
	tagSPIRV     = [4]byte{'S', 'P', 'R', 'V'}
)

// ErrNotBytecode is returned by Decode for data that did not come from Encode.
var ErrNotBytecode = errors.New("not diesel shader bytecode")

func (b *Bytecode) Encode() []byte {
	type chunk struct {
		tag  [4]byte
		data []byte
	}
	var entry bytes.Buffer
	entry.WriteByte(byte(b.Profile.Stage))
	entry.WriteByte(byte(b.Profile.Major))
	entry.WriteByte(byte(b.Profile.Minor))
	entry.WriteByte(0)
	entry.WriteString(b.Entry)

	chunks := []chunk{
		{tagEntry, entry.Bytes()},
		{tagSource, []byte(b.Source)},
		{tagSignature, encodeSignature(b.Inputs)},
	}
	if len(b.SPIRV) > 0 {
		chunks = append(chunks, chunk{tagSPIRV, b.SPIRV})
	}

	var out bytes.Buffer
	out.WriteString(containerMagic)
	binary.Write(&out, binary.LittleEndian, uint32(containerVersion))
	binary.Write(&out, binary.LittleEndian, uint32(len(chunks)))
	for _, c := range chunks {
		out.Write(c.tag[:])
		binary.Write(&out, binary.LittleEndian, uint32(len(c.data)))
		out.Write(c.data)
		for out.Len()%4 != 0 {
			out.WriteByte(0)
		}
	}
	return out.Bytes()
}

func encodeSignature(sig Signature) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(len(sig)))
	for _, el := range sig {
		binary.Write(&buf, binary.LittleEndian, el.Index)
		buf.WriteByte(byte(el.Components))
		buf.WriteByte(byte(el.Kind))
		buf.WriteByte(byte(len(el.Semantic)))
		buf.WriteByte(0)
		buf.WriteString(el.Semantic)
	}
	return buf.Bytes()
}

// Decode parses a container produced by Encode. Unknown chunks are skipped.
func Decode(data []byte) (*Bytecode, error) {
	if len(data) < 12 || string(data[:4]) != containerMagic {
		return nil, ErrNotBytecode
	}
	le := binary.LittleEndian
	if v := le.Uint32(data[4:]); v != containerVersion {
		return nil, errors.Errorf("unsupported bytecode version %d", v)
	}
	count := le.Uint32(data[8:])
	pos := 12
	b := &Bytecode{}
	var seenEntry, seenSignature bool
	for i := uint32(0); i < count; i++ {
		if pos+8 > len(data) {
			return nil, errors.New("truncated bytecode chunk header")
		}
		var tag [4]byte
		copy(tag[:], data[pos:pos+4])
		size := int(le.Uint32(data[pos+4:]))
		pos += 8
		if size < 0 || pos+size > len(data) {
			return nil, errors.Errorf("truncated %s chunk", tag[:])
		}
		payload := data[pos : pos+size]
		pos += (size + 3) &^ 3

		switch tag {
		case tagEntry:
			if len(payload) < 4 {
				return nil, errors.New("short ENTR chunk")
			}
			b.Profile = Profile{
				Stage: driver.ShaderStage(payload[0]),
				Major: int(payload[1]),
				Minor: int(payload[2]),
			}
			b.Entry = string(payload[4:])
			seenEntry = true
		case tagSource:
			b.Source = string(payload)
		case tagSignature:
			sig, err := decodeSignature(payload)
			if err != nil {
				return nil, err
			}
			b.Inputs = sig
			seenSignature = true
		case tagSPIRV:
			b.SPIRV = append([]byte(nil), payload...)
		}
	}
	if !seenEntry || !seenSignature {
		return nil, errors.New("bytecode is missing ENTR or ISGN")
	}
	return b, nil
}

func decodeSignature(p []byte) (Signature, error) {
	if len(p) < 4 {
		return nil, errors.New("short ISGN chunk")
	}
	n := binary.LittleEndian.Uint32(p)
	p = p[4:]
	sig := make(Signature, 0, n)
	for i := uint32(0); i < n; i++ {
		if len(p) < 8 {
			return nil, errors.New("short ISGN element")
		}
		nameLen := int(p[6])
		if len(p) < 8+nameLen {
			return nil, errors.New("short ISGN element name")
		}
		sig = append(sig, SignatureElement{
			Index:      binary.LittleEndian.Uint32(p),
			Components: int(p[4]),
			Kind:       driver.ComponentKind(p[5]),
			Semantic:   string(p[8 : 8+nameLen]),
		})
		p = p[8+nameLen:]
	}
	return sig, nil
}
