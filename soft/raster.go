package soft

import (
	"encoding/binary"
	"math"

	"github.com/andewx/diesel/driver"
	"github.com/gogpu/naga/ir"
	"github.com/pkg/errors"
)

// subpixel is the vertex snapping grid, 1/256 of a pixel.
const subpixel = 256

// decode reads one element of format f into four components. Components the
// format lacks default to 0, 0, 0, 1. A short read yields the defaults.
func decode(f driver.Format, b []byte) []float64 {
	out := []float64{0, 0, 0, 1}
	if len(b) < f.Size() {
		return out
	}
	le := binary.LittleEndian
	switch f {
	case driver.FormatR8G8B8A8Unorm:
		for i := 0; i < 4; i++ {
			out[i] = float64(b[i]) / 255
		}
	case driver.FormatB8G8R8A8Unorm:
		out[0], out[1], out[2], out[3] = float64(b[2])/255, float64(b[1])/255, float64(b[0])/255, float64(b[3])/255
	default:
		for i := 0; i < f.Components(); i++ {
			w := le.Uint32(b[4*i:])
			if f.Kind() == driver.ComponentFloat {
				out[i] = float64(math.Float32frombits(w))
			} else {
				out[i] = float64(w)
			}
		}
	}
	return out
}

func unorm8(x float64) byte {
	if math.IsNaN(x) {
		return 0
	}
	return byte(math.RoundToEven(saturate(x) * 255))
}

// encode writes color into one pixel of a renderable format.
func encode(f driver.Format, dst []byte, color []float64) {
	c := [4]float64{0, 0, 0, 1}
	copy(c[:], color)
	switch f {
	case driver.FormatB8G8R8A8Unorm:
		dst[0], dst[1], dst[2], dst[3] = unorm8(c[2]), unorm8(c[1]), unorm8(c[0]), unorm8(c[3])
	case driver.FormatR8G8B8A8Unorm:
		dst[0], dst[1], dst[2], dst[3] = unorm8(c[0]), unorm8(c[1]), unorm8(c[2]), unorm8(c[3])
	}
}

func fill(t *Texture2D, color [4]float32) {
	px := make([]byte, t.desc.Format.Size())
	encode(t.desc.Format, px, []float64{float64(color[0]), float64(color[1]), float64(color[2]), float64(color[3])})
	for i := 0; i+len(px) <= len(t.data); i += len(px) {
		copy(t.data[i:], px)
	}
}

// edge is twice the signed area of triangle a, b, p. It is positive when p
// lies to the right of a->b with y pointing down.
func edge(ax, ay, bx, by, px, py float64) float64 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

// topLeft reports whether a->b is a top or left edge of a clockwise triangle.
func topLeft(ax, ay, bx, by float64) bool {
	return (ay == by && bx > ax) || by < ay
}

func covers(w float64, tl bool) bool {
	return w > 0 || (w == 0 && tl)
}

// screenVertex is a vertex after the viewport transform.
type screenVertex struct {
	x, y, z, invW float64
	io            *stageIO
}

// rect is the half-open pixel rectangle a draw may touch.
type rect struct {
	x0, y0, x1, y1 int
}

func scissor(vp driver.Viewport, t *Texture2D) rect {
	r := rect{
		x0: int(math.Max(0, math.Floor(float64(vp.TopLeftX)))),
		y0: int(math.Max(0, math.Floor(float64(vp.TopLeftY)))),
		x1: int(math.Ceil(float64(vp.TopLeftX + vp.Width))),
		y1: int(math.Ceil(float64(vp.TopLeftY + vp.Height))),
	}
	r.x1 = min(r.x1, int(t.desc.Width))
	r.y1 = min(r.y1, int(t.desc.Height))
	return r
}

// project maps a clip space position through the viewport. Vertices on or
// behind the eye plane are rejected since there is no clipper.
func project(vp driver.Viewport, io *stageIO) (screenVertex, bool) {
	w := io.position[3]
	if !(w > 0) {
		return screenVertex{}, false
	}
	inv := 1 / w
	nx, ny, nz := io.position[0]*inv, io.position[1]*inv, io.position[2]*inv
	x := float64(vp.TopLeftX) + (nx+1)*0.5*float64(vp.Width)
	y := float64(vp.TopLeftY) + (1-ny)*0.5*float64(vp.Height)
	return screenVertex{
		x:    math.Round(x*subpixel) / subpixel,
		y:    math.Round(y*subpixel) / subpixel,
		z:    float64(vp.MinDepth) + nz*float64(vp.MaxDepth-vp.MinDepth),
		invW: inv,
		io:   io,
	}, true
}

// cover calls fn for every pixel whose center lies inside the clockwise
// triangle v, with the barycentric weights of that center. Shared edges are
// owned by one triangle through the top-left rule.
func cover(v [3]screenVertex, clip rect, fn func(px, py int, l [3]float64) error) error {
	a, b, c := v[0], v[1], v[2]
	area := edge(a.x, a.y, b.x, b.y, c.x, c.y)
	if !(area > 0) {
		return nil
	}
	x0 := max(clip.x0, int(math.Floor(math.Min(a.x, math.Min(b.x, c.x)))))
	y0 := max(clip.y0, int(math.Floor(math.Min(a.y, math.Min(b.y, c.y)))))
	x1 := min(clip.x1, int(math.Ceil(math.Max(a.x, math.Max(b.x, c.x))))+1)
	y1 := min(clip.y1, int(math.Ceil(math.Max(a.y, math.Max(b.y, c.y))))+1)

	tlA := topLeft(b.x, b.y, c.x, c.y)
	tlB := topLeft(c.x, c.y, a.x, a.y)
	tlC := topLeft(a.x, a.y, b.x, b.y)
	for py := y0; py < y1; py++ {
		cy := float64(py) + 0.5
		for px := x0; px < x1; px++ {
			cx := float64(px) + 0.5
			wa := edge(b.x, b.y, c.x, c.y, cx, cy)
			wb := edge(c.x, c.y, a.x, a.y, cx, cy)
			wc := edge(a.x, a.y, b.x, b.y, cx, cy)
			if !covers(wa, tlA) || !covers(wb, tlB) || !covers(wc, tlC) {
				continue
			}
			if err := fn(px, py, [3]float64{wa / area, wb / area, wc / area}); err != nil {
				return err
			}
		}
	}
	return nil
}

// triangle shades the pixels v covers in target. Counter-clockwise triangles
// are culled.
func triangle(v [3]screenVertex, clip rect, target *Texture2D, ps *machine, ep *ir.EntryPoint) error {
	size := target.desc.Format.Size()
	return cover(v, clip, func(px, py int, l [3]float64) error {
		in := interpolate(v, l)
		in.position = [4]float64{
			float64(px) + 0.5,
			float64(py) + 0.5,
			l[0]*v[0].z + l[1]*v[1].z + l[2]*v[2].z,
			l[0]*v[0].invW + l[1]*v[1].invW + l[2]*v[2].invW,
		}
		in.frontFacing = true
		out, killed, err := ps.invoke(ep, in)
		if err != nil {
			return errors.Wrapf(err, "pixel (%d, %d)", px, py)
		}
		if killed {
			return nil
		}
		if color, ok := out.loc[0]; ok {
			off := py*target.pitch + px*size
			encode(target.desc.Format, target.data[off:off+size], color.v)
		}
		return nil
	})
}

// interpolate blends the located outputs of v with barycentric weights l.
// Flat attributes come from the provoking vertex, v[0].
func interpolate(v [3]screenVertex, l [3]float64) *stageIO {
	in := &stageIO{loc: make(map[uint32]attr, len(v[0].io.loc))}
	pw := l[0]*v[0].invW + l[1]*v[1].invW + l[2]*v[2].invW
	for loc, a0 := range v[0].io.loc {
		if a0.flat {
			in.loc[loc] = a0
			continue
		}
		a1, a2 := v[1].io.loc[loc], v[2].io.loc[loc]
		out := make([]float64, len(a0.v))
		for i := range out {
			c := [3]float64{a0.v[i], at(a1.v, i), at(a2.v, i)}
			if a0.linear {
				out[i] = l[0]*c[0] + l[1]*c[1] + l[2]*c[2]
			} else {
				out[i] = (l[0]*c[0]*v[0].invW + l[1]*c[1]*v[1].invW + l[2]*c[2]*v[2].invW) / pw
			}
		}
		in.loc[loc] = attr{v: out}
	}
	return in
}

func at(s []float64, i int) float64 {
	if i < len(s) {
		return s[i]
	}
	return 0
}
