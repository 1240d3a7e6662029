package diesel

import "github.com/andewx/diesel/driver"

// TriangleShader passes positions through and fills with white.
const TriangleShader = `
@vertex
fn vs_main(@location(0) pos: vec4<f32>) -> @builtin(position) vec4<f32> {
    return pos;
}

@fragment
fn ps_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 1.0, 1.0, 1.0);
}
`

// Scene is the fixed content a Renderer sets up and draws.
type Scene struct {
	VertexSource  string
	PixelSource   string
	VertexEntry   string
	PixelEntry    string
	VertexProfile string
	PixelProfile  string
	CompileFlags  driver.CompileFlag

	InputElements []driver.InputElementDesc
	Vertices      []Vertex
	Topology      driver.PrimitiveTopology

	// Viewport covers the whole back buffer when Width or Height is zero.
	Viewport     driver.Viewport
	ClearColor   [4]float32
	SwapChain    driver.SwapChainDesc1
	SyncInterval uint32
}

// DefaultScene is one white triangle on a blue background, presented with
// vsync into a two buffer flip-discard swapchain.
func DefaultScene() Scene {
	return Scene{
		VertexSource:  TriangleShader,
		PixelSource:   TriangleShader,
		VertexEntry:   "vs_main",
		PixelEntry:    "ps_main",
		VertexProfile: "vs_5_0",
		PixelProfile:  "ps_5_0",
		InputElements: []driver.InputElementDesc{{
			SemanticName:   "TEXCOORD",
			SemanticIndex:  0,
			Format:         driver.FormatR32G32B32Float,
			InputSlot:      0,
			InputSlotClass: driver.InputPerVertexData,
		}},
		Vertices: []Vertex{
			{0.0, 0.5, 0.0},
			{0.45, -0.5, 0.0},
			{-0.45, -0.5, 0.0},
		},
		Topology:   driver.TopologyTriangleList,
		ClearColor: [4]float32{0.0, 0.2, 0.4, 1.0},
		SwapChain: driver.SwapChainDesc1{
			Format:      driver.FormatB8G8R8A8Unorm,
			SampleDesc:  driver.SampleDesc{Count: 1},
			BufferUsage: driver.UsageRenderTargetOutput,
			BufferCount: 2,
			Scaling:     driver.ScalingStretch,
			SwapEffect:  driver.SwapEffectFlipDiscard,
			AlphaMode:   driver.AlphaModeIgnore,
		},
		SyncInterval: 1,
	}
}
