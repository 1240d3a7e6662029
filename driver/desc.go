package driver

import "strconv"

// Format values follow DXGI_FORMAT numbering.
type Format uint32

const (
	FormatUnknown           Format = 0
	FormatR32G32B32A32Float Format = 2
	FormatR32G32B32A32Uint  Format = 3
	FormatR32G32B32Float    Format = 6
	FormatR32G32B32Uint     Format = 7
	FormatR32G32Float       Format = 16
	FormatR32G32Uint        Format = 17
	FormatR8G8B8A8Unorm     Format = 28
	FormatR32Float          Format = 41
	FormatR32Uint           Format = 42
	FormatB8G8R8A8Unorm     Format = 87
)

// ComponentKind is the scalar type a format delivers to a shader.
type ComponentKind uint8

const (
	ComponentUnknown ComponentKind = iota
	ComponentFloat
	ComponentUint
	ComponentSint
)

type formatInfo struct {
	size       int
	components int
	kind       ComponentKind
	name       string
}

var formats = map[Format]formatInfo{
	FormatR32G32B32A32Float: {16, 4, ComponentFloat, "R32G32B32A32_FLOAT"},
	FormatR32G32B32A32Uint:  {16, 4, ComponentUint, "R32G32B32A32_UINT"},
	FormatR32G32B32Float:    {12, 3, ComponentFloat, "R32G32B32_FLOAT"},
	FormatR32G32B32Uint:     {12, 3, ComponentUint, "R32G32B32_UINT"},
	FormatR32G32Float:       {8, 2, ComponentFloat, "R32G32_FLOAT"},
	FormatR32G32Uint:        {8, 2, ComponentUint, "R32G32_UINT"},
	FormatR8G8B8A8Unorm:     {4, 4, ComponentFloat, "R8G8B8A8_UNORM"},
	FormatR32Float:          {4, 1, ComponentFloat, "R32_FLOAT"},
	FormatR32Uint:           {4, 1, ComponentUint, "R32_UINT"},
	FormatB8G8R8A8Unorm:     {4, 4, ComponentFloat, "B8G8R8A8_UNORM"},
}

// Size is the byte size of one element, or 0 for unknown formats.
func (f Format) Size() int {
	return formats[f].size
}

func (f Format) Components() int {
	return formats[f].components
}

func (f Format) Kind() ComponentKind {
	return formats[f].kind
}

// Renderable reports whether f can back a render target view.
func (f Format) Renderable() bool {
	return f == FormatB8G8R8A8Unorm || f == FormatR8G8B8A8Unorm
}

func (f Format) String() string {
	if info, ok := formats[f]; ok {
		return info.name
	}
	if f == FormatUnknown {
		return "UNKNOWN"
	}
	return "FORMAT(" + strconv.Itoa(int(f)) + ")"
}

type Usage uint32

const (
	UsageDefault Usage = iota
	UsageImmutable
	UsageDynamic
	UsageStaging
)

type BindFlag uint32

const (
	BindVertexBuffer   BindFlag = 0x1
	BindIndexBuffer    BindFlag = 0x2
	BindConstantBuffer BindFlag = 0x4
	BindShaderResource BindFlag = 0x8
	BindRenderTarget   BindFlag = 0x20
)

type CPUAccessFlag uint32

const (
	CPUAccessWrite CPUAccessFlag = 0x10000
	CPUAccessRead  CPUAccessFlag = 0x20000
)

type ResourceMiscFlag uint32

const (
	ResourceMiscBufferStructured ResourceMiscFlag = 0x40
)

type BufferDesc struct {
	ByteWidth           uint32
	Usage               Usage
	BindFlags           BindFlag
	CPUAccessFlags      CPUAccessFlag
	MiscFlags           ResourceMiscFlag
	StructureByteStride uint32
}

// SubresourceData is the initial content of a resource.
type SubresourceData struct {
	SysMem           []byte
	SysMemPitch      uint32
	SysMemSlicePitch uint32
}

type SampleDesc struct {
	Count   uint32
	Quality uint32
}

type Texture2DDesc struct {
	Width          uint32
	Height         uint32
	MipLevels      uint32
	ArraySize      uint32
	Format         Format
	SampleDesc     SampleDesc
	Usage          Usage
	BindFlags      BindFlag
	CPUAccessFlags CPUAccessFlag
	MiscFlags      ResourceMiscFlag
}

type InputClassification uint32

const (
	InputPerVertexData InputClassification = iota
	InputPerInstanceData
)

// AppendAlignedElement as an AlignedByteOffset places the element right after
// the previous one in the same slot.
const AppendAlignedElement uint32 = 0xffffffff

// InputElementDesc maps bytes of a vertex buffer slot to one shader input
// semantic.
type InputElementDesc struct {
	SemanticName         string
	SemanticIndex        uint32
	Format               Format
	InputSlot            uint32
	AlignedByteOffset    uint32
	InputSlotClass       InputClassification
	InstanceDataStepRate uint32
}

type Viewport struct {
	TopLeftX float32
	TopLeftY float32
	Width    float32
	Height   float32
	MinDepth float32
	MaxDepth float32
}

type PrimitiveTopology uint32

const (
	TopologyUndefined PrimitiveTopology = iota
	TopologyPointList
	TopologyLineList
	TopologyLineStrip
	TopologyTriangleList
	TopologyTriangleStrip
)

type AlphaMode uint32

const (
	AlphaModeUnspecified AlphaMode = iota
	AlphaModePremultiplied
	AlphaModeStraight
	AlphaModeIgnore
)

type Scaling uint32

const (
	ScalingStretch Scaling = iota
	ScalingNone
	ScalingAspectRatioStretch
)

type SwapEffect uint32

const (
	SwapEffectDiscard        SwapEffect = 0
	SwapEffectSequential     SwapEffect = 1
	SwapEffectFlipSequential SwapEffect = 3
	SwapEffectFlipDiscard    SwapEffect = 4
)

// Flip reports whether the effect uses the flip presentation model.
func (e SwapEffect) Flip() bool {
	return e == SwapEffectFlipSequential || e == SwapEffectFlipDiscard
}

// DXGI_USAGE bits for SwapChainDesc1.BufferUsage.
const (
	UsageShaderInput        uint32 = 0x10
	UsageRenderTargetOutput uint32 = 0x20
)

// SwapChainDesc1 describes a window swapchain. Zero Width and Height take the
// window's client size.
type SwapChainDesc1 struct {
	Width       uint32
	Height      uint32
	Format      Format
	Stereo      bool
	SampleDesc  SampleDesc
	BufferUsage uint32
	BufferCount uint32
	Scaling     Scaling
	SwapEffect  SwapEffect
	AlphaMode   AlphaMode
	Flags       uint32
}

type CreateDeviceFlag uint32

const (
	CreateDeviceSingleThreaded CreateDeviceFlag = 0x1
	CreateDeviceDebug          CreateDeviceFlag = 0x2
	CreateDeviceBGRASupport    CreateDeviceFlag = 0x20
)

type MapType uint32

const (
	MapRead         MapType = 1
	MapWrite        MapType = 2
	MapReadWrite    MapType = 3
	MapWriteDiscard MapType = 4
)

// MappedSubresource exposes CPU-visible resource memory until Unmap.
type MappedSubresource struct {
	Data       []byte
	RowPitch   uint32
	DepthPitch uint32
}

type PresentFlag uint32

const (
	PresentTest      PresentFlag = 0x1
	PresentRestart   PresentFlag = 0x4
	PresentDoNotWait PresentFlag = 0x8
	PresentAllowTear PresentFlag = 0x200
)

// CompileFlag values follow D3DCOMPILE_* bits.
type CompileFlag uint32

const (
	CompileDebug              CompileFlag = 1 << 0
	CompileSkipValidation     CompileFlag = 1 << 1
	CompileSkipOptimization   CompileFlag = 1 << 2
	CompileEnableStrictness   CompileFlag = 1 << 11
	CompileOptimizationLevel3 CompileFlag = 1 << 15
	CompileWarningsAreErrors  CompileFlag = 1 << 18
)

type ResourceDimension uint32

const (
	DimensionUnknown ResourceDimension = iota
	DimensionBuffer
	DimensionTexture1D
	DimensionTexture2D
	DimensionTexture3D
)

type ShaderStage uint8

const (
	StageVertex ShaderStage = iota
	StagePixel
)

func (s ShaderStage) String() string {
	if s == StagePixel {
		return "pixel"
	}
	return "vertex"
}
