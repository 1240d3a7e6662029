// Package d3d11 implements the diesel platform contract on Direct3D 11 and
// DXGI. Objects are the COM interfaces themselves: AddRef and Release go
// straight to the interface vtable. WGSL source is translated to HLSL and
// compiled with D3DCompile, so bytecode is native DXBC.
//
// The package only builds on windows.
package d3d11
