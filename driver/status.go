package driver

import "fmt"

// Status is a 32-bit platform result code. Negative values are failures,
// the same convention HRESULT uses.
type Status int32

const (
	StatusOK    Status = 0
	StatusFalse Status = 1

	// DXGI_STATUS_OCCLUDED
	StatusOccluded Status = 0x087A0001
)

// Failure codes. The values match their HRESULT counterparts so the d3d11
// platform can pass codes through unchanged.
var (
	ErrNotImpl     = hresult(0x80004001)
	ErrPointer     = hresult(0x80004003)
	ErrFail        = hresult(0x80004005)
	ErrOutOfMemory = hresult(0x8007000E)
	ErrInvalidArg  = hresult(0x80070057)

	ErrInvalidCall     = hresult(0x887A0001)
	ErrNotFound        = hresult(0x887A0002)
	ErrUnsupported     = hresult(0x887A0004)
	ErrDeviceRemoved   = hresult(0x887A0005)
	ErrDeviceHung      = hresult(0x887A0006)
	ErrDeviceReset     = hresult(0x887A0007)
	ErrWasStillDrawing = hresult(0x887A000A)
)

func hresult(v uint32) Status {
	return Status(int32(v))
}

func (s Status) Succeeded() bool {
	return s >= 0
}

func (s Status) Failed() bool {
	return s < 0
}

// DeviceLost reports whether s means the device can no longer be used.
func (s Status) DeviceLost() bool {
	switch s {
	case ErrDeviceRemoved, ErrDeviceReset, ErrDeviceHung:
		return true
	}
	return false
}

var statusNames = map[Status]string{
	StatusOK:           "S_OK",
	StatusFalse:        "S_FALSE",
	StatusOccluded:     "DXGI_STATUS_OCCLUDED",
	ErrNotImpl:         "E_NOTIMPL",
	ErrPointer:         "E_POINTER",
	ErrFail:            "E_FAIL",
	ErrOutOfMemory:     "E_OUTOFMEMORY",
	ErrInvalidArg:      "E_INVALIDARG",
	ErrInvalidCall:     "DXGI_ERROR_INVALID_CALL",
	ErrNotFound:        "DXGI_ERROR_NOT_FOUND",
	ErrUnsupported:     "DXGI_ERROR_UNSUPPORTED",
	ErrDeviceRemoved:   "DXGI_ERROR_DEVICE_REMOVED",
	ErrDeviceHung:      "DXGI_ERROR_DEVICE_HUNG",
	ErrDeviceReset:     "DXGI_ERROR_DEVICE_RESET",
	ErrWasStillDrawing: "DXGI_ERROR_WAS_STILL_DRAWING",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return fmt.Sprintf("%s (0x%08X)", name, uint32(s))
	}
	return fmt.Sprintf("0x%08X", uint32(s))
}
