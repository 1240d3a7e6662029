package vulkan

import (
	"fmt"
	"runtime"

	"github.com/andewx/diesel/driver"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

func isError(ret vk.Result) bool {
	return ret != vk.Success
}

// NewError wraps a failed vk.Result with the calling frame. It returns nil on
// success.
func NewError(ret vk.Result) error {
	if !isError(ret) {
		return nil
	}
	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		return errors.Wrapf(vk.Error(ret), "vulkan error (%d)", ret)
	}
	fn := runtime.FuncForPC(pc)
	file, line := fn.FileLine(pc)
	return errors.Wrapf(vk.Error(ret), "vulkan error (%d) on %s:%d", ret, file, line)
}

func orPanic(err error) {
	if err != nil {
		panic(err)
	}
}

// checkErr turns a panic raised with orPanic back into an error.
func checkErr(err *error) {
	if v := recover(); v != nil {
		if e, ok := v.(error); ok {
			*err = e
			return
		}
		*err = fmt.Errorf("%+v", v)
	}
}

// statusOf maps a Vulkan result to the platform status callers see.
func statusOf(ret vk.Result) driver.Status {
	switch ret {
	case vk.Success:
		return driver.StatusOK
	case vk.NotReady, vk.Timeout:
		return driver.ErrWasStillDrawing
	case vk.Suboptimal:
		return driver.StatusOK
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory, vk.ErrorTooManyObjects:
		return driver.ErrOutOfMemory
	case vk.ErrorInitializationFailed, vk.ErrorIncompatibleDriver:
		return driver.ErrUnsupported
	case vk.ErrorLayerNotPresent, vk.ErrorExtensionNotPresent, vk.ErrorFeatureNotPresent, vk.ErrorFormatNotSupported:
		return driver.ErrUnsupported
	case vk.ErrorDeviceLost:
		return driver.ErrDeviceRemoved
	case vk.ErrorSurfaceLost, vk.ErrorNativeWindowInUse:
		return driver.ErrInvalidCall
	case vk.ErrorOutOfDate:
		return driver.StatusOccluded
	}
	return driver.ErrFail
}
