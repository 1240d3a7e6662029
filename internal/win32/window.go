//go:build windows

// Package win32 opens a plain Win32 window for the d3d11 backend and runs its
// message loop. All calls must come from the thread that created the window.
package win32

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procRegisterClassExW = user32.NewProc("RegisterClassExW")
	procCreateWindowExW  = user32.NewProc("CreateWindowExW")
	procDefWindowProcW   = user32.NewProc("DefWindowProcW")
	procDestroyWindow    = user32.NewProc("DestroyWindow")
	procShowWindow       = user32.NewProc("ShowWindow")
	procUpdateWindow     = user32.NewProc("UpdateWindow")
	procGetMessageW      = user32.NewProc("GetMessageW")
	procTranslateMessage = user32.NewProc("TranslateMessage")
	procDispatchMessageW = user32.NewProc("DispatchMessageW")
	procPostQuitMessage  = user32.NewProc("PostQuitMessage")
	procGetClientRect    = user32.NewProc("GetClientRect")
	procIsWindow         = user32.NewProc("IsWindow")
	procAdjustWindowRect = user32.NewProc("AdjustWindowRect")
	procLoadCursorW      = user32.NewProc("LoadCursorW")
	procGetModuleHandleW = kernel32.NewProc("GetModuleHandleW")
)

const (
	wsOverlappedWindow = 0x00CF0000
	cwUseDefault       = 0x80000000
	swShow             = 5
	idcArrow           = 32512
	csHRedraw          = 0x0002
	csVRedraw          = 0x0001

	wmDestroy = 0x0002
	wmClose   = 0x0010
)

type wndClassEx struct {
	Size       uint32
	Style      uint32
	WndProc    uintptr
	ClsExtra   int32
	WndExtra   int32
	Instance   windows.Handle
	Icon       windows.Handle
	Cursor     windows.Handle
	Background windows.Handle
	MenuName   *uint16
	ClassName  *uint16
	IconSm     windows.Handle
}

type rect struct {
	Left, Top, Right, Bottom int32
}

type point struct {
	X, Y int32
}

type msg struct {
	Hwnd    windows.HWND
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      point
}

const className = "diesel"

var (
	registerOnce sync.Once
	registerErr  error
	windowProc   = windows.NewCallback(wndProc)
)

func register() error {
	registerOnce.Do(func() {
		inst, _, _ := procGetModuleHandleW.Call(0)
		cursor, _, _ := procLoadCursorW.Call(0, idcArrow)
		name, err := windows.UTF16PtrFromString(className)
		if err != nil {
			registerErr = err
			return
		}
		wc := wndClassEx{
			Style:     csHRedraw | csVRedraw,
			WndProc:   windowProc,
			Instance:  windows.Handle(inst),
			Cursor:    windows.Handle(cursor),
			ClassName: name,
		}
		wc.Size = uint32(unsafe.Sizeof(wc))
		if atom, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc))); atom == 0 {
			registerErr = errors.Wrap(err, "RegisterClassEx")
		}
	})
	return registerErr
}

func wndProc(hwnd windows.HWND, m uint32, wParam, lParam uintptr) uintptr {
	switch m {
	case wmClose:
		procDestroyWindow.Call(uintptr(hwnd))
		return 0
	case wmDestroy:
		procPostQuitMessage.Call(0)
		return 0
	}
	r, _, _ := procDefWindowProcW.Call(uintptr(hwnd), uintptr(m), wParam, lParam)
	return r
}

// Window is a hidden top-level window with a client area of the requested
// size.
type Window struct {
	hwnd  windows.HWND
	shown bool
}

func New(title string, width, height int) (*Window, error) {
	if err := register(); err != nil {
		return nil, err
	}
	r := rect{Right: int32(width), Bottom: int32(height)}
	procAdjustWindowRect.Call(uintptr(unsafe.Pointer(&r)), wsOverlappedWindow, 0)

	cls, err := windows.UTF16PtrFromString(className)
	if err != nil {
		return nil, err
	}
	name, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return nil, err
	}
	inst, _, _ := procGetModuleHandleW.Call(0)
	hwnd, _, err := procCreateWindowExW.Call(
		0,
		uintptr(unsafe.Pointer(cls)),
		uintptr(unsafe.Pointer(name)),
		wsOverlappedWindow,
		cwUseDefault, cwUseDefault,
		uintptr(r.Right-r.Left), uintptr(r.Bottom-r.Top),
		0, 0, inst, 0,
	)
	if hwnd == 0 {
		return nil, errors.Wrap(err, "CreateWindowEx")
	}
	return &Window{hwnd: windows.HWND(hwnd)}, nil
}

func (w *Window) Handle() uintptr { return uintptr(w.hwnd) }

func (w *Window) ClientSize() (width, height int) {
	var r rect
	if ok, _, _ := procGetClientRect.Call(uintptr(w.hwnd), uintptr(unsafe.Pointer(&r))); ok == 0 {
		return 0, 0
	}
	return int(r.Right - r.Left), int(r.Bottom - r.Top)
}

func (w *Window) Valid() bool {
	ok, _, _ := procIsWindow.Call(uintptr(w.hwnd))
	return ok != 0
}

func (w *Window) Show() {
	if w.shown {
		return
	}
	procShowWindow.Call(uintptr(w.hwnd), swShow)
	procUpdateWindow.Call(uintptr(w.hwnd))
	w.shown = true
}

// Wait blocks in GetMessage for the next message and dispatches it. It
// reports false once the window is gone.
func (w *Window) Wait() bool {
	var m msg
	r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
	if int32(r) <= 0 {
		return false
	}
	procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
	procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	return true
}

func (w *Window) Destroy() {
	if w.Valid() {
		procDestroyWindow.Call(uintptr(w.hwnd))
	}
}
