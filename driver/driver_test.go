package driver

import "testing"

func TestStatus(t *testing.T) {
	for _, s := range []Status{StatusOK, StatusFalse, StatusOccluded} {
		if !s.Succeeded() || s.Failed() {
			t.Errorf("%v should succeed", s)
		}
	}
	for _, s := range []Status{ErrFail, ErrInvalidArg, ErrDeviceRemoved, ErrInvalidCall} {
		if s.Succeeded() || !s.Failed() {
			t.Errorf("%v should fail", s)
		}
	}
	if uint32(ErrInvalidArg) != 0x80070057 {
		t.Errorf("E_INVALIDARG = %#x", uint32(ErrInvalidArg))
	}
	if !ErrDeviceReset.DeviceLost() || ErrInvalidCall.DeviceLost() {
		t.Error("DeviceLost misclassifies")
	}
	if got, want := ErrDeviceRemoved.String(), "DXGI_ERROR_DEVICE_REMOVED (0x887A0005)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got, want := Status(-2).String(), "0xFFFFFFFE"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		f          Format
		size, comp int
		kind       ComponentKind
	}{
		{FormatR32G32B32Float, 12, 3, ComponentFloat},
		{FormatR32Uint, 4, 1, ComponentUint},
		{FormatB8G8R8A8Unorm, 4, 4, ComponentFloat},
		{FormatUnknown, 0, 0, ComponentUnknown},
	}
	for _, c := range cases {
		if c.f.Size() != c.size || c.f.Components() != c.comp || c.f.Kind() != c.kind {
			t.Errorf("%v: size %d components %d kind %d", c.f, c.f.Size(), c.f.Components(), c.f.Kind())
		}
	}
	if !FormatB8G8R8A8Unorm.Renderable() || FormatR32G32B32Float.Renderable() {
		t.Error("Renderable misclassifies")
	}
	if Format(999).String() != "FORMAT(999)" {
		t.Errorf("unknown format prints %q", Format(999).String())
	}
	if !SwapEffectFlipDiscard.Flip() || SwapEffectSequential.Flip() {
		t.Error("Flip misclassifies")
	}
}

type nopPlatform struct{ Platform }

func (nopPlatform) Name() string { return "nop" }

func TestRegistry(t *testing.T) {
	Register("nop-test", func() (Platform, error) { return nopPlatform{}, nil })
	p, err := Open("nop-test")
	if err != nil || p.Name() != "nop" {
		t.Fatalf("Open = %v, %v", p, err)
	}
	found := false
	for _, name := range Platforms() {
		found = found || name == "nop-test"
	}
	if !found {
		t.Errorf("Platforms() = %v", Platforms())
	}
	if _, err := Open("missing"); err == nil {
		t.Error("opened an unregistered platform")
	} else if _, ok := err.(*UnknownPlatformError); !ok {
		t.Errorf("error %T", err)
	}
}
