// Package soft is a pure Go platform. It executes WGSL through the naga IR on
// the CPU, rasterizes into host memory and paces presentation against a
// simulated vertical blank. It is the headless backend and the test stub.
package soft

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/andewx/diesel/driver"
	"github.com/andewx/diesel/internal/shader"
	"github.com/sirupsen/logrus"
)

const DefaultRefreshRate = 60

// Clock is the time source presentation waits on.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

type Options struct {
	// NoHardware makes CreateDevice fail like a host without a usable adapter.
	NoHardware bool
	// RefreshRate of the simulated display in Hz. Zero means 60.
	RefreshRate float64
	Clock       Clock
	Log         logrus.FieldLogger
}

type Platform struct {
	opts Options
	log  logrus.FieldLogger
	live atomic.Int64

	mu       sync.Mutex
	devices  []*Device
	presents uint64
}

func init() {
	driver.Register("soft", func() (driver.Platform, error) {
		return New(Options{}), nil
	})
}

func New(opts Options) *Platform {
	if opts.RefreshRate <= 0 {
		opts.RefreshRate = DefaultRefreshRate
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Platform{opts: opts, log: log.WithField("driver", "soft")}
}

func (p *Platform) Name() string { return "soft" }

// LiveObjects counts objects created by p whose reference count has not yet
// dropped to zero.
func (p *Platform) LiveObjects() int { return int(p.live.Load()) }

// Presents counts completed presents over all swapchains.
func (p *Platform) Presents() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.presents
}

// RefreshPeriod is the interval between simulated vertical blanks.
func (p *Platform) RefreshPeriod() time.Duration {
	return time.Duration(float64(time.Second) / p.opts.RefreshRate)
}

// LoseDevice marks every live device as removed with reason. Later creates
// and presents fail and draws are ignored.
func (p *Platform) LoseDevice(reason driver.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.devices {
		d.removed = reason
	}
	p.log.WithField("reason", reason).Warn("device removed")
}

func (p *Platform) CreateDevice(flags driver.CreateDeviceFlag) (driver.Status, driver.Device, driver.DeviceContext) {
	if p.opts.NoHardware {
		p.log.Warn("no hardware adapter available")
		return driver.ErrUnsupported, nil, nil
	}
	dev := &Device{flags: flags, log: p.log}
	dev.init(p, func() { p.forget(dev) })
	ctx := &Context{device: dev, log: p.log}
	ctx.init(p, ctx.unbindAll)

	p.mu.Lock()
	p.devices = append(p.devices, dev)
	p.mu.Unlock()
	p.log.WithField("flags", uint32(flags)).Debug("device created")
	return driver.StatusOK, dev, ctx
}

func (p *Platform) forget(dev *Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, d := range p.devices {
		if d == dev {
			p.devices = append(p.devices[:i], p.devices[i+1:]...)
			return
		}
	}
}

func (p *Platform) CreateFactory() (driver.Status, driver.Factory) {
	f := &Factory{}
	f.init(p, nil)
	return driver.StatusOK, f
}

// Compile builds diesel bytecode. A failure returns E_FAIL with the
// diagnostics as the second blob.
func (p *Platform) Compile(source []byte, sourceName, entryPoint, target string, flags driver.CompileFlag) (driver.Status, driver.Blob, driver.Blob) {
	bc, _, err := shader.Compile(string(source), sourceName, entryPoint, target, shader.Options{})
	if err != nil {
		p.log.WithError(err).WithField("entry", entryPoint).Debug("compile failed")
		return driver.ErrFail, nil, newBlob(p, []byte(err.Error()))
	}
	return driver.StatusOK, newBlob(p, bc.Encode()), nil
}
