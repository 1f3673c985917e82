//go:build !linux

package audio

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: malgo: %v", ErrDeviceUnavailable, err)
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	var result []DeviceInfo
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:   hex.EncodeToString(d.ID.Pointer()[:]),
			Name: d.Name(),
		})
	}
	return result, nil
}

func (m *malgoContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil || len(devices) == 0 {
		return nil, fmt.Errorf("%w: no capture devices", ErrDeviceUnavailable)
	}

	// Zero rate and channel count let miniaudio pick the native layout.
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = config.Channels
	deviceConfig.SampleRate = config.SampleRate

	name := "system default"
	if device != nil {
		idBytes, err := hex.DecodeString(device.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid device ID: %w", err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		deviceConfig.Capture.DeviceID = devID.Pointer()
		name = device.Name
	}

	c := &malgoCapture{name: name}
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			cb := c.callback.Load()
			if cb == nil || len(input) < 4 {
				return
			}
			samples := make([]float32, len(input)/4)
			for i := range samples {
				samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
			}
			(*cb)(samples, frameCount)
		},
		Stop: func() {
			if c.stopping.Load() {
				return
			}
			if cb := c.onError.Load(); cb != nil {
				(*cb)(fmt.Errorf("%w: capture device stopped", ErrStream))
			}
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	c.device = dev
	c.format = Format{
		SampleRate: int(dev.SampleRate()),
		Channels:   int(dev.CaptureChannels()),
	}
	return c, nil
}

func (m *malgoContext) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

type malgoCapture struct {
	device   *malgo.Device
	name     string
	format   Format
	callback atomic.Pointer[DataCallback]
	onError  atomic.Pointer[ErrorCallback]
	stopping atomic.Bool
	once     sync.Once
}

func (c *malgoCapture) Start() error {
	c.stopping.Store(false)
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return nil
}

func (c *malgoCapture) Stop() {
	c.stopping.Store(true)
	c.device.Stop()
}

func (c *malgoCapture) Close() {
	c.once.Do(func() {
		c.Stop()
		c.device.Uninit()
	})
}

func (c *malgoCapture) Format() Format { return c.format }

func (c *malgoCapture) DeviceName() string { return c.name }

func (c *malgoCapture) SetCallback(cb DataCallback) {
	c.callback.Store(&cb)
}

func (c *malgoCapture) ClearCallback() {
	c.callback.Store(nil)
}

func (c *malgoCapture) SetErrorCallback(cb ErrorCallback) {
	c.onError.Store(&cb)
}
