//go:build linux

package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
)

const streamPollInterval = 200 * time.Millisecond

type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("voxmcp"))
	if err != nil {
		return nil, fmt.Errorf("%w: pulse: %v", ErrDeviceUnavailable, err)
	}
	return &pulseContext{client: c}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	var devices []DeviceInfo
	for _, s := range sources {
		devices = append(devices, DeviceInfo{
			ID:   s.ID(),
			Name: s.Name(),
		})
	}
	return devices, nil
}

func (p *pulseContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	var source *pulse.Source
	var err error
	if device != nil {
		source, err = p.client.SourceByID(device.ID)
	} else {
		source, err = p.client.DefaultSource()
	}
	if err != nil || source == nil {
		return nil, fmt.Errorf("%w: no pulse source: %v", ErrDeviceUnavailable, err)
	}

	format := Format{SampleRate: source.SampleRate(), Channels: source.Channels()}
	if config.SampleRate > 0 {
		format.SampleRate = int(config.SampleRate)
	}
	if config.Channels > 0 {
		format.Channels = int(config.Channels)
	}
	// pulse only negotiates mono or stereo through the simple options.
	if format.Channels > 2 {
		format.Channels = 2
	}
	if format.Channels < 1 {
		format.Channels = 1
	}

	return &pulseCapture{
		client: p.client,
		source: source,
		name:   source.Name(),
		format: format,
	}, nil
}

func (p *pulseContext) Close() {
	p.client.Close()
}

type pulseCapture struct {
	client   *pulse.Client
	source   *pulse.Source
	name     string
	format   Format
	callback atomic.Pointer[DataCallback]
	onError  atomic.Pointer[ErrorCallback]

	stream *pulse.RecordStream
	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
}

func (c *pulseCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	writer := pulse.Float32Writer(func(buf []float32) (int, error) {
		if len(buf) == 0 {
			return 0, nil
		}
		cb := c.callback.Load()
		if cb == nil {
			return len(buf), nil
		}
		data := make([]float32, len(buf))
		copy(data, buf)
		(*cb)(data, uint32(len(buf)/c.format.Channels))
		return len(buf), nil
	})

	opts := []pulse.RecordOption{
		pulse.RecordSampleRate(c.format.SampleRate),
		pulse.RecordLatency(0.05),
		pulse.RecordSource(c.source),
	}
	if c.format.Channels == 2 {
		opts = append(opts, pulse.RecordStereo)
	} else {
		opts = append(opts, pulse.RecordMono)
	}

	stream, err := c.client.NewRecord(writer, opts...)
	if err != nil {
		return fmt.Errorf("%w: pulse record: %v", ErrDeviceUnavailable, err)
	}

	c.stream = stream
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		stream.Start()
		ticker := time.NewTicker(streamPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				stream.Stop()
				stream.Close()
				return
			case <-ticker.C:
				if stream.Running() {
					continue
				}
				if cb := c.onError.Load(); cb != nil {
					(*cb)(fmt.Errorf("%w: pulse stream stopped: %v", ErrStream, stream.Error()))
				}
				stream.Close()
				<-c.stop
				return
			}
		}
	}()

	return nil
}

func (c *pulseCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		select {
		case <-c.stop:
		default:
			close(c.stop)
		}
		<-c.done
	}
}

func (c *pulseCapture) Close() {
	c.Stop()
}

func (c *pulseCapture) Format() Format { return c.format }

func (c *pulseCapture) SetCallback(cb DataCallback) {
	c.callback.Store(&cb)
}

func (c *pulseCapture) ClearCallback() {
	c.callback.Store(nil)
}

func (c *pulseCapture) SetErrorCallback(cb ErrorCallback) {
	c.onError.Store(&cb)
}

func (c *pulseCapture) DeviceName() string {
	if c.name != "" {
		return c.name
	}
	return "system default"
}
