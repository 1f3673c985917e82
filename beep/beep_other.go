//go:build !linux

package beep

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"voxmcp/log"
)

const channels = 1

var (
	ctxOnce sync.Once
	mctx    *malgo.AllocatedContext
	playMu  sync.Mutex
)

func malgoContext() *malgo.AllocatedContext {
	ctxOnce.Do(func() {
		c, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			log.Debugf("beep: malgo context: %v", err)
			return
		}
		mctx = c
	})
	return mctx
}

// play renders one cue on a fresh playback device and tears it down once
// the buffer has drained. Cues never overlap.
func play(samples []int16) {
	c := malgoContext()
	if c == nil || len(samples) == 0 {
		return
	}
	playMu.Lock()
	defer playMu.Unlock()

	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = channels
	cfg.SampleRate = sampleRate

	var pos int
	drained := make(chan struct{})
	var once sync.Once
	dev, err := malgo.InitDevice(c.Context, cfg, malgo.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) {
			n := copy(out, buf[pos:])
			pos += n
			clear(out[n:])
			if pos >= len(buf) {
				once.Do(func() { close(drained) })
			}
		},
	})
	if err != nil {
		log.Debugf("beep: malgo device: %v", err)
		return
	}
	defer dev.Uninit()
	if err := dev.Start(); err != nil {
		log.Debugf("beep: malgo start: %v", err)
		return
	}
	select {
	case <-drained:
		// Let the last period reach the speaker.
		time.Sleep(50 * time.Millisecond)
	case <-time.After(2 * time.Second):
	}
	dev.Stop()
}
