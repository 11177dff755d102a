package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"
)

// CaptureConfig selects the input device and block layout.
type CaptureConfig struct {
	SampleRate int // Hz, 16000 when zero
	BlockSize  int // frames per delivered block, 8000 when zero
	Device     int // index into ListCaptureDevices, -1 for the system default
	Buffer     int // bounded channel capacity in blocks, 64 when zero
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = EvalSampleRate
	}
	if c.BlockSize <= 0 {
		c.BlockSize = 8000
	}
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	return c
}

// Device is a capture device as reported by the audio backend.
type Device struct {
	Index   int
	Name    string
	Default bool
}

// ListCaptureDevices enumerates the input devices.
func ListCaptureDevices() ([]Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}
	devices := make([]Device, len(infos))
	for i := range infos {
		devices[i] = Device{Index: i, Name: infos[i].Name(), Default: infos[i].IsDefault != 0}
	}
	return devices, nil
}

// Capture delivers mono 16-bit blocks from a microphone into a bounded
// channel. The device callback never blocks: when the consumer falls behind,
// blocks are dropped and counted.
type Capture struct {
	cfg    CaptureConfig
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu      sync.Mutex
	blocks  chan []int16
	pending []int16
	closed  bool

	dropped atomic.Uint64
}

// NewCapture opens the audio backend. The device is opened by Start.
func NewCapture(cfg CaptureConfig) (*Capture, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &Capture{cfg: cfg.withDefaults(), ctx: ctx}, nil
}

// SampleRate returns the capture rate in Hz.
func (c *Capture) SampleRate() int {
	return c.cfg.SampleRate
}

// Dropped returns the number of blocks discarded because the channel was full.
func (c *Capture) Dropped() uint64 {
	return c.dropped.Load()
}

// Start opens and starts the device. The returned channel is closed by Stop.
func (c *Capture) Start() (<-chan []int16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		return nil, errors.New("capture already started")
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(c.cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(c.cfg.BlockSize)
	deviceConfig.Alsa.NoMMap = 1

	if c.cfg.Device >= 0 {
		infos, err := c.ctx.Devices(malgo.Capture)
		if err != nil {
			return nil, fmt.Errorf("enumerate capture devices: %w", err)
		}
		if c.cfg.Device >= len(infos) {
			return nil, fmt.Errorf("capture device %d out of range (%d devices)", c.cfg.Device, len(infos))
		}
		deviceConfig.Capture.DeviceID = infos[c.cfg.Device].ID.Pointer()
	}

	c.blocks = make(chan []int16, c.cfg.Buffer)
	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: c.onFrames,
	})
	if err != nil {
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start capture device: %w", err)
	}
	c.device = device
	log.Debug().Int("sample_rate", c.cfg.SampleRate).Int("block_size", c.cfg.BlockSize).Msg("Capture started")
	return c.blocks, nil
}

// onFrames regroups backend periods into blocks of BlockSize frames.
func (c *Capture) onFrames(_, input []byte, frameCount uint32) {
	samples := BytesToInt16(input[:min(len(input), int(frameCount)*2)])

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.pending = append(c.pending, samples...)
	for len(c.pending) >= c.cfg.BlockSize {
		block := make([]int16, c.cfg.BlockSize)
		copy(block, c.pending)
		c.pending = c.pending[c.cfg.BlockSize:]
		select {
		case c.blocks <- block:
		default:
			if n := c.dropped.Add(1); n == 1 || n%100 == 0 {
				log.Warn().Uint64("dropped", n).Msg("Capture consumer is behind, dropping audio blocks")
			}
		}
	}
}

// Stop halts the device, releases the backend and closes the block channel.
// It is safe to call more than once.
func (c *Capture) Stop() error {
	var err error
	if c.device != nil {
		err = c.device.Stop()
		c.device.Uninit()
	}

	c.mu.Lock()
	if !c.closed {
		c.closed = true
		if c.blocks != nil {
			close(c.blocks)
		}
	}
	c.device = nil
	c.mu.Unlock()

	if c.ctx != nil {
		_ = c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
	}
	return err
}

// Record captures from the configured device for d, or until ctx is done, and
// writes the audio to a mono 16-bit WAV at path.
func Record(ctx context.Context, cfg CaptureConfig, d time.Duration, path string) (time.Duration, error) {
	c, err := NewCapture(cfg)
	if err != nil {
		return 0, err
	}
	blocks, err := c.Start()
	if err != nil {
		_ = c.Stop()
		return 0, err
	}
	samples, err := collect(ctx, blocks, c.SampleRate(), d)
	if stopErr := c.Stop(); stopErr != nil {
		log.Warn().Err(stopErr).Msg("Stopping capture")
	}
	if err != nil {
		return 0, err
	}
	if err := WriteWAV(path, samples, c.SampleRate()); err != nil {
		return 0, err
	}
	return time.Duration(len(samples)) * time.Second / time.Duration(c.SampleRate()), nil
}

// collect reads blocks until d worth of samples arrived, the channel closes or
// ctx is done. Cancellation keeps what was captured so far.
func collect(ctx context.Context, blocks <-chan []int16, sampleRate int, d time.Duration) ([]int16, error) {
	want := int(d.Seconds() * float64(sampleRate))
	samples := make([]int16, 0, want)
	for len(samples) < want {
		select {
		case <-ctx.Done():
			if len(samples) == 0 {
				return nil, ctx.Err()
			}
			return samples, nil
		case block, ok := <-blocks:
			if !ok {
				return samples, nil
			}
			samples = append(samples, block...)
		}
	}
	return samples[:want], nil
}
