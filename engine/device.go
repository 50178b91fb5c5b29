package engine

import (
	"fmt"
	"log"

	"github.com/gordonklaus/portaudio"
	"github.com/mrdg/daw/telemetry"
)

// Device feeds an engine from the default PortAudio devices. Its callbacks
// only forward into the engine.
type Device struct {
	engine *Engine
	stream *portaudio.Stream
}

// Open initializes PortAudio and opens the default stream with the
// engine's channel counts, sample rate and buffer size.
func Open(e *Engine) (*Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	d := &Device{engine: e}
	cfg := e.cfg
	var callback interface{} = d.process
	if cfg.Interleaved {
		callback = d.processInterleaved
	}
	stream, err := portaudio.OpenDefaultStream(cfg.InputChannels, cfg.OutputChannels, cfg.SampleRate, cfg.BufferSize, callback)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	d.stream = stream
	return d, nil
}

func (d *Device) process(in, out [][]float32, ti portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	d.engine.xrun(flags)
	d.engine.Process(in, out, ti.OutputBufferDacTime)
}

func (d *Device) processInterleaved(in, out []float32, ti portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	d.engine.xrun(flags)
	d.engine.ProcessInterleaved(in, out, ti.OutputBufferDacTime)
}

func (d *Device) Start() error { return d.stream.Start() }

func (d *Device) Stop() error { return d.stream.Stop() }

// CPULoad is PortAudio's estimate of the callback's share of the available
// time.
func (d *Device) CPULoad() float64 { return d.stream.CpuLoad() }

func (d *Device) Close() error {
	err := d.stream.Close()
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}

// xrun counts the under- and overflows PortAudio reports with a buffer.
func (e *Engine) xrun(flags portaudio.StreamCallbackFlags) {
	if flags&portaudio.OutputUnderflow != 0 {
		e.telemetry.Fail(telemetry.Underrun, 1)
	}
	if flags&portaudio.OutputOverflow != 0 {
		e.telemetry.Fail(telemetry.Overrun, 1)
	}
	if flags&(portaudio.InputUnderflow|portaudio.InputOverflow) != 0 {
		e.telemetry.Fail(telemetry.Xrun, 1)
	}
}

// StartDevice prepares the engine if needed, opens the default device and
// starts pulling audio from it.
func (e *Engine) StartDevice() error {
	e.mu.Lock()
	defer e.unlock()
	if e.device != nil {
		return nil
	}
	if !e.graph.Prepared() {
		if err := e.graph.Prepare(e.cfg.SampleRate, e.cfg.BufferSize); err != nil {
			return err
		}
	}
	d, err := Open(e)
	if err != nil {
		return err
	}
	e.running.Store(true)
	if err := d.Start(); err != nil {
		e.running.Store(false)
		d.Close()
		return err
	}
	e.device = d
	log.Printf("audio: started at %v Hz, %d frames per buffer", e.cfg.SampleRate, e.cfg.BufferSize)
	return nil
}

// StopDevice stops and closes the device. Queued graph commands and
// transport requests are applied before it returns.
func (e *Engine) StopDevice() error {
	e.mu.Lock()
	defer e.unlock()
	if e.device == nil {
		return nil
	}
	err := e.device.Stop()
	if cerr := e.device.Close(); err == nil {
		err = cerr
	}
	e.device = nil
	e.running.Store(false)
	e.drainRequests()
	e.graph.Sync()
	return err
}
