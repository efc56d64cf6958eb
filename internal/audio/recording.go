// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"spectral/internal/log"
)

// recorder owns the WAV encoder. Only the drain goroutine writes to it.
type recorder struct {
	file      *os.File
	encoder   *wav.Encoder
	sampleBuf *audio.IntBuffer
	fullScale float64
	frames    uint64
}

// StartRecording opens filename and records everything the drain loop
// analyses from now on: the mono downmix, or interleaved L/R in stereo mode.
func (e *Engine) StartRecording(filename string) error {
	if e.isRecording.Load() {
		return fmt.Errorf("already recording")
	}

	bitDepth := e.config.Recording.BitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	sampleRate := int(e.config.Audio.SampleRate)
	rec := &recorder{
		file:    file,
		encoder: wav.NewEncoder(file, sampleRate, bitDepth, e.ringChannels, 1),
		sampleBuf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: e.ringChannels,
				SampleRate:  sampleRate,
			},
			Data:           make([]int, len(e.drainBuf)),
			SourceBitDepth: bitDepth,
		},
		fullScale: math.Exp2(float64(bitDepth-1)) - 1,
	}

	e.recMu.Lock()
	e.recorder = rec
	e.recMu.Unlock()
	e.isRecording.Store(true)

	log.WithComponent("audio").Infof("recording to %s (%d-bit, %d ch)", filename, bitDepth, e.ringChannels)
	return nil
}

// StartRecordingIn records to a timestamped file inside dir.
func (e *Engine) StartRecordingIn(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create recording directory: %w", err)
	}
	filename := filepath.Join(dir, "capture-"+time.Now().Format("20060102-150405")+".wav")
	return filename, e.StartRecording(filename)
}

// StopRecording finalises the WAV header and closes the file.
func (e *Engine) StopRecording() error {
	if !e.isRecording.Swap(false) {
		return nil
	}

	e.recMu.Lock()
	rec := e.recorder
	e.recorder = nil
	e.recMu.Unlock()
	if rec == nil {
		return nil
	}

	if err := rec.encoder.Close(); err != nil {
		rec.file.Close()
		return err
	}
	if err := rec.file.Close(); err != nil {
		return err
	}
	log.WithComponent("audio").Infof("recording stopped after %d frames", rec.frames)
	return nil
}

// IsRecording reports whether a recording is in progress.
func (e *Engine) IsRecording() bool { return e.isRecording.Load() }

// writeRecording converts a drained block to integers and encodes it.
// Called from the drain goroutine, never from the audio callback.
func (e *Engine) writeRecording(block []float32) {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	rec := e.recorder
	if rec == nil {
		return
	}

	data := rec.sampleBuf.Data[:len(block)]
	for i, s := range block {
		data[i] = toPCM(s, rec.fullScale)
	}
	rec.sampleBuf.Data = data
	if err := rec.encoder.Write(rec.sampleBuf); err != nil {
		log.WithComponent("audio").Errorf("recording write failed: %v", err)
		return
	}
	rec.frames += uint64(len(block) / e.ringChannels)
}

// toPCM scales a [-1, 1] sample to a signed integer of the given full scale,
// clipping anything outside the range. NaN becomes silence.
func toPCM(s float32, fullScale float64) int {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int(math.Round(v * fullScale))
}
