// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"spectral/internal/analysis"
	"spectral/internal/log"
)

// analyzeChunkFrames is the number of sample frames decoded per read.
const analyzeChunkFrames = 4096

// Analyze decodes a WAV file, runs it through the analyser described by ac
// (its sample rate is taken from the file) and writes one line per frame to
// w. Stereo analysis needs a two-channel file; otherwise channels are
// averaged. Returns the number of frames written.
func Analyze(w io.Writer, path string, ac analysis.Config, stereo bool) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("%s is not a valid WAV file", path)
	}
	channels := int(dec.NumChans)
	if channels < 1 || channels > 2 {
		return 0, fmt.Errorf("%s has %d channels, only mono and stereo are supported", path, channels)
	}
	if stereo && channels != 2 {
		return 0, fmt.Errorf("stereo analysis needs a two-channel file, %s has %d", path, channels)
	}

	ac.SampleRate = float64(dec.SampleRate)
	var (
		reader    analysis.FrameReader
		mono      *analysis.MonoAnalyser
		stereoA   *analysis.StereoAnalyser
		monoBlock []float32
	)
	if stereo {
		stereoA = analysis.NewStereoAnalyserWithConfig(ac)
		reader = stereoA
	} else {
		mono = analysis.NewMonoAnalyserWithConfig(ac)
		reader = mono
		monoBlock = make([]float32, analyzeChunkFrames)
	}

	src := reader.Source()
	log.WithFields(log.Fields{
		"file":        path,
		"sample_rate": dec.SampleRate,
		"channels":    channels,
		"bit_depth":   dec.BitDepth,
		"fft":         src.GetFFTSize(),
	}).Info("analysing file")

	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: int(dec.SampleRate)},
		Data:   make([]int, analyzeChunkFrames*channels),
	}
	samples := make([]float32, analyzeChunkFrames*channels)
	scale := float32(1 / math.Exp2(float64(dec.BitDepth-1)))

	frame := &analysis.StereoFrame{}
	written := 0
	hop := analysis.HopSize(src.GetFFTSize(), ac.Overlap)

	for {
		n, err := dec.PCMBuffer(buf)
		if n > 0 {
			n -= n % channels
			block := samples[:n]
			for i, s := range buf.Data[:n] {
				block[i] = float32(s) * scale
			}

			switch {
			case stereo:
				stereoA.PushInterleaved(block)
			case channels == 2:
				frames := n / 2
				for i := 0; i < frames; i++ {
					monoBlock[i] = (block[2*i] + block[2*i+1]) * 0.5
				}
				mono.PushSamples(monoBlock[:frames])
			default:
				mono.PushSamples(block)
			}

			for reader.ReadFrame(frame) {
				t := float64(written*hop+src.GetFFTSize()/2) / ac.SampleRate
				writeFrameLine(w, t, src, frame)
				written++
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return written, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		if n == 0 {
			break
		}
	}
	if dropped := src.GetDroppedFrames(); dropped > 0 {
		log.Warnf("%d frames dropped while analysing %s", dropped, path)
	}
	return written, nil
}

// writeFrameLine prints time, peak bin, peak frequency and level, plus the
// mean pan of audible bins for stereo frames.
func writeFrameLine(w io.Writer, t float64, src analysis.FrameSource, frame *analysis.StereoFrame) {
	peak := 0
	for i, db := range frame.MagnitudeDB {
		if db > frame.MagnitudeDB[peak] {
			peak = i
		}
	}
	fmt.Fprintf(w, "%8.3fs  bin %5d  %9.1f Hz  %7.1f dB", t, peak, src.GetFrequencyForBin(peak), frame.MagnitudeDB[peak])

	if len(frame.Pan) > 0 {
		sum, count := 0.0, 0
		for i, db := range frame.MagnitudeDB {
			if db > analysis.FloorDB {
				sum += float64(frame.Pan[i])
				count++
			}
		}
		mean := 0.0
		if count > 0 {
			mean = sum / float64(count)
		}
		fmt.Fprintf(w, "  pan %+.2f", mean)
	}
	fmt.Fprintln(w)
}
