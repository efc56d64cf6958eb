// SPDX-License-Identifier: MIT
package analysis

// FrameSource is the read-only view of an analyser shared by consumers that
// only need its geometry (band splitting, publishers, the monitor).
type FrameSource interface {
	GetFFTSize() int                         // GetFFTSize returns the size (number of points) of the FFT.
	GetNumBins() int                         // GetNumBins returns the number of values in each frame.
	GetSampleRate() float64                  // GetSampleRate returns the sample rate used for the analysis.
	GetFrequencyForBin(binIndex int) float64 // GetFrequencyForBin returns the centre frequency (Hz) of a bin.
	GetNumFramesAvailable() int              // GetNumFramesAvailable returns how many frames are waiting.
	GetDroppedFrames() uint64                // GetDroppedFrames counts frames overwritten before they were read.
	IsStereo() bool
}

// MonoSource is a FrameSource delivering magnitude-only frames.
type MonoSource interface {
	FrameSource
	PushSamples(data []float32)
	PullNextFrame(dest []float32) bool
}

// StereoSource is a FrameSource delivering magnitude and pan frames.
type StereoSource interface {
	FrameSource
	PushSamples(left, right []float32)
	PushInterleaved(data []float32)
	PullNextFrame(dest *StereoFrame) bool
}

// FrameReader delivers frames from either kind of analyser through one call.
// Mono readers leave dest.Pan empty.
type FrameReader interface {
	Source() FrameSource
	ReadFrame(dest *StereoFrame) bool
}
