// SPDX-License-Identifier: MIT
package udp

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectral/internal/transport"
)

func testFrame(bins int, stereo bool) *transport.Frame {
	f := &transport.Frame{
		Sequence:    42,
		Timestamp:   1_700_000_000_123_456_789,
		SampleRate:  48000,
		FFTSize:     (bins - 1) * 2,
		MagnitudeDB: make([]float32, bins),
	}
	for i := range f.MagnitudeDB {
		f.MagnitudeDB[i] = -100 + float32(i%90)
	}
	if stereo {
		f.Pan = make([]float32, bins)
		for i := range f.Pan {
			f.Pan[i] = float32(i%21-10) / 10
		}
	}
	return f
}

func TestEncodeDecodeFrame(t *testing.T) {
	id := uuid.New()

	for _, stereo := range []bool{false, true} {
		in := testFrame(2049, stereo)
		data, err := EncodeFrame(nil, id, in)
		require.NoError(t, err)
		assert.Len(t, data, PacketSize(2049, stereo))
		assert.Equal(t, "SPEC", string(data[:4]))

		out, err := DecodeFrame(data)
		require.NoError(t, err)
		assert.Equal(t, id, out.StreamID)
		assert.Equal(t, in.Sequence, out.Frame.Sequence)
		assert.Equal(t, in.Timestamp, out.Frame.Timestamp)
		assert.Equal(t, in.SampleRate, out.Frame.SampleRate)
		assert.Equal(t, in.FFTSize, out.Frame.FFTSize)
		assert.Equal(t, in.MagnitudeDB, out.Frame.MagnitudeDB)
		assert.Equal(t, stereo, out.Frame.Stereo())
		if stereo {
			assert.Equal(t, in.Pan, out.Frame.Pan)
		}
	}
}

func TestEncodeFrameLargestStereoFitsDatagram(t *testing.T) {
	data, err := EncodeFrame(nil, uuid.Nil, testFrame(MaxBins, true))
	require.NoError(t, err)
	assert.Less(t, len(data), 65507)
}

func TestEncodeFrameErrors(t *testing.T) {
	_, err := EncodeFrame(nil, uuid.Nil, testFrame(MaxBins+1, false))
	assert.ErrorContains(t, err, "limit")

	f := testFrame(16, true)
	f.Pan = f.Pan[:3]
	_, err = EncodeFrame(nil, uuid.Nil, f)
	assert.ErrorContains(t, err, "pan has 3 values")
}

func TestDecodeFrameErrors(t *testing.T) {
	good, err := EncodeFrame(nil, uuid.New(), testFrame(9, false))
	require.NoError(t, err)

	badMagic := append([]byte(nil), good...)
	badMagic[0] = 'X'
	badVersion := append([]byte(nil), good...)
	badVersion[4] = 99

	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{"Empty", nil, ErrShortPacket},
		{"Header only", good[:HeaderSize], ErrShortPacket},
		{"Truncated payload", good[:len(good)-1], ErrShortPacket},
		{"Bad magic", badMagic, ErrBadMagic},
		{"Bad version", badVersion, ErrBadVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame(tt.data)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestEncodeFrameZeroAllocs(t *testing.T) {
	f := testFrame(4097, true)
	buf := make([]byte, 0, PacketSize(4097, true))
	id := uuid.New()

	allocs := testing.AllocsPerRun(100, func() {
		buf, _ = EncodeFrame(buf[:0], id, f)
	})
	assert.Zero(t, allocs)
}

func BenchmarkEncodeFrame(b *testing.B) {
	f := testFrame(2049, true)
	buf := make([]byte, 0, PacketSize(2049, true))
	id := uuid.New()

	b.ReportAllocs()
	for b.Loop() {
		buf, _ = EncodeFrame(buf[:0], id, f)
	}
}
