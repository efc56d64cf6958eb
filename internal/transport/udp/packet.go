// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"spectral/internal/transport"
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Magic             | [4]byte        | 4            | "SPEC"                  |
| Version           | uint8          | 1            | PacketVersion           |
| Flags             | uint8          | 1            | bit0 = stereo           |
| Stream ID         | [16]byte       | 16           | UUID of the sender      |
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Sample Rate       | float32        | 4            | Hz                      |
| FFT Size          | uint32         | 4            | Points                  |
| Bin Count         | uint16         | 2            | Number of bins (N)      |
| Magnitudes        | []float32      | N * 4        | dB per bin              |
| Pan               | []float32      | N * 4        | Stereo only, -1..1      |
+-----------------------------------------------------------------------------+
*/

const (
	PacketVersion = 1
	HeaderSize    = 4 + 1 + 1 + 16 + 4 + 8 + 4 + 4 + 2

	FlagStereo = 1 << 0

	// MaxBins keeps a stereo 8192-point frame (4097 bins) inside one datagram.
	MaxBins = 8192/2 + 1
)

var magic = [4]byte{'S', 'P', 'E', 'C'}

var (
	ErrShortPacket = errors.New("packet too short")
	ErrBadMagic    = errors.New("not a spectrum packet")
	ErrBadVersion  = errors.New("unsupported packet version")
)

// Packet is a decoded datagram.
type Packet struct {
	StreamID uuid.UUID
	Frame    transport.Frame
}

// PacketSize returns the encoded size of a frame with numBins bins.
func PacketSize(numBins int, stereo bool) int {
	n := HeaderSize + numBins*4
	if stereo {
		n += numBins * 4
	}
	return n
}

// EncodeFrame appends the packet for f to dst and returns the extended slice.
func EncodeFrame(dst []byte, streamID uuid.UUID, f *transport.Frame) ([]byte, error) {
	bins := f.NumBins()
	if bins > MaxBins {
		return dst, fmt.Errorf("frame has %d bins, limit is %d", bins, MaxBins)
	}
	stereo := f.Stereo()
	if stereo && len(f.Pan) != bins {
		return dst, fmt.Errorf("pan has %d values for %d bins", len(f.Pan), bins)
	}

	var flags uint8
	if stereo {
		flags |= FlagStereo
	}

	dst = append(dst, magic[:]...)
	dst = append(dst, PacketVersion, flags)
	dst = append(dst, streamID[:]...)
	dst = binary.BigEndian.AppendUint32(dst, f.Sequence)
	dst = binary.BigEndian.AppendUint64(dst, uint64(f.Timestamp))
	dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(f.SampleRate)))
	dst = binary.BigEndian.AppendUint32(dst, uint32(f.FFTSize))
	dst = binary.BigEndian.AppendUint16(dst, uint16(bins))
	for _, v := range f.MagnitudeDB {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(v))
	}
	if stereo {
		for _, v := range f.Pan {
			dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(v))
		}
	}
	return dst, nil
}

// DecodeFrame parses a datagram produced by EncodeFrame.
func DecodeFrame(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, ErrShortPacket
	}
	if [4]byte(data[:4]) != magic {
		return nil, ErrBadMagic
	}
	if data[4] != PacketVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, data[4])
	}
	stereo := data[5]&FlagStereo != 0

	p := &Packet{}
	copy(p.StreamID[:], data[6:22])
	be := binary.BigEndian
	p.Frame.Sequence = be.Uint32(data[22:])
	p.Frame.Timestamp = int64(be.Uint64(data[26:]))
	p.Frame.SampleRate = float64(math.Float32frombits(be.Uint32(data[34:])))
	p.Frame.FFTSize = int(be.Uint32(data[38:]))
	bins := int(be.Uint16(data[42:]))

	if len(data) != PacketSize(bins, stereo) {
		return nil, fmt.Errorf("%w: %d bytes for %d bins", ErrShortPacket, len(data), bins)
	}

	off := HeaderSize
	p.Frame.MagnitudeDB = make([]float32, bins)
	for i := range p.Frame.MagnitudeDB {
		p.Frame.MagnitudeDB[i] = math.Float32frombits(be.Uint32(data[off:]))
		off += 4
	}
	if stereo {
		p.Frame.Pan = make([]float32, bins)
		for i := range p.Frame.Pan {
			p.Frame.Pan[i] = math.Float32frombits(be.Uint32(data[off:]))
			off += 4
		}
	}
	return p, nil
}
