// Package ydlidar reads YDLidar X-series sensors over a serial port and
// assembles their sample packets into scan.Sample revolutions.
package ydlidar

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Wire constants of the X-series scan protocol.
const (
	packetHeader   = 0x55AA // little-endian PH field
	packetHeadSize = 10     // PH, CT, LSN, FSA, LSA, CS
	maxSamples     = 0xFF

	cmdPrefix = 0xA5
	cmdScan   = 0x60
	cmdStop   = 0x65
)

// DescriptorSize is the length of the response header sent after a scan
// command: A5 5A 05 00 00 40 81.
const DescriptorSize = 7

var (
	// ErrChecksum is returned for packets whose XOR checksum does not match.
	ErrChecksum = errors.New("ydlidar: checksum mismatch")
	// ErrShortPacket is returned when fewer bytes than declared are available.
	ErrShortPacket = errors.New("ydlidar: short packet")
)

// Point is one decoded measurement.
type Point struct {
	Angle    float64 // degrees, clockwise from the sensor's front, [0, 360)
	Distance float64 // millimetres, 0 when the reading is invalid
}

// Packet is one sample packet from the sensor.
type Packet struct {
	// Start marks the first packet of a revolution.
	Start bool
	// Frequency is the spin rate reported in start packets, in Hz.
	Frequency float64
	Points    []Point
}

// PacketSize returns the size of a packet carrying n samples.
func PacketSize(n int) int {
	return packetHeadSize + 2*n
}

// DecodePacket decodes a packet starting at buf[0]. It returns the packet
// and the number of bytes consumed.
func DecodePacket(buf []byte) (Packet, int, error) {
	if len(buf) < packetHeadSize {
		return Packet{}, 0, ErrShortPacket
	}
	if binary.LittleEndian.Uint16(buf[0:2]) != packetHeader {
		return Packet{}, 0, fmt.Errorf("ydlidar: bad header % x", buf[0:2])
	}

	ct := buf[2]
	lsn := int(buf[3])
	fsa := binary.LittleEndian.Uint16(buf[4:6])
	lsa := binary.LittleEndian.Uint16(buf[6:8])
	cs := binary.LittleEndian.Uint16(buf[8:10])

	size := PacketSize(lsn)
	if len(buf) < size {
		return Packet{}, 0, ErrShortPacket
	}

	sum := uint16(packetHeader) ^ fsa ^ lsa ^ (uint16(ct) | uint16(lsn)<<8)
	raw := make([]uint16, lsn)
	for i := range raw {
		raw[i] = binary.LittleEndian.Uint16(buf[packetHeadSize+2*i:])
		sum ^= raw[i]
	}
	if sum != cs {
		return Packet{}, size, ErrChecksum
	}

	p := Packet{Start: ct&0x01 == 1}
	if p.Start {
		p.Frequency = float64(ct>>1) / 10
	}
	if lsn == 0 {
		return p, size, nil
	}

	first := rawAngle(fsa)
	diff := rawAngle(lsa) - first
	if diff < 0 {
		diff += 360
	}

	p.Points = make([]Point, lsn)
	for i, s := range raw {
		dist := float64(s) / 4
		angle := first
		if lsn > 1 {
			angle += diff / float64(lsn-1) * float64(i)
		}
		angle += angleCorrection(dist)
		p.Points[i] = Point{Angle: normalizeDegrees(angle), Distance: dist}
	}
	return p, size, nil
}

// EncodePacket builds the wire form of p. Angles of the first and last
// point are used for FSA and LSA; the per-sample correction is not
// inverted, so intermediate angles only round-trip for zero distances.
func EncodePacket(p Packet) []byte {
	n := len(p.Points)
	if n > maxSamples {
		n = maxSamples
	}
	buf := make([]byte, PacketSize(n))
	binary.LittleEndian.PutUint16(buf[0:2], packetHeader)

	var ct byte
	if p.Start {
		ct = byte(math.Round(p.Frequency*10))<<1 | 0x01
	}
	buf[2] = ct
	buf[3] = byte(n)

	var fsa, lsa uint16
	if n > 0 {
		fsa = encodeAngle(p.Points[0].Angle)
		lsa = encodeAngle(p.Points[n-1].Angle)
	} else {
		fsa, lsa = 1, 1
	}
	binary.LittleEndian.PutUint16(buf[4:6], fsa)
	binary.LittleEndian.PutUint16(buf[6:8], lsa)

	sum := uint16(packetHeader) ^ fsa ^ lsa ^ (uint16(ct) | uint16(n)<<8)
	for i := 0; i < n; i++ {
		s := uint16(math.Round(p.Points[i].Distance * 4))
		binary.LittleEndian.PutUint16(buf[packetHeadSize+2*i:], s)
		sum ^= s
	}
	binary.LittleEndian.PutUint16(buf[8:10], sum)
	return buf
}

// rawAngle converts an FSA/LSA field to degrees. Bit 0 is a check bit.
func rawAngle(v uint16) float64 {
	return float64(v>>1) / 64
}

func encodeAngle(deg float64) uint16 {
	return uint16(math.Round(normalizeDegrees(deg)*64))<<1 | 1
}

// angleCorrection compensates the offset between the laser and the
// receiver lens, in degrees.
func angleCorrection(dist float64) float64 {
	if dist == 0 {
		return 0
	}
	return math.Atan(21.8*(155.3-dist)/(155.3*dist)) * 180 / math.Pi
}

func normalizeDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}

// scanCommand and stopCommand are written to the sensor to start and stop
// streaming.
func scanCommand() []byte { return []byte{cmdPrefix, cmdScan} }
func stopCommand() []byte { return []byte{cmdPrefix, cmdStop} }
