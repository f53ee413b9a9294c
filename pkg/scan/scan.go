// Package scan defines the planar range-scan sample consumed by the node
// and the subscription capability that delivers it.
//
// The field layout mirrors sensor_msgs/LaserScan: angles are measured around
// the sensor's Z axis with zero pointing forward along X, and reading i was
// taken at AngleMin + i*AngleIncrement.
package scan

import (
	"encoding/json"
	"math"
	"time"
)

// MessageType is the ROS type name of a scan sample.
const MessageType = "sensor_msgs/LaserScan"

// DefaultTopic is the topic the node subscribes to when none is configured.
const DefaultTopic = "/scan"

// Stamp is a ROS time stamp. It decodes both the ROS 2 (sec/nanosec) and
// ROS 1 (secs/nsecs) field names.
type Stamp struct {
	Sec     int32  `json:"sec"`
	Nanosec uint32 `json:"nanosec"`
}

// UnmarshalJSON accepts either naming convention.
func (s *Stamp) UnmarshalJSON(data []byte) error {
	var raw struct {
		Sec     *int32  `json:"sec"`
		Nanosec *uint32 `json:"nanosec"`
		Secs    *int32  `json:"secs"`
		Nsecs   *uint32 `json:"nsecs"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Stamp{}
	switch {
	case raw.Sec != nil:
		s.Sec = *raw.Sec
	case raw.Secs != nil:
		s.Sec = *raw.Secs
	}
	switch {
	case raw.Nanosec != nil:
		s.Nanosec = *raw.Nanosec
	case raw.Nsecs != nil:
		s.Nanosec = *raw.Nsecs
	}
	return nil
}

// Time converts the stamp to a time.Time.
func (s Stamp) Time() time.Time {
	return time.Unix(int64(s.Sec), int64(s.Nanosec))
}

// StampFromTime builds a Stamp from t.
func StampFromTime(t time.Time) Stamp {
	return Stamp{Sec: int32(t.Unix()), Nanosec: uint32(t.Nanosecond())}
}

// Header carries the acquisition time and coordinate frame of a sample.
type Header struct {
	Stamp   Stamp  `json:"stamp"`
	FrameID string `json:"frame_id"`
}

// Ranges is a sequence of range readings in metres.
// JSON null entries decode as NaN, which is how rosbridge encodes them,
// and NaN entries encode back to null.
type Ranges []float32

// UnmarshalJSON decodes a JSON array, mapping null to NaN.
func (r *Ranges) UnmarshalJSON(data []byte) error {
	var raw []*float32
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*r = nil
		return nil
	}
	out := make(Ranges, len(raw))
	nan := float32(math.NaN())
	for i, v := range raw {
		if v == nil {
			out[i] = nan
			continue
		}
		out[i] = *v
	}
	*r = out
	return nil
}

// MarshalJSON encodes NaN and infinite readings as null.
func (r Ranges) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	raw := make([]*float32, len(r))
	for i := range r {
		v := float64(r[i])
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		raw[i] = &r[i]
	}
	return json.Marshal(raw)
}

// Sample is one full sweep of a planar range sensor.
type Sample struct {
	Header         Header    `json:"header"`
	AngleMin       float32   `json:"angle_min"`       // start angle [rad]
	AngleMax       float32   `json:"angle_max"`       // end angle [rad]
	AngleIncrement float32   `json:"angle_increment"` // angular step [rad]
	TimeIncrement  float32   `json:"time_increment"`  // time between readings [s]
	ScanTime       float32   `json:"scan_time"`       // time between scans [s]
	RangeMin       float32   `json:"range_min"`       // [m]
	RangeMax       float32   `json:"range_max"`       // [m]
	Ranges         Ranges    `json:"ranges"`
	Intensities    []float32 `json:"intensities,omitempty"`
}

// PointCount resolves how many readings of the sample should be projected.
//
// When the sample declares a non-zero time increment, the count is the
// truncated ratio ScanTime/TimeIncrement, which is the framing convention
// of the sensor drivers. A non-positive or non-finite ratio falls back to
// the number of readings. The result never exceeds len(Ranges).
func (s *Sample) PointCount() int {
	if s == nil {
		return 0
	}
	n := len(s.Ranges)
	if s.TimeIncrement == 0 {
		return n
	}
	// single precision, as the drivers compute it
	ratio := s.ScanTime / s.TimeIncrement
	if math.IsNaN(float64(ratio)) || ratio < 1 || ratio >= float32(n) {
		// ratio in (0, 1) truncates to zero and falls back as well
		return n
	}
	return int(ratio)
}

// AngleAt returns the bearing of reading i in radians.
func (s *Sample) AngleAt(i int) float64 {
	return float64(s.AngleMin) + float64(i)*float64(s.AngleIncrement)
}

// Valid reports whether r lies within the declared range limits.
// NaN is never valid.
func (s *Sample) Valid(r float32) bool {
	if math.IsNaN(float64(r)) {
		return false
	}
	return r >= s.RangeMin && r <= s.RangeMax
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// TimeIncrement returns the per-reading time for n readings spread over
// scanTime, nudged down so that PointCount recovers exactly n.
func TimeIncrement(scanTime float32, n int) float32 {
	if n < 1 || !(scanTime > 0) {
		return 0
	}
	inc := scanTime / float32(n)
	for scanTime/inc < float32(n) {
		inc = math.Nextafter32(inc, 0)
	}
	return inc
}
