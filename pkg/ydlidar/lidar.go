package ydlidar

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/teslashibe/go-lidarplot/pkg/scan"
)

// Config holds serial sensor settings.
type Config struct {
	Port     string  `yaml:"port"`
	BaudRate int     `yaml:"baud_rate"`
	FrameID  string  `yaml:"frame_id"`
	Bins     int     `yaml:"bins"`      // readings per published revolution
	RangeMin float32 `yaml:"range_min"` // metres
	RangeMax float32 `yaml:"range_max"` // metres
}

// DefaultConfig returns settings for an X4 on the first USB adapter.
func DefaultConfig() Config {
	return Config{
		Port:     "/dev/ttyUSB0",
		BaudRate: 128000,
		FrameID:  "laser_frame",
		Bins:     720,
		RangeMin: 0.12,
		RangeMax: 10.0,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", c.BaudRate)
	}
	if c.Bins < 1 {
		return fmt.Errorf("bins must be positive, got %d", c.Bins)
	}
	if !(c.RangeMax > c.RangeMin) {
		return fmt.Errorf("range_max (%v) must exceed range_min (%v)", c.RangeMax, c.RangeMin)
	}
	return nil
}

// Stats holds sensor counters.
type Stats struct {
	Port           string `json:"port"`
	Packets        uint64 `json:"packets"`
	ChecksumErrors uint64 `json:"checksum_errors"`
	Scans          uint64 `json:"scans"`
}

// Lidar streams revolutions from a sensor.
type Lidar struct {
	cfg    Config
	port   io.ReadWriteCloser
	logger *slog.Logger

	mu      sync.Mutex
	running bool

	packets   atomic.Uint64
	badChecks atomic.Uint64
	scans     atomic.Uint64
}

// Open opens the serial port named in cfg.
func Open(cfg Config, logger *slog.Logger) (*Lidar, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
	}
	// the X4 motor only spins with DTR asserted
	if err := port.SetDTR(true); err != nil {
		port.Close()
		return nil, fmt.Errorf("set DTR on %s: %w", cfg.Port, err)
	}
	return New(cfg, port, logger)
}

// New wraps an already open port.
func New(cfg Config, port io.ReadWriteCloser, logger *slog.Logger) (*Lidar, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if port == nil {
		return nil, errors.New("port is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lidar{cfg: cfg, port: port, logger: logger}, nil
}

// Subscribe starts the sensor and delivers each revolution to h. The topic
// is only used for logging. Only one subscription may be active.
func (l *Lidar) Subscribe(topic string, h scan.Handler) (io.Closer, error) {
	if h == nil {
		return nil, errors.New("handler is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil, errors.New("ydlidar: already streaming")
	}
	if _, err := l.port.Write(scanCommand()); err != nil {
		return nil, fmt.Errorf("start scan: %w", err)
	}
	l.running = true

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := l.readLoop(stop, h)
		if err != nil && !errors.Is(err, io.EOF) {
			select {
			case <-stop:
			default:
				l.logger.Error("serial read failed", "port", l.cfg.Port, "error", err)
			}
		}
	}()

	l.logger.Info("streaming from serial lidar", "port", l.cfg.Port, "topic", topic, "baud", l.cfg.BaudRate)

	var once sync.Once
	return scan.CloserFunc(func() error {
		var err error
		once.Do(func() {
			close(stop)
			l.port.Write(stopCommand())
			// closing the port unblocks the pending read
			err = l.port.Close()
			<-done
			l.mu.Lock()
			l.running = false
			l.mu.Unlock()
		})
		return err
	}), nil
}

// Stats returns a snapshot of the sensor counters.
func (l *Lidar) Stats() Stats {
	return Stats{
		Port:           l.cfg.Port,
		Packets:        l.packets.Load(),
		ChecksumErrors: l.badChecks.Load(),
		Scans:          l.scans.Load(),
	}
}

func (l *Lidar) readLoop(stop <-chan struct{}, h scan.Handler) error {
	r := bufio.NewReader(l.port)
	asm := NewAssembler(l.cfg)
	buf := make([]byte, PacketSize(maxSamples))

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		if err := syncHeader(r); err != nil {
			return err
		}
		buf[0], buf[1] = 0xAA, 0x55
		if _, err := io.ReadFull(r, buf[2:packetHeadSize]); err != nil {
			return err
		}
		size := PacketSize(int(buf[3]))
		if _, err := io.ReadFull(r, buf[packetHeadSize:size]); err != nil {
			return err
		}

		pkt, _, err := DecodePacket(buf[:size])
		if err != nil {
			l.badChecks.Add(1)
			l.logger.Debug("dropping packet", "error", err)
			continue
		}
		l.packets.Add(1)

		if s := asm.Add(pkt, time.Now()); s != nil {
			l.scans.Add(1)
			h(s)
		}
	}
}

// syncHeader consumes bytes up to and including the next AA 55 pair.
func syncHeader(r *bufio.Reader) error {
	prev := byte(0)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if prev == 0xAA && b == 0x55 {
			return nil
		}
		prev = b
	}
}

// Assembler groups packets into revolutions and resamples them onto a
// fixed angular grid.
type Assembler struct {
	cfg       Config
	points    []Point
	started   bool
	lastStart time.Time
	frequency float64
}

// NewAssembler creates an assembler for cfg.
func NewAssembler(cfg Config) *Assembler {
	return &Assembler{cfg: cfg}
}

// Add feeds one packet received at t. It returns the completed revolution
// when p starts the next one, and nil otherwise. Packets before the first
// start packet are discarded.
func (a *Assembler) Add(p Packet, t time.Time) *scan.Sample {
	var out *scan.Sample
	if p.Start {
		if a.started && len(a.points) > 0 {
			scanTime := t.Sub(a.lastStart).Seconds()
			if a.frequency > 0 {
				scanTime = 1 / a.frequency
			}
			out = a.build(a.lastStart, float32(scanTime))
		}
		a.started = true
		a.lastStart = t
		a.frequency = p.Frequency
		a.points = a.points[:0]
	}
	if a.started {
		a.points = append(a.points, p.Points...)
	}
	return out
}

// build resamples the collected points. The sensor turns clockwise, so
// bearings are negated into the counter-clockwise LaserScan convention.
// Each bin keeps its nearest reading; empty bins are NaN.
func (a *Assembler) build(stamp time.Time, scanTime float32) *scan.Sample {
	n := a.cfg.Bins
	inc := 2 * math.Pi / float64(n)
	nan := float32(math.NaN())

	ranges := make(scan.Ranges, n)
	for i := range ranges {
		ranges[i] = nan
	}

	for _, p := range a.points {
		if p.Distance == 0 {
			continue
		}
		bearing := -p.Angle * math.Pi / 180
		bin := int(math.Floor((bearing+math.Pi)/inc)) % n
		if bin < 0 {
			bin += n
		}
		r := float32(p.Distance / 1000)
		if math.IsNaN(float64(ranges[bin])) || r < ranges[bin] {
			ranges[bin] = r
		}
	}

	return &scan.Sample{
		Header: scan.Header{
			Stamp:   scan.StampFromTime(stamp),
			FrameID: a.cfg.FrameID,
		},
		AngleMin:       float32(-math.Pi),
		AngleMax:       float32(math.Pi - inc),
		AngleIncrement: float32(inc),
		TimeIncrement:  scan.TimeIncrement(scanTime, n),
		ScanTime:       scanTime,
		RangeMin:       a.cfg.RangeMin,
		RangeMax:       a.cfg.RangeMax,
		Ranges:         ranges,
	}
}
