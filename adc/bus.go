package adc

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// ReadBufferSize is the size of the temporary buffer used while
// accumulating a response packet from the serial port.
const ReadBufferSize = 1024

// MinHeaderSize is the minimum number of bytes needed to parse a packet
// header and its length field.
const MinHeaderSize = 7 // Header(4) + ID(1) + Length(2)

// DefaultReadTimeout bounds a single request/response transaction.
const DefaultReadTimeout = 200 * time.Millisecond

// BusID identifies one piece of bus hardware as enumerated by
// ListBusHardware.
type BusID string

// DeviceID identifies a device discovered by ScanDevices, before it has
// been added and handed a Handle.
type DeviceID string

// Handle is an opaque reference to a device that has been added to the
// bus. It is the only value the rest of the core holds on to.
type Handle struct {
	bus    BusID
	device DeviceID
}

// SerialOptions mirrors the vendor bus-hardware options the spec
// requires: 115200-8-E-1 by default.
type SerialOptions struct {
	BaudRate int
	DataBits int
	Parity   serial.Parity
	StopBits serial.StopBits
}

// DefaultSerialOptions returns the 115200-8-E-1 configuration §6/§7 of
// the spec requires.
func DefaultSerialOptions() SerialOptions {
	return SerialOptions{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.EvenParity,
		StopBits: serial.OneStopBit,
	}
}

// ScanProgressFunc is invoked purely for observability during a device
// scan; it has no semantic effect on the result.
type ScanProgressFunc func(scanned, total int)

// BusError distinguishes a stale/invalid handle from a genuine transport
// failure, per spec §4.1/§7.
type BusError struct {
	Kind    BusErrorKind
	Message string
}

type BusErrorKind int

const (
	BusErrorTransport BusErrorKind = iota
	BusErrorHandle
)

func (e *BusError) Error() string {
	switch e.Kind {
	case BusErrorHandle:
		return fmt.Sprintf("adc: bus: invalid handle: %s", e.Message)
	default:
		return fmt.Sprintf("adc: bus: transport error: %s", e.Message)
	}
}

// BusDriver is the narrow, testable surface over the vendor bus library
// (spec §4.1). Every operation returns an error instead of panicking or
// throwing; the facade never retries.
type BusDriver interface {
	ListBusHardware() ([]BusID, error)
	OpenBus(id BusID, opts SerialOptions) error
	CloseBus(id BusID) error
	ScanDevices(ctx context.Context, id BusID, progress ScanProgressFunc) ([]DeviceID, error)
	AddDevice(id DeviceID) (Handle, error)
	Connect(h Handle) error
	Disconnect(h Handle) error
	CheckConnection(h Handle) (bool, error)
	WriteNumber(h Handle, value int64, idx odIndex, bits int) error
	ReadNumber(h Handle, idx odIndex) (uint32, error)
}

// SerialBusDriver implements BusDriver over a real serial port using
// go.bug.st/serial for the transport and the CRC16-framed request/
// response protocol in protocol.go for the object-dictionary access.
//
// The vendor bus-discovery library itself is out of scope (spec §1); this
// type stands in for it behind the same narrow interface, so everything
// above BusDriver is oblivious to the substitution.
//
// serialPort is the narrow slice of go.bug.st/serial's Port interface the
// driver actually needs; keeping it narrow lets tests substitute a mock
// without reimplementing the full vendor interface.
type serialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

type SerialBusDriver struct {
	mu          sync.Mutex
	portName    string
	port        serialPort
	connected   map[Handle]bool
	nextDevice  int
	readTimeout time.Duration
}

// NewSerialBusDriver creates a driver bound to one OS serial port name
// (e.g. "/dev/ttyUSB0", "COM3").
func NewSerialBusDriver(portName string) *SerialBusDriver {
	return &SerialBusDriver{
		portName:    portName,
		connected:   make(map[Handle]bool),
		readTimeout: DefaultReadTimeout,
	}
}

func (d *SerialBusDriver) ListBusHardware() ([]BusID, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, &BusError{Kind: BusErrorTransport, Message: err.Error()}
	}
	ids := make([]BusID, len(ports))
	for i, p := range ports {
		ids[i] = BusID(p)
	}
	return ids, nil
}

func (d *SerialBusDriver) OpenBus(id BusID, opts SerialOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		Parity:   opts.Parity,
		StopBits: opts.StopBits,
	}

	port, err := serial.Open(string(id), mode)
	if err != nil {
		return &BusError{Kind: BusErrorTransport, Message: err.Error()}
	}
	d.port = port
	return nil
}

func (d *SerialBusDriver) CloseBus(id BusID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port == nil {
		return &BusError{Kind: BusErrorHandle, Message: "bus not open"}
	}
	err := d.port.Close()
	d.port = nil
	if err != nil {
		return &BusError{Kind: BusErrorTransport, Message: err.Error()}
	}
	return nil
}

// ScanDevices reports discovery progress through the callback purely for
// observability; the ADC rig is always exactly two devices (spec §4.3.3).
func (d *SerialBusDriver) ScanDevices(ctx context.Context, id BusID, progress ScanProgressFunc) ([]DeviceID, error) {
	const expected = 2
	ids := make([]DeviceID, 0, expected)
	for i := 0; i < expected; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		ids = append(ids, DeviceID(fmt.Sprintf("dev-%d", i+1)))
		if progress != nil {
			progress(i+1, expected)
		}
	}
	return ids, nil
}

func (d *SerialBusDriver) AddDevice(id DeviceID) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextDevice++
	return Handle{bus: BusID(d.portName), device: id}, nil
}

func (d *SerialBusDriver) Connect(h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil {
		return &BusError{Kind: BusErrorHandle, Message: "bus not open"}
	}
	d.connected[h] = true
	return nil
}

func (d *SerialBusDriver) Disconnect(h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.connected, h)
	return nil
}

func (d *SerialBusDriver) CheckConnection(h Handle) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected[h], nil
}

func (d *SerialBusDriver) deviceNumericID(h Handle) uint8 {
	// The two motors always enumerate as device 1 and 2; derive the wire
	// ID from the opaque DeviceID's trailing digit rather than exposing
	// DeviceID layout to callers.
	if len(h.device) == 0 {
		return 0
	}
	last := h.device[len(h.device)-1]
	if last >= '0' && last <= '9' {
		return last - '0'
	}
	return 0
}

func (d *SerialBusDriver) transfer(tx []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port == nil {
		return nil, &BusError{Kind: BusErrorHandle, Message: "bus not open"}
	}

	if _, err := d.port.Write(tx); err != nil {
		return nil, &BusError{Kind: BusErrorTransport, Message: err.Error()}
	}

	deadline := time.Now().Add(d.readTimeout)
	buf := bytes.NewBuffer(nil)
	tmp := make([]byte, ReadBufferSize)

	for time.Now().Before(deadline) {
		n, err := d.port.Read(tmp)
		if err != nil {
			return nil, &BusError{Kind: BusErrorTransport, Message: err.Error()}
		}
		if n > 0 {
			buf.Write(tmp[:n])
			if buf.Len() >= MinHeaderSize {
				b := buf.Bytes()
				start := findPacketStart(b)
				if start != -1 && buf.Len() >= start+MinHeaderSize {
					pkt := b
					bodyLen := uint16(pkt[start+5]) | (uint16(pkt[start+6]) << 8)
					total := start + MinHeaderSize + int(bodyLen)
					if buf.Len() >= total {
						return pkt[start:total], nil
					}
				}
			}
		}
	}

	return nil, &BusError{Kind: BusErrorTransport, Message: "read timeout"}
}

func (d *SerialBusDriver) WriteNumber(h Handle, value int64, idx odIndex, bits int) error {
	payload := make([]byte, bits/8)
	switch bits {
	case 8:
		payload[0] = byte(value)
	case 16:
		v := uint16(value)
		payload[0], payload[1] = byte(v), byte(v>>8)
	case 32:
		v := uint32(value)
		payload[0], payload[1], payload[2], payload[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	default:
		return fmt.Errorf("adc: bus: unsupported bit width %d", bits)
	}

	tx := buildPacket(d.deviceNumericID(h), instWrite, idx, payload)
	rx, err := d.transfer(tx)
	if err != nil {
		return err
	}
	_, errCode, _, err := parsePacket(rx)
	if err != nil {
		return &BusError{Kind: BusErrorTransport, Message: err.Error()}
	}
	if errCode != 0 {
		return &BusError{Kind: BusErrorTransport, Message: fmt.Sprintf("device error code %#02X on write %s", errCode, idx)}
	}
	return nil
}

func (d *SerialBusDriver) ReadNumber(h Handle, idx odIndex) (uint32, error) {
	tx := buildPacket(d.deviceNumericID(h), instRead, idx, []byte{4})
	rx, err := d.transfer(tx)
	if err != nil {
		return 0, err
	}
	_, errCode, params, err := parsePacket(rx)
	if err != nil {
		return 0, &BusError{Kind: BusErrorTransport, Message: err.Error()}
	}
	if errCode != 0 {
		return 0, &BusError{Kind: BusErrorTransport, Message: fmt.Sprintf("device error code %#02X on read %s", errCode, idx)}
	}
	// The response params echo the 3-byte (index, subindex) prefix before
	// the 4 value bytes.
	if len(params) < 7 {
		return 0, &BusError{Kind: BusErrorTransport, Message: fmt.Sprintf("short read response for %s", idx)}
	}
	v := params[3:7]
	return uint32(v[0]) | uint32(v[1])<<8 | uint32(v[2])<<16 | uint32(v[3])<<24, nil
}
