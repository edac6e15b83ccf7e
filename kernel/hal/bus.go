package hal

import "kernos/device"

// Bus routes 8-bit port I/O to the devices attached to it.
type Bus struct {
	handlers map[uint16]device.PortHandler
}

// NewBus returns a bus with no attached devices.
func NewBus() *Bus {
	return &Bus{handlers: make(map[uint16]device.PortHandler)}
}

// Attach registers h as the handler for the given ports.
func (b *Bus) Attach(h device.PortHandler, ports ...uint16) {
	for _, port := range ports {
		b.handlers[port] = h
	}
}

// In reads one byte from the requested port. Unattached ports read as a
// floating bus (0xff).
func (b *Bus) In(port uint16) uint8 {
	if h, ok := b.handlers[port]; ok {
		return h.In(port)
	}
	return 0xff
}

// Out writes one byte to the requested port. Writes to unattached ports are
// dropped.
func (b *Bus) Out(port uint16, val uint8) {
	if h, ok := b.handlers[port]; ok {
		h.Out(port, val)
	}
}
