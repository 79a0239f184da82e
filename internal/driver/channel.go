package driver

// Channel is the command channel to the instrument. The driver never touches
// the transport directly; the Prologix GPIB-USB implementation lives in
// internal/prologix and tests use a scripted mock.
type Channel interface {
	// Open opens the underlying transport.
	Open() error
	// Close releases the underlying transport. Closing twice is the
	// channel's problem, not the driver's.
	Close() error
	// SendLine writes one command line to the instrument.
	SendLine(command string) error
	// ReceiveLine blocks until one response line is available.
	ReceiveLine() (string, error)
	// SelectBusAddress addresses the instrument on the bus.
	SelectBusAddress(addr int) error
	// ResetSelectedDevice resets the currently addressed instrument.
	ResetSelectedDevice() error
}
