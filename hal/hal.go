package hal

// Reg identifies a memory-mapped register of an I3C peripheral instance.
type Reg uint8

// Register map.
const (
	RegCR       Reg = iota // Control word (write pushes the control FIFO)
	RegCFGR                // Configuration
	RegRDR                 // Receive data byte (read pops the RX FIFO)
	RegTDR                 // Transmit data byte (write pushes the TX FIFO)
	RegIBIDR               // IBI payload bytes, little-endian, up to 4
	RegTGTTDR              // Target transmit data count
	RegSR                  // Status (read pops the status FIFO)
	RegSER                 // Status error
	RegRMR                 // Received message (IBI/CR/HJ source, CCC code)
	RegEVR                 // Event flags
	RegIER                 // Interrupt enable, same layout as EVR
	RegCEVR                // Clear event, write 1 to clear
	RegDEVR0               // Own device characteristics
	RegDEVR1               // Bus device table entry 1
	RegDEVR2               // Bus device table entry 2
	RegDEVR3               // Bus device table entry 3
	RegDEVR4               // Bus device table entry 4
	RegMAXRLR              // Max read length and IBI payload size
	RegMAXWLR              // Max write length
	RegTIMINGR0            // SCL timing
	RegTIMINGR1            // Bus conditions timing
	RegTIMINGR2            // Stall timing
	RegBCR                 // Own bus characteristics
	RegDCR                 // Own device characteristics code
	RegGETCAPR             // GETCAPS response
	RegCRCAPR              // Controller-role capabilities
	RegGETMXDSR            // GETMXDS response
	RegEPIDR               // Own provisioned ID, low 32 bits (instance, part, extra)
	RegEPIDR1              // Own provisioned ID, high 16 bits (MIPI ID, type selector)

	NumRegs
)

var regNames = [NumRegs]string{
	"CR", "CFGR", "RDR", "TDR", "IBIDR", "TGTTDR", "SR", "SER", "RMR", "EVR",
	"IER", "CEVR", "DEVR0", "DEVR1", "DEVR2", "DEVR3", "DEVR4", "MAXRLR",
	"MAXWLR", "TIMINGR0", "TIMINGR1", "TIMINGR2", "BCR", "DCR", "GETCAPR",
	"CRCAPR", "GETMXDSR", "EPIDR", "EPIDR1",
}

// String returns the register mnemonic.
func (r Reg) String() string {
	if r < NumRegs {
		return regNames[r]
	}
	return "REG?"
}

// DeviceReg returns the bus device table register for index 1..4.
func DeviceReg(index int) (Reg, bool) {
	if index < 1 || index > MaxBusDevices {
		return 0, false
	}
	return RegDEVR1 + Reg(index-1), true
}

// MaxBusDevices is the number of bus device table entries.
const MaxBusDevices = 4

// Peripheral is the register-level view of one I3C peripheral instance.
//
// Reads of FIFO registers (RDR, SR) pop the FIFO; writes of FIFO registers
// (CR, TDR) push it. Reading EVR samples the live event flags. Peripheral
// implementations are not required to be safe for concurrent use: a handle
// owns its peripheral exclusively.
type Peripheral interface {
	// Read returns the current value of a register.
	Read(r Reg) uint32

	// Write stores a value into a register.
	Write(r Reg, v uint32)
}

// Clock is the clock-tree collaborator for one peripheral instance.
type Clock interface {
	// Frequency returns the peripheral kernel clock in Hz.
	Frequency() uint32

	// Enable gates the peripheral clock on.
	Enable() error

	// Disable gates the peripheral clock off.
	Disable() error
}

// Channel identifies one bulk-transfer stream of a peripheral.
type Channel uint8

// DMA channels.
const (
	ChannelControl Channel = iota // Control words to CR
	ChannelTx                     // Bytes to TDR
	ChannelRx                     // Bytes from RDR
)

// String returns the channel name.
func (c Channel) String() string {
	switch c {
	case ChannelControl:
		return "control"
	case ChannelTx:
		return "tx"
	case ChannelRx:
		return "rx"
	default:
		return "unknown"
	}
}

// DMA is the bulk-transfer collaborator. A configured channel moves data
// between the buffer and the peripheral as the peripheral requests it; the
// peripheral is told to use a channel through the CFGR DMA enable bits.
type DMA interface {
	// StartControl arms the control channel with the given words.
	StartControl(words []uint32) error

	// Start arms a data channel with buf. For ChannelTx buf is read, for
	// ChannelRx buf is written.
	Start(ch Channel, buf []byte) error

	// Abort stops a channel. Remaining reports what was left unmoved.
	Abort(ch Channel) error

	// Remaining returns the number of items not yet moved on ch.
	Remaining(ch Channel) int

	// OnError registers the handler invoked when a channel fails.
	OnError(fn func(ch Channel, err error))
}

// IRQBinder is implemented by peripherals that can deliver interrupts
// directly to software handlers, standing in for the vector table.
type IRQBinder interface {
	// BindIRQ registers the event-class and error-class interrupt handlers.
	BindIRQ(event, err func())
}
