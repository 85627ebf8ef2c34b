package hal

// CR control word fields.
const (
	CRDCNTMask   = 0xFFFF  // Data byte count
	CRRNW        = 1 << 16 // Read (1) or write (0)
	CRAddrShift  = 17      // Target address [23:17]
	CRCCCShift   = 16      // CCC code [23:16]
	CRMTypeShift = 27      // Message type [30:27]
	CRMEND       = 1 << 31 // Stop after this message (0 = restart)
)

// MType is the message type carried in a control word.
type MType uint8

// Message types.
const (
	MTypeNone           MType = 0x0
	MTypeDirect         MType = 0x1 // Addressed part of a direct CCC
	MTypePrivate        MType = 0x2 // I3C SDR private message
	MTypeCCC            MType = 0x3 // CCC header, broadcast or direct
	MTypeLegacyI2C      MType = 0x4 // Legacy I2C message
	MTypeHotJoin        MType = 0x8 // Target: hot-join request
	MTypeControllerRole MType = 0x9 // Target: controller-role request
	MTypeIBI            MType = 0xA // Target: in-band interrupt request
)

// String returns the message type name.
func (m MType) String() string {
	switch m {
	case MTypeNone:
		return "none"
	case MTypeDirect:
		return "direct"
	case MTypePrivate:
		return "private"
	case MTypeCCC:
		return "ccc"
	case MTypeLegacyI2C:
		return "i2c"
	case MTypeHotJoin:
		return "hot-join"
	case MTypeControllerRole:
		return "controller-role"
	case MTypeIBI:
		return "ibi"
	default:
		return "unknown"
	}
}

// ControlWord is one entry of the control FIFO.
type ControlWord uint32

// MessageWord encodes a private, legacy I2C or direct message.
func MessageWord(mt MType, addr uint8, count int, read, end bool) ControlWord {
	w := uint32(mt&0xF)<<CRMTypeShift | uint32(addr&0x7F)<<CRAddrShift | uint32(count)&CRDCNTMask
	if read {
		w |= CRRNW
	}
	if end {
		w |= CRMEND
	}
	return ControlWord(w)
}

// CCCWord encodes a CCC header carrying count bytes (defining byte included).
func CCCWord(code uint8, count int, end bool) ControlWord {
	w := uint32(MTypeCCC)<<CRMTypeShift | uint32(code)<<CRCCCShift | uint32(count)&CRDCNTMask
	if end {
		w |= CRMEND
	}
	return ControlWord(w)
}

// RequestWord encodes a target-initiated request.
func RequestWord(mt MType) ControlWord {
	return ControlWord(uint32(mt&0xF)<<CRMTypeShift | CRMEND)
}

// MType returns the message type.
func (w ControlWord) MType() MType { return MType(w >> CRMTypeShift & 0xF) }

// Count returns the data byte count.
func (w ControlWord) Count() int { return int(w & CRDCNTMask) }

// Read reports whether the message reads from the target.
func (w ControlWord) Read() bool { return w&CRRNW != 0 }

// Addr returns the target address of a message word.
func (w ControlWord) Addr() uint8 { return uint8(w>>CRAddrShift) & 0x7F }

// CCC returns the code of a CCC word.
func (w ControlWord) CCC() uint8 { return uint8(w >> CRCCCShift) }

// End reports whether a stop follows this message.
func (w ControlWord) End() bool { return w&CRMEND != 0 }

// CFGR bits.
const (
	CFGREN      = 1 << 0  // Peripheral enable
	CFGRCRINIT  = 1 << 1  // Controller role (0 = target)
	CFGRNOARBH  = 1 << 2  // No arbitration header
	CFGRHJACK   = 1 << 4  // Controller acknowledges hot-join
	CFGRRXDMAEN = 1 << 5  // RX FIFO serviced by DMA
	CFGRTXDMAEN = 1 << 6  // TX FIFO serviced by DMA
	CFGRCDMAEN  = 1 << 7  // Control FIFO serviced by DMA
	CFGRRXFLUSH = 1 << 8  // Flush RX FIFO (self-clearing)
	CFGRTXFLUSH = 1 << 9  // Flush TX FIFO (self-clearing)
	CFGRSFLUSH  = 1 << 10 // Flush status FIFO (self-clearing)
	CFGRCFLUSH  = 1 << 11 // Flush control FIFO (self-clearing)
	CFGRABORT   = 1 << 12 // Abort current frame (cleared when done)
	CFGRRECOVER = 1 << 13 // Force SCL idle (cleared when done)
	CFGRRXTHRES = 1 << 14 // RX FIFO threshold is 4 bytes (else 1)
	CFGRTXTHRES = 1 << 15 // TX FIFO threshold is 4 bytes (else 1)
	CFGRSMODE   = 1 << 16 // Status FIFO enable
)

// SR fields.
const (
	SRXDCNTMask = 0xFFFF  // Bytes moved by the message
	SRABT       = 1 << 17 // Message ended early by the target
	SRDIR       = 1 << 18 // Message was a read
	SRNACK      = 1 << 19 // Target request not acknowledged
	SRMIDShift  = 24      // Message index [31:24]
)

// SER fields.
const (
	SERCODERRMask = 0xF     // Protocol error code, valid when SERPERR set
	SERPERR       = 1 << 4  // Protocol error (CE0-CE3, TE0-TE6)
	SERSTALL      = 1 << 5  // SCL stall timeout
	SERDOVR       = 1 << 6  // RX overrun or TX underrun
	SERCOVR       = 1 << 7  // Control underrun or status overrun
	SERANACK      = 1 << 8  // Address not acknowledged
	SERDNACK      = 1 << 9  // Data not acknowledged
	SERDERR       = 1 << 10 // Data error during controller-role handoff
)

// CODERR values for controller (CE) and target (TE) protocol errors.
const (
	CodeCE0 = 0x0
	CodeCE1 = 0x1
	CodeCE2 = 0x2
	CodeCE3 = 0x3
	CodeTE0 = 0x8
	CodeTE1 = 0x9
	CodeTE2 = 0xA
	CodeTE3 = 0xB
	CodeTE4 = 0xC
	CodeTE5 = 0xD
	CodeTE6 = 0xE
)

// RMR fields.
const (
	RMRIBIRDCNTMask = 0x7 // IBI payload byte count in IBIDR
	RMRRCODEShift   = 8   // Received CCC code [15:8]
	RMRRADDShift    = 17  // Requesting target address [23:17]
	MaxIBIPayload   = 4   // IBIDR capacity in bytes
)

// HotJoinAddress is the address sent by a hot-joining target.
const HotJoinAddress uint8 = 0x02

// RMRAddr returns the requesting target address of an RMR value.
func RMRAddr(v uint32) uint8 { return uint8(v>>RMRRADDShift) & 0x7F }

// RMRCode returns the received CCC code of an RMR value.
func RMRCode(v uint32) uint8 { return uint8(v >> RMRRCODEShift) }

// EVR, IER and CEVR bits.
const (
	EVRCFNF   = 1 << 0  // Control FIFO not full (level)
	EVRSFNE   = 1 << 1  // Status FIFO not empty (level)
	EVRTXFNF  = 1 << 2  // TX FIFO not full with data outstanding (level)
	EVRRXFNE  = 1 << 3  // RX FIFO not empty (level)
	EVRFC     = 1 << 4  // Frame complete
	EVRERR    = 1 << 5  // Error, details in SER
	EVRIBI    = 1 << 6  // Controller: IBI received
	EVRIBIEND = 1 << 7  // Target: IBI procedure ended
	EVRCR     = 1 << 8  // Controller: controller-role request received
	EVRCRUPD  = 1 << 9  // Target: controller role taken over
	EVRHJ     = 1 << 10 // Controller: hot-join request received
	EVRWKP    = 1 << 11 // Target: wake-up pattern
	EVRGET    = 1 << 12 // Target: GETxxx CCC answered
	EVRSTA    = 1 << 13 // Target: GETSTATUS answered
	EVRDAUPD  = 1 << 14 // Target: dynamic address updated
	EVRMWLUPD = 1 << 15 // Target: max write length updated
	EVRMRLUPD = 1 << 16 // Target: max read length updated
	EVRRST    = 1 << 17 // Target: reset pattern
	EVRASUPD  = 1 << 18 // Target: activity state updated
	EVRINTUPD = 1 << 19 // Target: ENEC/DISEC grants updated
	EVRDEF    = 1 << 20 // Target: DEFTGTS received
	EVRGRP    = 1 << 21 // Target: DEFGRPA received

	// EVRLevel are the FIFO flags that follow FIFO occupancy and cannot be cleared.
	EVRLevel = EVRCFNF | EVRSFNE | EVRTXFNF | EVRRXFNE
)

// DEVR0 fields.
const (
	DEVR0DAVAL       = 1 << 0  // Dynamic address valid
	DEVR0DAShift     = 1       // Dynamic address [7:1]
	DEVR0IBIEN       = 1 << 16 // IBI allowed by the controller
	DEVR0CREN        = 1 << 17 // Controller-role request allowed
	DEVR0HJEN        = 1 << 19 // Hot-join allowed
	DEVR0ASShift     = 20      // Activity state [21:20]
	DEVR0RSTACTShift = 22      // Reset action [23:22]
	DEVR0RSTVAL      = 1 << 24 // Reset action valid
)

// DEVR1..4 fields.
const (
	DEVRDAShift = 1       // Dynamic address [7:1]
	DEVRIBIACK  = 1 << 16 // Acknowledge IBI
	DEVRCRACK   = 1 << 17 // Acknowledge controller-role request
	DEVRIBIDEN  = 1 << 18 // Read IBI payload
	DEVRSUSP    = 1 << 19 // Suspend the frame after an IBI
)

// MAXRLR and MAXWLR fields.
const (
	MAXLenMask      = 0xFFFF // Max read/write length
	MAXRLRIBIPShift = 16     // IBI payload size [18:16]
)

// DAAddr returns the dynamic address field of a DEVRx value.
func DAAddr(v uint32) uint8 { return uint8(v>>DEVRDAShift) & 0x7F }
