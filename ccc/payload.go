package ccc

import "fmt"

// PayloadSize is the size of an ENTDAA response in bytes.
const PayloadSize = 8

// BCR is the Bus Characteristics Register.
type BCR uint8

// BCR bit definitions.
const (
	BCRMaxSpeedLimit  BCR = 1 << 0
	BCRIBIRequest     BCR = 1 << 1
	BCRIBIPayload     BCR = 1 << 2
	BCROfflineCapable BCR = 1 << 3
	BCRVirtualTarget  BCR = 1 << 4
	BCRAdvancedCaps   BCR = 1 << 5
)

const bcrDeviceRoleShift = 6

// Device roles reported in BCR[7:6].
const (
	RoleTarget     uint8 = 0
	RoleController uint8 = 1
)

// MaxSpeedLimit reports whether the device limits its SDR data rate.
func (b BCR) MaxSpeedLimit() bool { return b&BCRMaxSpeedLimit != 0 }

// IBIRequestCapable reports whether the device can raise IBIs.
func (b BCR) IBIRequestCapable() bool { return b&BCRIBIRequest != 0 }

// IBIPayload reports whether IBIs carry at least one payload byte.
func (b BCR) IBIPayload() bool { return b&BCRIBIPayload != 0 }

// OfflineCapable reports whether the device may go offline.
func (b BCR) OfflineCapable() bool { return b&BCROfflineCapable != 0 }

// VirtualTarget reports virtual target support.
func (b BCR) VirtualTarget() bool { return b&BCRVirtualTarget != 0 }

// AdvancedCapabilities reports whether GETCAPS advertises extra capabilities.
func (b BCR) AdvancedCapabilities() bool { return b&BCRAdvancedCaps != 0 }

// DeviceRole returns BCR[7:6].
func (b BCR) DeviceRole() uint8 { return uint8(b) >> bcrDeviceRoleShift }

// WithDeviceRole returns b with BCR[7:6] set to role.
func (b BCR) WithDeviceRole(role uint8) BCR {
	return b&0x3F | BCR(role&0x3)<<bcrDeviceRoleShift
}

// PID is a 48-bit Provisioned ID.
//
//	[47:33] MIPI manufacturer ID
//	[32]    ID type selector (0 = vendor fixed, 1 = random)
//	[31:16] part ID
//	[15:12] instance ID
//	[11:0]  additional ID
type PID uint64

// NewPID packs the PID fields. Out-of-range values are masked.
func NewPID(mipiMID uint16, idTypeSel bool, partID uint16, instanceID uint8, extra uint16) PID {
	var sel uint64
	if idTypeSel {
		sel = 1
	}
	return PID(uint64(mipiMID&0x7FFF)<<33 |
		sel<<32 |
		uint64(partID)<<16 |
		uint64(instanceID&0xF)<<12 |
		uint64(extra&0xFFF))
}

// MIPIManufacturerID returns PID[47:33].
func (p PID) MIPIManufacturerID() uint16 { return uint16(p>>33) & 0x7FFF }

// IDTypeSelector returns PID[32].
func (p PID) IDTypeSelector() uint8 { return uint8(p>>32) & 1 }

// PartID returns PID[31:16].
func (p PID) PartID() uint16 { return uint16(p >> 16) }

// InstanceID returns PID[15:12].
func (p PID) InstanceID() uint8 { return uint8(p>>12) & 0xF }

// AdditionalID returns PID[11:0].
func (p PID) AdditionalID() uint16 { return uint16(p) & 0xFFF }

// String formats the PID as 12 hex digits.
func (p PID) String() string {
	return fmt.Sprintf("%012X", uint64(p)&0xFFFFFFFFFFFF)
}

// Payload is a decoded ENTDAA response.
type Payload struct {
	PID PID
	BCR BCR
	DCR uint8
}

// DecodePayload splits a raw 64-bit ENTDAA response, as received MSB first,
// into its PID, BCR and DCR fields. It has no side effects.
func DecodePayload(raw uint64) Payload {
	return Payload{
		PID: PID(raw>>16) & 0xFFFFFFFFFFFF,
		BCR: BCR(raw >> 8),
		DCR: uint8(raw),
	}
}

// Encode packs p into the 64-bit ENTDAA wire value.
func (p Payload) Encode() uint64 {
	return uint64(p.PID&0xFFFFFFFFFFFF)<<16 | uint64(p.BCR)<<8 | uint64(p.DCR)
}

// PayloadFromBytes assembles the raw value from bytes in bus order.
// Returns false if b is shorter than PayloadSize.
func PayloadFromBytes(b []byte) (uint64, bool) {
	if len(b) < PayloadSize {
		return 0, false
	}
	var v uint64
	for _, x := range b[:PayloadSize] {
		v = v<<8 | uint64(x)
	}
	return v, true
}

// MarshalTo writes the raw value of p to buf in bus order.
// Returns the number of bytes written, or 0 if buf is too small.
func (p Payload) MarshalTo(buf []byte) int {
	if len(buf) < PayloadSize {
		return 0
	}
	v := p.Encode()
	for i := PayloadSize - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return PayloadSize
}
