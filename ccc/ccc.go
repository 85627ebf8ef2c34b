package ccc

import "fmt"

// Code is a Common Command Code. Codes 0x00-0x7F are broadcast,
// 0x80-0xFE are direct.
type Code uint8

// Broadcast CCCs (MIPI I3C Basic v1.1.1, Table 16).
const (
	ENEC      Code = 0x00
	DISEC     Code = 0x01
	ENTAS0    Code = 0x02
	ENTAS1    Code = 0x03
	ENTAS2    Code = 0x04
	ENTAS3    Code = 0x05
	RSTDAA    Code = 0x06
	ENTDAA    Code = 0x07
	DEFTGTS   Code = 0x08
	SETMWL    Code = 0x09
	SETMRL    Code = 0x0A
	ENTTM     Code = 0x0B
	SETBUSCON Code = 0x0C
	ENDXFER   Code = 0x12
	ENTHDR0   Code = 0x20
	SETXTIME  Code = 0x28
	SETAASA   Code = 0x29
	RSTACT    Code = 0x2A
	DEFGRPA   Code = 0x2B
	RSTGRPA   Code = 0x2C
)

// Direct CCCs.
const (
	DirectENEC     Code = 0x80
	DirectDISEC    Code = 0x81
	DirectENTAS0   Code = 0x82
	DirectENTAS1   Code = 0x83
	DirectENTAS2   Code = 0x84
	DirectENTAS3   Code = 0x85
	DirectRSTDAA   Code = 0x86
	SETDASA        Code = 0x87
	SETNEWDA       Code = 0x88
	DirectSETMWL   Code = 0x89
	DirectSETMRL   Code = 0x8A
	GETMWL         Code = 0x8B
	GETMRL         Code = 0x8C
	GETPID         Code = 0x8D
	GETBCR         Code = 0x8E
	GETDCR         Code = 0x8F
	GETSTATUS      Code = 0x90
	GETACCCR       Code = 0x91
	DirectENDXFER  Code = 0x92
	SETBRGTGT      Code = 0x93
	GETMXDS        Code = 0x94
	GETCAPS        Code = 0x95
	SETROUTE       Code = 0x96
	D2DXFER        Code = 0x97
	DirectSETXTIME Code = 0x98
	GETXTIME       Code = 0x99
	DirectRSTACT   Code = 0x9A
	SETGRPA        Code = 0x9B
	DirectRSTGRPA  Code = 0x9C
)

// Event bits carried by ENEC/DISEC.
const (
	EventIBI            uint8 = 0x01 // ENINT
	EventControllerRole uint8 = 0x02 // ENCR
	EventHotJoin        uint8 = 0x08 // ENHJ
)

// Reserved addresses.
const (
	BroadcastAddress uint8 = 0x7E
	MaxAddress       uint8 = 0x7F
)

// IsDirect reports whether c is a direct CCC.
func (c Code) IsDirect() bool {
	return c&0x80 != 0
}

// IsBroadcast reports whether c is a broadcast CCC.
func (c Code) IsBroadcast() bool {
	return c&0x80 == 0
}

// IsGet reports whether c is a direct GET-type CCC (target responds with data).
func (c Code) IsGet() bool {
	switch c {
	case GETMWL, GETMRL, GETPID, GETBCR, GETDCR, GETSTATUS, GETACCCR,
		GETMXDS, GETCAPS, GETXTIME:
		return true
	}
	return false
}

var names = map[Code]string{
	ENEC: "ENEC", DISEC: "DISEC",
	ENTAS0: "ENTAS0", ENTAS1: "ENTAS1", ENTAS2: "ENTAS2", ENTAS3: "ENTAS3",
	RSTDAA: "RSTDAA", ENTDAA: "ENTDAA", DEFTGTS: "DEFTGTS",
	SETMWL: "SETMWL", SETMRL: "SETMRL", ENTTM: "ENTTM", SETBUSCON: "SETBUSCON",
	ENDXFER: "ENDXFER", ENTHDR0: "ENTHDR0", SETXTIME: "SETXTIME",
	SETAASA: "SETAASA", RSTACT: "RSTACT", DEFGRPA: "DEFGRPA", RSTGRPA: "RSTGRPA",

	DirectENEC: "ENEC(D)", DirectDISEC: "DISEC(D)",
	DirectENTAS0: "ENTAS0(D)", DirectENTAS1: "ENTAS1(D)",
	DirectENTAS2: "ENTAS2(D)", DirectENTAS3: "ENTAS3(D)",
	DirectRSTDAA: "RSTDAA(D)", SETDASA: "SETDASA", SETNEWDA: "SETNEWDA",
	DirectSETMWL: "SETMWL(D)", DirectSETMRL: "SETMRL(D)",
	GETMWL: "GETMWL", GETMRL: "GETMRL", GETPID: "GETPID", GETBCR: "GETBCR",
	GETDCR: "GETDCR", GETSTATUS: "GETSTATUS", GETACCCR: "GETACCCR",
	DirectENDXFER: "ENDXFER(D)", SETBRGTGT: "SETBRGTGT", GETMXDS: "GETMXDS",
	GETCAPS: "GETCAPS", SETROUTE: "SETROUTE", D2DXFER: "D2DXFER",
	DirectSETXTIME: "SETXTIME(D)", GETXTIME: "GETXTIME",
	DirectRSTACT: "RSTACT(D)", SETGRPA: "SETGRPA", DirectRSTGRPA: "RSTGRPA(D)",
}

// String returns the CCC mnemonic.
func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("CCC(0x%02X)", uint8(c))
}

// Lookup returns the code for a mnemonic as printed by String.
func Lookup(name string) (Code, bool) {
	for c, s := range names {
		if s == name {
			return c, true
		}
	}
	return 0, false
}

// ValidDynamicAddress reports whether addr may be assigned as a dynamic
// address: 7-bit, not the broadcast address, and not one of the addresses
// a single bit error away from it.
func ValidDynamicAddress(addr uint8) bool {
	if addr < 0x08 || addr > 0x77 {
		return false
	}
	switch addr {
	case 0x3E, 0x5E, 0x6E, 0x76, BroadcastAddress:
		return false
	}
	return true
}

// OddParity returns addr<<1 with the odd-parity bit in bit 0, as sent when
// assigning a dynamic address during ENTDAA.
func OddParity(addr uint8) uint8 {
	v := addr & 0x7F
	p := uint8(1)
	for b := v; b != 0; b >>= 1 {
		p ^= b & 1
	}
	return v<<1 | p
}
