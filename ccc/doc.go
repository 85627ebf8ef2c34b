// Package ccc catalogues MIPI I3C Common Command Codes and decodes the
// 64-bit ENTDAA payload a target sends during Dynamic Address Assignment.
//
// Everything in this package is pure data manipulation; nothing touches
// hardware. [DecodePayload] splits a raw payload into its [PID], [BCR] and
// DCR fields:
//
//	raw := uint64(0x0123456789AB_C6_1F)
//	p := ccc.DecodePayload(raw)
//	p.PID.MIPIManufacturerID() // 15-bit manufacturer id
//	p.BCR.IBIPayload()         // IBIs carry payload bytes
//	p.DCR                      // device characteristic code
package ccc
