// Package hal defines the hardware-facing surface of the I3C engine.
//
// An I3C peripheral instance is seen as a set of memory-mapped registers
// ([Peripheral]) with three FIFOs behind them:
//
//   - the control FIFO, fed through CR with one [ControlWord] per message
//   - the data FIFOs, fed through TDR and drained through RDR
//   - the status FIFO, drained through SR with one entry per message
//
// EVR reports FIFO levels and sticky events; IER selects which of them
// raise the event-class interrupt, and EVRERR raises the error-class
// interrupt with the details in SER.
//
// Collaborators outside the peripheral are consumed through small
// interfaces: [Clock] for the kernel clock, [DMA] for bulk data movement,
// and optionally [IRQBinder] for delivering interrupts to software.
//
// # Control words
//
// A private or legacy I2C message is one word:
//
//	hal.MessageWord(hal.MTypePrivate, 0x08, 4, false, true)
//
// A direct CCC is two words, the CCC header followed by the addressed part:
//
//	hal.CCCWord(uint8(ccc.GETPID), 0, false)
//	hal.MessageWord(hal.MTypeDirect, 0x08, 6, true, true)
//
// A broadcast CCC is a single CCC header whose count includes the
// defining byte, if any.
//
// The simulated peripheral in [github.com/ardnew/softi3c/hal/sim] implements
// every interface of this package.
package hal
