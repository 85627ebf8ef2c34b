// Package sim provides an in-memory I3C peripheral and bus for tests and
// for the i3csim command.
//
// A [Peripheral] executes the control words written to it against attached
// [Target] devices while it holds the controller role, and answers a
// scripted [Remote] controller while it holds the target role. Hardware
// time is replaced by explicit stepping: reading EVR moves the bus one
// step, and [Peripheral.Pump] runs it to quiescence while dispatching
// interrupts.
//
//	p := sim.New(sim.DefaultOptions())
//	t := sim.NewTarget("sensor", ccc.Payload{PID: 0x0123456789AB})
//	t.SetDynamicAddress(0x08)
//	p.Attach(t)
//
// Faults are injected per target with [Target.InjectFault]; DMA failures
// with [Peripheral.FailDMA].
package sim
