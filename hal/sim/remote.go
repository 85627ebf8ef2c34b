package sim

import (
	"github.com/ardnew/softi3c/ccc"
	"github.com/ardnew/softi3c/hal"
	"github.com/ardnew/softi3c/pkg"
)

type opKind uint8

const (
	opWrite opKind = iota
	opRead
	opCCC
	opWakeup
	opReset
)

// remoteOp is one queued action of the remote controller.
type remoteOp struct {
	kind   opKind
	code   ccc.Code
	data   []byte
	n      int
	moved  int
	got    []byte
	direct bool
}

// IBIRecord is an in-band interrupt as seen by the remote controller.
type IBIRecord struct {
	Payload []byte
}

// Response is the answer the peripheral gave to a GET CCC.
type Response struct {
	Code ccc.Code
	Data []byte
}

// Remote is the controller that drives the bus while the simulated
// peripheral acts as a target. Actions are queued and executed in order as
// the bus steps; request policies decide how the peripheral's own
// hot-join, IBI and controller-role requests are answered.
type Remote struct {
	// AckIBI acknowledges IBIs. ReadIBIPayload also reads their payload.
	AckIBI         bool
	ReadIBIPayload bool

	// AcceptHotJoin acknowledges hot-join and assigns NextAddress.
	AcceptHotJoin bool

	// AcceptControllerRole hands the controller role over on request.
	AcceptControllerRole bool

	// NextAddress is assigned by the next ENTDAA or accepted hot-join.
	NextAddress uint8

	ops []*remoteOp

	reads      [][]byte
	ibis       []IBIRecord
	responses  []Response
	discovered []ccc.Payload
	nacks      int

	from *Target // target that took the controller role from the peripheral
}

// NewRemote creates a remote controller that accepts every request.
func NewRemote() *Remote {
	return &Remote{
		AckIBI:               true,
		ReadIBIPayload:       true,
		AcceptHotJoin:        true,
		AcceptControllerRole: true,
		NextAddress:          0x30,
	}
}

func (r *Remote) push(op *remoteOp) *Remote {
	r.ops = append(r.ops, op)
	return r
}

// Write queues a private write to the peripheral.
func (r *Remote) Write(data ...byte) *Remote {
	return r.push(&remoteOp{kind: opWrite, data: append([]byte(nil), data...), n: len(data)})
}

// Read queues a private read of up to n bytes from the peripheral.
func (r *Remote) Read(n int) *Remote {
	return r.push(&remoteOp{kind: opRead, n: n})
}

// Broadcast queues a broadcast CCC.
func (r *Remote) Broadcast(code ccc.Code, data ...byte) *Remote {
	return r.push(&remoteOp{kind: opCCC, code: code, data: append([]byte(nil), data...)})
}

// Direct queues a direct CCC addressed to the peripheral.
func (r *Remote) Direct(code ccc.Code, data ...byte) *Remote {
	return r.push(&remoteOp{kind: opCCC, code: code, data: append([]byte(nil), data...), direct: true})
}

// EnableEvents broadcasts ENEC.
func (r *Remote) EnableEvents(mask uint8) *Remote {
	return r.Broadcast(ccc.ENEC, mask)
}

// DisableEvents broadcasts DISEC.
func (r *Remote) DisableEvents(mask uint8) *Remote {
	return r.Broadcast(ccc.DISEC, mask)
}

// Wakeup queues a wake-up pattern.
func (r *Remote) Wakeup() *Remote {
	return r.push(&remoteOp{kind: opWakeup})
}

// ResetPattern queues a target reset pattern.
func (r *Remote) ResetPattern() *Remote {
	return r.push(&remoteOp{kind: opReset})
}

// Pending returns the number of queued actions.
func (r *Remote) Pending() int {
	return len(r.ops)
}

// Reads returns the data of every completed private read.
func (r *Remote) Reads() [][]byte {
	return r.reads
}

// IBIs returns every acknowledged IBI.
func (r *Remote) IBIs() []IBIRecord {
	return r.ibis
}

// Responses returns the answers to GET CCCs.
func (r *Remote) Responses() []Response {
	return r.responses
}

// Discovered returns the ENTDAA payloads read from the peripheral.
func (r *Remote) Discovered() []ccc.Payload {
	return r.discovered
}

// Nacks returns the number of private transfers the peripheral did not
// acknowledge.
func (r *Remote) Nacks() int {
	return r.nacks
}

// From returns the target that took the controller role, if any.
func (r *Remote) From() *Target {
	return r.from
}

func (r *Remote) next() *remoteOp {
	if r == nil || len(r.ops) == 0 {
		return nil
	}
	op := r.ops[0]
	r.ops = r.ops[1:]
	return op
}

func (r *Remote) assign() uint8 {
	a := r.NextAddress
	for !ccc.ValidDynamicAddress(a) && a < ccc.MaxAddress {
		a++
	}
	r.NextAddress = a + 1
	return a
}

// finish records a completed private transfer.
func (r *Remote) finish(op *remoteOp, aborted bool) {
	if r == nil || op == nil {
		return
	}
	if op.kind == opRead {
		r.reads = append(r.reads, op.got)
	}
}

// ownDA returns the peripheral's dynamic address.
func (p *Peripheral) ownDA() (uint8, bool) {
	v := p.regs[hal.RegDEVR0]
	return uint8(v>>hal.DEVR0DAShift) & 0x7F, v&hal.DEVR0DAVAL != 0
}

func (p *Peripheral) setOwnDA(addr uint8, valid bool) {
	v := p.regs[hal.RegDEVR0] &^ (0x7F<<hal.DEVR0DAShift | hal.DEVR0DAVAL)
	if valid {
		v |= uint32(addr&0x7F)<<hal.DEVR0DAShift | hal.DEVR0DAVAL
	}
	p.regs[hal.RegDEVR0] = v
	p.set(hal.EVRDAUPD)
}

// stepTarget runs one step of the bus while the peripheral is a target.
func (p *Peripheral) stepTarget() bool {
	if len(p.ctrl) > 0 {
		w := hal.ControlWord(p.ctrl[0])
		p.ctrl = p.ctrl[1:]
		p.request(w)
		return true
	}
	if p.op == nil {
		if p.op = p.remote.next(); p.op == nil {
			return false
		}
		return p.startOp(p.op)
	}
	return p.advanceOp(p.op)
}

// request answers a target-initiated request according to the remote's
// policy and the grants last set by ENEC/DISEC.
func (p *Peripheral) request(w hal.ControlWord) {
	devr0 := p.regs[hal.RegDEVR0]
	r := p.remote
	switch w.MType() {
	case hal.MTypeIBI:
		if r == nil || devr0&hal.DEVR0IBIEN == 0 || devr0&hal.DEVR0DAVAL == 0 || !r.AckIBI {
			p.pushStatus(0, false, false, true)
			p.set(hal.EVRIBIEND | hal.EVRFC)
			return
		}
		n := 0
		var payload []byte
		if r.ReadIBIPayload {
			n = int(p.regs[hal.RegMAXRLR]>>hal.MAXRLRIBIPShift) & 0x7
			n = min(n, hal.MaxIBIPayload)
			v := p.regs[hal.RegIBIDR]
			for i := 0; i < n; i++ {
				payload = append(payload, byte(v>>(8*i)))
			}
		}
		r.ibis = append(r.ibis, IBIRecord{Payload: payload})
		pkg.LogDebug(pkg.ComponentSim, "remote acknowledged IBI", "len", n)
		p.pushStatus(n, false, false, false)
		p.set(hal.EVRIBIEND | hal.EVRFC)
	case hal.MTypeHotJoin:
		if r == nil || devr0&hal.DEVR0HJEN == 0 || devr0&hal.DEVR0DAVAL != 0 || !r.AcceptHotJoin {
			p.pushStatus(0, false, false, true)
			p.set(hal.EVRFC)
			return
		}
		p.enterDAA(r)
		p.pushStatus(0, false, false, false)
		p.set(hal.EVRFC)
	case hal.MTypeControllerRole:
		capable := ccc.BCR(p.regs[hal.RegBCR]).DeviceRole() == ccc.RoleController
		if r == nil || devr0&hal.DEVR0CREN == 0 || devr0&hal.DEVR0DAVAL == 0 ||
			!capable || !r.AcceptControllerRole {
			p.pushStatus(0, false, false, true)
			p.set(hal.EVRFC)
			return
		}
		p.takeControllerRole()
		p.pushStatus(0, false, false, false)
		p.set(hal.EVRFC)
	default:
		p.raise(hal.SERPERR, hal.CodeTE5)
	}
}

// enterDAA lets the remote read the peripheral's payload and assign it an
// address.
func (p *Peripheral) enterDAA(r *Remote) {
	pid := uint64(p.regs[hal.RegEPIDR1]&0xFFFF)<<32 | uint64(p.regs[hal.RegEPIDR])
	r.discovered = append(r.discovered, ccc.Payload{
		PID: ccc.PID(pid),
		BCR: ccc.BCR(p.regs[hal.RegBCR]),
		DCR: uint8(p.regs[hal.RegDCR]),
	})
	addr := r.assign()
	p.setOwnDA(addr, true)
	pkg.LogDebug(pkg.ComponentSim, "remote assigned address", "address", addr)
}

// takeControllerRole completes a GETACCCR handoff to the peripheral.
func (p *Peripheral) takeControllerRole() {
	p.regs[hal.RegCFGR] |= hal.CFGRCRINIT
	p.op = nil
	p.set(hal.EVRCRUPD)
	pkg.LogInfo(pkg.ComponentSim, "controller role taken over")
}

func (p *Peripheral) startOp(op *remoteOp) bool {
	da, valid := p.ownDA()
	switch op.kind {
	case opWrite, opRead:
		if !valid {
			p.remote.nacks++
			p.op = nil
			return true
		}
		if op.kind == opRead && op.n == 0 {
			p.finishOp(op, false)
		}
		return true
	case opWakeup:
		p.set(hal.EVRWKP)
		p.op = nil
		return true
	case opReset:
		p.set(hal.EVRRST)
		p.op = nil
		return true
	}
	if op.direct && !valid {
		p.remote.nacks++
		p.op = nil
		return true
	}
	if op.code == ccc.DEFTGTS || op.code == ccc.DEFGRPA {
		if op.code == ccc.DEFTGTS {
			p.set(hal.EVRDEF)
		} else {
			p.set(hal.EVRGRP)
		}
		op.n = len(op.data)
		return true
	}
	p.applyCCC(op, da)
	p.op = nil
	return true
}

// applyCCC executes a CCC addressed to the peripheral in one step.
func (p *Peripheral) applyCCC(op *remoteOp, da uint8) {
	arg := func(i int) (byte, bool) {
		if i < len(op.data) {
			return op.data[i], true
		}
		return 0, false
	}
	devr0 := p.regs[hal.RegDEVR0]
	switch op.code {
	case ccc.ENTDAA:
		if devr0&hal.DEVR0DAVAL == 0 {
			p.enterDAA(p.remote)
		}
	case ccc.RSTDAA, ccc.DirectRSTDAA:
		p.setOwnDA(0, false)
	case ccc.SETNEWDA, ccc.SETDASA:
		if b, ok := arg(0); ok && ccc.ValidDynamicAddress(b>>1) {
			p.setOwnDA(b>>1, true)
		}
	case ccc.ENEC, ccc.DirectENEC, ccc.DISEC, ccc.DirectDISEC:
		b, _ := arg(0)
		var bits uint32
		if b&ccc.EventIBI != 0 {
			bits |= hal.DEVR0IBIEN
		}
		if b&ccc.EventControllerRole != 0 {
			bits |= hal.DEVR0CREN
		}
		if b&ccc.EventHotJoin != 0 {
			bits |= hal.DEVR0HJEN
		}
		if op.code == ccc.ENEC || op.code == ccc.DirectENEC {
			p.regs[hal.RegDEVR0] |= bits
		} else {
			p.regs[hal.RegDEVR0] &^= bits
		}
		p.set(hal.EVRINTUPD)
	case ccc.SETMWL, ccc.DirectSETMWL:
		if len(op.data) >= 2 {
			p.regs[hal.RegMAXWLR] = uint32(op.data[0])<<8 | uint32(op.data[1])
			p.set(hal.EVRMWLUPD)
		}
	case ccc.SETMRL, ccc.DirectSETMRL:
		if len(op.data) >= 2 {
			v := p.regs[hal.RegMAXRLR] &^ hal.MAXLenMask
			v |= uint32(op.data[0])<<8 | uint32(op.data[1])
			if b, ok := arg(2); ok {
				v = v&^(0x7<<hal.MAXRLRIBIPShift) | uint32(b&0x7)<<hal.MAXRLRIBIPShift
			}
			p.regs[hal.RegMAXRLR] = v
			p.set(hal.EVRMRLUPD)
		}
	case ccc.ENTAS0, ccc.ENTAS1, ccc.ENTAS2, ccc.ENTAS3,
		ccc.DirectENTAS0, ccc.DirectENTAS1, ccc.DirectENTAS2, ccc.DirectENTAS3:
		as := uint32(op.code&0x7F) - uint32(ccc.ENTAS0)
		p.regs[hal.RegDEVR0] = devr0&^(0x3<<hal.DEVR0ASShift) | as<<hal.DEVR0ASShift
		p.set(hal.EVRASUPD)
	case ccc.RSTACT, ccc.DirectRSTACT:
		b, _ := arg(0)
		p.regs[hal.RegDEVR0] = devr0&^(0x3<<hal.DEVR0RSTACTShift) |
			uint32(b&0x3)<<hal.DEVR0RSTACTShift | hal.DEVR0RSTVAL
	case ccc.GETACCCR:
		if ccc.BCR(p.regs[hal.RegBCR]).DeviceRole() != ccc.RoleController {
			p.remote.nacks++
			return
		}
		p.remote.responses = append(p.remote.responses, Response{Code: op.code, Data: []byte{ccc.OddParity(da)}})
		p.takeControllerRole()
	case ccc.GETSTATUS:
		as := uint8(devr0>>hal.DEVR0ASShift) & 0x3
		p.respond(op.code, []byte{0x00, as << 6})
		p.set(hal.EVRSTA)
	default:
		if !op.code.IsGet() {
			pkg.LogDebug(pkg.ComponentSim, "CCC ignored", "ccc", op.code)
			return
		}
		p.respond(op.code, p.getResponse(op.code))
		p.set(hal.EVRGET)
	}
}

func (p *Peripheral) respond(code ccc.Code, data []byte) {
	p.regs[hal.RegRMR] = p.regs[hal.RegRMR]&^(0xFF<<hal.RMRRCODEShift) | uint32(code)<<hal.RMRRCODEShift
	p.remote.responses = append(p.remote.responses, Response{Code: code, Data: data})
}

// getResponse builds the hardware answer to a GET CCC from registers.
func (p *Peripheral) getResponse(code ccc.Code) []byte {
	u16 := func(v uint32) []byte { return []byte{byte(v >> 8), byte(v)} }
	switch code {
	case ccc.GETPID:
		hi, lo := p.regs[hal.RegEPIDR1], p.regs[hal.RegEPIDR]
		return []byte{byte(hi >> 8), byte(hi), byte(lo >> 24), byte(lo >> 16), byte(lo >> 8), byte(lo)}
	case ccc.GETBCR:
		return []byte{byte(p.regs[hal.RegBCR])}
	case ccc.GETDCR:
		return []byte{byte(p.regs[hal.RegDCR])}
	case ccc.GETMWL:
		return u16(p.regs[hal.RegMAXWLR])
	case ccc.GETMRL:
		v := p.regs[hal.RegMAXRLR]
		return append(u16(v), byte(v>>hal.MAXRLRIBIPShift)&0x7)
	case ccc.GETMXDS:
		return u16(p.regs[hal.RegGETMXDSR])
	case ccc.GETCAPS:
		return u16(p.regs[hal.RegGETCAPR])
	}
	return nil
}

// advanceOp moves one byte of a private transfer or DEFTGTS/DEFGRPA.
func (p *Peripheral) advanceOp(op *remoteOp) bool {
	switch op.kind {
	case opWrite, opCCC:
		if op.moved >= op.n {
			p.finishOp(op, false)
			return true
		}
		if len(p.rx) >= p.opts.DataDepth {
			return false
		}
		p.rx = append(p.rx, op.data[op.moved])
		op.moved++
		return true
	case opRead:
		if op.moved >= op.n {
			p.finishOp(op, false)
			return true
		}
		if len(p.tx) == 0 {
			if p.regs[hal.RegTGTTDR]&0xFFFF > 0 {
				return false
			}
			p.finishOp(op, true)
			return true
		}
		op.got = append(op.got, p.tx[0])
		p.tx = p.tx[1:]
		if n := p.regs[hal.RegTGTTDR] & 0xFFFF; n > 0 {
			p.regs[hal.RegTGTTDR] = n - 1
		}
		op.moved++
		return true
	}
	p.op = nil
	return true
}

func (p *Peripheral) finishOp(op *remoteOp, early bool) {
	p.pushStatus(op.moved, op.kind == opRead, early, false)
	p.remote.finish(op, early)
	p.op = nil
	p.set(hal.EVRFC)
}
