package sim

import (
	"github.com/ardnew/softi3c/ccc"
	"github.com/ardnew/softi3c/hal"
	"github.com/ardnew/softi3c/pkg"
)

// frame is the controller-role frame in progress.
type frame struct {
	open   bool     // a START has been issued and no STOP yet
	msg    *message // message in progress
	direct bool     // a direct CCC header is waiting for its addressed part
	code   ccc.Code // CCC of the pending direct header
	def    []byte   // bytes sent with the pending direct header
}

// message is one control word being executed.
type message struct {
	word   hal.ControlWord
	mt     hal.MType
	code   ccc.Code
	read   bool
	count  int
	moved  int
	target *Target
	resp   []byte // direct GET response
	data   []byte // bytes written so far
}

// daaRound is an ENTDAA procedure in progress.
type daaRound struct {
	end      bool
	cur      *Target
	raw      [ccc.PayloadSize]byte
	sent     int
	assigned int
}

// controllerTxDemand returns bytes still expected from TDR by the message in
// progress and the queued control words.
func (p *Peripheral) controllerTxDemand() int {
	if d := p.daa; d != nil {
		if d.cur != nil && d.sent == ccc.PayloadSize {
			return 1
		}
		return 0
	}
	n := 0
	if m := p.frame.msg; m != nil && !m.read {
		n += m.count - m.moved
	}
	for _, v := range p.ctrl {
		w := hal.ControlWord(v)
		switch w.MType() {
		case hal.MTypeCCC:
			if ccc.Code(w.CCC()) != ccc.ENTDAA {
				n += w.Count()
			}
		case hal.MTypePrivate, hal.MTypeLegacyI2C, hal.MTypeDirect:
			if !w.Read() {
				n += w.Count()
			}
		}
	}
	return n
}

func (p *Peripheral) stepController() bool {
	if p.daa != nil {
		return p.stepDAA()
	}
	if p.frame.msg != nil {
		return p.advance()
	}
	if len(p.ctrl) > 0 {
		w := hal.ControlWord(p.ctrl[0])
		p.ctrl = p.ctrl[1:]
		p.begin(w)
		return true
	}
	if p.frame.open {
		// restart pending, waiting for the next control word
		return false
	}
	return p.arbitrate()
}

// begin starts executing control word w.
func (p *Peripheral) begin(w hal.ControlWord) {
	p.frame.open = true
	m := &message{word: w, mt: w.MType(), read: w.Read(), count: w.Count()}
	switch m.mt {
	case hal.MTypeCCC:
		m.code = ccc.Code(w.CCC())
		m.read = false
		if m.code == ccc.ENTDAA {
			p.daa = p.newDAA(w.End())
			pkg.LogDebug(pkg.ComponentSim, "ENTDAA started")
			return
		}
	case hal.MTypeDirect:
		if !p.frame.direct {
			p.raise(hal.SERPERR, hal.CodeCE0)
			return
		}
		m.code = p.frame.code
		if m.code == ccc.SETDASA {
			m.target = p.targetByStatic(w.Addr())
		} else {
			m.target = p.targetByDA(w.Addr())
		}
		if m.target != nil && m.read {
			var ok bool
			if m.resp, ok = m.target.respond(m.code); !ok {
				m.target = nil
			}
		}
		if m.target == nil {
			p.raise(hal.SERANACK, 0)
			return
		}
	case hal.MTypePrivate:
		if m.target = p.targetByDA(w.Addr()); m.target == nil {
			p.raise(hal.SERANACK, 0)
			return
		}
		m.target.startMessage()
	case hal.MTypeLegacyI2C:
		if m.target = p.targetByStatic(w.Addr()); m.target == nil {
			p.raise(hal.SERANACK, 0)
			return
		}
		m.target.startMessage()
	default:
		p.raise(hal.SERPERR, hal.CodeCE0)
		return
	}
	p.frame.msg = m
}

// advance moves one byte of the message in progress, or finishes it.
func (p *Peripheral) advance() bool {
	m := p.frame.msg
	if m.moved >= m.count {
		p.finish(m, false)
		return true
	}
	if m.target != nil {
		if f, ok := m.target.takeFault(m.moved); ok {
			p.raise(f.SER, f.Code)
			if halting(f.SER) {
				return true
			}
		}
	}
	if !m.read {
		if len(p.tx) == 0 {
			return false
		}
		b := p.tx[0]
		p.tx = p.tx[1:]
		m.data = append(m.data, b)
		if m.mt == hal.MTypePrivate || m.mt == hal.MTypeLegacyI2C {
			m.target.write(b)
		}
		m.moved++
		return true
	}
	if len(p.rx) >= p.opts.DataDepth {
		return false
	}
	var b byte
	if m.resp != nil {
		if m.moved >= len(m.resp) {
			p.finish(m, true)
			return true
		}
		b = m.resp[m.moved]
	} else {
		var ok bool
		if b, ok = m.target.read(); !ok {
			p.finish(m, true)
			return true
		}
	}
	p.rx = append(p.rx, b)
	m.moved++
	return true
}

// finish completes message m. abt reports a read ended early by the target.
func (p *Peripheral) finish(m *message, abt bool) {
	p.frame.msg = nil
	switch {
	case m.mt == hal.MTypeCCC && m.code.IsDirect():
		p.frame.direct = true
		p.frame.code = m.code
		p.frame.def = m.data
	case m.mt == hal.MTypeCCC:
		p.broadcast(m.code, m.data)
		p.pushStatus(m.moved, false, false, false)
	case m.mt == hal.MTypeDirect:
		p.frame.direct = false
		if !m.read {
			m.target.direct(m.code, append(p.frame.def, m.data...))
		} else if m.code == ccc.GETACCCR && !abt {
			p.handOff(m.target)
		}
		p.pushStatus(m.moved, m.read, abt, false)
	default:
		p.pushStatus(m.moved, m.read, abt, false)
	}
	if m.word.End() {
		p.endFrame()
	}
}

func (p *Peripheral) endFrame() {
	p.frame = frame{}
	p.set(hal.EVRFC)
}

// broadcast applies the side effects of a broadcast CCC to every target.
func (p *Peripheral) broadcast(code ccc.Code, data []byte) {
	pkg.LogDebug(pkg.ComponentSim, "broadcast CCC", "ccc", code, "len", len(data))
	if code == ccc.SETAASA {
		for _, t := range p.targets {
			if t.StaticAddress != 0 && !t.daValid {
				t.setDA(t.StaticAddress)
			}
		}
		return
	}
	for _, t := range p.targets {
		t.direct(code, data)
	}
}

// handOff passes the controller role to t after an acknowledged GETACCCR.
func (p *Peripheral) handOff(t *Target) {
	pkg.LogInfo(pkg.ComponentSim, "controller role handed off", "to", t.Name)
	p.regs[hal.RegCFGR] &^= hal.CFGRCRINIT
	if p.remote == nil {
		p.remote = NewRemote()
	}
	p.remote.from = t
}

func (p *Peripheral) newDAA(end bool) *daaRound {
	return &daaRound{end: end}
}

// stepDAA runs one step of ENTDAA. The unassigned target with the lowest
// payload wins arbitration; its payload is shifted out MSB first, then the
// controller's address byte is taken from TDR.
func (p *Peripheral) stepDAA() bool {
	d := p.daa
	if d.cur == nil {
		t := p.lowestUnassigned()
		if t == nil {
			p.daa = nil
			p.pushStatus(d.assigned, false, false, false)
			if d.end {
				p.endFrame()
			}
			pkg.LogDebug(pkg.ComponentSim, "ENTDAA complete", "assigned", d.assigned)
			return true
		}
		d.cur = t
		d.sent = 0
		t.Payload.MarshalTo(d.raw[:])
		return true
	}
	if d.sent < ccc.PayloadSize {
		if f, ok := d.cur.takeFault(d.sent); ok {
			p.raise(f.SER, f.Code)
			if halting(f.SER) {
				return true
			}
		}
		if len(p.rx) >= p.opts.DataDepth {
			return false
		}
		p.rx = append(p.rx, d.raw[d.sent])
		d.sent++
		return true
	}
	if len(p.tx) == 0 {
		return false
	}
	b := p.tx[0]
	p.tx = p.tx[1:]
	addr := b >> 1
	if ccc.OddParity(addr) != b || !ccc.ValidDynamicAddress(addr) || p.targetByDA(addr) != nil {
		p.raise(hal.SERANACK, 0)
		return true
	}
	d.cur.setDA(addr)
	d.cur.hotJoin = false
	pkg.LogDebug(pkg.ComponentSim, "address assigned",
		"target", d.cur.Name, "pid", d.cur.Payload.PID, "address", addr)
	d.assigned++
	d.cur = nil
	return true
}

func (p *Peripheral) lowestUnassigned() *Target {
	var best *Target
	for _, t := range p.targets {
		if t.daValid || t.Offline {
			continue
		}
		if best == nil || t.Payload.Encode() < best.Payload.Encode() {
			best = t
		}
	}
	return best
}

func (p *Peripheral) targetByDA(addr uint8) *Target {
	for _, t := range p.targets {
		if t.daValid && t.da == addr && !t.Offline {
			return t
		}
	}
	return nil
}

func (p *Peripheral) targetByStatic(addr uint8) *Target {
	for _, t := range p.targets {
		if t.StaticAddress != 0 && t.StaticAddress == addr && !t.Offline {
			return t
		}
	}
	return nil
}

// deviceEntry returns the bus device table entry for a dynamic address.
func (p *Peripheral) deviceEntry(addr uint8) (uint32, bool) {
	for i := 1; i <= hal.MaxBusDevices; i++ {
		r, _ := hal.DeviceReg(i)
		if v := p.regs[r]; v != 0 && hal.DAAddr(v) == addr {
			return v, true
		}
	}
	return 0, false
}

// arbitrate services one target-initiated request on an idle bus. The
// lowest address wins; hot-join uses the reserved hot-join address.
func (p *Peripheral) arbitrate() bool {
	if p.evr&(hal.EVRIBI|hal.EVRCR|hal.EVRHJ) != 0 {
		// previous request not yet read out of RMR
		return false
	}
	var (
		win  *Target
		addr uint8
	)
	for _, t := range p.targets {
		a, ok := t.requestAddress()
		if ok && (win == nil || a < addr) {
			win, addr = t, a
		}
	}
	if win == nil {
		return false
	}
	switch {
	case addr == hal.HotJoinAddress && !win.daValid:
		win.hotJoinPending = false
		if p.regs[hal.RegCFGR]&hal.CFGRHJACK != 0 {
			win.hotJoin = true
			win.stats.HotJoinAcked++
			p.regs[hal.RegRMR] = uint32(addr) << hal.RMRRADDShift
			p.set(hal.EVRHJ)
			pkg.LogDebug(pkg.ComponentSim, "hot-join acknowledged", "target", win.Name)
		} else {
			win.stats.HotJoinNacked++
		}
	case win.ibiPending:
		win.ibiPending = false
		entry, ok := p.deviceEntry(addr)
		if !ok || entry&hal.DEVRIBIACK == 0 {
			win.stats.IBINacked++
			return true
		}
		var n int
		var data uint32
		if entry&hal.DEVRIBIDEN != 0 && win.Payload.BCR.IBIPayload() {
			n = min(len(win.ibi), hal.MaxIBIPayload)
			for i := 0; i < n; i++ {
				data |= uint32(win.ibi[i]) << (8 * i)
			}
		}
		win.stats.IBIAcked++
		p.regs[hal.RegIBIDR] = data
		p.regs[hal.RegRMR] = uint32(addr)<<hal.RMRRADDShift | uint32(n)
		p.set(hal.EVRIBI)
		pkg.LogDebug(pkg.ComponentSim, "IBI acknowledged", "target", win.Name, "len", n)
	case win.crPending:
		win.crPending = false
		entry, ok := p.deviceEntry(addr)
		if !ok || entry&hal.DEVRCRACK == 0 {
			win.stats.ControllerRoleNacked++
			return true
		}
		win.stats.ControllerRoleAcked++
		p.regs[hal.RegRMR] = uint32(addr) << hal.RMRRADDShift
		p.set(hal.EVRCR)
	}
	return true
}
