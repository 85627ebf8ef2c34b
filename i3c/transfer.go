package i3c

import (
	"fmt"

	"github.com/ardnew/softi3c/ccc"
	"github.com/ardnew/softi3c/hal"
	"github.com/ardnew/softi3c/pkg"
)

// Direction is the data direction of a message.
type Direction uint8

// Message directions.
const (
	Write Direction = iota
	Read
)

// String returns "write" or "read".
func (d Direction) String() string {
	if d == Read {
		return "read"
	}
	return "write"
}

// Descriptor describes one private or legacy I2C message.
type Descriptor struct {
	Addr uint8
	Dir  Direction
	Data []byte // Bytes to write
	Len  int    // Bytes to read
}

// Count returns the number of data bytes the message moves.
func (d Descriptor) Count() int {
	if d.Dir == Read {
		return d.Len
	}
	return len(d.Data)
}

// CCCDescriptor describes one CCC. Addr is ignored for broadcast CCCs.
// Defining is sent ahead of the data when the transfer mode carries a
// defining byte.
type CCCDescriptor struct {
	Addr     uint8
	Code     ccc.Code
	Defining byte
	Dir      Direction
	Data     []byte // Bytes to write
	Len      int    // Bytes to read (direct GET CCCs)
}

// count returns the data bytes of the CCC, defining byte included.
func (d CCCDescriptor) count(defining bool) int {
	n := len(d.Data)
	if d.Dir == Read {
		n = d.Len
	}
	if defining {
		n++
	}
	return n
}

// MessageStatus is the outcome of one message, reported by hardware.
type MessageStatus struct {
	Count int  // Bytes moved
	Read  bool // Message was a read
	Early bool // Read ended early by the target
}

type msgSpan struct {
	dir   Direction
	rxOff int
	rxLen int
}

// Transfer is a built multi-message controller transfer: the control words
// and the cumulative TX and RX buffers, all in caller-bound storage.
//
// Building is a pure transformation. The same Transfer may be started
// again once the previous run has completed.
type Transfer struct {
	ctrl []uint32
	tx   []byte
	rx   []byte

	nctrl, ntx, nrx int
	frames          int
	mode            TransferMode
	spans           []msgSpan
	status          []MessageStatus
}

// NewTransfer returns a Transfer with freshly allocated storage for up to
// words control words and the given TX and RX byte counts.
func NewTransfer(words, txLen, rxLen int) *Transfer {
	t := &Transfer{}
	t.BindControl(make([]uint32, words))
	t.BindTx(make([]byte, txLen))
	t.BindRx(make([]byte, rxLen))
	return t
}

// Reset forgets the built content, keeping the bound storage.
func (t *Transfer) Reset() {
	t.nctrl, t.ntx, t.nrx = 0, 0, 0
	t.frames = 0
	t.mode = TransferMode{}
	t.spans = t.spans[:0]
	t.status = t.status[:0]
}

// BindControl binds storage for control words.
func (t *Transfer) BindControl(buf []uint32) { t.ctrl = buf }

// BindTx binds storage for transmitted bytes.
func (t *Transfer) BindTx(buf []byte) { t.tx = buf }

// BindRx binds storage for received bytes.
func (t *Transfer) BindRx(buf []byte) { t.rx = buf }

// Control returns the built control words.
func (t *Transfer) Control() []uint32 { return t.ctrl[:t.nctrl] }

// Tx returns the built transmit bytes.
func (t *Transfer) Tx() []byte { return t.tx[:t.ntx] }

// RxLen returns the total number of bytes the transfer reads.
func (t *Transfer) RxLen() int { return t.nrx }

// Len returns the number of messages.
func (t *Transfer) Len() int { return len(t.spans) }

// Mode returns the transfer mode the transfer was built with.
func (t *Transfer) Mode() TransferMode { return t.mode }

// Rx returns the bytes received by message i. It is empty for writes.
func (t *Transfer) Rx(i int) []byte {
	if i < 0 || i >= len(t.spans) {
		return nil
	}
	s := t.spans[i]
	return t.rx[s.rxOff : s.rxOff+s.rxLen]
}

// Status returns the per-message status reported by the last run.
func (t *Transfer) Status() []MessageStatus { return t.status }

// check verifies capacity for the computed sizes.
func (t *Transfer) check(words, txLen, rxLen int) error {
	need := func(name string, n, have int, bound bool) error {
		if n == 0 {
			return nil
		}
		if !bound {
			return fmt.Errorf("%w: %s storage not bound", pkg.ErrInvalidParameter, name)
		}
		if n > have {
			return fmt.Errorf("%w: %s needs %d, have %d: %w",
				pkg.ErrInvalidParameter, name, n, have, pkg.ErrBufferTooSmall)
		}
		return nil
	}
	if err := need("control", words, len(t.ctrl), t.ctrl != nil); err != nil {
		return err
	}
	if err := need("tx", txLen, len(t.tx), t.tx != nil); err != nil {
		return err
	}
	return need("rx", rxLen, len(t.rx), t.rx != nil)
}

// end reports whether message i of n closes its frame.
func (m TransferMode) end(i, n int) bool {
	return m.term == TerminationStop || i == n-1
}

// BuildPrivate builds a private or legacy I2C transfer, one control word
// per descriptor, in order.
func (t *Transfer) BuildPrivate(descs []Descriptor, mode TransferMode) error {
	if len(descs) == 0 {
		return fmt.Errorf("%w: no descriptors", pkg.ErrInvalidParameter)
	}
	mt := hal.MTypePrivate
	switch mode.class {
	case ClassPrivate:
	case ClassLegacyI2C:
		mt = hal.MTypeLegacyI2C
	default:
		return fmt.Errorf("%w: %s mode for private messages", pkg.ErrInvalidParameter, mode)
	}
	var txLen, rxLen int
	for i, d := range descs {
		if d.Addr > ccc.MaxAddress || d.Addr == ccc.BroadcastAddress {
			return fmt.Errorf("%w: descriptor %d address %#02x", pkg.ErrInvalidParameter, i, d.Addr)
		}
		if d.Count() > hal.CRDCNTMask || d.Len < 0 {
			return fmt.Errorf("%w: descriptor %d length", pkg.ErrInvalidParameter, i)
		}
		if d.Dir == Read {
			rxLen += d.Len
		} else {
			txLen += len(d.Data)
		}
	}
	if err := t.check(len(descs), txLen, rxLen); err != nil {
		return err
	}

	t.Reset()
	t.mode = mode
	for i, d := range descs {
		end := mode.end(i, len(descs))
		t.ctrl[t.nctrl] = uint32(hal.MessageWord(mt, d.Addr, d.Count(), d.Dir == Read, end))
		t.nctrl++
		if end {
			t.frames++
		}
		t.addData(d.Dir, d.Data, d.Len)
	}
	return nil
}

// BuildCCC builds a CCC transfer. Direct CCCs take two control words each:
// the CCC header carrying the defining byte, then the addressed message.
func (t *Transfer) BuildCCC(descs []CCCDescriptor, mode TransferMode) error {
	if len(descs) == 0 {
		return fmt.Errorf("%w: no descriptors", pkg.ErrInvalidParameter)
	}
	if !mode.class.IsCCC() {
		return fmt.Errorf("%w: %s mode for CCCs", pkg.ErrInvalidParameter, mode)
	}
	direct := mode.class == ClassCCCDirect
	var words, txLen, rxLen int
	for i, d := range descs {
		if d.Code.IsDirect() != direct {
			return fmt.Errorf("%w: descriptor %d %s in %s mode", pkg.ErrInvalidParameter, i, d.Code, mode)
		}
		if d.Code == ccc.ENTDAA {
			return fmt.Errorf("%w: ENTDAA runs through AssignAddresses", pkg.ErrInvalidParameter)
		}
		if d.Len < 0 || d.count(mode.defining) > hal.CRDCNTMask {
			return fmt.Errorf("%w: descriptor %d length", pkg.ErrInvalidParameter, i)
		}
		if !direct {
			if d.Dir == Read {
				return fmt.Errorf("%w: descriptor %d broadcast %s read", pkg.ErrInvalidParameter, i, d.Code)
			}
			words++
			txLen += d.count(mode.defining)
			continue
		}
		if !ccc.ValidDynamicAddress(d.Addr) && !(d.Code == ccc.SETDASA && d.Addr <= ccc.MaxAddress) {
			return fmt.Errorf("%w: descriptor %d address %#02x", pkg.ErrInvalidParameter, i, d.Addr)
		}
		words += 2
		if mode.defining {
			txLen++
		}
		if d.Dir == Read {
			rxLen += d.Len
		} else {
			txLen += len(d.Data)
		}
	}
	if err := t.check(words, txLen, rxLen); err != nil {
		return err
	}

	t.Reset()
	t.mode = mode
	def := 0
	if mode.defining {
		def = 1
	}
	for i, d := range descs {
		end := mode.end(i, len(descs))
		if end {
			t.frames++
		}
		if !direct {
			t.ctrl[t.nctrl] = uint32(hal.CCCWord(uint8(d.Code), d.count(mode.defining), end))
			t.nctrl++
			if mode.defining {
				t.tx[t.ntx] = d.Defining
				t.ntx++
			}
			t.addData(Write, d.Data, 0)
			continue
		}
		t.ctrl[t.nctrl] = uint32(hal.CCCWord(uint8(d.Code), def, false))
		n := len(d.Data)
		if d.Dir == Read {
			n = d.Len
		}
		t.ctrl[t.nctrl+1] = uint32(hal.MessageWord(hal.MTypeDirect, d.Addr, n, d.Dir == Read, end))
		t.nctrl += 2
		if mode.defining {
			t.tx[t.ntx] = d.Defining
			t.ntx++
		}
		t.addData(d.Dir, d.Data, d.Len)
	}
	return nil
}

func (t *Transfer) addData(dir Direction, data []byte, n int) {
	s := msgSpan{dir: dir}
	if dir == Read {
		s.rxOff, s.rxLen = t.nrx, n
		t.nrx += n
	} else {
		t.ntx += copy(t.tx[t.ntx:], data)
	}
	t.spans = append(t.spans, s)
}
