package i3c

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softi3c/ccc"
	"github.com/ardnew/softi3c/hal"
	"github.com/ardnew/softi3c/hal/sim"
	"github.com/ardnew/softi3c/pkg"
)

func privateWrite(t *testing.T, addr uint8, data []byte) *Transfer {
	t.Helper()
	x := NewTransfer(1, len(data), 0)
	require.NoError(t, x.BuildPrivate([]Descriptor{{Addr: addr, Data: data}}, PrivateStop))
	return x
}

func TestPrivateWrite(t *testing.T) {
	tgt := addressed("mem", 0x08)
	h, _, _ := newController(t, tgt)

	require.NoError(t, h.Start(privateWrite(t, 0x08, []byte{1, 2, 3, 4}), testTimeout))
	assert.Equal(t, 4, h.DataCount())
	assert.Equal(t, []byte{1, 2, 3, 4}, tgt.Written())
	assert.Equal(t, StateIdle, h.State())
	assert.Equal(t, pkg.ErrorNone, h.LastError())
}

func TestWriteThenRead(t *testing.T) {
	tgt := addressed("mem", 0x08)
	copy(tgt.Memory, []byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5})
	h, _, _ := newController(t, tgt)

	for _, thr := range []FIFOThreshold{FIFOThreshold1, FIFOThreshold4} {
		require.NoError(t, h.ConfigureFIFO(FIFOConfig{RxThreshold: thr, TxThreshold: thr}))
		x := NewTransfer(3, 1, 10)
		require.NoError(t, x.BuildPrivate([]Descriptor{
			{Addr: 0x08, Data: []byte{0xA0}},
			{Addr: 0x08, Dir: Read, Len: 6},
			{Addr: 0x08, Dir: Read, Len: 4},
		}, PrivateRestart))

		require.NoError(t, h.Start(x, testTimeout))
		assert.Equal(t, []byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}, x.Rx(1))
		assert.Equal(t, []byte{0xA0, 0xA1, 0xA2, 0xA3}, x.Rx(2))
		require.Len(t, x.Status(), 3)
		assert.True(t, x.Status()[1].Read)
		assert.Equal(t, 11, h.DataCount())
	}
}

func TestReadEndedEarly(t *testing.T) {
	tgt := addressed("mem", 0x08)
	tgt.MaxRead = 2
	copy(tgt.Memory, []byte{1, 2, 3, 4})
	next := addressed("other", 0x09)
	copy(next.Memory, []byte{9, 8})
	h, _, _ := newController(t, tgt, next)

	x := NewTransfer(2, 0, 6)
	require.NoError(t, x.BuildPrivate([]Descriptor{
		{Addr: 0x08, Dir: Read, Len: 4},
		{Addr: 0x09, Dir: Read, Len: 2},
	}, PrivateRestart))

	require.NoError(t, h.Start(x, testTimeout))
	st := x.Status()
	require.Len(t, st, 2)
	assert.True(t, st[0].Early)
	assert.Equal(t, 2, st[0].Count)
	assert.Equal(t, []byte{1, 2}, x.Rx(0)[:st[0].Count])
	assert.Equal(t, []byte{9, 8}, x.Rx(1))
	assert.Equal(t, 4, h.DataCount())
}

func TestAddressNACK(t *testing.T) {
	h, _, rec := newController(t)

	err := h.Start(privateWrite(t, 0x10, []byte{1}), testTimeout)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkg.ErrProtocol)
	var pe *pkg.ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, pkg.ErrorAddressNACK, pe.Code)
	assert.Equal(t, StateIdle, h.State())
	assert.Empty(t, rec.events, "blocking operations report by return value")
}

func TestErrorLatchAccumulates(t *testing.T) {
	tgt := addressed("mem", 0x08)
	tgt.InjectFault(sim.Fault{At: 1, SER: hal.SERDOVR})
	tgt.InjectFault(sim.Fault{At: 2, SER: hal.SERDNACK})
	h, _, _ := newController(t, tgt)

	err := h.Start(privateWrite(t, 0x08, []byte{1, 2, 3, 4}), testTimeout)
	var pe *pkg.ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, pkg.ErrorDataOverrun|pkg.ErrorDataNACK, pe.Code)
	assert.Equal(t, pkg.ErrorDataOverrun|pkg.ErrorDataNACK, h.LastError())

	require.NoError(t, h.Start(privateWrite(t, 0x08, []byte{5}), testTimeout))
	assert.Equal(t, pkg.ErrorNone, h.LastError(), "latch clears when the next operation starts")
}

func TestBusyStartRefused(t *testing.T) {
	tgt := addressed("mem", 0x08)
	h, p, rec := newController(t, tgt)

	first := privateWrite(t, 0x08, []byte{1, 2, 3, 4})
	require.NoError(t, h.StartIT(first))
	assert.Equal(t, StateTx, h.State())
	inflight := h.x

	second := privateWrite(t, 0x08, []byte{9})
	assert.ErrorIs(t, h.Start(second, testTimeout), pkg.ErrBusy)
	assert.ErrorIs(t, h.StartIT(second), pkg.ErrBusy)
	_, err := h.AssignAddresses(DAAResetAndAssign, testTimeout)
	assert.ErrorIs(t, err, pkg.ErrBusy)
	assert.Equal(t, StateTx, h.State())
	assert.Same(t, inflight, h.x)

	p.Pump()
	assert.Equal(t, StateIdle, h.State())
	assert.Equal(t, []byte{1, 2, 3, 4}, tgt.Written())
	require.Len(t, rec.events, 1)
	done, ok := rec.events[0].(TransferCompleteEvent)
	require.True(t, ok)
	assert.Same(t, first, done.Transfer)
	assert.Equal(t, 4, done.Count)
}

func TestStartITError(t *testing.T) {
	h, p, rec := newController(t)

	require.NoError(t, h.StartIT(privateWrite(t, 0x10, []byte{1})))
	p.Pump()

	require.Len(t, rec.events, 1)
	ev, ok := rec.events[0].(ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, OpTransfer, ev.Op)
	assert.Equal(t, pkg.ErrorAddressNACK, ev.Code)
	assert.Equal(t, StateIdle, h.State())
}

func TestStartDMA(t *testing.T) {
	tgt := addressed("mem", 0x08)
	copy(tgt.Memory, []byte{0x10, 0x11, 0x12, 0x13})
	h, p, rec := newHandle(t, ModeController, setup{dma: true}, tgt)

	x := NewTransfer(2, 12, 4)
	data := []byte{0x10, 0x11, 0x12, 0x13, 4, 5, 6, 7, 8, 9, 10, 11}
	require.NoError(t, x.BuildPrivate([]Descriptor{
		{Addr: 0x08, Data: data},
		{Addr: 0x08, Dir: Read, Len: 4},
	}, PrivateRestart))

	require.NoError(t, h.StartDMA(x))
	assert.Equal(t, StateTxRx, h.State())
	p.Pump()

	assert.Equal(t, StateIdle, h.State())
	assert.Equal(t, data, tgt.Written())
	assert.Equal(t, []byte{0x10, 0x11, 0x12, 0x13}, x.Rx(1))
	require.Len(t, rec.events, 1)
	assert.IsType(t, TransferCompleteEvent{}, rec.events[0])
	assert.False(t, p.Armed(hal.ChannelTx))
}

func TestStartDMANotConfigured(t *testing.T) {
	h, _, _ := newController(t)
	assert.ErrorIs(t, h.StartDMA(privateWrite(t, 0x08, []byte{1})), pkg.ErrNotSupported)
	assert.Equal(t, StateIdle, h.State())
}

func TestDMAFailure(t *testing.T) {
	tgt := addressed("mem", 0x08)
	h, p, rec := newHandle(t, ModeController, setup{dma: true}, tgt)

	require.NoError(t, h.StartDMA(privateWrite(t, 0x08, []byte{1, 2, 3})))
	p.FailDMA(hal.ChannelTx)
	p.Pump()

	require.Equal(t, 1, rec.count(isError))
	ev := rec.events[len(rec.events)-1].(ErrorEvent)
	assert.True(t, ev.Code.Has(pkg.ErrorDMA))
	assert.Equal(t, StateIdle, h.State())
}

func TestAbort(t *testing.T) {
	tgt := addressed("mem", 0x08)
	h, p, rec := newController(t, tgt)

	assert.ErrorIs(t, h.Abort(), pkg.ErrInvalidState, "nothing in flight")

	require.NoError(t, h.StartIT(privateWrite(t, 0x08, make([]byte, 32))))
	require.NoError(t, h.Abort())
	assert.Equal(t, StateAbort, h.State())
	assert.ErrorIs(t, h.Abort(), pkg.ErrBusy)
	p.Pump()

	assert.Equal(t, StateIdle, h.State())
	assert.Equal(t, 1, rec.count(isAbort))
	assert.Len(t, rec.events, 1, "abort completes with a single event")
	assert.ErrorIs(t, h.Abort(), pkg.ErrInvalidState)

	require.NoError(t, h.Start(privateWrite(t, 0x08, []byte{7}), testTimeout))
}

func TestTimeout(t *testing.T) {
	tgt := addressed("mem", 0x08)
	h, _, _ := newController(t, tgt)
	x := privateWrite(t, 0x08, make([]byte, 64))

	assert.ErrorIs(t, h.Start(x, 0), pkg.ErrInvalidParameter)
	assert.ErrorIs(t, h.Start(x, time.Nanosecond), pkg.ErrTimeout)
	assert.Equal(t, StateIdle, h.State())

	require.NoError(t, h.Start(privateWrite(t, 0x08, []byte{1}), testTimeout))
	assert.Equal(t, 1, h.DataCount())
}

func TestRecoveryRequired(t *testing.T) {
	tgt := addressed("mem", 0x08)
	tgt.InjectFault(sim.Fault{At: 0, SER: hal.SERPERR, Code: hal.CodeCE1})
	h, p, _ := newController(t, tgt)

	err := h.Start(privateWrite(t, 0x08, []byte{1}), testTimeout)
	var pe *pkg.ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.True(t, pe.Code.Has(pkg.ErrorCE1))
	assert.True(t, h.RecoveryRequired())
	assert.True(t, p.Stalled())

	assert.ErrorIs(t, h.Start(privateWrite(t, 0x08, []byte{1}), testTimeout), pkg.ErrRecoveryRequired)

	require.NoError(t, h.RecoverBus(testTimeout))
	assert.False(t, h.RecoveryRequired())
	assert.False(t, p.Stalled())
	require.NoError(t, h.Start(privateWrite(t, 0x08, []byte{1}), testTimeout))
}

func TestIsDeviceReady(t *testing.T) {
	legacy := newTarget("eeprom", 0x0104, 0x50, 0)
	legacy.StaticAddress = 0x50
	h, _, _ := newController(t, addressed("mem", 0x08), legacy)

	assert.NoError(t, h.IsDeviceReady(0x08, DeviceI3C, 3, testTimeout))
	assert.NoError(t, h.IsDeviceReady(0x50, DeviceI2C, 3, testTimeout))
	assert.ErrorIs(t, h.IsDeviceReady(0x09, DeviceI3C, 3, testTimeout), pkg.ErrNotReady)
	assert.ErrorIs(t, h.IsDeviceReady(0x08, DeviceI3C, 0, testTimeout), pkg.ErrInvalidParameter)
}

func TestIsDeviceReadyPacingStopsAtDeadline(t *testing.T) {
	h, _, _ := newController(t)

	const timeout = 5 * time.Millisecond
	begin := time.Now()
	err := h.IsDeviceReady(0x09, DeviceI3C, 1<<20, timeout)
	assert.ErrorIs(t, err, pkg.ErrTimeout)
	assert.Less(t, time.Since(begin), timeout+testTimeout)
	assert.Equal(t, StateIdle, h.State())
}

func TestDirectGET(t *testing.T) {
	tgt := addressed("sensor", 0x08)
	h, _, _ := newController(t, tgt)

	x := NewTransfer(4, 0, 7)
	require.NoError(t, x.BuildCCC([]CCCDescriptor{
		{Addr: 0x08, Code: ccc.GETPID, Dir: Read, Len: 6},
		{Addr: 0x08, Code: ccc.GETBCR, Dir: Read, Len: 1},
	}, DirectRestart))
	require.NoError(t, h.Start(x, testTimeout))

	var pid uint64
	for _, b := range x.Rx(0) {
		pid = pid<<8 | uint64(b)
	}
	assert.Equal(t, uint64(tgt.Payload.PID), pid)
	assert.Equal(t, []byte{byte(tgt.Payload.BCR)}, x.Rx(1))
}

func TestBroadcastCCC(t *testing.T) {
	a, b := addressed("a", 0x08), addressed("b", 0x09)
	h, _, _ := newController(t, a, b)

	x := NewTransfer(2, 3, 0)
	require.NoError(t, x.BuildCCC([]CCCDescriptor{
		{Code: ccc.DISEC, Data: []byte{ccc.EventHotJoin | ccc.EventControllerRole}},
		{Code: ccc.SETMWL, Data: []byte{0x00, 0x40}},
	}, BroadcastRestart))
	require.NoError(t, h.Start(x, testTimeout))

	for _, tgt := range []*sim.Target{a, b} {
		assert.Equal(t, ccc.EventIBI, tgt.Events())
		assert.Equal(t, uint16(0x40), tgt.MaxWriteLength())
	}
}

func TestDirectDefiningByte(t *testing.T) {
	tgt := addressed("sensor", 0x08)
	h, _, _ := newController(t, tgt)

	x := NewTransfer(2, 2, 0)
	require.NoError(t, x.BuildCCC([]CCCDescriptor{
		{Addr: 0x08, Code: ccc.DirectRSTACT, Defining: 0x01},
	}, DirectDefStop))
	require.NoError(t, h.Start(x, testTimeout))
	assert.Equal(t, uint8(0x01), tgt.ResetAction())
}

func TestAssignDynamicAddress(t *testing.T) {
	tgt := newTarget("legacy", 0x0104, 7, 0)
	tgt.StaticAddress = 0x50
	h, _, _ := newController(t, tgt)

	assert.ErrorIs(t, h.AssignDynamicAddress(0x50, 0x7E, testTimeout), pkg.ErrInvalidParameter)
	require.NoError(t, h.AssignDynamicAddress(0x50, 0x0A, testTimeout))
	da, ok := tgt.DynamicAddress()
	require.True(t, ok)
	assert.Equal(t, uint8(0x0A), da)
	assert.True(t, h.Allocator().InUse(0x0A))

	err := h.AssignDynamicAddress(0x51, 0x0B, testTimeout)
	assert.ErrorIs(t, err, pkg.ErrProtocol)
}

func TestChangeDynamicAddress(t *testing.T) {
	tgt := addressed("sensor", 0x08)
	h, p, _ := newController(t, tgt)
	require.NoError(t, h.ConfigureBusDevices(BusDevice{Index: 1, Address: 0x08, AckIBI: true}))

	require.NoError(t, h.ChangeDynamicAddress(0x08, 0x0B, testTimeout))
	da, _ := tgt.DynamicAddress()
	assert.Equal(t, uint8(0x0B), da)
	assert.Equal(t, uint8(0x0B), h.BusDevices()[0].Address)
	assert.Equal(t, uint8(0x0B), hal.DAAddr(p.Read(hal.RegDEVR1)))
	assert.False(t, h.Allocator().InUse(0x08))
	assert.True(t, h.Allocator().InUse(0x0B))
}

func TestHandOff(t *testing.T) {
	capable := addressed("secondary", 0x08)
	capable.Payload.BCR = capable.Payload.BCR.WithDeviceRole(ccc.RoleController)
	plain := addressed("plain", 0x09)
	h, p, _ := newController(t, capable, plain)

	err := h.HandOff(0x09, testTimeout)
	assert.ErrorIs(t, err, pkg.ErrProtocol)
	assert.Equal(t, ModeController, h.Mode())

	require.NoError(t, h.HandOff(0x08, testTimeout))
	assert.Equal(t, ModeTarget, h.Mode())
	require.NotNil(t, p.Remote())
	assert.Same(t, capable, p.Remote().From())
}
