package i3c

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softi3c/ccc"
	"github.com/ardnew/softi3c/hal"
	"github.com/ardnew/softi3c/hal/sim"
	"github.com/ardnew/softi3c/pkg"
)

func notifications(rec *recorder) []NotificationEvent {
	var out []NotificationEvent
	for _, ev := range rec.events {
		if n, ok := ev.(NotificationEvent); ok {
			out = append(out, n)
		}
	}
	return out
}

func TestControllerIBINotification(t *testing.T) {
	tgt := addressed("sensor", 0x08)
	h, p, rec := newController(t, tgt)
	require.NoError(t, h.ConfigureBusDevices(BusDevice{Index: 1, Address: 0x08, AckIBI: true, IBIPayload: true}))
	require.NoError(t, h.ActivateNotifications(NewNotifySet(NotifyIBI), nil))
	assert.True(t, h.Listening())

	tgt.RequestIBI(0x11, 0x22, 0x33)
	p.Pump()

	got := notifications(rec)
	require.Len(t, got, 1)
	assert.Equal(t, NotifyIBI, got[0].ID)
	assert.Equal(t, uint8(0x08), got[0].Info.Address)
	assert.Equal(t, []byte{0x11, 0x22, 0x33}, got[0].Info.Data)
	assert.Equal(t, 1, tgt.Stats().IBIAcked)

	info, err := h.CCCInfo(NotifyIBI)
	require.NoError(t, err)
	assert.Equal(t, got[0].Info, info)
	_, err = h.CCCInfo(NotifyIBI)
	assert.ErrorIs(t, err, pkg.ErrNoPendingInfo, "snapshots are consumed")
}

func TestControllerIBINotAcknowledged(t *testing.T) {
	tgt := addressed("sensor", 0x08)
	h, p, rec := newController(t, tgt)
	require.NoError(t, h.ConfigureBusDevices(BusDevice{Index: 1, Address: 0x08}))
	require.NoError(t, h.ActivateNotifications(NewNotifySet(NotifyIBI), nil))

	tgt.RequestIBI(0x11)
	p.Pump()
	assert.Empty(t, notifications(rec))
	assert.Equal(t, 1, tgt.Stats().IBINacked)
}

func TestControllerHotJoinNotification(t *testing.T) {
	tgt := newTarget("late", 0x0104, 9, 0)
	h, p, rec := newController(t, tgt)
	require.NoError(t, h.ActivateNotifications(NewNotifySet(NotifyHotJoin, NotifyControllerRequest), nil))

	tgt.RequestHotJoin()
	p.Pump()
	got := notifications(rec)
	require.Len(t, got, 1)
	assert.Equal(t, NotifyHotJoin, got[0].ID)
	assert.Equal(t, hal.HotJoinAddress, got[0].Info.Address)

	results, err := h.AssignAddresses(DAAAssignOnly, testTimeout)
	require.NoError(t, err)
	require.Len(t, results, 1)
	da, ok := tgt.DynamicAddress()
	require.True(t, ok)
	assert.Equal(t, results[0].Address, da)
}

func TestControllerRoleRequestNotification(t *testing.T) {
	tgt := addressed("secondary", 0x09)
	h, p, rec := newController(t, tgt)
	require.NoError(t, h.ConfigureBusDevices(BusDevice{Index: 2, Address: 0x09, AckControllerRole: true}))
	require.NoError(t, h.ActivateNotifications(NewNotifySet(NotifyControllerRequest), nil))

	tgt.RequestControllerRole()
	p.Pump()
	got := notifications(rec)
	require.Len(t, got, 1)
	assert.Equal(t, NotifyControllerRequest, got[0].ID)
	assert.Equal(t, uint8(0x09), got[0].Info.Address)
}

func TestTargetCCCNotifications(t *testing.T) {
	r := sim.NewRemote().
		Broadcast(ccc.ENTDAA).
		Broadcast(ccc.SETMWL, 0x00, 0x40).
		Broadcast(ccc.ENTAS2).
		DisableEvents(ccc.EventIBI)
	h, p, rec := newTargetHandle(t, r, setup{})
	set := NewNotifySet(NotifyDAUpdate, NotifyMaxWriteLength, NotifyActivityState, NotifyEventGrant)
	require.NoError(t, h.ActivateNotifications(set, nil))

	p.Pump()
	got := notifications(rec)
	require.Len(t, got, 4)
	assert.Equal(t, NotifyDAUpdate, got[0].ID)
	assert.True(t, got[0].Info.DynamicAddressValid)
	assert.Equal(t, uint8(0x30), got[0].Info.DynamicAddress)
	assert.Equal(t, NotifyMaxWriteLength, got[1].ID)
	assert.Equal(t, uint16(0x40), got[1].Info.MaxWriteLength)
	assert.Equal(t, NotifyActivityState, got[2].ID)
	assert.Equal(t, uint8(2), got[2].Info.ActivityState)
	assert.Equal(t, NotifyEventGrant, got[3].ID)
	assert.False(t, got[3].Info.IBIAllowed)
	assert.True(t, got[3].Info.HotJoinAllowed)

	info, err := h.CCCInfo(NotifyMaxWriteLength)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x40), info.MaxWriteLength)

	assert.ErrorIs(t, h.RequestIBI(nil, testTimeout), pkg.ErrIBINacked, "IBI disabled by DISEC")
}

func TestTargetDEFTGTSNotification(t *testing.T) {
	list := []byte{0x02, 0x08 << 1, 0x44, 0x21, 0x70 << 1, 0xC0, 0x00}
	r := sim.NewRemote().Broadcast(ccc.DEFTGTS, list...)
	h, p, rec := newTargetHandle(t, r, setup{})
	buf := make([]byte, 16)
	require.NoError(t, h.ActivateNotifications(NewNotifySet(NotifyDEFTGTS), buf))

	p.Pump()
	got := notifications(rec)
	require.Len(t, got, 1)
	assert.Equal(t, NotifyDEFTGTS, got[0].ID)
	assert.Equal(t, list, got[0].Info.Data)
	assert.Equal(t, list, buf[:len(list)])
}

func TestTargetGETACCCRNotification(t *testing.T) {
	capable := setup{cfg: func(c *Config) {
		c.Target.BCR = c.Target.BCR.WithDeviceRole(ccc.RoleController)
	}}
	r := sim.NewRemote().Broadcast(ccc.ENTDAA).Direct(ccc.GETACCCR)
	h, p, rec := newTargetHandle(t, r, capable)
	require.NoError(t, h.ActivateNotifications(NewNotifySet(NotifyGETACCCR), nil))

	p.Pump()
	require.Len(t, notifications(rec), 1)
	assert.Equal(t, ModeController, h.Mode())
	assert.Zero(t, h.Notifications()&TargetNotifications)
	assert.False(t, h.Listening())
	assert.True(t, h.Allocator().InUse(0x30))
	require.Len(t, r.Responses(), 1)
	assert.Equal(t, []byte{ccc.OddParity(0x30)}, r.Responses()[0].Data)
}

func TestActivateNotificationsRejects(t *testing.T) {
	h, _, _ := newController(t)
	assert.ErrorIs(t, h.ActivateNotifications(0, nil), pkg.ErrInvalidParameter)
	assert.ErrorIs(t, h.ActivateNotifications(NewNotifySet(NotifyMaxWriteLength), nil), pkg.ErrInvalidParameter)
	assert.False(t, h.Listening())

	h, _, _ = newHandle(t, ModeTarget, setup{})
	assert.ErrorIs(t, h.ActivateNotifications(NewNotifySet(NotifyIBI), nil), pkg.ErrInvalidParameter)
	assert.ErrorIs(t, h.ActivateNotifications(NewNotifySet(NotifyDEFTGTS), nil), pkg.ErrInvalidParameter)

	require.NoError(t, h.ActivateNotifications(NewNotifySet(NotifyWakeup, NotifyReset), nil))
	assert.Equal(t, NewNotifySet(NotifyWakeup, NotifyReset), h.Notifications())
	require.NoError(t, h.DeactivateNotifications(TargetNotifications))
	assert.False(t, h.Listening())
	assert.Zero(t, h.Notifications())

	_, err := h.CCCInfo(NotifyWakeup)
	assert.ErrorIs(t, err, pkg.ErrNoPendingInfo)
	_, err = h.CCCInfo(NotifyID(99))
	assert.ErrorIs(t, err, pkg.ErrNoPendingInfo)
}

func TestNotifySet(t *testing.T) {
	s := NewNotifySet(NotifyHotJoin, NotifyIBI)
	assert.True(t, s.Has(NotifyIBI))
	assert.False(t, s.Has(NotifyControllerRequest))
	assert.Equal(t, "ibi|hot-join", s.String())

	s.Add(NotifyControllerRequest)
	assert.Equal(t, ControllerNotifications, s)

	id, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, NotifyIBI, id)
	assert.False(t, s.Has(NotifyIBI))

	assert.Equal(t, "wakeup", NotifyWakeup.String())
	assert.Equal(t, "notify(42)", NotifyID(42).String())
	assert.Zero(t, ControllerNotifications&TargetNotifications)
}
