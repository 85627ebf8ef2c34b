package i3c

import (
	"fmt"
	"strings"

	"github.com/ardnew/softi3c/ccc"
	"github.com/ardnew/softi3c/hal"
	"github.com/ardnew/softi3c/pkg"
)

// NotifyID identifies an asynchronous notification source.
type NotifyID uint8

// Controller-role notifications.
const (
	NotifyIBI               NotifyID = iota // IBI received
	NotifyControllerRequest                 // Controller-role request received
	NotifyHotJoin                           // Hot-join request received
)

// Target-role notifications.
const (
	NotifyGETACCCR         NotifyID = iota + 3 // Controller role taken over
	NotifyIBIEnd                               // IBI procedure ended
	NotifyDAUpdate                             // Dynamic address assigned or reset
	NotifyGET                                  // GETxxx CCC answered
	NotifyGETSTATUS                            // GETSTATUS answered
	NotifyMaxWriteLength                       // SETMWL received
	NotifyMaxReadLength                        // SETMRL received
	NotifyReset                                // Reset pattern or RSTACT
	NotifyActivityState                        // ENTASx received
	NotifyEventGrant                           // ENEC/DISEC received
	NotifyWakeup                               // Wake-up pattern
	NotifyDEFTGTS                              // DEFTGTS received
	NotifyDEFGRPA                              // DEFGRPA received

	numNotify
)

var notifyNames = [numNotify]string{
	"ibi", "controller-request", "hot-join",
	"getacccr", "ibi-end", "da-update", "get", "getstatus",
	"mwl", "mrl", "reset", "activity-state", "event-grant", "wakeup",
	"deftgts", "defgrpa",
}

// notifyFlag maps a notification to its EVR bit.
var notifyFlag = [numNotify]uint32{
	NotifyIBI:               hal.EVRIBI,
	NotifyControllerRequest: hal.EVRCR,
	NotifyHotJoin:           hal.EVRHJ,
	NotifyGETACCCR:          hal.EVRCRUPD,
	NotifyIBIEnd:            hal.EVRIBIEND,
	NotifyDAUpdate:          hal.EVRDAUPD,
	NotifyGET:               hal.EVRGET,
	NotifyGETSTATUS:         hal.EVRSTA,
	NotifyMaxWriteLength:    hal.EVRMWLUPD,
	NotifyMaxReadLength:     hal.EVRMRLUPD,
	NotifyReset:             hal.EVRRST,
	NotifyActivityState:     hal.EVRASUPD,
	NotifyEventGrant:        hal.EVRINTUPD,
	NotifyWakeup:            hal.EVRWKP,
	NotifyDEFTGTS:           hal.EVRDEF,
	NotifyDEFGRPA:           hal.EVRGRP,
}

// String returns the notification name.
func (id NotifyID) String() string {
	if id < numNotify {
		return notifyNames[id]
	}
	return fmt.Sprintf("notify(%d)", uint8(id))
}

// NotifySet is a set of notifications.
type NotifySet uint32

// Notification sets by role.
const (
	ControllerNotifications NotifySet = 1<<NotifyIBI | 1<<NotifyControllerRequest | 1<<NotifyHotJoin
	TargetNotifications     NotifySet = (1<<numNotify - 1) &^ ControllerNotifications
)

// NewNotifySet returns a set holding ids.
func NewNotifySet(ids ...NotifyID) NotifySet {
	var s NotifySet
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add adds id to the set.
func (s *NotifySet) Add(id NotifyID) {
	*s |= 1 << id
}

// Has reports whether id is in the set.
func (s NotifySet) Has(id NotifyID) bool {
	return s&(1<<id) != 0
}

// Pop removes and returns the lowest id in the set.
func (s *NotifySet) Pop() (NotifyID, bool) {
	for id := NotifyID(0); id < numNotify; id++ {
		if s.Has(id) {
			*s &^= 1 << id
			return id, true
		}
	}
	return 0, false
}

// String lists the members separated by '|'.
func (s NotifySet) String() string {
	var parts []string
	for c := s; ; {
		id, ok := c.Pop()
		if !ok {
			break
		}
		parts = append(parts, id.String())
	}
	return strings.Join(parts, "|")
}

func (s NotifySet) flags() uint32 {
	var f uint32
	for c := s; ; {
		id, ok := c.Pop()
		if !ok {
			return f
		}
		f |= notifyFlag[id]
	}
}

// CCCInfo is a snapshot of the state a CCC or target request changed,
// captured when its notification was serviced.
type CCCInfo struct {
	DynamicAddressValid bool
	DynamicAddress      uint8
	MaxWriteLength      uint16
	MaxReadLength       uint16
	IBIPayloadSize      uint8
	ResetAction         uint8
	ResetActionValid    bool
	ActivityState       uint8

	HotJoinAllowed        bool
	IBIAllowed            bool
	ControllerRoleAllowed bool

	// CCC is the last GET CCC answered (NotifyGET, NotifyGETSTATUS).
	CCC ccc.Code

	// Address is the requesting target (NotifyIBI, NotifyControllerRequest,
	// NotifyHotJoin).
	Address uint8

	// Data is the IBI payload (NotifyIBI) or the DEFTGTS/DEFGRPA list. It
	// aliases the buffer given to ActivateNotifications for the latter.
	Data []byte
}

// ActivateNotifications enables the notifications in set. buf receives the
// DEFTGTS and DEFGRPA lists and is required when either is in set. The set
// must match the handle's bus role.
func (h *Handle) ActivateNotifications(set NotifySet, buf []byte) error {
	if err := h.ready(); err != nil {
		return err
	}
	if set == 0 || set&^(ControllerNotifications|TargetNotifications) != 0 {
		return fmt.Errorf("%w: notification set %#x", pkg.ErrInvalidParameter, uint32(set))
	}
	allowed := TargetNotifications
	if h.mode == ModeController {
		allowed = ControllerNotifications
	}
	if set&^allowed != 0 {
		return fmt.Errorf("%w: %s not available as %s", pkg.ErrInvalidParameter, set&^allowed, h.mode)
	}
	if (set.Has(NotifyDEFTGTS) || set.Has(NotifyDEFGRPA)) && len(buf) == 0 {
		return fmt.Errorf("%w: DEFTGTS/DEFGRPA need a buffer", pkg.ErrInvalidParameter)
	}
	if buf != nil {
		h.notifyBuf = buf
	}
	h.notify |= set
	h.listen = true
	h.p.Write(hal.RegIER, h.p.Read(hal.RegIER)|set.flags())
	pkg.LogDebug(pkg.ComponentIRQ, "notifications activated", "set", set)
	return nil
}

// DeactivateNotifications disables the notifications in set. Snapshots
// already captured stay retrievable.
func (h *Handle) DeactivateNotifications(set NotifySet) error {
	if err := h.ready(); err != nil {
		return err
	}
	h.notify &^= set
	h.listen = h.notify != 0
	h.p.Write(hal.RegIER, h.p.Read(hal.RegIER)&^set.flags())
	return nil
}

// Notifications returns the active notification set.
func (h *Handle) Notifications() NotifySet {
	return h.notify
}

// CCCInfo returns and consumes the snapshot captured for id.
func (h *Handle) CCCInfo(id NotifyID) (CCCInfo, error) {
	if id >= numNotify || !h.pending.Has(id) {
		return CCCInfo{}, fmt.Errorf("%w: %s", pkg.ErrNoPendingInfo, id)
	}
	h.pending &^= 1 << id
	return h.info[id], nil
}

// snapshot reads the CCC-visible state out of the peripheral.
func (h *Handle) snapshot() CCCInfo {
	devr0 := h.p.Read(hal.RegDEVR0)
	mrl := h.p.Read(hal.RegMAXRLR)
	return CCCInfo{
		DynamicAddressValid:   devr0&hal.DEVR0DAVAL != 0,
		DynamicAddress:        uint8(devr0>>hal.DEVR0DAShift) & 0x7F,
		MaxWriteLength:        uint16(h.p.Read(hal.RegMAXWLR) & hal.MAXLenMask),
		MaxReadLength:         uint16(mrl & hal.MAXLenMask),
		IBIPayloadSize:        uint8(mrl>>hal.MAXRLRIBIPShift) & 0x7,
		ResetAction:           uint8(devr0>>hal.DEVR0RSTACTShift) & 0x3,
		ResetActionValid:      devr0&hal.DEVR0RSTVAL != 0,
		ActivityState:         uint8(devr0>>hal.DEVR0ASShift) & 0x3,
		HotJoinAllowed:        devr0&hal.DEVR0HJEN != 0,
		IBIAllowed:            devr0&hal.DEVR0IBIEN != 0,
		ControllerRoleAllowed: devr0&hal.DEVR0CREN != 0,
	}
}

// serveNotifications captures and dispatches the active notifications
// pending in ev and returns the flags left for the transfer engine.
func (h *Handle) serveNotifications(ev uint32) uint32 {
	if h.def != 0 {
		ev = h.drainDefinition(ev)
	}
	for set := h.notify; ; {
		id, ok := set.Pop()
		if !ok {
			break
		}
		flag := notifyFlag[id]
		if ev&flag == 0 {
			continue
		}
		h.p.Write(hal.RegCEVR, flag)
		if id == NotifyDEFTGTS || id == NotifyDEFGRPA {
			h.def = id
			h.defN = 0
			h.p.Write(hal.RegIER, h.p.Read(hal.RegIER)|hal.EVRRXFNE|hal.EVRFC)
			continue
		}
		info := h.snapshot()
		rmr := h.p.Read(hal.RegRMR)
		switch id {
		case NotifyIBI:
			info.Address = hal.RMRAddr(rmr)
			n := int(rmr & hal.RMRIBIRDCNTMask)
			v := h.p.Read(hal.RegIBIDR)
			for i := 0; i < n && i < hal.MaxIBIPayload; i++ {
				info.Data = append(info.Data, byte(v>>(8*i)))
			}
		case NotifyControllerRequest, NotifyHotJoin:
			info.Address = hal.RMRAddr(rmr)
		case NotifyGET, NotifyGETSTATUS:
			info.CCC = ccc.Code(hal.RMRCode(rmr))
		case NotifyGETACCCR:
			h.gainController()
		}
		h.info[id] = info
		h.pending.Add(id)
		pkg.LogDebug(pkg.ComponentIRQ, "notification", "id", id)
		h.emit(NotificationEvent{ID: id, Info: info})
	}
	return ev
}

// drainDefinition moves a DEFTGTS/DEFGRPA list into the notification
// buffer and dispatches it at frame completion. It consumes the RX and FC
// flags it services.
func (h *Handle) drainDefinition(ev uint32) uint32 {
	if ev&hal.EVRRXFNE != 0 {
		h.defByte()
		ev &^= hal.EVRRXFNE
	}
	if ev&hal.EVRFC == 0 {
		return ev
	}
	h.p.Write(hal.RegCEVR, hal.EVRFC)
	for h.p.Read(hal.RegEVR)&hal.EVRRXFNE != 0 {
		h.defByte()
	}
	for h.p.Read(hal.RegEVR)&hal.EVRSFNE != 0 {
		h.p.Read(hal.RegSR)
	}
	id := h.def
	h.def = 0
	info := h.snapshot()
	info.Data = h.notifyBuf[:min(h.defN, len(h.notifyBuf))]
	if h.defN > len(h.notifyBuf) {
		pkg.LogWarn(pkg.ComponentIRQ, "definition list truncated", "id", id, "len", h.defN)
	}
	if h.x == nil {
		ier := h.p.Read(hal.RegIER) &^ (hal.EVRRXFNE | hal.EVRFC)
		h.p.Write(hal.RegIER, ier)
	}
	h.info[id] = info
	h.pending.Add(id)
	h.emit(NotificationEvent{ID: id, Info: info})
	return ev &^ hal.EVRFC
}

func (h *Handle) defByte() {
	b := byte(h.p.Read(hal.RegRDR))
	if h.defN < len(h.notifyBuf) {
		h.notifyBuf[h.defN] = b
	}
	h.defN++
}
