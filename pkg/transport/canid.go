package transport

// CAN-ID bit layout.
const (
	serviceNotMessage = 1 << 7
	requestNotResp    = 1 << 15
	anonTypeIDMask    = 0x3

	tailSOT    = 0x80
	tailEOT    = 0x40
	tailToggle = 0x20
)

func messageID(prio uint8, typeID uint16, src uint8) uint32 {
	return uint32(prio)<<24 | uint32(typeID)<<8 | uint32(src)
}

func anonymousID(prio uint8, typeID uint16, discriminator uint16) uint32 {
	return uint32(prio)<<24 | uint32(discriminator&0x7FFE)<<9 | uint32(typeID&anonTypeIDMask)<<8
}

func serviceID(prio uint8, typeID uint16, request bool, dst, src uint8) uint32 {
	id := uint32(prio)<<24 | uint32(typeID&0xFF)<<16 | uint32(dst)<<8 | serviceNotMessage | uint32(src)
	if request {
		id |= requestNotResp
	}
	return id
}

func idPriority(id uint32) uint8 {
	return uint8(id>>24) & 0x1F
}

func idSource(id uint32) uint8 {
	return uint8(id) & 0x7F
}

func idKind(id uint32) TransferKind {
	if id&serviceNotMessage == 0 {
		return KindBroadcast
	}
	if id&requestNotResp != 0 {
		return KindRequest
	}
	return KindResponse
}

func idDest(id uint32) uint8 {
	if id&serviceNotMessage == 0 {
		return BroadcastNodeID
	}
	return uint8(id>>8) & 0x7F
}

func idTypeID(id uint32) uint16 {
	if id&serviceNotMessage != 0 {
		return uint16(id>>16) & 0xFF
	}
	if idSource(id) == BroadcastNodeID {
		return uint16(id>>8) & anonTypeIDMask
	}
	return uint16(id >> 8)
}

func tailByte(sot, eot, toggle bool, tid TransferID) byte {
	b := byte(tid) & transferIDMask
	if sot {
		b |= tailSOT
	}
	if eot {
		b |= tailEOT
	}
	if toggle {
		b |= tailToggle
	}
	return b
}
