package transport

// CRC16-CCITT-FALSE as used for multi-frame transfers.
const crcInitial uint16 = 0xFFFF

// CRCAdd folds data into crc.
func CRCAdd(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// CRCAddSignature folds the 64-bit data type signature, little-endian.
func CRCAddSignature(crc uint16, signature uint64) uint16 {
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(signature >> (8 * uint(i)))
	}
	return CRCAdd(crc, buf[:])
}

// TransferCRC computes the CRC prepended to multi-frame transfers.
func TransferCRC(signature uint64, payload []byte) uint16 {
	return CRCAdd(CRCAddSignature(crcInitial, signature), payload)
}
