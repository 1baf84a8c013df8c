package mavlink

// x25 implements the CRC-16/MCRF4XX accumulator used by the MAVLink
// checksum. The checksum covers every frame byte after the magic marker,
// plus the per-message CRC_EXTRA seed byte.
type x25 struct {
	crc uint16
}

func newX25() *x25 {
	return &x25{crc: 0xFFFF}
}

func (c *x25) add(b byte) {
	tmp := b ^ byte(c.crc&0xFF)
	tmp ^= tmp << 4
	c.crc = (c.crc >> 8) ^ (uint16(tmp) << 8) ^ (uint16(tmp) << 3) ^ (uint16(tmp) >> 4)
}

func (c *x25) addBytes(p []byte) {
	for _, b := range p {
		c.add(b)
	}
}

func (c *x25) sum() uint16 {
	return c.crc
}
