package telemetry

import (
	"hash/crc32"
	"strconv"

	"github.com/sweeney/telemetry-bridge/internal/protocol"
)

// Checksum returns the integrity tag agents attach to a reading: the
// CRC-32 (IEEE) of "<value>:<observedAt>" as an unsigned decimal string.
func Checksum(value, observedAt float64) string {
	input := protocol.FormatNumber(value) + ":" + protocol.FormatNumber(observedAt)
	return strconv.FormatUint(uint64(crc32.ChecksumIEEE([]byte(input))), 10)
}
