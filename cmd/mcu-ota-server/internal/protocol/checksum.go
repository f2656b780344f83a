package protocol

import "github.com/sigurn/crc8"

var crcTable = crc8.MakeTable(crc8.CRC8_MAXIM)

// Checksum computes the CRC-8/MAXIM (Dallas 1-Wire) checksum of data.
func Checksum(data []byte) byte {
	return crc8.Checksum(data, crcTable)
}
