// Package protocol implements the binary frame format spoken between the OTA
// server and MCU clients.
//
// Every frame starts with the magic bytes 0xAA 0x55 and ends with a CRC-8/MAXIM
// checksum over all preceding bytes:
//
//	[0xAA][0x55][TYPE][LEN_H][LEN_L][PAYLOAD...][CRC8]
//
// Error responses carry no length and no payload:
//
//	[0xAA][0x55][ERROR_CODE][CRC8]
//
// All multi byte integers are big endian. The response type of a request is
// 0xFF minus the request type.
package protocol
