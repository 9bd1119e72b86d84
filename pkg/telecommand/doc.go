// Package telecommand defines the scheduled command record stored in the
// archive and its binary wire format.
//
// A record is laid out like a CCSDS telecommand packet:
//
//	primary header    6 bytes
//	secondary header 11 bytes
//	scheduled flag    1 byte
//	timestamp         7 bytes
//	payload           n bytes
//
// The packet data length field of the primary header must agree with the
// number of bytes that follow it, so a record whose length was damaged is
// rejected instead of being misread.
package telecommand
