// Package sparse implements the Android sparse image format: a chunk-addressed
// image layout that omits holes so mostly-empty images transfer quickly. The
// driver walks the chunk list and pushes data into a storage backend through
// callbacks, so it carries no knowledge of the device underneath.
package sparse

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	headerMagic  = 0xed26ff3a
	majorVersion = 1

	fileHeaderSize  = 28
	chunkHeaderSize = 12

	chunkTypeRaw      = 0xCAC1
	chunkTypeFill     = 0xCAC2
	chunkTypeDontCare = 0xCAC3
	chunkTypeCRC32    = 0xCAC4

	fillValueSize = 4
)

var ErrInvalidImage = errors.New("sparse image invalid")

// fileHeader mirrors the on-wire sparse file header (little endian).
type fileHeader struct {
	magic       uint32
	major       uint16
	minor       uint16
	fileHdrSz   uint16
	chunkHdrSz  uint16
	blkSz       uint32
	totalBlks   uint32
	totalChunks uint32
	checksum    uint32
}

func parseFileHeader(data []byte) (fileHeader, bool) {
	if len(data) < fileHeaderSize {
		return fileHeader{}, false
	}
	hdr := fileHeader{
		magic:       binary.LittleEndian.Uint32(data[0:]),
		major:       binary.LittleEndian.Uint16(data[4:]),
		minor:       binary.LittleEndian.Uint16(data[6:]),
		fileHdrSz:   binary.LittleEndian.Uint16(data[8:]),
		chunkHdrSz:  binary.LittleEndian.Uint16(data[10:]),
		blkSz:       binary.LittleEndian.Uint32(data[12:]),
		totalBlks:   binary.LittleEndian.Uint32(data[16:]),
		totalChunks: binary.LittleEndian.Uint32(data[20:]),
		checksum:    binary.LittleEndian.Uint32(data[24:]),
	}
	return hdr, true
}

// IsSparseImage reports whether the payload starts with a sparse file header.
// Stateless and side-effect free; used to branch between the sparse and raw
// flashing paths.
func IsSparseImage(data []byte) bool {
	hdr, ok := parseFileHeader(data)
	if !ok {
		return false
	}
	return hdr.magic == headerMagic && hdr.major == majorVersion
}

// Storage is the landing zone for a sparse image: a linear run of blocks
// with write and reserve callbacks supplied by the flashing layer.
//
// Write programs blkcnt blocks of data starting at block blk and returns the
// number of blocks actually written; anything short of blkcnt aborts the
// transfer. Reserve accounts for blocks the image says to skip and returns
// the number of blocks reserved.
type Storage struct {
	// BlockSize is the device block size in bytes (write granularity).
	BlockSize int64
	// Start is the first device block of the target region.
	Start int64
	// Size is the region size in device blocks.
	Size int64

	Write   func(blk, blkcnt int64, data []byte) int64
	Reserve func(blk, blkcnt int64) int64
}

// WriteImage parses the sparse payload and drives the storage callbacks
// chunk by chunk. A chunk that lands past the region end, a malformed
// header, or a short write all abort the transfer with an error.
func WriteImage(s *Storage, data []byte, name string) error {
	hdr, ok := parseFileHeader(data)
	if !ok || hdr.magic != headerMagic || hdr.major != majorVersion {
		return ErrInvalidImage
	}
	if hdr.fileHdrSz < fileHeaderSize || hdr.chunkHdrSz < chunkHeaderSize {
		return fmt.Errorf("%w: short headers (file=%d chunk=%d)", ErrInvalidImage, hdr.fileHdrSz, hdr.chunkHdrSz)
	}
	if hdr.blkSz == 0 || s.BlockSize <= 0 || int64(hdr.blkSz)%s.BlockSize != 0 {
		return fmt.Errorf("%w: image block size %d not a multiple of storage block size %d",
			ErrInvalidImage, hdr.blkSz, s.BlockSize)
	}

	// device blocks per image block
	blkPerImgBlk := int64(hdr.blkSz) / s.BlockSize

	pos := int64(hdr.fileHdrSz)
	blk := s.Start
	end := s.Start + s.Size
	totalImgBlks := int64(0)

	for i := uint32(0); i < hdr.totalChunks; i++ {
		if int64(len(data))-pos < int64(hdr.chunkHdrSz) {
			return fmt.Errorf("%w: truncated at chunk %d", ErrInvalidImage, i)
		}
		chunkType := binary.LittleEndian.Uint16(data[pos:])
		chunkBlks := int64(binary.LittleEndian.Uint32(data[pos+4:]))
		totalSz := int64(binary.LittleEndian.Uint32(data[pos+8:]))
		dataSz := totalSz - int64(hdr.chunkHdrSz)
		chunkData := data[pos+int64(hdr.chunkHdrSz):]

		if dataSz < 0 || int64(len(chunkData)) < dataSz {
			return fmt.Errorf("%w: truncated chunk %d", ErrInvalidImage, i)
		}

		blkcnt := chunkBlks * blkPerImgBlk

		switch chunkType {
		case chunkTypeRaw:
			if dataSz != chunkBlks*int64(hdr.blkSz) {
				return fmt.Errorf("%w: raw chunk %d has bogus size", ErrInvalidImage, i)
			}
			if blk+blkcnt > end {
				return fmt.Errorf("write request exceeds partition size (%s)", name)
			}
			n := s.Write(blk, blkcnt, chunkData[:dataSz])
			if n != blkcnt {
				return fmt.Errorf("flash write failure (%s)", name)
			}
			blk += n

		case chunkTypeFill:
			if dataSz != fillValueSize {
				return fmt.Errorf("%w: fill chunk %d has bogus size", ErrInvalidImage, i)
			}
			if blk+blkcnt > end {
				return fmt.Errorf("write request exceeds partition size (%s)", name)
			}
			fill := makeFillBlock(chunkData[:fillValueSize], int(hdr.blkSz))
			for j := int64(0); j < chunkBlks; j++ {
				n := s.Write(blk, blkPerImgBlk, fill)
				if n != blkPerImgBlk {
					return fmt.Errorf("flash write failure (%s)", name)
				}
				blk += n
			}

		case chunkTypeDontCare:
			blk += s.Reserve(blk, blkcnt)

		case chunkTypeCRC32:
			if dataSz != fillValueSize {
				return fmt.Errorf("%w: crc32 chunk %d has bogus size", ErrInvalidImage, i)
			}

		default:
			return fmt.Errorf("%w: unknown chunk type %#04x", ErrInvalidImage, chunkType)
		}

		totalImgBlks += chunkBlks
		pos += totalSz
	}

	if totalImgBlks != int64(hdr.totalBlks) {
		return fmt.Errorf("%w: wrote %d of %d blocks", ErrInvalidImage, totalImgBlks, hdr.totalBlks)
	}

	return nil
}

// makeFillBlock expands a 4-byte fill pattern to one image block.
func makeFillBlock(value []byte, blkSz int) []byte {
	buf := make([]byte, blkSz)
	for i := 0; i < blkSz; i += fillValueSize {
		copy(buf[i:], value)
	}
	return buf
}
