package payload

import (
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// errShortBlock is returned when a block decompresses to fewer bytes than recorded.
var errShortBlock = errors.New("short lz4 block")

// compress returns data as an LZ4 block, or nil when the block would not be
// smaller than the input.
func compress(data []byte) []byte {
	packed := make([]byte, lz4.CompressBlockBound(len(data)))

	written, err := lz4.CompressBlock(data, packed, nil)
	if err != nil || written == 0 || written >= len(data) {
		return nil
	}

	return packed[:written]
}

// decompress restores a block produced by compress. size is the original length.
func decompress(block []byte, size int) ([]byte, error) {
	raw := make([]byte, size)

	read, err := lz4.UncompressBlock(block, raw)
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}

	if read != size {
		return nil, fmt.Errorf("%w: %d of %d bytes", errShortBlock, read, size)
	}

	return raw, nil
}
