package debug

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/FlintVN/FlintDebug/internal/wire"
)

const (
	// installChunkSize is the largest WRITE_FILE_DATA payload.
	installChunkSize = 512

	// installTimeout bounds each step of the install handshake, which may
	// wait on device flash writes.
	installTimeout = 2 * time.Second
)

// ProgressFunc reports install progress as (bytes transferred, total).
type ProgressFunc func(offset, total uint32)

// InstallFile uploads a file to the device through the begin/write/complete
// handshake. Progress is reported after each acknowledged chunk and once
// more on completion. Any failed step aborts the install.
func (s *Session) InstallFile(fileName string, data []byte, progress ProgressFunc) error {
	total := uint32(len(data))

	payload := make([]byte, 0, wire.WireStringSize(fileName))
	payload = wire.AppendWireString(payload, fileName)
	if err := s.simpleCommand(wire.CmdInstallFile, payload, installTimeout); err != nil {
		return fmt.Errorf("begin install %q: %w", fileName, err)
	}

	for offset := uint32(0); offset < total; {
		n := total - offset
		if n > installChunkSize {
			n = installChunkSize
		}
		chunk := data[offset : offset+n]
		if err := s.simpleCommand(wire.CmdWriteFileData, chunk, installTimeout); err != nil {
			return fmt.Errorf("write %q at %d: %w", fileName, offset, err)
		}
		offset += n
		if progress != nil {
			progress(offset, total)
		}
	}

	if err := s.simpleCommand(wire.CmdCompleteInstall, nil, installTimeout); err != nil {
		return fmt.Errorf("complete install %q: %w", fileName, err)
	}
	if progress != nil {
		progress(total, total)
	}

	s.log.Info("file installed", zap.String("file", fileName), zap.Uint32("bytes", total))
	return nil
}
