package auditlog

import (
	"context"
	"fmt"
	"strings"
)

// BlockLog appends "[Frame <id>]\n<payload>\n\n" blocks. It backs the
// reasoning log and the two advisory logs.
type BlockLog struct {
	out *appendFile
}

// OpenBlockLog opens (or creates) a block log at path for appending.
func OpenBlockLog(path string) (*BlockLog, error) {
	f, err := openAppendFile(path)
	if err != nil {
		return nil, err
	}
	return &BlockLog{out: f}, nil
}

// FormatBlock renders one self-contained block. Trailing newlines in payload
// are dropped so every block ends with exactly one blank line.
func FormatBlock(frameID, payload string) string {
	return fmt.Sprintf("[Frame %s]\n%s\n\n", frameID, strings.TrimRight(payload, "\n"))
}

// AppendBlock writes one block for frameID.
func (b *BlockLog) AppendBlock(_ context.Context, frameID, payload string) error {
	return b.out.write(FormatBlock(frameID, payload))
}

// Path returns the file backing the log.
func (b *BlockLog) Path() string { return b.out.path }

// Close flushes and closes the log.
func (b *BlockLog) Close() error { return b.out.close() }
