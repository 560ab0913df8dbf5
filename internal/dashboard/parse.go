// Package dashboard reads the pipeline's text logs back into structured
// records for the report command and the read-only HTTP API.
//
// The logs are append-only and may contain the same frame several times when
// a batch is re-run without --reset-logs. Readers keep the first block seen
// for each frame and ignore the rest.
package dashboard

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dativo-io/safeops/internal/auditlog"
)

const maxLineBytes = 1 << 20

var (
	blockHeader = regexp.MustCompile(`^\[Frame (.+)\]$`)
	actionLine  = regexp.MustCompile(`^\[(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\] \[Frame ([^\]]*)\] \[([^\]]*)\] (.*)$`)
)

// Block is one "[Frame <id>]" section of a block log.
type Block struct {
	FrameID string `json:"frame_id"`
	Payload string `json:"payload"`
}

// ActionEntry is one parsed line of the action audit log.
type ActionEntry struct {
	Timestamp time.Time `json:"timestamp"`
	FrameID   string    `json:"frame_id"`
	Violation string    `json:"violation"`
	Action    string    `json:"action"`
}

// ParseBlocks splits a block log into blocks in file order, keeping only
// the first block for each frame. A block runs from its header line to the
// next header, so payloads may contain blank lines. Text before the first
// header is ignored.
func ParseBlocks(r io.Reader) ([]Block, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	var (
		out     []Block
		seen    = make(map[string]bool)
		current *Block
		body    []string
	)
	flush := func() {
		if current == nil {
			return
		}
		if !seen[current.FrameID] {
			seen[current.FrameID] = true
			current.Payload = strings.TrimSpace(strings.Join(body, "\n"))
			out = append(out, *current)
		}
		current, body = nil, nil
	}

	for sc.Scan() {
		line := sc.Text()
		if m := blockHeader.FindStringSubmatch(strings.TrimRight(line, "\r ")); m != nil {
			flush()
			current = &Block{FrameID: m[1]}
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading block log: %w", err)
	}
	flush()
	return out, nil
}

// ParseActions parses the action audit log. Non-empty lines that do not
// match the audit format are skipped and logged at debug level.
func ParseActions(r io.Reader) ([]ActionEntry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	var (
		out    []ActionEntry
		lineNo int
	)
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		m := actionLine.FindStringSubmatch(line)
		if m == nil {
			if strings.TrimSpace(line) != "" {
				log.Debug().Int("line_no", lineNo).Str("line", line).Msg("action_log_line_skipped")
			}
			continue
		}
		ts, err := time.ParseInLocation(auditlog.TimestampLayout, m[1], time.Local)
		if err != nil {
			log.Debug().Int("line_no", lineNo).Err(err).Msg("action_log_bad_timestamp")
			continue
		}
		out = append(out, ActionEntry{Timestamp: ts, FrameID: m[2], Violation: m[3], Action: m[4]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading action log: %w", err)
	}
	return out, nil
}
