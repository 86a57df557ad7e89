// Package transcript splits PGN transcript logs into game blocks and
// extracts their outcome and move tokens.
package transcript

import (
	"bufio"
	"io"
	"iter"
	"strings"
)

// maxLineSize bounds a single input line. Some exports put a whole game's
// movetext on one line.
const maxLineSize = 4 * 1024 * 1024

// Block is the text of one game record.
type Block struct {
	Index    int               // 0-based position of the block in the stream
	Tags     map[string]string // header tags, e.g. Result, WhiteElo
	Movetext string            // space-joined non-tag lines
}

// Splitter turns a line stream into game blocks. It makes a single pass over
// its input: Blocks can be ranged over once.
type Splitter struct {
	sc   *bufio.Scanner
	err  error
	used bool
}

// NewSplitter returns a Splitter reading from r.
func NewSplitter(r io.Reader) *Splitter {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Splitter{sc: sc}
}

// Blocks yields game blocks lazily. A line starting with '[' closes the
// block accumulated so far (if it has any movetext) and begins the header of
// the next one. The last block is emitted at end of input.
func (s *Splitter) Blocks() iter.Seq[Block] {
	return func(yield func(Block) bool) {
		if s.used {
			return
		}
		s.used = true

		var text strings.Builder
		tags := make(map[string]string)
		index := 0

		emit := func() bool {
			movetext := strings.TrimSpace(text.String())
			text.Reset()
			if movetext == "" {
				return true
			}
			blk := Block{Index: index, Tags: tags, Movetext: movetext}
			index++
			tags = make(map[string]string)
			return yield(blk)
		}

		for s.sc.Scan() {
			line := strings.TrimRight(s.sc.Text(), "\r")
			if strings.HasPrefix(line, "[") {
				if !emit() {
					return
				}
				if name, value, ok := parseTag(line); ok {
					tags[name] = value
				}
				continue
			}
			// ';' starts a comment running to end of line.
			if i := strings.IndexByte(line, ';'); i >= 0 {
				line = line[:i]
			}
			text.WriteByte(' ')
			text.WriteString(line)
		}
		s.err = s.sc.Err()
		if s.err != nil {
			return
		}
		emit()
	}
}

// Err returns the first read error, if any, once Blocks has finished.
func (s *Splitter) Err() error {
	return s.err
}

// parseTag parses a header line like `[WhiteElo "2450"]`.
func parseTag(line string) (name, value string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return "", "", false
	}
	inner := strings.TrimSpace(line[1 : len(line)-1])
	name, rest, found := strings.Cut(inner, " ")
	if !found || name == "" {
		return "", "", false
	}
	rest = strings.TrimSpace(rest)
	if len(rest) < 2 || rest[0] != '"' || rest[len(rest)-1] != '"' {
		return "", "", false
	}
	value = strings.ReplaceAll(rest[1:len(rest)-1], `\"`, `"`)
	return name, value, true
}
