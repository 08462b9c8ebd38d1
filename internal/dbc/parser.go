package dbc

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/fk1018/can-messenger/internal/logging"
)

var (
	messageRE = regexp.MustCompile(`^BO_\s+(\d+)\s+([A-Za-z0-9_]+)\s*:\s*(\d+)\s+\S+`)
	signalRE  = regexp.MustCompile(`^SG_\s+([A-Za-z0-9_]+)\s*:\s*(\d+)\|(\d+)@([01])([+-])\s*\(([^,]+),([^)]+)\)`)
)

// Load reads a DBC file from disk and parses it.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}

// New parses a DBC document already held in memory.
func New(text string) (*Catalog, error) {
	return parse(strings.NewReader(text))
}

// parse tokenizes a DBC text subset line by line. Lines are trimmed; empty
// lines and lines beginning with BO_TX_BU_ are ignored. A BO_ line opens a
// new current message; subsequent SG_ lines are appended to it until the
// next BO_ line. Lines matching no recognized shape are skipped silently.
// Duplicate message names overwrite the previous entry (last-wins).
func parse(r io.Reader) (*Catalog, error) {
	cat := newCatalog()
	var current *Message

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "BO_TX_BU_") {
			continue
		}

		if m := messageRE.FindStringSubmatch(line); m != nil {
			id, err := strconv.ParseUint(m[1], 10, 32)
			if err != nil {
				logging.L().Warn("dbc_parse_skip_message", "line", line, "error", err)
				continue
			}
			dlc, err := strconv.Atoi(m[3])
			if err != nil {
				logging.L().Warn("dbc_parse_skip_message", "line", line, "error", err)
				continue
			}
			msg := &Message{ID: uint32(id), Name: m[2], DLC: dlc}
			cat.put(msg)
			current = msg
			continue
		}

		if m := signalRE.FindStringSubmatch(line); m != nil {
			if current == nil {
				logging.L().Warn("dbc_parse_signal_without_message", "line", line)
				continue
			}
			startBit, _ := strconv.Atoi(m[2])
			length, _ := strconv.Atoi(m[3])
			endian := BigEndian
			if m[4] == "1" {
				endian = LittleEndian
			}
			sign := Unsigned
			if m[5] == "-" {
				sign = Signed
			}
			factor, err := strconv.ParseFloat(strings.TrimSpace(m[6]), 64)
			if err != nil {
				logging.L().Warn("dbc_parse_skip_signal", "line", line, "error", err)
				continue
			}
			offset, err := strconv.ParseFloat(strings.TrimSpace(m[7]), 64)
			if err != nil {
				logging.L().Warn("dbc_parse_skip_signal", "line", line, "error", err)
				continue
			}
			current.Signals = append(current.Signals, Signal{
				Name:     m[1],
				StartBit: startBit,
				Length:   length,
				Endian:   endian,
				Sign:     sign,
				Factor:   factor,
				Offset:   offset,
			})
			continue
		}

		// Unrecognized line shape: skip silently, as documented.
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return cat, nil
}
