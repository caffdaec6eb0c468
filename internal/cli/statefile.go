package cli

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// StateFile is the JSON form of a map's content, as written by dump and
// accepted by import.
type StateFile struct {
	Root    string           `json:"root,omitempty"`
	Type    string           `json:"type,omitempty"`
	Entries []StateFileEntry `json:"entries"`
}

// StateFileEntry is one item: its key and its data, both hex encoded.
type StateFileEntry struct {
	Index   string `json:"index"`
	Data    string `json:"data,omitempty"`
	DataHex string `json:"data_hex,omitempty"` // older dumps
}

func (e StateFileEntry) decode() ([32]byte, []byte, error) {
	key, err := parseHash(e.Index)
	if err != nil {
		return key, nil, err
	}
	dataHex := e.Data
	if dataHex == "" {
		dataHex = e.DataHex
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return key, nil, fmt.Errorf("invalid data for %s: %w", e.Index, err)
	}
	return key, data, nil
}

// loadStateFile reads entries from a JSON state file (an object with an
// entries array, or a bare array) or from a text file holding one
// "<hexkey> <hexdata>" pair per line. Blank lines and lines starting with
// '#' are ignored in the text form.
func loadStateFile(path string) ([]StateFileEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		// Try parsing as StateFile first
		var stateFile StateFile
		if err := json.Unmarshal(trimmed, &stateFile); err == nil {
			return stateFile.Entries, nil
		}

		// Try parsing as array of entries directly
		var entries []StateFileEntry
		if err := json.Unmarshal(trimmed, &entries); err == nil {
			return entries, nil
		}
		return nil, fmt.Errorf("unrecognized JSON state file %s", path)
	}

	var entries []StateFileEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s:%d: expected \"<key> <data>\"", path, line)
		}
		entries = append(entries, StateFileEntry{Index: fields[0], Data: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func writeStateFile(path string, sf *StateFile) error {
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
