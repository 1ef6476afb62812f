package utils

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// maxLineBytes bounds a single recorded message; producer messages are small
// but performance updates can carry long pair lists.
const maxLineBytes = 1 << 20

// ReadMessagesFromJSONL loads a recorded producer session, one JSON message
// per line. Blank lines are skipped; an invalid line fails the load with its
// line number so corrupt captures are caught before a replay starts.
func ReadMessagesFromJSONL(filename string) ([][]byte, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var messages [][]byte
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return nil, fmt.Errorf("line %d: not valid JSON", lineNo)
		}
		msg := make([]byte, len(line))
		copy(msg, line)
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	return messages, nil
}
