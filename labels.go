package vtrack

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadLabels reads class names in class id order from a text file.  Lines
// are either a bare name or "id: name" as in an ultralytics dataset file.
// Blank lines and lines starting with # are skipped.
func LoadLabels(file string) ([]string, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening labels: %w", err)
	}

	defer f.Close()

	var labels []string

	scanner := bufio.NewScanner(f)
	line := 0

	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())

		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		if id, name, ok := strings.Cut(text, ":"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(id))

			if err != nil || n != len(labels) {
				return nil, fmt.Errorf("%s:%d: expected class id %d", file, line, len(labels))
			}

			text = strings.Trim(strings.TrimSpace(name), `"'`)
		}

		labels = append(labels, text)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading labels: %w", err)
	}

	if len(labels) == 0 {
		return nil, errors.New("labels file has no classes")
	}

	return labels, nil
}
