package retrieval

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultNotes seeds a missing corpus file.
var DefaultNotes = []string{
	"- Volumetric anomalies: sharp spikes in bytes_per_sec AND pkts_per_sec.",
	"- SYN flood indicators: large syn_rate increase with moderate pkt surge.",
	"- Brute-force / failed auth: elevated failed_conn_rate over baseline.",
	"- Benign periodicity: slow sinusoidal drift in pkts_per_sec/bytes_per_sec.",
	"- Multi-signal anomalies are more suspicious than single-metric noise.",
}

// LoadCorpus reads one note per line from path, writing DefaultNotes first
// when the file does not exist. Lines are kept verbatim
// apart from surrounding whitespace; blank lines are skipped.
func LoadCorpus(path string) ([]string, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := writeDefaultCorpus(path); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat corpus: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	var notes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		notes = append(notes, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return notes, nil
}

func writeDefaultCorpus(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create corpus dir: %w", err)
		}
	}
	var b strings.Builder
	for _, note := range DefaultNotes {
		b.WriteString(note)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write default corpus: %w", err)
	}
	return nil
}
