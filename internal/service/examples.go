package service

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"seqrag/internal/domain"
)

// LoadExamples reads example records from a JSONL file, one
// {"id", "page_content", "summary", "metadata"} object per line.
// Blank lines are skipped; metadata values are stringified.
func LoadExamples(path string) ([]domain.Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []domain.Example
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec struct {
			ID       string         `json:"id"`
			Content  string         `json:"page_content"`
			Original string         `json:"original"`
			Summary  string         `json:"summary"`
			Metadata map[string]any `json:"metadata"`
		}
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		ex := domain.Example{ID: rec.ID, Content: rec.Content, Summary: rec.Summary}
		if ex.Content == "" {
			ex.Content = rec.Original
		}
		if len(rec.Metadata) > 0 {
			ex.Metadata = make(map[string]string, len(rec.Metadata))
			for k, v := range rec.Metadata {
				ex.Metadata[k] = fmt.Sprint(v)
			}
		}
		out = append(out, ex)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
