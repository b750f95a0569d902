package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/c360studio/semlink/linking"
)

// csvHeader is the column order for saved result tables.
var csvHeader = []string{
	"mention", "context", "canonical_name", "entity_type", "confidence", "keywords", "description", "kb_uri",
}

// LoadMentions loads (mention, context) pairs from a CSV or JSON file,
// chosen by extension. CSV needs a header row with a "mention" column;
// "context" is optional. JSON is an array of {"mention", "context"}
// objects.
func LoadMentions(path string) ([]linking.Mention, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return loadMentionsCSV(path)
	case ".json":
		return loadMentionsJSON(path)
	default:
		return nil, fmt.Errorf("unsupported input file extension: %s", ext)
	}
}

func loadMentionsCSV(path string) ([]linking.Mention, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty CSV file: %s", path)
	}

	mentionCol, contextCol := -1, -1
	for i, name := range records[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "mention":
			mentionCol = i
		case "context":
			contextCol = i
		}
	}
	if mentionCol < 0 {
		return nil, fmt.Errorf("CSV is missing a 'mention' column: %s", path)
	}

	pairs := make([]linking.Mention, 0, len(records)-1)
	for _, record := range records[1:] {
		if mentionCol >= len(record) {
			continue
		}
		pair := linking.Mention{Mention: record[mentionCol]}
		if contextCol >= 0 && contextCol < len(record) {
			pair.Context = record[contextCol]
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

func loadMentionsJSON(path string) ([]linking.Mention, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input file: %w", err)
	}

	var pairs []linking.Mention
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	return pairs, nil
}

// SaveRows persists reconciled rows to a CSV or JSON file, chosen by
// extension.
func SaveRows(path string, rows []Row) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return saveRowsCSV(path, rows)
	case ".json":
		return saveRowsJSON(path, rows)
	default:
		return fmt.Errorf("unsupported output file extension: %s", ext)
	}
}

func saveRowsCSV(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}

	for _, row := range rows {
		confidence := ""
		if row.Confidence != nil {
			confidence = strconv.FormatFloat(*row.Confidence, 'f', -1, 64)
		}
		record := []string{
			row.Mention,
			row.Context,
			row.CanonicalName,
			row.EntityType,
			confidence,
			strings.Join(row.Keywords, ";"),
			row.Description,
			row.URI,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

func saveRowsJSON(path string, rows []Row) error {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rows: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	return nil
}
