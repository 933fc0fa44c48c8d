package content

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/okian/trainingbot/internal/domain/model"
)

// Column headers of the module CSV.
const (
	colLocation    = "location"
	colTopic       = "checkbox label"
	colDescription = "description"
	colDuration    = "duration"
	colDate        = "date"
	colTime        = "time"
	colInstructor  = "instructor"
	colID          = "id"
	colTitle       = "title"
)

var requiredColumns = []string{colLocation, colTopic, colDescription, colDuration, colDate, colTime, colInstructor}

func (l *FileLoader) loadCSV(path string) ([]model.TrainingModule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, unavailable(path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, malformed(path, "missing header row")
	}
	if err != nil {
		return nil, malformed(path, "header: %v", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		cols[h] = i
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, malformed(path, "missing columns: %s", strings.Join(missing, ", "))
	}

	var out []model.TrainingModule
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, malformed(fmt.Sprintf("%s:%d", path, pe.Line), "%v", pe.Err)
			}
			return nil, unavailable(path, err)
		}
		line, _ := r.FieldPos(0)
		record := fmt.Sprintf("%s:%d", path, line)
		if blank(rec) {
			continue
		}

		get := func(col string) string {
			i, ok := cols[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		m, err := l.finish(model.TrainingModule{
			ID:          get(colID),
			Title:       get(colTitle),
			Topic:       get(colTopic),
			Location:    get(colLocation),
			Description: get(colDescription),
			Duration:    get(colDuration),
			Date:        get(colDate),
			Time:        get(colTime),
			Instructor:  get(colInstructor),
			Source:      record,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, malformed(path, "zero data rows")
	}
	return out, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
