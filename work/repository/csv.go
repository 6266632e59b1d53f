package repository

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"streamcheck/work/types"
)

// ParseCSV reads channels from a CSV document with a header row. Recognized
// columns: id, name, url (or streamUrl), alternates (pipe-separated), quality,
// group, logo. Column order is free; unknown columns are ignored.
func ParseCSV(reader io.Reader) ([]types.Channel, error) {
	cr := csv.NewReader(reader)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	urlCol, ok := cols["url"]
	if !ok {
		urlCol, ok = cols["streamurl"]
	}
	if !ok {
		return nil, fmt.Errorf("CSV header has no url column")
	}

	field := func(record []string, name string) string {
		if i, ok := cols[name]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	var channels []types.Channel
	row := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", row, err)
		}

		if urlCol >= len(record) || strings.TrimSpace(record[urlCol]) == "" {
			continue
		}

		ch := types.Channel{
			ID:        field(record, "id"),
			Name:      field(record, "name"),
			StreamURL: strings.TrimSpace(record[urlCol]),
			Quality:   strings.ToUpper(field(record, "quality")),
			Group:     field(record, "group"),
			LogoURL:   field(record, "logo"),
		}
		if ch.ID == "" {
			ch.ID = fmt.Sprintf("channel-%d", len(channels)+1)
		}
		if ch.Name == "" {
			ch.Name = ch.ID
		}
		if alternates := field(record, "alternates"); alternates != "" {
			for _, alt := range strings.Split(alternates, "|") {
				if alt = strings.TrimSpace(alt); alt != "" {
					ch.AlternateURLs = append(ch.AlternateURLs, alt)
				}
			}
		}

		channels = append(channels, ch)
	}

	return channels, nil
}
