package setbreaks

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

//go:embed set_breaks.csv
var bundledTable []byte

// Row is one line of the break table.
type Row struct {
	Date        string
	Artist      string
	Venue       string
	City        string
	State       string
	Song        string
	BreakLength string // "long", "short", or empty
	EventIndex  int    // 1 = primary venue, 2 = second venue on the same date
	StartTime   string // optional HH:MM time of day
}

// Location is a venue tuple.
type Location struct {
	Venue string
	City  string
	State string
}

func (l Location) String() string {
	return fmt.Sprintf("%s, %s, %s", l.Venue, l.City, l.State)
}

// DateInfo aggregates every table row for one artist and date.
type DateInfo struct {
	Date          string
	NSets         int
	Location      Location
	Location2     *Location
	LongBreaks    []string
	ShortBreaks   []string
	LocationBreak []string
	StartTime     *time.Time // time-of-day only; date component is zero
}

// Table holds the parsed break table grouped by artist and date.
type Table struct {
	rows     []Row
	byArtist map[string]map[string][]Row
}

// Load parses the break table at path, or the bundled table when path is
// empty.
func Load(path string) (*Table, error) {
	var reader io.Reader
	if path == "" {
		reader = bytes.NewReader(bundledTable)
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open break table: %w", err)
		}
		defer file.Close()
		reader = file
	}
	return parse(reader)
}

func parse(reader io.Reader) (*Table, error) {
	records, err := csv.NewReader(reader).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse break table: %w", err)
	}
	if len(records) == 0 {
		return &Table{byArtist: map[string]map[string][]Row{}}, nil
	}

	headers := records[0]
	index := make(map[string]int, len(headers))
	for i, header := range headers {
		index[strings.TrimSpace(header)] = i
	}
	field := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	table := &Table{byArtist: map[string]map[string][]Row{}}
	for _, record := range records[1:] {
		row := Row{
			Date:        field(record, "date"),
			Artist:      field(record, "artist"),
			Venue:       field(record, "venue"),
			City:        field(record, "city"),
			State:       field(record, "state"),
			Song:        field(record, "song"),
			BreakLength: field(record, "break_length"),
			StartTime:   field(record, "time"),
		}
		if row.Date == "" {
			continue
		}
		if raw := field(record, "ievent"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				row.EventIndex = n
			}
		}
		if row.EventIndex == 0 {
			row.EventIndex = 1
		}
		table.rows = append(table.rows, row)

		dates, ok := table.byArtist[row.Artist]
		if !ok {
			dates = map[string][]Row{}
			table.byArtist[row.Artist] = dates
		}
		dates[row.Date] = append(dates[row.Date], row)
	}
	return table, nil
}

// DateInfo resolves the break data for one artist and date. A date absent
// from the table yields a zero-set DateInfo.
func (t *Table) DateInfo(artist, date string) DateInfo {
	info := DateInfo{Date: date}
	rows := t.byArtist[artist][date]
	info.NSets = len(rows)

	prevSong := ""
	for _, row := range rows {
		switch row.EventIndex {
		case 1:
			info.Location = Location{Venue: row.Venue, City: row.City, State: row.State}
		case 2:
			loc := Location{Venue: row.Venue, City: row.City, State: row.State}
			info.Location2 = &loc
			// The song closing the first venue's run marks the move.
			if prevSong != "" {
				info.LocationBreak = []string{prevSong}
			}
		}
		switch row.BreakLength {
		case "long":
			info.LongBreaks = append(info.LongBreaks, row.Song)
		case "short":
			info.ShortBreaks = append(info.ShortBreaks, row.Song)
		}
		if info.StartTime == nil && row.StartTime != "" {
			if parsed, err := time.Parse("15:04", row.StartTime); err == nil {
				info.StartTime = &parsed
			}
		}
		prevSong = row.Song
	}
	return info
}

// Artists lists every artist present in the table.
func (t *Table) Artists() []string {
	names := make([]string, 0, len(t.byArtist))
	for name := range t.byArtist {
		names = append(names, name)
	}
	return names
}

// Len returns the number of rows loaded.
func (t *Table) Len() int {
	return len(t.rows)
}
