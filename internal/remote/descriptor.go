package remote

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Descriptor is the small per-recording record returned by a search
// endpoint. It carries no file list; manifests are fetched on demand.
type Descriptor struct {
	Identifier   string      `json:"identifier"`
	Date         FlexString  `json:"date"`
	AvgRating    FlexFloat   `json:"avg_rating"`
	NumReviews   FlexInt     `json:"num_reviews"`
	NumFavorites FlexInt     `json:"num_favorites"`
	Stars        FlexFloat   `json:"stars"`
	Downloads    FlexInt     `json:"downloads"`
	FilesCount   FlexInt     `json:"files_count"`
	Format       FlexStrings `json:"format"`
	Collection   FlexStrings `json:"collection"`
	Source       FlexString  `json:"source"`
	Subject      FlexString  `json:"subject"`
	Type         FlexString  `json:"type"`
	AddedDate    FlexString  `json:"addeddate"`
	Venue        string      `json:"venue,omitempty"`
	Coverage     string      `json:"coverage,omitempty"`
}

// PerformanceDate returns the calendar date portion (YYYY-MM-DD) of the
// descriptor's date field.
func (d Descriptor) PerformanceDate() string {
	date := string(d.Date)
	if len(date) > 10 {
		date = date[:10]
	}
	return date
}

// Year returns the performance year, or 0 when the date is unparseable.
func (d Descriptor) Year() int {
	date := d.PerformanceDate()
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}

// Decade returns the performance decade (e.g. 1970 for 1977-05-08).
func (d Descriptor) Decade() int {
	return d.Year() / 10 * 10
}

// AddedTime parses the addeddate timestamp. Zero-dated values ("0000...")
// appear in the archive and are coerced to 1990-01-01T00:00:00Z.
func (d Descriptor) AddedTime() time.Time {
	raw := string(d.AddedDate)
	if raw == "" || strings.HasPrefix(raw, "0000") {
		raw = "1990-01-01T00:00:00Z"
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		parsed, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
		}
	}
	return parsed.UTC()
}

// InCollection reports whether the descriptor carries the collection tag.
func (d Descriptor) InCollection(name string) bool {
	for _, tag := range d.Collection {
		if tag == name {
			return true
		}
	}
	return false
}

// StreamOnly reports whether the archive flags this recording as
// playable-but-not-downloadable.
func (d Descriptor) StreamOnly() bool {
	return d.InCollection("stream_only")
}

// FlexString decodes a JSON string, or the first element of a JSON array of
// strings. The archive emits both shapes for the same fields.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		if len(list) > 0 {
			*s = FlexString(list[0])
		} else {
			*s = ""
		}
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*s = FlexString(single)
	return nil
}

// FlexStrings decodes a JSON array of strings, or a lone string as a
// one-element set.
type FlexStrings []string

func (s *FlexStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*s = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*s = []string{single}
	return nil
}

// FlexFloat decodes a JSON number or a numeric string.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if strings.TrimSpace(raw) == "" {
			*f = 0
			return nil
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return err
		}
		*f = FlexFloat(value)
		return nil
	}
	var value float64
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*f = FlexFloat(value)
	return nil
}

// FlexInt decodes a JSON integer or a numeric string.
type FlexInt int

func (i *FlexInt) UnmarshalJSON(data []byte) error {
	var f FlexFloat
	if err := f.UnmarshalJSON(data); err != nil {
		return err
	}
	*i = FlexInt(f)
	return nil
}
