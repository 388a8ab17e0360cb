package processor

import (
	"regexp"
	"strings"
	"time"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
)

// Exif is the curated EXIF subset re-exposed in the status event. Every
// field is optional; a tag absent from the source is omitted.
type Exif struct {
	Make  string `json:"Make,omitempty"`
	Model string `json:"Model,omitempty"`

	DateTimeOriginal   *time.Time `json:"DateTimeOriginal,omitempty"`
	OffsetTimeOriginal string     `json:"OffsetTimeOriginal,omitempty"`

	GPSLatitudeRef       string    `json:"GPSLatitudeRef,omitempty"`
	GPSLatitude          []float64 `json:"GPSLatitude,omitempty"`
	GPSLongitudeRef      string    `json:"GPSLongitudeRef,omitempty"`
	GPSLongitude         []float64 `json:"GPSLongitude,omitempty"`
	GPSAltitudeRef       *int      `json:"GPSAltitudeRef,omitempty"`
	GPSAltitude          *float64  `json:"GPSAltitude,omitempty"`
	GPSSpeedRef          string    `json:"GPSSpeedRef,omitempty"`
	GPSSpeed             *float64  `json:"GPSSpeed,omitempty"`
	GPSImgDirectionRef   string    `json:"GPSImgDirectionRef,omitempty"`
	GPSImgDirection      *float64  `json:"GPSImgDirection,omitempty"`
	GPSDestBearingRef    string    `json:"GPSDestBearingRef,omitempty"`
	GPSDestBearing       *float64  `json:"GPSDestBearing,omitempty"`
	GPSHPositioningError *float64  `json:"GPSHPositioningError,omitempty"`
	GPSDateStamp         string    `json:"GPSDateStamp,omitempty"`
	GPSTimeStamp         []float64 `json:"GPSTimeStamp,omitempty"`
}

const exifDateTimeLayout = "2006:01:02 15:04:05"

var offsetPattern = regexp.MustCompile(`^[+-]\d{2}:\d{2}$`)

// ExtractExif returns the curated subset, or nil when the source carries no
// readable EXIF block. It never fails the transform.
func ExtractExif(data []byte) (out *Exif) {
	defer func() {
		// go-exif panics on some malformed blocks.
		if recover() != nil {
			out = nil
		}
	}()

	raw, err := exif.SearchAndExtractExif(data)
	if err != nil {
		return nil
	}
	tags, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		return nil
	}
	return exifFromTags(tags)
}

func exifFromTags(tags []exif.ExifTag) *Exif {
	seen := make(map[string]any, len(tags))
	for _, t := range tags {
		if _, ok := seen[t.TagName]; !ok {
			seen[t.TagName] = t.Value
		}
	}

	e := &Exif{
		Make:                 asString(seen["Make"]),
		Model:                asString(seen["Model"]),
		OffsetTimeOriginal:   asString(seen["OffsetTimeOriginal"]),
		GPSLatitudeRef:       asString(seen["GPSLatitudeRef"]),
		GPSLatitude:          asFloats(seen["GPSLatitude"]),
		GPSLongitudeRef:      asString(seen["GPSLongitudeRef"]),
		GPSLongitude:         asFloats(seen["GPSLongitude"]),
		GPSAltitudeRef:       asInt(seen["GPSAltitudeRef"]),
		GPSAltitude:          asFloat(seen["GPSAltitude"]),
		GPSSpeedRef:          asString(seen["GPSSpeedRef"]),
		GPSSpeed:             asFloat(seen["GPSSpeed"]),
		GPSImgDirectionRef:   asString(seen["GPSImgDirectionRef"]),
		GPSImgDirection:      asFloat(seen["GPSImgDirection"]),
		GPSDestBearingRef:    asString(seen["GPSDestBearingRef"]),
		GPSDestBearing:       asFloat(seen["GPSDestBearing"]),
		GPSHPositioningError: asFloat(seen["GPSHPositioningError"]),
		GPSDateStamp:         asString(seen["GPSDateStamp"]),
		GPSTimeStamp:         asFloats(seen["GPSTimeStamp"]),
	}

	if v := asString(seen["DateTimeOriginal"]); v != "" {
		if t, err := time.ParseInLocation(exifDateTimeLayout, v, time.UTC); err == nil {
			fixed := CorrectDateTime(t, e.OffsetTimeOriginal)
			e.DateTimeOriginal = &fixed
		}
	}

	for _, name := range exifTagNames {
		if _, ok := seen[name]; ok {
			return e
		}
	}
	return nil
}

var exifTagNames = []string{
	"Make", "Model", "DateTimeOriginal", "OffsetTimeOriginal",
	"GPSLatitudeRef", "GPSLatitude", "GPSLongitudeRef", "GPSLongitude",
	"GPSAltitudeRef", "GPSAltitude", "GPSSpeedRef", "GPSSpeed",
	"GPSImgDirectionRef", "GPSImgDirection", "GPSDestBearingRef", "GPSDestBearing",
	"GPSHPositioningError", "GPSDateStamp", "GPSTimeStamp",
}

// CorrectDateTime attaches an EXIF OffsetTimeOriginal ("+02:00") to a
// capture time whose wall-clock fields were read as UTC. The wall clock is
// kept; only the zone changes. An empty or malformed offset leaves t as is.
func CorrectDateTime(t time.Time, offset string) time.Time {
	offset = strings.TrimSpace(offset)
	if !offsetPattern.MatchString(offset) {
		return t
	}
	sign := 1
	if offset[0] == '-' {
		sign = -1
	}
	hours := int(offset[1]-'0')*10 + int(offset[2]-'0')
	minutes := int(offset[4]-'0')*10 + int(offset[5]-'0')
	zone := time.FixedZone("", sign*(hours*3600+minutes*60))

	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), zone)
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

func asFloats(v any) []float64 {
	switch t := v.(type) {
	case []exifcommon.Rational:
		out := make([]float64, len(t))
		for i, r := range t {
			if r.Denominator != 0 {
				out[i] = float64(r.Numerator) / float64(r.Denominator)
			}
		}
		return out
	case []exifcommon.SignedRational:
		out := make([]float64, len(t))
		for i, r := range t {
			if r.Denominator != 0 {
				out[i] = float64(r.Numerator) / float64(r.Denominator)
			}
		}
		return out
	}
	return nil
}

func asFloat(v any) *float64 {
	f := asFloats(v)
	if len(f) == 0 {
		return nil
	}
	return &f[0]
}

func asInt(v any) *int {
	var n int
	switch t := v.(type) {
	case []uint8:
		if len(t) == 0 {
			return nil
		}
		n = int(t[0])
	case []uint16:
		if len(t) == 0 {
			return nil
		}
		n = int(t[0])
	default:
		return nil
	}
	return &n
}
