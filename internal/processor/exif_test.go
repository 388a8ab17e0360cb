package processor

import (
	"encoding/json"
	"testing"
	"time"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
)

func TestCorrectDateTimeKeepsWallClock(t *testing.T) {
	orig := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	got := CorrectDateTime(orig, "+02:00")
	if got.Format(time.RFC3339) != "2023-05-01T10:00:00+02:00" {
		t.Fatalf("unexpected corrected time %s", got.Format(time.RFC3339))
	}
	if got.Equal(orig) {
		t.Fatalf("expected an offset attachment, not a UTC shift")
	}
	if neg := CorrectDateTime(orig, "-05:30"); neg.Format(time.RFC3339) != "2023-05-01T10:00:00-05:30" {
		t.Fatalf("unexpected negative offset %s", neg.Format(time.RFC3339))
	}
	for _, bad := range []string{"", "02:00", "+2:00", "Z"} {
		if !CorrectDateTime(orig, bad).Equal(orig) {
			t.Fatalf("offset %q should leave time untouched", bad)
		}
	}
}

func TestExifFromTags(t *testing.T) {
	tags := []exif.ExifTag{
		{TagName: "Make", Value: "Apple\x00"},
		{TagName: "Model", Value: "iPhone 15"},
		{TagName: "DateTimeOriginal", Value: "2023:05:01 10:00:00"},
		{TagName: "OffsetTimeOriginal", Value: "+02:00"},
		{TagName: "GPSLatitudeRef", Value: "N"},
		{TagName: "GPSLatitude", Value: []exifcommon.Rational{{Numerator: 42, Denominator: 1}, {Numerator: 41, Denominator: 1}, {Numerator: 3015, Denominator: 100}}},
		{TagName: "GPSAltitudeRef", Value: []uint8{0}},
		{TagName: "GPSAltitude", Value: []exifcommon.Rational{{Numerator: 5505, Denominator: 10}}},
		{TagName: "GPSHPositioningError", Value: []exifcommon.Rational{{Numerator: 5, Denominator: 0}}},
		{TagName: "Make", Value: "ignored duplicate"},
	}
	e := exifFromTags(tags)
	if e == nil {
		t.Fatalf("expected exif")
	}
	if e.Make != "Apple" || e.Model != "iPhone 15" {
		t.Fatalf("unexpected camera %q %q", e.Make, e.Model)
	}
	if e.DateTimeOriginal == nil || e.DateTimeOriginal.Format(time.RFC3339) != "2023-05-01T10:00:00+02:00" {
		t.Fatalf("unexpected capture time %v", e.DateTimeOriginal)
	}
	if len(e.GPSLatitude) != 3 || e.GPSLatitude[2] != 30.15 {
		t.Fatalf("unexpected latitude %v", e.GPSLatitude)
	}
	if e.GPSAltitudeRef == nil || *e.GPSAltitudeRef != 0 || e.GPSAltitude == nil || *e.GPSAltitude != 550.5 {
		t.Fatalf("unexpected altitude %v %v", e.GPSAltitudeRef, e.GPSAltitude)
	}
	if e.GPSHPositioningError == nil || *e.GPSHPositioningError != 0 {
		t.Fatalf("zero denominator should read as 0")
	}

	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	if _, ok := m["GPSSpeed"]; ok {
		t.Fatalf("absent tags must be omitted: %s", raw)
	}
	if m["DateTimeOriginal"] != "2023-05-01T10:00:00+02:00" {
		t.Fatalf("unexpected serialised time %v", m["DateTimeOriginal"])
	}
}

func TestExifMissing(t *testing.T) {
	if exifFromTags(nil) != nil {
		t.Fatalf("expected nil for no tags")
	}
	if exifFromTags([]exif.ExifTag{{TagName: "Orientation", Value: []uint16{1}}}) != nil {
		t.Fatalf("expected nil when no curated tag present")
	}
	if ExtractExif([]byte("no exif here")) != nil {
		t.Fatalf("expected nil for data without exif")
	}
}
