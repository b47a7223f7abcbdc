package fix

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Errors returned by ParseGGA.
var (
	ErrNotGGA   = errors.New("nmea: not a GGA sentence")
	ErrNoFix    = errors.New("nmea: receiver reports no fix")
	ErrChecksum = errors.New("nmea: checksum mismatch")
)

// NMEAReader decodes GGA sentences from r and emits a Fix for each valid one.
type NMEAReader struct {
	r    io.Reader
	uere float64
	now  func() time.Time
}

// NewNMEAReader reads sentences from r. uere converts HDOP to meters.
func NewNMEAReader(r io.Reader, uere float64) *NMEAReader {
	return &NMEAReader{r: r, uere: uere, now: time.Now}
}

// Run reads until EOF, a read error, or ctx cancellation. Sentences that
// are not GGA or do not carry a fix are skipped.
func (n *NMEAReader) Run(ctx context.Context, emit func(Fix)) error {
	sc := bufio.NewScanner(n.r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		f, err := ParseGGA(sc.Text(), n.now(), n.uere)
		switch {
		case err == nil:
			emit(f)
		case errors.Is(err, ErrNotGGA), errors.Is(err, ErrNoFix):
		default:
			slog.Debug("fix: skipping sentence", "err", err)
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("fix: read nmea: %w", err)
	}
	return nil
}

// ParseGGA decodes one $--GGA sentence. ref anchors the time-of-day in the
// sentence to a calendar date (UTC).
func ParseGGA(line string, ref time.Time, uere float64) (Fix, error) {
	line = strings.TrimSpace(line)
	if len(line) < 7 || line[0] != '$' || line[3:6] != "GGA" {
		return Fix{}, ErrNotGGA
	}

	payload := line[1:]
	if star := strings.IndexByte(payload, '*'); star >= 0 {
		if err := verifyChecksum(payload[:star], payload[star+1:]); err != nil {
			return Fix{}, err
		}
		payload = payload[:star]
	}

	f := strings.Split(payload, ",")
	if len(f) < 9 {
		return Fix{}, fmt.Errorf("nmea: GGA has %d fields", len(f))
	}
	if f[6] == "" || f[6] == "0" {
		return Fix{}, ErrNoFix
	}

	lat, err := ParseCoord(f[2], f[3])
	if err != nil {
		return Fix{}, fmt.Errorf("nmea: latitude: %w", err)
	}
	lon, err := ParseCoord(f[4], f[5])
	if err != nil {
		return Fix{}, fmt.Errorf("nmea: longitude: %w", err)
	}
	hdop, err := strconv.ParseFloat(f[8], 64)
	if err != nil {
		return Fix{}, fmt.Errorf("nmea: hdop: %w", err)
	}
	ts, err := parseTimeOfDay(f[1], ref)
	if err != nil {
		return Fix{}, fmt.Errorf("nmea: time: %w", err)
	}

	return Fix{
		Latitude:           lat,
		Longitude:          lon,
		Time:               ts,
		HorizontalAccuracy: hdop * uere,
	}, nil
}

// ParseCoord converts NMEA (d)ddmm.mmmm plus a hemisphere letter to decimal
// degrees. For example 2101.7102,N -> 21.02850333.
func ParseCoord(value, hemi string) (float64, error) {
	dot := strings.IndexByte(value, '.')
	if dot < 0 {
		dot = len(value)
	}
	if dot < 3 {
		return 0, fmt.Errorf("invalid coordinate %q", value)
	}
	deg, err := strconv.ParseFloat(value[:dot-2], 64)
	if err != nil {
		return 0, err
	}
	min, err := strconv.ParseFloat(value[dot-2:], 64)
	if err != nil {
		return 0, err
	}
	if min >= 60 {
		return 0, fmt.Errorf("invalid minutes in %q", value)
	}
	dec := deg + min/60
	switch hemi {
	case "N", "E":
	case "S", "W":
		dec = -dec
	default:
		return 0, fmt.Errorf("invalid hemisphere %q", hemi)
	}
	return dec, nil
}

func verifyChecksum(body, sum string) error {
	want, err := strconv.ParseUint(strings.TrimSpace(sum), 16, 8)
	if err != nil {
		return fmt.Errorf("%w: bad checksum field %q", ErrChecksum, sum)
	}
	var got byte
	for i := 0; i < len(body); i++ {
		got ^= body[i]
	}
	if got != byte(want) {
		return fmt.Errorf("%w: got %02X, want %02X", ErrChecksum, got, want)
	}
	return nil
}

// parseTimeOfDay places hhmmss(.sss) on the UTC date of ref, choosing the
// neighbouring day when that lands closer to ref.
func parseTimeOfDay(s string, ref time.Time) (time.Time, error) {
	if len(s) < 6 {
		return time.Time{}, fmt.Errorf("invalid time %q", s)
	}
	hh, err1 := strconv.Atoi(s[0:2])
	mm, err2 := strconv.Atoi(s[2:4])
	sec, err3 := strconv.ParseFloat(s[4:], 64)
	if err1 != nil || err2 != nil || err3 != nil || hh > 23 || mm > 59 || sec >= 61 {
		return time.Time{}, fmt.Errorf("invalid time %q", s)
	}

	ref = ref.UTC()
	whole := int(sec)
	nanos := int((sec - float64(whole)) * float64(time.Second))
	t := time.Date(ref.Year(), ref.Month(), ref.Day(), hh, mm, whole, nanos, time.UTC)

	switch d := t.Sub(ref); {
	case d > 12*time.Hour:
		t = t.AddDate(0, 0, -1)
	case d < -12*time.Hour:
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}
