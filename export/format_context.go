package export

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type formatContext struct {
	location *time.Location
}

func newFormatContext(opts FormatOptions) (formatContext, error) {
	ctx := formatContext{}
	if tz := strings.TrimSpace(opts.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return formatContext{}, NewError(KindValidation, "invalid timezone", err)
		}
		ctx.location = loc
	}
	return ctx, nil
}

func (f formatContext) applyTimezone(value time.Time) time.Time {
	if f.location == nil {
		return value
	}
	return value.In(f.location)
}

// cellValue converts a raw grid value into one of nil, bool, float64,
// time.Time or string.
func (f formatContext) cellValue(col Column, value any) (any, error) {
	parsed, ok, err := f.parsePattern(col, value)
	if err != nil {
		return nil, err
	}
	if ok {
		return parsed, nil
	}
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *string:
		if v == nil {
			return nil, nil
		}
		return *v, nil
	case string:
		return v, nil
	case bool:
		return v, nil
	case time.Time:
		return f.applyTimezone(v), nil
	case *time.Time:
		if v == nil {
			return nil, nil
		}
		return f.applyTimezone(*v), nil
	}
	if floatValue, ok := coerceFloat(value); ok && isFinite(floatValue) {
		return floatValue, nil
	}
	return stringify(value), nil
}

// parsePattern parses string values of typed columns that declare a
// parsing pattern. Dates are read as wall clock time in the configured
// zone. ok is false when the value is not subject to a pattern.
func (f formatContext) parsePattern(col Column, value any) (any, bool, error) {
	raw, ok := value.(string)
	if !ok {
		return nil, false, nil
	}
	pattern := strings.TrimSpace(col.ParsePattern)
	if pattern == "" {
		return nil, false, nil
	}
	switch col.Type {
	case ColumnTypeNumber:
		parsed, err := parseNumberPattern(pattern, raw)
		if err != nil {
			return nil, false, NewError(KindValidation, fmt.Sprintf("problem parsing grid cell value with format: %s", pattern), err)
		}
		return parsed, true, nil
	case ColumnTypeDate:
		loc := f.location
		if loc == nil {
			loc = time.UTC
		}
		parsed, err := parseDatePattern(pattern, raw, loc)
		if err != nil {
			return nil, false, NewError(KindValidation, fmt.Sprintf("problem parsing grid cell value with format: %s", pattern), err)
		}
		return parsed, true, nil
	default:
		return nil, false, nil
	}
}

// parseNumberPattern parses raw against a decimal pattern such as
// "$#,##0.00" or "0.0%". Text around the digit block of the pattern is
// treated as a literal prefix and suffix.
func parseNumberPattern(pattern, raw string) (float64, error) {
	if idx := strings.IndexByte(pattern, ';'); idx >= 0 {
		pattern = pattern[:idx]
	}
	first := strings.IndexAny(pattern, "#0")
	last := strings.LastIndexAny(pattern, "#0")
	if first < 0 {
		return 0, fmt.Errorf("pattern %q has no digits", pattern)
	}
	prefix := unquotePatternLiteral(pattern[:first])
	suffix := unquotePatternLiteral(pattern[last+1:])

	value := strings.TrimSpace(raw)
	negative := false
	if strings.HasPrefix(value, "-") {
		negative = true
		value = strings.TrimSpace(value[1:])
	}

	percent := strings.Contains(suffix, "%") || strings.Contains(prefix, "%")
	prefix = strings.TrimSpace(strings.ReplaceAll(prefix, "%", ""))
	suffix = strings.TrimSpace(strings.ReplaceAll(suffix, "%", ""))

	if prefix != "" {
		if !strings.HasPrefix(value, prefix) {
			return 0, fmt.Errorf("value %q does not start with %q", raw, prefix)
		}
		value = strings.TrimSpace(strings.TrimPrefix(value, prefix))
	}
	value = strings.TrimSpace(strings.TrimSuffix(value, "%"))
	if suffix != "" {
		if !strings.HasSuffix(value, suffix) {
			return 0, fmt.Errorf("value %q does not end with %q", raw, suffix)
		}
		value = strings.TrimSpace(strings.TrimSuffix(value, suffix))
	}
	if strings.HasPrefix(value, "-") {
		negative = !negative
		value = value[1:]
	}

	value = strings.ReplaceAll(value, ",", "")
	if value == "" {
		return 0, fmt.Errorf("value %q has no digits", raw)
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	if percent {
		parsed = parsed / 100
	}
	if negative {
		parsed = -parsed
	}
	return parsed, nil
}

func unquotePatternLiteral(raw string) string {
	return strings.ReplaceAll(raw, "'", "")
}

func parseDatePattern(pattern, raw string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout(pattern), strings.TrimSpace(raw), loc)
}

var dateTokens = map[byte][]struct {
	width  int
	layout string
}{
	'y': {{3, "2006"}, {2, "06"}, {1, "2006"}},
	'M': {{4, "January"}, {3, "Jan"}, {1, "1"}},
	'd': {{1, "2"}},
	'H': {{1, "15"}},
	'h': {{1, "3"}},
	'm': {{1, "4"}},
	's': {{1, "5"}},
	'S': {{3, "000"}, {2, "00"}, {1, "0"}},
	'a': {{1, "PM"}},
	'E': {{4, "Monday"}, {1, "Mon"}},
	'z': {{1, "MST"}},
	'Z': {{1, "-0700"}},
	'X': {{3, "-07:00"}, {2, "-0700"}, {1, "-07"}},
}

// dateLayout converts a date pattern in the dd/MM/yyyy family into a Go
// reference layout for parsing. Numeric fields accept one or two digits
// whatever the letter count. Quoted text is copied literally.
func dateLayout(pattern string) string {
	var out strings.Builder
	for i := 0; i < len(pattern); {
		ch := pattern[i]
		if ch == '\'' {
			end := strings.IndexByte(pattern[i+1:], '\'')
			if end < 0 {
				out.WriteString(pattern[i+1:])
				break
			}
			if end == 0 {
				out.WriteByte('\'')
			} else {
				out.WriteString(pattern[i+1 : i+1+end])
			}
			i += end + 2
			continue
		}
		tokens, ok := dateTokens[ch]
		if !ok {
			out.WriteByte(ch)
			i++
			continue
		}
		run := 1
		for i+run < len(pattern) && pattern[i+run] == ch {
			run++
		}
		for _, token := range tokens {
			if run >= token.width {
				out.WriteString(token.layout)
				break
			}
		}
		i += run
	}
	return out.String()
}

func coerceFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case int16:
		return float64(v), true
	case int8:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case uint32:
		return float64(v), true
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}
