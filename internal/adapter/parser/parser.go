package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/V4T54L/weblog-etl/internal/domain"
)

// Combined log format as written by nginx/apache with an empty referer:
// 54.36.149.41 - - [22/Jan/2019:03:56:14 +0330] "GET /filter/27|13%20test HTTP/1.1" 200 30577 "-" "Mozilla/5.0 (compatible; AhrefsBot/6.1; +http://ahrefs.com/robot/)"
var combinedRe = regexp.MustCompile(`(\d+\.\d+\.\d+\.\d+) - - \[([^\]]+)\] "(\w+) ([^"]+) ([^"]+)" (\d+) (\d+) "-" "([^"]+)"`)

// Result is what a window of text parsed into.
type Result struct {
	Records []domain.LogRecord
	// Lines counts non-empty lines examined.
	Lines int
	// Skipped counts lines that did not match the pattern at all.
	Skipped int
	// Errors holds one *domain.ParseError per matching line that was dropped.
	Errors []error
}

// Parse extracts log records from text in order of appearance. Lines that do
// not match are expected (a bounded read usually ends mid-line) and are only
// counted.
func Parse(text string) Result {
	var res Result
	lineNo := 0
	for len(text) > 0 {
		lineNo++
		var line string
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			line, text = text[:i], text[i+1:]
		} else {
			line, text = text, ""
		}
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		res.Lines++

		rec, ok, err := ParseLine(line, lineNo)
		switch {
		case err != nil:
			res.Errors = append(res.Errors, err)
		case !ok:
			res.Skipped++
		default:
			res.Records = append(res.Records, rec)
		}
	}
	return res
}

// ParseLine parses a single line. ok is false when the line does not match;
// err is a *domain.ParseError when it matches but a numeric field overflows.
func ParseLine(line string, lineNo int) (rec domain.LogRecord, ok bool, err error) {
	m := combinedRe.FindStringSubmatch(line)
	if len(m) < 9 {
		return domain.LogRecord{}, false, nil
	}

	status, err := strconv.Atoi(m[6])
	if err != nil {
		return domain.LogRecord{}, true, &domain.ParseError{Line: lineNo, Field: "status", Value: m[6], Err: err}
	}
	size, err := strconv.ParseInt(m[7], 10, 64)
	if err != nil {
		return domain.LogRecord{}, true, &domain.ParseError{Line: lineNo, Field: "size", Value: m[7], Err: err}
	}

	return domain.LogRecord{
		Address:      m[1],
		RawTimestamp: m[2],
		Method:       m[3],
		URL:          m[4],
		Protocol:     m[5],
		Status:       status,
		Size:         size,
		UserAgent:    m[8],
		Line:         lineNo,
	}, true, nil
}
