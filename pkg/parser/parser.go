package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/devopin/agent/pkg/record"
)

// Parser turns one raw log line into a LogRecord. A false return means the
// line does not match the dialect (continuation lines, stack trace bodies,
// garbage); that is a normal outcome, not an error.
type Parser interface {
	Parse(line string) (record.LogRecord, bool)
}

// ParseFunc adapts a plain function to the Parser interface.
type ParseFunc func(line string) (record.LogRecord, bool)

func (f ParseFunc) Parse(line string) (record.LogRecord, bool) { return f(line) }

// All patterns are compiled once at package init and are safe for concurrent
// use from any number of handler goroutines.
var (
	laravelPattern = regexp.MustCompile(
		`^\[(?P<timestamp>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\]\s+` +
			`(?P<environment>\w+)\.(?P<level>\w+):\s+(?P<rest>.*)$`)

	djangoPattern = regexp.MustCompile(
		`^(?P<timestamp>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?:[,.]\d+)?)\s+` +
			`(?P<level>\w+)\s+(?P<message>.*?)` +
			`(?:\s+\[(?P<file>[^\[\]:]+):(?P<line>\d+)\])?$`)

	nodejsPattern = regexp.MustCompile(
		`^(?P<timestamp>\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z)\s+` +
			`(?P<level>\w+):\s+(?P<message>.*?)` +
			`(?:\s+at\s+(?P<controller>\S+)\s+\((?P<file>[^():]+):(?P<line>\d+):\d+\))?$`)

	pythonPattern = regexp.MustCompile(
		`^(?P<timestamp>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?:[,.]\d+)?)\s+` +
			`(?P<level>\w+)\s+(?P<message>.*)$`)

	fastapiPattern = regexp.MustCompile(
		`^(?P<timestamp>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?:[,.]\d+)?) - ` +
			`(?P<module>[\w.]+) - (?P<level>\w+) - ` +
			`(?P<file>[^:]+):(?P<line>\d+) - (?P<message>.*)$`)
)

// dialects maps lower-cased dialect names to their parsers. Django and Flask
// log in the same shape and share one parser.
var dialects = map[string]Parser{
	"laravel": ParseFunc(parseLaravel),
	"django":  ParseFunc(parseDjango),
	"flask":   ParseFunc(parseDjango),
	"nodejs":  ParseFunc(parseNodejs),
	"python":  ParseFunc(parsePython),
	"fastapi": ParseFunc(parseFastAPI),
}

// ForDialect looks up the parser for a dialect name (case-insensitive). An
// unknown name is a configuration error; the caller is expected to skip the
// source, not abort.
func ForDialect(name string) (Parser, error) {
	p, ok := dialects[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unsupported log dialect: %s", name)
	}
	return p, nil
}

// groups maps named captures of a match to their values, skipping empties.
func groups(re *regexp.Regexp, m []string) map[string]string {
	out := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if name != "" && m[i] != "" {
			out[name] = m[i]
		}
	}
	return out
}

func parseLaravel(line string) (record.LogRecord, bool) {
	m := laravelPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return record.LogRecord{}, false
	}
	g := groups(laravelPattern, m)

	// Laravel appends a JSON context blob after the message text.
	message, context := g["rest"], ""
	if i := strings.Index(message, " {"); i >= 0 && strings.HasSuffix(message, "}") {
		message, context = message[:i], message[i+1:]
	}

	loc := ExtractLocation(message)
	return record.LogRecord{
		Timestamp:  g["timestamp"],
		Level:      strings.ToUpper(g["level"]),
		Message:    message,
		Context:    context,
		Controller: loc.Controller,
		LineNumber: loc.Line,
		FilePath:   loc.File,
	}, true
}

func parseDjango(line string) (record.LogRecord, bool) {
	m := djangoPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return record.LogRecord{}, false
	}
	g := groups(djangoPattern, m)

	loc := ExtractLocation(g["message"])
	// A location captured by the pattern itself wins over the heuristic.
	if g["file"] != "" {
		loc.File = g["file"]
	}
	if g["line"] != "" {
		loc.Line = g["line"]
	}

	return record.LogRecord{
		Timestamp:  g["timestamp"],
		Level:      strings.ToUpper(g["level"]),
		Message:    g["message"],
		Controller: loc.Controller,
		LineNumber: loc.Line,
		FilePath:   loc.File,
	}, true
}

func parseNodejs(line string) (record.LogRecord, bool) {
	m := nodejsPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return record.LogRecord{}, false
	}
	g := groups(nodejsPattern, m)

	return record.LogRecord{
		Timestamp:  g["timestamp"],
		Level:      strings.ToUpper(g["level"]),
		Message:    g["message"],
		Controller: g["controller"],
		LineNumber: g["line"],
		FilePath:   g["file"],
	}, true
}

func parsePython(line string) (record.LogRecord, bool) {
	m := pythonPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return record.LogRecord{}, false
	}
	g := groups(pythonPattern, m)

	return record.LogRecord{
		Timestamp: g["timestamp"],
		Level:     strings.ToUpper(g["level"]),
		Message:   g["message"],
	}, true
}

func parseFastAPI(line string) (record.LogRecord, bool) {
	m := fastapiPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return record.LogRecord{}, false
	}
	g := groups(fastapiPattern, m)

	return record.LogRecord{
		Timestamp:  g["timestamp"],
		Level:      strings.ToUpper(g["level"]),
		Message:    g["message"],
		Controller: g["module"],
		LineNumber: g["line"],
		FilePath:   g["file"],
	}, true
}
