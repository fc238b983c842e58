package stream

import (
	"bufio"
	"io"
	"strings"
)

// Event is a single server-sent event.
type Event struct {
	// Type is the value of the "event:" field, empty for the default type.
	Type string
	// ID is the value of the "id:" field.
	ID string
	// Data holds the "data:" lines joined with newlines.
	Data string
}

// Scanner reads server-sent events from an io.Reader. Events end at a blank
// line. Comment lines (starting with ":") and unknown fields are ignored.
//
//	scanner := NewScanner(body)
//	for scanner.Next() {
//	    event := scanner.Event()
//	}
//	if err := scanner.Err(); err != nil {
//	    ...
//	}
type Scanner struct {
	reader  *bufio.Reader
	current Event
	err     error
}

// NewScanner creates a scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next event. It returns false at end of stream or on
// a read error; Err distinguishes the two.
func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}
	s.current = Event{}

	var (
		dataLines []string
		eventType string
		eventID   string
		hasData   bool
	)
	emit := func() {
		s.current = Event{Type: eventType, ID: eventID, Data: strings.Join(dataLines, "\n")}
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			s.err = err
			if err == io.EOF && hasData {
				emit()
				return true
			}
			return false
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if hasData {
				emit()
				return true
			}
			eventType, eventID = "", ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if ok {
			value = strings.TrimPrefix(value, " ")
		} else {
			field, value = line, ""
		}

		switch field {
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "event":
			eventType = value
		case "id":
			eventID = value
		}
	}
}

// Event returns the event read by the last successful call to Next.
func (s *Scanner) Event() Event {
	return s.current
}

// Err returns the first non-EOF error encountered.
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
