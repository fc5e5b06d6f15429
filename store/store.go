// Package store implements the plain-text, section-structured
// configuration store described in spec.md §4.B/§6: an ordered sequence
// of section headers ("[name]") and key/value options, loaded from and
// saved to a single file, with alias-style lookup/update/remove.
//
// The parser is hand-rolled line splitting in the same vein as
// internal/config's flat KEY=value reader: split on newline, skip blank
// and "#"-prefixed lines, split the remainder on the first space.
package store

import (
	"fmt"
	"os"
	"strings"

	"github.com/stefankopp/opentmlib/errs"
)

// MaxFileSize is the largest configuration file load accepts (§4.B).
const MaxFileSize = 50 * 1024

// DefaultPath is the configuration store's default file location (§6).
const DefaultPath = "/usr/local/etc/opentmlib.store"

// record is either a section header (Option == "") or a key/value pair
// belonging to the most recently preceding header in Records.
type record struct {
	Section string // section this record lives under ("" before any header)
	Header  bool   // true if this record IS the "[Section]" header itself
	Option  string
	Value   string
}

// Store holds the ordered record list for one configuration file.
type Store struct {
	records []record
}

// New returns an empty store (no backing file yet).
func New() *Store {
	return &Store{}
}

// Load reads path and replaces the store's contents. Lines over
// MaxFileSize in total fail with errs.ConfigFileSize. Blank lines and
// lines starting with '#' are discarded. A line with no space is a
// section header of the form "[name]"; any other line splits at the
// first space into key and value.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.IOIssue, "store.Load", err)
	}
	if len(data) > MaxFileSize {
		return nil, errs.New(errs.ConfigFileSize, "store.Load", fmt.Sprintf("%d bytes exceeds max %d", len(data), MaxFileSize))
	}

	s := &Store{}
	section := ""
	lines := strings.Split(string(data), "\n")
	for _, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, " ") {
			name := strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
			section = name
			s.records = append(s.records, record{Section: name, Header: true})
			continue
		}
		idx := strings.Index(line, " ")
		key := line[:idx]
		value := strings.TrimSpace(line[idx+1:])
		s.records = append(s.records, record{Section: section, Option: key, Value: value})
	}
	return s, nil
}

// Lookup scans the record list in order for "[section]", then scans
// subsequent options until the next header or end of the store. It
// returns the first matching option's value, or "" if either the
// section or the option is absent.
func (s *Store) Lookup(section, option string) string {
	inSection := false
	for _, r := range s.records {
		if r.Header {
			inSection = r.Section == section
			continue
		}
		if inSection && r.Option == option {
			return r.Value
		}
	}
	return ""
}

// Sections returns the names of every section header, in file order.
func (s *Store) Sections() []string {
	var names []string
	for _, r := range s.records {
		if r.Header {
			names = append(names, r.Section)
		}
	}
	return names
}

// Update sets option's value within section, inserting the section (and
// the option) if either is missing. option and value must be non-empty.
func (s *Store) Update(section, option, value string) error {
	if option == "" || value == "" {
		return errs.New(errs.ConfigBadValue, "store.Update", "option and value must be non-empty")
	}

	headerIdx := -1
	for i, r := range s.records {
		if r.Header && r.Section == section {
			headerIdx = i
			break
		}
	}
	if headerIdx == -1 {
		s.records = append(s.records, record{Section: section, Header: true})
		s.records = append(s.records, record{Section: section, Option: option, Value: value})
		return nil
	}

	end := headerIdx + 1
	for end < len(s.records) && !s.records[end].Header {
		if s.records[end].Option == option {
			s.records[end].Value = value
			return nil
		}
		end++
	}
	// Not found in the section: insert immediately after the header.
	inserted := append([]record{}, s.records[:headerIdx+1]...)
	inserted = append(inserted, record{Section: section, Option: option, Value: value})
	inserted = append(inserted, s.records[headerIdx+1:]...)
	s.records = inserted
	return nil
}

// Remove deletes option within section (failing if either is absent).
// If option is "", the whole section (header and all its options) is
// removed instead, failing with errs.ConfigBadSection if absent.
func (s *Store) Remove(section, option string) error {
	headerIdx := -1
	for i, r := range s.records {
		if r.Header && r.Section == section {
			headerIdx = i
			break
		}
	}
	if headerIdx == -1 {
		return errs.New(errs.ConfigBadSection, "store.Remove", section)
	}

	end := headerIdx + 1
	for end < len(s.records) && !s.records[end].Header {
		end++
	}

	if option == "" {
		s.records = append(s.records[:headerIdx], s.records[end:]...)
		return nil
	}

	for i := headerIdx + 1; i < end; i++ {
		if s.records[i].Option == option {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return errs.New(errs.ConfigBadOption, "store.Remove", option)
}

// Save writes the store to path: a comment banner line, then one line
// per record ("key value" for options, blank line + "[name]" for
// headers other than the first), newline-terminated.
func (s *Store) Save(path string) error {
	var b strings.Builder
	b.WriteString("# opentmlib configuration store\n")
	for i, r := range s.records {
		if r.Header {
			if i != 0 {
				b.WriteString("\n")
			}
			b.WriteString("[" + r.Section + "]\n")
			continue
		}
		b.WriteString(r.Option + " " + r.Value + "\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return errs.Wrap(errs.IOIssue, "store.Save", err)
	}
	return nil
}
