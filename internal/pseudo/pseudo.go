// Package pseudo models a pseudopotential file and its embedded dojo
// report. The report is a JSON section delimited by <DOJO_REPORT> markers
// appended to the potential data; everything outside the section is
// opaque payload owned by the generating code.
package pseudo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	reportOpen  = "<DOJO_REPORT>"
	reportClose = "</DOJO_REPORT>"
)

// Report maps a validator key (e.g. "hints") to its result fragment.
type Report map[string]any

// dojoKeyLevels maps report keys to the validation level they certify.
// The trainer for each level writes exactly one of these keys.
var dojoKeyLevels = map[string]int{
	"hints":        0,
	"delta_factor": 1,
}

// KeyLevel returns the validation level certified by a report key.
func KeyLevel(key string) (int, bool) {
	lvl, ok := dojoKeyLevels[key]
	return lvl, ok
}

// LevelKey returns the report key written at a validation level.
func LevelKey(level int) (string, bool) {
	for key, lvl := range dojoKeyLevels {
		if lvl == level {
			return key, true
		}
	}
	return "", false
}

// MaxLevel is the highest known validation level.
func MaxLevel() int {
	max := 0
	for _, lvl := range dojoKeyLevels {
		if lvl > max {
			max = lvl
		}
	}
	return max
}

// Pseudo is a pseudopotential file on disk.
type Pseudo struct {
	path string
	body string // file content with the report section stripped
	rep  Report
}

// FromFile reads a pseudopotential file, splitting off the embedded
// dojo report section if one is present.
func FromFile(path string) (*Pseudo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pseudo: reading %s: %w", path, err)
	}

	body, section, err := splitReport(string(data))
	if err != nil {
		return nil, fmt.Errorf("pseudo: %s: %w", path, err)
	}

	rep := Report{}
	if section != "" {
		if err := json.Unmarshal([]byte(section), &rep); err != nil {
			return nil, fmt.Errorf("pseudo: %s: decoding dojo report: %w", path, err)
		}
	}

	return &Pseudo{path: path, body: body, rep: rep}, nil
}

// Name is the pseudopotential's identity: the file base name.
func (p *Pseudo) Name() string { return filepath.Base(p.path) }

// Path returns the on-disk location of the potential file.
func (p *Pseudo) Path() string { return p.path }

// DojoLevel returns the highest validation level certified by the
// persisted report. ok is false when the pseudopotential is untested.
func (p *Pseudo) DojoLevel() (int, bool) {
	level, found := 0, false
	for key := range p.rep {
		lvl, known := dojoKeyLevels[key]
		if !known {
			continue
		}
		if !found || lvl > level {
			level = lvl
		}
		found = true
	}
	return level, found
}

// ReadDojoReport returns a copy of the persisted report. An untested
// pseudopotential yields an empty, non-nil report.
func (p *Pseudo) ReadDojoReport() Report {
	out := make(Report, len(p.rep))
	for k, v := range p.rep {
		out[k] = v
	}
	return out
}

// WriteDojoReport persists the given report as the file's dojo report
// section, replacing any previous section. The potential payload is
// preserved byte for byte. The file is rewritten atomically via a
// temp-file rename.
func (p *Pseudo) WriteDojoReport(rep Report) error {
	enc, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("pseudo: encoding dojo report: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(p.body)
	if !strings.HasSuffix(p.body, "\n") && p.body != "" {
		buf.WriteByte('\n')
	}
	buf.WriteString(reportOpen)
	buf.WriteByte('\n')
	buf.Write(enc)
	buf.WriteByte('\n')
	buf.WriteString(reportClose)
	buf.WriteByte('\n')

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("pseudo: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("pseudo: replacing %s: %w", p.path, err)
	}

	p.rep = make(Report, len(rep))
	for k, v := range rep {
		p.rep[k] = v
	}
	return nil
}

// splitReport separates the potential payload from the report section.
// A file may carry at most one section; an opening marker without a
// closing one is malformed.
func splitReport(content string) (body, section string, err error) {
	open := strings.Index(content, reportOpen)
	if open < 0 {
		return content, "", nil
	}
	rest := content[open+len(reportOpen):]
	end := strings.Index(rest, reportClose)
	if end < 0 {
		return "", "", fmt.Errorf("unterminated %s section", reportOpen)
	}
	body = content[:open]
	section = strings.TrimSpace(rest[:end])
	return body, section, nil
}
