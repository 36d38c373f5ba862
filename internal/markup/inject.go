// Package markup rewrites references inside the entry HTML document.
//
// Both rewrites are surgical: bytes outside the touched regions or attribute
// values are copied through unchanged.
package markup

import (
	"bytes"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Region names an injection region in the entry document.
type Region string

const (
	RegionCSS Region = "css"
	RegionJS  Region = "js"
)

var endMarker = regexp.MustCompile(`<!--\s*endinject\s*-->`)

func startMarker(r Region) *regexp.Regexp {
	return regexp.MustCompile(`<!--\s*inject:` + regexp.QuoteMeta(string(r)) + `\s*-->`)
}

// RegionError reports a missing or unterminated injection region.
type RegionError struct {
	Region Region
	Reason string
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("inject:%s region %s", e.Region, e.Reason)
}

// Split sorts reference paths into the region each belongs to, preserving
// order. Paths with other extensions are ignored.
func Split(refs []string) map[Region][]string {
	out := map[Region][]string{RegionCSS: {}, RegionJS: {}}
	for _, r := range refs {
		switch strings.ToLower(path.Ext(r)) {
		case ".css":
			out[RegionCSS] = append(out[RegionCSS], r)
		case ".js":
			out[RegionJS] = append(out[RegionJS], r)
		}
	}
	return out
}

// Inject replaces the contents of the css and js regions of doc with tags for
// refs, in order. Each tag goes on its own line, indented like the region's
// start marker. Both regions must be present.
func Inject(doc []byte, refs []string) ([]byte, error) {
	split := Split(refs)
	out := doc
	for _, r := range []Region{RegionCSS, RegionJS} {
		var err error
		out, err = injectRegion(out, r, split[r])
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func injectRegion(doc []byte, r Region, refs []string) ([]byte, error) {
	start := startMarker(r).FindIndex(doc)
	if start == nil {
		return nil, &RegionError{Region: r, Reason: "not found"}
	}
	end := endMarker.FindIndex(doc[start[1]:])
	if end == nil {
		return nil, &RegionError{Region: r, Reason: "has no endinject marker"}
	}
	endStart := start[1] + end[0]

	indent := lineIndent(doc, start[0])

	var b bytes.Buffer
	b.Grow(len(doc) + len(refs)*64)
	b.Write(doc[:start[1]])
	for _, ref := range refs {
		b.WriteByte('\n')
		b.WriteString(indent)
		b.WriteString(tag(r, ref))
	}
	b.WriteByte('\n')
	b.WriteString(indent)
	b.Write(doc[endStart:])
	return b.Bytes(), nil
}

// lineIndent returns the whitespace before pos on its line, or "" if
// anything else precedes it.
func lineIndent(doc []byte, pos int) string {
	lineStart := bytes.LastIndexByte(doc[:pos], '\n') + 1
	prefix := doc[lineStart:pos]
	if len(bytes.TrimLeft(prefix, " \t")) != 0 {
		return ""
	}
	return string(prefix)
}

func tag(r Region, ref string) string {
	if r == RegionCSS {
		return `<link rel="stylesheet" href="` + ref + `">`
	}
	return `<script src="` + ref + `"></script>`
}
