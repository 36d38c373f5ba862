package markup

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"ngbuild/internal/config"
)

// VersionSource resolves the installed version of a vendor package.
type VersionSource interface {
	Version(pkg string) (string, error)
}

// Substitution records one rewritten reference.
type Substitution struct {
	From string
	To   string
}

var placeholder = regexp.MustCompile(`\$\{\s*(version|filename|filenameMin)\s*\}`)

type cdnRule struct {
	mapping config.CdnMapping
	match   *regexp.Regexp
}

// CDN rewrites local vendor references to hosted copies.
type CDN struct {
	rules    []cdnRule
	versions VersionSource
}

// NewCDN compiles the substitution table. A reference matches an entry when
// it equals the entry's file, its ".min" variant, or a revisioned variant
// with a "-<hex>" suffix before the extension.
func NewCDN(table []config.CdnMapping, versions VersionSource) *CDN {
	rules := make([]cdnRule, 0, len(table))
	for _, m := range table {
		ext := path.Ext(m.File)
		stem := strings.TrimSuffix(m.File, ext)
		stem = strings.TrimSuffix(stem, ".min")
		expr := `^(?:\./|/)?` + regexp.QuoteMeta(stem) +
			`(?:-[0-9a-fA-F]{8,})?(?:\.min)?` + regexp.QuoteMeta(ext) + `$`
		rules = append(rules, cdnRule{mapping: m, match: regexp.MustCompile(expr)})
	}
	return &CDN{rules: rules, versions: versions}
}

// Substitute rewrites the src of script tags and the href of link tags that
// match a table entry. Everything else in doc is copied through unchanged.
func (c *CDN) Substitute(doc []byte) ([]byte, []Substitution, error) {
	z := html.NewTokenizer(bytes.NewReader(doc))
	var out bytes.Buffer
	out.Grow(len(doc))
	var subs []Substitution

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				break
			}
			return nil, nil, fmt.Errorf("tokenize: %w", z.Err())
		}
		// Raw is invalidated by TagName/TagAttr.
		raw := append([]byte(nil), z.Raw()...)
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			out.Write(raw)
			continue
		}

		name, hasAttr := z.TagName()
		attr := ""
		switch string(name) {
		case "script":
			attr = "src"
		case "link":
			attr = "href"
		}
		if attr == "" || !hasAttr {
			out.Write(raw)
			continue
		}

		val, ok := attrValue(z, attr)
		if !ok {
			out.Write(raw)
			continue
		}
		to, matched, err := c.resolve(val)
		if err != nil {
			return nil, nil, err
		}
		if !matched {
			out.Write(raw)
			continue
		}
		rewritten, ok := replaceAttr(raw, attr, val, to)
		if !ok {
			out.Write(raw)
			continue
		}
		out.Write(rewritten)
		subs = append(subs, Substitution{From: val, To: to})
	}
	return out.Bytes(), subs, nil
}

func (c *CDN) resolve(ref string) (string, bool, error) {
	for _, r := range c.rules {
		if !r.match.MatchString(ref) {
			continue
		}
		var verr error
		url := placeholder.ReplaceAllStringFunc(r.mapping.CDN, func(p string) string {
			switch placeholder.FindStringSubmatch(p)[1] {
			case "filename":
				return path.Base(r.mapping.File)
			case "filenameMin":
				return minName(path.Base(r.mapping.File))
			}
			v, err := c.versions.Version(r.mapping.Package)
			if err != nil {
				verr = err
				return p
			}
			return v
		})
		if verr != nil {
			return "", false, fmt.Errorf("cdn %s: %w", ref, verr)
		}
		return url, true, nil
	}
	return "", false, nil
}

func attrValue(z *html.Tokenizer, want string) (string, bool) {
	for {
		k, v, more := z.TagAttr()
		if string(k) == want {
			return string(v), true
		}
		if !more {
			return "", false
		}
	}
}

// attrStart matches the start of a src or href value: the attribute name on
// an attribute boundary, the equals sign and an optional opening quote.
var attrStart = map[string]*regexp.Regexp{
	"src":  regexp.MustCompile(`(?i)\ssrc\s*=\s*["']?`),
	"href": regexp.MustCompile(`(?i)\shref\s*=\s*["']?`),
}

// replaceAttr swaps the value of attr inside the raw tag text. Attributes
// whose names merely contain attr, such as data-src, are left alone.
func replaceAttr(raw []byte, attr, from, to string) ([]byte, bool) {
	re, ok := attrStart[attr]
	if !ok {
		return nil, false
	}
	for _, loc := range re.FindAllIndex(raw, -1) {
		at := loc[1]
		if !bytes.HasPrefix(raw[at:], []byte(from)) {
			continue
		}
		out := make([]byte, 0, len(raw)-len(from)+len(to))
		out = append(out, raw[:at]...)
		out = append(out, to...)
		out = append(out, raw[at+len(from):]...)
		return out, true
	}
	return nil, false
}

func minName(base string) string {
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if strings.HasSuffix(stem, ".min") {
		return base
	}
	return stem + ".min" + ext
}
