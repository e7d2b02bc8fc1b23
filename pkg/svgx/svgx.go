// Package svgx finds and checks SVG blocks inside model output.
//
// Everything here is a pure function of its input: extracting twice from the
// same buffer yields the same result, and extracting from a longer buffer
// starts over from scratch. Partial spans visible while a response is still
// streaming simply disappear once the block is completed.
package svgx

import (
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// blockPattern matches the shortest <svg ...>...</svg> span. (?s) lets '.'
// cross newlines; (?i) makes the tag name case-insensitive.
var blockPattern = regexp.MustCompile(`(?is)<svg\b[^>]*>.*?</svg\s*>`)

// Candidates returns the raw, non-overlapping <svg>...</svg> spans in buf in
// left-to-right order. Spans are not checked for well-formedness.
func Candidates(buf string) []string {
	return blockPattern.FindAllString(buf, -1)
}

// Extract returns the candidates in buf that pass Validate.
func Extract(buf string) []string {
	var out []string
	for _, c := range Candidates(buf) {
		if Validate(c) {
			out = append(out, c)
		}
	}
	return out
}

// Validate reports whether fragment is a single well-formed XML element
// named svg, optionally surrounded by whitespace, comments or processing
// instructions.
func Validate(fragment string) bool {
	return validate(fragment) == nil
}

var (
	errNoRoot    = errors.New("svgx: no root element")
	errNotSVG    = errors.New("svgx: root element is not svg")
	errTrailing  = errors.New("svgx: content after root element")
	errUnclosed  = errors.New("svgx: unclosed element")
	errStrayText = errors.New("svgx: text outside root element")
)

func validate(fragment string) error {
	dec := xml.NewDecoder(strings.NewReader(fragment))
	dec.Strict = true

	depth := 0
	seenRoot := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				if seenRoot {
					return errTrailing
				}
				if !strings.EqualFold(t.Name.Local, "svg") {
					return errNotSVG
				}
				seenRoot = true
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && len(strings.TrimSpace(string(t))) > 0 {
				return errStrayText
			}
		}
	}
	if !seenRoot {
		return errNoRoot
	}
	if depth != 0 {
		return errUnclosed
	}
	return nil
}

// Size is a declared width/height pair.
type Size struct {
	Width  float64
	Height float64
}

// Matches reports whether both dimensions equal target.
func (s Size) Matches(target int) bool {
	return s.Width == float64(target) && s.Height == float64(target)
}

func (s Size) String() string {
	return strconv.FormatFloat(s.Width, 'f', -1, 64) + "x" + strconv.FormatFloat(s.Height, 'f', -1, 64)
}

var (
	openTagPattern = regexp.MustCompile(`(?is)^\s*<svg\b([^>]*)>`)
	attrPattern    = regexp.MustCompile(`(?is)([a-z_:][-a-z0-9_:.]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
)

// DeclaredSize reads the size declared on the root svg tag. The viewBox
// attribute wins; its last two numbers are width and height. Without a
// usable viewBox, numeric width and height attributes are used. ok is false
// when neither is present or parseable.
func DeclaredSize(fragment string) (size Size, ok bool) {
	attrs := rootAttrs(fragment)
	if attrs == nil {
		return Size{}, false
	}
	if vb, found := attrs["viewbox"]; found {
		f := strings.FieldsFunc(vb, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' || r == '\n' || r == '\r' })
		if len(f) == 4 {
			w, errW := strconv.ParseFloat(f[2], 64)
			h, errH := strconv.ParseFloat(f[3], 64)
			if errW == nil && errH == nil {
				return Size{Width: w, Height: h}, true
			}
		}
	}
	w, okW := parseLength(attrs["width"])
	h, okH := parseLength(attrs["height"])
	if okW && okH {
		return Size{Width: w, Height: h}, true
	}
	return Size{}, false
}

func rootAttrs(fragment string) map[string]string {
	m := openTagPattern.FindStringSubmatch(fragment)
	if m == nil {
		return nil
	}
	attrs := make(map[string]string)
	for _, a := range attrPattern.FindAllStringSubmatch(m[1], -1) {
		name := strings.ToLower(a[1])
		if _, dup := attrs[name]; dup {
			continue
		}
		v := a[2]
		if v == "" {
			v = a[3]
		}
		attrs[name] = strings.TrimSpace(v)
	}
	return attrs
}

func parseLength(v string) (float64, bool) {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return f, true
}
