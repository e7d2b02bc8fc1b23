package svgx

import (
	"slices"
	"strings"
	"testing"
)

const circle = `<svg viewBox='0 0 64 64'><circle r='10'/></svg>`

func TestCandidates(t *testing.T) {
	tests := []struct {
		name string
		buf  string
		want int
	}{
		{"empty", "", 0},
		{"prose only", "no graphics here", 0},
		{"single", circle, 1},
		{"surrounded by prose", "Here you go:\n" + circle + "\nEnjoy!", 1},
		{"two blocks", circle + " and " + circle, 2},
		{"uppercase tag", `<SVG viewBox="0 0 8 8"><rect/></SVG>`, 1},
		{"unterminated", `<svg viewBox="0 0 8 8"><rect/>`, 0},
		{"svgfoo is not svg", `<svgfoo></svgfoo>`, 0},
		{"multiline", "<svg\n  width=\"64\">\n<path d=\"M0 0\"/>\n</svg>", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Candidates(tt.buf); len(got) != tt.want {
				t.Fatalf("Candidates() = %d blocks %q, want %d", len(got), got, tt.want)
			}
		})
	}
}

func TestCandidatesMinimalSpan(t *testing.T) {
	a := `<svg id="a"><rect/></svg>`
	b := `<svg id="b"><circle/></svg>`
	got := Candidates("x " + a + " y " + b + " z")
	if !slices.Equal(got, []string{a, b}) {
		t.Fatalf("Candidates() = %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		frag string
		want bool
	}{
		{"simple", circle, true},
		{"nested groups", `<svg><g><g><rect/></g></g></svg>`, true},
		{"namespaced", `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"><path d="M0 0L10 10"/></svg>`, true},
		{"with comment", `<svg><!-- shape --><rect/></svg>`, true},
		{"unclosed child", `<svg><g><rect/></svg>`, false},
		{"mismatched tag", `<svg><g></h></svg>`, false},
		{"bad attribute", `<svg width=64><rect/></svg>`, false},
		{"unknown entity", `<svg><text>&nbsp;</text></svg>`, false},
		{"not svg", `<div></div>`, false},
		{"two roots", `<svg></svg><svg></svg>`, false},
		{"empty", ``, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Validate(tt.frag); got != tt.want {
				t.Fatalf("Validate(%q) = %v, want %v", tt.frag, got, tt.want)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	bad := `<svg><g></svg>`
	good2 := `<svg viewBox="0 0 32 32"><rect width="4" height="4"/></svg>`

	if got := Extract("nothing to see"); len(got) != 0 {
		t.Fatalf("Extract(prose) = %q, want empty", got)
	}

	buf := "first " + circle + " broken " + bad + " second " + good2
	got := Extract(buf)
	if !slices.Equal(got, []string{circle, good2}) {
		t.Fatalf("Extract() = %q", got)
	}

	// Same input, same output.
	if again := Extract(buf); !slices.Equal(got, again) {
		t.Fatalf("Extract not idempotent: %q vs %q", got, again)
	}
}

func TestExtractNBlocksInOrder(t *testing.T) {
	var blocks []string
	var sb strings.Builder
	for i := range 5 {
		b := `<svg id="b` + string(rune('0'+i)) + `"><rect/></svg>`
		blocks = append(blocks, b)
		sb.WriteString("text ")
		sb.WriteString(b)
	}
	got := Extract(sb.String())
	if !slices.Equal(got, blocks) {
		t.Fatalf("Extract() = %q, want %q", got, blocks)
	}
}

func TestExtractStreamingPrefixes(t *testing.T) {
	full := "Sure! " + circle + " done"
	// No prefix shorter than the closed block may yield a block.
	end := strings.Index(full, "</svg>") + len("</svg>")
	for i := 0; i < end; i++ {
		if got := Extract(full[:i]); len(got) != 0 {
			t.Fatalf("Extract(prefix %d) = %q, want empty", i, got)
		}
	}
	if got := Extract(full[:end]); len(got) != 1 {
		t.Fatalf("Extract(complete) = %q", got)
	}
}

func TestDeclaredSize(t *testing.T) {
	tests := []struct {
		name   string
		frag   string
		want   Size
		wantOK bool
	}{
		{"viewBox single quotes", circle, Size{64, 64}, true},
		{"viewBox commas", `<svg viewBox="0,0,32,16"></svg>`, Size{32, 16}, true},
		{"viewBox case", `<svg VIEWBOX="0 0 24 24"></svg>`, Size{24, 24}, true},
		{"width height px", `<svg width="48px" height="48"></svg>`, Size{48, 48}, true},
		{"viewBox wins", `<svg width="10" height="10" viewBox="0 0 64 64"></svg>`, Size{64, 64}, true},
		{"bad viewBox falls back", `<svg viewBox="a b c d" width="8" height="9"></svg>`, Size{8, 9}, true},
		{"percent width", `<svg width="100%" height="100%"></svg>`, Size{}, false},
		{"absent", `<svg><rect width="5" height="5"/></svg>`, Size{}, false},
		{"not svg", `<g viewBox="0 0 1 1"></g>`, Size{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DeclaredSize(tt.frag)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("DeclaredSize() = %v, %v; want %v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParse(t *testing.T) {
	buf := circle + `<svg><g></svg>` + `<svg viewBox="0 0 32 32"><rect/></svg>` + `<svg><rect/></svg>`
	ex := Parse(buf)
	if len(ex.Candidates) != 4 {
		t.Fatalf("Candidates = %d, want 4", len(ex.Candidates))
	}
	if len(ex.Dropped) != 1 || ex.Dropped[0].Reason == nil {
		t.Fatalf("Dropped = %+v", ex.Dropped)
	}
	if len(ex.Valid) != 3 {
		t.Fatalf("Valid = %d, want 3", len(ex.Valid))
	}
	for i, a := range ex.Valid {
		if a.Index != i {
			t.Fatalf("Valid[%d].Index = %d", i, a.Index)
		}
	}
	if ex.Valid[0].SizeMismatch(64) {
		t.Fatal("64x64 block should match 64")
	}
	if !ex.Valid[1].SizeMismatch(64) {
		t.Fatal("32x32 block should mismatch 64")
	}
	if ex.Valid[2].HasSize || ex.Valid[2].SizeMismatch(64) {
		t.Fatal("block without declared size must not mismatch")
	}
}
