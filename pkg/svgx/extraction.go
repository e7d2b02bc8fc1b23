package svgx

// Artifact is a validated SVG block.
type Artifact struct {
	// Index is the position among the valid blocks of the buffer.
	Index int    `json:"index"`
	SVG   string `json:"svg"`

	Size    Size `json:"size,omitzero"`
	HasSize bool `json:"has_size,omitzero"`
}

// SizeMismatch returns true when the artifact declares a size that differs
// from target. Artifacts without a declared size never mismatch.
func (a Artifact) SizeMismatch(target int) bool {
	return a.HasSize && !a.Size.Matches(target)
}

// Dropped is a candidate that failed Validate.
type Dropped struct {
	Fragment string
	Reason   error
}

// Extraction is the full derived view of one buffer.
type Extraction struct {
	Candidates []string
	Valid      []Artifact
	Dropped    []Dropped
}

// Parse runs Candidates, Validate and DeclaredSize over buf.
func Parse(buf string) Extraction {
	var ex Extraction
	ex.Candidates = Candidates(buf)
	for _, c := range ex.Candidates {
		if err := validate(c); err != nil {
			ex.Dropped = append(ex.Dropped, Dropped{Fragment: c, Reason: err})
			continue
		}
		a := Artifact{Index: len(ex.Valid), SVG: c}
		a.Size, a.HasSize = DeclaredSize(c)
		ex.Valid = append(ex.Valid, a)
	}
	return ex
}

// Artifacts is Parse(buf).Valid.
func Artifacts(buf string) []Artifact {
	return Parse(buf).Valid
}
