package workout

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a planned workout from a YAML file and validates it.
func Load(path string) (Structure, error) {
	f, err := os.Open(path)
	if err != nil {
		return Structure{}, fmt.Errorf("opening workout file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a YAML workout definition:
//
//	name: 6x800
//	steps:
//	  - kind: warmup
//	    duration_s: 600
//	  - kind: work
//	    distance_m: 800
//	    pace_range: {lower: 390, upper: 420}
func Decode(r io.Reader) (Structure, error) {
	var w Structure
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&w); err != nil {
		return Structure{}, fmt.Errorf("parsing workout: %w", err)
	}
	if err := w.Validate(); err != nil {
		return Structure{}, fmt.Errorf("workout %q validation: %w", w.Name, err)
	}
	return w, nil
}

// Resolve loads ref as a file when it exists, otherwise looks it up in the
// built-in catalogue.
func Resolve(ref string) (Structure, error) {
	info, err := os.Stat(ref)
	if err == nil && !info.IsDir() {
		return Load(ref)
	}
	if w, ok := Builtin(ref); ok {
		return w, nil
	}
	if err == nil {
		err = fmt.Errorf("%s is a directory", ref)
	}
	return Structure{}, fmt.Errorf("workout %q is neither a built-in nor a readable file: %w", ref, err)
}
