package manifest

import (
	"fmt"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// ParseCUE compiles a single CUE file and extracts its manifest.
func ParseCUE(filename string, data []byte) (*Manifest, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compiling CUE: %w", err)
	}
	return fromValue(value)
}

// LoadCUEDir loads the CUE package in dir and extracts its manifest.
func LoadCUEDir(dir string) (*Manifest, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", err)
	}
	m, err := fromValue(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dir, err)
	}
	m.Source = dir
	return m, nil
}

func fromValue(value cue.Value) (*Manifest, error) {
	entities := value.LookupPath(cue.ParsePath("entities"))
	if !entities.Exists() {
		return nil, ErrEmpty
	}
	if err := entities.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("entities must be concrete: %w", err)
	}

	var m Manifest
	if err := entities.Decode(&m.Entities); err != nil {
		return nil, fmt.Errorf("decoding entities: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
