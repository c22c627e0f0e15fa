package protocol

import (
	"errors"
	"fmt"
	"io/fs"

	"apiprobe/pkg/logging"

	"gopkg.in/yaml.v3"
)

// DescriptorFile is the resource path of the optional protocol descriptor file.
const DescriptorFile = "config/protocols.yml"

// Alias maps a protocol name onto a registered driver.
type Alias struct {
	Protocol string `yaml:"protocol"`
	Driver   string `yaml:"driver"`
}

type descriptorDocument struct {
	Protocols []Alias `yaml:"protocols"`
}

// ReadDescriptorFile reads the alias declarations from DescriptorFile.
// A missing file yields no aliases.
func ReadDescriptorFile(fsys fs.FS) ([]Alias, error) {
	data, err := fs.ReadFile(fsys, DescriptorFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", DescriptorFile, err)
	}

	var doc descriptorDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", DescriptorFile, err)
	}

	for i, a := range doc.Protocols {
		if a.Protocol == "" || a.Driver == "" {
			return nil, fmt.Errorf("%s: entry %d needs both protocol and driver", DescriptorFile, i)
		}
	}
	return doc.Protocols, nil
}

// ApplyDescriptorFile registers the aliases declared in fsys.
func (r *Registry) ApplyDescriptorFile(fsys fs.FS) error {
	aliases, err := ReadDescriptorFile(fsys)
	if err != nil {
		return err
	}
	for _, a := range aliases {
		if err := r.Alias(a.Protocol, a.Driver); err != nil {
			return fmt.Errorf("%s: %w", DescriptorFile, err)
		}
	}
	if len(aliases) > 0 {
		logging.Debug("registry", "Applied %d protocol aliases from %s", len(aliases), DescriptorFile)
	}
	return nil
}
