package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/vmux/api/v1alpha1"
)

// YAMLFormatter formats resources as YAML.
type YAMLFormatter struct{}

// FormatDomain formats a single Domain as YAML.
func (f *YAMLFormatter) FormatDomain(d *v1alpha1.Domain) (string, error) {
	v1alpha1.SetDefaultAPIVersion(d)

	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain to YAML: %w", err)
	}
	return string(data), nil
}

// FormatDomainList formats a list of Domains as a YAML stream, one
// document per domain.
func (f *YAMLFormatter) FormatDomainList(doms []*v1alpha1.Domain) (string, error) {
	var buf bytes.Buffer
	for i, d := range doms {
		v1alpha1.SetDefaultAPIVersion(d)

		data, err := yaml.Marshal(d)
		if err != nil {
			return "", fmt.Errorf("failed to marshal domain %s to YAML: %w", d.Name, err)
		}
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}
	return buf.String(), nil
}
