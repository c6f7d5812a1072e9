package output

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jbweber/vmux/api/v1alpha1"
)

// JSONFormatter formats resources as JSON.
type JSONFormatter struct{}

// FormatDomain formats a single Domain as JSON.
func (f *JSONFormatter) FormatDomain(d *v1alpha1.Domain) (string, error) {
	v1alpha1.SetDefaultAPIVersion(d)

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// FormatDomainList formats a list of Domains as a List object:
//
//	{
//	  "apiVersion": "vmux.cofront.xyz/v1alpha1",
//	  "kind": "DomainList",
//	  "items": [...]
//	}
func (f *JSONFormatter) FormatDomainList(doms []*v1alpha1.Domain) (string, error) {
	for _, d := range doms {
		v1alpha1.SetDefaultAPIVersion(d)
	}
	if doms == nil {
		doms = []*v1alpha1.Domain{}
	}

	wrapper := map[string]interface{}{
		"apiVersion": v1alpha1.GroupName + "/" + v1alpha1.Version,
		"kind":       v1alpha1.DomainListKind,
		"items":      doms,
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(wrapper); err != nil {
		return "", fmt.Errorf("failed to marshal domain list to JSON: %w", err)
	}
	return buf.String(), nil
}
