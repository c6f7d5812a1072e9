// Package output renders Domain resources for the vmux command line.
//
// The -o flag picks the renderer. Tables are for people reading a terminal
// and show one row per domain with its state, vCPU and memory sizing. YAML
// and JSON emit the full resource, spec and status, so the output of
// `vmux dominfo -o yaml` can be diffed or fed to another tool. Lists are
// wrapped in a DomainList object for JSON and written as a multi-document
// stream for YAML.
package output

import (
	"fmt"
	"strings"

	"github.com/jbweber/vmux/api/v1alpha1"
)

// Format names a renderer selectable with -o.
type Format string

const (
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
)

// formats is the -o vocabulary, in the order shown in help and errors.
var formats = []Format{FormatTable, FormatYAML, FormatJSON}

// Formatter renders domains described by the driver.
type Formatter interface {
	FormatDomain(d *v1alpha1.Domain) (string, error)

	// FormatDomainList renders domains in the order given. An empty list is
	// a "No domains found" line for tables, an empty YAML string, or a
	// DomainList with no items.
	FormatDomainList(doms []*v1alpha1.Domain) (string, error)
}

// Options holds the output flags shared by every subcommand.
type Options struct {
	Format    Format
	NoHeaders bool // --no-headers, table only
}

// NewFormatter returns the renderer for opts.Format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable:
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	}
	return nil, fmt.Errorf("unsupported output format %q (-o accepts %s)", opts.Format, FormatNames())
}

// ValidateFormat checks an -o value before any connection is opened.
// Matching is case-sensitive.
func ValidateFormat(format string) error {
	for _, f := range formats {
		if Format(format) == f {
			return nil
		}
	}
	return fmt.Errorf("invalid output format %q (-o accepts %s)", format, FormatNames())
}

// FormatNames returns the accepted -o values as a comma-separated list.
func FormatNames() string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
