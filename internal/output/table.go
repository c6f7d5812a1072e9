package output

import (
	"bytes"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/jbweber/vmux/api/v1alpha1"
)

// TableFormatter formats resources as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatDomain formats a single Domain as a table row.
func (f *TableFormatter) FormatDomain(d *v1alpha1.Domain) (string, error) {
	return f.FormatDomainList([]*v1alpha1.Domain{d})
}

// FormatDomainList formats a list of Domains as a table.
func (f *TableFormatter) FormatDomainList(doms []*v1alpha1.Domain) (string, error) {
	if len(doms) == 0 {
		return "No domains found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "ID\tNAME\tSTATE\tVCPUS\tMEMORY\tAUTOSTART\tPERSISTENT")
	}

	for _, d := range doms {
		id := "-"
		if d.IsActive() {
			id = strconv.Itoa(d.Status.ID)
		}
		state := string(d.Status.State)
		if state == "" {
			state = "-"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			id, d.Name, state, d.Spec.VCPUs, formatMemory(d.Spec.MemoryKiB),
			formatAutostart(d.Spec.Autostart), formatCondition(d.GetCondition(v1alpha1.ConditionPersistent)))
	}

	_ = w.Flush()
	return buf.String(), nil
}

// formatMemory renders a KiB count in the largest binary unit that keeps
// at least one whole unit. Examples: "512 KiB", "256 MiB", "1.5 GiB".
func formatMemory(kib uint64) string {
	switch {
	case kib == 0:
		return "-"
	case kib >= 1<<20:
		return trimUnit(float64(kib)/(1<<20), "GiB")
	case kib >= 1<<10:
		return trimUnit(float64(kib)/(1<<10), "MiB")
	default:
		return fmt.Sprintf("%d KiB", kib)
	}
}

func trimUnit(v float64, unit string) string {
	if v == float64(uint64(v)) {
		return fmt.Sprintf("%d %s", uint64(v), unit)
	}
	return fmt.Sprintf("%.1f %s", v, unit)
}

func formatAutostart(v *bool) string {
	switch {
	case v == nil:
		return "-"
	case *v:
		return "enable"
	default:
		return "disable"
	}
}

func formatCondition(c *v1alpha1.Condition) string {
	switch {
	case c == nil:
		return "-"
	case c.Status == v1alpha1.ConditionTrue:
		return "yes"
	case c.Status == v1alpha1.ConditionFalse:
		return "no"
	default:
		return "unknown"
	}
}
