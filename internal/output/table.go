package output

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	units "github.com/docker/go-units"

	"github.com/jbweber/anvil/internal/machine"
	"github.com/jbweber/anvil/internal/storage"
)

// TableFormatter formats anvil objects as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool

	// now is stubbed in tests.
	now func() time.Time
}

func (f *TableFormatter) since(t time.Time) time.Duration {
	now := time.Now
	if f.now != nil {
		now = f.now
	}
	return now().Sub(t)
}

// FormatResource formats a single resource as a table row.
func (f *TableFormatter) FormatResource(r *Resource) (string, error) {
	return f.FormatResourceList([]*Resource{r})
}

// FormatResourceList formats a list of resources as a table.
func (f *TableFormatter) FormatResourceList(rs []*Resource) (string, error) {
	if len(rs) == 0 {
		return "No resources found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tKIND\tID\tPARENT\tAGE")
	}

	for _, r := range rs {
		age := "-"
		if !r.Created.IsZero() {
			age = formatAge(f.since(r.Created))
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.Name, shortKind(r.Kind), r.ID, orDash(r.Parent), age)
	}

	_ = w.Flush()
	return buf.String(), nil
}

// FormatPlan formats the steps of a run, then its exports.
func (f *TableFormatter) FormatPlan(p *Plan) (string, error) {
	if len(p.Steps) == 0 && len(p.Exports) == 0 {
		return "No changes\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "OP\tNAME\tKIND\tPARENT\tCHANGED")
	}
	for _, s := range p.Steps {
		op := s.Op
		if s.Pending {
			op += " (pending)"
		}
		changed := "-"
		if len(s.Fields) > 0 {
			changed = strings.Join(s.Fields, ",")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			op, s.Name, shortKind(s.Kind), orDash(s.Parent), changed)
	}
	_ = w.Flush()

	if len(p.Exports) > 0 {
		buf.WriteString("\nOutputs:\n")
		w = tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		names := make([]string, 0, len(p.Exports))
		for name := range p.Exports {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			_, _ = fmt.Fprintf(w, "  %s\t%s\n", name, firstLine(p.Exports[name]))
		}
		_ = w.Flush()
	}
	return buf.String(), nil
}

// FormatPools formats storage pools as a table.
func (f *TableFormatter) FormatPools(pools []storage.PoolInfo) (string, error) {
	if len(pools) == 0 {
		return "No pools found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tTYPE\tSTATE\tCAPACITY\tAVAILABLE\tPATH")
	}
	for _, p := range pools {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Name, p.Type, p.State,
			units.BytesSize(float64(p.Capacity)),
			units.BytesSize(float64(p.Available)),
			orDash(p.Path))
	}

	_ = w.Flush()
	return buf.String(), nil
}

// FormatMachine formats a machine spec as a table row.
func (f *TableFormatter) FormatMachine(spec *machine.Spec) (string, error) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tADDRESS\tVCPUs\tMEMORY\tDISK\tDEVICE")
	}
	_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
		spec.Name, spec.Address, spec.CPUCount,
		units.BytesSize(float64(spec.RAMMiB)*units.MiB),
		units.BytesSize(float64(spec.DiskSizeGiB)*units.GiB),
		spec.DevicePath())

	_ = w.Flush()
	return buf.String(), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// firstLine keeps table rows on one line for multi-line values such as
// kubeconfigs.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

// formatAge formats a duration as a human-readable age string.
// Examples: "5s", "2m", "3h", "4d", "2w", "1y"
func formatAge(d time.Duration) string {
	if d < 0 {
		return "unknown"
	}

	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}

	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}

	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}

	days := hours / 24
	if days < 7 {
		return fmt.Sprintf("%dd", days)
	}

	weeks := days / 7
	if weeks < 8 {
		return fmt.Sprintf("%dw", weeks)
	}

	years := days / 365
	if years > 0 {
		return fmt.Sprintf("%dy", years)
	}
	return fmt.Sprintf("%dd", days)
}
