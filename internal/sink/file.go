// Package sink publishes study snapshots outside the engine.
package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/GoSim-25-26J-441/study-core/pkg/models"
)

// FileSink rewrites <dir>/<study>.log with a table of every trial after each
// update. Files are replaced atomically so readers never see partial tables.
type FileSink struct {
	dir string
	mu  sync.Mutex
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Path returns the log file used for study.
func (s *FileSink) Path(study string) string {
	return filepath.Join(s.dir, safeName(study)+".log")
}

func (s *FileSink) Publish(_ context.Context, snap models.StudySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create sink dir: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "study: %s  direction: %s  running: %d  completed: %d\n",
		snap.Study, snap.Direction, snap.Running, snap.Completed)
	if snap.Best != nil && snap.Best.Value != nil {
		fmt.Fprintf(&b, "best: trial %d  value %s\n", snap.Best.ID, formatFloat(*snap.Best.Value))
	}
	b.WriteString(RenderTrials(snap.Trials))
	b.WriteString("\n")

	tmp, err := os.CreateTemp(s.dir, "."+safeName(snap.Study)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("write log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close log: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(snap.Study)); err != nil {
		return fmt.Errorf("replace log: %w", err)
	}
	return nil
}

// RenderTrials formats trials as a text table with one params_<name> column
// per parameter seen in any trial.
func RenderTrials(trials []models.TrialRecord) string {
	names := paramNames(trials)

	headers := []string{"number"}
	for _, n := range names {
		headers = append(headers, "params_"+n)
	}
	headers = append(headers, "value", "state")

	rows := make([][]string, 0, len(trials))
	for _, t := range trials {
		row := []string{strconv.FormatInt(t.ID, 10)}
		for _, n := range names {
			v, ok := t.Params[n]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, formatValue(v))
		}
		value := ""
		if t.Value != nil {
			value = formatFloat(*t.Value)
		}
		row = append(row, value, string(t.State))
		rows = append(rows, row)
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		String()
}

func paramNames(trials []models.TrialRecord) []string {
	seen := make(map[string]bool)
	var names []string
	for _, t := range trials {
		for n := range t.Params {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case float64:
		return formatFloat(x)
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 8, 64)
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
