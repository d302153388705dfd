package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/newthinker/quantsweep/internal/backtest"
	"github.com/newthinker/quantsweep/internal/sweep"
)

const (
	runsDir   = "runs"
	sweepsDir = "sweeps"
)

// Archive stores run results and sweep reports as indented JSON under
// runs/<id>/result.json and sweeps/<id>/report.json.
type Archive struct {
	store Storage
}

// New wraps a storage backend.
func New(store Storage) *Archive {
	return &Archive{store: store}
}

// RunPath returns the object path of a run result.
func RunPath(id string) string {
	return path.Join(runsDir, id, "result.json")
}

// SweepPath returns the object path of a sweep report.
func SweepPath(id string) string {
	return path.Join(sweepsDir, id, "report.json")
}

// SaveRun archives a run result and returns its path.
func (a *Archive) SaveRun(ctx context.Context, res *backtest.Result) (string, error) {
	if res == nil || res.ID == "" {
		return "", fmt.Errorf("archive: run result has no id")
	}
	p := RunPath(res.ID)
	return p, a.put(ctx, p, res)
}

// LoadRun reads back an archived run result.
func (a *Archive) LoadRun(ctx context.Context, id string) (*backtest.Result, error) {
	var res backtest.Result
	if err := a.get(ctx, RunPath(id), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SaveSweep archives a sweep report and returns its path.
func (a *Archive) SaveSweep(ctx context.Context, report *sweep.Report) (string, error) {
	if report == nil || report.ID == "" {
		return "", fmt.Errorf("archive: sweep report has no id")
	}
	p := SweepPath(report.ID)
	return p, a.put(ctx, p, report)
}

// LoadSweep reads back an archived sweep report.
func (a *Archive) LoadSweep(ctx context.Context, id string) (*sweep.Report, error) {
	var report sweep.Report
	if err := a.get(ctx, SweepPath(id), &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Runs lists the ids of archived runs.
func (a *Archive) Runs(ctx context.Context) ([]string, error) {
	return a.ids(ctx, runsDir, "result.json")
}

// Sweeps lists the ids of archived sweeps.
func (a *Archive) Sweeps(ctx context.Context) ([]string, error) {
	return a.ids(ctx, sweepsDir, "report.json")
}

func (a *Archive) put(ctx context.Context, p string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", p, err)
	}
	return a.store.Write(ctx, p, data)
}

func (a *Archive) get(ctx context.Context, p string, v any) error {
	data, err := a.store.Read(ctx, p)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", p, err)
	}
	return nil
}

func (a *Archive) ids(ctx context.Context, dir, file string) ([]string, error) {
	paths, err := a.store.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for _, p := range paths {
		parts := strings.Split(p, "/")
		if len(parts) == 3 && parts[0] == dir && parts[2] == file {
			ids = append(ids, parts[1])
		}
	}
	return ids, nil
}
