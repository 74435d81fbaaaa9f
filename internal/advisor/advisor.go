// Package advisor derives process improvement hints from audit
// trails. It is best-effort analytics over completed instances and
// carries no integrity guarantees of its own.
package advisor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/procesio/procesio/internal/audit"
	"github.com/procesio/procesio/internal/observability"
	"github.com/procesio/procesio/internal/store"
	"github.com/procesio/procesio/model"
)

// Options tune report generation.
type Options struct {
	// BottleneckFactor flags a step whose observed mean exceeds its
	// expected duration by this multiple. Defaults to 1.5.
	BottleneckFactor float64

	// SampleLimit caps how many completed instances feed one report.
	// Defaults to 200.
	SampleLimit int
}

// StepStat is the aggregate timing of one definition step across the
// sampled instances.
type StepStat struct {
	StepNumber      int     `json:"step_number"`
	Name            string  `json:"name"`
	Samples         int     `json:"samples"`
	MeanSeconds     float64 `json:"mean_seconds"`
	VarianceSeconds float64 `json:"variance_seconds"`
	StdDevSeconds   float64 `json:"std_dev_seconds"`
	ExpectedSeconds float64 `json:"expected_seconds,omitempty"`
	Bottleneck      bool    `json:"bottleneck"`
}

// Suggestion is one ranked improvement hint.
type Suggestion struct {
	StepNumber int     `json:"step_number"`
	Severity   float64 `json:"severity"`
	Message    string  `json:"message"`
}

// Report is the optimization summary for one definition version.
type Report struct {
	DefinitionID      string       `json:"definition_id"`
	DefinitionVersion int          `json:"definition_version"`
	TenantID          string       `json:"tenant_id"`
	GeneratedAt       time.Time    `json:"generated_at"`
	SampleCount       int          `json:"sample_count"`
	Steps             []StepStat   `json:"steps,omitempty"`
	Suggestions       []Suggestion `json:"suggestions,omitempty"`
}

// Advisor builds optimization reports from instance trails.
type Advisor struct {
	definitions store.DefinitionStore
	instances   store.InstanceStore
	recorder    *audit.Recorder
	opts        Options
}

func NewAdvisor(definitions store.DefinitionStore, instances store.InstanceStore, recorder *audit.Recorder, opts Options) *Advisor {
	if opts.BottleneckFactor <= 0 {
		opts.BottleneckFactor = 1.5
	}
	if opts.SampleLimit <= 0 {
		opts.SampleLimit = 200
	}
	return &Advisor{
		definitions: definitions,
		instances:   instances,
		recorder:    recorder,
		opts:        opts,
	}
}

// Report aggregates per-step durations across the definition's
// completed instances. A definition with no completed instances yields
// an empty report, not an error.
func (a *Advisor) Report(ctx context.Context, tenantID, definitionID string) (Report, error) {
	def, err := a.definitions.GetDefinition(ctx, tenantID, definitionID)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		DefinitionID:      def.ID,
		DefinitionVersion: def.Version,
		TenantID:          tenantID,
		GeneratedAt:       time.Now().UTC(),
	}

	completed, err := a.instances.ListInstances(ctx, tenantID, store.InstanceFilters{
		DefinitionID: definitionID,
		Status:       model.InstanceStatusCompleted,
		Limit:        a.opts.SampleLimit,
	})
	if err != nil {
		return Report{}, err
	}
	if len(completed) == 0 {
		return report, nil
	}

	// 1. Collect per-step duration samples from each trail. A trail
	// that fails to replay degrades the sample set, never the report.
	samples := make(map[int][]time.Duration)
	for _, inst := range completed {
		replay, err := a.recorder.ReplayInstance(ctx, tenantID, inst.ID)
		if err != nil {
			observability.LoggerFrom(ctx).Warn("trail replay failed, instance skipped",
				zap.String("instance_id", inst.ID),
				zap.Error(err),
			)
			continue
		}
		report.SampleCount++

		entered := replay.StartedAt
		for _, tr := range replay.Steps {
			if tr.At.After(entered) {
				samples[tr.FromStep] = append(samples[tr.FromStep], tr.At.Sub(entered))
			}
			entered = tr.At
		}
	}

	// 2. Aggregate against the definition's step list so untouched
	// steps still appear with zero samples.
	for _, step := range def.Steps {
		stat := StepStat{
			StepNumber:      step.Number,
			Name:            step.Name,
			ExpectedSeconds: step.ExpectedDuration.Seconds(),
		}
		if durations := samples[step.Number]; len(durations) > 0 {
			stat.Samples = len(durations)
			stat.MeanSeconds, stat.VarianceSeconds = meanVariance(durations)
			stat.StdDevSeconds = math.Sqrt(stat.VarianceSeconds)
			if stat.ExpectedSeconds > 0 {
				stat.Bottleneck = stat.MeanSeconds > stat.ExpectedSeconds*a.opts.BottleneckFactor
			}
		}
		report.Steps = append(report.Steps, stat)
	}

	// 3. Rank suggestions by how far each step overshoots its estimate.
	report.Suggestions = a.suggest(report.Steps)
	return report, nil
}

func (a *Advisor) suggest(steps []StepStat) []Suggestion {
	var out []Suggestion
	for _, stat := range steps {
		if stat.Samples == 0 {
			continue
		}
		if stat.Bottleneck {
			out = append(out, Suggestion{
				StepNumber: stat.StepNumber,
				Severity:   stat.MeanSeconds / stat.ExpectedSeconds,
				Message: fmt.Sprintf(
					"step %d (%s) averages %s against an estimate of %s; consider splitting the step or adding assignees",
					stat.StepNumber, stat.Name,
					roundSeconds(stat.MeanSeconds), roundSeconds(stat.ExpectedSeconds),
				),
			})
			continue
		}
		if stat.MeanSeconds > 0 && stat.StdDevSeconds > stat.MeanSeconds {
			out = append(out, Suggestion{
				StepNumber: stat.StepNumber,
				Severity:   stat.StdDevSeconds / stat.MeanSeconds,
				Message: fmt.Sprintf(
					"step %d (%s) has highly variable duration (stddev %s over a mean of %s); its workload may need clearer sizing",
					stat.StepNumber, stat.Name,
					roundSeconds(stat.StdDevSeconds), roundSeconds(stat.MeanSeconds),
				),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Severity > out[j].Severity })
	return out
}

func meanVariance(durations []time.Duration) (mean, variance float64) {
	for _, d := range durations {
		mean += d.Seconds()
	}
	mean /= float64(len(durations))
	for _, d := range durations {
		diff := d.Seconds() - mean
		variance += diff * diff
	}
	variance /= float64(len(durations))
	return mean, variance
}

func roundSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Second)
}
