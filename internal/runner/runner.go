// Package runner drives interaction strategies against a live page: bounded
// rounds of script evaluation or clicking, stopping early once the page
// content stops changing.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"webtext/internal/interaction"
	"webtext/internal/logger"
)

var (
	// ErrScriptEvaluation wraps a failed page-side script.
	ErrScriptEvaluation = errors.New("script evaluation failed")
	// ErrSelectorNotFound marks a click round where no selector matched a visible element.
	ErrSelectorNotFound = errors.New("no visible element matched")
)

const (
	DefaultSettle      = time.Second
	DefaultPassiveWait = 3 * time.Second
)

// Page is what the runner needs from a browser page.
type Page interface {
	// Evaluate runs a function body in the page and decodes its return value into out.
	Evaluate(ctx context.Context, script string, out any) error
	// ClickVisible clicks visible elements matching selectors and returns how many were clicked.
	ClickVisible(ctx context.Context, selectors []string) (int, error)
	// ContentLength measures the rendered body.
	ContentLength(ctx context.Context) (int, error)
}

// PhaseReport describes one phase of the power sequence.
type PhaseReport struct {
	Name        string        `json:"name"`
	Interaction string        `json:"interaction,omitempty"`
	Rounds      int           `json:"rounds"`
	Converged   bool          `json:"converged"`
	Errors      []string      `json:"errors,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Report is the outcome of running a strategy.
type Report struct {
	Strategy  string        `json:"strategy"`
	Rounds    int           `json:"rounds"`
	Converged bool          `json:"converged"`
	Errors    []string      `json:"errors,omitempty"`
	Phases    []PhaseReport `json:"phases,omitempty"`
}

// Runner executes interactions. The zero value is not usable; call New.
type Runner struct {
	Settle      time.Duration
	PassiveWait time.Duration
	Logger      logger.Interface

	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithSettle sets the wait between acting and re-measuring the page.
func WithSettle(d time.Duration) Option {
	return func(r *Runner) { r.Settle = d }
}

// WithPassiveWait sets the length of the power sequence's wait phase.
func WithPassiveWait(d time.Duration) Option {
	return func(r *Runner) { r.PassiveWait = d }
}

// WithLogger sets the logger.
func WithLogger(l logger.Interface) Option {
	return func(r *Runner) { r.Logger = l }
}

func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) { r.sleep = fn }
}

// New returns a Runner with default timings.
func New(opts ...Option) *Runner {
	r := &Runner{
		Settle:      DefaultSettle,
		PassiveWait: DefaultPassiveWait,
		Logger:      logger.NewNoOp(),
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Logger == nil {
		r.Logger = logger.NewNoOp()
	}
	return r
}

// Run executes cfg for at most maxRounds rounds (cfg's own bound when
// maxRounds <= 0). Each round measures the page, acts, waits Settle and
// measures again; an unchanged measurement ends the loop. Errors never
// abort the loop early, they are recorded in the report.
func (r *Runner) Run(ctx context.Context, page Page, cfg interaction.Config, maxRounds int) Report {
	if maxRounds <= 0 {
		maxRounds = cfg.Rounds()
	}
	log := r.Logger.With("interaction", cfg.Name)
	report := Report{Strategy: cfg.Name}

	for round := 1; round <= maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, err.Error())
			log.Warn("interaction cancelled", "round", round, "error", err)
			break
		}
		report.Rounds = round

		before, beforeErr := page.ContentLength(ctx)

		if cfg.Script != "" {
			var out any
			if err := page.Evaluate(ctx, cfg.Script, &out); err != nil {
				err = fmt.Errorf("%w: round %d: %w", ErrScriptEvaluation, round, err)
				report.Errors = append(report.Errors, err.Error())
				log.Warn("interaction round failed", "round", round, "error", err)
				continue
			}
			log.Debug("script evaluated", "round", round, "result", out)
		} else {
			clicked, err := page.ClickVisible(ctx, cfg.Selectors)
			if err != nil {
				err = fmt.Errorf("click round %d: %w", round, err)
				report.Errors = append(report.Errors, err.Error())
				log.Warn("interaction round failed", "round", round, "error", err)
				continue
			}
			if clicked == 0 {
				log.Debug("interaction converged", "round", round, "reason", ErrSelectorNotFound)
				report.Converged = true
				break
			}
			log.Debug("elements clicked", "round", round, "clicked", clicked)
		}

		if err := r.sleep(ctx, r.Settle); err != nil {
			report.Errors = append(report.Errors, err.Error())
			break
		}

		after, afterErr := page.ContentLength(ctx)
		if beforeErr != nil || afterErr != nil {
			log.Debug("content length unavailable, treating as unchanged", "round", round)
			report.Converged = true
			break
		}
		log.Debug("content measured", "round", round, "before", before, "after", after)
		if after == before {
			report.Converged = true
			break
		}
	}

	log.Info("interaction finished", "rounds", report.Rounds, "converged", report.Converged, "errors", len(report.Errors))
	return report
}

// Power phase names, in execution order.
const (
	PhaseExpand      = "expand"
	PhaseLoadMore    = "load_more"
	PhaseWait        = "wait"
	PhaseExpandAgain = "expand_again"
)

// RunPower runs expand_buttons, load_more, a passive wait and expand_buttons
// again. A failing phase is recorded and the next phase still runs.
func (r *Runner) RunPower(ctx context.Context, page Page, catalog *interaction.Catalog) Report {
	report := Report{Strategy: interaction.PowerName, Converged: true}

	phases := []struct {
		name        string
		interaction string
	}{
		{PhaseExpand, "expand_buttons"},
		{PhaseLoadMore, "load_more"},
		{PhaseWait, ""},
		{PhaseExpandAgain, "expand_buttons"},
	}

	for _, p := range phases {
		start := time.Now()
		phase := PhaseReport{Name: p.name, Interaction: p.interaction}
		r.Logger.Info("power phase started", "phase", p.name)

		if p.interaction == "" {
			phase.Converged = true
			if err := r.sleep(ctx, r.PassiveWait); err != nil {
				phase.Converged = false
				phase.Errors = append(phase.Errors, err.Error())
			}
		} else if cfg, err := catalog.Get(p.interaction); err != nil {
			phase.Errors = append(phase.Errors, err.Error())
			r.Logger.Error("power phase skipped", "phase", p.name, "error", err)
		} else {
			sub := r.Run(ctx, page, cfg, 0)
			phase.Rounds = sub.Rounds
			phase.Converged = sub.Converged
			phase.Errors = sub.Errors
		}

		phase.Duration = time.Since(start)
		report.Rounds += phase.Rounds
		report.Converged = report.Converged && phase.Converged
		for _, e := range phase.Errors {
			report.Errors = append(report.Errors, p.name+": "+e)
		}
		report.Phases = append(report.Phases, phase)
	}
	return report
}

// RunStrategy runs the named strategy from catalog; "power" selects the
// composite sequence.
func (r *Runner) RunStrategy(ctx context.Context, page Page, catalog *interaction.Catalog, name string, maxRounds int) (Report, error) {
	if name == interaction.PowerName {
		return r.RunPower(ctx, page, catalog), nil
	}
	cfg, err := catalog.Get(name)
	if err != nil {
		return Report{Strategy: name}, err
	}
	return r.Run(ctx, page, cfg, maxRounds), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
