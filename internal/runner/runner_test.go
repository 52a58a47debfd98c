package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"webtext/internal/interaction"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainPage hides total expanders. Each click round expands the ones that
// are visible, reveal[round-1] of them (1 when reveal is short), and makes
// the next ones visible.
type chainPage struct {
	total      int
	reveal     []int
	clickErrAt map[int]bool
	expanded   int
	calls      int
	clicks     []int
}

func (p *chainPage) Evaluate(ctx context.Context, script string, out any) error {
	return errors.New("not a script page")
}

func (p *chainPage) ClickVisible(ctx context.Context, selectors []string) (int, error) {
	p.calls++
	if p.clickErrAt[p.calls] {
		return 0, errors.New("Execution context was destroyed")
	}
	n := 1
	if len(p.reveal) >= p.calls {
		n = p.reveal[p.calls-1]
	}
	n = min(n, p.total-p.expanded)
	p.expanded += n
	p.clicks = append(p.clicks, n)
	return n, nil
}

func (p *chainPage) ContentLength(ctx context.Context) (int, error) {
	return 1000 + p.expanded*250, nil
}

// scriptPage grows by the given amounts, one per evaluation, then stays put.
type scriptPage struct {
	growth  []int
	length  int
	evals   int
	scripts []string
	failAt  map[int]bool
	lenErr  error
}

func (p *scriptPage) Evaluate(ctx context.Context, script string, out any) error {
	p.evals++
	p.scripts = append(p.scripts, script)
	if p.failAt[p.evals] {
		return errors.New("ReferenceError: foo is not defined")
	}
	if p.evals <= len(p.growth) {
		p.length += p.growth[p.evals-1]
	}
	return nil
}

func (p *scriptPage) ClickVisible(ctx context.Context, selectors []string) (int, error) {
	return 0, nil
}

func (p *scriptPage) ContentLength(ctx context.Context) (int, error) {
	if p.lenErr != nil {
		return 0, p.lenErr
	}
	return p.length, nil
}

func newTestRunner(slept *[]time.Duration) *Runner {
	return New(
		WithSettle(time.Second),
		WithPassiveWait(3*time.Second),
		withSleep(func(ctx context.Context, d time.Duration) error {
			if slept != nil {
				*slept = append(*slept, d)
			}
			return ctx.Err()
		}),
	)
}

func TestRunStopsAtBoundWithElementsLeft(t *testing.T) {
	page := &chainPage{total: 5}
	cfg := interaction.Config{Name: "expand", Selectors: []string{".expand"}}

	report := newTestRunner(nil).Run(context.Background(), page, cfg, 3)

	assert.Equal(t, 3, report.Rounds)
	assert.False(t, report.Converged)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 3, page.expanded)
	assert.Less(t, page.expanded, page.total)
}

func TestRunBoundWithUpToTwoPerRound(t *testing.T) {
	tests := []struct {
		name     string
		reveal   []int
		expanded int
	}{
		{"elements left", []int{2, 1, 1}, 4},
		{"all revealed on the last round", []int{1, 2, 2}, 5},
		{"two per round", []int{2, 2, 2}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &chainPage{total: 5, reveal: tt.reveal}
			cfg := interaction.Config{Name: "expand", Selectors: []string{".expand"}}

			report := newTestRunner(nil).Run(context.Background(), page, cfg, 3)

			assert.Equal(t, 3, report.Rounds)
			assert.False(t, report.Converged)
			assert.Empty(t, report.Errors)
			assert.Equal(t, tt.expanded, page.expanded)
		})
	}
}

func TestRunClickErrorContinues(t *testing.T) {
	var slept []time.Duration
	page := &chainPage{total: 2, clickErrAt: map[int]bool{1: true}}
	cfg := interaction.Config{Name: "expand", Selectors: []string{".expand"}}

	report := newTestRunner(&slept).Run(context.Background(), page, cfg, 4)

	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "click round 1")
	assert.Contains(t, report.Errors[0], "Execution context was destroyed")
	assert.Equal(t, 4, page.calls)
	assert.Equal(t, []int{1, 1, 0}, page.clicks)
	assert.Equal(t, 2, page.expanded)
	assert.Equal(t, 4, report.Rounds)
	assert.True(t, report.Converged)
	assert.Len(t, slept, 2, "a failed round skips the settle wait")
}

func TestRunEmptyMatchConvergesInOneRound(t *testing.T) {
	var slept []time.Duration
	page := &chainPage{total: 0}
	cfg := interaction.Config{Name: "expand", Selectors: []string{".missing"}}

	report := newTestRunner(&slept).Run(context.Background(), page, cfg, 3)

	assert.Equal(t, 1, report.Rounds)
	assert.True(t, report.Converged)
	assert.Empty(t, report.Errors)
	assert.Empty(t, slept)
}

func TestRunConvergesWhenAllExpanded(t *testing.T) {
	page := &chainPage{total: 2}
	cfg := interaction.Config{Name: "expand", Selectors: []string{".expand"}, MaxRounds: 10}

	report := newTestRunner(nil).Run(context.Background(), page, cfg, 0)

	assert.Equal(t, 3, report.Rounds)
	assert.True(t, report.Converged)
	assert.Equal(t, []int{1, 1, 0}, page.clicks)
}

func TestRunScriptConvergesOnUnchangedLength(t *testing.T) {
	var slept []time.Duration
	page := &scriptPage{growth: []int{100, 50}, length: 500}
	cfg := interaction.Config{Name: "scroll", Script: "window.scrollTo(0, 1e9);", MaxRounds: 10}

	report := newTestRunner(&slept).Run(context.Background(), page, cfg, 0)

	assert.Equal(t, 3, report.Rounds)
	assert.True(t, report.Converged)
	assert.Equal(t, 3, page.evals)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, slept)
}

func TestRunScriptErrorContinues(t *testing.T) {
	page := &scriptPage{growth: []int{0, 10, 0}, failAt: map[int]bool{1: true}}
	cfg := interaction.Config{Name: "broken", Script: "foo();"}

	report := newTestRunner(nil).Run(context.Background(), page, cfg, 3)

	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], ErrScriptEvaluation.Error())
	assert.Contains(t, report.Errors[0], "round 1")
	assert.Equal(t, 3, page.evals)
	assert.Equal(t, 3, report.Rounds)
	assert.True(t, report.Converged)
}

func TestRunLengthFailureCountsAsUnchanged(t *testing.T) {
	page := &scriptPage{growth: []int{100, 100}, lenErr: errors.New("target closed")}
	cfg := interaction.Config{Name: "scroll", Script: "return 1;", MaxRounds: 5}

	report := newTestRunner(nil).Run(context.Background(), page, cfg, 0)

	assert.Equal(t, 1, report.Rounds)
	assert.True(t, report.Converged)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	page := &chainPage{total: 5}

	report := newTestRunner(nil).Run(ctx, page, interaction.Config{Name: "x", Selectors: []string{".x"}}, 3)

	assert.Equal(t, 0, report.Rounds)
	assert.False(t, report.Converged)
	require.Len(t, report.Errors, 1)
	assert.Zero(t, page.expanded)
}

func TestRunPowerPhaseOrder(t *testing.T) {
	var slept []time.Duration
	catalog := interaction.NewCatalog()
	require.NoError(t, catalog.Register(interaction.Config{Name: "expand_buttons", Script: "/*expand*/", MaxRounds: 3}))
	require.NoError(t, catalog.Register(interaction.Config{Name: "load_more", Script: "/*load*/", MaxRounds: 10}))

	page := &scriptPage{}
	report := newTestRunner(&slept).RunPower(context.Background(), page, catalog)

	require.Len(t, report.Phases, 4)
	names := []string{}
	for _, p := range report.Phases {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{PhaseExpand, PhaseLoadMore, PhaseWait, PhaseExpandAgain}, names)
	assert.Equal(t, []string{"/*expand*/", "/*load*/", "/*expand*/"}, page.scripts)
	assert.Equal(t, interaction.PowerName, report.Strategy)
	assert.True(t, report.Converged)
	assert.Equal(t, 3, report.Rounds)
	assert.Contains(t, slept, 3*time.Second)
}

func TestRunPowerEmptyPageOneRoundPerPhase(t *testing.T) {
	page := &chainPage{}
	catalog := interaction.NewCatalog()
	require.NoError(t, catalog.Register(interaction.Config{Name: "expand_buttons", Selectors: []string{".expand"}}))
	require.NoError(t, catalog.Register(interaction.Config{Name: "load_more", Selectors: []string{".more"}}))

	report := newTestRunner(nil).RunPower(context.Background(), page, catalog)

	for _, p := range report.Phases {
		if p.Name == PhaseWait {
			assert.Zero(t, p.Rounds)
			continue
		}
		assert.Equal(t, 1, p.Rounds, p.Name)
		assert.True(t, p.Converged, p.Name)
	}
}

func TestRunPowerMissingPhaseContinues(t *testing.T) {
	catalog := interaction.NewCatalog()
	require.NoError(t, catalog.Register(interaction.Config{Name: "expand_buttons", Script: "/*expand*/"}))

	page := &scriptPage{}
	report := newTestRunner(nil).RunPower(context.Background(), page, catalog)

	require.Len(t, report.Phases, 4)
	assert.False(t, report.Converged)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "load_more")
	assert.Equal(t, 2, page.evals)
}

func TestRunStrategy(t *testing.T) {
	r := newTestRunner(nil)
	catalog := interaction.Default()

	report, err := r.RunStrategy(context.Background(), &scriptPage{}, catalog, "infinite_scroll", 0)
	require.NoError(t, err)
	assert.Equal(t, "infinite_scroll", report.Strategy)
	assert.Equal(t, 1, report.Rounds)

	report, err = r.RunStrategy(context.Background(), &scriptPage{}, catalog, interaction.PowerName, 0)
	require.NoError(t, err)
	assert.Len(t, report.Phases, 4)

	_, err = r.RunStrategy(context.Background(), &scriptPage{}, catalog, "nope", 0)
	assert.ErrorIs(t, err, interaction.ErrNotFound)
}
