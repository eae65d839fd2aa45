package siem

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/markuskont/go-dispatch"
	"github.com/markuskont/go-mini-siem/pkg/event"
	"github.com/markuskont/go-mini-siem/pkg/metrics"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Config is used as argument to creating a new ruleset
type Config struct {
	// root directories for recursive rule search
	Directory []string
	// file name globs, DefaultRulePatterns if empty
	Patterns []string
	// defaults to the OS filesystem
	Fs afero.Fs

	// by default, a rule parse fail will simply increment Ruleset.Failed counter when failing to
	// parse yaml or validate the rule
	// these parameters will cause an early error return instead
	FailOnRuleParse, FailOnYamlParse bool

	// number of parallel rule evaluations, sequential if below 2
	Workers int
	// trailing character cap for Finding.SourceFiles, 0 is default and negative disables
	FileListLimit int

	Logger  logrus.FieldLogger
	Metrics *metrics.Run
}

func (c *Config) setDefaults() {
	if c.Fs == nil {
		c.Fs = afero.NewOsFs()
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	if len(c.Patterns) == 0 {
		c.Patterns = DefaultRulePatterns
	}
}

func (c Config) validate() error {
	if len(c.Directory) == 0 {
		return fmt.Errorf("missing root directory for rules")
	}
	for _, dir := range c.Directory {
		info, err := c.Fs.Stat(dir)
		if os.IsNotExist(err) {
			return fmt.Errorf("%s does not exist", dir)
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
	}
	return nil
}

type ruleEntry struct {
	handle RuleHandle
	tree   *Tree
	err    error
}

// Ruleset is a collection of rules, in evaluation order
// Broken rules are kept in place, so they show up in results
type Ruleset struct {
	entries []ruleEntry

	workers int
	logger  logrus.FieldLogger
	metrics *metrics.Run

	Total, Ok, Failed int
}

// NewRuleset loads every rule file under configured directories
func NewRuleset(c Config) (*Ruleset, error) {
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	files, err := NewRuleFileList(c.Fs, c.Directory, c.Patterns...)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return newRuleset(c, nil, nil, 0)
	}
	rules, err := NewRuleList(c.Fs, files, !c.FailOnYamlParse)
	broken := make([]ruleEntry, 0)
	if err != nil {
		switch e := err.(type) {
		case ErrBulkParseYaml:
			for _, item := range e.Errs {
				broken = append(broken, ruleEntry{
					handle: RuleHandle{Path: item.Path},
					err: ErrRule{
						Rule: RuleHandle{Path: item.Path}.Name(),
						Path: item.Path,
						Err:  item,
					},
				})
			}
		default:
			return nil, err
		}
	}
	return newRuleset(c, rules, broken, len(files))
}

// NewRulesetFromRules compiles already decoded rules, keeping their order
func NewRulesetFromRules(c Config, rules []RuleHandle) (*Ruleset, error) {
	c.setDefaults()
	return newRuleset(c, rules, nil, len(rules))
}

func newRuleset(c Config, rules []RuleHandle, broken []ruleEntry, total int) (*Ruleset, error) {
	entries := make([]ruleEntry, 0, len(rules)+len(broken))
	for _, raw := range rules {
		tree, err := NewTree(raw)
		if err != nil {
			e := ErrRule{Rule: raw.Name(), Path: raw.Path, Err: err}
			if c.FailOnRuleParse {
				return nil, e
			}
			entries = append(entries, ruleEntry{handle: raw, err: e})
			continue
		}
		tree.FileListLimit = c.FileListLimit
		entries = append(entries, ruleEntry{handle: raw, tree: tree})
	}
	entries = append(entries, broken...)
	if len(broken) > 0 {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].handle.Path < entries[j].handle.Path
		})
	}

	r := &Ruleset{
		entries: entries,
		workers: c.Workers,
		logger:  c.Logger,
		metrics: c.Metrics,
		Total:   total,
	}
	for _, e := range entries {
		if e.err != nil {
			r.Failed++
			r.logger.WithFields(logrus.Fields{
				"rule": e.handle.Name(),
				"path": e.handle.Path,
			}).Warn(e.err)
			continue
		}
		r.Ok++
	}
	if r.metrics != nil {
		r.metrics.RulesTotal.WithLabelValues("ok").Add(float64(r.Ok))
		r.metrics.RulesTotal.WithLabelValues("failed").Add(float64(r.Failed))
	}
	return r, nil
}

// Rules returns compiled rules in evaluation order
func (r Ruleset) Rules() []*Tree {
	out := make([]*Tree, 0, r.Ok)
	for _, e := range r.entries {
		if e.tree != nil {
			out = append(out, e.tree)
		}
	}
	return out
}

// Errors returns every rule that failed to load
func (r Ruleset) Errors() []error {
	out := make([]error, 0, r.Failed)
	for _, e := range r.entries {
		if e.err != nil {
			out = append(out, e.err)
		}
	}
	return out
}

// RuleResult is the outcome of a single rule
type RuleResult struct {
	Rule     RuleHandle
	Findings Findings
	Err      error
}

// Results should be returned when an event set is evaluated against multiple rules
// Ordered by rule, findings within a rule are ordered by group key
type Results []RuleResult

// Findings concatenates all findings in result order
func (r Results) Findings() Findings {
	out := make(Findings, 0)
	for _, res := range r {
		out = append(out, res.Findings...)
	}
	return out
}

// Errors collects failed rules
func (r Results) Errors() []error {
	out := make([]error, 0)
	for _, res := range r {
		if res.Err != nil {
			out = append(out, res.Err)
		}
	}
	return out
}

// Evaluate runs every rule against the same event snapshot
// Rules share nothing, so they are evaluated in parallel when workers are configured
func (r Ruleset) Evaluate(events []event.Event) Results {
	results := make(Results, len(r.entries))
	for i, e := range r.entries {
		results[i] = RuleResult{Rule: e.handle, Err: e.err}
	}
	if r.workers < 2 || len(r.entries) < 2 {
		for i, e := range r.entries {
			if e.tree != nil {
				results[i].Findings = e.tree.Eval(events)
			}
		}
		r.count(results)
		return results
	}

	if err := dispatch.Run(dispatch.Config{
		Async:   false,
		Workers: r.workers,
		FeederFunc: func(tasks chan<- dispatch.Task, stop <-chan struct{}) {
			var wg sync.WaitGroup
		loop:
			for i, e := range r.entries {
				if e.tree == nil {
					continue loop
				}
				i, tree := i, e.tree
				wg.Add(1)
				select {
				case tasks <- func(id, count int, ctx context.Context) error {
					defer wg.Done()
					results[i].Findings = tree.Eval(events)
					return nil
				}:
				case <-stop:
					wg.Done()
					break loop
				}
			}
			wg.Wait()
		},
		ErrFunc: func(err error) bool {
			r.logger.Error(err)
			return true
		},
	}); err != nil {
		r.logger.WithField("workers", r.workers).Errorf("parallel evaluation failed: %s", err)
		// fall back to sequential evaluation for anything left untouched
		for i, e := range r.entries {
			if e.tree != nil && results[i].Findings == nil {
				results[i].Findings = e.tree.Eval(events)
			}
		}
	}
	r.count(results)
	return results
}

func (r Ruleset) count(results Results) {
	for _, res := range results {
		log := r.logger.WithField("rule", res.Rule.Name())
		if res.Err != nil {
			log.Debug("skipped, rule failed to load")
			continue
		}
		log.WithField("findings", len(res.Findings)).Debug("evaluated")
		if r.metrics == nil {
			continue
		}
		for _, f := range res.Findings {
			r.metrics.FindingsTotal.WithLabelValues(f.Level().String()).Inc()
		}
	}
}

// Evaluate runs rules over events and returns concatenated findings
// Rules that fail validation yield no findings and are reported through the returned error
func Evaluate(events []event.Event, rules []RuleHandle) (Findings, error) {
	set, err := NewRulesetFromRules(Config{}, rules)
	if err != nil {
		return nil, err
	}
	results := set.Evaluate(events)
	if errs := results.Errors(); len(errs) > 0 {
		bulk := ErrBulkRule{Errs: make([]ErrRule, 0, len(errs))}
		for _, e := range errs {
			if re, ok := e.(ErrRule); ok {
				bulk.Errs = append(bulk.Errs, re)
			}
		}
		return results.Findings(), bulk
	}
	return results.Findings(), nil
}
