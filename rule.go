package siem

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ryanuber/go-glob"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

// Rule defaults, applied when a key is left out
const (
	DefaultGroupBy   = "user"
	DefaultWindow    = "10m"
	DefaultThreshold = 1
)

// DefaultRulePatterns are file name globs for rule discovery
var DefaultRulePatterns = []string{"*.yml", "*.yaml"}

// RuleHandle is a meta object containing all fields from raw yaml, but is enhanced to also
// hold debugging info from the tool, such as source file path, etc
type RuleHandle struct {
	Rule

	Path string `json:"path"`
}

// Name identifies the rule in findings and logs, id if set, otherwise the file name
func (r RuleHandle) Name() string {
	if r.ID != "" {
		return r.ID
	}
	if r.Path != "" {
		return ruleNameFromPath(r.Path)
	}
	return r.Title
}

func ruleNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Rule defines a raw threshold correlation rule, one per yaml file
// only meant to be used for parsing yaml
type Rule struct {
	ID        string  `yaml:"id" json:"id,omitempty"`
	Title     string  `yaml:"title" json:"title,omitempty"`
	When      When    `yaml:"when" json:"when"`
	GroupBy   GroupBy `yaml:"group_by" json:"group_by,omitempty"`
	Window    string  `yaml:"window" json:"window,omitempty"`
	Threshold *int    `yaml:"threshold" json:"threshold,omitempty"`
	Reason    string  `yaml:"reason" json:"reason"`
	Severity  string  `yaml:"severity" json:"severity"`
}

// When holds event selection criteria
type When struct {
	Source string `yaml:"source" json:"source,omitempty"`
	Filter Filter `yaml:"filter" json:"filter"`
}

// Filter narrows events down by numeric event id and message regex
type Filter struct {
	EventID *int   `yaml:"event_id" json:"event_id,omitempty"`
	Pattern string `yaml:"pattern" json:"pattern,omitempty"`
}

// GroupBy is an ordered list of candidate fields, first non-empty value wins per event
// A single field name in yaml is a list of one
type GroupBy []string

// UnmarshalYAML implements yaml.Unmarshaler
func (g *GroupBy) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		if single = strings.TrimSpace(single); single != "" {
			*g = GroupBy{single}
		}
		return nil
	}
	var list []string
	if err := unmarshal(&list); err != nil {
		return ErrInvalidGroupBy{Err: err}
	}
	out := make(GroupBy, 0, len(list))
	for _, f := range list {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	*g = out
	return nil
}

var reWindow = regexp.MustCompile(`^\s*(\d+)\s*([mMsS])\s*$`)

// ParseWindow decodes window tokens such as 10m or 30s
func ParseWindow(token string) (time.Duration, error) {
	m := reWindow.FindStringSubmatch(token)
	if m == nil {
		return 0, ErrInvalidWindow{Token: token}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, ErrInvalidWindow{Token: token}
	}
	if strings.EqualFold(m[2], "m") {
		return time.Duration(n) * time.Minute, nil
	}
	return time.Duration(n) * time.Second, nil
}

// NewRuleList reads a list of rule paths and parses them to rule objects
// With skip set, broken files are collected into ErrBulkParseYaml and parsing continues
func NewRuleList(fs afero.Fs, files []string, skip bool) ([]RuleHandle, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("missing rule file list")
	}
	errs := make([]ErrParseYaml, 0)
	rules := make([]RuleHandle, 0)
loop:
	for i, path := range files {
		data, err := afero.ReadFile(fs, path)
		if err == nil {
			var r Rule
			if err = yaml.Unmarshal(data, &r); err == nil {
				rules = append(rules, RuleHandle{Path: path, Rule: r})
				continue loop
			}
		}
		if !skip {
			return nil, &ErrParseYaml{Err: err, Path: path, Count: i}
		}
		errs = append(errs, ErrParseYaml{Path: path, Count: i, Err: err})
	}
	return rules, func() error {
		if len(errs) > 0 {
			return ErrBulkParseYaml{Errs: errs}
		}
		return nil
	}()
}

// NewRuleFileList finds all rule files from defined root directories
// Subtree is scanned recursively, file names are matched against glob patterns
// Returned list is sorted, which fixes rule evaluation order
func NewRuleFileList(fs afero.Fs, dirs []string, patterns ...string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = DefaultRulePatterns
	}
	out := make([]string, 0)
	for _, dir := range dirs {
		if err := afero.Walk(fs, dir, func(
			path string,
			info os.FileInfo,
			err error,
		) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && matchAny(patterns, filepath.Base(path)) {
				out = append(out, path)
			}
			return nil
		}); err != nil {
			return out, err
		}
	}
	sort.Strings(out)
	return out, nil
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if glob.Glob(p, name) {
			return true
		}
	}
	return false
}
