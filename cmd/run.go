/*
Copyright © 2020 Markus Kont alias013@gmail.com

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	siem "github.com/markuskont/go-mini-siem"
	"github.com/markuskont/go-mini-siem/pkg/event"
	"github.com/markuskont/go-mini-siem/pkg/ingest"
	"github.com/markuskont/go-mini-siem/pkg/metrics"
	"github.com/markuskont/go-mini-siem/pkg/normalize"
	"github.com/markuskont/go-mini-siem/pkg/report"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Correlate a folder of log exports against a ruleset",
	Long: `Run loads every log file from --path, normalizes records into events, evaluates
all rules from --rules-dir and writes findings.csv and report.html into a
timestamped folder under --out.
	For example:

	minisiem run --path ./logs --rules-dir ./rules --out ./reports
	`,
	Run: run,
}

// stage logs the duration of a pipeline step
func stage(name string, start time.Time, fields logrus.Fields) {
	logrus.WithFields(fields).WithFields(logrus.Fields{
		"stage": name,
		"took":  time.Since(start),
	}).Debug("stage done")
}

func loadEvents(m *metrics.Run) []event.Event {
	path := viper.GetString("input.path")
	if path == "" {
		logrus.Fatal("missing --path")
	}
	start := time.Now()
	records, err := ingest.NewLoader(ingest.Config{
		Include:   viper.GetStringSlice("input.include"),
		Exclude:   viper.GetStringSlice("input.exclude"),
		Recursive: viper.GetBool("input.recursive"),
		Workers:   viper.GetInt("ingest.workers"),
		Logger:    logrus.StandardLogger(),
		Metrics:   m,
	}).LoadDir(path)
	if errors.Is(err, ingest.ErrNoInput) {
		logrus.Fatalf("No files in --path %s", path)
	}
	if err != nil {
		logrus.Fatal(err)
	}
	stage("ingest", start, logrus.Fields{"records": len(records)})

	start = time.Now()
	events := normalize.New(
		normalize.WithMetrics(m),
		normalize.WithLogger(logrus.StandardLogger()),
	).Normalize(records)
	stage("normalize", start, logrus.Fields{"events": len(events)})
	return events
}

func run(cmd *cobra.Command, args []string) {
	m := metrics.NewRun()
	events := loadEvents(m)

	start := time.Now()
	ruleset, err := siem.NewRuleset(siem.Config{
		Directory:     viper.GetStringSlice("rules.dir"),
		Patterns:      viper.GetStringSlice("rules.pattern"),
		Workers:       viper.GetInt("engine.workers"),
		FileListLimit: viper.GetInt("engine.files.max_chars"),
		Logger:        logrus.StandardLogger(),
		Metrics:       m,
	})
	if err != nil {
		logrus.Fatal(err)
	}
	logrus.Debugf("Found %d files, %d ok, %d failed",
		ruleset.Total, ruleset.Ok, ruleset.Failed)

	results := ruleset.Evaluate(events)
	findings := results.Findings()
	stage("evaluate", start, logrus.Fields{"rules": len(results), "findings": len(findings)})

	dir, err := report.NewWriter(report.Config{
		Dir:    viper.GetString("output.dir"),
		Logger: logrus.StandardLogger(),
	}).Write(findings)
	if err != nil {
		logrus.Fatal(err)
	}

	if file := viper.GetString("metrics.file"); file != "" {
		if err := m.WriteFile(file); err != nil {
			logrus.Error(err)
		}
	}

	if !quiet {
		report.Summary(os.Stdout, findings)
	}
	fmt.Println("Report →", dir)
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.PersistentFlags().String("out", "reports",
		`Parent folder for timestamped report folders.`)
	viper.BindPFlag("output.dir",
		runCmd.PersistentFlags().Lookup("out"))

	runCmd.PersistentFlags().Int("engine-workers", 4,
		`Number of workers for rule evaluation.`)
	viper.BindPFlag("engine.workers",
		runCmd.PersistentFlags().Lookup("engine-workers"))

	runCmd.PersistentFlags().Int("engine-files-max-chars", siem.DefaultFileListLimit,
		`Trailing character cap for the joined contributing file list in reports. Negative disables the cap.`)
	viper.BindPFlag("engine.files.max_chars",
		runCmd.PersistentFlags().Lookup("engine-files-max-chars"))
}
