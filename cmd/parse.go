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
	siem "github.com/markuskont/go-mini-siem"
	"github.com/spf13/afero"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type counts struct {
	ok, fail int
}

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse a ruleset for testing",
	Long:  `Recursively parses correlation rules from filesystem and reports which of them are valid.`,
	Run:   parse,
}

func parse(cmd *cobra.Command, args []string) {
	fs := afero.NewOsFs()
	files, err := siem.NewRuleFileList(fs, viper.GetStringSlice("rules.dir"), viper.GetStringSlice("rules.pattern")...)
	if err != nil {
		logrus.Fatal(err)
	}
	if len(files) == 0 {
		logrus.Fatal("no rule files found")
	}
	for _, f := range files {
		logrus.Trace(f)
	}
	logrus.Info("Parsing rule yaml files")
	c := &counts{}
	rules, err := siem.NewRuleList(fs, files, true)
	if err != nil {
		switch e := err.(type) {
		case siem.ErrBulkParseYaml:
			for _, item := range e.Errs {
				logrus.Error(item)
			}
			c.fail += len(e.Errs)
		default:
			logrus.Fatal(err)
		}
	}
	logrus.Infof("Got %d rules from yaml", len(rules))
	logrus.Info("Validating rules")
	for _, raw := range rules {
		tree, err := siem.NewTree(raw)
		if err != nil {
			c.fail++
			logrus.Errorf("%s: %s", raw.Path, err)
			continue
		}
		logrus.WithFields(logrus.Fields{
			"rule":      raw.Name(),
			"group_by":  tree.GroupBy,
			"window":    tree.Window,
			"threshold": tree.Threshold,
		}).Infof("%s: ok", raw.Path)
		c.ok++
	}
	logrus.Infof("OK: %d; FAIL: %d", c.ok, c.fail)
}

func init() {
	rootCmd.AddCommand(parseCmd)
}
