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
	"bufio"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/markuskont/go-mini-siem/pkg/metrics"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// normalizeCmd represents the normalize command
var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Print normalized events as newline delimited JSON",
	Long: `Loads and normalizes a folder of log exports without evaluating any rules.
Useful for checking how a new log source is classified and which fields are extracted.
	For example:

	minisiem normalize --path ./logs | jq 'select(.source == "linux.sudo")'
	`,
	Run: normalizeEvents,
}

func normalizeEvents(cmd *cobra.Command, args []string) {
	m := metrics.NewRun()
	events := loadEvents(m)

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	enc := json.NewEncoder(w)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			logrus.Fatal(err)
		}
	}
	if file := viper.GetString("metrics.file"); file != "" {
		if err := m.WriteFile(file); err != nil {
			logrus.Error(err)
		}
	}
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
}
