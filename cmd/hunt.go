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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/WithSecureLabs/chainsaw/internal/jsonl"
	"github.com/WithSecureLabs/chainsaw/pkg/collate"
	"github.com/WithSecureLabs/chainsaw/pkg/hunter"
	"github.com/WithSecureLabs/chainsaw/pkg/loader"
	"github.com/WithSecureLabs/chainsaw/pkg/mapping"
	"github.com/WithSecureLabs/chainsaw/pkg/sigma"
	"github.com/WithSecureLabs/chainsaw/pkg/tau"
)

// huntCmd represents the hunt command: it loads rules, streams every
// positional argument through the hunter, and writes grouped Detections
// as JSON to the configured output.
var huntCmd = &cobra.Command{
	Use:   "hunt [files...]",
	Short: "Hunt rules over one or more record sources",
	Long: `Hunt reads line-delimited JSON records (optionally gzip-compressed) from
each file argument, or from stdin if none is given, and reports every
Sigma/Chainsaw rule match as a grouped JSON stream.`,
	RunE: hunt,
}

func init() {
	rootCmd.AddCommand(huntCmd)

	huntCmd.Flags().StringSlice("rules", nil, "Directories containing Sigma/Chainsaw rule YAML.")
	huntCmd.Flags().String("mapping", "", "Mapping file binding rules onto this record format's fields.")
	huntCmd.Flags().StringSlice("exclude", nil, "Rule names to exclude by exact match.")
	huntCmd.Flags().StringSlice("level", nil, "Only load rules at these levels (repeatable).")
	huntCmd.Flags().StringSlice("status", nil, "Only load rules at these statuses (repeatable).")
	huntCmd.Flags().StringSlice("kind", nil, "Only load rules of these kinds: sigma, chainsaw.")
	huntCmd.Flags().Int("workers", 4, "Number of files hunted concurrently.")
	huntCmd.Flags().String("from", "", "Reject records timestamped at or before this RFC3339 instant.")
	huntCmd.Flags().String("to", "", "Reject records timestamped at or after this RFC3339 instant.")
	huntCmd.Flags().Bool("skip-errors", false, "Log and continue past unparsable records instead of aborting the file.")
	huntCmd.Flags().String("output", "-", "Output file for the Detection stream. \"-\" means stdout.")
	huntCmd.Flags().Duration("stats-interval", 10*time.Second, "Interval between hunt throughput log lines.")
	huntCmd.Flags().String("profile", "", "TOML profile file supplying default flag values.")

	for _, name := range []string{"rules", "mapping", "exclude", "level", "status", "kind", "workers", "from", "to", "skip-errors", "output", "stats-interval"} {
		viper.BindPFlag("hunt."+name, huntCmd.Flags().Lookup(name))
	}
}

func loadProfileDefaults(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("profile")
	if path == "" {
		return nil
	}
	p, err := LoadProfile(path)
	if err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	viper.SetDefault("hunt.rules", p.Rules)
	viper.SetDefault("hunt.mapping", p.Mapping)
	viper.SetDefault("hunt.exclude", p.Exclude)
	viper.SetDefault("hunt.level", p.Level)
	viper.SetDefault("hunt.status", p.Status)
	viper.SetDefault("hunt.kind", p.Kind)
	if p.Workers > 0 {
		viper.SetDefault("hunt.workers", p.Workers)
	}
	viper.SetDefault("hunt.skip-errors", p.SkipErrors)
	if p.Output != "" {
		viper.SetDefault("hunt.output", p.Output)
	}
	return nil
}

func parseTimeFlag(name string) (*time.Time, error) {
	s := viper.GetString("hunt." + name)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &t, nil
}

func openOutput() (io.WriteCloser, error) {
	path := viper.GetString("hunt.output")
	if path == "" || path == "-" {
		return os.Stdout, nil
	}
	return os.Create(path)
}

func openSources(args []string) ([]hunter.File, error) {
	if len(args) == 0 {
		return []hunter.File{{Name: "-", Source: jsonl.New(os.Stdin)}}, nil
	}
	files := make([]hunter.File, 0, len(args))
	for _, path := range args {
		src, err := jsonl.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		files = append(files, hunter.File{Name: path, Source: src})
	}
	return files, nil
}

func hunt(cmd *cobra.Command, args []string) error {
	log := logrus.WithField("component", "hunt")

	if err := loadProfileDefaults(cmd); err != nil {
		return err
	}

	dirs := viper.GetStringSlice("hunt.rules")
	if len(dirs) == 0 {
		return fmt.Errorf("at least one --rules directory is required")
	}

	kinds, err := loader.KindSet(viper.GetStringSlice("hunt.kind")...)
	if err != nil {
		return err
	}
	filter := loader.Filter{
		Levels:   loader.LevelSet(viper.GetStringSlice("hunt.level")...),
		Statuses: loader.StatusSet(viper.GetStringSlice("hunt.status")...),
		Kinds:    kinds,
	}

	var m *mapping.Mapping
	if path := viper.GetString("hunt.mapping"); path != "" {
		m, err = mapping.LoadMapping(path)
		if err != nil {
			return fmt.Errorf("mapping: %w", err)
		}
	}

	exclude := viper.GetStringSlice("hunt.exclude")
	if m != nil {
		exclude = append(exclude, m.Exclusions...)
	}

	result, err := loader.Load(dirs, filter, exclude, nil, log)
	if err != nil {
		return fmt.Errorf("loader: %w", err)
	}
	for _, d := range result.Diagnostics {
		log.WithField("path", d.Path).Warn(d.Err)
	}
	log.Infof("loaded %d rules (%d diagnostics)", len(result.Rules), len(result.Diagnostics))
	if len(result.Rules) == 0 {
		return fmt.Errorf("no rules loaded from %v", dirs)
	}

	var preconditions map[uuid.UUID]tau.Node
	var groups []*mapping.Group
	if m != nil {
		sigmaRules := make(map[uuid.UUID]*sigma.Rule)
		for _, r := range result.Rules {
			if sr, ok := r.Sigma(); ok {
				sigmaRules[r.ID] = sr
			}
		}
		preconditions = mapping.ResolvePreconditions(m, sigmaRules)
		for i := range m.Groups {
			groups = append(groups, &m.Groups[i])
		}
	}

	from, err := parseTimeFlag("from")
	if err != nil {
		return err
	}
	to, err := parseTimeFlag("to")
	if err != nil {
		return err
	}

	h := hunter.New(hunter.Config{
		Rules:         result.Rules,
		Preconditions: preconditions,
		Groups:        groups,
		From:          from,
		To:            to,
		SkipErrors:    viper.GetBool("hunt.skip-errors"),
		Workers:       viper.GetInt("hunt.workers"),
		Log:           log,
	})

	files, err := openSources(args)
	if err != nil {
		return err
	}

	out, err := openOutput()
	if err != nil {
		return err
	}
	defer out.Close()
	enc := json.NewEncoder(out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		log.Warn("hunt: interrupted, draining in-flight files")
		cancel()
	}()

	detections, errs := h.Run(ctx, files)

	var total atomic.Int64
	c := collate.New(collate.SinkFunc(func(g collate.Group) error {
		total.Add(int64(len(g.Detections)))
		return enc.Encode(g)
	}))

	go logHuntStats(ctx, viper.GetDuration("hunt.stats-interval"), &total, log)

	if err := c.Drain(ctx, detections); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("collate: %w", err)
	}
	for err := range errs {
		log.WithError(err).Warn("hunt: file error")
	}

	log.Infof("hunt complete: %d detections", total.Load())
	return nil
}

// logHuntStats periodically logs the running detection count: a ticker
// loop over the one counter the hunter's channel interface exposes to a
// caller outside its worker pool.
func logHuntStats(ctx context.Context, interval time.Duration, total *atomic.Int64, log *logrus.Entry) {
	if interval <= 0 {
		return
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			log.Debugf("hunt: %d detections so far", total.Load())
		case <-ctx.Done():
			return
		}
	}
}
