//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"memhound/process"
	"memhound/process/memory_map"
	"memhound/scan"

	"github.com/spf13/cobra"
)

var (
	searchType     string
	searchValue    string
	searchUnknown  bool
	searchAlign    uint64
	searchLimit    int
	searchRefines  []string
	searchInterval time.Duration
	searchShow     int
	searchAllKinds bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Seed a value search and optionally refine it step by step",
	Long: `Seeds a search over the target's writable memory and applies any
--refine steps in order, waiting --interval between them so the target's
state can move. Example:

  memhound search --pid 1234 --type int32 --value 100 \
      --refine unchanged --refine decreased --interval 2s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := process.ParseValueType(searchType)
		if err != nil {
			return err
		}
		mode, err := accessMode()
		if err != nil {
			return err
		}

		var literal *process.Value
		if !searchUnknown {
			if searchValue == "" {
				return fmt.Errorf("--value or --unknown is required")
			}
			v, err := parseValue(t, searchValue)
			if err != nil {
				return err
			}
			literal = &v
		}

		h, err := attach()
		if err != nil {
			return err
		}
		defer h.Detach()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		opts := scan.Options{
			Type:      t,
			Alignment: process.Size(searchAlign),
			Limit:     searchLimit,
			Mode:      mode,
			Regions:   memory_map.Criteria{Require: memory_map.Write},
		}
		if !searchAllKinds {
			opts.Regions.Kinds = []memory_map.Kind{
				memory_map.KindHeap, memory_map.KindStack, memory_map.KindAnonymous,
			}
		}

		id, op, err := h.Search(opts, literal)
		if err != nil {
			return err
		}

		go func() {
			<-ctx.Done()
			op.Cancel()
		}()

		if err := op.Wait(context.Background()); err != nil && !errors.Is(err, process.ErrCancelled) {
			return err
		}

		session, err := h.Session(id)
		if err != nil {
			return err
		}
		fmt.Printf("seeded: %d candidates\n", session.Len())

		for _, step := range searchRefines {
			cmp, err := parseComparator(t, step)
			if err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return process.ErrCancelled
			case <-time.After(searchInterval):
			}
			if err := h.Refine(ctx, id, cmp); err != nil {
				return err
			}
			fmt.Printf("refine %s: %d candidates (generation %d)\n", cmp, session.Len(), session.Generation())
		}

		printCandidates(session.Candidates(), session.Type(), searchShow)
		return nil
	},
}

func printCandidates(candidates []scan.Candidate, t process.ValueType, limit int) {
	for i, c := range candidates {
		if limit > 0 && i >= limit {
			fmt.Printf("... %d more\n", len(candidates)-i)
			return
		}
		fmt.Printf("%s  %s\n", c.Addr, process.NewValue(t, c.Value))
	}
}

func init() {
	searchCmd.Flags().StringVar(&searchType, "type", "int32", "value type")
	searchCmd.Flags().StringVar(&searchValue, "value", "", "literal to search for")
	searchCmd.Flags().BoolVar(&searchUnknown, "unknown", false, "seed an unknown-value search")
	searchCmd.Flags().Uint64Var(&searchAlign, "align", 0, "scan alignment (0 = natural)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "candidate cap (0 = unlimited)")
	searchCmd.Flags().StringArrayVar(&searchRefines, "refine", nil, "refine steps applied in order")
	searchCmd.Flags().DurationVar(&searchInterval, "interval", time.Second, "wait between refine steps")
	searchCmd.Flags().IntVar(&searchShow, "show", 20, "max candidates printed (0 = all)")
	searchCmd.Flags().BoolVar(&searchAllKinds, "all-regions", false, "include libraries and other mappings")
	rootCmd.AddCommand(searchCmd)
}
