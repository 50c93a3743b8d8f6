package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/BrandonDHaskell/ledgerwatch/internal/app"
	"github.com/BrandonDHaskell/ledgerwatch/internal/ledger/chain"
)

var verifyBatch int

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Walk the whole ledger and verify every hash chain link",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		backend, err := app.OpenBackend(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer backend.Close()

		out := cmd.OutOrStdout()
		prog := newProgress(out)
		prog.Start()
		start := time.Now()
		res, err := chain.Walk(ctx, backend.Events, verifyBatch, func(r chain.Result) {
			prog.Update(fmt.Sprintf(" verified %d events, %d failures", r.Checked, r.Failures))
		})
		prog.Stop()
		if err != nil {
			return err
		}

		if jsonOutput {
			if err := printJSON(out, res); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(out, "Checked %d events in %s\n", res.Checked, time.Since(start).Round(time.Millisecond))
			if res.Failures == 0 {
				fmt.Fprintln(out, "Hash chain intact")
			} else {
				fmt.Fprintf(out, "Hash chain BROKEN: %d failures\n", res.Failures)
				for _, id := range res.Failed {
					fmt.Fprintf(out, "  sequence_id %d\n", id)
				}
			}
		}
		if res.Failures > 0 {
			return fmt.Errorf("%d hash chain failures", res.Failures)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().IntVar(&verifyBatch, "batch", 1000, "events read per query")
}

// progress shows a spinner on interactive terminals and nothing otherwise.
type progress struct {
	s *spinner.Spinner
}

func newProgress(w io.Writer) *progress {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return &progress{}
	}
	return &progress{s: spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(w))}
}

func (p *progress) Start() {
	if p.s != nil {
		p.s.Start()
	}
}

func (p *progress) Update(suffix string) {
	if p.s != nil {
		p.s.Lock()
		p.s.Suffix = suffix
		p.s.Unlock()
	}
}

func (p *progress) Stop() {
	if p.s != nil {
		p.s.Stop()
	}
}
