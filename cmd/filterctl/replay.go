package main

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/danmuck/edgefilter/internal/config"
	"github.com/danmuck/edgefilter/internal/filter"
	"github.com/danmuck/edgefilter/internal/logging"
	"github.com/danmuck/edgefilter/internal/protocol"
	"github.com/danmuck/edgefilter/internal/transport"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newReplayCmd(root *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "replay <capture-file>",
		Short: "Run a recorded frame stream through a filter and print a routing summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			sum, err := replay(cmd.Context(), cfg, file)
			if err != nil {
				return err
			}
			return sum.write(cmd.OutOrStdout(), output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "summary format: text or yaml")
	return cmd
}

func replay(ctx context.Context, cfg config.Config, capture io.Reader) (summary, error) {
	log := logging.Component("replay")
	ready := make(chan struct{})
	source := gated(ready, transport.StreamSource(capture, cfg.Client.Limits))
	f := filter.New(ctx, source, cfg.Client.Filter)

	t := newTally()
	wg := watch(ctx, f, cfg, log, t)
	close(ready)

	<-f.Done()
	wg.Wait()
	unmatched := f.DrainUnmatched()
	logUnmatched(log, unmatched)
	if err := f.Err(); !errors.Is(err, filter.ErrSourceEnded) {
		return summary{}, err
	}
	return newSummary(f.Stats(), len(unmatched), t), nil
}

// gated holds back seq until ready is closed so subscriptions made after
// the filter starts still see the first frame.
func gated(ready <-chan struct{}, seq filter.Source) filter.Source {
	return func(yield func(*protocol.Message, error) bool) {
		<-ready
		seq(yield)
	}
}

func logUnmatched(log zerolog.Logger, msgs []*protocol.Message) {
	for _, m := range msgs {
		log.Info().Stringer("kind", m.Kind()).Stringer("job_id", m.CorrelationID()).Msg("unmatched")
	}
}
