package commands

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/oblique/memsec/internal/config"
	mserrors "github.com/oblique/memsec/internal/errors"
	"github.com/oblique/memsec/internal/metrics"
	"github.com/oblique/memsec/pkg/memsec"
	"github.com/oblique/memsec/pkg/prot"
)

// soakStats counts completed block lifecycles
type soakStats struct {
	Cycles atomic.Uint64
	Bytes  atomic.Uint64
}

// runSoak drives workers through allocate, fill, protect, verify and free
// until ctx is done. Any verification failure stops every worker.
func runSoak(ctx context.Context, sc config.SoakConfig, stats *soakStats) error {
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < sc.Workers; w++ {
		rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(w)))
		g.Go(func() error {
			for ctx.Err() == nil {
				size := sc.MinSize + rng.IntN(sc.MaxSize-sc.MinSize+1)
				if err := soakCycle(size, byte(rng.Uint32())); err != nil {
					return err
				}
				stats.Cycles.Add(1)
				stats.Bytes.Add(uint64(size))
			}
			return nil
		})
	}
	return g.Wait()
}

func soakCycle(size int, fill byte) error {
	p, ok := memsec.Malloc(uintptr(size))
	if !ok {
		return fmt.Errorf("malloc(%d) failed", size)
	}
	defer memsec.Free(p)

	buf := memsec.Bytes(p, uintptr(size))
	if n := bytes.Count(buf, []byte{memsec.GarbageValue}); n != size {
		return fmt.Errorf("fresh %d-byte block holds %d garbage bytes", size, n)
	}
	memsec.Memset(buf, fill)

	if !memsec.Mprotect(p, prot.ReadOnly) {
		return fmt.Errorf("mprotect %s on %d-byte block refused", prot.ReadOnly, size)
	}
	for i, b := range buf {
		if b != fill {
			return fmt.Errorf("byte %d of %d-byte block changed under %s", i, size, prot.ReadOnly)
		}
	}
	if !memsec.Mprotect(p, prot.ReadWrite) {
		return fmt.Errorf("mprotect %s on %d-byte block refused", prot.ReadWrite, size)
	}
	return nil
}

// NewSoakCommand creates the soak command
func NewSoakCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "soak",
		Short: "Stress the allocator from concurrent workers",
		Long: `Run workers that allocate random-sized blocks, fill them, flip them
read-only, verify them and free them until the duration elapses or the
process is interrupted. With metrics enabled, allocator counters are served
over HTTP for the length of the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			def := cfg.Definition
			metrics.Init()

			server := metrics.NewServer(def.MetricsServer())
			if err := server.Start(); err != nil {
				return mserrors.SimplifyError(err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Stop(ctx); err != nil {
					cfg.Logger.Warn("Metrics server shutdown: %v", err)
				}
			}()
			if def.Metrics.Enabled {
				cfg.Logger.Info("Serving metrics on http://%s%s", server.Addr(), def.Metrics.Path)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, def.Soak.Duration)
			defer cancel()

			cfg.Logger.Info("Soaking with %d workers, sizes %d..%d, for %s",
				def.Soak.Workers, def.Soak.MinSize, def.Soak.MaxSize, def.Soak.Duration)

			var stats soakStats
			start := time.Now()
			if err := runSoak(ctx, def.Soak, &stats); err != nil {
				return mserrors.CheckError{
					Check:      "soak",
					Failed:     1,
					Message:    err.Error(),
					Suggestion: "Re-run with --debug to see platform errors",
				}
			}

			elapsed := time.Since(start)
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%d cycles, %d payload bytes in %s (%.0f cycles/s)\n",
				stats.Cycles.Load(), stats.Bytes.Load(), elapsed.Round(time.Millisecond),
				float64(stats.Cycles.Load())/elapsed.Seconds())
			return err
		},
	}

	cmd.Flags().Int("workers", 0, "Concurrent workers (default: number of CPUs)")
	cmd.Flags().Int("min-size", 0, "Smallest block size")
	cmd.Flags().Int("max-size", 0, "Largest block size")
	cmd.Flags().Duration("duration", 0, "How long to run")
	cmd.Flags().Bool("metrics", false, "Serve Prometheus metrics during the run")
	cmd.Flags().String("metrics-addr", "", "Metrics listen address")
	bindFlags(cfg, cmd, map[string]string{
		"workers":      "soak.workers",
		"min-size":     "soak.min_size",
		"max-size":     "soak.max_size",
		"duration":     "soak.duration",
		"metrics":      "metrics.enabled",
		"metrics-addr": "metrics.addr",
	})

	return cmd
}
