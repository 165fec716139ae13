// Command riscvsim runs a RISC-V RV32I memory image through the
// out-of-order simulator and reports its exit code and execution
// statistics. Grounded on
// _examples/oisee-z80-optimizer/cmd/z80opt/main.go's cobra layout: a
// bare root command carrying every flag directly (this tool has no
// subcommands), fmt.Printf-based reporting, and an explicit os.Exit(1)
// on error rather than panicking out of main.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/caidj0/RISC-V-Simulator/internal/cpu"
	"github.com/caidj0/RISC-V-Simulator/internal/loader"
	"github.com/caidj0/RISC-V-Simulator/internal/mem"
)

func main() {
	var (
		image string

		robLen     uint32
		numALU     int
		numMemRS   int
		aluLatency uint32
		memDelay   uint32

		useCache       bool
		cacheSetBits   uint
		cacheWays      int
		cacheBlockBits uint
		cacheHitDelay  uint32
		cacheMissDelay uint32
		cacheSeed      int64

		predictorKind          string
		bimodalBits            uint
		correlatingIndexBits   uint
		correlatingHistoryBits uint
		tournamentChooserBits  uint

		maxCycles uint64
		profile   bool
	)

	rootCmd := &cobra.Command{
		Use:   "riscvsim",
		Short: "Cycle-accurate out-of-order RV32I simulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			if image == "" {
				return fmt.Errorf("riscvsim: --image is required")
			}
			f, err := os.Open(image)
			if err != nil {
				return fmt.Errorf("riscvsim: %w", err)
			}
			defer f.Close()

			store := mem.NewStore()
			if err := loader.Load(f, store); err != nil {
				return err
			}

			cfg := cpu.Config{
				ROBLength:              robLen,
				NumALU:                 numALU,
				NumMemRS:               numMemRS,
				ALULatency:             aluLatency,
				MemDelay:               memDelay,
				Cache:                  useCache,
				CacheSetBits:           cacheSetBits,
				CacheWays:              cacheWays,
				CacheBlockBits:         cacheBlockBits,
				CacheHitDelay:          cacheHitDelay,
				CacheMissDelay:         cacheMissDelay,
				CacheRNGSeed:           cacheSeed,
				Predictor:              cpu.PredictorKind(predictorKind),
				BimodalBits:            bimodalBits,
				CorrelatingIndexBits:   correlatingIndexBits,
				CorrelatingHistoryBits: correlatingHistoryBits,
				TournamentChooserBits:  tournamentChooserBits,
			}

			c, err := cpu.NewCPU(cfg, store)
			if err != nil {
				return err
			}

			var cycle uint64
			for {
				if maxCycles > 0 && cycle >= maxCycles {
					return fmt.Errorf("riscvsim: exceeded --max-cycles=%d without halting", maxCycles)
				}
				halted, exitCode, err := c.Step()
				if err != nil {
					return err
				}
				if halted {
					if profile {
						fmt.Printf("%s\n", c.Stats())
					}
					fmt.Printf("exit code: %d\n", exitCode)
					os.Exit(int(exitCode))
				}
				cycle++
			}
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&image, "image", "", "memory image to load (§6 text format)")

	flags.Uint32Var(&robLen, "rob-len", 32, "reorder buffer capacity")
	flags.IntVar(&numALU, "alu-rs", 2, "number of ALU units / reservation stations")
	flags.IntVar(&numMemRS, "mem-rs", 2, "number of memory-class reservation stations")
	flags.Uint32Var(&aluLatency, "alu-latency", 1, "ALU execution latency in cycles")
	flags.Uint32Var(&memDelay, "mem-delay", 1, "plain-memory load latency in cycles (ignored with --cache)")

	flags.BoolVar(&useCache, "cache", false, "use a set-associative cache data path instead of plain memory")
	flags.UintVar(&cacheSetBits, "cache-sets-bits", 4, "log2 of cache set count")
	flags.IntVar(&cacheWays, "cache-ways", 4, "cache associativity (ways per set)")
	flags.UintVar(&cacheBlockBits, "cache-block-bits", 4, "log2 of cache block size in bytes")
	flags.Uint32Var(&cacheHitDelay, "cache-hit-delay", 0, "cycles a cache hit takes")
	flags.Uint32Var(&cacheMissDelay, "cache-miss-delay", 2, "cycles a cache miss takes")
	flags.Int64Var(&cacheSeed, "cache-seed", 1, "seed for the cache's random replacement policy")

	flags.StringVar(&predictorKind, "predictor", "bimodal", "branch predictor: always-taken, never-taken, bimodal, correlating, tournament")
	flags.UintVar(&bimodalBits, "bimodal-bits", 8, "log2 of bimodal predictor table size")
	flags.UintVar(&correlatingIndexBits, "correlating-index-bits", 8, "log2 of correlating predictor's per-PC history table size")
	flags.UintVar(&correlatingHistoryBits, "correlating-history-bits", 8, "width of the correlating predictor's local history")
	flags.UintVar(&tournamentChooserBits, "tournament-chooser-bits", 8, "log2 of the tournament predictor's chooser table size")

	flags.Uint64Var(&maxCycles, "max-cycles", 10_000_000, "abort if the program hasn't halted after this many cycles (0 disables the bound)")
	flags.BoolVar(&profile, "profile", false, "print execution statistics before exiting")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
