package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/heapkit/brk"
	"github.com/vkngwrapper/heapkit/heap"
	"github.com/vkngwrapper/heapkit/internal/trace"
	"golang.org/x/exp/slog"
)

type options struct {
	limit    int
	mapped   bool
	split    bool
	indexed  bool
	validate bool
	strict   bool
	verbose  bool
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "heaptrace <trace-file>",
		Short: "Replay an allocation trace against a heap",
		Long: `heaptrace replays a trace of allocation directives against a fresh heap and
prints the address and capacity of every allocation it makes.

Each line of the trace holds one directive:
  alloc <handle> <size>            zalloc <handle> <count> <elemSize>
  realloc <handle> <size>          free <handle>
  write <handle> <byte>            check <handle> <byte> [count]
  stats                            dump

Use "-" to read the trace from standard input.

Example:
  heaptrace workload.trace
  heaptrace workload.trace --split --indexed --validate
  heaptrace - --limit 4096 < workload.trace`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.limit, "limit", brk.DefaultLimit, "Maximum number of bytes the heap may grow to")
	cmd.Flags().BoolVar(&opts.mapped, "mmap", false, "Back the heap with an anonymous memory mapping instead of a Go slice")
	cmd.Flags().BoolVar(&opts.split, "split", false, "Split reused free blocks that are larger than the request")
	cmd.Flags().BoolVar(&opts.indexed, "indexed", false, "Index free blocks by address to find neighbours without a scan")
	cmd.Flags().BoolVar(&opts.validate, "validate", false, "Validate the heap after every directive")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail if any allocation fails or is never freed")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log heap activity to stderr")

	return cmd
}

func execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var newBreak = func(opts options) (brk.Break, error) {
	if opts.mapped {
		return brk.NewMapped(opts.limit)
	}
	return brk.NewArena(opts.limit)
}

func runTrace(cmd *cobra.Command, path string, opts options) error {
	var input io.Reader = cmd.InOrStdin()
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return errors.Wrap(err, "failed to open trace")
		}
		defer file.Close()
		input = file
	}

	directives, err := trace.Parse(input)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	var flags heap.CreateFlags
	if opts.split {
		flags |= heap.CreateSplitFreeBlocks
	}
	if opts.indexed {
		flags |= heap.CreateIndexedNeighbors
	}

	heapBreak, err := newBreak(opts)
	if err != nil {
		return err
	}

	h, err := heap.New(logger, heapBreak, heap.CreateOptions{Flags: flags})
	if err != nil {
		_ = heapBreak.Close()
		return err
	}

	out := cmd.OutOrStdout()
	replayer := trace.NewReplayer(logger, h, out, trace.ReplayOptions{Validate: opts.validate})

	replayErr := replayer.Replay(directives)

	live := replayer.Live()
	fmt.Fprintf(out, "%d directives, %d failed allocations, %d live handles", len(directives), replayer.Failures(), len(live))
	if len(live) > 0 {
		fmt.Fprintf(out, ": %s", strings.Join(live, ", "))
	}
	fmt.Fprintln(out)

	var runErr error
	switch {
	case replayErr != nil:
		runErr = replayErr
	case opts.strict && replayer.Failures() > 0:
		runErr = errors.Errorf("%d allocations failed", replayer.Failures())
	case opts.strict && len(live) > 0:
		// Destroy logs every leaked allocation and leaves the break open
		runErr = h.Destroy()
	}

	replayer.ReleaseAll()
	destroyErr := h.Destroy()
	if runErr != nil {
		return runErr
	}
	return destroyErr
}
