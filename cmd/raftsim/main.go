// Command raftsim runs a small Raft cluster inside the deterministic
// simulator and reports how it converges. It exists to exercise the
// sim package end to end, the way the teacher's cmd/server gave a
// terminal front end to its storage engine.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"

	"raftsim/raft"
	"raftsim/sim"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		nodeCount         int
		seed              uint64
		electionTimeout   time.Duration
		heartbeatInterval time.Duration
		rpcLatency        time.Duration
		proposeValue      int
		verbose           bool
	)

	cmd := &cobra.Command{
		Use:   "raftsim",
		Short: "Simulate a Raft cluster converging on a leader and a proposed value",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(demoOptions{
				nodeCount:         nodeCount,
				seed:              seed,
				electionTimeout:   electionTimeout,
				heartbeatInterval: heartbeatInterval,
				rpcLatency:        rpcLatency,
				proposeValue:      proposeValue,
				verbose:           verbose,
			})
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&nodeCount, "nodes", 3, "number of cluster members")
	flags.Uint64Var(&seed, "seed", 1, "seed for the shared random generator")
	flags.DurationVar(&electionTimeout, "election-timeout", sim.DefaultElectionTimeout, "base election timeout")
	flags.DurationVar(&heartbeatInterval, "heartbeat-interval", sim.DefaultHeartbeatInterval, "leader heartbeat interval")
	flags.DurationVar(&rpcLatency, "rpc-latency", sim.DefaultRPCLatency, "simulated one-way network delay")
	flags.IntVar(&proposeValue, "propose", 42, "value to propose once a leader is elected")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug-level simulator logging")

	return cmd
}

type demoOptions struct {
	nodeCount         int
	seed              uint64
	electionTimeout   time.Duration
	heartbeatInterval time.Duration
	rpcLatency        time.Duration
	proposeValue      int
	verbose           bool
}

func runDemo(opts demoOptions) error {
	if opts.nodeCount < 1 {
		return fmt.Errorf("raftsim: --nodes must be at least 1")
	}

	logger := sim.NewNopLogger()
	if opts.verbose {
		logger = sim.NewLogger()
	}

	cluster := make([]raft.NodeID, opts.nodeCount)
	for i := range cluster {
		cluster[i] = raft.NodeID(fmt.Sprintf("n%d", i+1))
	}

	s := sim.New(sim.Config[int]{
		Cluster:           cluster,
		ElectionTimeout:   opts.electionTimeout,
		HeartbeatInterval: opts.heartbeatInterval,
		RPCLatency:        opts.rpcLatency,
		Rand:              rand.New(rand.NewSource(opts.seed)),
		Logger:            logger,
	})
	s.Start()

	std := zap.NewExample().Sugar()
	defer std.Sync()

	leader, ok := s.WaitForLeader(2 * time.Second)
	if !ok {
		return fmt.Errorf("raftsim: no leader elected within the simulated deadline")
	}
	snap, err := s.GetRaftState(leader)
	if err != nil {
		return err
	}
	std.Infof("👑 %s elected leader in term %s after %d dispatched events", leader, raft.FormatTerm(snap.CurrentTerm), s.EventsDispatched())

	if err := s.ProposeValue(leader, opts.proposeValue); err != nil {
		return err
	}
	if !s.WaitNodeValueCommitted(leader, opts.proposeValue, func(a, b int) bool { return a == b }, 2*time.Second) {
		return fmt.Errorf("raftsim: proposed value never committed")
	}

	for _, id := range cluster {
		values, err := s.GetCommittedValues(id)
		if err != nil {
			return err
		}
		std.Infof("✅ %s committed values: %v", id, values)
	}
	return nil
}
