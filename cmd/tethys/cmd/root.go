// Package cmd provides the command-line interface for Tethys.
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/seaverlab/tethys/config"
	"github.com/seaverlab/tethys/control"
	"github.com/seaverlab/tethys/maneuvers"
	"github.com/seaverlab/tethys/supervisor"
	"github.com/seaverlab/tethys/system"
	"github.com/seaverlab/tethys/transports"
)

var (
	configPath  string
	profileName string
	systemID    uint16
	monitorPort int
	noMonitor   bool
	recordName  string
	record      bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tethys",
	Short: "Tethys runs the onboard control runtime of an unmanned vehicle.",
	Long: `Tethys hosts the vehicle's concurrent control, navigation, and ` +
		`supervision tasks on a single computer, routing typed messages ` +
		`among them over an in-process bus.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "",
		"configuration file")
	rootCmd.Flags().StringVarP(&profileName, "profile", "p", "",
		"configuration profile, e.g. Simulation or Hardware")
	rootCmd.Flags().Uint16Var(&systemID, "system-id", 1,
		"source system identifier")
	rootCmd.Flags().IntVar(&monitorPort, "monitor-port", 0,
		"monitoring server port (0 picks a random port)")
	rootCmd.Flags().BoolVar(&noMonitor, "no-monitor", false,
		"disable the monitoring server")
	rootCmd.Flags().BoolVar(&record, "record", false,
		"record published messages to a SQLite database")
	rootCmd.Flags().StringVar(&recordName, "record-name", "",
		"output name for the message recording")
}

func run(_ *cobra.Command, _ []string) error {
	// A local .env can supply profile and config defaults.
	_ = godotenv.Load()

	if configPath == "" {
		configPath = os.Getenv("TETHYS_CONFIG")
	}
	if profileName == "" {
		profileName = os.Getenv("TETHYS_PROFILE")
	}

	store := config.NewStore()
	if configPath != "" {
		var err error
		store, err = config.Load(configPath, profileName)
		if err != nil {
			return err
		}
	}

	b := system.MakeBuilder().
		WithSystemID(systemID).
		WithConfig(store)

	if noMonitor {
		b = b.WithoutMonitoring()
	} else if monitorPort != 0 {
		b = b.WithMonitorPort(monitorPort)
	}

	if record {
		b = b.WithRecording(recordName)
	}

	s := b.Build()
	ctx := s.Context()

	veh := supervisor.NewVehicle(ctx)
	s.RegisterTask(veh)
	s.RegisterTask(supervisor.NewEntityMonitor(ctx))
	s.RegisterTask(control.NewLOSController("Control.Path.LOS", ctx))

	shared := s.ManeuverShared()
	s.RegisterTask(maneuvers.NewLoiter(ctx, shared))
	s.RegisterTask(maneuvers.NewGoto(ctx, shared))
	s.RegisterTask(maneuvers.NewIdle(ctx, shared))
	s.RegisterTask(maneuvers.NewStationKeeping(ctx, shared))
	s.RegisterTask(maneuvers.NewTeleoperation(ctx, shared))
	s.RegisterTask(transports.NewLogging(ctx))

	if m := s.Monitor(); m != nil {
		m.RegisterVehicle(veh)
	}

	if err := s.Start(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "tethys run %s started\n", s.ID())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Fprintln(os.Stderr, "stopping")
	s.Stop()

	return nil
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
