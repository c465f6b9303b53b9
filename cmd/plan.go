package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tidbyt.dev/journeys"
	"tidbyt.dev/journeys/model"
	"tidbyt.dev/journeys/search"
)

var planCmd = &cobra.Command{
	Use:   "plan <from> <to>",
	Short: "Plans journeys between two stations or lat,lon locations",
	Args:  cobra.ExactArgs(2),
	RunE:  planRun,
}

var (
	planDate    string
	planTime    string
	arriveBy    bool
	maxChanges  int
	maxResults  int
	depthFirst  bool
	planImport  string
	diagnostics bool
)

func init() {
	planCmd.Flags().StringVarP(&planDate, "date", "d", "", "Service date as YYYYMMDD (default today)")
	planCmd.Flags().StringVarP(&planTime, "time", "t", "", "Time as HH:MM (default now)")
	planCmd.Flags().BoolVarP(&arriveBy, "arrive-by", "a", false, "Arrive by the given time")
	planCmd.Flags().IntVarP(&maxChanges, "changes", "x", 2, "Maximum number of changes")
	planCmd.Flags().IntVarP(&maxResults, "limit", "l", -1, "Maximum number of journeys (default from config)")
	planCmd.Flags().BoolVarP(&depthFirst, "depth-first", "", false, "Search depth first")
	planCmd.Flags().StringVarP(&planImport, "import", "i", "", "Import this zip or URL before planning")
	planCmd.Flags().BoolVarP(&diagnostics, "diagnostics", "", false, "Record every search decision")
}

func planRun(cmd *cobra.Command, args []string) error {
	from, err := journeys.ParseEndpoint(args[0])
	if err != nil {
		return fmt.Errorf("invalid start: %w", err)
	}
	to, err := journeys.ParseEndpoint(args[1])
	if err != nil {
		return fmt.Errorf("invalid destination: %w", err)
	}

	now := time.Now()
	date := planDate
	if date == "" {
		date = now.Format("20060102")
	}
	queryTime := time.Duration(now.Hour())*time.Hour + time.Duration(now.Minute())*time.Minute
	if planTime != "" {
		queryTime, err = model.ParseTime(planTime)
		if err != nil {
			return err
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if maxResults < 0 {
		maxResults = cfg.MaxNumResults
	}

	manager, err := newManager(cfg)
	if err != nil {
		return err
	}
	if planImport != "" {
		if err := importNetwork(cmd.Context(), manager, cfg.Storage.Network, planImport); err != nil {
			return err
		}
	}

	opts := []journeys.CalculatorOption{}
	if depthFirst {
		opts = append(opts, journeys.WithOrdering(search.DepthFirst))
	}
	calculator, err := manager.Calculator(cmd.Context(), cfg.Storage.Network, cfg, opts...)
	if err != nil {
		return err
	}

	req, err := model.NewJourneyRequest(date, queryTime, arriveBy, maxChanges, cfg.MaxJourneyDuration(), maxResults)
	if err != nil {
		return err
	}
	if diagnostics {
		req = req.WithDiagnostics()
	}

	stream, err := calculator.Calculate(cmd.Context(), req, from, to)
	if err != nil {
		return err
	}
	defer stream.Close()

	n := 0
	for stream.Next() {
		n++
		printJourney(n, stream.Journey())
	}
	if err := stream.Err(); err != nil {
		return err
	}
	if n == 0 {
		fmt.Println("no journeys found")
	}

	return nil
}

func printJourney(n int, j *model.Journey) {
	fmt.Printf(
		"#%d %s -> %s (%d changes)\n",
		n,
		model.FormatTime(j.FirstDeparture()),
		model.FormatTime(j.LastArrival()),
		j.NumberOfChanges(),
	)
	for _, stage := range j.Stages {
		detail := ""
		if v, ok := stage.(*model.VehicleStage); ok {
			detail = fmt.Sprintf(" route %s trip %s, %d stops", v.RouteID, v.TripID, v.PassedStops())
			if v.HasBoardingPlatform() {
				detail += ", platform " + v.BoardingPlatform
			}
		}
		fmt.Printf(
			"  %s %s %s -> %s %s%s\n",
			model.FormatTime(stage.FirstDepartureTime()),
			stage.FirstLocation(),
			stage.Mode(),
			stage.LastLocation(),
			model.FormatTime(stage.ExpectedArrivalTime()),
			detail,
		)
	}
}
