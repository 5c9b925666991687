package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/config"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/doctor"
)

var (
	doctorJSON    bool
	doctorOffline bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the local environment: config, database, keys, connectors",
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "print the report as JSON")
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "skip network connectivity checks")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	report := doctor.Run(cmd.Context(), cfg, doctor.Options{SkipUpstream: doctorOffline})

	if doctorJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		for _, c := range report.Checks {
			marker := map[string]string{"pass": "ok", "warn": "!!", "fail": "XX"}[c.Status]
			fmt.Printf("[%s] %-28s %s\n", marker, c.Name, c.Message)
			if c.Fix != "" && c.Status != "pass" {
				fmt.Printf("     fix: %s\n", c.Fix)
			}
		}
		fmt.Printf("\n%d pass, %d warn, %d fail\n",
			report.Summary.Pass, report.Summary.Warn, report.Summary.Fail)
	}

	if report.Status == "fail" {
		return fmt.Errorf("doctor found failing checks")
	}
	return nil
}
