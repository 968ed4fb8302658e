package cmds

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-appgrader/internal/service"
)

var registerFile string

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Import student registrations from a CSV file into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}
		defer env.close()

		registrations, err := readRegistrations(registerFile)
		if err != nil {
			return err
		}

		summary := env.formService().Import(cmd.Context(), registrations)
		printSummary(cmd, "register", summary)
		return nil
	},
}

func readRegistrations(path string) ([]service.Registration, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open submissions file: %w", err)
	}
	defer file.Close()

	registrations, err := service.ReadRegistrationsCSV(file)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return registrations, nil
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().StringVar(&registerFile, "submissions", "", "CSV with email, endpoint, secret and optional repo_url columns (required)")
	if err := registerCmd.MarkFlagRequired("submissions"); err != nil {
		panic(err)
	}
}
