package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"golang-tuition-reconciliation/cmd/reconciler/config"
	"golang-tuition-reconciliation/internal/fixtures"
	"golang-tuition-reconciliation/pkg/errors"
	"golang-tuition-reconciliation/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Files written by the generate command
const (
	rosterFileName    = "alunos.csv"
	statementFileName = "extrato.csv"
)

// generateCmd writes a synthetic roster and statement
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a synthetic roster and bank statement",
	Long: `Generate writes a student roster (alunos.csv) and a bank statement
(extrato.csv) to the output directory. The same seed always produces the
same files, which makes them suitable for demos and regression checks.

Examples:
  reconciler generate --output-dir ./sample
  reconciler generate --output-dir ./sample --students 200 --seed 7 --as-of 2024-12-31`,

	PreRunE: func(cmd *cobra.Command, args []string) error { return bindFlags(cmd) },
	RunE:    runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	defaults := fixtures.DefaultConfig()
	generateCmd.Flags().String("output-dir", ".", "directory for the generated files")
	generateCmd.Flags().Int64("seed", defaults.Seed, "random seed")
	generateCmd.Flags().Int("students", defaults.Students, "number of students")
	generateCmd.Flags().String("start-date", defaults.StartDate.Format("2006-01-02"), "first enrollment date YYYY-MM-DD")
	generateCmd.Flags().String("as-of", defaults.AsOf.Format("2006-01-02"), "last statement date YYYY-MM-DD")
	generateCmd.Flags().Float64("payment-ratio", defaults.PaymentRatio, "share of due installments that get paid (0.0-1.0)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	fixtureConfig, err := config.CreateFixtureConfig(
		viper.GetInt64("seed"),
		viper.GetInt("students"),
		viper.GetFloat64("payment-ratio"),
		viper.GetString("start-date"),
		viper.GetString("as-of"),
	)
	if err != nil {
		return err
	}

	rosterPath, statementPath, err := generateDataset(viper.GetString("output-dir"), fixtureConfig)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Roster:    %s\nStatement: %s\n", rosterPath, statementPath)
	return nil
}

// generateDataset writes the roster and statement for config into dir
func generateDataset(dir string, config *fixtures.Config) (string, string, error) {
	log := logger.WithComponent("cli")

	generator, err := fixtures.NewGenerator(config)
	if err != nil {
		return "", "", err
	}
	dataset, err := generator.Generate()
	if err != nil {
		return "", "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", errors.FileError(errors.CodeFilePermission, dir, err)
	}

	rosterPath := filepath.Join(dir, rosterFileName)
	if err := writeFile(rosterPath, func(f *os.File) error { return fixtures.WriteRosterCSV(f, dataset.Students) }); err != nil {
		return "", "", err
	}

	statementPath := filepath.Join(dir, statementFileName)
	if err := writeFile(statementPath, func(f *os.File) error { return fixtures.WriteStatementCSV(f, dataset.Transactions) }); err != nil {
		return "", "", err
	}

	log.WithFields(logger.Fields{
		"students":     len(dataset.Students),
		"installments": len(dataset.Payments),
		"transactions": len(dataset.Transactions),
		"seed":         config.Seed,
	}).Info("Dataset generated")

	return rosterPath, statementPath, nil
}

func writeFile(path string, write func(*os.File) error) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	if err := write(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}
