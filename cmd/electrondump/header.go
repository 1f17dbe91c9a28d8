package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/electrondump/internal/extract"
)

var (
	headerFlags   jobFlags
	headerColumns bool
)

var headerCmd = &cobra.Command{
	Use:   "header",
	Short: "Print the CSV header a job would write",
	Example: `  electrondump header
  electrondump header -n 2 --columns`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadConfig(cmd, &headerFlags)
		if err != nil {
			return err
		}
		s := extract.Schema{MaxObjects: cfg.Output.MaxObjects}
		if headerColumns {
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(s.Columns(), "\n"))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), s.Header())
		return nil
	},
}

func init() {
	headerFlags.register(headerCmd)
	headerCmd.Flags().BoolVar(&headerColumns, "columns", false, "Print one column name per line")
	rootCmd.AddCommand(headerCmd)
}
