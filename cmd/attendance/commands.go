package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"schoolattendance/internal/attendance"
	"schoolattendance/internal/cache"
	"schoolattendance/internal/model"
	"schoolattendance/internal/report"
	"schoolattendance/internal/seed"
)

func (c *cli) reportCmd() *cobra.Command {
	var xlsxPath string
	cmd := &cobra.Command{
		Use:   "report <YYYY-MM> [class]",
		Short: "Print the monthly attendance report",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, month, err := report.ParseMonth(args[0])
			if err != nil {
				return err
			}
			class := ""
			if len(args) == 2 {
				class = args[1]
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generating report for %s\n", report.Title(year, month))

			db, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := attendance.NewService(attendance.NewRepository(db.Client), cache.NewInMemory(),
				c.cfg.StatsCacheTTL, c.cfg.Location(), nil, c.log)
			r, err := svc.GetMonthlyReport(cmd.Context(), year, month, class)
			if err != nil {
				return err
			}
			if len(r.Students) == 0 {
				fmt.Fprintln(out, "No attendance records found")
				return nil
			}

			if err := report.WriteTable(out, report.Headers, report.Rows(r)); err != nil {
				return err
			}
			if xlsxPath != "" {
				if err := report.WriteXLSX(xlsxPath, r); err != nil {
					return err
				}
				fmt.Fprintf(out, "Workbook written to %s\n", xlsxPath)
			}
			fmt.Fprintln(out, "Report generated successfully!")
			return nil
		},
	}
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also write the report to this .xlsx file")
	return cmd
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
}

func (c *cli) seedCmd() *cobra.Command {
	opts := seed.DefaultOptions()
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the admin user, sample students and their recent attendance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			opts.Today = model.DateOf(time.Now().In(c.cfg.Location()))
			res, err := seed.Run(cmd.Context(), db, opts, c.log)
			if err != nil {
				return err
			}
			c.log.Info("seed complete", zap.Int("students", res.Students), zap.Int("attendances", res.Attendances))
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d students and %d attendance records (login: %s / %s)\n",
				res.Students, res.Attendances, seed.AdminEmail, seed.AdminPassword)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Students, "students", opts.Students, "number of students to create")
	cmd.Flags().IntVar(&opts.Days, "days", opts.Days, "days of attendance per student, counting back from today")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	return cmd
}
