package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump the target table to an .xlsx workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fields, err := st.ListFields(ctx)
		if err != nil {
			return eris.Wrap(err, "list fields")
		}
		if len(fields) == 0 {
			return eris.New("the target table has no declared fields; run a collection first")
		}

		f := xlsx.NewFile()
		sheet, err := f.AddSheet(cfg.Store.Table)
		if err != nil {
			return eris.Wrap(err, "add sheet")
		}

		header := sheet.AddRow()
		for _, fd := range fields {
			header.AddCell().Value = fd.Name
		}

		rows := 0
		token := ""
		for {
			page, err := st.ScanRecords(ctx, token)
			if err != nil {
				return eris.Wrap(err, "scan records")
			}
			for _, rec := range page.Records {
				row := sheet.AddRow()
				for _, fd := range fields {
					cell := row.AddCell()
					if v, ok := rec.Values[fd.Name]; ok && v != nil {
						cell.SetValue(v)
					}
				}
				rows++
			}
			if !page.HasMore {
				break
			}
			token = page.NextPageToken
		}

		if err := f.Save(exportOut); err != nil {
			return eris.Wrapf(err, "save %s", exportOut)
		}
		fmt.Fprintf(os.Stderr, "Exported %d rows to %s\n", rows, exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "export.xlsx", "output workbook path")
	rootCmd.AddCommand(exportCmd)
}
