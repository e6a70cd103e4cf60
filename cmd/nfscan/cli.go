package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/nfscan/nfscan/internal/export"
	"github.com/nfscan/nfscan/internal/pipeline"
	"github.com/nfscan/nfscan/internal/repository"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(orch *pipeline.Orchestrator, repo repository.InvoiceRepository, logger *slog.Logger) *cli.App {
	return &cli.App{
		Name:    "nfscan",
		Usage:   "Invoice OCR + LLM extraction pipeline",
		Version: Version,
		Commands: []*cli.Command{
			uploadCmd(orch),
			ocrCmd(orch),
			llmCmd(orch),
			processCmd(orch),
			resultCmd(orch),
			listCmd(orch),
			exportCmd(repo, logger),
		},
	}
}

func uploadCmd(orch *pipeline.Orchestrator) *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Register one or more documents (images or PDFs)",
		ArgsUsage: "<file> [file...]",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("at least one file is required", 2)
			}
			// Strictly sequential; each document's pipeline is independent.
			for _, path := range c.Args().Slice() {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				rec, err := orch.Upload(c.Context, filepath.Base(path), data)
				if err != nil {
					return err
				}
				fmt.Printf("%s\t%s\t%s\n", rec.ID, rec.Status, rec.Filename)
			}
			return nil
		},
	}
}

func ocrCmd(orch *pipeline.Orchestrator) *cli.Command {
	return &cli.Command{
		Name:      "ocr",
		Usage:     "Run text extraction for an invoice record",
		ArgsUsage: "<invoice-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("invoice id is required", 2)
			}
			rec, err := orch.RunOCR(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\n", rec.ID, rec.Status)
			return nil
		},
	}
}

func llmCmd(orch *pipeline.Orchestrator) *cli.Command {
	return &cli.Command{
		Name:      "llm",
		Usage:     "Send an invoice transcript to the configured LLM provider",
		ArgsUsage: "<invoice-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("invoice id is required", 2)
			}
			rec, err := orch.RunLLM(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\n", rec.ID, rec.Status)
			return nil
		},
	}
}

func processCmd(orch *pipeline.Orchestrator) *cli.Command {
	return &cli.Command{
		Name:      "process",
		Usage:     "Run OCR and LLM extraction back to back",
		ArgsUsage: "<invoice-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("invoice id is required", 2)
			}
			rec, err := orch.Process(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\n", rec.ID, rec.Status)
			return nil
		},
	}
}

func resultCmd(orch *pipeline.Orchestrator) *cli.Command {
	return &cli.Command{
		Name:      "result",
		Usage:     "Print the structured invoice data recovered from the LLM reply",
		ArgsUsage: "<invoice-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("invoice id is required", 2)
			}
			parsed, err := orch.ParsedResult(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			return outputJSON(parsed)
		},
	}
}

func listCmd(orch *pipeline.Orchestrator) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List invoice records, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 200, Usage: "Maximum records"},
			&cli.BoolFlag{Name: "latest", Usage: "Keep only the newest record per filename"},
		},
		Action: func(c *cli.Context) error {
			recs := orch.List(c.Context, c.Int("limit"), c.Bool("latest"))
			for _, rec := range recs {
				errMsg := ""
				if rec.Error != nil {
					errMsg = *rec.Error
				}
				fmt.Printf("%s\t%-8s\t%s\t%s\t%s\n",
					rec.ID, rec.Status, rec.CreatedAt.Format("02/01/2006 15:04"), rec.Filename, errMsg)
			}
			return nil
		},
	}
}

func exportCmd(repo repository.InvoiceRepository, logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write an XLSX snapshot of the invoice list",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output path (default invoices-<date>.xlsx)"},
			&cli.IntFlag{Name: "limit", Value: 500, Usage: "Maximum records"},
		},
		Action: func(c *cli.Context) error {
			out := c.String("out")
			if out == "" {
				out = fmt.Sprintf("invoices-%s.xlsx", time.Now().Format("2006-01-02"))
			}
			svc := export.NewService(repo, logger)
			data, err := svc.ExportInvoicesXLSX(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
