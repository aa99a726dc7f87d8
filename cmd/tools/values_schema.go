package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lychee-technology/facet"
)

func runValuesSchema(args []string) error {
	flags := flag.NewFlagSet("values-schema", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: facet-tools values-schema [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	fieldsFile := flags.String("fields-file", "", "Path to a JSON array of field definitions (required)")
	outputFile := flags.String("out", "", "Path to write the schema (defaults to stdout)")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if *fieldsFile == "" {
		return fmt.Errorf("-fields-file is required")
	}

	encoded, err := buildValuesSchema(*fieldsFile)
	if err != nil {
		return err
	}

	if *outputFile == "" {
		fmt.Println(string(encoded))
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(*outputFile), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(*outputFile, encoded, 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	fmt.Printf("Values schema written, output: %s\n", *outputFile)
	return nil
}

// buildValuesSchema validates the field definitions in path and renders the
// schema a values document for them must satisfy.
func buildValuesSchema(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fields file: %w", err)
	}

	var fields []facet.Field
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("parse fields file: %w", err)
	}

	seen := make(map[string]int, len(fields))
	for i := range fields {
		if err := fields[i].Validate(); err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		key := facet.NormalizeName(fields[i].Name)
		if j, dup := seen[key]; dup {
			return nil, facet.NewNameConflictError(fields[i].Name, fields[j].ID, fields[i].ID)
		}
		seen[key] = i
	}

	encoded, err := json.MarshalIndent(facet.ValuesDocumentSchema(fields), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return encoded, nil
}
