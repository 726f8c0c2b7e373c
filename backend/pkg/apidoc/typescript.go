package apidoc

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/coder/guts"
	"github.com/coder/guts/config"
)

const tsHeader = "// Code generated by plant-monitor. DO NOT EDIT.\n\n"

// GenerateTypeScript renders the exported types of the Go package in dir as
// TypeScript declarations.
func GenerateTypeScript(l *slog.Logger, dir string) (string, error) {
	dir = normalizeLocalPackagePath(dir)

	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("go types dir %s: %w", dir, err)
	}

	l.Debug("Parsing Go types directory", slog.String("path", dir))

	goParser, err := guts.NewGolangParser()
	if err != nil {
		return "", fmt.Errorf("failed to create guts parser: %w", err)
	}

	goParser.PreserveComments()

	if err := goParser.IncludeGenerate(dir); err != nil {
		return "", fmt.Errorf("failed to include go types dir for parsing: %w", err)
	}

	var errs []error

	for _, pkg := range goParser.Pkgs {
		for _, e := range pkg.Errors {
			errs = append(errs, fmt.Errorf("failed to parse go types in %s: %w", pkg.PkgPath, e))
		}
	}

	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}

	ts, err := goParser.ToTypescript()
	if err != nil {
		return "", fmt.Errorf("failed to generate TypeScript AST: %w", err)
	}

	ts.ApplyMutations(
		config.ExportTypes,
		config.InterfaceToType,
		config.SimplifyOptional,
		config.NotNullMaps,
	)

	out, err := ts.Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize TypeScript: %w", err)
	}

	return tsHeader + out, nil
}

// normalizeLocalPackagePath makes sure the Go package loader treats path as local.
func normalizeLocalPackagePath(path string) string {
	path = strings.TrimPrefix(path, "./")
	path = strings.TrimPrefix(path, "/")

	return "./" + path
}
