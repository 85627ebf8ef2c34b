package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"

	"github.com/ardnew/softi3c/internal/scenario"
)

// ConfigCmd groups configuration subcommands.
type ConfigCmd struct {
	Init ConfigInit `cmd:"" help:"Write a configuration or scenario template"`
}

// ConfigInit writes a template file.
type ConfigInit struct {
	Kind   string `arg:"" help:"Template to write" enum:"cli,scenario"`
	Format string `help:"Output format (scenarios take yaml or toml)" enum:"json,yaml,toml" default:"yaml"`
	Output string `help:"Destination file (default i3csim.<ext> or bus.<ext>)"`
	Force  bool   `help:"Overwrite an existing file"`
}

// cliDefaults mirrors the global flags under their flag names.
func cliDefaults() map[string]any {
	return map[string]any{
		"scenario":   "bus.yaml",
		"timeout":    "100ms",
		"log-level":  "info",
		"log-format": "text",
	}
}

func (c *ConfigInit) Run(out io.Writer) error {
	var (
		data []byte
		err  error
		dest = c.Output
	)
	switch c.Kind {
	case "scenario":
		if c.Format == "json" {
			return errors.New("scenario files are yaml or toml")
		}
		data, err = scenario.Template().Marshal(scenario.Format(c.Format))
		if dest == "" {
			dest = "bus." + c.Format
		}
	default:
		data, err = marshalMap(cliDefaults(), c.Format)
		if dest == "" {
			dest = "i3csim." + c.Format
		}
	}
	if err != nil {
		return err
	}

	if !c.Force {
		if _, err := os.Stat(dest); err == nil {
			return fmt.Errorf("%s exists; use --force to overwrite", dest)
		}
	}
	if err := ensureDir(dest); err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", dest)
	return nil
}

func marshalMap(m map[string]any, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(m, "", "  ")
		return append(data, '\n'), err
	case "yaml":
		return yaml.Marshal(m)
	case "toml":
		return toml.Marshal(m)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}
