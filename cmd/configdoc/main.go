// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// configdoc generates markdown documentation from Go struct tags.
// Usage: go run ./cmd/configdoc > doc/CONFIG_REFERENCE.md
package main

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/aplane-ton/custody/internal/security"
	"github.com/aplane-ton/custody/internal/util"
)

// EnvVar represents an environment variable configuration
type EnvVar struct {
	Name        string
	Description string
	UsedBy      string
}

var envVars = []EnvVar{
	{"CUSTODY_DATA", "Data directory (config.yaml and keystore)", "custodyctl"},
	{"CUSTODY_DEBUG", "Set to any value to enable debug logging", "custodyctl"},
	{security.DisableMemoryLockEnv, "Set to any value to skip memory locking (for debugging)", "custodyctl"},
}

// field is one row of the configuration table.
type field struct {
	Key         string
	Type        string
	Default     string
	Description string
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--help" {
		fmt.Println("Usage: go run ./cmd/configdoc > doc/CONFIG_REFERENCE.md")
		fmt.Println()
		fmt.Println("Generates markdown documentation from Go struct tags.")
		return
	}
	writeReference(os.Stdout)
}

func writeReference(w io.Writer) {
	fmt.Fprintln(w, "# Configuration Reference")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Auto-generated from Go struct tags. Do not edit manually.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "---")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## custody Configuration")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "File: `config.yaml` in the data directory (`-d` or `CUSTODY_DATA`)")
	fmt.Fprintln(w)
	writeFields(w, fields(reflect.TypeOf(util.Config{}), ""))
	fmt.Fprintln(w)

	writeExpirations(w)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Environment Variables")
	fmt.Fprintln(w)
	writeEnvVars(w)
}

// fields flattens the yaml-tagged fields of t. Nested structs are listed
// as an object row followed by their own fields under a dotted key.
func fields(t reflect.Type, prefix string) []field {
	var out []field
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)

		tag := f.Tag.Get("yaml")
		if tag == "" {
			tag = f.Tag.Get("json")
		}
		if tag == "" || tag == "-" {
			continue
		}
		key := strings.Split(tag, ",")[0]
		if prefix != "" {
			key = prefix + "." + key
		}

		desc := f.Tag.Get("description")
		ft := f.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			if desc == "" {
				desc = "(nested config block)"
			}
			out = append(out, field{Key: key, Type: "object", Default: "(none)", Description: desc})
			out = append(out, fields(ft, key)...)
			continue
		}
		if desc == "" {
			desc = "(no description)"
		}

		def := f.Tag.Get("default")
		switch def {
		case "":
			def = "(none)"
		case `""`:
			def = "(empty string)"
		default:
			def = "`" + def + "`"
		}
		out = append(out, field{Key: key, Type: typeName(f.Type), Default: def, Description: desc})
	}
	return out
}

func writeFields(w io.Writer, rows []field) {
	fmt.Fprintln(w, "| Field | Type | Default | Description |")
	fmt.Fprintln(w, "|-------|------|---------|-------------|")
	for _, r := range rows {
		fmt.Fprintf(w, "| `%s` | %s | %s | %s |\n", r.Key, r.Type, r.Default, r.Description)
	}
}

func typeName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "int"
	case reflect.Bool:
		return "bool"
	case reflect.Slice:
		return "[]" + typeName(t.Elem())
	case reflect.Map:
		return "map[" + typeName(t.Key()) + "]" + typeName(t.Elem())
	case reflect.Ptr:
		return "*" + typeName(t.Elem())
	default:
		return t.String()
	}
}

// writeExpirations lists the built-in multisig order lifetimes.
func writeExpirations(w io.Writer) {
	fmt.Fprintln(w, "### Default Contract Expirations")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Contract types without an entry expire after `%s`.\n", util.DefaultExpiration)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Contract | Lifetime |")
	fmt.Fprintln(w, "|----------|----------|")

	defaults := util.DefaultConfig().ContractExpirations
	names := make([]string, 0, len(defaults))
	for name := range defaults {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "| `%s` | `%s` |\n", name, defaults[name])
	}
}

func writeEnvVars(w io.Writer) {
	fmt.Fprintln(w, "| Variable | Description | Used By |")
	fmt.Fprintln(w, "|----------|-------------|---------|")
	for _, env := range envVars {
		fmt.Fprintf(w, "| `%s` | %s | %s |\n", env.Name, env.Description, env.UsedBy)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "### Data Directory Configuration")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "- `-d <path>` flag, or")
	fmt.Fprintln(w, "- `CUSTODY_DATA` environment variable")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Without either, the defaults apply and `keystore` is resolved against the working directory.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "### Password Precedence")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "1. `password_command_argv` config option (unattended use)")
	fmt.Fprintln(w, "2. Interactive terminal prompt, or one line of stdin when not a terminal")
}
