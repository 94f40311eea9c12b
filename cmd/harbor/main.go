// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command harbor runs the embedded web server.
//
// Usage:
//
//	# Start with defaults, primary connector on $PORT or 8080
//	harbor
//
//	# Layer a YAML file and individual properties on top
//	harbor -c harbor.yaml -Dhttp.enableSSL=true -Dssl.keyStore=server.p12
//
// Configuration precedence, lowest first: built-in defaults, the YAML
// file, environment variables, -D properties.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/z5labs/harbor"
	"github.com/z5labs/harbor/bootstrap"
	"github.com/z5labs/harbor/config"

	"github.com/spf13/cobra"
)

func main() {
	err := newRootCommand(runServer).ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type runFunc func(context.Context, ...config.Source) error

func runServer(ctx context.Context, srcs ...config.Source) error {
	return harbor.Run(ctx, bootstrap.Builder(), srcs...)
}

func newRootCommand(run runFunc) *cobra.Command {
	var (
		cfgFile string
		defines []string
	)

	cmd := &cobra.Command{
		Use:           "harbor",
		Short:         "harbor - embedded HTTP and AJP server",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			srcs, err := sources(cfgFile, defines)
			if err != nil {
				return err
			}
			return run(cmd.Context(), srcs...)
		},
	}

	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "YAML config file, rendered as a text/template first")
	cmd.Flags().StringArrayVarP(&defines, "define", "D", nil, "set a config property, e.g. -Dhttp.maxThread=100")
	return cmd
}

func sources(cfgFile string, defines []string) ([]config.Source, error) {
	srcs := []config.Source{bootstrap.Defaults()}
	if cfgFile != "" {
		f, err := os.Open(cfgFile)
		if err != nil {
			return nil, err
		}
		srcs = append(srcs, config.FromYaml(config.RenderTextTemplate(f)))
	}
	return append(srcs, config.FromEnv(), config.FromProperties(defines...)), nil
}
