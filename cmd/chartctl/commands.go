package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bizmatters/agent-builder/chart-studio/internal/auth"
	"github.com/bizmatters/agent-builder/chart-studio/internal/chartspec"
	"github.com/bizmatters/agent-builder/chart-studio/internal/config"
	"github.com/bizmatters/agent-builder/chart-studio/internal/database"
	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
	"github.com/bizmatters/agent-builder/chart-studio/internal/patch"
)

// errReported marks failures already written to stderr.
var errReported = errors.New("reported")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chartctl",
		Short:         "Chart studio offline tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newValidateCmd(), newApplyCmd(), newSeedUserCmd())
	return root
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <spec.json>",
		Short: "Check a chart document against the schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := readSpec(args[0])
			if err != nil {
				return report(cmd, err)
			}
			if err := chartspec.Validate(spec); err != nil {
				var schemaErr *chartspec.SchemaError
				if errors.As(err, &schemaErr) {
					for _, v := range schemaErr.Violations {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s (%s)\n", v.Path, v.Message, v.Rule)
					}
					return errReported
				}
				return report(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid %s chart, version %d\n", args[0], spec.ChartType, spec.Version)
			return nil
		},
	}
}

func newApplyCmd() *cobra.Command {
	var compact bool

	cmd := &cobra.Command{
		Use:   "apply <spec.json> <patches.json>",
		Short: "Apply a patch list to a chart document and print the result",
		Long: "Applies the patches with the same all-or-nothing validation the " +
			"service uses. The patch file is either a JSON array of operations " +
			"or an AI edit response with a patches field.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := readSpec(args[0])
			if err != nil {
				return report(cmd, err)
			}
			ops, err := readPatches(args[1])
			if err != nil {
				return report(cmd, err)
			}

			res := patch.ApplyAndValidate(spec, ops)
			if res.Status != patch.StatusApplied {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", res.Err.Kind, res.Err.Error())
				return errReported
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(res.Spec)
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "print the result on one line")
	return cmd
}

func newSeedUserCmd() *cobra.Command {
	var name, email, password, configPath string

	cmd := &cobra.Command{
		Use:   "seed-user",
		Short: "Create a user account in the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := auth.ValidateNewUser(name, email, password); err != nil {
				return report(cmd, err)
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return report(cmd, err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			pool, err := database.Connect(ctx, cfg.Database.URL, 1)
			if err != nil {
				return report(cmd, err)
			}
			defer pool.Close()

			users := auth.NewUserStore(pool)
			if err := users.EnsureSchema(ctx); err != nil {
				return report(cmd, err)
			}
			user, err := users.CreateUser(ctx, name, email, password)
			if err != nil {
				return report(cmd, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Created user")
			fmt.Fprintf(out, "  ID: %s\n", user.ID)
			fmt.Fprintf(out, "  Name: %s\n", user.Name)
			fmt.Fprintf(out, "  Email: %s\n", user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name of the user")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (min 8 chars)")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func report(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	return errReported
}

func readSpec(path string) (*chartspec.ChartSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return chartspec.Decode(f)
}

// readPatches accepts a bare operation array or an AI edit response.
func readPatches(path string) ([]models.PatchOp, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	var ops []models.PatchOp
	if err := json.Unmarshal(raw, &ops); err == nil {
		return ops, nil
	}

	var resp models.AiEditResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%s: not a patch array or edit response: %w", path, err)
	}
	return resp.Patches, nil
}
