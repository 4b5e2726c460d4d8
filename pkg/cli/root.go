package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/xplshn/rascal/pkg/codegen"
	"github.com/xplshn/rascal/pkg/config"
)

// RootOptions holds the flags shared by every command.
type RootOptions struct {
	Verbose    bool
	ConfigFile string
	Backend    string
	Target     string
	CC         string
	Warnings   []string
	Features   []string

	cfg *config.Config
	// Toolchain overrides the C compiler driver; tests set it.
	Toolchain codegen.Toolchain
}

// NewRootCommand creates the rascalc command tree.
func NewRootCommand() *cobra.Command { return newRootCommand(&RootOptions{}) }

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rascalc",
		Short: "Compiler for the Rascal language",
		Long: `rascalc type checks Rascal programs, lowers them to a flat stack IR and
renders that IR as C or QBE for an external toolchain to turn into a binary.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.configure()
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "print progress while compiling")
	pf.StringVar(&opts.ConfigFile, "config", "", "read settings from a rascal.yaml project file")
	pf.StringVarP(&opts.Backend, "backend", "b", "", "code generation backend (c, qbe)")
	pf.StringVarP(&opts.Target, "target", "t", "", "QBE target ABI, defaults to the host")
	pf.StringVar(&opts.CC, "cc", "", "C compiler driver used to produce the binary")
	pf.StringArrayVarP(&opts.Warnings, "warn", "W", nil, "enable warning <name>, or disable it with no-<name> (all toggles every warning)")
	pf.StringArrayVarP(&opts.Features, "feature", "F", nil, "enable feature <name>, or disable it with no-<name>")

	cmd.AddCommand(newBuildCommand(opts))
	cmd.AddCommand(newCheckCommand(opts))
	cmd.AddCommand(newIRCommand(opts))
	cmd.AddCommand(newEmitCommand(opts))
	cmd.AddCommand(newFlagsCommand(opts))

	return cmd
}

// configure layers the project file, then the command line, over the defaults.
func (o *RootOptions) configure() (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Log = nil
	if o.Verbose {
		cfg.Log = os.Stderr
	}

	if o.ConfigFile != "" {
		if err := cfg.LoadFile(o.ConfigFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.ProcessFlags(o.Warnings, o.Features); err != nil {
		return nil, err
	}
	if o.Backend != "" {
		cfg.BackendName = o.Backend
	}
	if o.CC != "" {
		cfg.CC = o.CC
	}

	target := o.Target
	if target == "" {
		target = cfg.QbeTarget
	}
	cfg.SetTarget(runtime.GOOS, runtime.GOARCH, target)
	return cfg, nil
}

func (o *RootOptions) session(cmd *cobra.Command) *Session {
	return NewSession(o.cfg, o.Verbose, cmd.ErrOrStderr())
}

type buildOptions struct {
	*RootOptions
	Output     string
	Staging    string
	LinkerArgs []string
}

func newBuildCommand(root *RootOptions) *cobra.Command {
	opts := &buildOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "build <input.ras> ...",
		Short: "Compile sources into an executable",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Staging != "" {
				opts.cfg.StagingPath = opts.Staging
			}
			opts.cfg.LinkerArgs = append(opts.cfg.LinkerArgs, opts.LinkerArgs...)
			return opts.session(cmd).Build(args, opts.Output, opts.Toolchain)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "a.out", "place the executable into <file>")
	cmd.Flags().StringVar(&opts.Staging, "staging", "", "where to write the rendered target source")
	cmd.Flags().StringArrayVarP(&opts.LinkerArgs, "linker-arg", "L", nil, "pass an argument to the toolchain")

	return cmd
}

func newCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <input.ras> ...",
		Short: "Type check sources and print the top-level declarations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := opts.session(cmd)
			if err := s.Check(args); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range s.Checker.Globals() {
				fmt.Fprintf(out, "%s: %s\n", m.Symbol, m.Var.Type)
			}
			return nil
		},
	}
}

func newIRCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ir <input.ras> ...",
		Short: "Dump the intermediate representation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := opts.session(cmd)
			if err := s.Lower(args); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), s.Program.String())
			return nil
		},
	}
}

func newEmitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "emit <input.ras> ...",
		Short: "Print the rendered target source without building",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := opts.session(cmd)
			if err := s.Lower(args); err != nil {
				return err
			}
			backend, err := s.Backend(opts.Toolchain)
			if err != nil {
				return err
			}
			src, err := backend.Render(s.Program)
			if err != nil {
				return s.fail(err)
			}
			fmt.Fprint(cmd.OutOrStdout(), src)
			return nil
		},
	}
}

func newFlagsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flags",
		Short: "List warnings and features with their current state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Warnings:")
			opts.cfg.PrintWarnings(out)
			fmt.Fprintln(out, "Features:")
			opts.cfg.PrintFeatures(out)
			return nil
		},
	}
}
