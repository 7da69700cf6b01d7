// Package commands holds the cobra commands of the pharmabot binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/pharmabot/internal/audit"
	"github.com/54b3r/pharmabot/internal/config"
	"github.com/54b3r/pharmabot/internal/logging"
)

// rootFlags are the persistent flags every subcommand sees.
type rootFlags struct {
	configPath string
	envFiles   []string
}

// NewRootCmd returns the pharmabot command tree.
func NewRootCmd() *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:   "pharmabot",
		Short: "Pharmabot, a retrieval-augmented pharmacy assistant",
		Long: `Pharmabot answers pharmacy questions from a reference corpus.

A question is matched against the indexed corpus (vector search, optionally
fused with BM25 keyword search), combined with the user's recent turns and
answered by the configured language model. Each turn is stored per user.

Settings are read from the environment, then .env files, then an optional
YAML file (~/.pharmabot/config.yaml). The environment always wins.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return flags.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "YAML config file (default: ~/.pharmabot/config.yaml)")
	pf.StringSliceVar(&flags.envFiles, "env-file", nil, "dotenv file(s) read before configuration (default: .env)")

	root.AddCommand(
		NewServeCmd(),
		NewAskCmd(),
		NewIngestCmd(),
		NewHistoryCmd(),
		NewVersionCmd(),
	)
	return root
}

// load applies .env files and YAML onto the environment, then records the
// invocation in the audit log.
func (f *rootFlags) load(cmd *cobra.Command) error {
	log := logging.New()
	if _, err := config.LoadDotEnv(log, f.envFiles...); err != nil {
		return err
	}
	path, err := config.Load(f.configPath, log)
	if err != nil {
		return err
	}
	audit.LogCommandStart(log, cmd.Name(), path)
	return nil
}
