package cmd

import (
	"fmt"

	internalApp "github.com/haierkeys/onyx-note-sync/internal/app"
	"github.com/spf13/cobra"
)

type tokenFlags struct {
	commonFlags
	owner string
	save  bool
}

func init() {
	tokenEnv := new(tokenFlags)

	var tokenCommand = &cobra.Command{
		Use:   "token --owner name [--save]",
		Short: "Issue an identity token for the collection server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadRuntime(&tokenEnv.commonFlags)
			if err != nil {
				return err
			}
			token, err := internalApp.NewTokenManager(cfg).Generate(tokenEnv.owner)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)

			if tokenEnv.save {
				cfg.Remote.Token = token
				if err := cfg.Save(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "remote.token saved to %s\n", cfg.File)
			}
			return nil
		},
	}

	rootCmd.AddCommand(tokenCommand)
	bindCommonFlags(tokenCommand, &tokenEnv.commonFlags)
	fs := tokenCommand.Flags()
	fs.StringVarP(&tokenEnv.owner, "owner", "o", "", "identity the token is issued for")
	fs.BoolVar(&tokenEnv.save, "save", false, "write the token into remote.token of the config file")
	_ = tokenCommand.MarkFlagRequired("owner")
}
