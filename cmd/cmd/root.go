package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ostafen/digler-tftpd/internal/version"
)

const AppName = "digler-tftpd"

func Execute() error {
	rootCmd := &cobra.Command{
		Use:     AppName,
		Short:   AppName + " - TFTP netboot server for FAT disk images",
		Version: version.String(),
	}

	rootCmd.AddCommand(DefineServeCommand())
	rootCmd.AddCommand(DefineBoardsCommand())
	rootCmd.AddCommand(DefineFsCommand())

	return rootCmd.Execute()
}
