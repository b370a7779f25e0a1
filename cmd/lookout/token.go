package main

import (
	"fmt"

	"github.com/cuemby/lookout/pkg/auth"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage credentials",
}

var tokenGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a random token for the discovery secret, API or admin token",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := auth.GenerateToken()
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenGenerateCmd)
}
