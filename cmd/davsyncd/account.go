package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/meridianlabs/davsync/pkg/client"
	"github.com/meridianlabs/davsync/pkg/config"
	"github.com/meridianlabs/davsync/pkg/types"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage registered accounts",
}

var accountAddCmd = &cobra.Command{
	Use:   "add <base-url> <username>",
	Short: "Register a new account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		label, _ := cmd.Flags().GetString("label")
		daemonAddr, _ := cmd.Flags().GetString("daemon-address")

		if daemonAddr != "" {
			c := client.New(daemonAddr)
			account, err := c.AddAccount(context.Background(), args[0], args[1], label)
			if err != nil {
				return err
			}
			fmt.Printf("account %s registered\n", account.ID)
			return nil
		}

		facade, s, err := localFacade(cmd)
		if err != nil {
			return err
		}
		defer facade.Stop()
		defer s.Close()

		account, err := facade.AddAccount(args[0], args[1], label)
		if err != nil {
			return err
		}
		fmt.Printf("account %s registered\n", account.ID)
		return nil
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		daemonAddr, _ := cmd.Flags().GetString("daemon-address")

		if daemonAddr != "" {
			c := client.New(daemonAddr)
			accounts, err := c.ListAccounts(context.Background())
			if err != nil {
				return err
			}
			for _, a := range accounts {
				fmt.Printf("%s\t%s\t%s@%s\n", a.ID, a.Label, a.Username, a.BaseURL)
			}
			return nil
		}

		facade, s, err := localFacade(cmd)
		if err != nil {
			return err
		}
		defer facade.Stop()
		defer s.Close()

		accounts, err := facade.Accounts()
		if err != nil {
			return err
		}
		for _, a := range accounts {
			fmt.Printf("%s\t%s\t%s@%s\n", a.ID, a.Label, a.Username, a.BaseURL)
		}
		return nil
	},
}

var accountUpdateCmd = &cobra.Command{
	Use:   "update <account-id>",
	Short: "Change an account's label",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label, _ := cmd.Flags().GetString("label")

		facade, s, err := localFacade(cmd)
		if err != nil {
			return err
		}
		defer facade.Stop()
		defer s.Close()

		account, err := facade.UpdateAccount(types.AccountID(args[0]), label)
		if err != nil {
			return err
		}
		fmt.Printf("account %s updated\n", account.ID)
		return nil
	},
}

var accountRemoveCmd = &cobra.Command{
	Use:   "remove <account-id>",
	Short: "Deregister an account and delete its local mirror",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		daemonAddr, _ := cmd.Flags().GetString("daemon-address")

		if daemonAddr != "" {
			c := client.New(daemonAddr)
			if err := c.RemoveAccount(context.Background(), types.AccountID(args[0])); err != nil {
				return err
			}
			fmt.Println("account removed")
			return nil
		}

		facade, s, err := localFacade(cmd)
		if err != nil {
			return err
		}
		defer facade.Stop()
		defer s.Close()

		if err := facade.RemoveAccount(types.AccountID(args[0])); err != nil {
			return err
		}
		fmt.Println("account removed")
		return nil
	},
}

var accountImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Register every account listed in a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var accounts []config.AccountConfig
		if err := yaml.Unmarshal(data, &accounts); err != nil {
			return err
		}

		facade, s, err := localFacade(cmd)
		if err != nil {
			return err
		}
		defer facade.Stop()
		defer s.Close()

		for _, a := range accounts {
			account, err := facade.AddAccount(a.BaseURL, a.Username, a.Label)
			if err != nil {
				return fmt.Errorf("import %s: %w", a.BaseURL, err)
			}
			fmt.Printf("account %s registered\n", account.ID)
		}
		return nil
	},
}

var accountExportCmd = &cobra.Command{
	Use:   "export <file.yaml>",
	Short: "Write every registered account to a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		facade, s, err := localFacade(cmd)
		if err != nil {
			return err
		}
		defer facade.Stop()
		defer s.Close()

		accounts, err := facade.Accounts()
		if err != nil {
			return err
		}
		out := make([]config.AccountConfig, len(accounts))
		for i, a := range accounts {
			out[i] = config.AccountConfig{BaseURL: a.BaseURL, Username: a.Username, Label: a.Label}
		}

		data, err := yaml.Marshal(out)
		if err != nil {
			return err
		}
		return os.WriteFile(args[0], data, 0o644)
	},
}

func init() {
	accountAddCmd.Flags().String("label", "", "Human-readable label for the account")
	accountUpdateCmd.Flags().String("label", "", "New label")

	accountCmd.AddCommand(accountAddCmd, accountListCmd, accountUpdateCmd, accountRemoveCmd, accountImportCmd, accountExportCmd)
}
