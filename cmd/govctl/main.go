package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/jmerrifield20/govledger/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL   string
	bearerToken string
	cfgFile     string
	outFormat   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "govctl",
	Short: "govledger command-line client",
	Long: `govctl talks to a govledger server.

It queries current and historical voting weight, changes delegation, and
lets the token owner mint, burn and mine blocks.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.govctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("govctl")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if bearerToken == "" {
			bearerToken = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.govctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "govledger server URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&bearerToken, "token", "", "caller token for mutating commands")
	rootCmd.PersistentFlags().StringVar(&outFormat, "format", "text", "Output format: text or json")

	rootCmd.AddCommand(headCmd, mineCmd)
	rootCmd.AddCommand(votesCmd, priorVotesCmd, checkpointsCmd, accountCmd)
	rootCmd.AddCommand(delegateCmd, undelegateCmd, mintCmd, burnCmd)
	rootCmd.AddCommand(tokenCmd, ledgerCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the govctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("govctl %s\n", version)
	},
}

// ── helpers ──────────────────────────────────────────────────────────────────

func newClient() (*client.Client, error) {
	var opts []client.Option
	if bearerToken != "" {
		opts = append(opts, client.WithBearerToken(bearerToken))
	}
	return client.New(serverURL, opts...)
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := math.ParseBig256(s)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

// printResult writes v as indented JSON in json mode, or text otherwise.
func printResult(v any, text string) error {
	if outFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Println(text)
	return nil
}
