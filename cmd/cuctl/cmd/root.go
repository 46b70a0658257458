package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cuctl",
	Short: "cuctl stages training data and drives Content Understanding operations",
	Long: `cuctl talks directly to a Content Understanding resource and to the object
store that holds training and reference data.

Common workflows:

  Upload a labeled training set and check it is complete:
    cuctl stage --dir ./train --prefix invoices/v1
    cuctl validate --dir ./train --prefix invoices/v1

  Create an analyzer that learns from the staged set:
    cuctl create-analyzer invoice-v1 --template analyzer.json --dir ./train --prefix invoices/v1

  Analyze a document:
    cuctl analyze invoice-v1 --file ./sample.pdf

Configuration (flags, $HOME/.cuctl.yaml, or CU_* environment variables):
    CU_ENDPOINT            Content Understanding endpoint
    CU_SUBSCRIPTION_KEY    resource key (or CU_TENANT_ID / CU_CLIENT_ID / CU_CLIENT_SECRET)
    CU_STORAGE_ENDPOINT    S3-compatible store endpoint
    CU_CONTAINER_URL       container URL the service reads staged data from`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".cuctl")
		viper.SetConfigType("yaml")
	}

	// CU_POLL_INTERVAL -> poll-interval
	viper.SetEnvPrefix("CU")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cuctl.yaml)")

	pf.String("endpoint", "", "Content Understanding endpoint URL")
	pf.String("subscription-key", "", "resource subscription key")
	pf.String("api-version", "", "API version (default 2025-05-01-preview)")
	pf.String("tenant-id", "", "Entra tenant for client-credentials auth")
	pf.String("client-id", "", "Entra application id")
	pf.String("client-secret", "", "Entra application secret")
	pf.String("poll-policy", "fixed", "poll policy: fixed or exponential")
	pf.Duration("poll-interval", 0, "delay between polls (default 2s)")
	pf.Duration("timeout", 0, "operation timeout (default 5m, 20m for pro mode)")

	pf.String("storage-endpoint", "", "S3-compatible store endpoint (host:port)")
	pf.String("storage-region", "", "store region")
	pf.String("storage-bucket", "", "bucket holding staged data")
	pf.String("storage-access-key", "", "store access key")
	pf.String("storage-secret-key", "", "store secret key")
	pf.Bool("storage-ssl", true, "use TLS for the store")
	pf.String("container-url", "", "container URL handed to the service (e.g. a blob container SAS)")

	pf.String("log-level", "warn", "log level")

	for _, name := range []string{
		"endpoint", "subscription-key", "api-version", "tenant-id", "client-id", "client-secret",
		"poll-policy", "poll-interval", "timeout",
		"storage-endpoint", "storage-region", "storage-bucket", "storage-access-key", "storage-secret-key",
		"storage-ssl", "container-url", "log-level",
	} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}
