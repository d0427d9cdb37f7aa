package cmd

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"idgate/internal/config"
	"idgate/internal/db"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys",
}

var (
	apikeyName        string
	apikeyPerMinute   int
	apikeyPerHour     int
	apikeyPerDay      int
	apikeyAllowedIPs  string
	apikeyDescription string
	apikeyExpiresIn   time.Duration
)

var apikeyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new API key",
	RunE: func(_ *cobra.Command, _ []string) error {
		conn, err := openDB()
		if err != nil {
			return err
		}

		params := db.NewAPIKeyParams{
			Name:        apikeyName,
			PerMinute:   apikeyPerMinute,
			PerHour:     apikeyPerHour,
			PerDay:      apikeyPerDay,
			AllowedIPs:  apikeyAllowedIPs,
			Description: apikeyDescription,
		}
		if apikeyExpiresIn > 0 {
			expires := time.Now().Add(apikeyExpiresIn)
			params.ExpiresAt = &expires
		}

		key, err := db.CreateAPIKey(conn, params)
		if err != nil {
			return err
		}

		// The secret is shown once here and never again.
		fmt.Printf("id:     %s\n", key.ID)
		fmt.Printf("name:   %s\n", key.Name)
		fmt.Printf("secret: %s\n", key.Key)
		fmt.Printf("limits: %d/min %d/hour %d/day\n",
			key.RateLimitPerMinute, key.RateLimitPerHour, key.RateLimitPerDay)
		return nil
	},
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered API keys",
	RunE: func(_ *cobra.Command, _ []string) error {
		conn, err := openDB()
		if err != nil {
			return err
		}

		var keys []db.APIKey
		if err := conn.Order("created_at").Find(&keys).Error; err != nil {
			return err
		}

		for _, k := range keys {
			state := "disabled"
			if k.Enabled {
				state = k.Status
			}
			fmt.Printf("%s  %-24s %-10s requests=%d\n", k.ID, k.Name, state, k.TotalRequests)
		}
		return nil
	},
}

var apikeyDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Disable an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		conn, err := openDB()
		if err != nil {
			return err
		}

		if err := db.SetAPIKeyEnabled(conn, args[0], false); err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("no API key with id %s", args[0])
			}
			return err
		}
		fmt.Printf("deactivated %s\n", args[0])
		return nil
	},
}

func openDB() (*gorm.DB, error) {
	_ = godotenv.Load()
	return db.Connect(config.Load())
}

func init() {
	apikeyGenerateCmd.Flags().StringVar(&apikeyName, "name", "", "human-friendly key name")
	apikeyGenerateCmd.Flags().IntVar(&apikeyPerMinute, "per-minute", 0, "per-minute rate limit (0 = default)")
	apikeyGenerateCmd.Flags().IntVar(&apikeyPerHour, "per-hour", 0, "per-hour rate limit (0 = default)")
	apikeyGenerateCmd.Flags().IntVar(&apikeyPerDay, "per-day", 0, "per-day rate limit (0 = default)")
	apikeyGenerateCmd.Flags().StringVar(&apikeyAllowedIPs, "allowed-ips", "", "comma-separated IP allow-list (empty = any)")
	apikeyGenerateCmd.Flags().StringVar(&apikeyDescription, "description", "", "key description")
	apikeyGenerateCmd.Flags().DurationVar(&apikeyExpiresIn, "expires-in", 0, "time until expiry (0 = never)")
	_ = apikeyGenerateCmd.MarkFlagRequired("name")

	apikeyCmd.AddCommand(apikeyGenerateCmd, apikeyListCmd, apikeyDeactivateCmd)
	rootCmd.AddCommand(apikeyCmd)
}
