package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"route-aggregator/internal/handlers"
)

var (
	tokenUser string
	tokenTTL  time.Duration
)

var adminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Mint an operator JWT for the admin API",
	Long: `Signs an HS256 operator token with admin.jwtSecret (or ADMIN_JWT_SECRET).
Without --ttl the token lives for admin.tokenTTL minutes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = time.Duration(cfg.Admin.TokenTTL) * time.Minute
		}

		token, err := handlers.GenerateAdminJWTToken([]byte(cfg.Admin.JWTSecret), tokenUser, ttl)
		if err != nil {
			return err
		}
		expires := time.Now().Add(ttl)

		if viper.GetBool("json") {
			return printJSON(map[string]any{
				"token":     token,
				"username":  tokenUser,
				"expiresAt": expires.UTC(),
			})
		}

		color.Green("\nOperator token for %s", tokenUser)
		fmt.Println(token)
		fmt.Printf("\nExpires: %s\n", expires.Format(time.RFC3339))
		fmt.Println("\nUsage:")
		color.Cyan("  curl -H 'Authorization: Bearer %s' http://localhost:%d/api/v1/admin/sources\n", token, cfg.Server.Port)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adminTokenCmd)

	adminTokenCmd.Flags().StringVar(&tokenUser, "user", "admin", "Operator name recorded in the token")
	adminTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (e.g. 30m, 12h)")
}

func quietLogrus() *logrus.Logger {
	l := logrus.New()
	if !viper.GetBool("verbose") {
		l.SetOutput(io.Discard)
	}
	return l
}

var totpAccount string

var totpSecretCmd = &cobra.Command{
	Use:   "totp-secret",
	Short: "Generate a TOTP secret for admin login",
	Long: `Prints a new TOTP secret and its otpauth:// URL. Store the secret in
ADMIN_TOTP_SECRET and enrol the URL in an authenticator app.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := handlers.GenerateTOTPKey(totpAccount)
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			return printJSON(map[string]string{"secret": key.Secret(), "url": key.URL()})
		}
		color.Green("\nTOTP secret for %s", totpAccount)
		fmt.Println(key.Secret())
		fmt.Printf("\nEnrolment URL:\n%s\n", key.URL())
		color.Yellow("\nSet ADMIN_TOTP_SECRET on the server; this secret is not shown again.\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(totpSecretCmd)
	totpSecretCmd.Flags().StringVar(&totpAccount, "account", "admin", "Account name shown in the authenticator app")
}
