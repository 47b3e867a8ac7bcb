package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mstgnz/paysettle/infra/config"
	"github.com/mstgnz/paysettle/infra/orders"
	"github.com/mstgnz/paysettle/infra/storage"
	"github.com/mstgnz/paysettle/provider"
	"github.com/mstgnz/paysettle/provider/safetypay"
	"github.com/spf13/cobra"
)

// errSignatureMismatch makes verify exit non-zero without printing usage
var errSignatureMismatch = errors.New("signature mismatch")

// openStore is replaced in tests
var openStore = func(ctx context.Context) (provider.NotificationStore, error) {
	return storage.Open(ctx, config.GetAppConfig())
}

func pendingCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			items, err := store.GetAll(cmd.Context())
			if err != nil {
				return err
			}
			return printPending(cmd.OutOrStdout(), items, asJSON)
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func printPending(out io.Writer, items []*provider.PendingNotification, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if items == nil {
			items = []*provider.PendingNotification{}
		}
		return enc.Encode(items)
	}

	if len(items) == 0 {
		fmt.Fprintln(out, "No pending notifications")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCORRELATION ID\tSTATUS\tAMOUNT\tCURRENCY\tCONFIRMED\tUPDATED")
	for _, n := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%t\t%s\n",
			n.ID, n.CorrelationID, valueOr(n.StatusCode, "-"), n.Amount.StringFixed(2),
			valueOr(n.CurrencyID, "-"), n.OperationCodeConfirmed, n.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func reconcileCmd() *cobra.Command {
	var settingsFile string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass against the order service",
		Long: `Reconcile every pending notification once:
- paid notifications settle their order
- expired ones are reissued or abandoned depending on settings
- anything else stays pending`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.GetAppConfig()

			settings, err := config.LoadSettings(settingsFile)
			if err != nil {
				return err
			}

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			pm, err := provider.CreateMethod(safetypay.SystemName, provider.Dependencies{
				Store: store,
				Orders: orders.NewClient(orders.Config{
					BaseURL: cfg.OrderServiceURL,
					Token:   cfg.OrderServiceToken,
					Timeout: cfg.OrderTimeout,
				}),
			}, settings.ToMap())
			if err != nil {
				return err
			}
			method, ok := pm.(*safetypay.Method)
			if !ok {
				return fmt.Errorf("unexpected payment method type %T", pm)
			}

			report, err := method.Reconciler().Execute(ctx)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().StringVar(&settingsFile, "settings", os.Getenv("SAFETYPAY_SETTINGS_FILE"), "SafetyPay settings YAML file")
	return cmd
}

func printReport(out io.Writer, r *safetypay.ReconcileReport) {
	fmt.Fprintln(out, "Reconciliation")
	fmt.Fprintln(out, strings.Repeat("=", 40))
	fmt.Fprintf(out, "  %-10s %d\n", "Total:", r.Total)
	fmt.Fprintf(out, "  %-10s %d\n", "Paid:", r.Paid)
	fmt.Fprintf(out, "  %-10s %d\n", "Reissued:", r.Reissued)
	fmt.Fprintf(out, "  %-10s %d\n", "Abandoned:", r.Abandoned)
	fmt.Fprintf(out, "  %-10s %d\n", "Pending:", r.Pending)
	fmt.Fprintf(out, "  %-10s %d\n", "Failed:", r.Failed)
	for _, e := range r.Errors {
		fmt.Fprintf(out, "  ! %s\n", e)
	}
}

func signCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "sign [field...]",
		Short: "Compute the signature of fields in protocol order",
		Example: `  settlectl sign --key SECRET 2024-05-01T10:00:00 3fa85f64-5717-4562-b3fc-2c963f66afa6 123456 \
    2024-05-01T09:59:00 19.99 USD 778899 102`,
		RunE: func(cmd *cobra.Command, args []string) error {
			key = keyOrEnv(key)
			if key == "" {
				return errors.New("--key or SAFETYPAY_SIGNATURE_KEY is required")
			}
			fmt.Fprintln(cmd.OutOrStdout(), safetypay.Sign(args, key))
			return nil
		},
	}

	cmd.Flags().StringVarP(&key, "key", "k", "", "Signature key (defaults to SAFETYPAY_SIGNATURE_KEY)")
	return cmd
}

func verifyCmd() *cobra.Command {
	var key, payload string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Parse a notification payload and check its signature",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key = keyOrEnv(key)
			if key == "" {
				return errors.New("--key or SAFETYPAY_SIGNATURE_KEY is required")
			}
			if payload == "-" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				payload = strings.TrimSpace(string(raw))
			}

			n, err := safetypay.ParseNotification([]byte(payload))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "MerchantSalesID: %s\n", n.MerchantSalesID)
			fmt.Fprintf(out, "Status:          %s (%s)\n", n.Status, safetypay.DecodeStatus(n.Status))
			fmt.Fprintf(out, "Amount:          %s %s\n", n.Amount.StringFixed(2), n.CurrencyID)

			expected := safetypay.Sign(n.SignatureFields(), key)
			if !n.VerifySignature(key) {
				fmt.Fprintf(out, "Signature:       INVALID (expected %s)\n", expected)
				return errSignatureMismatch
			}
			fmt.Fprintln(out, "Signature:       OK")
			return nil
		},
	}

	cmd.Flags().StringVarP(&key, "key", "k", "", "Signature key (defaults to SAFETYPAY_SIGNATURE_KEY)")
	cmd.Flags().StringVarP(&payload, "payload", "p", "-", "Raw notification body, - reads stdin")
	return cmd
}

func keyOrEnv(key string) string {
	if key != "" {
		return key
	}
	return config.GetEnv("SAFETYPAY_SIGNATURE_KEY", "")
}

func valueOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
