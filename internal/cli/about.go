package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fastertools/drivelink/internal/auth"
	"github.com/fastertools/drivelink/internal/drive"
)

// aboutFetcher is the part of the Drive client used by 'about'
type aboutFetcher interface {
	About(ctx context.Context) (*drive.About, error)
}

func newAboutCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "about",
		Short: "Show the Drive account and storage quota",
		Long: `Call the Drive API with the cached credentials and print the account
owner and storage usage. Runs the device flow first if no usable token is cached.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			display := NewConsoleDisplay(cmd.ErrOrStderr(), sess.cfg.NoBrowser)
			provider, err := sess.provider("", display, false)
			if err != nil {
				return err
			}

			ctx, cancel := interruptible()
			defer cancel()

			client, err := drive.NewClient(auth.TokenSource(ctx, provider), sess.cfg.DriveURL)
			if err != nil {
				return err
			}

			return runAbout(ctx, NewDataWriter(cmd.OutOrStdout(), output), client)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	return cmd
}

func runAbout(ctx context.Context, dw *DataWriter, client aboutFetcher) error {
	about, err := client.About(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch account information: %w", err)
	}

	if dw.Format() == OutputFormatJSON {
		return dw.WriteStruct(about)
	}

	quota := about.StorageQuota
	limit := "unlimited"
	if !quota.Unlimited() {
		limit = formatBytes(quota.Limit)
	}

	return NewKeyValueBuilder("Google Drive").
		Add("User", about.User.DisplayName).
		Add("Email", about.User.EmailAddress).
		Add("Used", formatBytes(quota.Usage)).
		Add("In Drive", formatBytes(quota.UsageInDrive)).
		AddIf(quota.UsageInDriveTrash > 0, "In Trash", formatBytes(quota.UsageInDriveTrash)).
		Add("Limit", limit).
		Write(dw)
}
