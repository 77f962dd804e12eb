// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/holomush/visitor/internal/account"
	"github.com/holomush/visitor/internal/app"
	"github.com/holomush/visitor/internal/config"
	"github.com/holomush/visitor/internal/logging"
	"github.com/holomush/visitor/pkg/errutil"
)

const defaultInviteTimeout = 2 * time.Minute

type inviteConfig struct {
	file    string
	resend  bool
	timeout time.Duration
}

// inviteFile is the YAML batch format:
//
//	invitations:
//	  - email: ada@example.com
//	  - email: grace@example.com
type inviteFile struct {
	Invitations []struct {
		Email string `yaml:"email"`
	} `yaml:"invitations"`
}

// NewInviteCmd creates the invite subcommand.
func NewInviteCmd() *cobra.Command {
	cfg := &inviteConfig{}

	cmd := &cobra.Command{
		Use:   "invite [EMAIL...]",
		Short: "Invite people by email",
		Long: `Create invitations and send the invitation emails. Addresses come
from the arguments and from the --file YAML batch. Addresses that are
already invited or registered are reported and skipped.

With --resend the invitation emails of pending invitations are sent again
instead, for example after a mail outage.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInviteWithDeps(cmd.Context(), cmd, args, cfg, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())
	cmd.Flags().StringVarP(&cfg.file, "file", "f", "", "YAML file with an invitations list")
	cmd.Flags().BoolVar(&cfg.resend, "resend", false, "send the email again for pending invitations")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultInviteTimeout, "timeout for the whole batch")

	return cmd
}

func runInviteWithDeps(ctx context.Context, cmd *cobra.Command, args []string, ic *inviteConfig, deps *Deps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps = deps.withDefaults()

	emails := append([]string(nil), args...)
	if ic.file != "" {
		fromFile, err := readInviteFile(ic.file)
		if err != nil {
			return err
		}
		emails = append(emails, fromFile...)
	}
	if len(emails) == 0 {
		return oops.Code("INVITE_NO_RECIPIENTS").Errorf("no email addresses given")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{
		Service: "visitor",
		Version: version,
		Format:  cfg.Log.Format,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	if ic.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ic.timeout)
		defer cancel()
	}

	stores, closeStores, err := deps.StoresFactory(ctx, cfg, logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("driver", cfg.Store.Driver).Wrap(err)
	}
	defer closeStores()

	transport, err := deps.TransportFactory(cfg, logger)
	if err != nil {
		return oops.Code("MAIL_TRANSPORT_FAILED").With("driver", cfg.Mail.Driver).Wrap(err)
	}

	a, err := app.New(cfg, stores, transport, app.Options{Logger: logger})
	if err != nil {
		return err
	}

	issue, done := a.Invites.Issue, "invited"
	if ic.resend {
		issue, done = a.Invites.Resend, "resent "
	}

	var failed int
	for _, email := range emails {
		inv, err := issue(ctx, email)
		if v, ok := account.AsValidationError(err); ok {
			cmd.Printf("skipped %s: %s\n", email, v.Error())
			continue
		}
		if err != nil {
			failed++
			errutil.LogErrorContext(ctx, logger, "invitation failed", err, "email", email)
			cmd.Printf("failed  %s: %s\n", email, errutil.Code(err))
			continue
		}
		cmd.Printf("%s %s\n", done, inv.Email)
	}

	if failed > 0 {
		return oops.Code("INVITE_BATCH_FAILED").With("failed", failed).Errorf("%d of %d invitations failed", failed, len(emails))
	}
	return nil
}

func readInviteFile(path string) ([]string, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, oops.Code("INVITE_FILE_READ_FAILED").With("path", path).Wrap(err)
	}
	var f inviteFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, oops.Code("INVITE_FILE_INVALID").With("path", path).Wrap(err)
	}
	emails := make([]string, 0, len(f.Invitations))
	for i, entry := range f.Invitations {
		if entry.Email == "" {
			return nil, oops.Code("INVITE_FILE_INVALID").With("path", path).With("entry", i).Errorf("entry %d has no email", i)
		}
		emails = append(emails, entry.Email)
	}
	return emails, nil
}
