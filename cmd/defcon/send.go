package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sweeney/defcon/internal/command"
	"github.com/sweeney/defcon/internal/config"
	"github.com/sweeney/defcon/internal/logger"
	"github.com/sweeney/defcon/internal/mqtt"
)

var errNoBroker = errors.New("no MQTT broker configured")

// commandSender publishes a command to a running daemon.
type commandSender interface {
	PublishCommand(suffix, value string) error
	Close() error
}

// dialFunc connects a command sender. Replaced in tests.
var dialFunc = func(cfg config.Config) (commandSender, error) {
	if cfg.MQTT.Broker == "" {
		return nil, errNoBroker
	}
	c, err := mqtt.NewClient(mqtt.Options{
		Broker:   cfg.MQTT.Broker,
		ClientID: "defcon-cli-" + uuid.NewString()[:8],
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		Topics:   mqtt.Topics{Root: cfg.MQTT.Root, Reasons: cfg.MQTT.Reasons},
		FailFast: true,
		Log:      logger.Named("mqtt"),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.MQTT.Broker, err)
	}
	return c, nil
}

func send(cmd *cobra.Command, f *flags, target, value string) error {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}
	c, err := dialFunc(cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.PublishCommand(target, value)
}

func newSetCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "set <0-9>",
		Short: "Set the level of a running daemon.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := command.ParseLevel(args[0]); err != nil {
				return err
			}
			return send(cmd, f, args[0], "")
		},
	}
}

func newReasonCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "reason <0-7> <value>",
		Short: "Assert or clear a reason on a running daemon.",
		Long: `Asserts the reason when value starts with 1, t or y, otherwise clears it.
The daemon shows the lowest asserted reason as its level.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := command.ParseReason(args[0]); err != nil {
				return err
			}
			if args[1] == "" {
				return errors.New("reason value must not be empty")
			}
			return send(cmd, f, args[0], args[1])
		},
	}
}

func newPrintConfigCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "print-config",
		Short: "Print the effective configuration as YAML.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			data, err := cfg.Redacted().Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
