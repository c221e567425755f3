// Package main defines the sentinel daemon. The sentinel watches one
// or more Babylon networks for validator block-signature participation,
// finality provider votes and BLS checkpoint participation, and raises
// alerts when tracked subjects degrade.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/babylonlabs-io/sentinel/cmd/sentinel/flags"
	"github.com/babylonlabs-io/sentinel/monitoring/prometheus"
	"github.com/babylonlabs-io/sentinel/node"
)

var log = logrus.WithField("prefix", "main")

var appFlags = []cli.Flag{
	flags.VerbosityFlag,
	flags.LogFormatFlag,
	flags.ConfigFileFlag,
	flags.DataDirFlag,
	flags.MonitoringHostFlag,
	flags.MonitoringPortFlag,
	flags.MainnetRPCURLsFlag,
	flags.MainnetWSURLsFlag,
	flags.TestnetRPCURLsFlag,
	flags.TestnetWSURLsFlag,
	flags.ValconsPrefixFlag,
	flags.MonitoringEnabledFlag,
	flags.ValidatorMonitoringFlag,
	flags.FinalityProviderMonitoringFlag,
	flags.BLSMonitoringFlag,
	flags.MonitoringIntervalFlag,
	flags.FinalizedBlocksWaitFlag,
	flags.TrackedValidatorsFlag,
	flags.TrackedFinalityProvidersFlag,
	flags.ValidatorSignatureThresholdFlag,
	flags.FinalityProviderSignatureThresholdFlag,
	flags.BLSSignatureThresholdFlag,
	flags.AlertMinIntervalFlag,
	flags.SignatureRateMinDropFlag,
}

func startNode(cliCtx *cli.Context) error {
	verbosity := cliCtx.String(flags.VerbosityFlag.Name)
	level, err := logrus.ParseLevel(verbosity)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	sentinel, err := node.New(cliCtx)
	if err != nil {
		return err
	}
	sentinel.Start()
	return nil
}

func main() {
	app := cli.App{}
	app.Name = "sentinel"
	app.Usage = "monitors Babylon validator, finality provider and BLS checkpoint participation"
	app.Flags = appFlags
	app.Action = startNode
	app.Before = func(ctx *cli.Context) error {
		// Load any flags from file, if specified.
		if ctx.IsSet(flags.ConfigFileFlag.Name) {
			if err := altsrc.InitInputSourceWithContext(
				appFlags,
				altsrc.NewYamlSourceFromFlagFunc(
					flags.ConfigFileFlag.Name))(ctx); err != nil {
				return err
			}
		}

		switch format := flags.LogFormat; format {
		case "text":
			formatter := new(prefixed.TextFormatter)
			formatter.TimestampFormat = "2006-01-02 15:04:05"
			formatter.FullTimestamp = true
			logrus.SetFormatter(formatter)
		case "json":
			logrus.SetFormatter(&logrus.JSONFormatter{})
		default:
			return fmt.Errorf("unknown log format %s", format)
		}

		logrus.AddHook(prometheus.NewLogrusCollector())
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
