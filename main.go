package main

import (
	"context"
	"os"

	"github.com/Inflectra/spira-addons-xunit/plugin"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	defaultReportPath = "xunit.xml"
	defaultConfigPath = "spira.cfg"
)

// main collects the plugin inputs from the environment and the command line
// and runs the importer. Usage: spira-addons-xunit [reportFile] [configFile].
func main() {
	var args plugin.Args
	if err := envconfig.Process("", &args); err != nil {
		logrus.Fatalln(err)
	}

	if len(os.Args) > 1 {
		args.ReportPath = os.Args[1]
	}
	if len(os.Args) > 2 {
		args.ConfigPath = os.Args[2]
	}
	if args.ReportPath == "" {
		args.ReportPath = defaultReportPath
	}
	if args.ConfigPath == "" {
		args.ConfigPath = defaultConfigPath
	}

	if args.Level != "" {
		level, err := logrus.ParseLevel(args.Level)
		if err != nil {
			logrus.Fatalln(err)
		}
		logrus.SetLevel(level)
	}

	if err := plugin.ValidateInputs(args); err != nil {
		logrus.Fatalln(err)
	}

	if err := plugin.Exec(context.Background(), args); err != nil {
		logrus.Fatalln(err)
	}
}
