package main

import (
	"flag"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/golang/glog"
	"github.com/spf13/viper"

	"github.com/rivalapexmediation/auction-server/config"
	"github.com/rivalapexmediation/auction-server/deploy"
	"github.com/rivalapexmediation/auction-server/router"
	"github.com/rivalapexmediation/auction-server/server"
)

// Rev holds binary revision string
// Set manually at build time using:
//
//	go build -ldflags "-X main.Rev=`git rev-parse --short HEAD` -X main.Version=`git describe --tags`"
var (
	Rev     string
	Version string
)

func main() {
	flag.Parse() // required for glog flags and testing package flags

	cfg, err := loadConfig()
	if err != nil {
		glog.Exitf("Configuration could not be loaded or did not pass validation: %v", err)
	}

	// write PID to file for deploy management
	if cfg.DeployPIDEnabled {
		pid, err := deploy.WritePIDFile(cfg.DeployPIDPath, os.FileMode(cfg.DeployPIDMode))
		if err != nil {
			glog.Fatalf("error writing pid[%d]: %s", pid, err)
		}
	}

	flush := initSentry(cfg.Sentry)
	err = serve(cfg)
	flush()
	if err != nil {
		glog.Exitf("auction-server failed: %v", err)
	}
}

const configFileName = "auction"

func loadConfig() (*config.Configuration, error) {
	v := viper.New()
	config.SetupViper(v, configFileName)
	return config.New(v)
}

// initSentry enables panic reporting when a DSN is configured and returns the matching flush.
func initSentry(cfg config.Sentry) func() {
	if cfg.DSN == "" {
		return func() {}
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		SampleRate:  cfg.SampleRate,
		Release:     Version,
	})
	if err != nil {
		glog.Warningf("Sentry could not be initialized, panics will only be logged: %v", err)
		return func() {}
	}
	return func() {
		sentry.Flush(2 * time.Second)
	}
}

func serve(cfg *config.Configuration) error {
	r, err := router.New(cfg)
	if err != nil {
		return err
	}

	corsRouter := router.SupportCORS(r, cfg.CORS)
	err = server.Listen(cfg, router.NoCache{Handler: corsRouter}, router.Admin(Version, Rev, r.Rates, cfg.Auction.Currency), r.MetricsEngine)

	r.Shutdown()
	return err
}
