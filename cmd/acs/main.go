package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ispbillingai/acs-sub000/app"
	"github.com/ispbillingai/acs-sub000/common/zaplog"
	"github.com/ispbillingai/acs-sub000/common/zaplog/log"
	"github.com/ispbillingai/acs-sub000/config"
	"github.com/ispbillingai/acs-sub000/tr069"
)

var (
	confFile = flag.String("c", "acs.yml", "config file")
	showVer  = flag.Bool("v", false, "print version and exit")
)

var version = "dev"

func main() {
	flag.Parse()
	if *showVer {
		fmt.Println(version)
		os.Exit(0)
	}

	cfg, err := config.Load(*confFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %s\n", err)
		os.Exit(1)
	}
	zaplog.Init(cfg.System.Debug)

	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Errorf("open database: %s", err.Error())
		os.Exit(1)
	}

	application, err := app.NewApplication(cfg, db)
	if err != nil {
		log.Errorf("init application: %s", err.Error())
		os.Exit(1)
	}

	server := tr069.NewTr069Server(application)
	log.Infof("cwmp server listening on %s", cfg.Tr069.Listen)
	if err := server.Start(); err != nil {
		log.Errorf("server stopped: %s", err.Error())
		os.Exit(1)
	}
}
