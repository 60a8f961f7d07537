package main

import (
	"context"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
	"github.com/caffeinepub/diploma-smart-study-hub/core/subscription"
	"github.com/caffeinepub/diploma-smart-study-hub/core/user"
	"github.com/caffeinepub/diploma-smart-study-hub/services/email"
	"github.com/caffeinepub/diploma-smart-study-hub/services/logger"
	"github.com/caffeinepub/diploma-smart-study-hub/services/payments/razorpay"
	"github.com/caffeinepub/diploma-smart-study-hub/services/payments/stripe"
	"github.com/caffeinepub/diploma-smart-study-hub/storage/database"
	"github.com/caffeinepub/diploma-smart-study-hub/storage/database/sqlx"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()
	logger = logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)

	if conf.Database.InMemory() {
		logger.Fatal("the admin CLI needs a persistent database engine (postgres|mysql)")
	}

	// set up DB
	ctx := context.Background()
	errAndDie(database.CreateIfNotExist(ctx, conf))
	db, err := database.Open(ctx, conf)
	errAndDie(err)

	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(conf, logger)

	// start CLI
	cli := newCommandLine(conf, db)
	code := 0
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("\nerror: " + err.Error())
		}
		code = 1
	}
	_ = db.Close()
	os.Exit(code)
}

func newCommandLine(conf *core.Config, db *sqlx.DB) *commandLine {
	usrRepo := sqlxrepos.NewUserRepository(db)
	settingsRepo := sqlxrepos.NewSettingsRepository(db)
	usrSvc := user.NewService(usrRepo, settingsRepo)
	subSvc := subscription.NewService(sqlxrepos.NewSubscriptionRepository(db))
	paySvc := payment.NewService(
		conf, logger,
		sqlxrepos.NewPaymentRepository(db), settingsRepo,
		subSvc, usrSvc,
		payment.Gateways{Stripe: stripegw.NewGateway(), Razorpay: razorpaygw.NewGateway(conf)},
		emailsvc.NewService(conf, logger), nil,
	)
	return &commandLine{
		db:      db,
		engine:  conf.Database.Engine,
		usrRepo: usrRepo,
		usrSvc:  usrSvc,
		paySvc:  paySvc,
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
