package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	echoapi "github.com/caffeinepub/diploma-smart-study-hub/apps/api/echo"
	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/access"
	"github.com/caffeinepub/diploma-smart-study-hub/core/gallery"
	"github.com/caffeinepub/diploma-smart-study-hub/core/lesson"
	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
	"github.com/caffeinepub/diploma-smart-study-hub/core/profile"
	"github.com/caffeinepub/diploma-smart-study-hub/core/settings"
	"github.com/caffeinepub/diploma-smart-study-hub/core/subscription"
	"github.com/caffeinepub/diploma-smart-study-hub/core/user"
	"github.com/caffeinepub/diploma-smart-study-hub/core/withdrawal"
	"github.com/caffeinepub/diploma-smart-study-hub/services/blob/memory"
	"github.com/caffeinepub/diploma-smart-study-hub/services/blob/s3"
	"github.com/caffeinepub/diploma-smart-study-hub/services/email"
	"github.com/caffeinepub/diploma-smart-study-hub/services/identity/firebase"
	"github.com/caffeinepub/diploma-smart-study-hub/services/logger"
	"github.com/caffeinepub/diploma-smart-study-hub/services/metrics"
	"github.com/caffeinepub/diploma-smart-study-hub/services/payments/razorpay"
	"github.com/caffeinepub/diploma-smart-study-hub/services/payments/stripe"
	"github.com/caffeinepub/diploma-smart-study-hub/services/ratelimit"
	"github.com/caffeinepub/diploma-smart-study-hub/storage/database"
	"github.com/caffeinepub/diploma-smart-study-hub/storage/database/inmem"
	"github.com/caffeinepub/diploma-smart-study-hub/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Closer releases a resource opened by the container (DB, redis).
type Closer func() error

// Repositories are provided by the configured database engine.
type Repositories struct {
	dig.Out

	Users         user.Repository
	Settings      settings.Repository
	Profiles      profile.Repository
	Subscriptions subscription.Repository
	Payments      payment.Repository
	Withdrawals   withdrawal.Repository
	Galleries     gallery.Repository
	Lessons       lesson.Repository
	DBCloser      Closer `name:"dbCloser"`
}

type ClosersParam struct {
	dig.In
	DB    Closer `name:"dbCloser"`
	Redis Closer `name:"redisCloser"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) Repositories {
	if conf.Database.InMemory() {
		loggerParam.Logger.Warn("using the in-memory database: data will not survive a restart")
		db := inmemdb.Open()
		return Repositories{
			Users:         inmemdb.NewUserRepository(db),
			Settings:      inmemdb.NewSettingsRepository(db),
			Profiles:      inmemdb.NewProfileRepository(db),
			Subscriptions: inmemdb.NewSubscriptionRepository(db),
			Payments:      inmemdb.NewPaymentRepository(db),
			Withdrawals:   inmemdb.NewWithdrawalRepository(db),
			Galleries:     inmemdb.NewGalleryRepository(db),
			Lessons:       inmemdb.NewLessonRepository(db),
			DBCloser:      db.Close,
		}
	}

	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	if err = database.Migrate(db, conf.Database.Engine); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}
	return Repositories{
		Users:         sqlxrepos.NewUserRepository(db),
		Settings:      sqlxrepos.NewSettingsRepository(db),
		Profiles:      sqlxrepos.NewProfileRepository(db),
		Subscriptions: sqlxrepos.NewSubscriptionRepository(db),
		Payments:      sqlxrepos.NewPaymentRepository(db),
		Withdrawals:   sqlxrepos.NewWithdrawalRepository(db),
		Galleries:     sqlxrepos.NewGalleryRepository(db),
		Lessons:       sqlxrepos.NewLessonRepository(db),
		DBCloser:      db.Close,
	}
}

func newBlobStore(conf *core.Config, logger core.Logger) core.BlobStore {
	if conf.Storage.Bucket == "" {
		logger.Warn("no storage bucket configured: gallery media are kept in memory")
		return memblob.NewStore()
	}
	store, err := s3blob.NewStore(context.Background(), conf.Storage)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up blob store: %v", err), err)
	}
	return store
}

// newIdentityVerifier returns nil unless an external identity provider is configured.
func newIdentityVerifier(conf *core.Config, logger core.Logger) core.IdentityVerifier {
	if conf.Identity.Provider != "firebase" {
		return nil
	}
	verifier, err := firebaseid.NewVerifier(context.Background(), conf.Identity)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up firebase: %v", err), err)
	}
	return verifier
}

type redisOut struct {
	dig.Out
	Client *redis.Client
	Closer Closer `name:"redisCloser"`
}

// newRedis returns a nil client when no redis URL is configured.
func newRedis(conf *core.Config, logger core.Logger) redisOut {
	if conf.Redis.URL == "" {
		return redisOut{Closer: func() error { return nil }}
	}
	client, err := ratelimit.OpenRedis(context.Background(), conf.Redis.URL)
	if err != nil {
		logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
	}
	return redisOut{Client: client, Closer: client.Close}
}

func newLimiter(conf *core.Config, client *redis.Client) ratelimit.Limiter {
	return ratelimit.New(client, conf.Server.RateLimit, conf.Server.RateBurst)
}

func newRecorder() *metrics.Recorder {
	return metrics.NewRecorder(prometheus.DefaultRegisterer, "diplomahub")
}

func newGateways(conf *core.Config) payment.Gateways {
	return payment.Gateways{
		Stripe:   stripegw.NewGateway(),
		Razorpay: razorpaygw.NewGateway(conf),
	}
}

func newPaymentService(
	conf *core.Config,
	logger core.Logger,
	repo payment.Repository,
	settingsRepo settings.Repository,
	subs subscription.ServiceInterface,
	users user.ServiceInterface,
	gateways payment.Gateways,
	emailSvc core.EmailService,
	recorder *metrics.Recorder,
) payment.ServiceInterface {
	return payment.NewService(conf, logger, repo, settingsRepo, subs, users, gateways, emailSvc, recorder)
}

func newGalleryService(conf *core.Config, logger core.Logger, repo gallery.Repository, blobs core.BlobStore) gallery.ServiceInterface {
	return gallery.NewService(conf.Storage, logger, repo, blobs)
}

func newLessonService(conf *core.Config, repo lesson.Repository) lesson.ServiceInterface {
	return lesson.NewService(conf.Storage, repo)
}

func newWithdrawalService(logger core.Logger, repo withdrawal.Repository, users user.ServiceInterface, emailSvc core.EmailService) withdrawal.ServiceInterface {
	return withdrawal.NewService(logger, repo, users, emailSvc)
}

func newAccessChecker(users user.ServiceInterface, subs subscription.ServiceInterface) *access.Checker {
	return access.NewChecker(users, subs)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

type serverParams struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator

	UserSvc         user.ServiceInterface
	ProfileSvc      profile.ServiceInterface
	SubscriptionSvc subscription.ServiceInterface
	PaymentSvc      payment.ServiceInterface
	WithdrawalSvc   withdrawal.ServiceInterface
	GallerySvc      gallery.ServiceInterface
	LessonSvc       lesson.ServiceInterface
	Access          *access.Checker

	Identity core.IdentityVerifier
	Limiter  ratelimit.Limiter
	Recorder *metrics.Recorder
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:            p.Conf,
		Logger:          p.Logger,
		Validate:        p.Validate,
		Translator:      p.Translator,
		UserSvc:         p.UserSvc,
		ProfileSvc:      p.ProfileSvc,
		SubscriptionSvc: p.SubscriptionSvc,
		PaymentSvc:      p.PaymentSvc,
		WithdrawalSvc:   p.WithdrawalSvc,
		GallerySvc:      p.GallerySvc,
		LessonSvc:       p.LessonSvc,
		Access:          p.Access,
		Identity:        p.Identity,
		Limiter:         p.Limiter,
		Recorder:        p.Recorder,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(newRedis))
	must(c.Provide(newLimiter))
	must(c.Provide(newRecorder))
	must(c.Provide(newBlobStore))
	must(c.Provide(newIdentityVerifier))
	must(c.Provide(emailsvc.NewService))
	must(c.Provide(newGateways))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))

	must(c.Provide(user.NewService, dig.As(new(user.ServiceInterface))))
	must(c.Provide(profile.NewService, dig.As(new(profile.ServiceInterface))))
	must(c.Provide(subscription.NewService, dig.As(new(subscription.ServiceInterface))))
	must(c.Provide(newPaymentService))
	must(c.Provide(newWithdrawalService))
	must(c.Provide(newGalleryService))
	must(c.Provide(newLessonService))
	must(c.Provide(newAccessChecker))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
