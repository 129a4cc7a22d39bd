package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/activity"
	activityrepo "github.com/ovaphlow/pitchfork/service-activity-go/internal/activity/repo"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/audit"
	auditrepo "github.com/ovaphlow/pitchfork/service-activity-go/internal/audit/repo"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/category"
	categoryrepo "github.com/ovaphlow/pitchfork/service-activity-go/internal/category/repo"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/seed"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-activity-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-activity-go/pkg/utilities"
)

type tableEnsurer interface {
	EnsureTable(ctx context.Context) error
}

func main() {
	// load .env file if present so os.Getenv picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-activity-go")

	clock := clockwork.NewRealClock()
	tokens, err := auth.NewTokenService(auth.TokenConfigFromEnv(), clock)
	if err != nil {
		sugar.Fatalf("token config: %v", err)
	}
	ids, err := utilities.NewSnowflakeIDsFromEnv()
	if err != nil {
		sugar.Fatalf("id generator: %v", err)
	}

	db, err := database.Open(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	users := userrepo.NewUserRepo(db)
	categories := categoryrepo.NewCategoryRepo(db)
	activities := activityrepo.NewActivityRepo(db)
	audits := auditrepo.NewAuditRepo(db)

	setupCtx, cancelSetup := context.WithTimeout(context.Background(), 30*time.Second)
	// foreign keys require this order
	for _, t := range []tableEnsurer{users, categories, activities, audits} {
		if err := t.EnsureTable(setupCtx); err != nil {
			sugar.Fatalf("ensure table: %v", err)
		}
	}

	hasher := auth.BcryptHasher{}
	if err := seed.NewSeeder(users, categories, hasher, ids, clock, sugar).Run(setupCtx, seed.ConfigFromEnv()); err != nil {
		sugar.Warnw("seed incomplete", "err", err)
	}
	cancelSetup()

	resolver, err := auth.NewResolver(users, hasher, tokens, sugar)
	if err != nil {
		sugar.Fatalf("identity resolver: %v", err)
	}
	emitter := audit.NewEmitter(audit.NewStoreSink(audits, clock), sugar)

	userSvc := user.NewUserService(users, hasher, ids, clock, emitter, sugar)
	categorySvc := category.NewService(categories, ids, clock, emitter, sugar)
	activitySvc := activity.NewService(activities, users, categories, ids, clock, emitter, sugar)

	limiter := auth.NewLoginLimiter(auth.LimiterConfigFromEnv(), clock)
	handlers := router.Handlers{
		Throttle:   limiter.Middleware(sugar),
		Auth:       auth.NewHandler(resolver, sugar),
		Users:      user.NewHandler(userSvc, sugar),
		Categories: category.NewHandler(categorySvc, sugar),
		Activities: activity.NewHandler(activitySvc, sugar),
		Audit:      audit.NewHandler(audits, sugar),
	}

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.Sweep(); n > 0 {
					sugar.Debugw("login limiters swept", "count", n)
				}
			}
		}
	}()

	httpCfg := router.ConfigFromEnv()
	srv := &http.Server{
		Addr:              httpCfg.Addr,
		Handler:           router.RegisterRoutes(httpCfg, sugar, handlers, resolver.Middleware(sugar)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", httpCfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}

