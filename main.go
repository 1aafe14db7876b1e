package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cppla/docintake/config"
	"github.com/cppla/docintake/intake"
	"github.com/cppla/docintake/metrics"
	"github.com/cppla/docintake/notify"
	"github.com/cppla/docintake/routes"
	"github.com/cppla/docintake/store"
	"github.com/cppla/docintake/utils"
)

func main() {
	issueToken := flag.String("issue-token", "", "print an operator bearer token for the given name and exit")
	tokenTTL := flag.Duration("token-ttl", 30*24*time.Hour, "lifetime of a token printed by -issue-token")
	flag.Parse()

	cfg := config.Load()

	if *issueToken != "" {
		token, err := utils.GenerateOperatorToken(cfg.OperatorSecret, *issueToken, *tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	links, err := store.Open(cfg.LinksFile)
	if err != nil {
		utils.Sugar.Fatalf("open link store %s: %v", cfg.LinksFile, err)
	}
	if err := os.MkdirAll(cfg.UploadsRoot, 0o755); err != nil {
		utils.Sugar.Fatalf("create uploads root %s: %v", cfg.UploadsRoot, err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	policy := intake.NewPolicy(cfg.AllowedMimeTypes, cfg.MaxFileBytes(), cfg.MaxFilesPerRequest)
	pipeline := intake.NewPipeline(links, cfg.UploadsRoot, policy, intake.WithMetrics(m))

	dispatcher := notify.New(cfg)
	if c, ok := dispatcher.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	if cfg.OperatorSecret == "" {
		utils.Sugar.Warn("OPERATOR_SECRET is empty, link management endpoints are open")
	}

	r := routes.SetupRouter(routes.Deps{
		Config:     cfg,
		Links:      links,
		Pipeline:   pipeline,
		Dispatcher: dispatcher,
		Throttle:   utils.NewIntakeThrottle(utils.GetRedis(), cfg.IntakeMaxPerSlugPerHour),
		Metrics:    m,
	})

	utils.Sugar.Infof("Starting server on port %s (graceful), links=%s uploads=%s", cfg.AppPort, cfg.LinksFile, cfg.UploadsRoot)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
