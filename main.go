package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/web-casa/shuttlectl/internal/api"
	"github.com/web-casa/shuttlectl/internal/authsvc"
	"github.com/web-casa/shuttlectl/internal/build"
	"github.com/web-casa/shuttlectl/internal/config"
	"github.com/web-casa/shuttlectl/internal/dbprovision"
	"github.com/web-casa/shuttlectl/internal/deployment"
	"github.com/web-casa/shuttlectl/internal/load"
	"github.com/web-casa/shuttlectl/internal/proxy"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z"
var Version = "dev"

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("shuttlectl v%s\n", Version)
		return
	}

	cfg := config.Load()

	authDB, err := authsvc.Open(cfg.DBPath, cfg.AdminToken)
	if err != nil {
		log.Fatalf("failed to open auth store: %v", err)
	}

	buildSys := build.New(cfg.DataDir + "/sources")
	dbProv := dbprovision.New(cfg.DataDir + "/databases")
	loader, err := load.New(cfg.DockerSocket, "")
	if err != nil {
		log.Fatalf("failed to connect to docker: %v", err)
	}

	manager := deployment.New(deployment.Config{
		HostSuffix:  cfg.HostSuffix,
		MaxDeploys:  cfg.MaxDeploys,
		PortRangeLo: cfg.PortRangeLo,
		PortRangeHi: cfg.PortRangeHi,
	}, buildSys, loader, dbProv)

	rp := proxy.New(manager.Router(), "0.0.0.0:"+cfg.ProxyPort)
	go func() {
		log.Printf("reverse proxy listening on :%s", cfg.ProxyPort)
		if err := rp.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("proxy server failed: %v", err)
		}
	}()

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Project-Name"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}))
	api.New(r, manager, authDB)

	srv := &http.Server{Addr: "0.0.0.0:" + cfg.APIPort, Handler: r}
	go func() {
		log.Printf("management api listening on :%s", cfg.APIPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server failed: %v", err)
		}
	}()

	waitForShutdown(srv, rp)
}

func waitForShutdown(srv *http.Server, rp *proxy.Proxy) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv.Shutdown(ctx)
	rp.Shutdown()
}
