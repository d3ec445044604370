// Command facilitator runs the x402 payment facilitator as an HTTP service.
package main

import (
	"flag"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	facilitator "github.com/x402-teller/facilitator-go"
	ginadapter "github.com/x402-teller/facilitator-go/pkg/gin"
)

func main() {
	configPath := flag.String("config", "facilitator.yaml", "path to the YAML configuration file")
	flag.Parse()

	config, listen, logLevel, err := loadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	if logLevel != "" {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.WithError(err).Fatal("invalid log level")
		}
		logrus.SetLevel(level)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	f, err := facilitator.New(config)
	if err != nil {
		logrus.WithError(err).Fatal("failed to start facilitator")
	}

	<-f.Ready()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	ginadapter.Mount(router, f)

	logrus.WithFields(logrus.Fields{
		"listen":   listen,
		"networks": config.Networks,
	}).Info("facilitator listening")

	if err := router.Run(listen); err != nil {
		logrus.WithError(err).Fatal("server stopped")
	}
}
