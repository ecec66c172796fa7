package main

import (
	"os"

	"github.com/alejzeis/duet-relay/client"
	"github.com/alejzeis/duet-relay/common"
	"github.com/alejzeis/duet-relay/server"

	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetLevel(log.DebugLevel)

	if len(os.Args) > 1 && os.Args[1] == "-server" {
		log.WithFields(log.Fields{
			"software": common.SoftwareName,
			"version":  common.SoftwareVersion,
			"mode":     "server",
		}).Info("Starting...")

		config := loadConfig()
		applyLogLevel(config)
		coordinator := server.NewCoordinator()

		server.StartControlServer(config, coordinator)
	} else {
		log.WithFields(log.Fields{
			"software": common.SoftwareName,
			"version":  common.SoftwareVersion,
			"mode":     "client",
		}).Info("Starting...")

		client.RunClient()
	}
}

func loadConfig() *ini.File {
	var configLocation string = "server.ini"
	if os.Getenv("SERVER_CONFIG") != "" {
		configLocation = os.Getenv("SERVER_CONFIG")
	}

	file, err := ini.Load(configLocation)
	if err != nil {
		log.WithField("config", configLocation).WithError(err).Error("Failed to load configuration file.")
		panic(err)
	}

	return file
}

func applyLogLevel(config *ini.File) {
	levelKey, err := config.Section("server").GetKey("loglevel")
	if err != nil {
		return // Keep the default
	}

	level, err := log.ParseLevel(levelKey.String())
	if err != nil {
		log.WithField("loglevel", levelKey.String()).WithError(err).Warn("Unknown log level in configuration file, keeping default.")
		return
	}

	log.SetLevel(level)
}
