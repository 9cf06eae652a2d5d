package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/banzaicloud/ess-billing-exporter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.WithError(err).Fatal("ess-billing-exporter failed")
	}
}
