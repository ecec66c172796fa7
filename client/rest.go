package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/alejzeis/duet-relay/common"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
)

// ControlClient talks to a coordinator's REST control API.
type ControlClient struct {
	rest      *resty.Client
	serverURL string

	token string
}

func NewControlClient(serverURL string) *ControlClient {
	return &ControlClient{
		rest:      resty.New(),
		serverURL: serverURL,
	}
}

// Info fetches the coordinator's software information.
func (c *ControlClient) Info() (common.InfoResponse, error) {
	var info common.InfoResponse

	url := c.serverURL + "/info"
	response, err := c.rest.R().Get(url)
	if err != nil {
		log.WithField("url", url).WithError(err).Warn("Failed to fetch server info.")
		return info, err
	} else if response.StatusCode() != http.StatusOK {
		log.WithFields(log.Fields{
			"url":    url,
			"status": response.StatusCode(),
			"body":   response.Body(),
		}).Warn("Failed to fetch server info")
		return info, fmt.Errorf("unexpected status %d from /info", response.StatusCode())
	}

	if err := json.Unmarshal(response.Body(), &info); err != nil {
		log.WithFields(log.Fields{
			"url":  url,
			"body": response.String(),
		}).WithError(err).Error("Failed to decode JSON response from /info.")
		return info, err
	}

	return info, nil
}

// Login obtains a diagnostics token from the coordinator.
func (c *ControlClient) Login(name string) error {
	url := c.serverURL + "/login/" + name
	response, err := c.rest.R().Post(url)
	if err != nil {
		log.WithField("url", url).WithError(err).Error("Failed to login")
		return err
	} else if response.StatusCode() != http.StatusCreated {
		log.WithFields(log.Fields{
			"url":    url,
			"status": response.StatusCode(),
			"body":   response.Body(),
		}).Error("Failed to login")
		return fmt.Errorf("unexpected status %d from /login", response.StatusCode())
	}

	c.token = response.String()
	log.Debug("Obtained diagnostics token")
	return nil
}

// Stats fetches the coordinator's matching-state snapshot. Requires a
// prior successful Login.
func (c *ControlClient) Stats() (common.StatsResponse, error) {
	var stats common.StatsResponse

	if c.token == "" {
		return stats, fmt.Errorf("not logged in")
	}

	url := c.serverURL + "/stats/" + c.token
	response, err := c.rest.R().Get(url)
	if err != nil {
		log.WithField("url", url).WithError(err).Warn("Failed to fetch stats.")
		return stats, err
	} else if response.StatusCode() != http.StatusOK {
		log.WithFields(log.Fields{
			"url":    url,
			"status": response.StatusCode(),
			"body":   response.Body(),
		}).Warn("Failed to fetch stats")
		return stats, fmt.Errorf("unexpected status %d from /stats", response.StatusCode())
	}

	if err := json.Unmarshal(response.Body(), &stats); err != nil {
		log.WithFields(log.Fields{
			"url":  url,
			"body": response.String(),
		}).WithError(err).Error("Failed to decode JSON response from /stats.")
		return stats, err
	}

	return stats, nil
}
