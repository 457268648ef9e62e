package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// pixelSDKVersion and mmpCode are fixed values expected by the Kwai API for
// server side events.
const (
	pixelSDKVersion = "9.9.9"
	mmpCode         = "PL"
	thirdParty      = "raffle-checkout"
)

// PixelForwarder posts PixelEvents to the Kwai pixel API.  The access token
// never leaves the server.
type PixelForwarder struct {
	Endpoint    string
	AccessToken string
	PixelID     string
	TestFlag    bool
	Prize       string

	client *http.Client
	logger logrus.FieldLogger
}

// NewPixelForwarder returns a forwarder with a 10s HTTP timeout.
func NewPixelForwarder(endpoint, accessToken, pixelID, prize string, testFlag bool, logger logrus.FieldLogger) *PixelForwarder {
	return &PixelForwarder{
		Endpoint:    endpoint,
		AccessToken: accessToken,
		PixelID:     pixelID,
		TestFlag:    testFlag,
		Prize:       prize,
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      logger.WithField("component", "pixel"),
	}
}

type pixelProperties struct {
	ContentID   string `json:"content_id"`
	ContentType string `json:"content_type"`
	ContentName string `json:"content_name"`
}

type pixelPayload struct {
	AccessToken     string          `json:"access_token"`
	ClickID         string          `json:"clickid"`
	EventName       string          `json:"event_name"`
	IsAttributed    int             `json:"is_attributed"`
	MMPCode         string          `json:"mmpcode"`
	PixelID         string          `json:"pixelId"`
	PixelSDKVersion string          `json:"pixelSdkVersion"`
	Properties      pixelProperties `json:"properties"`
	TestFlag        bool            `json:"testFlag"`
	ThirdParty      string          `json:"third_party"`
	TrackFlag       bool            `json:"trackFlag"`
}

func (p *PixelForwarder) payload(ev PixelEvent) pixelPayload {
	return pixelPayload{
		AccessToken:     p.AccessToken,
		ClickID:         ev.ClickID,
		EventName:       ev.EventName,
		IsAttributed:    1,
		MMPCode:         mmpCode,
		PixelID:         p.PixelID,
		PixelSDKVersion: pixelSDKVersion,
		Properties: pixelProperties{
			ContentID:   fmt.Sprintf("raffle_%d", ev.Quantity),
			ContentType: "raffle",
			ContentName: fmt.Sprintf("numeros %s - %d números", p.Prize, ev.Quantity),
		},
		TestFlag:   p.TestFlag,
		ThirdParty: thirdParty,
		TrackFlag:  true,
	}
}

// Handle is a HandlerFunc for the analytics.pixel queue.  Without an access
// token events are acknowledged and dropped.
func (p *PixelForwarder) Handle(ctx context.Context, body []byte) error {
	var ev PixelEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return errors.Wrap(err, "unmarshal")
	}
	log := p.logger.WithFields(logrus.Fields{"event_name": ev.EventName, "purchase_id": ev.PurchaseID})
	if p.AccessToken == "" {
		log.Debug("pixel access token not configured; dropping event")
		return nil
	}

	buf, err := json.Marshal(p.payload(ev))
	if err != nil {
		return errors.Wrap(err, "marshal pixel payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return errors.Wrap(err, "build pixel request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json;charset=utf-8")

	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post pixel event")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("pixel api: status %d: %s", resp.StatusCode, snippet)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	log.Info("pixel event forwarded")
	return nil
}
