package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"fileferry/internal/command"
	"fileferry/internal/logging"
)

// Webhook posts replies to the collaborator endpoint. Text goes out as
// JSON; file payloads as multipart uploads. Temporary payloads are
// removed after the send attempt, success or not.
type Webhook struct {
	url    string
	client *retryablehttp.Client
	log    *logging.Logger
}

// NewWebhook builds a sender for the given endpoint.
func NewWebhook(url string, log *logging.Logger) *Webhook {
	if log == nil {
		log = logging.NewNop()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 30 * time.Second
	client.HTTPClient.Timeout = 60 * time.Second
	client.Logger = nil

	return &Webhook{url: url, client: client, log: log}
}

type textPayload struct {
	Operator string `json:"operator"`
	Text     string `json:"text"`
}

// SendText posts a text reply as JSON.
func (w *Webhook) SendText(ctx context.Context, operator, text string) error {
	body, err := sonic.Marshal(textPayload{Operator: operator, Text: text})
	if err != nil {
		return fmt.Errorf("encode text payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return w.do(req)
}

// SendFile uploads a file payload as multipart form data and then
// discharges the cleanup obligation.
func (w *Webhook) SendFile(ctx context.Context, operator string, reply *command.Reply) error {
	defer func() {
		if reply.Cleanup {
			if err := os.Remove(reply.FilePath); err != nil && !os.IsNotExist(err) {
				w.log.Warn("temp payload not removed",
					zap.String("path", reply.FilePath),
					zap.Error(err))
			}
		}
	}()

	f, err := os.Open(reply.FilePath)
	if err != nil {
		return fmt.Errorf("open payload: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("operator", operator); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("file", reply.FileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.url, buf.Bytes())
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return w.do(req)
}

func (w *Webhook) do(req *retryablehttp.Request) error {
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("collaborator endpoint returned %s", resp.Status)
	}
	return nil
}
