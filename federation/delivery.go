package federation

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/fedkit/fedkit/httpsig"
	"github.com/fedkit/fedkit/keyutil"
)

// DeliveryJob is the self-contained payload of one outbound POST, as
// stored on the queue.
type DeliveryJob struct {
	ID           string          `json:"id"`
	Inbox        string          `json:"inbox"`
	SharedInbox  bool            `json:"sharedInbox,omitempty"`
	Activity     json.RawMessage `json:"activity"`
	SenderKeys   []deliveryKey   `json:"senderKeys"`
	RecipientIDs []string        `json:"recipientIds"`
	ActivityID   string          `json:"activityId"`
	ActivityType string          `json:"activityType"`
	Attempt      int             `json:"attempt"`
}

type deliveryKey struct {
	KeyID string       `json:"keyId"`
	Key   *keyutil.JWK `json:"privateKey"`
}

// StartQueue subscribes the delivery worker to the queue. It runs until
// ctx is cancelled; calling it twice is an error. data becomes the Data
// field of contexts the worker creates, such as the one handed to
// OnDeliveryFailure.
func (f *Federation) StartQueue(ctx context.Context, data any) error {
	if f.opts.Queue == nil {
		return fmt.Errorf("federation: no queue configured")
	}
	if !f.queueStarted.CompareAndSwap(false, true) {
		return fmt.Errorf("federation: queue already started")
	}
	f.queueData = data
	go func() {
		if err := f.opts.Queue.Subscribe(ctx, f.handleDelivery); err != nil && ctx.Err() == nil {
			slog.Error("delivery: queue subscription ended", "error", err)
		}
	}()
	return nil
}

// handleDelivery processes one queued job. Retries are self-scheduled
// through Enqueue with a backoff delay, so the handler returns nil for
// everything except a failed re-enqueue.
func (f *Federation) handleDelivery(ctx context.Context, body []byte) error {
	var job DeliveryJob
	if err := json.Unmarshal(body, &job); err != nil {
		slog.Error("delivery: undecodable job dropped", "error", err)
		return nil
	}

	err := f.deliver(ctx, &job)
	if err == nil {
		slog.Debug("delivery: succeeded",
			"inbox", job.Inbox, "activity", job.ActivityID, "attempt", job.Attempt)
		return nil
	}

	if terminal(err) {
		f.reportDeliveryFailure(&job, err)
		return nil
	}

	job.Attempt++
	if job.Attempt >= f.opts.MaxDeliveryAttempts {
		f.reportDeliveryFailure(&job, fmt.Errorf("gave up after %d attempts: %w", job.Attempt, err))
		return nil
	}

	delay := f.backoff(job.Attempt)
	slog.Warn("delivery: retry scheduled",
		"inbox", job.Inbox, "activity", job.ActivityID,
		"attempt", job.Attempt, "delay", delay, "error", err)
	retry, merr := json.Marshal(&job)
	if merr != nil {
		f.reportDeliveryFailure(&job, merr)
		return nil
	}
	return f.opts.Queue.Enqueue(ctx, retry, delay)
}

// retryableError marks outcomes worth another attempt.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func terminal(err error) bool {
	_, retryable := err.(*retryableError)
	return !retryable
}

// deliver performs one signed POST.
func (f *Federation) deliver(ctx context.Context, job *DeliveryJob) error {
	inbox, err := url.Parse(job.Inbox)
	if err != nil {
		return fmt.Errorf("bad inbox URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.DeliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inbox.String(), bytes.NewReader(job.Activity))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", activityJSONType)

	if keyID, priv := firstRSAKey(job.SenderKeys); priv != nil {
		if err := httpsig.SignRequest(req, priv, keyID, job.Activity); err != nil {
			return fmt.Errorf("sign request: %w", err)
		}
	} else {
		slog.Warn("delivery: no RSA key available, sending unsigned",
			"inbox", job.Inbox, "activity", job.ActivityID)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return &retryableError{fmt.Errorf("post %s: %w", job.Inbox, err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return &retryableError{fmt.Errorf("%s answered %d", job.Inbox, resp.StatusCode)}
	default:
		return fmt.Errorf("%s answered %d", job.Inbox, resp.StatusCode)
	}
}

// firstRSAKey picks the first RSA sender key; HTTP Signatures in the wild
// require rsa-sha256.
func firstRSAKey(keys []deliveryKey) (*url.URL, *rsa.PrivateKey) {
	for _, k := range keys {
		priv, err := keyutil.ImportPrivateJWK(k.Key)
		if err != nil {
			slog.Warn("delivery: undecodable sender key skipped", "keyId", k.KeyID, "error", err)
			continue
		}
		rsaKey, ok := priv.(*rsa.PrivateKey)
		if !ok {
			continue
		}
		keyID, err := url.Parse(k.KeyID)
		if err != nil {
			continue
		}
		return keyID, rsaKey
	}
	return nil, nil
}

// backoff returns min(base << attempt, cap) with 10% jitter.
func (f *Federation) backoff(attempt int) time.Duration {
	d := f.opts.BackoffBase
	for i := 0; i < attempt && d < f.opts.BackoffCap; i++ {
		d *= 2
	}
	d = min(d, f.opts.BackoffCap)
	jitter := 0.9 + 0.2*rand.Float64()
	return time.Duration(float64(d) * jitter)
}

func (f *Federation) reportDeliveryFailure(job *DeliveryJob, err error) {
	if f.opts.OnDeliveryFailure != nil {
		f.opts.OnDeliveryFailure(f.CreateContext(nil, f.queueData), job, err)
		return
	}
	slog.Error("delivery: failed permanently",
		"inbox", job.Inbox, "activity", job.ActivityID,
		"recipients", len(job.RecipientIDs), "attempt", job.Attempt, "error", err)
}
