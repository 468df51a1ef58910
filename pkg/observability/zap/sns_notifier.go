package zap

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/theory-cloud/cvsite/pkg/observability"
	"github.com/theory-cloud/cvsite/pkg/sanitization"
)

const (
	maxSubjectLen = 100
	maxMessageLen = 256 * 1024
)

// SNSPublisher is the subset of the SNS client the notifier uses.
type SNSPublisher interface {
	Publish(
		ctx context.Context,
		params *sns.PublishInput,
		optFns ...func(*sns.Options),
	) (*sns.PublishOutput, error)
}

type SNSNotifierOptions struct {
	// Subject prefixes every notification; the stage name is appended when known.
	Subject string
	// Context is attached to every message, for example the repository and branch.
	Context map[string]string
}

type snsNotifier struct {
	client   SNSPublisher
	topicARN string
	subject  string
	context  map[string]string
}

var _ observability.ErrorNotifier = (*snsNotifier)(nil)

func NewSNSNotifier(client SNSPublisher, topicARN string, opts SNSNotifierOptions) observability.ErrorNotifier {
	ctxFields := make(map[string]string, len(opts.Context))
	for k, v := range opts.Context {
		ctxFields[k] = v
	}
	return &snsNotifier{
		client:   client,
		topicARN: strings.TrimSpace(topicARN),
		subject:  strings.TrimSpace(opts.Subject),
		context:  ctxFields,
	}
}

func (n *snsNotifier) Notify(ctx context.Context, entry observability.LogEntry) error {
	if n == nil || n.client == nil {
		return errors.New("observability/zap: sns notifier is nil")
	}
	if n.topicARN == "" {
		return errors.New("observability/zap: sns topic arn is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	body, err := json.Marshal(map[string]any{
		"entry":   entry,
		"context": n.context,
	})
	if err != nil {
		return err
	}
	message := string(body)
	if len(message) > maxMessageLen {
		message = message[:maxMessageLen]
	}

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(n.subjectFor(entry)),
		Message:  aws.String(message),
	})
	return err
}

func (n *snsNotifier) subjectFor(entry observability.LogEntry) string {
	subject := n.subject
	if subject == "" {
		subject = "cvsite pipeline failure"
	}
	if entry.Stage != "" {
		subject += ": " + entry.Stage
	}
	subject = sanitization.SanitizeLogString(subject)
	if len(subject) > maxSubjectLen {
		subject = subject[:maxSubjectLen]
	}
	return subject
}
