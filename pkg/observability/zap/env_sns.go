package zap

import (
	"context"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

type EnvironmentErrorNotificationsOptions struct {
	TopicARNEnvVars []string
	SubjectEnvVars  []string
	Context         map[string]string

	// Lookup defaults to os.LookupEnv.
	Lookup LookupFunc
	// NewClient defaults to an SNS client built from the default AWS config chain.
	NewClient func(ctx context.Context) (SNSPublisher, error)
}

// WithEnvironmentErrorNotifications attaches an SNS notifier when one of the topic ARN keys is
// set. Without a topic the option does nothing.
func WithEnvironmentErrorNotifications(ctx context.Context, config EnvironmentErrorNotificationsOptions) Option {
	return func(opts *loggerOptions) {
		lookup := config.Lookup
		if lookup == nil {
			lookup = osLookup
		}
		topicARN := firstValue(lookup, config.TopicARNEnvVars...)
		if topicARN == "" {
			return
		}
		if ctx == nil {
			ctx = context.Background()
		}

		newClient := config.NewClient
		if newClient == nil {
			newClient = defaultSNSClient
		}
		client, err := newClient(ctx)
		if err != nil {
			opts.initErr = err
			return
		}

		opts.notifier = NewSNSNotifier(client, topicARN, SNSNotifierOptions{
			Subject: firstValue(lookup, config.SubjectEnvVars...),
			Context: config.Context,
		})
	}
}

func DefaultEnvironmentErrorNotifications() EnvironmentErrorNotificationsOptions {
	return EnvironmentErrorNotificationsOptions{
		TopicARNEnvVars: []string{
			"CVSITE_ERROR_TOPIC_ARN",
			"ERROR_NOTIFICATIONS_TOPIC_ARN",
		},
		SubjectEnvVars: []string{
			"CVSITE_ERROR_SUBJECT",
		},
	}
}

var osLookup LookupFunc = os.LookupEnv

func defaultSNSClient(ctx context.Context) (SNSPublisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return sns.NewFromConfig(awsCfg), nil
}

func firstValue(lookup LookupFunc, keys ...string) string {
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
