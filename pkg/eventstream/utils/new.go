// Package eventstreamutils picks an event publisher from configuration.
package eventstreamutils

import (
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/chatstream/pkg/eventstream"
	"github.com/papercomputeco/chatstream/pkg/eventstream/kafka"
	"github.com/papercomputeco/chatstream/pkg/eventstream/nop"
)

type NewPublisherOpts struct {
	// KafkaBrokers is a comma separated broker list. Empty disables events.
	KafkaBrokers string
	KafkaTopic   string
	Logger       *zap.Logger
}

// NewPublisher returns a Kafka publisher when brokers are configured and a
// no-op publisher otherwise.
func NewPublisher(o *NewPublisherOpts) (eventstream.Publisher, error) {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}

	brokers := SplitBrokers(o.KafkaBrokers)
	if len(brokers) == 0 {
		log.Debug("event publishing disabled")
		return nop.NewPublisher(), nil
	}

	p, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   o.KafkaTopic,
	})
	if err != nil {
		return nil, err
	}

	log.Info("publishing message events to kafka",
		zap.Strings("brokers", brokers),
		zap.String("topic", o.KafkaTopic),
	)
	return p, nil
}

// SplitBrokers parses a comma separated broker list, dropping blanks.
func SplitBrokers(s string) []string {
	var brokers []string
	for b := range strings.SplitSeq(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
