package metrics

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	appconfig "github.com/dzakarias/orderbook-replayer/config"
	"github.com/dzakarias/orderbook-replayer/logger"
)

// Publisher ships counter readings to CloudWatch on a fixed interval.
// Counter values are cumulative; the publisher sends the delta since its
// previous tick so the metrics graph as rates.
type Publisher struct {
	client    *cloudwatch.Client
	namespace string
	interval  time.Duration
	last      map[string]int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logger.Entry
}

// NewPublisher initialises the CloudWatch client. A nil publisher with no
// error is returned when publishing is disabled in the configuration, so
// callers can Start/Stop unconditionally.
func NewPublisher(ctx context.Context, cfg appconfig.CloudWatchConfig) (*Publisher, error) {
	log := logger.GetLogger().WithComponent("cloudwatch")
	if !cfg.Enabled {
		return nil, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if region := os.Getenv("AWS_REGION"); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	log.WithFields(logger.Fields{
		"namespace": cfg.Namespace,
		"interval":  cfg.Interval.String(),
	}).Info("initialized CloudWatch client")

	return &Publisher{
		client:    cloudwatch.NewFromConfig(awsCfg),
		namespace: cfg.Namespace,
		interval:  cfg.Interval,
		last:      make(map[string]int64),
		log:       log,
	}, nil
}

// Start launches the publish loop.
func (p *Publisher) Start(ctx context.Context) {
	if p == nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.publish(ctx)
			}
		}
	}()
}

// Stop flushes the final readings and terminates the loop.
func (p *Publisher) Stop() {
	if p == nil {
		return
	}
	p.cancel()
	p.wg.Wait()
	p.publish(context.Background())
}

func (p *Publisher) publish(ctx context.Context) {
	readings := Snapshot()
	data := make([]cwtypes.MetricDatum, 0, len(readings))
	for _, r := range readings {
		delta := r.Value - p.last[r.Name]
		if delta == 0 {
			continue
		}
		p.last[r.Name] = r.Value
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(r.Name),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(delta)),
		})
	}
	if len(data) == 0 {
		return
	}

	if _, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	}); err != nil {
		p.log.WithError(err).Warn("failed to publish CloudWatch metrics")
		return
	}
	p.log.WithFields(logger.Fields{"metrics": len(data)}).Debug("published metrics to CloudWatch")
}
