package command

import (
	"time"

	promconfig "github.com/prometheus/common/config"
	"github.com/sirupsen/logrus"

	"github.com/dogpushhq/dogpush/internal/config"
	"github.com/dogpushhq/dogpush/internal/datadog"
	"github.com/dogpushhq/dogpush/internal/errs"
	"github.com/dogpushhq/dogpush/internal/logging"
	"github.com/dogpushhq/dogpush/internal/metrics"
)

// NewAPIClient builds the monitor API client described by the datadog section.
func NewAPIClient(cfg config.Config, logger logrus.FieldLogger, rec metrics.Recorder) (*datadog.Client, error) {
	logger = logging.OrDiscard(logger)
	dd := cfg.Datadog

	httpClient, err := promconfig.NewClientFromConfig(dd.HTTPClient, ProgramName)
	if err != nil {
		return nil, errs.New(errs.Config, "datadog.http_client", err)
	}
	httpClient.Timeout = time.Duration(dd.Timeout)

	if dd.APIKey == "" || dd.AppKey == "" {
		logger.Warn("datadog api_key or app_key is empty; the API will reject requests")
	}

	return datadog.NewClient(datadog.Config{
		BaseURL:   dd.APIURL,
		APIKey:    string(dd.APIKey),
		AppKey:    string(dd.AppKey),
		RateLimit: dd.RateLimit,
		Burst:     dd.Burst,
	}, datadog.Dependencies{
		HTTPClient: httpClient,
		Metrics:    rec,
		Logger:     logger,
	})
}
